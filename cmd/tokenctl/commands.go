package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/jmerrifield20/tokenledger/internal/identity"
	"github.com/jmerrifield20/tokenledger/internal/ledger"
	"github.com/jmerrifield20/tokenledger/pkg/client"
	"github.com/spf13/cobra"
)

// rawUnits is shared by every command that takes an amount.
var rawUnits bool

func addAmountFlag(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&rawUnits, "raw", false, "treat the amount as base units instead of display notation")
}

// decimalsOf fetches the token precision for formatting; 0 on error.
func decimalsOf(ctx context.Context, c *client.Client) uint8 {
	d, err := c.Decimals(ctx)
	if err != nil {
		return 0
	}
	return d
}

func printEntry(e *client.Entry, decimals uint8) error {
	if outFormat == "json" {
		return printJSON(e)
	}
	fmt.Printf("✓ #%d %s: %s → %s  %s\n", e.Index, e.Reason, e.From, e.To,
		ledger.FormatAmount(e.Amount, decimals))
	fmt.Printf("  balances: from=%s to=%s\n",
		ledger.FormatAmount(e.PostBalanceFrom, decimals),
		ledger.FormatAmount(e.PostBalanceTo, decimals))
	return nil
}

// ── login ────────────────────────────────────────────────────────────────────

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange principal credentials for a caller token",
	Long: `login prints a caller token that can be passed to later commands with
--token or the TOKENLEDGER_TOKEN environment variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if principal == "" || secret == "" {
			return fmt.Errorf("--principal and --secret are required")
		}
		c, err := client.New(serverURL)
		if err != nil {
			return err
		}
		res, err := c.Login(cmd.Context(), principal, secret)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		if outFormat == "json" {
			return printJSON(res)
		}
		fmt.Println(res.Token)
		fmt.Fprintf(os.Stderr, "token for %s expires in %ds\n", res.Principal, res.ExpiresIn)
		return nil
	},
}

// ── init ─────────────────────────────────────────────────────────────────────

var (
	initSymbol   string
	initName     string
	initSupply   uint64
	initDecimals uint8
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the ledger with the authenticated principal as owner",
	Long: `init creates the token. The whole initial supply is credited to the
caller, who also becomes the owner and first minter. It succeeds only once.

  tokenctl init --principal alice --symbol TOK --name Token --supply 1000 --decimals 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		md, err := c.Initialize(cmd.Context(), client.InitRequest{
			Symbol:      initSymbol,
			Name:        initName,
			TotalSupply: initSupply,
			Decimals:    initDecimals,
		})
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		if outFormat == "json" {
			return printJSON(md)
		}
		fmt.Printf("✓ Ledger initialized: %s (%s), supply %s, owner %s\n",
			md.Name, md.Symbol, ledger.FormatAmount(md.TotalSupply, md.Decimals), md.Owner)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initSymbol, "symbol", "", "token ticker")
	initCmd.Flags().StringVar(&initName, "name", "", "token name")
	initCmd.Flags().Uint64Var(&initSupply, "supply", 0, "initial supply in base units")
	initCmd.Flags().Uint8Var(&initDecimals, "decimals", 0, "display precision")
	_ = initCmd.MarkFlagRequired("symbol")
	_ = initCmd.MarkFlagRequired("name")
}

// ── info ─────────────────────────────────────────────────────────────────────

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show token metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(false)
		if err != nil {
			return err
		}
		md, err := c.Metadata(cmd.Context())
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(md)
		}
		if !md.Initialized {
			fmt.Println("Ledger not initialized.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Name:\t%s\n", md.Name)
		fmt.Fprintf(w, "Symbol:\t%s\n", md.Symbol)
		fmt.Fprintf(w, "Decimals:\t%d\n", md.Decimals)
		fmt.Fprintf(w, "Total supply:\t%s\n", ledger.FormatAmount(md.TotalSupply, md.Decimals))
		fmt.Fprintf(w, "Owner:\t%s\n", md.Owner)
		fmt.Fprintf(w, "Minters:\t%s\n", strings.Join(md.Minters, ", "))
		fmt.Fprintf(w, "Accounts:\t%d\n", md.Accounts)
		fmt.Fprintf(w, "History:\t%d records\n", md.HistoryLen)
		fmt.Fprintf(w, "Burnt cycles:\t%d\n", md.BurntCycles)
		return w.Flush()
	},
}

// ── balance / allowance ──────────────────────────────────────────────────────

var balanceCmd = &cobra.Command{
	Use:   "balance [principal]",
	Short: "Show the balance of a principal (default: --principal)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		who := principal
		if len(args) == 1 {
			who = args[0]
		}
		if who == "" {
			return fmt.Errorf("name a principal or pass --principal")
		}
		c, err := newClient(false)
		if err != nil {
			return err
		}
		b, err := c.BalanceOf(cmd.Context(), who)
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(b)
		}
		fmt.Printf("%s: %s (%d base units)\n", b.Principal, b.Display, b.Balance)
		return nil
	},
}

var allowanceCmd = &cobra.Command{
	Use:   "allowance <owner> <spender>",
	Short: "Show how much spender may spend on owner's behalf",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(false)
		if err != nil {
			return err
		}
		n, err := c.Allowance(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(map[string]any{"owner": args[0], "spender": args[1], "allowance": n})
		}
		fmt.Printf("%s → %s: %s\n", args[0], args[1], ledger.FormatAmount(n, decimalsOf(cmd.Context(), c)))
		return nil
	},
}

// ── approve / transfer ───────────────────────────────────────────────────────

var approveCmd = &cobra.Command{
	Use:   "approve <spender> <amount>",
	Short: "Set the caller's allowance for spender (overwrites any previous value)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amt, err := parseAmount(args[1], rawUnits)
		if err != nil {
			return err
		}
		c, err := newClient(true)
		if err != nil {
			return err
		}
		if err := c.Approve(cmd.Context(), args[0], amt); err != nil {
			return fmt.Errorf("approve: %w", err)
		}
		fmt.Printf("✓ Allowance for %s set\n", args[0])
		return nil
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer <to> <amount>",
	Short: "Transfer tokens from the caller to another principal",
	Long: `transfer debits the authenticated caller. Amounts are in display
notation unless --raw is given:

  tokenctl transfer bob 2.50          # 250 base units on a 2-decimal token
  tokenctl transfer --raw bob 250`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amt, err := parseAmount(args[1], rawUnits)
		if err != nil {
			return err
		}
		c, err := newClient(true)
		if err != nil {
			return err
		}
		e, err := c.Transfer(cmd.Context(), args[0], amt)
		if err != nil {
			if client.IsCode(err, "InsufficientBalance") {
				return fmt.Errorf("transfer refused: insufficient balance")
			}
			return fmt.Errorf("transfer: %w", err)
		}
		return printEntry(e, decimalsOf(cmd.Context(), c))
	},
}

// ── minters ──────────────────────────────────────────────────────────────────

var addMinterCmd = &cobra.Command{
	Use:   "add-minter <principal>",
	Short: "Grant mint rights (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		if err := c.AddMinter(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("add minter: %w", err)
		}
		fmt.Printf("✓ %s can now mint\n", args[0])
		return nil
	},
}

var mintCmd = &cobra.Command{
	Use:   "mint <to> <amount>",
	Short: "Mint new tokens to a principal (minters only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amt, err := parseAmount(args[1], rawUnits)
		if err != nil {
			return err
		}
		c, err := newClient(true)
		if err != nil {
			return err
		}
		e, err := c.Mint(cmd.Context(), args[0], amt)
		if err != nil {
			return fmt.Errorf("mint: %w", err)
		}
		return printEntry(e, decimalsOf(cmd.Context(), c))
	},
}

func init() {
	addAmountFlag(approveCmd)
	addAmountFlag(transferCmd)
	addAmountFlag(mintCmd)
}

// ── cycles ───────────────────────────────────────────────────────────────────

var burnCyclesCmd = &cobra.Command{
	Use:   "burn-cycles <amount>",
	Short: "Add to the burnt-cycles counter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid cycle amount %q", args[0])
		}
		c, err := newClient(true)
		if err != nil {
			return err
		}
		total, err := c.BurnCycles(cmd.Context(), n)
		if err != nil {
			return fmt.Errorf("burn cycles: %w", err)
		}
		fmt.Printf("✓ Burnt cycles: %d\n", total)
		return nil
	},
}

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Show the burnt-cycles counter",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(false)
		if err != nil {
			return err
		}
		n, err := c.BurntCycles(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

// ── history ──────────────────────────────────────────────────────────────────

var (
	historyOffset int
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List transaction history records",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(false)
		if err != nil {
			return err
		}
		page, err := c.History(cmd.Context(), historyOffset, historyLimit)
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(page)
		}
		decimals := decimalsOf(cmd.Context(), c)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tREASON\tFROM\tTO\tAMOUNT\tFROM BAL\tTO BAL\tCYCLES")
		for _, e := range page.Entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
				e.Index, e.Reason, e.From, e.To,
				ledger.FormatAmount(e.Amount, decimals),
				ledger.FormatAmount(e.PostBalanceFrom, decimals),
				ledger.FormatAmount(e.PostBalanceTo, decimals),
				e.CyclesBurnt)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d of %d records (offset %d)\n", len(page.Entries), page.Total, page.Offset)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "index of the first record")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "page size (server default when 0)")
}

// ── hash-secret ──────────────────────────────────────────────────────────────

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret",
	Short: "Read a secret from stdin and print its bcrypt hash for auth.principals",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(os.Stderr, "Secret: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read secret: %w", err)
		}
		hash, err := identity.HashSecret(strings.TrimRight(line, "\r\n"))
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}
