// Command tokenctl is the command-line client for a ledgerd server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/jmerrifield20/tokenledger/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL   string
	cfgFile     string
	principal   string
	secret      string
	bearerToken string
	outFormat   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tokenctl",
	Short: "Token ledger CLI",
	Long: `tokenctl talks to a ledgerd server over its HTTP API.

Queries need no credentials. Mutating commands authenticate either with a
caller token (--token) or with principal credentials (--principal/--secret),
which are exchanged for a token on first use.

Settings may also come from ~/.tokenledger/config.yaml or the environment
(TOKENLEDGER_SERVER, TOKENLEDGER_PRINCIPAL, TOKENLEDGER_SECRET, TOKENLEDGER_TOKEN).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.tokenledger")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("tokenledger")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if principal == "" {
			principal = viper.GetString("principal")
		}
		if secret == "" {
			secret = viper.GetString("secret")
		}
		if bearerToken == "" {
			bearerToken = viper.GetString("token")
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.tokenledger/config.yaml)")
	pf.StringVar(&serverURL, "server", "", "ledgerd base URL (default http://localhost:8080)")
	pf.StringVar(&principal, "principal", "", "principal to authenticate as")
	pf.StringVar(&secret, "secret", "", "principal secret (prefer TOKENLEDGER_SECRET)")
	pf.StringVar(&bearerToken, "token", "", "caller token; skips the credential exchange")
	pf.StringVarP(&outFormat, "output", "o", "text", "output format: text or json")

	rootCmd.AddCommand(
		loginCmd, initCmd, infoCmd, balanceCmd, allowanceCmd,
		approveCmd, transferCmd, addMinterCmd, mintCmd,
		burnCyclesCmd, cyclesCmd, historyCmd, hashSecretCmd, versionCmd,
	)
}

// newClient builds an API client. When auth is true it must be able to
// authenticate, otherwise the call is rejected before reaching the server.
func newClient(auth bool) (*client.Client, error) {
	var opts []client.Option
	switch {
	case bearerToken != "":
		opts = append(opts, client.WithBearerToken(bearerToken))
	case principal != "" && secret != "":
		opts = append(opts, client.WithCredentials(principal, secret))
	case auth:
		return nil, fmt.Errorf("this command needs credentials: use --token, or --principal with --secret")
	}
	return client.New(serverURL, opts...)
}

// parseAmount turns a CLI amount into a client.Amount. With raw set the
// argument is base units; otherwise it is display notation ("12.50") that the
// server scales by the token's decimals.
func parseAmount(s string, raw bool) (client.Amount, error) {
	s = strings.TrimSpace(s)
	if raw {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return client.Amount{}, fmt.Errorf("invalid base-unit amount %q", s)
		}
		return client.Units(n), nil
	}
	if s == "" || strings.HasPrefix(s, "-") {
		return client.Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return client.Display(s), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tokenctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tokenctl %s\n", version)
	},
}
