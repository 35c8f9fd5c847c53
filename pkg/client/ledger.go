package client

import (
	"context"
	"fmt"
	"net/url"
)

// Metadata mirrors GET /api/v1/ledger.
type Metadata struct {
	Initialized bool     `json:"initialized"`
	Owner       string   `json:"owner,omitempty"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Decimals    uint8    `json:"decimals"`
	TotalSupply uint64   `json:"total_supply"`
	Minters     []string `json:"minters,omitempty"`
	BurntCycles uint64   `json:"burnt_cycles"`
	Accounts    int      `json:"accounts"`
	HistoryLen  int      `json:"history_len"`
	Version     uint64   `json:"version"`
}

// Entry is a transaction history record with its history index.
type Entry struct {
	Index           int    `json:"index"`
	From            string `json:"from"`
	To              string `json:"to"`
	Amount          uint64 `json:"amount"`
	PostBalanceFrom uint64 `json:"post_balance_from"`
	PostBalanceTo   uint64 `json:"post_balance_to"`
	CyclesBurnt     uint64 `json:"cycles_burnt"`
	Reason          string `json:"reason"`
}

// HistoryPage is one page of GET /api/v1/ledger/history.
type HistoryPage struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Offset  int     `json:"offset"`
	Limit   int     `json:"limit"`
}

// Balance is the response of GET /api/v1/ledger/balances/:principal.
type Balance struct {
	Principal string `json:"principal"`
	Balance   uint64 `json:"balance"`
	Display   string `json:"display"`
}

// InitRequest is the payload for Initialize.
type InitRequest struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	TotalSupply uint64 `json:"total_supply"`
	Decimals    uint8  `json:"decimals"`
}

// Amount is a transfer/mint/approve quantity: either base units or a display
// string such as "12.50" scaled server-side by the token's decimals.
type Amount struct {
	Units   *uint64 `json:"amount,omitempty"`
	Display string  `json:"display_amount,omitempty"`
}

// Units returns an Amount in base units.
func Units(n uint64) Amount { return Amount{Units: &n} }

// Display returns an Amount in display notation.
func Display(s string) Amount { return Amount{Display: s} }

// Initialize creates the ledger with the logged-in principal as owner.
func (c *Client) Initialize(ctx context.Context, req InitRequest) (*Metadata, error) {
	var md Metadata
	if err := c.post(ctx, "/api/v1/ledger/init", req, &md); err != nil {
		return nil, err
	}
	return &md, nil
}

// Metadata returns the ledger summary.
func (c *Client) Metadata(ctx context.Context) (*Metadata, error) {
	var md Metadata
	if err := c.get(ctx, "/api/v1/ledger", &md); err != nil {
		return nil, err
	}
	return &md, nil
}

// TotalSupply returns the current supply in base units.
func (c *Client) TotalSupply(ctx context.Context) (uint64, error) {
	var out struct {
		TotalSupply uint64 `json:"total_supply"`
	}
	err := c.get(ctx, "/api/v1/ledger/total-supply", &out)
	return out.TotalSupply, err
}

// Symbol returns the token ticker.
func (c *Client) Symbol(ctx context.Context) (string, error) {
	var out struct {
		Symbol string `json:"symbol"`
	}
	err := c.get(ctx, "/api/v1/ledger/symbol", &out)
	return out.Symbol, err
}

// Name returns the token name.
func (c *Client) Name(ctx context.Context) (string, error) {
	var out struct {
		Name string `json:"name"`
	}
	err := c.get(ctx, "/api/v1/ledger/name", &out)
	return out.Name, err
}

// Decimals returns the token's display precision.
func (c *Client) Decimals(ctx context.Context) (uint8, error) {
	var out struct {
		Decimals uint8 `json:"decimals"`
	}
	err := c.get(ctx, "/api/v1/ledger/decimals", &out)
	return out.Decimals, err
}

// BalanceOf returns the balance of principal.
func (c *Client) BalanceOf(ctx context.Context, principal string) (*Balance, error) {
	var b Balance
	if err := c.get(ctx, "/api/v1/ledger/balances/"+url.PathEscape(principal), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Allowance returns spender's allowance over owner's tokens.
func (c *Client) Allowance(ctx context.Context, owner, spender string) (uint64, error) {
	var out struct {
		Allowance uint64 `json:"allowance"`
	}
	path := fmt.Sprintf("/api/v1/ledger/allowances/%s/%s", url.PathEscape(owner), url.PathEscape(spender))
	err := c.get(ctx, path, &out)
	return out.Allowance, err
}

// Approve sets the caller's allowance for spender.
func (c *Client) Approve(ctx context.Context, spender string, amount Amount) error {
	body := struct {
		Spender string `json:"spender"`
		Amount
	}{spender, amount}
	return c.post(ctx, "/api/v1/ledger/approve", body, nil)
}

// Transfer moves amount from the caller to to.
func (c *Client) Transfer(ctx context.Context, to string, amount Amount) (*Entry, error) {
	body := struct {
		To string `json:"to"`
		Amount
	}{to, amount}
	var e Entry
	if err := c.post(ctx, "/api/v1/ledger/transfer", body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// AddMinter grants minter the right to mint. The caller must be the owner.
func (c *Client) AddMinter(ctx context.Context, minter string) error {
	return c.post(ctx, "/api/v1/ledger/minters", map[string]string{"minter": minter}, nil)
}

// Mint credits new tokens to to. The caller must be a minter.
func (c *Client) Mint(ctx context.Context, to string, amount Amount) (*Entry, error) {
	body := struct {
		To string `json:"to"`
		Amount
	}{to, amount}
	var e Entry
	if err := c.post(ctx, "/api/v1/ledger/mint", body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// BurnCycles adds amount to the burnt-cycles counter and returns the new total.
func (c *Client) BurnCycles(ctx context.Context, amount uint64) (uint64, error) {
	var out struct {
		BurntCycles uint64 `json:"burnt_cycles"`
	}
	err := c.post(ctx, "/api/v1/ledger/cycles/burn", map[string]uint64{"amount": amount}, &out)
	return out.BurntCycles, err
}

// BurntCycles returns the burnt-cycles counter.
func (c *Client) BurntCycles(ctx context.Context) (uint64, error) {
	var out struct {
		BurntCycles uint64 `json:"burnt_cycles"`
	}
	err := c.get(ctx, "/api/v1/ledger/cycles", &out)
	return out.BurntCycles, err
}

// History returns one page of the transaction history. limit 0 uses the
// server default.
func (c *Client) History(ctx context.Context, offset, limit int) (*HistoryPage, error) {
	q := url.Values{}
	q.Set("offset", fmt.Sprint(offset))
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var page HistoryPage
	if err := c.get(ctx, "/api/v1/ledger/history?"+q.Encode(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}
