// Package client is the tokenledger Go SDK.
//
// It wraps the ledgerd HTTP API: logging in as a principal, querying
// balances and metadata, and submitting transfers, approvals and mints.
//
// # Connecting
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithCredentials("alice", os.Getenv("LEDGER_SECRET")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// With WithCredentials the client logs in on first use and refreshes its
// caller token before it expires. Alternatively call Login explicitly, or
// pass a token obtained elsewhere with WithBearerToken.
//
// # Moving tokens
//
// Amounts are given in base units or display notation:
//
//	entry, err := c.Transfer(ctx, "bob", client.Display("12.50"))
//	entry, err := c.Transfer(ctx, "bob", client.Units(1250))
//
// # Errors
//
// Non-2xx responses are returned as *APIError. Use IsCode to branch on the
// ledger error code:
//
//	if client.IsCode(err, "InsufficientBalance") {
//	    // top up first
//	}
package client
