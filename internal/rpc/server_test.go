package rpc_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jmerrifield20/tokenledger/internal/identity"
	"github.com/jmerrifield20/tokenledger/internal/ledger"
	"github.com/jmerrifield20/tokenledger/internal/rpc"
	"github.com/jmerrifield20/tokenledger/internal/service"
)

type rpcEnv struct {
	conn   *grpc.ClientConn
	tokens *identity.CallerTokenIssuer
}

func setupRPC(t *testing.T) *rpcEnv {
	t.Helper()

	key, err := identity.LoadOrCreateKey(filepath.Join(t.TempDir(), "signing.pem"))
	if err != nil {
		t.Fatalf("LoadOrCreateKey: %v", err)
	}
	tokens := identity.NewCallerTokenIssuer(key, "http://test", time.Hour)
	svc := service.NewTokenService(ledger.NewHost(), zap.NewNop())
	srv := rpc.NewServer(svc, tokens, zap.NewNop())

	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		rpc.LoggingInterceptor(zap.NewNop()),
		srv.AuthInterceptor(),
	))
	srv.Register(gs)

	lis := bufconn.Listen(1 << 20)
	go gs.Serve(lis) //nolint:errcheck
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &rpcEnv{conn: conn, tokens: tokens}
}

func (e *rpcEnv) call(t *testing.T, method, caller string, req map[string]any) (*structpb.Struct, error) {
	t.Helper()
	in, err := structpb.NewStruct(req)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if caller != "" {
		tok, err := e.tokens.Issue(ledger.Principal(caller))
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
	}
	out := new(structpb.Struct)
	err = e.conn.Invoke(ctx, rpc.FullMethod(method), in, out)
	return out, err
}

func (e *rpcEnv) mustCall(t *testing.T, method, caller string, req map[string]any) map[string]any {
	t.Helper()
	out, err := e.call(t, method, caller, req)
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	return out.AsMap()
}

func TestLedger_scenario(t *testing.T) {
	env := setupRPC(t)

	env.mustCall(t, "Initialize", "owner", map[string]any{
		"symbol": "TOK", "name": "Token", "total_supply": "1000", "decimals": 2,
	})
	if got := env.mustCall(t, "Symbol", "", nil)["symbol"]; got != "TOK" {
		t.Errorf("symbol: got %v, want TOK", got)
	}

	entry := env.mustCall(t, "Transfer", "owner", map[string]any{"to": "alice", "amount": "300"})
	if entry["post_balance_from"] != "700" || entry["index"] != float64(0) {
		t.Errorf("entry: got %v", entry)
	}

	bal := env.mustCall(t, "BalanceOf", "", map[string]any{"principal": "alice"})
	if bal["balance"] != "300" {
		t.Errorf("alice: got %v, want 300", bal["balance"])
	}

	env.mustCall(t, "AddMinter", "owner", map[string]any{"minter": "alice"})
	env.mustCall(t, "Mint", "alice", map[string]any{"to": "bob", "amount": 50})
	if got := env.mustCall(t, "TotalSupply", "", nil)["total_supply"]; got != "1050" {
		t.Errorf("supply: got %v, want 1050", got)
	}

	hist := env.mustCall(t, "TransactionHistory", "", map[string]any{})
	if hist["total"] != float64(2) {
		t.Errorf("history total: got %v, want 2", hist["total"])
	}
}

func TestLedger_errorCodes(t *testing.T) {
	env := setupRPC(t)

	_, err := env.call(t, "Transfer", "owner", map[string]any{"to": "alice", "amount": "1"})
	if status.Code(err) != codes.FailedPrecondition || rpc.LedgerCode(err) != "NotInitialized" {
		t.Fatalf("before init: got %v (%s)", err, rpc.LedgerCode(err))
	}

	env.mustCall(t, "Initialize", "owner", map[string]any{"symbol": "TOK", "total_supply": "10"})

	tests := []struct {
		name     string
		method   string
		caller   string
		req      map[string]any
		wantCode codes.Code
		wantLC   string
	}{
		{"reinit", "Initialize", "bob", map[string]any{"symbol": "X"}, codes.AlreadyExists, "AlreadyInitialized"},
		{"overdraft", "Transfer", "alice", map[string]any{"to": "bob", "amount": "1"}, codes.FailedPrecondition, "InsufficientBalance"},
		{"not owner", "AddMinter", "alice", map[string]any{"minter": "alice"}, codes.PermissionDenied, "NotOwner"},
		{"not minter", "Mint", "alice", map[string]any{"to": "alice", "amount": "1"}, codes.PermissionDenied, "NotAuthorized"},
		{"overflow", "Mint", "owner", map[string]any{"to": "alice", "amount": "18446744073709551615"}, codes.OutOfRange, "AmountOverflow"},
		{"bad principal", "Transfer", "owner", map[string]any{"to": "", "amount": "1"}, codes.InvalidArgument, "InvalidPrincipal"},
		{"fractional amount", "Transfer", "owner", map[string]any{"to": "bob", "amount": 1.5}, codes.InvalidArgument, ""},
		{"missing amount", "Approve", "owner", map[string]any{"spender": "bob"}, codes.InvalidArgument, ""},
		{"history offset too large", "TransactionHistory", "", map[string]any{"offset": "18446744073709551615"}, codes.InvalidArgument, ""},
		{"history limit too large", "TransactionHistory", "", map[string]any{"limit": "4294967296"}, codes.InvalidArgument, ""},
		{"no token", "Transfer", "", map[string]any{"to": "bob", "amount": "1"}, codes.Unauthenticated, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.call(t, tt.method, tt.caller, tt.req)
			if status.Code(err) != tt.wantCode {
				t.Fatalf("code: got %v, want %v (%v)", status.Code(err), tt.wantCode, err)
			}
			if got := rpc.LedgerCode(err); got != tt.wantLC {
				t.Errorf("ledger code: got %q, want %q", got, tt.wantLC)
			}
		})
	}
}

func TestLedger_invalidToken(t *testing.T) {
	env := setupRPC(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer garbage")
	in, _ := structpb.NewStruct(map[string]any{"symbol": "TOK"})
	err := env.conn.Invoke(ctx, rpc.FullMethod("Initialize"), in, new(structpb.Struct))
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("got %v, want Unauthenticated", status.Code(err))
	}
}

func TestLedger_largeAmountsAsStrings(t *testing.T) {
	env := setupRPC(t)
	env.mustCall(t, "Initialize", "owner", map[string]any{"symbol": "BIG", "total_supply": "18446744073709551615"})
	if got := env.mustCall(t, "TotalSupply", "", nil)["total_supply"]; got != "18446744073709551615" {
		t.Errorf("supply: got %v", got)
	}
	env.mustCall(t, "BurnCycles", "owner", map[string]any{"amount": "7"})
	if got := env.mustCall(t, "BurntCycles", "", nil)["burnt_cycles"]; got != "7" {
		t.Errorf("burnt cycles: got %v, want 7", got)
	}
}

func TestLedger_historyOffsetPastEnd(t *testing.T) {
	env := setupRPC(t)
	env.mustCall(t, "Initialize", "owner", map[string]any{"symbol": "TOK", "total_supply": "10"})
	env.mustCall(t, "Transfer", "owner", map[string]any{"to": "alice", "amount": "1"})

	hist := env.mustCall(t, "TransactionHistory", "", map[string]any{"offset": "2147483647"})
	if entries, _ := hist["entries"].([]any); len(entries) != 0 {
		t.Errorf("entries: got %d, want 0", len(entries))
	}
	if hist["total"] != float64(1) {
		t.Errorf("total: got %v, want 1", hist["total"])
	}
}
