package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/jmerrifield20/tokenledger/internal/events"
	"github.com/jmerrifield20/tokenledger/internal/ledger"
	"github.com/jmerrifield20/tokenledger/internal/service"
)

const (
	owner ledger.Principal = "owner-principal"
	alice ledger.Principal = "alice-principal"
	bob   ledger.Principal = "bob-principal"
)

type stubPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *stubPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *stubPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type stubNotifier struct{ n int }

func (s *stubNotifier) Notify() { s.n++ }

func newService(t *testing.T) (*service.TokenService, *stubPublisher, *stubNotifier) {
	t.Helper()
	svc := service.NewTokenService(ledger.NewHost(), zap.NewNop())
	pub := &stubPublisher{}
	n := &stubNotifier{}
	svc.SetPublisher(pub)
	svc.SetNotifier(n)
	return svc, pub, n
}

func initTOK(t *testing.T, svc *service.TokenService) {
	t.Helper()
	err := svc.Initialize(context.Background(), owner, ledger.InitArgs{
		Symbol: "TOK", Name: "Token", TotalSupply: 1000, Decimals: 2,
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
}

func TestTokenService_PublishesLifecycle(t *testing.T) {
	svc, pub, n := newService(t)
	ctx := context.Background()
	initTOK(t, svc)

	if err := svc.AddMinter(ctx, owner, alice); err != nil {
		t.Fatalf("AddMinter: %v", err)
	}
	if _, err := svc.Mint(ctx, alice, bob, 50); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	entry, err := svc.Transfer(ctx, owner, bob, 100)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if entry.Index != 1 {
		t.Errorf("transfer index: got %d, want 1", entry.Index)
	}
	if err := svc.Approve(ctx, owner, alice, 5); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	want := []string{
		events.TypeLedgerInitialized,
		events.TypeMinterAdded,
		events.TypeTransactionCompleted,
		events.TypeTransactionCompleted,
		events.TypeApproval,
	}
	got := pub.types()
	if len(got) != len(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if n.n != 5 {
		t.Errorf("notifications: got %d, want 5", n.n)
	}
	if svc.BalanceOf(ctx, bob) != 150 {
		t.Errorf("bob balance: got %d, want 150", svc.BalanceOf(ctx, bob))
	}
}

func TestTokenService_FailureHasNoSideEffects(t *testing.T) {
	svc, pub, n := newService(t)
	ctx := context.Background()
	initTOK(t, svc)
	before := len(pub.types())

	_, err := svc.Transfer(ctx, alice, bob, 1)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if err := svc.AddMinter(ctx, alice, bob); !errors.Is(err, ledger.ErrNotOwner) {
		t.Fatalf("got %v, want ErrNotOwner", err)
	}
	if len(pub.types()) != before {
		t.Errorf("failed operations must not publish events")
	}
	if n.n != 1 {
		t.Errorf("notifications: got %d, want 1 (initialize only)", n.n)
	}
}

func TestTokenService_PublishErrorDoesNotFailOperation(t *testing.T) {
	svc, pub, _ := newService(t)
	pub.err = errors.New("broker down")
	initTOK(t, svc)

	if _, err := svc.Transfer(context.Background(), owner, alice, 10); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := svc.BalanceOf(context.Background(), alice); got != 10 {
		t.Errorf("alice balance: got %d, want 10", got)
	}
}

func TestTokenService_BurnCycles(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	if got := svc.BurnCycles(ctx, owner, 7); got != 0 {
		t.Errorf("before init: got %d, want 0", got)
	}
	initTOK(t, svc)
	svc.BurnCycles(ctx, owner, 7)
	if got := svc.BurnCycles(ctx, owner, 3); got != 10 {
		t.Errorf("total: got %d, want 10", got)
	}
	if got := svc.BurntCycles(ctx); got != 10 {
		t.Errorf("BurntCycles: got %d, want 10", got)
	}
}

func TestTokenService_HistoryPage(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	initTOK(t, svc)
	for i := 0; i < 5; i++ {
		if _, err := svc.Transfer(ctx, owner, alice, uint64(i+1)); err != nil {
			t.Fatalf("Transfer %d: %v", i, err)
		}
	}

	tests := []struct {
		name          string
		offset, limit int
		wantFirst     int
		wantLen       int
	}{
		{"all", 0, 0, 0, 5},
		{"first page", 0, 2, 0, 2},
		{"middle page", 2, 2, 2, 2},
		{"tail", 4, 10, 4, 1},
		{"past end", 9, 2, -1, 0},
		{"negative offset", -3, 1, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, total := svc.HistoryPage(ctx, tt.offset, tt.limit)
			if total != 5 {
				t.Errorf("total: got %d, want 5", total)
			}
			if len(page) != tt.wantLen {
				t.Fatalf("len: got %d, want %d", len(page), tt.wantLen)
			}
			if tt.wantLen > 0 && page[0].Index != tt.wantFirst {
				t.Errorf("first index: got %d, want %d", page[0].Index, tt.wantFirst)
			}
			if tt.wantLen > 0 && page[0].Amount != uint64(tt.wantFirst+1) {
				t.Errorf("first amount: got %d, want %d", page[0].Amount, tt.wantFirst+1)
			}
		})
	}
}

func TestTokenService_ConcurrentTransfersPublishInHistoryOrder(t *testing.T) {
	svc := service.NewTokenService(ledger.NewHost(), zap.NewNop())
	pub := &stubPublisher{}
	svc.SetPublisher(pub)
	ctx := context.Background()
	if err := svc.Initialize(ctx, owner, ledger.InitArgs{Symbol: "TOK", TotalSupply: 1_000_000}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	const workers, perWorker = 16, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := svc.Transfer(ctx, owner, alice, 1); err != nil {
					t.Errorf("Transfer: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	next := 0
	for _, ev := range pub.events {
		if ev.Type != events.TypeTransactionCompleted {
			continue
		}
		if ev.Entry.Index != next {
			t.Fatalf("event order: got index %d, want %d", ev.Entry.Index, next)
		}
		if want := uint64(1_000_000 - next - 1); ev.Entry.PostBalanceFrom != want {
			t.Fatalf("index %d: post_balance_from got %d, want %d", next, ev.Entry.PostBalanceFrom, want)
		}
		next++
	}
	if next != workers*perWorker {
		t.Errorf("transaction events: got %d, want %d", next, workers*perWorker)
	}
}
