// Package service orchestrates ledger calls with their side effects.
package service

import (
	"context"
	"strconv"
	"sync"

	"github.com/jmerrifield20/tokenledger/internal/events"
	"github.com/jmerrifield20/tokenledger/internal/ledger"
	"github.com/jmerrifield20/tokenledger/internal/metrics"
	"go.uber.org/zap"
)

// Notifier is told that ledger state has changed. *store.Checkpointer
// satisfies this interface.
type Notifier interface {
	Notify()
}

// TokenService is the single entry point used by the HTTP and gRPC surfaces.
// It calls the Host and then, outside the Host lock, logs the outcome, records
// metrics, publishes events and nudges the checkpointer.
//
// Mutations that publish events run under seq, so events leave the service
// in the same order the Host committed them. Publishers must not block.
type TokenService struct {
	seq       sync.Mutex
	host      *ledger.Host
	publisher events.Publisher // nil = no events
	notifier  Notifier         // nil = no checkpoint nudges
	logger    *zap.Logger
}

// NewTokenService creates a TokenService over host.
func NewTokenService(host *ledger.Host, logger *zap.Logger) *TokenService {
	return &TokenService{host: host, logger: logger}
}

// SetPublisher configures the event publisher.
func (s *TokenService) SetPublisher(p events.Publisher) {
	s.publisher = p
}

// SetNotifier configures the state-change notifier.
func (s *TokenService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Host returns the underlying ledger host.
func (s *TokenService) Host() *ledger.Host {
	return s.host
}

// Initialize creates the ledger with caller as owner.
func (s *TokenService) Initialize(ctx context.Context, caller ledger.Principal, args ledger.InitArgs) error {
	s.seq.Lock()
	defer s.seq.Unlock()

	err := s.host.Initialize(caller, args)
	s.observe("initialize", err)
	if err != nil {
		s.logger.Warn("initialize rejected", zap.String("caller", caller.String()), zap.Error(err))
		return err
	}

	s.logger.Info("ledger initialized",
		zap.String("owner", caller.String()),
		zap.String("symbol", args.Symbol),
		zap.Uint64("total_supply", args.TotalSupply),
		zap.Uint8("decimals", args.Decimals),
	)
	s.publish(ctx, events.NewEvent(events.TypeLedgerInitialized, args.Symbol, map[string]string{
		"owner":        caller.String(),
		"name":         args.Name,
		"total_supply": strconv.FormatUint(args.TotalSupply, 10),
		"decimals":     strconv.Itoa(int(args.Decimals)),
	}))
	return nil
}

// AddMinter grants minter the right to mint.
func (s *TokenService) AddMinter(ctx context.Context, caller, minter ledger.Principal) error {
	s.seq.Lock()
	defer s.seq.Unlock()

	err := s.host.AddMinter(caller, minter)
	s.observe("add_minter", err)
	if err != nil {
		s.logger.Warn("add minter rejected",
			zap.String("caller", caller.String()),
			zap.String("minter", minter.String()),
			zap.Error(err),
		)
		return err
	}

	s.logger.Info("minter added", zap.String("minter", minter.String()))
	s.publish(ctx, events.NewEvent(events.TypeMinterAdded, s.host.Symbol(), map[string]string{
		"minter": minter.String(),
	}))
	return nil
}

// Mint credits amount new tokens to to.
func (s *TokenService) Mint(ctx context.Context, caller, to ledger.Principal, amount uint64) (ledger.Entry, error) {
	s.seq.Lock()
	defer s.seq.Unlock()

	entry, err := s.host.Mint(caller, to, amount)
	s.observe("mint", err)
	if err != nil {
		s.logger.Warn("mint rejected",
			zap.String("caller", caller.String()),
			zap.String("to", to.String()),
			zap.Uint64("amount", amount),
			zap.Error(err),
		)
		return ledger.Entry{}, err
	}

	s.logger.Info("minted",
		zap.String("to", to.String()),
		zap.Uint64("amount", amount),
		zap.Int("index", entry.Index),
	)
	s.publish(ctx, events.NewTransactionCompleted(s.host.Symbol(), entry))
	return entry, nil
}

// Approve sets caller's allowance for spender.
func (s *TokenService) Approve(ctx context.Context, caller, spender ledger.Principal, amount uint64) error {
	s.seq.Lock()
	defer s.seq.Unlock()

	err := s.host.Approve(caller, spender, amount)
	s.observe("approve", err)
	if err != nil {
		s.logger.Warn("approve rejected", zap.String("caller", caller.String()), zap.Error(err))
		return err
	}

	s.publish(ctx, events.NewEvent(events.TypeApproval, s.host.Symbol(), map[string]string{
		"owner":   caller.String(),
		"spender": spender.String(),
		"amount":  strconv.FormatUint(amount, 10),
	}))
	return nil
}

// Transfer moves amount from caller to to.
func (s *TokenService) Transfer(ctx context.Context, caller, to ledger.Principal, amount uint64) (ledger.Entry, error) {
	s.seq.Lock()
	defer s.seq.Unlock()

	entry, err := s.host.Transfer(caller, to, amount)
	s.observe("transfer", err)
	if err != nil {
		s.logger.Info("transfer rejected",
			zap.String("from", caller.String()),
			zap.String("to", to.String()),
			zap.Uint64("amount", amount),
			zap.Error(err),
		)
		return ledger.Entry{}, err
	}

	s.logger.Info("transferred",
		zap.String("from", caller.String()),
		zap.String("to", to.String()),
		zap.Uint64("amount", amount),
		zap.Int("index", entry.Index),
	)
	s.publish(ctx, events.NewTransactionCompleted(s.host.Symbol(), entry))
	return entry, nil
}

// BurnCycles adds amount to the burnt-cycles counter and returns the new total.
// Before initialization it does nothing and returns 0.
func (s *TokenService) BurnCycles(_ context.Context, caller ledger.Principal, amount uint64) uint64 {
	if !s.host.Initialized() {
		s.logger.Debug("burn cycles ignored before initialization", zap.String("caller", caller.String()))
		s.observe("burn_cycles", ledger.ErrNotInitialized)
		return 0
	}
	s.host.BurnCycles(amount)
	s.observe("burn_cycles", nil)
	total := s.host.BurntCycles()
	s.logger.Debug("cycles burnt",
		zap.String("caller", caller.String()),
		zap.Uint64("amount", amount),
		zap.Uint64("total", total),
	)
	return total
}

// BalanceOf returns p's balance.
func (s *TokenService) BalanceOf(_ context.Context, p ledger.Principal) uint64 {
	return s.host.BalanceOf(p)
}

// Allowance returns spender's allowance over owner's tokens.
func (s *TokenService) Allowance(_ context.Context, owner, spender ledger.Principal) uint64 {
	return s.host.Allowance(owner, spender)
}

// TotalSupply returns the current supply.
func (s *TokenService) TotalSupply(_ context.Context) uint64 { return s.host.TotalSupply() }

// Symbol returns the ticker.
func (s *TokenService) Symbol(_ context.Context) string { return s.host.Symbol() }

// Name returns the token name.
func (s *TokenService) Name(_ context.Context) string { return s.host.Name() }

// Decimals returns the display precision.
func (s *TokenService) Decimals(_ context.Context) uint8 { return s.host.Decimals() }

// BurntCycles returns the burnt-cycles counter.
func (s *TokenService) BurntCycles(_ context.Context) uint64 { return s.host.BurntCycles() }

// Metadata returns a summary of the ledger.
func (s *TokenService) Metadata(_ context.Context) ledger.Metadata { return s.host.Metadata() }

// TransactionHistory returns a copy of the full history.
func (s *TokenService) TransactionHistory(_ context.Context) []ledger.Record {
	return s.host.TransactionHistory()
}

// HistoryPage returns up to limit entries starting at offset, together with
// the total history length. A non-positive limit returns everything from
// offset onward. The page is cut from one consistent copy of the history.
func (s *TokenService) HistoryPage(_ context.Context, offset, limit int) ([]ledger.Entry, int) {
	all := s.host.TransactionHistory()
	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []ledger.Entry{}, total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	page := make([]ledger.Entry, 0, end-offset)
	for i := offset; i < end; i++ {
		page = append(page, ledger.Entry{Index: i, Record: all[i]})
	}
	return page, total
}

func (s *TokenService) observe(op string, err error) {
	metrics.RecordOperation(op, err)
	if err != nil {
		return
	}
	metrics.ObserveLedger(s.host.Metadata())
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

func (s *TokenService) publish(ctx context.Context, ev events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("type", ev.Type),
			zap.String("id", ev.ID),
			zap.Error(err),
		)
	}
}
