package ledger

import (
	"fmt"
	"sync"
)

// InitArgs are the caller-supplied parameters of Initialize.
type InitArgs struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	TotalSupply uint64 `json:"total_supply"`
	Decimals    uint8  `json:"decimals"`
}

// Metadata summarises the ledger for read-only callers.
type Metadata struct {
	Initialized bool        `json:"initialized"`
	Owner       Principal   `json:"owner,omitempty"`
	Name        string      `json:"name"`
	Symbol      string      `json:"symbol"`
	Decimals    uint8       `json:"decimals"`
	TotalSupply uint64      `json:"total_supply"`
	Minters     []Principal `json:"minters,omitempty"`
	BurntCycles uint64      `json:"burnt_cycles"`
	Accounts    int         `json:"accounts"`
	HistoryLen  int         `json:"history_len"`
	Version     uint64      `json:"version"`
}

// Host owns the process-wide ledger and serialises access to it.
//
// A Host starts uninitialized. Queries against an uninitialized host return
// zero values; mutations return ErrNotInitialized. Every mutation holds the
// write lock from its precondition check through commit, so check-then-apply
// sequences such as Transfer are atomic with respect to concurrent callers.
type Host struct {
	mu      sync.RWMutex
	ledger  *Ledger
	version uint64
}

// NewHost returns an uninitialized Host.
func NewHost() *Host {
	return &Host{}
}

// Initialized reports whether Initialize or Restore has run.
func (h *Host) Initialized() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ledger != nil
}

// Version returns a counter that increases with every successful mutation.
func (h *Host) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// Initialize creates the ledger with caller as owner. It may run only once;
// later calls fail with ErrAlreadyInitialized and leave the state untouched.
func (h *Host) Initialize(caller Principal, args InitArgs) error {
	if err := caller.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ledger != nil {
		return ErrAlreadyInitialized
	}
	h.ledger = New(caller, args.TotalSupply, args.Decimals, args.Name, args.Symbol)
	h.version++
	return nil
}

// AddMinter grants minter the right to mint. caller must be the owner.
func (h *Host) AddMinter(caller, minter Principal) error {
	if err := minter.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ledger == nil {
		return ErrNotInitialized
	}
	if err := h.ledger.AddMinter(caller, minter); err != nil {
		return err
	}
	h.version++
	return nil
}

// Mint credits amount new tokens to to. caller must be a minter.
func (h *Host) Mint(caller, to Principal, amount uint64) (Entry, error) {
	if err := to.Validate(); err != nil {
		return Entry{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ledger == nil {
		return Entry{}, ErrNotInitialized
	}
	rec, err := h.ledger.Mint(caller, to, amount)
	if err != nil {
		return Entry{}, err
	}
	h.version++
	return Entry{Index: h.ledger.HistoryLen() - 1, Record: rec}, nil
}

// Approve sets caller's allowance for spender to amount.
func (h *Host) Approve(caller, spender Principal, amount uint64) error {
	if err := caller.Validate(); err != nil {
		return err
	}
	if err := spender.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ledger == nil {
		return ErrNotInitialized
	}
	if err := h.ledger.Approve(caller, spender, amount); err != nil {
		return err
	}
	h.version++
	return nil
}

// Transfer moves amount from caller to to. The debit source is always the
// caller; there is no way to name a different source through the host.
func (h *Host) Transfer(caller, to Principal, amount uint64) (Entry, error) {
	if err := caller.Validate(); err != nil {
		return Entry{}, err
	}
	if err := to.Validate(); err != nil {
		return Entry{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ledger == nil {
		return Entry{}, ErrNotInitialized
	}
	rec, err := h.ledger.Transfer(caller, to, amount)
	if err != nil {
		return Entry{}, err
	}
	h.version++
	return Entry{Index: h.ledger.HistoryLen() - 1, Record: rec}, nil
}

// BurnCycles adds amount to the burnt-cycles counter. It is a no-op before
// initialization.
func (h *Host) BurnCycles(amount uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ledger == nil {
		return
	}
	h.ledger.BurnCycles(amount)
	h.version++
}

// BalanceOf returns p's balance, or 0.
func (h *Host) BalanceOf(p Principal) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ledger == nil {
		return 0
	}
	return h.ledger.BalanceOf(p)
}

// Allowance returns spender's allowance over owner's tokens, or 0.
func (h *Host) Allowance(owner, spender Principal) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ledger == nil {
		return 0
	}
	return h.ledger.Allowance(owner, spender)
}

// TotalSupply returns the supply, or 0.
func (h *Host) TotalSupply() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ledger == nil {
		return 0
	}
	return h.ledger.TotalSupply()
}

// Symbol returns the ticker, or "".
func (h *Host) Symbol() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ledger == nil {
		return ""
	}
	return h.ledger.Symbol()
}

// Name returns the token name, or "".
func (h *Host) Name() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ledger == nil {
		return ""
	}
	return h.ledger.Name()
}

// Decimals returns the display precision, or 0.
func (h *Host) Decimals() uint8 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ledger == nil {
		return 0
	}
	return h.ledger.Decimals()
}

// BurntCycles returns the burnt-cycles counter, or 0.
func (h *Host) BurntCycles() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ledger == nil {
		return 0
	}
	return h.ledger.BurntCycles()
}

// TransactionHistory returns a copy of the history, or an empty slice.
func (h *Host) TransactionHistory() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ledger == nil {
		return []Record{}
	}
	return h.ledger.History()
}

// Metadata returns a consistent summary of the ledger.
func (h *Host) Metadata() Metadata {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ledger == nil {
		return Metadata{Version: h.version}
	}
	l := h.ledger
	return Metadata{
		Initialized: true,
		Owner:       l.Owner(),
		Name:        l.Name(),
		Symbol:      l.Symbol(),
		Decimals:    l.Decimals(),
		TotalSupply: l.TotalSupply(),
		Minters:     l.Minters(),
		BurntCycles: l.BurntCycles(),
		Accounts:    l.Accounts(),
		HistoryLen:  l.HistoryLen(),
		Version:     h.version,
	}
}

// Snapshot returns a deep copy of the current state.
func (h *Host) Snapshot() (*Snapshot, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ledger == nil {
		return nil, ErrNotInitialized
	}
	s := h.ledger.snapshot()
	s.Version = h.version
	return s, nil
}

// Restore installs s into an uninitialized host.
func (h *Host) Restore(s *Snapshot) error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrCorruptSnapshot)
	}
	l, err := fromSnapshot(s)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ledger != nil {
		return ErrAlreadyInitialized
	}
	h.ledger = l
	h.version = s.Version
	return nil
}
