// Package ledger implements the single-asset token ledger state machine.
//
// Ledger holds balances, allowances, the minter set, the burnt-cycles counter
// and the append-only transaction history. It performs no locking of its own;
// Host wraps a Ledger and serialises every call against it.
//
// Invariants maintained by every operation:
//   - TotalSupply equals the sum of all balances.
//   - A failed operation leaves the ledger exactly as it found it.
//   - The owner is always a minter.
//   - History only grows, in commit order.
package ledger

import (
	"math"
	"sort"
)

// Ledger is the token state. The zero value is not usable; create one with New.
type Ledger struct {
	owner       Principal
	name        string
	symbol      string
	decimals    uint8
	totalSupply uint64
	balances    map[Principal]uint64
	allowances  map[Principal]map[Principal]uint64
	minters     map[Principal]struct{}
	burntCycles uint64
	history     []Record
}

// New creates a ledger whose entire initial supply belongs to owner.
// The owner is the only initial minter.
func New(owner Principal, totalSupply uint64, decimals uint8, name, symbol string) *Ledger {
	return &Ledger{
		owner:       owner,
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		totalSupply: totalSupply,
		balances:    map[Principal]uint64{owner: totalSupply},
		allowances:  make(map[Principal]map[Principal]uint64),
		minters:     map[Principal]struct{}{owner: {}},
	}
}

// Owner returns the identity that created the ledger.
func (l *Ledger) Owner() Principal { return l.owner }

// Name returns the token name.
func (l *Ledger) Name() string { return l.name }

// Symbol returns the token ticker symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Decimals returns the display precision.
func (l *Ledger) Decimals() uint8 { return l.decimals }

// TotalSupply returns the number of tokens in existence.
func (l *Ledger) TotalSupply() uint64 { return l.totalSupply }

// BurntCycles returns the cumulative burnt-cycles counter.
func (l *Ledger) BurntCycles() uint64 { return l.burntCycles }

// BalanceOf returns the balance of p, or 0 when p has never held tokens.
func (l *Ledger) BalanceOf(p Principal) uint64 {
	return l.balances[p]
}

// Allowance returns how much spender may spend on behalf of owner.
func (l *Ledger) Allowance(owner, spender Principal) uint64 {
	return l.allowances[owner][spender]
}

// IsMinter reports whether p may mint.
func (l *Ledger) IsMinter(p Principal) bool {
	_, ok := l.minters[p]
	return ok
}

// Minters returns the minter set in lexical order.
func (l *Ledger) Minters() []Principal {
	out := make([]Principal, 0, len(l.minters))
	for p := range l.minters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Accounts returns the number of balance entries, zero balances included.
func (l *Ledger) Accounts() int { return len(l.balances) }

// HistoryLen returns the number of records in the history.
func (l *Ledger) HistoryLen() int { return len(l.history) }

// Transfer moves amount from from to to and appends a record.
//
// The record's CyclesBurnt is the ledger-wide cumulative counter at call time,
// not a fee charged by this transfer. A self-transfer nets to zero and is
// still recorded.
func (l *Ledger) Transfer(from, to Principal, amount uint64) (Record, error) {
	if l.balances[from] < amount {
		return Record{}, ErrInsufficientBalance
	}
	l.balances[from] -= amount
	l.balances[to] += amount

	reason := ReasonTransferNoCycles
	if l.burntCycles > 0 {
		reason = ReasonTransferCyclesBurnt
	}
	rec := Record{
		From:            from,
		To:              to,
		Amount:          amount,
		PostBalanceFrom: l.balances[from],
		PostBalanceTo:   l.balances[to],
		CyclesBurnt:     l.burntCycles,
		Reason:          reason,
	}
	l.history = append(l.history, rec)
	return rec, nil
}

// Approve sets the allowance of spender over owner's tokens to exactly amount.
// A later Approve for the same pair replaces the previous value.
func (l *Ledger) Approve(owner, spender Principal, amount uint64) error {
	spenders, ok := l.allowances[owner]
	if !ok {
		spenders = make(map[Principal]uint64)
		l.allowances[owner] = spenders
	}
	spenders[spender] = amount
	return nil
}

// AddMinter grants minting rights to minter. Only the owner may do this.
// Adding an existing minter succeeds without change.
func (l *Ledger) AddMinter(requester, minter Principal) error {
	if requester != l.owner {
		return ErrNotOwner
	}
	l.minters[minter] = struct{}{}
	return nil
}

// Mint credits amount new tokens to to and appends a record.
// PostBalanceFrom is always 0 since minting debits no source.
func (l *Ledger) Mint(requester, to Principal, amount uint64) (Record, error) {
	if !l.IsMinter(requester) {
		return Record{}, ErrNotAuthorized
	}
	// Every balance is bounded by the supply, so checking the supply covers both.
	if amount > math.MaxUint64-l.totalSupply {
		return Record{}, ErrAmountOverflow
	}
	l.balances[to] += amount
	l.totalSupply += amount

	rec := Record{
		From:            requester,
		To:              to,
		Amount:          amount,
		PostBalanceFrom: 0,
		PostBalanceTo:   l.balances[to],
		CyclesBurnt:     0,
		Reason:          ReasonMint,
	}
	l.history = append(l.history, rec)
	return rec, nil
}

// BurnCycles adds amount to the burnt-cycles counter, saturating at MaxUint64.
func (l *Ledger) BurnCycles(amount uint64) {
	if amount > math.MaxUint64-l.burntCycles {
		l.burntCycles = math.MaxUint64
		return
	}
	l.burntCycles += amount
}

// History returns a copy of every record in commit order.
func (l *Ledger) History() []Record {
	out := make([]Record, len(l.history))
	copy(out, l.history)
	return out
}
