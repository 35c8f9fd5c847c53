package ledger

import (
	"fmt"
	"math"
	"time"
)

// Snapshot is a self-contained, serialisable copy of the full ledger state.
type Snapshot struct {
	Version     uint64                             `json:"version"`
	TakenAt     time.Time                          `json:"taken_at"`
	Owner       Principal                          `json:"owner"`
	Name        string                             `json:"name"`
	Symbol      string                             `json:"symbol"`
	Decimals    uint8                              `json:"decimals"`
	TotalSupply uint64                             `json:"total_supply"`
	Balances    map[Principal]uint64               `json:"balances"`
	Allowances  map[Principal]map[Principal]uint64 `json:"allowances"`
	Minters     []Principal                        `json:"minters"`
	BurntCycles uint64                             `json:"burnt_cycles"`
	History     []Record                           `json:"history"`
}

// snapshot deep-copies l.
func (l *Ledger) snapshot() *Snapshot {
	balances := make(map[Principal]uint64, len(l.balances))
	for p, v := range l.balances {
		balances[p] = v
	}
	allowances := make(map[Principal]map[Principal]uint64, len(l.allowances))
	for owner, spenders := range l.allowances {
		cp := make(map[Principal]uint64, len(spenders))
		for s, v := range spenders {
			cp[s] = v
		}
		allowances[owner] = cp
	}
	return &Snapshot{
		TakenAt:     time.Now().UTC(),
		Owner:       l.owner,
		Name:        l.name,
		Symbol:      l.symbol,
		Decimals:    l.decimals,
		TotalSupply: l.totalSupply,
		Balances:    balances,
		Allowances:  allowances,
		Minters:     l.Minters(),
		BurntCycles: l.burntCycles,
		History:     l.History(),
	}
}

// fromSnapshot rebuilds a Ledger from s after checking its invariants.
func fromSnapshot(s *Snapshot) (*Ledger, error) {
	if err := s.Owner.Validate(); err != nil {
		return nil, fmt.Errorf("%w: owner: %v", ErrCorruptSnapshot, err)
	}

	var sum uint64
	balances := make(map[Principal]uint64, len(s.Balances))
	for p, v := range s.Balances {
		if v > math.MaxUint64-sum {
			return nil, fmt.Errorf("%w: balances overflow", ErrCorruptSnapshot)
		}
		sum += v
		balances[p] = v
	}
	if sum != s.TotalSupply {
		return nil, fmt.Errorf("%w: balances sum to %d, total supply is %d", ErrCorruptSnapshot, sum, s.TotalSupply)
	}

	allowances := make(map[Principal]map[Principal]uint64, len(s.Allowances))
	for owner, spenders := range s.Allowances {
		cp := make(map[Principal]uint64, len(spenders))
		for sp, v := range spenders {
			cp[sp] = v
		}
		allowances[owner] = cp
	}

	minters := make(map[Principal]struct{}, len(s.Minters)+1)
	for _, m := range s.Minters {
		minters[m] = struct{}{}
	}
	if _, ok := minters[s.Owner]; !ok {
		return nil, fmt.Errorf("%w: owner is not a minter", ErrCorruptSnapshot)
	}

	history := make([]Record, len(s.History))
	copy(history, s.History)

	return &Ledger{
		owner:       s.Owner,
		name:        s.Name,
		symbol:      s.Symbol,
		decimals:    s.Decimals,
		totalSupply: s.TotalSupply,
		balances:    balances,
		allowances:  allowances,
		minters:     minters,
		burntCycles: s.BurntCycles,
		history:     history,
	}, nil
}
