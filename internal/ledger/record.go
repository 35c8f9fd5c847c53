package ledger

// Record reasons attached to history entries.
const (
	ReasonTransferCyclesBurnt = "Cycles were burnt due to transfer fees or maintenance costs."
	ReasonTransferNoCycles    = "No cycles were burnt as no transfer fees applied."
	ReasonMint                = "Minting operation has no cycle burn cost."
)

// Record is a single history entry for a transfer or a mint.
type Record struct {
	From            Principal `json:"from"`
	To              Principal `json:"to"`
	Amount          uint64    `json:"amount"`
	PostBalanceFrom uint64    `json:"post_balance_from"`
	PostBalanceTo   uint64    `json:"post_balance_to"`
	CyclesBurnt     uint64    `json:"cycles_burnt"` // ledger-wide counter at the time of the operation
	Reason          string    `json:"reason"`
}

// IsMint reports whether the record was produced by Mint.
func (r Record) IsMint() bool { return r.Reason == ReasonMint }

// Entry is a committed record together with its zero-based position in the history.
type Entry struct {
	Index int `json:"index"`
	Record
}
