package domain

// TxKind selects one of the vault's two independently numbered
// transaction logs.
type TxKind string

const (
	// TxPayout is an affiliate commission payout (a liability owed to a
	// third party).
	TxPayout TxKind = "PAYOUT"
	// TxFee is an operational revenue sweep. Fee transactions are
	// audited separately and never share a sequence with payouts.
	TxFee TxKind = "FEE"
)

// Valid reports whether k is a known transaction kind.
func (k TxKind) Valid() bool {
	return k == TxPayout || k == TxFee
}

// Transaction is one entry of a vault transaction log.
// Lifecycle: Pending -> confirmed (quorum reached) -> Executed.
// Executed is monotonic and ConfirmedBy only grows until execution.
type Transaction struct {
	Kind            TxKind
	ID              uint64 // kind-specific sequence, starts at 0
	Receiver        Address
	Amount          float64
	ConfirmedBy     map[Address]struct{} // owners that confirmed, at most once each
	Executed        bool
	CreatedAtBlock  uint64
	ExecutedAtBlock uint64 // 0 until executed
}

// Confirmations returns the number of distinct confirming owners.
func (t *Transaction) Confirmations() int {
	return len(t.ConfirmedBy)
}

// Clone returns a deep copy safe to hand to callers.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.ConfirmedBy = make(map[Address]struct{}, len(t.ConfirmedBy))
	for owner := range t.ConfirmedBy {
		c.ConfirmedBy[owner] = struct{}{}
	}
	return &c
}

// ExecutionReceipt describes one successful vault execution.
type ExecutionReceipt struct {
	Kind       TxKind
	ID         uint64
	Receiver   Address
	Amount     float64
	Block      uint64  // block at which the transfer happened
	NewBalance float64 // vault balance immediately after the debit
}
