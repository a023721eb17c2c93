package domain

// Checkpoint is the vault's per-period withdrawal ceiling.
// A withdrawal that would push SpentInPeriod above Amount is rejected,
// never clamped. The period resets once PeriodBlocks have elapsed since
// LastWithdrawBlock.
type Checkpoint struct {
	Amount            float64 // ceiling on total withdrawals per period
	PeriodBlocks      uint64
	SpentInPeriod     float64
	LastWithdrawBlock uint64
}

// Expired reports whether the current period has elapsed at block.
func (c *Checkpoint) Expired(block uint64) bool {
	return block-c.LastWithdrawBlock >= c.PeriodBlocks
}

// Allows reports whether withdrawing amount at block fits under the
// ceiling. A zero Amount disables the checkpoint.
func (c *Checkpoint) Allows(amount float64, block uint64) bool {
	if c.Amount == 0 {
		return true
	}
	spent := c.SpentInPeriod
	if c.Expired(block) {
		spent = 0
	}
	return spent+amount <= c.Amount
}
