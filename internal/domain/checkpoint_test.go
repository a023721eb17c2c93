package domain

import "testing"

func TestCheckpoint_AllowsUnderCeiling(t *testing.T) {
	c := Checkpoint{Amount: 500, PeriodBlocks: 1000, SpentInPeriod: 200, LastWithdrawBlock: 10}

	if !c.Allows(300, 20) {
		t.Error("spend reaching exactly the ceiling must be allowed")
	}
	if c.Allows(301, 20) {
		t.Error("spend above the ceiling must be rejected, not clamped")
	}
}

func TestCheckpoint_ZeroAmountDisables(t *testing.T) {
	c := Checkpoint{Amount: 0, PeriodBlocks: 1000, SpentInPeriod: 1e9}

	if !c.Allows(1e12, 1) {
		t.Error("zero ceiling must disable the checkpoint")
	}
}

func TestCheckpoint_PeriodReset(t *testing.T) {
	c := Checkpoint{Amount: 500, PeriodBlocks: 100, SpentInPeriod: 500, LastWithdrawBlock: 10}

	if c.Allows(1, 109) {
		t.Error("period still open, exhausted ceiling must reject")
	}
	if !c.Expired(110) {
		t.Error("period must expire once PeriodBlocks have elapsed")
	}
	if !c.Allows(500, 110) {
		t.Error("expired period must reset the spent amount")
	}
}
