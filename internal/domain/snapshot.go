package domain

// EligibilitySnapshot is one persisted engine evaluation, kept as a
// history row so threshold changes and cohort drift can be charted.
// Corresponds to eligibility_snapshots table in ClickHouse.
type EligibilitySnapshot struct {
	SnapshotID string // deterministic hash, see idhash
	TakenAt    int64  // Unix timestamp in milliseconds

	MinDeposit float64
	MinVolume  float64

	// potentialProfitUsers aggregates
	PendingCount        int
	TotalMissingDeposit float64
	TotalMissingVolume  float64
	AvgMissingDeposit   float64
	AvgMissingVolume    float64

	// untriggeredDeposits aggregates
	UntriggeredCount    int
	TotalNetDeposits    float64
	TotalVolume         float64
	ValidTriggerCount   int
	ValidTriggerAmount  float64
	PotentialCommission float64
}

// PayoutAudit is one executed vault transaction in the append-only
// audit log. Corresponds to payout_audit table in PostgreSQL.
type PayoutAudit struct {
	AuditID    string // deterministic hash, see idhash
	Kind       TxKind
	TxID       uint64
	Receiver   string
	Amount     float64
	Block      uint64
	ExecutedAt int64 // Unix timestamp in milliseconds
}
