package domain

// UserRecord is one affiliate lead as reported by the backend.
// Immutable snapshot; the eligibility engine never mutates it.
type UserRecord struct {
	CEUserID          string  // backend lead identifier
	CustomerName      string
	Country           string
	NetDeposits       float64 // cumulative deposits minus reversals, >= 0
	Volume            float64 // cumulative traded lots, >= 0
	Commission        float64 // already paid-out-eligible amount, >= 0
	Withdrawals       float64 // >= 0
	RegistrationDate  int64   // Unix timestamp in milliseconds
	QualificationDate int64   // Unix timestamp in milliseconds, 0 if not qualified
	TrackingCode      string  // default vs custom attribution label
}
