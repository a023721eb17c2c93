// Package eligibility implements the commission eligibility engine:
// pure, deterministic queries over affiliate lead snapshots. The engine
// performs no I/O and never fails; malformed numeric inputs are coerced
// to zero before any arithmetic.
package eligibility

import (
	"math"
	"sort"

	"affiliate-vault/internal/domain"
)

// Default qualification thresholds.
const (
	DefaultMinDeposit = 300.0
	DefaultMinVolume  = 1.0
)

// validTriggerVolumeFloor is the hard volume floor for a deposit to be
// countable as a commission trigger. It applies on top of the caller's
// minVolume parameter and does not move with it.
const validTriggerVolumeFloor = 1.0

// PendingUser is one lead below threshold, annotated with how far it is
// from qualifying.
type PendingUser struct {
	Record         domain.UserRecord
	MissingDeposit float64
	MissingVolume  float64
}

// PotentialProfitReport lists leads that have not yet qualified and have
// had no money movement, with aggregate shortfalls.
type PotentialProfitReport struct {
	Users               []PendingUser
	TotalMissingDeposit float64
	TotalMissingVolume  float64
	AvgMissingDeposit   float64
	AvgMissingVolume    float64
}

// UntriggeredReport lists leads at or above threshold whose commission
// has not yet been triggered.
type UntriggeredReport struct {
	Users               []domain.UserRecord
	Count               int
	TotalNetDeposits    float64
	TotalVolume         float64
	ValidTriggerCount   int
	ValidTriggerAmount  float64
	PotentialCommission float64
}

// PotentialProfitUsers returns leads with withdrawals == 0 and
// commission == 0 that are still below either threshold. Once money has
// moved for a lead it is no longer "pending" and is excluded.
// A nil sortSpec leaves records in input order.
func PotentialProfitUsers(records []domain.UserRecord, minDeposit, minVolume float64, sortSpec *Sort) PotentialProfitReport {
	minDeposit = coerce(minDeposit)
	minVolume = coerce(minVolume)

	var report PotentialProfitReport
	for _, r := range records {
		deposits := coerce(r.NetDeposits)
		volume := coerce(r.Volume)
		if coerce(r.Withdrawals) != 0 || coerce(r.Commission) != 0 {
			continue
		}
		if deposits >= minDeposit && volume >= minVolume {
			continue
		}

		u := PendingUser{
			Record:         r,
			MissingDeposit: math.Max(0, minDeposit-deposits),
			MissingVolume:  math.Max(0, minVolume-volume),
		}
		report.Users = append(report.Users, u)
		report.TotalMissingDeposit += u.MissingDeposit
		report.TotalMissingVolume += u.MissingVolume
	}

	if n := len(report.Users); n > 0 {
		report.AvgMissingDeposit = report.TotalMissingDeposit / float64(n)
		report.AvgMissingVolume = report.TotalMissingVolume / float64(n)
	}

	if sortSpec != nil {
		sortPending(report.Users, *sortSpec)
	}
	return report
}

// UntriggeredDeposits returns leads sitting at or above both thresholds
// whose commission has not been converted yet. ValidTriggerCount and
// ValidTriggerAmount additionally require the hard volume floor of 1.
func UntriggeredDeposits(records []domain.UserRecord, minDeposit, minVolume float64) UntriggeredReport {
	minDeposit = coerce(minDeposit)
	minVolume = coerce(minVolume)

	var report UntriggeredReport
	for _, r := range records {
		deposits := coerce(r.NetDeposits)
		volume := coerce(r.Volume)
		if coerce(r.Withdrawals) != 0 || coerce(r.Commission) != 0 {
			continue
		}
		if deposits < minDeposit || volume < minVolume {
			continue
		}

		report.Users = append(report.Users, r)
		report.Count++
		report.TotalNetDeposits += deposits
		report.TotalVolume += volume

		if volume >= validTriggerVolumeFloor {
			report.ValidTriggerCount++
			report.ValidTriggerAmount += deposits
		}
	}

	report.PotentialCommission = report.ValidTriggerAmount
	return report
}

// sortPending orders users by the requested field comparator, ties
// broken by CEUserID so output is deterministic. A Sort built without
// ParseSort may carry an unknown field; those sort by CEUserID alone.
func sortPending(users []PendingUser, by Sort) {
	cmp, ok := comparators[by.Field]
	if !ok {
		cmp = func(a, b *PendingUser) int { return 0 }
	}
	sort.SliceStable(users, func(i, j int) bool {
		c := cmp(&users[i], &users[j])
		if c == 0 {
			c = compareStrings(users[i].Record.CEUserID, users[j].Record.CEUserID)
		}
		if by.Order == Descending {
			return c > 0
		}
		return c < 0
	})
}

// coerce maps NaN and infinities to 0 so a malformed backend field can
// never poison an aggregate.
func coerce(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
