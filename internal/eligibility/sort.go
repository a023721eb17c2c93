package eligibility

import (
	"fmt"
	"strings"
)

// SortField is a closed enum of sortable pending-user fields. The
// original dashboard dispatched its comparator on the runtime type of
// the two values and silently returned 0 on a mismatch; here the
// comparator table is exhaustive over the enum and unknown field names
// are rejected up front.
type SortField string

const (
	SortByCustomerName     SortField = "customer_name"
	SortByCountry          SortField = "country"
	SortByNetDeposits      SortField = "net_deposits"
	SortByVolume           SortField = "volume"
	SortByMissingDeposit   SortField = "missing_deposit"
	SortByMissingVolume    SortField = "missing_volume"
	SortByRegistrationDate SortField = "registration_date"
)

// SortOrder is the direction of a sort.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

// Sort is a validated sorting specification. Build it with ParseSort.
type Sort struct {
	Field SortField
	Order SortOrder
}

// ParseSort validates a field name and order name ("asc"/"desc",
// default ascending) into a Sort.
func ParseSort(field, order string) (*Sort, error) {
	f := SortField(field)
	if _, ok := comparators[f]; !ok {
		return nil, fmt.Errorf("unknown sort field %q", field)
	}

	s := &Sort{Field: f}
	switch strings.ToLower(order) {
	case "", "asc":
		s.Order = Ascending
	case "desc":
		s.Order = Descending
	default:
		return nil, fmt.Errorf("unknown sort order %q", order)
	}
	return s, nil
}

// compareFunc is a three-way comparator over pending users.
type compareFunc func(a, b *PendingUser) int

// comparators maps every SortField to its comparator. Numeric and
// date-valued fields compare numerically, string fields compare
// case-insensitively.
var comparators = map[SortField]compareFunc{
	SortByCustomerName: func(a, b *PendingUser) int {
		return compareStrings(a.Record.CustomerName, b.Record.CustomerName)
	},
	SortByCountry: func(a, b *PendingUser) int {
		return compareStrings(a.Record.Country, b.Record.Country)
	},
	SortByNetDeposits: func(a, b *PendingUser) int {
		return compareFloats(coerce(a.Record.NetDeposits), coerce(b.Record.NetDeposits))
	},
	SortByVolume: func(a, b *PendingUser) int {
		return compareFloats(coerce(a.Record.Volume), coerce(b.Record.Volume))
	},
	SortByMissingDeposit: func(a, b *PendingUser) int {
		return compareFloats(a.MissingDeposit, b.MissingDeposit)
	},
	SortByMissingVolume: func(a, b *PendingUser) int {
		return compareFloats(a.MissingVolume, b.MissingVolume)
	},
	SortByRegistrationDate: func(a, b *PendingUser) int {
		return compareInts(a.Record.RegistrationDate, b.Record.RegistrationDate)
	},
}

func compareStrings(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
