package eligibility

import (
	"testing"

	"affiliate-vault/internal/domain"
)

func TestParseSort_RejectsUnknownField(t *testing.T) {
	if _, err := ParseSort("shoe_size", "asc"); err == nil {
		t.Error("expected error for unknown field")
	}
	if _, err := ParseSort("net_deposits", "sideways"); err == nil {
		t.Error("expected error for unknown order")
	}
}

func TestParseSort_DefaultsAscending(t *testing.T) {
	spec, err := ParseSort("volume", "")
	if err != nil {
		t.Fatalf("ParseSort: %v", err)
	}
	if spec.Order != Ascending {
		t.Errorf("expected ascending default, got %v", spec.Order)
	}
}

func TestSort_NumericField(t *testing.T) {
	records := []domain.UserRecord{
		{CEUserID: "u1", NetDeposits: 200},
		{CEUserID: "u2", NetDeposits: 50},
		{CEUserID: "u3", NetDeposits: 120},
	}

	spec, err := ParseSort("net_deposits", "desc")
	if err != nil {
		t.Fatalf("ParseSort: %v", err)
	}
	report := PotentialProfitUsers(records, 300, 1, spec)

	want := []string{"u1", "u3", "u2"}
	for i, id := range want {
		if report.Users[i].Record.CEUserID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, report.Users[i].Record.CEUserID)
		}
	}
}

func TestSort_StringFieldCaseInsensitive(t *testing.T) {
	records := []domain.UserRecord{
		{CEUserID: "u1", CustomerName: "bravo"},
		{CEUserID: "u2", CustomerName: "Alpha"},
		{CEUserID: "u3", CustomerName: "charlie"},
	}

	spec, err := ParseSort("customer_name", "asc")
	if err != nil {
		t.Fatalf("ParseSort: %v", err)
	}
	report := PotentialProfitUsers(records, 300, 1, spec)

	want := []string{"u2", "u1", "u3"}
	for i, id := range want {
		if report.Users[i].Record.CEUserID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, report.Users[i].Record.CEUserID)
		}
	}
}

func TestSort_DateField(t *testing.T) {
	records := []domain.UserRecord{
		{CEUserID: "u1", RegistrationDate: 3000},
		{CEUserID: "u2", RegistrationDate: 1000},
		{CEUserID: "u3", RegistrationDate: 2000},
	}

	spec, err := ParseSort("registration_date", "asc")
	if err != nil {
		t.Fatalf("ParseSort: %v", err)
	}
	report := PotentialProfitUsers(records, 300, 1, spec)

	want := []string{"u2", "u3", "u1"}
	for i, id := range want {
		if report.Users[i].Record.CEUserID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, report.Users[i].Record.CEUserID)
		}
	}
}

func TestSort_TiesBrokenByUserID(t *testing.T) {
	records := []domain.UserRecord{
		{CEUserID: "u2", NetDeposits: 100},
		{CEUserID: "u1", NetDeposits: 100},
	}

	spec, err := ParseSort("net_deposits", "asc")
	if err != nil {
		t.Fatalf("ParseSort: %v", err)
	}
	report := PotentialProfitUsers(records, 300, 1, spec)

	if report.Users[0].Record.CEUserID != "u1" {
		t.Errorf("expected u1 first on tie, got %s", report.Users[0].Record.CEUserID)
	}
}

func TestSort_UnknownFieldFallsBackToUserID(t *testing.T) {
	records := []domain.UserRecord{
		{CEUserID: "u2", NetDeposits: 200},
		{CEUserID: "u3", NetDeposits: 50},
		{CEUserID: "u1", NetDeposits: 120},
	}

	// A Sort built by hand skips ParseSort validation; an unknown field
	// must still produce the deterministic id order, not a panic.
	report := PotentialProfitUsers(records, 300, 1, &Sort{Field: SortField("shoe_size")})

	want := []string{"u1", "u2", "u3"}
	for i, id := range want {
		if report.Users[i].Record.CEUserID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, report.Users[i].Record.CEUserID)
		}
	}
}

func TestSort_DerivedFields(t *testing.T) {
	records := []domain.UserRecord{
		{CEUserID: "u1", NetDeposits: 250}, // missing 50
		{CEUserID: "u2", NetDeposits: 100}, // missing 200
	}

	spec, err := ParseSort("missing_deposit", "desc")
	if err != nil {
		t.Fatalf("ParseSort: %v", err)
	}
	report := PotentialProfitUsers(records, 300, 1, spec)

	if report.Users[0].Record.CEUserID != "u2" {
		t.Errorf("expected u2 first, got %s", report.Users[0].Record.CEUserID)
	}
}
