package validation

import (
	"strings"
	"testing"
)

func TestIsValidPartyID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"cl_1234", true},
		{"lw_abc.def-1", true},
		{"A", true},

		{"", false},
		{"_starts_with_underscore", false},
		{"has space", false},
		{"semi;colon", false},
		{strings.Repeat("a", 65), false},
	}

	for _, tc := range tests {
		if got := IsValidPartyID(tc.id); got != tc.valid {
			t.Errorf("IsValidPartyID(%q) = %v, want %v", tc.id, got, tc.valid)
		}
	}
}

func TestIsValidCurrency(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"usd", true},
		{"inr", true},
		{"eur", true},

		{"USD", false},
		{"us", false},
		{"usdd", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := IsValidCurrency(tc.code); got != tc.valid {
			t.Errorf("IsValidCurrency(%q) = %v, want %v", tc.code, got, tc.valid)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"nul\x00byte", 20, "nulbyte"},
	}

	for _, tc := range tests {
		if got := SanitizeString(tc.input, tc.maxLen); got != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, got, tc.expected)
		}
	}
}

func TestValidateCollectsFailures(t *testing.T) {
	errs := Validate(
		Required("client_id", ""),
		ValidPartyID("lawyer_id", "bad id"),
		PositiveAmount("amount", 0),
		ValidCurrency("currency", "usd"),
	)
	if len(errs) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(errs), errs)
	}
	if errs.Error() != "client_id: is required" {
		t.Errorf("Error() = %q", errs.Error())
	}
}

func TestValidateAllPass(t *testing.T) {
	errs := Validate(
		Required("client_id", "cl_1"),
		ValidPartyID("client_id", "cl_1"),
		PositiveAmount("amount", 10000),
		ValidCurrency("currency", ""),
		MaxLength("description", "short", 100),
	)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}
