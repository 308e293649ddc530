package httpserver

import (
	"strings"
	"testing"
)

func makeString(n int, c byte) string {
	return strings.Repeat(string(c), n)
}

func TestValidateUserID(t *testing.T) {
	cases := []struct {
		name  string
		id    string
		valid bool
		code  string
	}{
		{"empty", "", false, "REQUIRED"},
		{"too_long", makeString(101, 'a'), false, "TOO_LONG"},
		{"invalid_chars", "user$%", false, "INVALID_FORMAT"},
		{"valid", "user-123_ABC", true, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ValidateUserID(tc.id)
			if res.Valid != tc.valid {
				t.Fatalf("Valid=%v, want %v", res.Valid, tc.valid)
			}
			if !tc.valid {
				if len(res.Errors) != 1 || res.Errors[0].Code != tc.code {
					t.Fatalf("unexpected error: %+v", res.Errors)
				}
			}
		})
	}
}

func TestValidatePagination(t *testing.T) {
	if !ValidatePagination("", "").Valid {
		t.Fatalf("empty limit/offset should be valid (defaults apply downstream)")
	}
	if !ValidatePagination("50", "100").Valid {
		t.Fatalf("in-range limit/offset should be valid")
	}
	if res := ValidatePagination("0", "0"); res.Valid {
		t.Fatalf("limit=0 should be invalid")
	}
	if res := ValidatePagination("101", "0"); res.Valid {
		t.Fatalf("limit over 100 should be invalid")
	}
	if res := ValidatePagination("10", "-1"); res.Valid {
		t.Fatalf("negative offset should be invalid")
	}
}
