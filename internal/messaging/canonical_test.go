package messaging

import (
	"errors"
	"testing"

	"github.com/GTaccount22/BackendBot/internal/models"
)

func TestCanonicalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+56912345678", "56912345678"},
		{"56912345678", "56912345678"},
		{"whatsapp:+56912345678", "56912345678"},
		{"+56 9 1234-5678", "56912345678"},
		{"(569) 1234.5678", "56912345678"},
	}
	for _, tc := range cases {
		got, err := canonicalizePhone(tc.in)
		if err != nil {
			t.Errorf("canonicalizePhone(%q) returned error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("canonicalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalizePhoneRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "  ", "12345", "1234567890123456", "56abc345678"} {
		if _, err := canonicalizePhone(in); err == nil {
			t.Errorf("canonicalizePhone(%q) = nil error, want rejection", in)
		}
	}
	if _, err := canonicalizePhone(""); !errors.Is(err, models.ErrEmptyRecipient) {
		t.Errorf("empty recipient error = %v, want ErrEmptyRecipient", err)
	}
}
