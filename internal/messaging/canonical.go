package messaging

import (
	"fmt"
	"strings"

	"github.com/GTaccount22/BackendBot/internal/models"
)

// canonicalizePhone reduces a recipient identifier to bare digits: it
// strips a "whatsapp:" prefix, a leading "+" and separator characters, and
// rejects anything that is not a plausible international number.
func canonicalizePhone(recipient string) (string, error) {
	r := strings.TrimSpace(recipient)
	if r == "" {
		return "", models.ErrEmptyRecipient
	}
	r = strings.TrimPrefix(r, "whatsapp:")
	r = strings.TrimPrefix(r, "+")
	r = strings.Map(func(c rune) rune {
		switch c {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return c
	}, r)

	if len(r) < 8 || len(r) > 15 {
		return "", fmt.Errorf("invalid phone number length: %q", recipient)
	}
	for _, c := range r {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("invalid phone number character in %q", recipient)
		}
	}
	return r, nil
}
