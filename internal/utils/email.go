package utils

import (
	"strings"

	"github.com/badoux/checkmail"
)

// NormalizeEmail trims surrounding whitespace. Case is preserved because the
// identity provider treats addresses as opaque identifiers.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// ValidEmail reports whether email is a syntactically valid address. No
// network lookups are made.
func ValidEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, "/ \t\n") {
		return false
	}
	return checkmail.ValidateFormat(email) == nil
}
