package domain

import (
	"strings"
	"unicode/utf8"
)

// ValidatePassword checks the length rule and, when confirm is non-nil, that
// both entries match.
func ValidatePassword(password string, confirm *string) error {
	if confirm != nil && password != *confirm {
		return ErrPasswordMismatch
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// Blank reports whether s holds nothing but whitespace.
func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
