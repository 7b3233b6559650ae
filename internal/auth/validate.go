package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/familyassistant/server/internal/apperr"
)

const (
	minPhoneLen    = 10
	maxPhoneLen    = 15
	minPasswordLen = 6
	// bcrypt ignores input past 72 bytes
	maxPasswordLen = 72
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CleanPhone keeps digits and "+" only
func CleanPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone cleans phone and checks its length
func NormalizePhone(phone string) (string, error) {
	cleaned := CleanPhone(phone)
	if cleaned == "" {
		return "", apperr.Validation("phone is required")
	}
	if len(cleaned) < minPhoneLen || len(cleaned) > maxPhoneLen {
		return "", apperr.Validation("phone must contain %d to %d digits", minPhoneLen, maxPhoneLen)
	}
	return cleaned, nil
}

// NormalizeEmail trims and lower-cases email and checks its shape
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(normalized) {
		return "", apperr.Validation("email is invalid")
	}
	return normalized, nil
}

func validatePassword(field, password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return apperr.Validation("%s must be at least %d characters", field, minPasswordLen)
	}
	if len(password) > maxPasswordLen {
		return apperr.Validation("%s must be at most %d bytes", field, maxPasswordLen)
	}
	return nil
}
