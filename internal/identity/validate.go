package identity

import (
	"regexp"

	"github.com/osokin-dev/gatehouse/internal/apperr"
)

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)
)

func validateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return apperr.New(apperr.KindValidation, "invalid email").WithDetail("field", "email")
	}
	return nil
}

// validatePassword enforces the minimum credential policy: at least 8
// characters with at least one letter and one digit.
func validatePassword(password string) error {
	if len(password) < 8 {
		return apperr.New(apperr.KindValidation, "password too short").WithDetail("field", "password")
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasLetter = true
		}
	}
	if !hasLetter || !hasDigit {
		return apperr.New(apperr.KindValidation, "password needs a letter and a digit").WithDetail("field", "password")
	}
	return nil
}

func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return apperr.New(apperr.KindValidation, "username must be 3-20 chars of letters, digits or underscore").
			WithDetail("field", "username")
	}
	return nil
}
