package tenant

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kiranshivaraju/keyhub/internal/apperr"
)

const (
	minNameLen       = 3
	maxNameLen       = 255
	maxEmailLen      = 255
	minPasswordLen   = 8
	maxPasswordLen   = 100
	passwordSpecials = "!@#$%^&*"
)

func invalid(msg string) error {
	return apperr.New(apperr.Validation, msg)
}

func validateRegister(in RegisterInput) (RegisterInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)

	if n := utf8.RuneCountInString(in.Name); n < minNameLen || n > maxNameLen {
		return in, invalid("Tenant name must be between 3 and 255 characters long")
	}
	if err := validateEmail(in.Email); err != nil {
		return in, err
	}
	if err := validatePassword(in.Password); err != nil {
		return in, err
	}
	return in, nil
}

func validateLogin(in LoginInput) (LoginInput, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateEmail(in.Email); err != nil {
		return in, err
	}
	if in.Password == "" {
		return in, invalid("Password is required")
	}
	return in, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" || len(email) > maxEmailLen {
		return invalid("Invalid email address")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalid("Invalid email address")
	}
	return nil
}

func validatePassword(pw string) error {
	if n := utf8.RuneCountInString(pw); n < minPasswordLen || n > maxPasswordLen {
		return invalid("Password must be between 8 and 100 characters long")
	}
	var upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !upper || !digit || !special {
		return invalid("Password must contain at least one uppercase letter, one number, and one special character (!@#$%^&*)")
	}
	return nil
}
