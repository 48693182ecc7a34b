package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

const (
	MinWorkers = 1
	MaxWorkers = 20

	MinPasswordLength = 8
	MaxPasswordLength = 128
)

func ValidateWorkerCount(workers int) error {
	if workers < MinWorkers || workers > MaxWorkers {
		return fmt.Errorf("worker count must be between %d and %d, got %d", MinWorkers, MaxWorkers, workers)
	}
	return nil
}

func ValidateNonEmptyString(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidateEmail accepts a bare address; display names are rejected.
func ValidateEmail(email string) error {
	if err := ValidateNonEmptyString("email", email); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return fmt.Errorf("invalid email address: %s", email)
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be between %d and %d characters", MinPasswordLength, MaxPasswordLength)
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return fmt.Errorf("password must contain at least one letter and one digit")
	}
	return nil
}

func ValidateVerificationCode(code string) error {
	if len(code) < 4 || len(code) > 8 {
		return fmt.Errorf("verification code must be 4 to 8 digits, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return fmt.Errorf("verification code must be 4 to 8 digits, got %q", code)
		}
	}
	return nil
}

func ValidateProvider(provider string, allowed []string) error {
	p := strings.ToLower(strings.TrimSpace(provider))
	for _, a := range allowed {
		if p == a {
			return nil
		}
	}
	return fmt.Errorf("invalid provider: %s (must be one of: %s)", provider, strings.Join(allowed, ", "))
}
