package accounts

import (
	"fmt"
	"regexp"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// passwordPolicy validates password strength before hashing.
type passwordPolicy struct {
	minLength     int
	requireUpper  bool
	requireLower  bool
	requireNumber bool
}

func defaultPasswordPolicy() passwordPolicy {
	return passwordPolicy{
		minLength:     8,
		requireUpper:  true,
		requireLower:  true,
		requireNumber: true,
	}
}

func (p passwordPolicy) hash(password string) (string, error) {
	if err := p.validate(password); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

func (p passwordPolicy) compare(hashed, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
}

func (p passwordPolicy) validate(password string) error {
	if len(password) < p.minLength {
		return fmt.Errorf("%w: minimum length is %d characters", ErrWeakPassword, p.minLength)
	}

	var hasUpper, hasLower, hasNumber bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		}
	}

	if p.requireUpper && !hasUpper {
		return fmt.Errorf("%w: must contain at least one uppercase letter", ErrWeakPassword)
	}
	if p.requireLower && !hasLower {
		return fmt.Errorf("%w: must contain at least one lowercase letter", ErrWeakPassword)
	}
	if p.requireNumber && !hasNumber {
		return fmt.Errorf("%w: must contain at least one number", ErrWeakPassword)
	}
	return nil
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validEmail(email string) bool {
	return len(email) <= 255 && emailPattern.MatchString(email)
}
