package auth

import (
	"fmt"
	"unicode/utf8"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
)

const (
	defaultPasswordMinLength = 8
	defaultPasswordMaxLength = 128
)

// Minimal password policy: length bounds in characters
// Zero values are replaced with defaults
type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

func (p PasswordPolicy) withDefaults() PasswordPolicy {
	if p.MinLength <= 0 {
		p.MinLength = defaultPasswordMinLength
	}
	if p.MaxLength <= 0 {
		p.MaxLength = defaultPasswordMaxLength
	}
	return p
}

// Check returns error wrapping apperrors.ErrPolicyViolation if password is not acceptable
func (p PasswordPolicy) Check(password string) error {
	p = p.withDefaults()
	n := utf8.RuneCountInString(password)

	switch {
	case n == 0:
		return fmt.Errorf("%w: password is empty", apperrors.ErrPolicyViolation)
	case n < p.MinLength:
		return fmt.Errorf("%w: password must be at least %d characters", apperrors.ErrPolicyViolation, p.MinLength)
	case n > p.MaxLength:
		return fmt.Errorf("%w: password must be at most %d characters", apperrors.ErrPolicyViolation, p.MaxLength)
	}

	return nil
}
