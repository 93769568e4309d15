package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
)

func TestPasswordPolicy(t *testing.T) {
	p := PasswordPolicy{}

	tests := []struct {
		name     string
		password string
		ok       bool
	}{
		{"empty", "", false},
		{"too short", "1234567", false},
		{"min length", "12345678", true},
		{"multibyte counted as characters", "пароль12", true},
		{"max length", strings.Repeat("a", 128), true},
		{"too long", strings.Repeat("a", 129), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Check(tt.password)

			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, apperrors.ErrPolicyViolation)
			}
		})
	}
}
