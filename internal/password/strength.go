package password

import (
	"errors"
	"fmt"
	"unicode"
)

// MinLength is the default minimum password length.
const MinLength = 8

var ErrWeakPassword = errors.New("password does not meet strength requirements")

// Strength rule messages. ValidateStrength reports every rule that fails.
const (
	RuleUppercase = "password must contain at least one uppercase letter"
	RuleLowercase = "password must contain at least one lowercase letter"
	RuleDigit     = "password must contain at least one digit"
	RuleSpecial   = "password must contain at least one special character"
)

// Policy holds the strength requirements.
type Policy struct {
	MinLength int
}

// DefaultPolicy requires MinLength characters and all four character classes.
func DefaultPolicy() Policy {
	return Policy{MinLength: MinLength}
}

// ValidateStrength checks password against the default policy.
func ValidateStrength(password string) (bool, []string) {
	return DefaultPolicy().Validate(password)
}

// Validate returns ok=false and the full list of violated rules.
func (p Policy) Validate(password string) (bool, []string) {
	minLen := p.MinLength
	if minLen < 1 {
		minLen = MinLength
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	length := 0
	for _, r := range password {
		length++
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			hasSpecial = true
		}
	}

	var reasons []string
	if length < minLen {
		reasons = append(reasons, fmt.Sprintf("password must be at least %d characters long", minLen))
	}
	if !hasUpper {
		reasons = append(reasons, RuleUppercase)
	}
	if !hasLower {
		reasons = append(reasons, RuleLowercase)
	}
	if !hasDigit {
		reasons = append(reasons, RuleDigit)
	}
	if !hasSpecial {
		reasons = append(reasons, RuleSpecial)
	}

	return len(reasons) == 0, reasons
}
