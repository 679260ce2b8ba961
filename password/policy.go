package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrPolicy is matched by every [*PolicyError].
var ErrPolicy = errors.New("password does not meet policy")

// Policy is the strength rule applied to new passwords at registration,
// password change and reset. Lengths count Unicode code points.
type Policy struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPolicy requires 10 to 100 characters with at least one upper-case
// letter, lower-case letter, digit and special character.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      10,
		MaxLength:      100,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}
}

// PolicyError lists every rule a candidate password broke.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPolicy.Error(), strings.Join(e.Violations, "; "))
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicy
}

// Check returns nil when password satisfies p, otherwise a *PolicyError.
func (p Policy) Check(password string) error {
	var violations []string

	n := utf8.RuneCountInString(password)
	if p.MinLength > 0 && n < p.MinLength {
		violations = append(violations, fmt.Sprintf("must be at least %d characters", p.MinLength))
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		violations = append(violations, fmt.Sprintf("must be at most %d characters", p.MaxLength))
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || r == ' ':
			special = true
		}
	}
	if p.RequireUpper && !upper {
		violations = append(violations, "must contain an upper-case letter")
	}
	if p.RequireLower && !lower {
		violations = append(violations, "must contain a lower-case letter")
	}
	if p.RequireDigit && !digit {
		violations = append(violations, "must contain a digit")
	}
	if p.RequireSpecial && !special {
		violations = append(violations, "must contain a special character")
	}

	if len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}
	return nil
}
