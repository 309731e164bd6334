package auth

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// local@domain.tld, no whitespace, a single @.
var emailGrammar = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Email is a normalized, validated email address. The zero value is not a
// valid address; use ParseEmail.
type Email struct {
	value string
}

// ParseEmail trims and lower-cases raw and validates the result.
func ParseEmail(raw string) (Email, error) {
	normalized := NormalizeEmail(raw)

	err := validation.Validate(normalized,
		validation.Required,
		validation.Length(3, 254),
		validation.Match(emailGrammar),
		is.Email,
	)
	if err != nil {
		return Email{}, validationError("invalid email address", TextCodeInvalidEmail, map[string]any{
			"reason": err.Error(),
		})
	}

	return Email{value: normalized}, nil
}

// MustParseEmail is ParseEmail for literals known to be valid.
func MustParseEmail(raw string) Email {
	e, err := ParseEmail(raw)
	if err != nil {
		panic(err)
	}
	return e
}

// NormalizeEmail applies the canonical form without validating.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func (e Email) String() string { return e.value }

func (e Email) IsZero() bool { return e.value == "" }

// Domain returns the part after the @.
func (e Email) Domain() string {
	if i := strings.LastIndexByte(e.value, '@'); i >= 0 {
		return e.value[i+1:]
	}
	return ""
}
