package auth

import (
	"errors"
	"unicode"
	"unicode/utf8"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest plaintext the policy accepts.
const MinPasswordLength = 8

// bcrypt ignores input past 72 bytes.
const maxPasswordBytes = 72

// Password holds a one-way bcrypt hash. Plaintext is never retained.
type Password struct {
	hash string
}

// NewPassword checks plaintext against the policy and hashes it.
func NewPassword(plaintext string) (Password, error) {
	if violations := CheckPasswordPolicy(plaintext); len(violations) > 0 {
		return Password{}, validationError("password does not meet policy", TextCodeWeakPassword, map[string]any{
			"violations": violations,
		})
	}

	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), passwordHashCost())
	if err != nil {
		return Password{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	return Password{hash: string(h)}, nil
}

// PasswordFromHash rebuilds a Password from a stored hash.
func PasswordFromHash(hash string) Password {
	return Password{hash: hash}
}

// CheckPasswordPolicy returns the list of violated rules, empty when the
// plaintext is acceptable.
func CheckPasswordPolicy(plaintext string) []string {
	var violations []string

	if utf8.RuneCountInString(plaintext) < MinPasswordLength {
		violations = append(violations, "min_length")
	}
	if len(plaintext) > maxPasswordBytes {
		violations = append(violations, "max_length")
	}

	var upper, lower, digit bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}

	if !upper {
		violations = append(violations, "uppercase")
	}
	if !lower {
		violations = append(violations, "lowercase")
	}
	if !digit {
		violations = append(violations, "digit")
	}

	return violations
}

// Verify reports whether plaintext matches the stored hash.
func (p Password) Verify(plaintext string) bool {
	return ComparePasswordAndHash(plaintext, p.hash) == nil
}

func (p Password) Hash() string { return p.hash }

func (p Password) IsZero() bool { return p.hash == "" }

// ErrMismatchedHashAndPassword is returned when a plaintext does not match.
var ErrMismatchedHashAndPassword = errors.New("password does not match hash")

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if hash == "" {
		return ErrMismatchedHashAndPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}
