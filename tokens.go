package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// OpaqueTokenBytes is the entropy of every generated token value.
const OpaqueTokenBytes = 32

const (
	DefaultAccessTokenTTL       = time.Hour
	DefaultRefreshTokenTTL      = 30 * 24 * time.Hour
	DefaultPasswordResetTTL     = time.Hour
	DefaultEmailVerificationTTL = 24 * time.Hour
)

// GenerateOpaqueToken returns 32 random bytes hex encoded (64 characters).
func GenerateOpaqueToken() (string, error) {
	buf := make([]byte, OpaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random bytes for token").
			WithTextCode(TextCodeInfrastructure)
	}
	return hex.EncodeToString(buf), nil
}

func newOpaqueToken(userID uuid.UUID, ttl time.Duration, now time.Time) (OpaqueToken, error) {
	value, err := GenerateOpaqueToken()
	if err != nil {
		return OpaqueToken{}, err
	}
	return OpaqueToken{
		ID:        uuid.New(),
		Value:     value,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, nil
}

// IsExpired reports whether now is at or past the expiry.
func (t OpaqueToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// NewRefreshToken issues a refresh token for userID valid for ttl.
func NewRefreshToken(userID uuid.UUID, ttl time.Duration, now time.Time) (*RefreshToken, error) {
	base, err := newOpaqueToken(userID, ttl, now)
	if err != nil {
		return nil, err
	}
	return &RefreshToken{OpaqueToken: base}, nil
}

func (t *RefreshToken) IsRevoked() bool { return t.RevokedAt != nil }

// IsValid is true iff the token is unexpired and unrevoked.
func (t *RefreshToken) IsValid(now time.Time) bool {
	return !t.IsExpired(now) && !t.IsRevoked()
}

// Revoke sets the terminal flag. It returns false if already revoked.
func (t *RefreshToken) Revoke(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	at := now
	t.RevokedAt = &at
	return true
}

// NewPasswordResetToken issues a single-use reset token.
func NewPasswordResetToken(userID uuid.UUID, ttl time.Duration, now time.Time) (*PasswordResetToken, error) {
	base, err := newOpaqueToken(userID, ttl, now)
	if err != nil {
		return nil, err
	}
	return &PasswordResetToken{OpaqueToken: base}, nil
}

func (t *PasswordResetToken) IsUsed() bool { return t.UsedAt != nil }

func (t *PasswordResetToken) IsValid(now time.Time) bool {
	return !t.IsExpired(now) && !t.IsUsed()
}

// MarkUsed sets the terminal flag. It returns false if already used.
func (t *PasswordResetToken) MarkUsed(now time.Time) bool {
	if t.UsedAt != nil {
		return false
	}
	at := now
	t.UsedAt = &at
	return true
}

// NewEmailVerificationToken issues a single-use verification token.
func NewEmailVerificationToken(userID uuid.UUID, ttl time.Duration, now time.Time) (*EmailVerificationToken, error) {
	base, err := newOpaqueToken(userID, ttl, now)
	if err != nil {
		return nil, err
	}
	return &EmailVerificationToken{OpaqueToken: base}, nil
}

func (t *EmailVerificationToken) IsUsed() bool { return t.UsedAt != nil }

func (t *EmailVerificationToken) IsValid(now time.Time) bool {
	return !t.IsExpired(now) && !t.IsUsed()
}

func (t *EmailVerificationToken) MarkUsed(now time.Time) bool {
	if t.UsedAt != nil {
		return false
	}
	at := now
	t.UsedAt = &at
	return true
}

// oneTimeTokenError picks the validation error for a consumed or expired
// reset/verification token.
func oneTimeTokenError(expired, used bool) error {
	switch {
	case used:
		return ErrOneTimeTokenUsed
	case expired:
		return ErrOneTimeTokenExpired
	default:
		return nil
	}
}
