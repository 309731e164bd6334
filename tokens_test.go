package auth_test

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-rbac"
)

func TestGenerateOpaqueToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		value, err := auth.GenerateOpaqueToken()
		require.NoError(t, err)
		require.Len(t, value, auth.OpaqueTokenBytes*2)

		_, err = hex.DecodeString(value)
		require.NoError(t, err)

		require.False(t, seen[value], "duplicate token value")
		seen[value] = true
	}
}

func TestRefreshTokenValidity(t *testing.T) {
	clock := newTestClock()
	token, err := auth.NewRefreshToken(uuid.New(), time.Hour, clock.Now())
	require.NoError(t, err)

	assert.True(t, token.IsValid(clock.Now()))

	clock.Advance(time.Hour)
	assert.True(t, token.IsExpired(clock.Now()), "expiry is inclusive")
	assert.False(t, token.IsValid(clock.Now()))
}

func TestRefreshTokenRevokeOnce(t *testing.T) {
	now := newTestClock().Now()
	token, err := auth.NewRefreshToken(uuid.New(), time.Hour, now)
	require.NoError(t, err)

	assert.True(t, token.Revoke(now))
	assert.False(t, token.Revoke(now.Add(time.Second)))
	assert.True(t, token.IsRevoked())
	assert.False(t, token.IsValid(now))
	assert.Equal(t, now, *token.RevokedAt)
}

func TestOneTimeTokensMarkUsedOnce(t *testing.T) {
	now := newTestClock().Now()
	userID := uuid.New()

	reset, err := auth.NewPasswordResetToken(userID, time.Hour, now)
	require.NoError(t, err)
	assert.True(t, reset.IsValid(now))
	assert.True(t, reset.MarkUsed(now))
	assert.False(t, reset.MarkUsed(now))
	assert.False(t, reset.IsValid(now))

	verification, err := auth.NewEmailVerificationToken(userID, time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, userID, verification.UserID)
	assert.True(t, verification.MarkUsed(now))
	assert.True(t, verification.IsUsed())
	assert.False(t, verification.MarkUsed(now))
}
