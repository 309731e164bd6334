package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-rbac"
)

func TestVerifyEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registered := env.register(t, "pepe@example.com")

	resp, err := env.svc.VerifyEmail(ctx, auth.VerifyEmailMessage{Token: registered.VerificationToken.Value})
	require.NoError(t, err)
	assert.False(t, resp.AlreadyVerified)
	assert.True(t, resp.User.IsEmailVerified())
	assert.True(t, env.reloadUser(t, registered.User.ID).IsEmailVerified())
	assert.Equal(t, 1, env.sink.Count(auth.ActivityEventEmailVerified))

	_, err = env.svc.VerifyEmail(ctx, auth.VerifyEmailMessage{Token: registered.VerificationToken.Value})
	assert.ErrorIs(t, err, auth.ErrOneTimeTokenUsed)
}

func TestVerifyEmailWithSecondTokenReportsAlreadyVerified(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registered := env.register(t, "pepe@example.com")

	_, err := env.svc.ResendVerification(ctx, auth.ResendVerificationMessage{Email: "pepe@example.com"})
	require.NoError(t, err)
	require.Len(t, env.notifier.verifications, 2)
	second := env.notifier.verifications[1]

	_, err = env.svc.VerifyEmail(ctx, auth.VerifyEmailMessage{Token: registered.VerificationToken.Value})
	require.NoError(t, err)

	resp, err := env.svc.VerifyEmail(ctx, auth.VerifyEmailMessage{Token: second.Value})
	require.NoError(t, err)
	assert.True(t, resp.AlreadyVerified)
	assert.Equal(t, 1, env.sink.Count(auth.ActivityEventEmailVerified))

	stored, err := env.repos.EmailVerifications().FindByValue(ctx, second.Value)
	require.NoError(t, err)
	assert.True(t, stored.IsUsed())
}

func TestVerifyEmailTokenErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registered := env.register(t, "pepe@example.com")

	_, err := env.svc.VerifyEmail(ctx, auth.VerifyEmailMessage{Token: "nope"})
	requireKind(t, auth.KindValidation, err)
	assert.ErrorIs(t, err, auth.ErrOneTimeTokenInvalid)

	env.clock.Advance(auth.DefaultEmailVerificationTTL)
	_, err = env.svc.VerifyEmail(ctx, auth.VerifyEmailMessage{Token: registered.VerificationToken.Value})
	assert.ErrorIs(t, err, auth.ErrOneTimeTokenExpired)
	assert.False(t, env.reloadUser(t, registered.User.ID).IsEmailVerified())
}

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registered := env.register(t, "pepe@example.com")
	require.Len(t, env.notifier.verifications, 1)

	unknown, err := env.svc.ResendVerification(ctx, auth.ResendVerificationMessage{Email: "nobody@example.com"})
	require.NoError(t, err)
	known, err := env.svc.ResendVerification(ctx, auth.ResendVerificationMessage{Email: "pepe@example.com"})
	require.NoError(t, err)
	assert.Equal(t, unknown, known)
	assert.Len(t, env.notifier.verifications, 2)

	// older tokens stay valid
	_, err = env.svc.VerifyEmail(ctx, auth.VerifyEmailMessage{Token: registered.VerificationToken.Value})
	require.NoError(t, err)

	_, err = env.svc.ResendVerification(ctx, auth.ResendVerificationMessage{Email: "pepe@example.com"})
	require.NoError(t, err)
	assert.Len(t, env.notifier.verifications, 2, "verified accounts get nothing")

	_, err = env.svc.ResendVerification(ctx, auth.ResendVerificationMessage{Email: "@@"})
	requireKind(t, auth.KindValidation, err)
}
