package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-rbac"
)

func TestDefaultConfig(t *testing.T) {
	cfg := auth.DefaultConfig()

	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 5, cfg.LockoutThreshold)
	assert.Equal(t, 30*time.Minute, cfg.LockoutDuration)
	assert.False(t, cfg.RequireVerifiedEmail)

	requireKind(t, auth.KindValidation, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AUTH_SIGNING_KEY", testSigningKey)
	t.Setenv("AUTH_ISSUER", "env-issuer")
	t.Setenv("AUTH_AUDIENCE", "web,mobile")
	t.Setenv("AUTH_ACCESS_TOKEN_TTL", "5m")
	t.Setenv("AUTH_LOCKOUT_THRESHOLD", "7")
	t.Setenv("AUTH_REQUIRE_VERIFIED_EMAIL", "true")

	cfg, err := auth.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, testSigningKey, cfg.SigningKey)
	assert.Equal(t, "env-issuer", cfg.Issuer)
	assert.Equal(t, []string{"web", "mobile"}, cfg.Audience)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7, cfg.LockoutThreshold)
	assert.True(t, cfg.RequireVerifiedEmail)
	assert.Equal(t, 24*time.Hour, cfg.EmailVerificationTTL)

	policy := cfg.LockoutPolicy()
	assert.Equal(t, 7, policy.Threshold)
	assert.Equal(t, 30*time.Minute, policy.Duration)
}

func TestLoadConfigFromEnvRejectsShortKey(t *testing.T) {
	t.Setenv("AUTH_SIGNING_KEY", "short")

	_, err := auth.LoadConfigFromEnv()
	requireKind(t, auth.KindValidation, err)
}

func TestLoadConfigFromEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("AUTH_SIGNING_KEY", testSigningKey)
	t.Setenv("AUTH_LOCKOUT_DURATION", "forever")

	_, err := auth.LoadConfigFromEnv()
	requireKind(t, auth.KindValidation, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	cfg.LockoutThreshold = 0
	requireKind(t, auth.KindValidation, cfg.Validate())
}
