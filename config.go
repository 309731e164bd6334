package auth

import (
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// Config holds auth options. Zero durations fall back to the defaults.
type Config struct {
	SigningKey           string        `env:"AUTH_SIGNING_KEY"`
	Issuer               string        `env:"AUTH_ISSUER"                 envDefault:"go-auth-rbac"`
	Audience             []string      `env:"AUTH_AUDIENCE"               envSeparator:","`
	AccessTokenTTL       time.Duration `env:"AUTH_ACCESS_TOKEN_TTL"       envDefault:"1h"`
	RefreshTokenTTL      time.Duration `env:"AUTH_REFRESH_TOKEN_TTL"      envDefault:"720h"`
	PasswordResetTTL     time.Duration `env:"AUTH_PASSWORD_RESET_TTL"     envDefault:"1h"`
	EmailVerificationTTL time.Duration `env:"AUTH_EMAIL_VERIFICATION_TTL" envDefault:"24h"`
	LockoutThreshold     int           `env:"AUTH_LOCKOUT_THRESHOLD"      envDefault:"5"`
	LockoutDuration      time.Duration `env:"AUTH_LOCKOUT_DURATION"       envDefault:"30m"`
	RequireVerifiedEmail bool          `env:"AUTH_REQUIRE_VERIFIED_EMAIL" envDefault:"false"`
	DefaultPhoneRegion   string        `env:"AUTH_DEFAULT_PHONE_REGION"   envDefault:"US"`
	CommandTimeout       time.Duration `env:"AUTH_COMMAND_TIMEOUT"        envDefault:"10s"`
}

// DefaultConfig returns the defaults without a signing key.
func DefaultConfig() Config {
	return Config{
		Issuer:               "go-auth-rbac",
		AccessTokenTTL:       DefaultAccessTokenTTL,
		RefreshTokenTTL:      DefaultRefreshTokenTTL,
		PasswordResetTTL:     DefaultPasswordResetTTL,
		EmailVerificationTTL: DefaultEmailVerificationTTL,
		LockoutThreshold:     DefaultLockoutPolicy.Threshold,
		LockoutDuration:      DefaultLockoutPolicy.Duration,
		DefaultPhoneRegion:   "US",
		CommandTimeout:       10 * time.Second,
	}
}

// LoadConfigFromEnv parses AUTH_* variables on top of the defaults.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse auth configuration").
			WithTextCode(TextCodeInvalidConfig)
	}
	return cfg.withDefaults(), cfg.Validate()
}

// Validate checks the options that have no safe default.
func (c Config) Validate() error {
	if len(c.SigningKey) < 32 {
		return goerrors.New("signing key must be at least 32 bytes", goerrors.CategoryBadInput).
			WithTextCode(TextCodeInvalidConfig)
	}
	if c.LockoutThreshold < 1 {
		return goerrors.New("lockout threshold must be positive", goerrors.CategoryBadInput).
			WithTextCode(TextCodeInvalidConfig)
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Issuer == "" {
		c.Issuer = def.Issuer
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = def.AccessTokenTTL
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = def.RefreshTokenTTL
	}
	if c.PasswordResetTTL <= 0 {
		c.PasswordResetTTL = def.PasswordResetTTL
	}
	if c.EmailVerificationTTL <= 0 {
		c.EmailVerificationTTL = def.EmailVerificationTTL
	}
	if c.LockoutThreshold <= 0 {
		c.LockoutThreshold = def.LockoutThreshold
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = def.LockoutDuration
	}
	if c.DefaultPhoneRegion == "" {
		c.DefaultPhoneRegion = def.DefaultPhoneRegion
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = def.CommandTimeout
	}
	return c
}

// LockoutPolicy derives the lockout rules from the config.
func (c Config) LockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Threshold: c.LockoutThreshold,
		Duration:  c.LockoutDuration,
	}.normalized()
}
