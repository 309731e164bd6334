package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// ErrAccessTokenInvalid is returned for unparseable, tampered or expired
// access tokens.
var ErrAccessTokenInvalid = goerrors.New("invalid access token", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccessTokenRejected).
	WithCode(goerrors.CodeUnauthorized)

// TokenService signs and validates access claims with HS256.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   []string
	ttl        time.Duration
	decorator  ClaimsDecorator
	logger     Logger
	now        Clock
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg Config, logger Logger) *TokenService {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   append([]string(nil), cfg.Audience...),
		ttl:        cfg.AccessTokenTTL,
		decorator:  noopClaimsDecorator{},
		logger:     logger,
		now:        systemClock,
	}
}

// WithClaimsDecorator configures a ClaimsDecorator for enriching tokens.
func (ts *TokenService) WithClaimsDecorator(decorator ClaimsDecorator) *TokenService {
	ts.decorator = normalizeClaimsDecorator(decorator)
	return ts
}

// WithClock overrides the time source used for iat/exp and validation.
func (ts *TokenService) WithClock(clock Clock) *TokenService {
	if clock != nil {
		ts.now = clock
	}
	return ts
}

// TTL is the access token lifetime.
func (ts *TokenService) TTL() time.Duration { return ts.ttl }

// Issue builds, decorates and signs access claims for user.
func (ts *TokenService) Issue(ctx context.Context, user *User, roles []*Role) (string, *AccessClaims, error) {
	claims := newAccessClaims(user, roles, ts.issuer, ts.audience, ts.ttl, ts.now())
	snapshot := captureImmutableClaims(claims)

	if err := normalizeClaimsDecorator(ts.decorator).Decorate(ctx, user, claims); err != nil {
		ts.logger.Error("claims decorator failed: %v", err)
		return "", nil, err
	}

	if err := snapshot.validate(claims); err != nil {
		ts.logger.Error("claims decorator mutated immutable claims: %v", err)
		return "", nil, err
	}

	signed, err := ts.Sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Sign signs arbitrary access claims with the configured key.
func (ts *TokenService) Sign(claims *AccessClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims
func (ts *TokenService) Validate(tokenString string) (*AccessClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service encountered unexpected signing method %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, ErrAccessTokenInvalid.Message).
			WithTextCode(TextCodeAccessTokenRejected).
			WithCode(goerrors.CodeUnauthorized)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrAccessTokenInvalid
	}
	return claims, nil
}
