package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const TextCodeImmutableClaim = "IMMUTABLE_CLAIM_MUTATION"

// ErrImmutableClaimMutation is returned when a decorator touches protected claims.
var ErrImmutableClaimMutation = goerrors.New("immutable claim mutated", goerrors.CategoryInternal).
	WithTextCode(TextCodeImmutableClaim)

type immutableClaimsSnapshot struct {
	id        string
	subject   string
	issuer    string
	audience  []string
	issuedAt  time.Time
	expiresAt time.Time
	email     string
	tenantID  string
	roleIDs   []string
	roles     []string
}

func captureImmutableClaims(claims *AccessClaims) immutableClaimsSnapshot {
	return immutableClaimsSnapshot{
		id:        claims.ID,
		subject:   claims.Subject,
		issuer:    claims.Issuer,
		audience:  slices.Clone([]string(claims.Audience)),
		issuedAt:  numericTime(claims.IssuedAt),
		expiresAt: numericTime(claims.ExpiresAt),
		email:     claims.Email,
		tenantID:  claims.TenantID,
		roleIDs:   slices.Clone(claims.RoleIDs),
		roles:     slices.Clone(claims.Roles),
	}
}

func (snap immutableClaimsSnapshot) validate(claims *AccessClaims) error {
	switch {
	case claims.ID != snap.id:
		return immutableClaimViolation("jti")
	case claims.Subject != snap.subject:
		return immutableClaimViolation("sub")
	case claims.Issuer != snap.issuer:
		return immutableClaimViolation("iss")
	case !slices.Equal([]string(claims.Audience), snap.audience):
		return immutableClaimViolation("aud")
	case !numericTime(claims.IssuedAt).Equal(snap.issuedAt):
		return immutableClaimViolation("iat")
	case !numericTime(claims.ExpiresAt).Equal(snap.expiresAt):
		return immutableClaimViolation("exp")
	case claims.Email != snap.email:
		return immutableClaimViolation("email")
	case claims.TenantID != snap.tenantID:
		return immutableClaimViolation("tid")
	case !slices.Equal(claims.RoleIDs, snap.roleIDs):
		return immutableClaimViolation("rids")
	case !slices.Equal(claims.Roles, snap.roles):
		return immutableClaimViolation("roles")
	}
	return nil
}

func numericTime(date *jwt.NumericDate) time.Time {
	if date == nil {
		return time.Time{}
	}
	return date.Time
}

func immutableClaimViolation(field string) error {
	return goerrors.New(fmt.Sprintf("immutable claim mutated: %s", field), goerrors.CategoryInternal).
		WithTextCode(TextCodeImmutableClaim).
		WithMetadata(map[string]any{"claim": field})
}
