package auth

import (
	"context"
)

var userCtxKey = &contextKey{"user"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok && raw != nil
}

// WithClaimsContext sets validated access claims in the given context
func WithClaimsContext(ctx context.Context, claims *AccessClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// GetClaims extracts the access claims from the context
func GetClaims(ctx context.Context) (*AccessClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*AccessClaims)
	return raw, ok && raw != nil
}

// Can checks the claims stored in ctx against a permission code. Missing
// claims or resolver errors deny.
func Can(ctx context.Context, resolver *Resolver, code string) bool {
	claims, ok := GetClaims(ctx)
	if !ok || resolver == nil {
		return false
	}
	allowed, err := resolver.CanCode(ctx, claims.RoleUUIDs(), code)
	return err == nil && allowed
}

// AuthorizeContext is Authorize for claims already validated and stored
// with WithClaimsContext.
func (s *Service) AuthorizeContext(ctx context.Context, code string) (*AccessClaims, error) {
	claims, ok := GetClaims(ctx)
	if !ok {
		return nil, ErrAccessTokenInvalid
	}
	if err := s.resolver.AuthorizeClaims(ctx, claims, code); err != nil {
		return nil, err
	}
	return claims, nil
}
