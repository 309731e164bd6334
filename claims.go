package auth

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims is the signed, stateless payload issued on Login and Refresh.
// Role names are denormalized next to the ids for cheap guard checks.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email    string         `json:"email"`
	TenantID string         `json:"tid,omitempty"`
	RoleIDs  []string       `json:"rids"`
	Roles    []string       `json:"roles"`
	Metadata map[string]any `json:"metadata,omitempty"` // extension payload
}

// UserID parses the subject.
func (c *AccessClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Tenant returns the tenant id, nil for global principals.
func (c *AccessClaims) Tenant() *uuid.UUID {
	if c.TenantID == "" {
		return nil
	}
	id, err := uuid.Parse(c.TenantID)
	if err != nil {
		return nil
	}
	return &id
}

// RoleUUIDs parses the role id claim, skipping malformed entries.
func (c *AccessClaims) RoleUUIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(c.RoleIDs))
	for _, raw := range c.RoleIDs {
		if id, err := uuid.Parse(raw); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// HasRole checks the denormalized role names.
func (c *AccessClaims) HasRole(name string) bool {
	return slices.Contains(c.Roles, name)
}

func (c *AccessClaims) HasRoleID(id uuid.UUID) bool {
	return slices.Contains(c.RoleIDs, id.String())
}

// Expires returns the expiration time
func (c *AccessClaims) Expires() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// Issued returns the issued at time
func (c *AccessClaims) Issued() time.Time {
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

func newAccessClaims(user *User, roles []*Role, issuer string, audience []string, ttl time.Duration, now time.Time) *AccessClaims {
	var aud jwt.ClaimStrings
	if len(audience) > 0 {
		aud = make(jwt.ClaimStrings, len(audience))
		copy(aud, audience)
	}

	roleIDs := make([]string, 0, len(user.RoleIDs))
	for _, id := range user.RoleIDs {
		roleIDs = append(roleIDs, id.String())
	}

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	slices.Sort(names)

	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   user.ID.String(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:   user.Email,
		RoleIDs: roleIDs,
		Roles:   names,
	}

	if user.TenantID != nil {
		claims.TenantID = user.TenantID.String()
	}

	return claims
}
