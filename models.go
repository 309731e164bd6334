package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account aggregate. Mutate it through its methods so the
// lockout and role-set invariants hold.
type User struct {
	bun.BaseModel   `bun:"table:users,alias:usr"`
	ID              uuid.UUID   `bun:"id,pk,type:uuid" json:"id"`
	Email           string      `bun:"email,notnull,unique" json:"email"`
	PasswordHash    string      `bun:"password_hash,notnull" json:"-"`
	FirstName       string      `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName        string      `bun:"last_name,notnull" json:"last_name,omitempty"`
	Phone           string      `bun:"phone_number" json:"phone_number,omitempty"`
	TenantID        *uuid.UUID  `bun:"tenant_id,type:uuid" json:"tenant_id,omitempty"`
	Active          bool        `bun:"is_active,notnull" json:"is_active"`
	EmailVerifiedAt *time.Time  `bun:"email_verified_at" json:"email_verified_at,omitempty"`
	RoleIDs         []uuid.UUID `bun:"role_ids,type:jsonb" json:"role_ids"`
	FailedLogins    int         `bun:"failed_logins,notnull" json:"failed_logins"`
	LockedUntil     *time.Time  `bun:"locked_until" json:"locked_until,omitempty"`
	CreatedAt       time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time   `bun:"updated_at,notnull" json:"updated_at"`
	DeletedAt       *time.Time  `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// OpaqueToken is the shape shared by every persisted token kind.
type OpaqueToken struct {
	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Value     string    `bun:"value,notnull,unique" json:"-"`
	UserID    uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// RefreshToken is a rotating session credential.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rtk"`
	OpaqueToken
	RevokedAt *time.Time `bun:"revoked_at" json:"revoked_at,omitempty"`
	UserAgent string     `bun:"user_agent" json:"user_agent,omitempty"`
	IP        string     `bun:"ip" json:"ip,omitempty"`
}

// PasswordResetToken authorizes a single password reset.
type PasswordResetToken struct {
	bun.BaseModel `bun:"table:password_reset_tokens,alias:prt"`
	OpaqueToken
	UsedAt *time.Time `bun:"used_at" json:"used_at,omitempty"`
}

// EmailVerificationToken confirms ownership of the account email.
type EmailVerificationToken struct {
	bun.BaseModel `bun:"table:email_verification_tokens,alias:evt"`
	OpaqueToken
	UsedAt *time.Time `bun:"used_at" json:"used_at,omitempty"`
}

// Permission is an immutable catalog entry identified by a resource:action code.
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:perm"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Resource      string    `bun:"resource,notnull" json:"resource"`
	Action        string    `bun:"action,notnull" json:"action"`
	Code          string    `bun:"code,notnull,unique" json:"code"`
	Name          string    `bun:"name,notnull" json:"name"`
	Description   string    `bun:"description" json:"description,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Role bundles permission references. A nil TenantID is the global scope.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID   `bun:"id,pk,type:uuid" json:"id"`
	Name          string      `bun:"name,notnull" json:"name"`
	Description   string      `bun:"description" json:"description,omitempty"`
	TenantID      *uuid.UUID  `bun:"tenant_id,type:uuid" json:"tenant_id,omitempty"`
	Scope         string      `bun:"scope,notnull" json:"-"`
	IsSystem      bool        `bun:"is_system,notnull" json:"is_system"`
	PermissionIDs []uuid.UUID `bun:"permission_ids,type:jsonb" json:"permission_ids"`
	CreatedAt     time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time   `bun:"updated_at,notnull" json:"updated_at"`
}

// Organization backs the SQL tenant directory used when registering users
// into a tenant.
type Organization struct {
	bun.BaseModel `bun:"table:organizations,alias:org"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name          string    `bun:"name,notnull" json:"name"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}
