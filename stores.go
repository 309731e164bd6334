package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Stores return ErrRecordNotFound (or any CategoryNotFound error) for
// lookups without a match. Any other error is treated as an
// infrastructure failure.

// UserStore persists the user aggregate.
type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email Email) (*User, error)
	Exists(ctx context.Context, email Email) (bool, error)
	// Save is a full upsert keyed by id.
	Save(ctx context.Context, user *User) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RefreshTokenStore persists refresh tokens.
type RefreshTokenStore interface {
	Save(ctx context.Context, token *RefreshToken) error
	FindByValue(ctx context.Context, value string) (*RefreshToken, error)
	// MarkRevoked is a conditional update: it returns true only for the
	// single caller that flipped the token from unrevoked to revoked.
	MarkRevoked(ctx context.Context, value string, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int, error)
}

// PasswordResetTokenStore persists reset tokens.
type PasswordResetTokenStore interface {
	Save(ctx context.Context, token *PasswordResetToken) error
	FindByValue(ctx context.Context, value string) (*PasswordResetToken, error)
	// MarkUsed returns true only for the caller that consumed the token.
	MarkUsed(ctx context.Context, value string, at time.Time) (bool, error)
}

// EmailVerificationTokenStore persists verification tokens.
type EmailVerificationTokenStore interface {
	Save(ctx context.Context, token *EmailVerificationToken) error
	FindByValue(ctx context.Context, value string) (*EmailVerificationToken, error)
	MarkUsed(ctx context.Context, value string, at time.Time) (bool, error)
}

// RoleStore persists roles. Name lookups are scoped by tenant, nil being
// the global scope.
type RoleStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Role, error)
	// FindByIDs returns the roles that exist; unknown ids are skipped.
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Role, error)
	FindByName(ctx context.Context, name string, tenantID *uuid.UUID) (*Role, error)
	FindByTenant(ctx context.Context, tenantID *uuid.UUID) ([]*Role, error)
	Save(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id uuid.UUID) error
	Exists(ctx context.Context, name string, tenantID *uuid.UUID) (bool, error)
}

// PermissionStore persists the permission catalog.
type PermissionStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Permission, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Permission, error)
	FindByCode(ctx context.Context, code string) (*Permission, error)
	All(ctx context.Context) ([]*Permission, error)
	Save(ctx context.Context, permission *Permission) error
}

// TenantDirectory answers whether an organization reference exists.
type TenantDirectory interface {
	Exists(ctx context.Context, tenantID uuid.UUID) (bool, error)
}

// Transactor runs fn as one unit of work. Stores sharing the transactor
// pick the transaction up from ctx.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TransactorFunc adapts a function to Transactor.
type TransactorFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func (f TransactorFunc) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

// NoopTransactor runs fn directly, for stores without transactions.
var NoopTransactor Transactor = TransactorFunc(func(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
})

type allowAllTenants struct{}

func (allowAllTenants) Exists(context.Context, uuid.UUID) (bool, error) { return true, nil }
