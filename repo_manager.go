package auth

import (
	"context"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type txKey struct{}

// idb returns the transaction bound to ctx, or db.
func idb(ctx context.Context, db bun.IDB) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return db
}

// WithTx binds tx into ctx so every bun store picks it up.
func WithTx(ctx context.Context, tx bun.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// RepositoryManager exposes all bun backed stores
type RepositoryManager interface {
	repository.Validator
	Transactor
	Users() *UserRepository
	RefreshTokens() *RefreshTokenRepository
	PasswordResets() *PasswordResetTokenRepository
	EmailVerifications() *EmailVerificationTokenRepository
	Roles() *RoleRepository
	Permissions() *PermissionRepository
	Organizations() *OrganizationRepository
}

type mngr struct {
	db                 *bun.DB
	users              *UserRepository
	refreshTokens      *RefreshTokenRepository
	passwordResets     *PasswordResetTokenRepository
	emailVerifications *EmailVerificationTokenRepository
	roles              *RoleRepository
	permissions        *PermissionRepository
	organizations      *OrganizationRepository
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:                 db,
		users:              NewUserRepository(db),
		refreshTokens:      NewRefreshTokenRepository(db),
		passwordResets:     NewPasswordResetTokenRepository(db),
		emailVerifications: NewEmailVerificationTokenRepository(db),
		roles:              NewRoleRepository(db),
		permissions:        NewPermissionRepository(db),
		organizations:      NewOrganizationRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager requires a database")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.refreshTokens == nil || m.passwordResets == nil || m.emailVerifications == nil {
		return errors.New("token repositories should be initialized")
	}

	if m.roles == nil || m.permissions == nil {
		return errors.New("rbac repositories should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// RunInTx opens a transaction and binds it into ctx. Nested calls reuse
// the outer transaction.
func (m mngr) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}

	return m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(WithTx(ctx, tx))
	})
}

func (m mngr) Users() *UserRepository { return m.users }

func (m mngr) RefreshTokens() *RefreshTokenRepository { return m.refreshTokens }

func (m mngr) PasswordResets() *PasswordResetTokenRepository { return m.passwordResets }

func (m mngr) EmailVerifications() *EmailVerificationTokenRepository { return m.emailVerifications }

func (m mngr) Roles() *RoleRepository { return m.roles }

func (m mngr) Permissions() *PermissionRepository { return m.permissions }

func (m mngr) Organizations() *OrganizationRepository { return m.organizations }
