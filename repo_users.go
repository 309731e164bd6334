package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRepository is the bun UserStore. Writes are full upserts because
// partial ORM updates skip zero values (failed login counters, nil locks).
type UserRepository struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ UserStore = (*UserRepository)(nil)

func NewUserRepository(db *bun.DB) *UserRepository {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &UserRepository{
		Repository: repo,
		db:         db,
	}
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	record := &User{}
	err := idb(ctx, r.db).NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, recordNotFound(err, map[string]any{"id": id.String()})
	}
	return normalizeUserRecord(record), nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email Email) (*User, error) {
	record, err := r.Repository.GetByIdentifierTx(ctx, idb(ctx, r.db), email.String())
	if err != nil {
		return nil, recordNotFound(err, map[string]any{"email": email.String()})
	}
	return normalizeUserRecord(record), nil
}

// Exists includes soft deleted rows, their email stays reserved.
func (r *UserRepository) Exists(ctx context.Context, email Email) (bool, error) {
	return idb(ctx, r.db).NewSelect().
		Model((*User)(nil)).
		WhereAllWithDeleted().
		Where("?TableAlias.email = ?", email.String()).
		Exists(ctx)
}

func (r *UserRepository) Save(ctx context.Context, user *User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.RoleIDs == nil {
		user.RoleIDs = []uuid.UUID{}
	}

	_, err := idb(ctx, r.db).NewInsert().
		Model(user).
		On("CONFLICT (id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("password_hash = EXCLUDED.password_hash").
		Set("first_name = EXCLUDED.first_name").
		Set("last_name = EXCLUDED.last_name").
		Set("phone_number = EXCLUDED.phone_number").
		Set("tenant_id = EXCLUDED.tenant_id").
		Set("is_active = EXCLUDED.is_active").
		Set("email_verified_at = EXCLUDED.email_verified_at").
		Set("role_ids = EXCLUDED.role_ids").
		Set("failed_logins = EXCLUDED.failed_logins").
		Set("locked_until = EXCLUDED.locked_until").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// Delete soft deletes the user.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := idb(ctx, r.db).NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}
	return nil
}

// ResetLoginCountersSQL clears lockout state for every user whose lock has elapsed.
var ResetLoginCountersSQL = `UPDATE "users"
SET
	"failed_logins" = 0,
	"locked_until" = NULL
WHERE
	"deleted_at" IS NULL
AND "locked_until" IS NOT NULL
AND "locked_until" <= ?;`

// ReconcileExpiredLocks is a maintenance sweep for the lockout columns.
// Login reconciles on read, so this only keeps reporting queries honest.
func (r *UserRepository) ReconcileExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	res, err := idb(ctx, r.db).NewRaw(ResetLoginCountersSQL, now).Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func normalizeUserRecord(u *User) *User {
	if u.RoleIDs == nil {
		u.RoleIDs = []uuid.UUID{}
	}
	return u
}

func recordNotFound(err error, metadata map[string]any) error {
	if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
		return repository.NewRecordNotFound().WithMetadata(metadata)
	}
	return err
}
