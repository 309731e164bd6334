package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// tokenTable holds the bun plumbing shared by the three token kinds.
// terminal is the column that flips once: revoked_at or used_at.
type tokenTable[T any] struct {
	db       *bun.DB
	terminal string
}

func (t tokenTable[T]) save(ctx context.Context, record *T) error {
	_, err := idb(ctx, t.db).NewInsert().Model(record).Exec(ctx)
	return err
}

func (t tokenTable[T]) findByValue(ctx context.Context, value string) (*T, error) {
	record := new(T)
	err := idb(ctx, t.db).NewSelect().
		Model(record).
		Where("?TableAlias.value = ?", value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, recordNotFound(err, map[string]any{"token": "value"})
	}
	return record, nil
}

// markTerminal is the compare-and-set: only the caller whose update
// matched an unset terminal column gets true.
func (t tokenTable[T]) markTerminal(ctx context.Context, value string, at time.Time) (bool, error) {
	res, err := idb(ctx, t.db).NewUpdate().
		Model((*T)(nil)).
		Set("? = ?", bun.Ident(t.terminal), at).
		Where("value = ?", value).
		Where("? IS NULL", bun.Ident(t.terminal)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RefreshTokenRepository is the bun RefreshTokenStore.
type RefreshTokenRepository struct {
	table tokenTable[RefreshToken]
}

var _ RefreshTokenStore = (*RefreshTokenRepository)(nil)

func NewRefreshTokenRepository(db *bun.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{table: tokenTable[RefreshToken]{db: db, terminal: "revoked_at"}}
}

func (r *RefreshTokenRepository) Save(ctx context.Context, token *RefreshToken) error {
	return r.table.save(ctx, token)
}

func (r *RefreshTokenRepository) FindByValue(ctx context.Context, value string) (*RefreshToken, error) {
	return r.table.findByValue(ctx, value)
}

func (r *RefreshTokenRepository) MarkRevoked(ctx context.Context, value string, at time.Time) (bool, error) {
	return r.table.markTerminal(ctx, value, at)
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int, error) {
	res, err := idb(ctx, r.table.db).NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked_at = ?", at).
		Where("user_id = ?", userID).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ActiveForUser lists the unrevoked, unexpired sessions of a user.
func (r *RefreshTokenRepository) ActiveForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*RefreshToken, error) {
	var records []*RefreshToken
	err := idb(ctx, r.table.db).NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.revoked_at IS NULL").
		Where("?TableAlias.expires_at > ?", now).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}
	return records, nil
}

// PasswordResetTokenRepository is the bun PasswordResetTokenStore.
type PasswordResetTokenRepository struct {
	table tokenTable[PasswordResetToken]
}

var _ PasswordResetTokenStore = (*PasswordResetTokenRepository)(nil)

func NewPasswordResetTokenRepository(db *bun.DB) *PasswordResetTokenRepository {
	return &PasswordResetTokenRepository{table: tokenTable[PasswordResetToken]{db: db, terminal: "used_at"}}
}

func (r *PasswordResetTokenRepository) Save(ctx context.Context, token *PasswordResetToken) error {
	return r.table.save(ctx, token)
}

func (r *PasswordResetTokenRepository) FindByValue(ctx context.Context, value string) (*PasswordResetToken, error) {
	return r.table.findByValue(ctx, value)
}

func (r *PasswordResetTokenRepository) MarkUsed(ctx context.Context, value string, at time.Time) (bool, error) {
	return r.table.markTerminal(ctx, value, at)
}

// EmailVerificationTokenRepository is the bun EmailVerificationTokenStore.
type EmailVerificationTokenRepository struct {
	table tokenTable[EmailVerificationToken]
}

var _ EmailVerificationTokenStore = (*EmailVerificationTokenRepository)(nil)

func NewEmailVerificationTokenRepository(db *bun.DB) *EmailVerificationTokenRepository {
	return &EmailVerificationTokenRepository{table: tokenTable[EmailVerificationToken]{db: db, terminal: "used_at"}}
}

func (r *EmailVerificationTokenRepository) Save(ctx context.Context, token *EmailVerificationToken) error {
	return r.table.save(ctx, token)
}

func (r *EmailVerificationTokenRepository) FindByValue(ctx context.Context, value string) (*EmailVerificationToken, error) {
	return r.table.findByValue(ctx, value)
}

func (r *EmailVerificationTokenRepository) MarkUsed(ctx context.Context, value string, at time.Time) (bool, error) {
	return r.table.markTerminal(ctx, value, at)
}
