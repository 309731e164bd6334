package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PermissionRepository is the bun PermissionStore.
type PermissionRepository struct {
	db *bun.DB
}

var _ PermissionStore = (*PermissionRepository)(nil)

func NewPermissionRepository(db *bun.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*Permission, error) {
	record := &Permission{}
	err := idb(ctx, r.db).NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, recordNotFound(err, map[string]any{"permission_id": id.String()})
	}
	return record, nil
}

func (r *PermissionRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Permission, error) {
	if len(ids) == 0 {
		return []*Permission{}, nil
	}

	var records []*Permission
	err := idb(ctx, r.db).NewSelect().
		Model(&records).
		Where("?TableAlias.id IN (?)", bun.In(ids)).
		Order("code ASC").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}
	return records, nil
}

func (r *PermissionRepository) FindByCode(ctx context.Context, code string) (*Permission, error) {
	record := &Permission{}
	err := idb(ctx, r.db).NewSelect().
		Model(record).
		Where("?TableAlias.code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, recordNotFound(err, map[string]any{"code": code})
	}
	return record, nil
}

func (r *PermissionRepository) All(ctx context.Context) ([]*Permission, error) {
	var records []*Permission
	err := idb(ctx, r.db).NewSelect().
		Model(&records).
		Order("code ASC").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}
	return records, nil
}

// Save inserts a permission. Only the description of an existing code
// is updated.
func (r *PermissionRepository) Save(ctx context.Context, permission *Permission) error {
	_, err := idb(ctx, r.db).NewInsert().
		Model(permission).
		On("CONFLICT (id) DO UPDATE").
		Set("description = EXCLUDED.description").
		Exec(ctx)
	return err
}
