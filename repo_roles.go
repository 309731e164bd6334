package auth

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RoleRepository is the bun RoleStore. Name uniqueness is enforced per
// scope column, see ScopeKey.
type RoleRepository struct {
	db *bun.DB
}

var _ RoleStore = (*RoleRepository)(nil)

func NewRoleRepository(db *bun.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) FindByID(ctx context.Context, id uuid.UUID) (*Role, error) {
	record := &Role{}
	err := idb(ctx, r.db).NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, recordNotFound(err, map[string]any{"role_id": id.String()})
	}
	return normalizeRoleRecord(record), nil
}

func (r *RoleRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Role, error) {
	if len(ids) == 0 {
		return []*Role{}, nil
	}

	var records []*Role
	err := idb(ctx, r.db).NewSelect().
		Model(&records).
		Where("?TableAlias.id IN (?)", bun.In(ids)).
		Order("name ASC").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}
	for _, record := range records {
		normalizeRoleRecord(record)
	}
	return records, nil
}

func (r *RoleRepository) FindByName(ctx context.Context, name string, tenantID *uuid.UUID) (*Role, error) {
	record := &Role{}
	err := idb(ctx, r.db).NewSelect().
		Model(record).
		Where("?TableAlias.scope = ?", ScopeKey(tenantID)).
		Where("?TableAlias.name = ?", strings.TrimSpace(name)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, recordNotFound(err, map[string]any{"name": name, "scope": ScopeKey(tenantID)})
	}
	return normalizeRoleRecord(record), nil
}

func (r *RoleRepository) FindByTenant(ctx context.Context, tenantID *uuid.UUID) ([]*Role, error) {
	var records []*Role
	err := idb(ctx, r.db).NewSelect().
		Model(&records).
		Where("?TableAlias.scope = ?", ScopeKey(tenantID)).
		Order("name ASC").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}
	for _, record := range records {
		normalizeRoleRecord(record)
	}
	return records, nil
}

func (r *RoleRepository) Save(ctx context.Context, role *Role) error {
	role.Scope = ScopeKey(role.TenantID)
	if role.PermissionIDs == nil {
		role.PermissionIDs = []uuid.UUID{}
	}

	_, err := idb(ctx, r.db).NewInsert().
		Model(role).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("description = EXCLUDED.description").
		Set("permission_ids = EXCLUDED.permission_ids").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *RoleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := idb(ctx, r.db).NewDelete().
		Model((*Role)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"role_id": id.String(),
			})
	}
	return nil
}

func (r *RoleRepository) Exists(ctx context.Context, name string, tenantID *uuid.UUID) (bool, error) {
	return idb(ctx, r.db).NewSelect().
		Model((*Role)(nil)).
		Where("?TableAlias.scope = ?", ScopeKey(tenantID)).
		Where("?TableAlias.name = ?", strings.TrimSpace(name)).
		Exists(ctx)
}

func normalizeRoleRecord(role *Role) *Role {
	if role.PermissionIDs == nil {
		role.PermissionIDs = []uuid.UUID{}
	}
	return role
}
