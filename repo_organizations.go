package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// OrganizationRepository is the SQL TenantDirectory.
type OrganizationRepository struct {
	db *bun.DB
}

var _ TenantDirectory = (*OrganizationRepository)(nil)

func NewOrganizationRepository(db *bun.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) Exists(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	return idb(ctx, r.db).NewSelect().
		Model((*Organization)(nil)).
		Where("?TableAlias.id = ?", tenantID).
		Exists(ctx)
}

// Create registers an organization reference.
func (r *OrganizationRepository) Create(ctx context.Context, name string, now time.Time) (*Organization, error) {
	org := &Organization{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		CreatedAt: now,
	}
	if _, err := idb(ctx, r.db).NewInsert().Model(org).Exec(ctx); err != nil {
		return nil, err
	}
	return org, nil
}
