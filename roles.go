package auth

import (
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
)

// GlobalScope is the scope key of roles without a tenant.
const GlobalScope = "global"

// ScopeKey returns the uniqueness scope for role names.
func ScopeKey(tenantID *uuid.UUID) string {
	if tenantID == nil || *tenantID == uuid.Nil {
		return GlobalScope
	}
	return tenantID.String()
}

// NewRole builds a role. Duplicate permission ids collapse into one.
func NewRole(name, description string, permissionIDs []uuid.UUID, tenantID *uuid.UUID, isSystem bool, now time.Time) (*Role, error) {
	name = strings.TrimSpace(name)
	if err := validateRoleName(name); err != nil {
		return nil, err
	}

	if tenantID != nil && *tenantID == uuid.Nil {
		tenantID = nil
	}

	return &Role{
		ID:            uuid.New(),
		Name:          name,
		Description:   strings.TrimSpace(description),
		TenantID:      tenantID,
		Scope:         ScopeKey(tenantID),
		IsSystem:      isSystem,
		PermissionIDs: dedupeIDs(permissionIDs),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func validateRoleName(name string) error {
	if err := validation.Validate(name, validation.Required, validation.Length(1, 100)); err != nil {
		return validationError("invalid role name", TextCodeInvalidRole, map[string]any{
			"reason": err.Error(),
		})
	}
	return nil
}

// RoleUpdate carries optional changes; nil fields are left as they are.
type RoleUpdate struct {
	Name        *string
	Description *string
}

// Update renames or re-describes the role.
func (r *Role) Update(update RoleUpdate, now time.Time) error {
	if r.IsSystem {
		return ErrSystemRole
	}

	name := r.Name
	if update.Name != nil {
		name = strings.TrimSpace(*update.Name)
		if err := validateRoleName(name); err != nil {
			return err
		}
	}

	r.Name = name
	if update.Description != nil {
		r.Description = strings.TrimSpace(*update.Description)
	}
	r.UpdatedAt = now
	return nil
}

// AddPermission grants id. It returns false when already granted.
func (r *Role) AddPermission(id uuid.UUID, now time.Time) (bool, error) {
	if r.IsSystem {
		return false, ErrSystemRole
	}
	if r.HasPermission(id) {
		return false, nil
	}
	r.PermissionIDs = sortedIDs(append(r.PermissionIDs, id))
	r.UpdatedAt = now
	return true, nil
}

// RemovePermission revokes id. It returns false when it was not granted.
func (r *Role) RemovePermission(id uuid.UUID, now time.Time) (bool, error) {
	if r.IsSystem {
		return false, ErrSystemRole
	}
	idx := slices.Index(r.PermissionIDs, id)
	if idx < 0 {
		return false, nil
	}
	r.PermissionIDs = slices.Delete(r.PermissionIDs, idx, idx+1)
	r.UpdatedAt = now
	return true, nil
}

// CanDelete fails for system roles.
func (r *Role) CanDelete() error {
	if r.IsSystem {
		return ErrSystemRole
	}
	return nil
}

func (r *Role) HasPermission(id uuid.UUID) bool {
	return slices.Contains(r.PermissionIDs, id)
}
