package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Resolver computes effective permissions as the union of the granted
// permissions of a principal's roles. There is no role hierarchy.
type Resolver struct {
	roles       RoleStore
	permissions PermissionStore
}

func NewResolver(roles RoleStore, permissions PermissionStore) *Resolver {
	return &Resolver{roles: roles, permissions: permissions}
}

// EffectivePermissions loads roleIDs and unions their grants.
// Unknown role ids contribute nothing.
func (r *Resolver) EffectivePermissions(ctx context.Context, roleIDs []uuid.UUID) (PermissionSet, error) {
	set := NewPermissionSet()
	if len(roleIDs) == 0 {
		return set, nil
	}

	roles, err := r.roles.FindByIDs(ctx, dedupeIDs(roleIDs))
	if err != nil {
		return nil, infrastructureError(err, "failed to load roles")
	}

	for _, role := range roles {
		for _, id := range role.PermissionIDs {
			set[id] = struct{}{}
		}
	}
	return set, nil
}

// Can reports whether the roles grant permissionID.
func (r *Resolver) Can(ctx context.Context, roleIDs []uuid.UUID, permissionID uuid.UUID) (bool, error) {
	set, err := r.EffectivePermissions(ctx, roleIDs)
	if err != nil {
		return false, err
	}
	return set.Has(permissionID), nil
}

// CanCode resolves a resource:action code through the catalog first.
// Codes missing from the catalog are never granted.
func (r *Resolver) CanCode(ctx context.Context, roleIDs []uuid.UUID, code string) (bool, error) {
	if r.permissions == nil {
		return false, goerrors.New("resolver has no permission catalog", goerrors.CategoryInternal).
			WithTextCode(TextCodeInfrastructure)
	}

	permission, err := r.permissions.FindByCode(ctx, strings.ToLower(strings.TrimSpace(code)))
	if err != nil {
		if notFound(err) {
			return false, nil
		}
		return false, infrastructureError(err, "failed to load permission")
	}
	return r.Can(ctx, roleIDs, permission.ID)
}

// Authorize returns ErrPermissionDenied unless the roles grant permissionID.
func (r *Resolver) Authorize(ctx context.Context, roleIDs []uuid.UUID, permissionID uuid.UUID) error {
	ok, err := r.Can(ctx, roleIDs, permissionID)
	if err != nil {
		return err
	}
	if !ok {
		return permissionDenied(permissionID.String())
	}
	return nil
}

// AuthorizeCode is Authorize keyed by permission code.
func (r *Resolver) AuthorizeCode(ctx context.Context, roleIDs []uuid.UUID, code string) error {
	ok, err := r.CanCode(ctx, roleIDs, code)
	if err != nil {
		return err
	}
	if !ok {
		return permissionDenied(code)
	}
	return nil
}

// AuthorizeClaims checks the role ids carried by validated access claims.
func (r *Resolver) AuthorizeClaims(ctx context.Context, claims *AccessClaims, code string) error {
	if claims == nil {
		return ErrAccessTokenInvalid
	}
	return r.AuthorizeCode(ctx, claims.RoleUUIDs(), code)
}

func permissionDenied(permission string) error {
	return goerrors.New(ErrPermissionDenied.Message, goerrors.CategoryAuthz).
		WithTextCode(TextCodePermissionDenied).
		WithCode(goerrors.CodeForbidden).
		WithMetadata(map[string]any{"permission": permission})
}

// RoleSeed describes a role to provision. Permissions are codes; a single
// PermissionWildcard entry grants the whole catalog as it exists at seed time.
type RoleSeed struct {
	Name        string     `mapstructure:"name" json:"name"`
	Description string     `mapstructure:"description" json:"description"`
	TenantID    *uuid.UUID `mapstructure:"tenant_id" json:"tenant_id,omitempty"`
	System      bool       `mapstructure:"system" json:"system"`
	Permissions []string   `mapstructure:"permissions" json:"permissions"`
}

// PermissionSeed describes a catalog entry to provision.
type PermissionSeed struct {
	Resource    string `mapstructure:"resource" json:"resource"`
	Action      string `mapstructure:"action" json:"action"`
	Name        string `mapstructure:"name" json:"name"`
	Description string `mapstructure:"description" json:"description"`
}

// Seed is a provisioning document.
type Seed struct {
	Permissions []PermissionSeed `mapstructure:"permissions" json:"permissions"`
	Roles       []RoleSeed       `mapstructure:"roles" json:"roles"`
}

// SeedResult reports what a Seed run created.
type SeedResult struct {
	PermissionsCreated int
	RolesCreated       int
	RolesSkipped       int
}

// Provisioner creates catalog permissions and roles. It is idempotent:
// existing codes and role names are left untouched.
type Provisioner struct {
	roles       RoleStore
	permissions PermissionStore
	tx          Transactor
	logger      Logger
	now         Clock
}

func NewProvisioner(roles RoleStore, permissions PermissionStore, tx Transactor) *Provisioner {
	if tx == nil {
		tx = NoopTransactor
	}
	return &Provisioner{
		roles:       roles,
		permissions: permissions,
		tx:          tx,
		logger:      defLogger{},
		now:         systemClock,
	}
}

func (p *Provisioner) WithLogger(logger Logger) *Provisioner {
	if logger != nil {
		p.logger = logger
	}
	return p
}

func (p *Provisioner) WithClock(clock Clock) *Provisioner {
	if clock != nil {
		p.now = clock
	}
	return p
}

// Seed runs the document in one transaction.
func (p *Provisioner) Seed(ctx context.Context, seed Seed) (SeedResult, error) {
	var result SeedResult
	now := p.now()

	err := p.tx.RunInTx(ctx, func(ctx context.Context) error {
		for _, ps := range seed.Permissions {
			created, err := p.ensurePermission(ctx, ps, now)
			if err != nil {
				return err
			}
			if created {
				result.PermissionsCreated++
			}
		}

		for _, rs := range seed.Roles {
			created, err := p.ensureRole(ctx, rs, now)
			if err != nil {
				return err
			}
			if created {
				result.RolesCreated++
			} else {
				result.RolesSkipped++
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}

	p.logger.Info("provisioned %d permissions and %d roles (%d roles already present)",
		result.PermissionsCreated, result.RolesCreated, result.RolesSkipped)
	return result, nil
}

func (p *Provisioner) ensurePermission(ctx context.Context, ps PermissionSeed, now time.Time) (bool, error) {
	permission, err := NewPermission(ps.Resource, ps.Action, ps.Name, ps.Description, now)
	if err != nil {
		return false, err
	}

	if _, err := p.permissions.FindByCode(ctx, permission.Code); err == nil {
		return false, nil
	} else if !notFound(err) {
		return false, infrastructureError(err, "failed to look up permission")
	}

	if err := p.permissions.Save(ctx, permission); err != nil {
		return false, infrastructureError(err, "failed to save permission")
	}
	return true, nil
}

func (p *Provisioner) ensureRole(ctx context.Context, rs RoleSeed, now time.Time) (bool, error) {
	exists, err := p.roles.Exists(ctx, strings.TrimSpace(rs.Name), rs.TenantID)
	if err != nil {
		return false, infrastructureError(err, "failed to look up role")
	}
	if exists {
		return false, nil
	}

	permissionIDs, err := p.ExpandPermissions(ctx, rs.Permissions)
	if err != nil {
		return false, err
	}

	role, err := NewRole(rs.Name, rs.Description, permissionIDs, rs.TenantID, rs.System, now)
	if err != nil {
		return false, err
	}

	if err := p.roles.Save(ctx, role); err != nil {
		return false, infrastructureError(err, "failed to save role")
	}
	return true, nil
}

// ExpandPermissions turns seed codes into catalog ids. The wildcard is
// replaced by every catalog id; unknown codes fail with NotFound.
func (p *Provisioner) ExpandPermissions(ctx context.Context, codes []string) ([]uuid.UUID, error) {
	for _, code := range codes {
		if strings.TrimSpace(code) == PermissionWildcard {
			all, err := p.permissions.All(ctx)
			if err != nil {
				return nil, infrastructureError(err, "failed to load permission catalog")
			}
			ids := make([]uuid.UUID, 0, len(all))
			for _, perm := range all {
				ids = append(ids, perm.ID)
			}
			return dedupeIDs(ids), nil
		}
	}

	ids := make([]uuid.UUID, 0, len(codes))
	for _, code := range codes {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		perm, err := p.permissions.FindByCode(ctx, code)
		if err != nil {
			if notFound(err) {
				return nil, goerrors.New("unknown permission code", goerrors.CategoryNotFound).
					WithTextCode(TextCodePermissionNotFound).
					WithCode(goerrors.CodeNotFound).
					WithMetadata(map[string]any{"code": code})
			}
			return nil, infrastructureError(err, "failed to look up permission")
		}
		ids = append(ids, perm.ID)
	}
	return dedupeIDs(ids), nil
}
