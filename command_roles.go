package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type CreateRoleMessage struct {
	Name          string                   `json:"name"`
	Description   string                   `json:"description"`
	TenantID      *uuid.UUID               `json:"tenant_id,omitempty"`
	PermissionIDs []uuid.UUID              `json:"permission_ids"`
	System        bool                     `json:"system"`
	Actor         ActorRef                 `json:"actor"`
	OnResponse    func(resp *RoleResponse) `json:"-"`
}

func (m CreateRoleMessage) Type() string { return "role.create" }

func (m CreateRoleMessage) respond(resp *RoleResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

// RoleResponse is shared by the role commands.
type RoleResponse struct {
	Role    *Role
	Changed bool
}

func NewCreateRoleHandler(s *Service) *CommandHandler[*RoleResponse, CreateRoleMessage] {
	return newHandler(s.CreateRole)
}

// CreateRole adds a role. Names are unique per tenant scope and every
// permission id must exist in the catalog.
func (s *Service) CreateRole(ctx context.Context, msg CreateRoleMessage) (*RoleResponse, error) {
	return run(ctx, s, msg.Type(), func(ctx context.Context) (*RoleResponse, error) {
		return s.createRole(ctx, msg)
	})
}

func (s *Service) createRole(ctx context.Context, msg CreateRoleMessage) (*RoleResponse, error) {
	now := s.now()
	role, err := NewRole(msg.Name, msg.Description, msg.PermissionIDs, msg.TenantID, msg.System, now)
	if err != nil {
		return nil, err
	}

	if err := s.checkTenant(ctx, role.TenantID); err != nil {
		return nil, err
	}

	err = s.inTx(ctx, "role creation transaction failed", func(ctx context.Context) error {
		taken, err := s.stores.Roles.Exists(ctx, role.Name, role.TenantID)
		if err != nil {
			return infrastructureError(err, "failed to check role name")
		}
		if taken {
			return ErrRoleNameTaken
		}

		if err := s.checkPermissions(ctx, role.PermissionIDs); err != nil {
			return err
		}

		return s.saveRole(ctx, role)
	})
	if err != nil {
		return nil, err
	}

	s.publishRoleEvent(ctx, ActivityEventRoleCreated, role, msg.Actor)
	return &RoleResponse{Role: role, Changed: true}, nil
}

type UpdateRoleMessage struct {
	RoleID      uuid.UUID                `json:"role_id"`
	Name        *string                  `json:"name,omitempty"`
	Description *string                  `json:"description,omitempty"`
	Actor       ActorRef                 `json:"actor"`
	OnResponse  func(resp *RoleResponse) `json:"-"`
}

func (m UpdateRoleMessage) Type() string { return "role.update" }

func (m UpdateRoleMessage) respond(resp *RoleResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

func NewUpdateRoleHandler(s *Service) *CommandHandler[*RoleResponse, UpdateRoleMessage] {
	return newHandler(s.UpdateRole)
}

// UpdateRole renames or re-describes a non-system role.
func (s *Service) UpdateRole(ctx context.Context, msg UpdateRoleMessage) (*RoleResponse, error) {
	return run(ctx, s, msg.Type(), func(ctx context.Context) (*RoleResponse, error) {
		return s.updateRole(ctx, msg)
	})
}

func (s *Service) updateRole(ctx context.Context, msg UpdateRoleMessage) (*RoleResponse, error) {
	now := s.now()
	resp := &RoleResponse{}

	err := s.inTx(ctx, "role update transaction failed", func(ctx context.Context) error {
		role, err := s.loadRole(ctx, msg.RoleID)
		if err != nil {
			return err
		}

		renamed := msg.Name != nil && strings.TrimSpace(*msg.Name) != role.Name
		if err := role.Update(RoleUpdate{Name: msg.Name, Description: msg.Description}, now); err != nil {
			return err
		}

		if renamed {
			taken, err := s.stores.Roles.Exists(ctx, role.Name, role.TenantID)
			if err != nil {
				return infrastructureError(err, "failed to check role name")
			}
			if taken {
				return ErrRoleNameTaken
			}
		}

		resp.Role = role
		resp.Changed = true
		return s.saveRole(ctx, role)
	})
	if err != nil {
		return nil, err
	}

	s.publishRoleEvent(ctx, ActivityEventRoleUpdated, resp.Role, msg.Actor)
	return resp, nil
}

type RolePermissionMessage struct {
	RoleID       uuid.UUID                `json:"role_id"`
	PermissionID uuid.UUID                `json:"permission_id"`
	Actor        ActorRef                 `json:"actor"`
	OnResponse   func(resp *RoleResponse) `json:"-"`
}

func (m RolePermissionMessage) Type() string { return "role.permission" }

func (m RolePermissionMessage) respond(resp *RoleResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

func NewAddRolePermissionHandler(s *Service) *CommandHandler[*RoleResponse, RolePermissionMessage] {
	return newHandler(s.AddRolePermission)
}

func NewRemoveRolePermissionHandler(s *Service) *CommandHandler[*RoleResponse, RolePermissionMessage] {
	return newHandler(s.RemoveRolePermission)
}

// AddRolePermission grants a catalog permission to a non-system role.
func (s *Service) AddRolePermission(ctx context.Context, msg RolePermissionMessage) (*RoleResponse, error) {
	return run(ctx, s, "role.permission.add", func(ctx context.Context) (*RoleResponse, error) {
		return s.changeRolePermission(ctx, msg, true)
	})
}

// RemoveRolePermission revokes a permission from a non-system role.
func (s *Service) RemoveRolePermission(ctx context.Context, msg RolePermissionMessage) (*RoleResponse, error) {
	return run(ctx, s, "role.permission.remove", func(ctx context.Context) (*RoleResponse, error) {
		return s.changeRolePermission(ctx, msg, false)
	})
}

func (s *Service) changeRolePermission(ctx context.Context, msg RolePermissionMessage, grant bool) (*RoleResponse, error) {
	now := s.now()
	resp := &RoleResponse{}

	err := s.inTx(ctx, "role permission transaction failed", func(ctx context.Context) error {
		role, err := s.loadRole(ctx, msg.RoleID)
		if err != nil {
			return err
		}
		resp.Role = role

		if grant {
			if err := s.checkPermissions(ctx, []uuid.UUID{msg.PermissionID}); err != nil {
				return err
			}
			resp.Changed, err = role.AddPermission(msg.PermissionID, now)
		} else {
			resp.Changed, err = role.RemovePermission(msg.PermissionID, now)
		}
		if err != nil {
			return err
		}

		if !resp.Changed {
			return nil
		}
		return s.saveRole(ctx, role)
	})
	if err != nil {
		return nil, err
	}

	if resp.Changed {
		s.publishRoleEvent(ctx, ActivityEventRoleUpdated, resp.Role, msg.Actor)
	}
	return resp, nil
}

type DeleteRoleMessage struct {
	RoleID     uuid.UUID                `json:"role_id"`
	Actor      ActorRef                 `json:"actor"`
	OnResponse func(resp *RoleResponse) `json:"-"`
}

func (m DeleteRoleMessage) Type() string { return "role.delete" }

func (m DeleteRoleMessage) respond(resp *RoleResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

func NewDeleteRoleHandler(s *Service) *CommandHandler[*RoleResponse, DeleteRoleMessage] {
	return newHandler(s.DeleteRole)
}

// DeleteRole removes a non-system role. Users keep the dangling id until
// their next role change; the resolver ignores unknown roles.
func (s *Service) DeleteRole(ctx context.Context, msg DeleteRoleMessage) (*RoleResponse, error) {
	return run(ctx, s, msg.Type(), func(ctx context.Context) (*RoleResponse, error) {
		return s.deleteRole(ctx, msg)
	})
}

func (s *Service) deleteRole(ctx context.Context, msg DeleteRoleMessage) (*RoleResponse, error) {
	resp := &RoleResponse{}

	err := s.inTx(ctx, "role deletion transaction failed", func(ctx context.Context) error {
		role, err := s.loadRole(ctx, msg.RoleID)
		if err != nil {
			return err
		}
		if err := role.CanDelete(); err != nil {
			return err
		}
		if err := s.stores.Roles.Delete(ctx, role.ID); err != nil {
			if notFound(err) {
				return ErrRoleNotFound
			}
			return infrastructureError(err, "failed to delete role")
		}
		resp.Role = role
		resp.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishRoleEvent(ctx, ActivityEventRoleDeleted, resp.Role, msg.Actor)
	return resp, nil
}

type CreatePermissionMessage struct {
	Resource    string                         `json:"resource"`
	Action      string                         `json:"action"`
	Name        string                         `json:"name"`
	Description string                         `json:"description"`
	OnResponse  func(resp *PermissionResponse) `json:"-"`
}

func (m CreatePermissionMessage) Type() string { return "permission.create" }

func (m CreatePermissionMessage) respond(resp *PermissionResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

type PermissionResponse struct {
	Permission *Permission
}

func NewCreatePermissionHandler(s *Service) *CommandHandler[*PermissionResponse, CreatePermissionMessage] {
	return newHandler(s.CreatePermission)
}

// CreatePermission adds a catalog entry. Codes are unique.
func (s *Service) CreatePermission(ctx context.Context, msg CreatePermissionMessage) (*PermissionResponse, error) {
	return run(ctx, s, msg.Type(), func(ctx context.Context) (*PermissionResponse, error) {
		return s.createPermission(ctx, msg)
	})
}

func (s *Service) createPermission(ctx context.Context, msg CreatePermissionMessage) (*PermissionResponse, error) {
	permission, err := NewPermission(msg.Resource, msg.Action, msg.Name, msg.Description, s.now())
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, "permission creation transaction failed", func(ctx context.Context) error {
		if _, err := s.stores.Permissions.FindByCode(ctx, permission.Code); err == nil {
			return ErrPermissionTaken
		} else if !notFound(err) {
			return infrastructureError(err, "failed to check permission code")
		}

		if err := s.stores.Permissions.Save(ctx, permission); err != nil {
			return infrastructureError(err, "failed to save permission")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &PermissionResponse{Permission: permission}, nil
}

func (s *Service) checkPermissions(ctx context.Context, ids []uuid.UUID) error {
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	found, err := s.stores.Permissions.FindByIDs(ctx, ids)
	if err != nil {
		return infrastructureError(err, "failed to load permissions")
	}
	if len(found) != len(ids) {
		return ErrPermissionNotFound
	}
	return nil
}

func (s *Service) publishRoleEvent(ctx context.Context, eventType ActivityEventType, role *Role, actor ActorRef) {
	event := newActivityEvent(eventType, "", s.now())
	event.Actor = actor
	event.RoleID = role.ID.String()
	event.Metadata["name"] = role.Name
	event.Metadata["scope"] = role.Scope
	event.Metadata["permissions"] = len(role.PermissionIDs)
	s.publish(ctx, event)
}
