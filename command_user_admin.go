package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const TextCodeRoleTenantMismatch = "ROLE_TENANT_MISMATCH"

// checkRoleScope allows global roles everywhere and tenant roles only
// inside their own tenant.
func checkRoleScope(role *Role, tenantID *uuid.UUID) error {
	if role.TenantID == nil {
		return nil
	}
	if tenantID != nil && *tenantID == *role.TenantID {
		return nil
	}
	return goerrors.New("role belongs to another organization", goerrors.CategoryAuthz).
		WithTextCode(TextCodeRoleTenantMismatch).
		WithCode(goerrors.CodeForbidden).
		WithMetadata(map[string]any{"role_id": role.ID.String()})
}

type RoleAssignmentMessage struct {
	UserID     uuid.UUID                          `json:"user_id"`
	RoleID     uuid.UUID                          `json:"role_id"`
	Actor      ActorRef                           `json:"actor"`
	OnResponse func(resp *RoleAssignmentResponse) `json:"-"`
}

func (m RoleAssignmentMessage) Type() string { return "user.role.assignment" }

func (m RoleAssignmentMessage) respond(resp *RoleAssignmentResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

type RoleAssignmentResponse struct {
	User    *User
	Changed bool
}

func NewAssignRoleHandler(s *Service) *CommandHandler[*RoleAssignmentResponse, RoleAssignmentMessage] {
	return newHandler(s.AssignRole)
}

func NewRemoveRoleHandler(s *Service) *CommandHandler[*RoleAssignmentResponse, RoleAssignmentMessage] {
	return newHandler(s.RemoveRole)
}

// AssignRole adds a role to the user's set. Assigning twice is a no-op.
func (s *Service) AssignRole(ctx context.Context, msg RoleAssignmentMessage) (*RoleAssignmentResponse, error) {
	return run(ctx, s, "user.role.assign", func(ctx context.Context) (*RoleAssignmentResponse, error) {
		return s.changeRole(ctx, msg, true)
	})
}

// RemoveRole drops a role from the user's set. Removing a missing role is a no-op.
func (s *Service) RemoveRole(ctx context.Context, msg RoleAssignmentMessage) (*RoleAssignmentResponse, error) {
	return run(ctx, s, "user.role.remove", func(ctx context.Context) (*RoleAssignmentResponse, error) {
		return s.changeRole(ctx, msg, false)
	})
}

func (s *Service) changeRole(ctx context.Context, msg RoleAssignmentMessage, assign bool) (*RoleAssignmentResponse, error) {
	now := s.now()
	resp := &RoleAssignmentResponse{}

	err := s.inTx(ctx, "role assignment transaction failed", func(ctx context.Context) error {
		user, err := s.loadUser(ctx, msg.UserID)
		if err != nil {
			return err
		}
		role, err := s.loadRole(ctx, msg.RoleID)
		if err != nil {
			return err
		}

		if assign {
			if err := checkRoleScope(role, user.TenantID); err != nil {
				return err
			}
			resp.Changed = user.AssignRole(role.ID, now)
		} else {
			resp.Changed = user.RemoveRole(role.ID, now)
		}

		resp.User = user
		if !resp.Changed {
			return nil
		}
		return s.saveUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	if resp.Changed {
		eventType := ActivityEventRoleAssigned
		if !assign {
			eventType = ActivityEventRoleRemoved
		}
		event := newActivityEvent(eventType, resp.User.ID.String(), now)
		event.Actor = msg.Actor
		event.RoleID = msg.RoleID.String()
		s.publish(ctx, event)
	}

	return resp, nil
}

type UserStatusMessage struct {
	UserID     uuid.UUID                      `json:"user_id"`
	Actor      ActorRef                       `json:"actor"`
	Reason     string                         `json:"reason,omitempty"`
	OnResponse func(resp *UserStatusResponse) `json:"-"`
}

func (m UserStatusMessage) Type() string { return "user.status" }

func (m UserStatusMessage) respond(resp *UserStatusResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

type UserStatusResponse struct {
	User            *User
	Changed         bool
	RevokedSessions int
}

func NewActivateUserHandler(s *Service) *CommandHandler[*UserStatusResponse, UserStatusMessage] {
	return newHandler(s.ActivateUser)
}

func NewDeactivateUserHandler(s *Service) *CommandHandler[*UserStatusResponse, UserStatusMessage] {
	return newHandler(s.DeactivateUser)
}

func NewDeleteUserHandler(s *Service) *CommandHandler[*UserStatusResponse, UserStatusMessage] {
	return newHandler(s.DeleteUser)
}

func (s *Service) ActivateUser(ctx context.Context, msg UserStatusMessage) (*UserStatusResponse, error) {
	return run(ctx, s, "user.activate", func(ctx context.Context) (*UserStatusResponse, error) {
		return s.setActive(ctx, msg, true)
	})
}

// DeactivateUser blocks future logins and revokes every refresh token.
func (s *Service) DeactivateUser(ctx context.Context, msg UserStatusMessage) (*UserStatusResponse, error) {
	return run(ctx, s, "user.deactivate", func(ctx context.Context) (*UserStatusResponse, error) {
		return s.setActive(ctx, msg, false)
	})
}

func (s *Service) setActive(ctx context.Context, msg UserStatusMessage, active bool) (*UserStatusResponse, error) {
	now := s.now()
	resp := &UserStatusResponse{}

	err := s.inTx(ctx, "user status transaction failed", func(ctx context.Context) error {
		user, err := s.loadUser(ctx, msg.UserID)
		if err != nil {
			return err
		}
		resp.User = user

		if active {
			resp.Changed = user.Activate(now)
		} else {
			resp.Changed = user.Deactivate(now)
		}

		if resp.Changed {
			if err := s.saveUser(ctx, user); err != nil {
				return err
			}
		}

		if !active {
			n, err := s.revokeSessions(ctx, user.ID, now)
			if err != nil {
				return err
			}
			resp.RevokedSessions = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.Changed {
		event := newActivityEvent(ActivityEventUserStatusChanged, resp.User.ID.String(), now)
		event.Actor = msg.Actor
		event.FromStatus, event.ToStatus = StatusInactive, StatusActive
		if !active {
			event.FromStatus, event.ToStatus = StatusActive, StatusInactive
		}
		if msg.Reason != "" {
			event.Metadata["reason"] = msg.Reason
		}
		s.publish(ctx, event)
	}

	return resp, nil
}

// DeleteUser soft deletes the account and revokes its sessions. The email
// stays reserved.
func (s *Service) DeleteUser(ctx context.Context, msg UserStatusMessage) (*UserStatusResponse, error) {
	return run(ctx, s, "user.delete", func(ctx context.Context) (*UserStatusResponse, error) {
		return s.deleteUser(ctx, msg)
	})
}

func (s *Service) deleteUser(ctx context.Context, msg UserStatusMessage) (*UserStatusResponse, error) {
	now := s.now()
	resp := &UserStatusResponse{}

	err := s.inTx(ctx, "user deletion transaction failed", func(ctx context.Context) error {
		user, err := s.loadUser(ctx, msg.UserID)
		if err != nil {
			return err
		}

		n, err := s.revokeSessions(ctx, user.ID, now)
		if err != nil {
			return err
		}

		if err := s.stores.Users.Delete(ctx, user.ID); err != nil {
			if notFound(err) {
				return ErrUserNotFound
			}
			return infrastructureError(err, "failed to delete user")
		}

		resp.User = user
		resp.Changed = true
		resp.RevokedSessions = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := newActivityEvent(ActivityEventUserDeleted, resp.User.ID.String(), now)
	event.Actor = msg.Actor
	s.publish(ctx, event)

	return resp, nil
}
