package auth

import (
	"context"

	"github.com/google/uuid"
)

type ChangePasswordMessage struct {
	UserID          uuid.UUID `json:"user_id"`
	CurrentPassword string    `json:"current_password"`
	NewPassword     string    `json:"new_password"`
	// RevokeSessions also signs out every device.
	RevokeSessions bool                               `json:"revoke_sessions"`
	OnResponse     func(resp *ChangePasswordResponse) `json:"-"`
}

func (m ChangePasswordMessage) Type() string { return "user.password.change" }

func (m ChangePasswordMessage) respond(resp *ChangePasswordResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

type ChangePasswordResponse struct {
	User            *User
	RevokedSessions int
}

func NewChangePasswordHandler(s *Service) *CommandHandler[*ChangePasswordResponse, ChangePasswordMessage] {
	return newHandler(s.ChangePassword)
}

// ChangePassword replaces the password of an authenticated user. Lockout
// state is left untouched.
func (s *Service) ChangePassword(ctx context.Context, msg ChangePasswordMessage) (*ChangePasswordResponse, error) {
	return run(ctx, s, msg.Type(), func(ctx context.Context) (*ChangePasswordResponse, error) {
		return s.changePassword(ctx, msg)
	})
}

func (s *Service) changePassword(ctx context.Context, msg ChangePasswordMessage) (*ChangePasswordResponse, error) {
	user, err := s.loadUser(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}

	if !user.Password().Verify(msg.CurrentPassword) {
		return nil, ErrInvalidCredentials
	}

	if msg.NewPassword == msg.CurrentPassword {
		return nil, ErrPasswordReuse
	}

	password, err := NewPassword(msg.NewPassword)
	if err != nil {
		return nil, err
	}

	now := s.now()
	resp := &ChangePasswordResponse{User: user}

	err = s.inTx(ctx, "password change transaction failed", func(ctx context.Context) error {
		user.ChangePassword(password, now)
		if err := s.saveUser(ctx, user); err != nil {
			return err
		}
		if msg.RevokeSessions {
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

	s.publish(ctx, newActivityEvent(ActivityEventPasswordChanged, user.ID.String(), now))

	return resp, nil
}
