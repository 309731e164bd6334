package auth

import (
	"context"
	"strings"
)

type ResetPasswordMessage struct {
	Token       string                            `json:"token" doc:"Reset password token"`
	NewPassword string                            `json:"password"`
	OnResponse  func(resp *ResetPasswordResponse) `json:"-"`
}

func (m ResetPasswordMessage) Type() string { return "user.password_reset.finalize" }

func (m ResetPasswordMessage) respond(resp *ResetPasswordResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

type ResetPasswordResponse struct {
	User            *User
	RevokedSessions int
}

func NewResetPasswordHandler(s *Service) *CommandHandler[*ResetPasswordResponse, ResetPasswordMessage] {
	return newHandler(s.ResetPassword)
}

// ResetPassword consumes a reset token, sets the new password, clears any
// lockout and revokes every refresh token of the owner.
func (s *Service) ResetPassword(ctx context.Context, msg ResetPasswordMessage) (*ResetPasswordResponse, error) {
	return run(ctx, s, msg.Type(), func(ctx context.Context) (*ResetPasswordResponse, error) {
		return s.resetPassword(ctx, msg)
	})
}

func (s *Service) resetPassword(ctx context.Context, msg ResetPasswordMessage) (*ResetPasswordResponse, error) {
	password, err := NewPassword(msg.NewPassword)
	if err != nil {
		return nil, err
	}

	value := strings.TrimSpace(msg.Token)
	if value == "" {
		return nil, ErrOneTimeTokenInvalid
	}

	now := s.now()
	resp := &ResetPasswordResponse{}

	err = s.inTx(ctx, "password reset transaction failed", func(ctx context.Context) error {
		token, err := s.stores.PasswordResets.FindByValue(ctx, value)
		if err != nil {
			if notFound(err) {
				return ErrOneTimeTokenInvalid
			}
			return infrastructureError(err, "failed to load password reset token")
		}

		if !token.IsValid(now) {
			return oneTimeTokenError(token.IsExpired(now), token.IsUsed())
		}

		user, err := s.loadUser(ctx, token.UserID)
		if err != nil {
			return err
		}

		consumed, err := s.stores.PasswordResets.MarkUsed(ctx, value, now)
		if err != nil {
			return infrastructureError(err, "failed to consume password reset token")
		}
		if !consumed {
			return ErrOneTimeTokenUsed
		}

		user.ChangePassword(password, now)
		user.Unlock(now)
		if err := s.saveUser(ctx, user); err != nil {
			return err
		}

		revoked, err := s.revokeSessions(ctx, user.ID, now)
		if err != nil {
			return err
		}

		resp.User = user
		resp.RevokedSessions = revoked
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := newActivityEvent(ActivityEventPasswordResetSuccess, resp.User.ID.String(), now)
	event.Metadata["revoked_sessions"] = resp.RevokedSessions
	s.publish(ctx, event)

	return resp, nil
}
