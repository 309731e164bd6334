package auth

import (
	"context"
	"time"
)

type ForgotPasswordMessage struct {
	Email      string                             `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *ForgotPasswordResponse) `json:"-"`
}

func (m ForgotPasswordMessage) Type() string { return "user.password_reset.request" }

func (m ForgotPasswordMessage) respond(resp *ForgotPasswordResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

// ForgotPasswordResponse is identical whether or not the account exists.
type ForgotPasswordResponse struct {
	Accepted bool
}

func NewForgotPasswordHandler(s *Service) *CommandHandler[*ForgotPasswordResponse, ForgotPasswordMessage] {
	return newHandler(s.ForgotPassword)
}

// ForgotPassword issues a reset token when the account exists and hands
// it to the Notifier. The caller cannot observe which case happened.
func (s *Service) ForgotPassword(ctx context.Context, msg ForgotPasswordMessage) (*ForgotPasswordResponse, error) {
	return run(ctx, s, msg.Type(), func(ctx context.Context) (*ForgotPasswordResponse, error) {
		return s.forgotPassword(ctx, msg)
	})
}

func (s *Service) forgotPassword(ctx context.Context, msg ForgotPasswordMessage) (*ForgotPasswordResponse, error) {
	email, err := ParseEmail(msg.Email)
	if err != nil {
		return nil, err
	}

	resp := &ForgotPasswordResponse{Accepted: true}

	user, err := s.stores.Users.FindByEmail(ctx, email)
	if err != nil {
		if notFound(err) {
			s.logger.Debug("password reset requested for unknown account")
			return resp, nil
		}
		return nil, infrastructureError(err, "failed to retrieve user for password reset")
	}

	now := s.now()
	token, err := NewPasswordResetToken(user.ID, s.cfg.PasswordResetTTL, now)
	if err != nil {
		return nil, err
	}
	if err := s.stores.PasswordResets.Save(ctx, token); err != nil {
		return nil, infrastructureError(err, "failed to create password reset record")
	}

	if err := s.notifier.SendPasswordReset(ctx, user, token); err != nil {
		s.logger.Warn("failed to deliver password reset to %s: %v", user.ID, err)
	}

	event := newActivityEvent(ActivityEventPasswordResetRequested, user.ID.String(), now)
	event.Metadata["expires_at"] = token.ExpiresAt.Format(time.RFC3339)
	s.publish(ctx, event)

	return resp, nil
}
