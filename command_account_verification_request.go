package auth

import (
	"context"
	"strings"
)

type VerifyEmailMessage struct {
	Token      string                          `json:"token"`
	OnResponse func(resp *VerifyEmailResponse) `json:"-"`
}

func (m VerifyEmailMessage) Type() string { return "user.email.verify" }

func (m VerifyEmailMessage) respond(resp *VerifyEmailResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

type VerifyEmailResponse struct {
	User            *User
	AlreadyVerified bool
}

func NewVerifyEmailHandler(s *Service) *CommandHandler[*VerifyEmailResponse, VerifyEmailMessage] {
	return newHandler(s.VerifyEmail)
}

// VerifyEmail consumes a verification token and marks the owner verified.
// Verifying an already verified account only consumes the token.
func (s *Service) VerifyEmail(ctx context.Context, msg VerifyEmailMessage) (*VerifyEmailResponse, error) {
	return run(ctx, s, msg.Type(), func(ctx context.Context) (*VerifyEmailResponse, error) {
		return s.verifyEmail(ctx, msg)
	})
}

func (s *Service) verifyEmail(ctx context.Context, msg VerifyEmailMessage) (*VerifyEmailResponse, error) {
	value := strings.TrimSpace(msg.Token)
	if value == "" {
		return nil, ErrOneTimeTokenInvalid
	}

	now := s.now()
	resp := &VerifyEmailResponse{}

	err := s.inTx(ctx, "email verification transaction failed", func(ctx context.Context) error {
		token, err := s.stores.EmailVerifications.FindByValue(ctx, value)
		if err != nil {
			if notFound(err) {
				return ErrOneTimeTokenInvalid
			}
			return infrastructureError(err, "failed to load verification token")
		}

		if !token.IsValid(now) {
			return oneTimeTokenError(token.IsExpired(now), token.IsUsed())
		}

		user, err := s.loadUser(ctx, token.UserID)
		if err != nil {
			return err
		}

		consumed, err := s.stores.EmailVerifications.MarkUsed(ctx, value, now)
		if err != nil {
			return infrastructureError(err, "failed to consume verification token")
		}
		if !consumed {
			return ErrOneTimeTokenUsed
		}

		if user.VerifyEmail(now) {
			if err := s.saveUser(ctx, user); err != nil {
				return err
			}
		} else {
			resp.AlreadyVerified = true
		}

		resp.User = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !resp.AlreadyVerified {
		s.publish(ctx, newActivityEvent(ActivityEventEmailVerified, resp.User.ID.String(), now))
	}

	return resp, nil
}

type ResendVerificationMessage struct {
	Email      string                                 `json:"email"`
	OnResponse func(resp *ResendVerificationResponse) `json:"-"`
}

func (m ResendVerificationMessage) Type() string { return "user.email.verification_request" }

func (m ResendVerificationMessage) respond(resp *ResendVerificationResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

// ResendVerificationResponse does not reveal whether a token was issued.
type ResendVerificationResponse struct {
	Accepted bool
}

func NewResendVerificationHandler(s *Service) *CommandHandler[*ResendVerificationResponse, ResendVerificationMessage] {
	return newHandler(s.ResendVerification)
}

// ResendVerification issues a fresh verification token for unverified
// accounts. Earlier tokens stay valid until they expire.
func (s *Service) ResendVerification(ctx context.Context, msg ResendVerificationMessage) (*ResendVerificationResponse, error) {
	return run(ctx, s, msg.Type(), func(ctx context.Context) (*ResendVerificationResponse, error) {
		return s.resendVerification(ctx, msg)
	})
}

func (s *Service) resendVerification(ctx context.Context, msg ResendVerificationMessage) (*ResendVerificationResponse, error) {
	email, err := ParseEmail(msg.Email)
	if err != nil {
		return nil, err
	}

	resp := &ResendVerificationResponse{Accepted: true}

	user, err := s.stores.Users.FindByEmail(ctx, email)
	if err != nil {
		if notFound(err) {
			return resp, nil
		}
		return nil, infrastructureError(err, "failed to retrieve user for verification")
	}

	if user.IsEmailVerified() || !user.Active {
		return resp, nil
	}

	token, err := NewEmailVerificationToken(user.ID, s.cfg.EmailVerificationTTL, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.stores.EmailVerifications.Save(ctx, token); err != nil {
		return nil, infrastructureError(err, "failed to save verification token")
	}

	if err := s.notifier.SendEmailVerification(ctx, user, token); err != nil {
		s.logger.Warn("failed to deliver verification email to %s: %v", user.ID, err)
	}

	return resp, nil
}
