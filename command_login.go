package auth

import (
	"context"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
)

type LoginMessage struct {
	Email      string                    `json:"email"`
	Password   string                    `json:"password"`
	UserAgent  string                    `json:"user_agent,omitempty"`
	IP         string                    `json:"ip,omitempty"`
	OnResponse func(resp *LoginResponse) `json:"-"`
}

func (m LoginMessage) Type() string { return "auth.login" }

func (m LoginMessage) respond(resp *LoginResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

func (m LoginMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required),
		validation.Field(&m.Password, validation.Required),
	)
}

type LoginResponse struct {
	User *User
	*SessionTokens
}

func NewLoginHandler(s *Service) *CommandHandler[*LoginResponse, LoginMessage] {
	return newHandler(s.Login)
}

var (
	timingPasswordOnce sync.Once
	timingPassword     Password
)

// burnPasswordCheck spends one bcrypt comparison so unknown accounts cost
// the same as wrong passwords.
func burnPasswordCheck(plaintext string) {
	timingPasswordOnce.Do(func() {
		p, err := NewPassword("Timing-Check-Password-1")
		if err == nil {
			timingPassword = p
		}
	})
	if !timingPassword.IsZero() {
		timingPassword.Verify(plaintext)
	}
}

// Login authenticates with email and password. Unknown accounts and wrong
// passwords return the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, msg LoginMessage) (*LoginResponse, error) {
	return run(ctx, s, msg.Type(), func(ctx context.Context) (*LoginResponse, error) {
		return s.login(ctx, msg)
	})
}

func (s *Service) login(ctx context.Context, msg LoginMessage) (*LoginResponse, error) {
	if err := msg.Validate(); err != nil {
		return nil, invalidInput("invalid login request", err)
	}

	now := s.now()

	email, err := ParseEmail(msg.Email)
	if err != nil {
		burnPasswordCheck(msg.Password)
		s.publishLoginFailure(ctx, "", "malformed_email", msg)
		return nil, ErrInvalidCredentials
	}

	user, err := s.stores.Users.FindByEmail(ctx, email)
	if err != nil {
		if notFound(err) {
			burnPasswordCheck(msg.Password)
			s.publishLoginFailure(ctx, "", "unknown_account", msg)
			return nil, ErrInvalidCredentials
		}
		return nil, infrastructureError(err, "failed to load user for login")
	}

	reconciled := user.Reconcile(now)

	if !user.Active {
		if reconciled {
			s.persistQuietly(ctx, user)
		}
		s.publishLoginFailure(ctx, user.ID.String(), "inactive", msg)
		return nil, ErrAccountInactive
	}

	if user.IsLocked(now) {
		s.publishLoginFailure(ctx, user.ID.String(), "locked", msg)
		return nil, ErrAccountLocked
	}

	if !user.Password().Verify(msg.Password) {
		locked := user.RecordFailedLogin(now, s.cfg.LockoutPolicy())
		// the counter must survive the rejection, so it is saved on its own
		if err := s.saveUser(ctx, user); err != nil {
			return nil, err
		}
		if locked {
			s.metrics.AccountLocked()
			event := newActivityEvent(ActivityEventAccountLocked, user.ID.String(), now)
			event.Metadata["locked_until"] = user.LockedUntil
			event.Metadata["failed_logins"] = user.FailedLogins
			s.publish(ctx, event)
		}
		s.publishLoginFailure(ctx, user.ID.String(), "bad_password", msg)
		return nil, ErrInvalidCredentials
	}

	if s.cfg.RequireVerifiedEmail && !user.IsEmailVerified() {
		if reconciled {
			s.persistQuietly(ctx, user)
		}
		s.publishLoginFailure(ctx, user.ID.String(), "unverified", msg)
		return nil, ErrEmailUnverified
	}

	user.RecordSuccessfulLogin(now)

	resp := &LoginResponse{User: user}
	err = s.inTx(ctx, "login transaction failed", func(ctx context.Context) error {
		if err := s.saveUser(ctx, user); err != nil {
			return err
		}
		tokens, err := s.sessionTokens(ctx, user, msg.UserAgent, msg.IP, now)
		if err != nil {
			return err
		}
		resp.SessionTokens = tokens
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := newActivityEvent(ActivityEventLoginSuccess, user.ID.String(), now)
	event.Metadata["ip"] = msg.IP
	event.Metadata["user_agent"] = msg.UserAgent
	s.publish(ctx, event)

	return resp, nil
}

func (s *Service) publishLoginFailure(ctx context.Context, userID, reason string, msg LoginMessage) {
	event := newActivityEvent(ActivityEventLoginFailure, userID, s.now())
	event.Metadata["reason"] = reason
	event.Metadata["ip"] = msg.IP
	s.publish(ctx, event)
}

// persistQuietly saves a reconciled lock state on rejection paths. The
// rejection stands even when the save fails.
func (s *Service) persistQuietly(ctx context.Context, user *User) {
	if err := s.saveUser(ctx, user); err != nil {
		s.logger.Warn("failed to persist login state for %s: %v", user.ID, err)
	}
}
