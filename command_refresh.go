package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type RefreshMessage struct {
	RefreshToken string                      `json:"refresh_token"`
	UserAgent    string                      `json:"user_agent,omitempty"`
	IP           string                      `json:"ip,omitempty"`
	OnResponse   func(resp *RefreshResponse) `json:"-"`
}

func (m RefreshMessage) Type() string { return "auth.refresh" }

func (m RefreshMessage) respond(resp *RefreshResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

type RefreshResponse struct {
	User *User
	*SessionTokens
}

func NewRefreshHandler(s *Service) *CommandHandler[*RefreshResponse, RefreshMessage] {
	return newHandler(s.Refresh)
}

// Refresh rotates a refresh token. The presented token is revoked with a
// conditional update, so of N concurrent calls with one token exactly one
// gets new tokens.
func (s *Service) Refresh(ctx context.Context, msg RefreshMessage) (*RefreshResponse, error) {
	return run(ctx, s, msg.Type(), func(ctx context.Context) (*RefreshResponse, error) {
		return s.refresh(ctx, msg)
	})
}

func (s *Service) refresh(ctx context.Context, msg RefreshMessage) (*RefreshResponse, error) {
	value := strings.TrimSpace(msg.RefreshToken)
	if value == "" {
		s.metrics.RefreshRejected("missing")
		return nil, ErrTokenInvalid
	}

	now := s.now()
	resp := &RefreshResponse{}

	err := s.inTx(ctx, "refresh transaction failed", func(ctx context.Context) error {
		current, err := s.stores.RefreshTokens.FindByValue(ctx, value)
		if err != nil {
			if notFound(err) {
				s.metrics.RefreshRejected("unknown")
				return ErrTokenInvalid
			}
			return infrastructureError(err, "failed to load refresh token")
		}

		if !current.IsValid(now) {
			if current.IsRevoked() {
				s.metrics.RefreshRejected("revoked")
			} else {
				s.metrics.RefreshRejected("expired")
			}
			return ErrTokenInvalid
		}

		user, err := s.stores.Users.FindByID(ctx, current.UserID)
		if err != nil {
			if notFound(err) {
				s.metrics.RefreshRejected("orphaned")
				return ErrTokenInvalid
			}
			return infrastructureError(err, "failed to load user for refresh")
		}

		if !user.Active {
			return ErrAccountInactive
		}

		won, err := s.stores.RefreshTokens.MarkRevoked(ctx, value, now)
		if err != nil {
			return infrastructureError(err, "failed to revoke refresh token")
		}
		if !won {
			s.metrics.RefreshRejected("replayed")
			return ErrTokenInvalid
		}

		tokens, err := s.sessionTokens(ctx, user, msg.UserAgent, msg.IP, now)
		if err != nil {
			return err
		}

		resp.User = user
		resp.SessionTokens = tokens
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RefreshRotated()
	s.publish(ctx, newActivityEvent(ActivityEventTokenRefreshed, resp.User.ID.String(), now))

	return resp, nil
}

type LogoutMessage struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	// UserID is used with AllDevices when no token is presented.
	UserID     uuid.UUID                  `json:"user_id,omitempty"`
	AllDevices bool                       `json:"all_devices"`
	OnResponse func(resp *LogoutResponse) `json:"-"`
}

func (m LogoutMessage) Type() string { return "auth.logout" }

func (m LogoutMessage) respond(resp *LogoutResponse) {
	if m.OnResponse != nil {
		m.OnResponse(resp)
	}
}

type LogoutResponse struct {
	Revoked int
}

func NewLogoutHandler(s *Service) *CommandHandler[*LogoutResponse, LogoutMessage] {
	return newHandler(s.Logout)
}

// Logout revokes one refresh token, or every token of its owner with
// AllDevices. Unknown or already revoked tokens are not an error.
func (s *Service) Logout(ctx context.Context, msg LogoutMessage) (*LogoutResponse, error) {
	return run(ctx, s, msg.Type(), func(ctx context.Context) (*LogoutResponse, error) {
		return s.logout(ctx, msg)
	})
}

func (s *Service) logout(ctx context.Context, msg LogoutMessage) (*LogoutResponse, error) {
	now := s.now()
	value := strings.TrimSpace(msg.RefreshToken)
	resp := &LogoutResponse{}

	userID := msg.UserID
	if value != "" && (msg.AllDevices || userID == uuid.Nil) {
		token, err := s.stores.RefreshTokens.FindByValue(ctx, value)
		switch {
		case err == nil:
			userID = token.UserID
		case notFound(err):
			return resp, nil
		default:
			return nil, infrastructureError(err, "failed to load refresh token")
		}
	}

	if msg.AllDevices {
		if userID == uuid.Nil {
			return resp, nil
		}
		n, err := s.revokeSessions(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		resp.Revoked = n
	} else if value != "" {
		won, err := s.stores.RefreshTokens.MarkRevoked(ctx, value, now)
		if err != nil {
			return nil, infrastructureError(err, "failed to revoke refresh token")
		}
		if won {
			resp.Revoked = 1
		}
	}

	if resp.Revoked > 0 {
		event := newActivityEvent(ActivityEventLogout, userID.String(), now)
		event.Metadata["all_devices"] = msg.AllDevices
		event.Metadata["revoked"] = resp.Revoked
		s.publish(ctx, event)
	}

	return resp, nil
}
