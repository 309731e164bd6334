package auth

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

type RegisterUserMessage struct {
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Email     string      `json:"email"`
	Phone     string      `json:"phone"`
	Password  string      `json:"password"`
	TenantID  *uuid.UUID  `json:"tenant_id,omitempty"`
	RoleIDs   []uuid.UUID `json:"role_ids,omitempty"`
	// UseHashid derives a deterministic user id from the email.
	UseHashid  bool
	OnResponse func(resp *RegisterUserResponse) `json:"-"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

func (e RegisterUserMessage) respond(resp *RegisterUserResponse) {
	if e.OnResponse != nil {
		e.OnResponse(resp)
	}
}

func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required),
		validation.Field(&e.Password, validation.Required),
		validation.Field(&e.FirstName, validation.Length(0, 100)),
		validation.Field(&e.LastName, validation.Length(0, 100)),
		validation.Field(&e.Phone, validation.Length(0, 32)),
	)
}

type RegisterUserResponse struct {
	User              *User
	VerificationToken *EmailVerificationToken
}

func NewRegisterUserHandler(s *Service) *CommandHandler[*RegisterUserResponse, RegisterUserMessage] {
	return newHandler(s.Register)
}

// Register creates an account with an empty role set (unless role ids are
// given) and issues its email verification token.
func (s *Service) Register(ctx context.Context, msg RegisterUserMessage) (*RegisterUserResponse, error) {
	return run(ctx, s, msg.Type(), func(ctx context.Context) (*RegisterUserResponse, error) {
		return s.register(ctx, msg)
	})
}

func (s *Service) register(ctx context.Context, msg RegisterUserMessage) (*RegisterUserResponse, error) {
	if err := msg.Validate(); err != nil {
		return nil, invalidInput("invalid registration", err)
	}

	email, err := ParseEmail(msg.Email)
	if err != nil {
		return nil, err
	}

	password, err := NewPassword(msg.Password)
	if err != nil {
		return nil, err
	}

	phone := ""
	if msg.Phone != "" {
		if phone, err = NormalizePhone(msg.Phone, s.cfg.DefaultPhoneRegion); err != nil {
			return nil, err
		}
	}

	if err := s.checkTenant(ctx, msg.TenantID); err != nil {
		return nil, err
	}

	now := s.now()
	resp := &RegisterUserResponse{}

	err = s.inTx(ctx, "user registration transaction failed", func(ctx context.Context) error {
		taken, err := s.stores.Users.Exists(ctx, email)
		if err != nil {
			return infrastructureError(err, "failed to check email")
		}
		if taken {
			return ErrEmailTaken
		}

		roleIDs := dedupeIDs(msg.RoleIDs)
		if len(roleIDs) > 0 {
			roles, err := s.stores.Roles.FindByIDs(ctx, roleIDs)
			if err != nil {
				return infrastructureError(err, "failed to load roles")
			}
			if len(roles) != len(roleIDs) {
				return ErrRoleNotFound
			}
			for _, role := range roles {
				if err := checkRoleScope(role, msg.TenantID); err != nil {
					return err
				}
			}
		}

		user := NewUser(email, password, msg.FirstName, msg.LastName, now)
		user.Phone = phone
		user.TenantID = msg.TenantID
		for _, id := range roleIDs {
			user.AssignRole(id, now)
		}
		if msg.UseHashid {
			id, err := hashid.NewUUID(email.String(), s.hashids...)
			if err != nil {
				return infrastructureError(err, "failed to derive user id")
			}
			user.ID = id
		}

		if err := s.saveUser(ctx, user); err != nil {
			return err
		}

		token, err := NewEmailVerificationToken(user.ID, s.cfg.EmailVerificationTTL, now)
		if err != nil {
			return err
		}
		if err := s.stores.EmailVerifications.Save(ctx, token); err != nil {
			return infrastructureError(err, "failed to save verification token")
		}

		resp.User = user
		resp.VerificationToken = token
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendEmailVerification(ctx, resp.User, resp.VerificationToken); err != nil {
		s.logger.Warn("failed to deliver verification email to %s: %v", resp.User.ID, err)
	}

	event := newActivityEvent(ActivityEventUserRegistered, resp.User.ID.String(), now)
	if resp.User.TenantID != nil {
		event.Metadata["tenant_id"] = resp.User.TenantID.String()
	}
	s.publish(ctx, event)

	return resp, nil
}
