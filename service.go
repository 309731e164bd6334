package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// Stores groups the persistence collaborators of a Service.
type Stores struct {
	Users              UserStore
	RefreshTokens      RefreshTokenStore
	PasswordResets     PasswordResetTokenStore
	EmailVerifications EmailVerificationTokenStore
	Roles              RoleStore
	Permissions        PermissionStore
	Tenants            TenantDirectory
	Transactor         Transactor
}

// StoresFromManager wires every bun repository of m.
func StoresFromManager(m RepositoryManager) Stores {
	return Stores{
		Users:              m.Users(),
		RefreshTokens:      m.RefreshTokens(),
		PasswordResets:     m.PasswordResets(),
		EmailVerifications: m.EmailVerifications(),
		Roles:              m.Roles(),
		Permissions:        m.Permissions(),
		Tenants:            m.Organizations(),
		Transactor:         m,
	}
}

func (s Stores) validate() error {
	missing := []string{}
	if s.Users == nil {
		missing = append(missing, "users")
	}
	if s.RefreshTokens == nil {
		missing = append(missing, "refresh_tokens")
	}
	if s.PasswordResets == nil {
		missing = append(missing, "password_resets")
	}
	if s.EmailVerifications == nil {
		missing = append(missing, "email_verifications")
	}
	if s.Roles == nil {
		missing = append(missing, "roles")
	}
	if s.Permissions == nil {
		missing = append(missing, "permissions")
	}
	if len(missing) > 0 {
		return goerrors.New("auth service is missing stores", goerrors.CategoryBadInput).
			WithTextCode(TextCodeInvalidConfig).
			WithMetadata(map[string]any{"missing": missing})
	}
	return nil
}

// Service orchestrates the authentication and RBAC commands. It holds no
// request state and is safe for concurrent use.
type Service struct {
	cfg      Config
	stores   Stores
	tokens   *TokenService
	resolver *Resolver
	notifier Notifier
	activity ActivitySink
	metrics  Metrics
	logger   Logger
	now      Clock
	hashids  []hashid.Option
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithActivitySink(sink ActivitySink) ServiceOption {
	return func(s *Service) {
		s.activity = normalizeActivitySink(sink)
	}
}

func WithNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

func WithMetrics(metrics Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = normalizeMetrics(metrics)
	}
}

// WithClock replaces the time source of the service and its token service.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithClaimsDecorator(decorator ClaimsDecorator) ServiceOption {
	return func(s *Service) {
		s.tokens.WithClaimsDecorator(decorator)
	}
}

// WithHashidOptions configures how deterministic user ids are derived
// for registrations that set UseHashid.
func WithHashidOptions(opts ...hashid.Option) ServiceOption {
	return func(s *Service) {
		s.hashids = append(s.hashids, opts...)
	}
}

// NewService validates cfg and wires the collaborators.
func NewService(cfg Config, stores Stores, opts ...ServiceOption) (*Service, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := stores.validate(); err != nil {
		return nil, err
	}
	if stores.Transactor == nil {
		stores.Transactor = NoopTransactor
	}
	if stores.Tenants == nil {
		stores.Tenants = allowAllTenants{}
	}

	s := &Service{
		cfg:      cfg,
		stores:   stores,
		tokens:   NewTokenService(cfg, defLogger{}),
		resolver: NewResolver(stores.Roles, stores.Permissions),
		activity: noopActivitySink{},
		metrics:  noopMetrics{},
		logger:   defLogger{},
		now:      systemClock,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.notifier == nil {
		s.notifier = logNotifier{logger: s.logger}
	}
	s.tokens.logger = s.logger
	s.tokens.WithClock(s.now)

	return s, nil
}

func (s *Service) Config() Config { return s.cfg }

func (s *Service) Tokens() *TokenService { return s.tokens }

func (s *Service) Resolver() *Resolver { return s.resolver }

// ValidateAccessToken verifies signature, issuer, audience and expiry.
func (s *Service) ValidateAccessToken(token string) (*AccessClaims, error) {
	return s.tokens.Validate(token)
}

// Authorize validates an access token and checks it grants code.
func (s *Service) Authorize(ctx context.Context, accessToken, code string) (*AccessClaims, error) {
	claims, err := s.tokens.Validate(accessToken)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.AuthorizeClaims(ctx, claims, code); err != nil {
		return nil, err
	}
	return claims, nil
}

// EffectivePermissions resolves the permission set of a stored user.
func (s *Service) EffectivePermissions(ctx context.Context, userID uuid.UUID) (PermissionSet, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolver.EffectivePermissions(ctx, user.RoleIDs)
}

// run applies the cancellation check and default deadline shared by all
// commands and records the outcome.
func run[R any](ctx context.Context, s *Service, command string, fn func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	select {
	case <-ctx.Done():
		return zero, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during "+command,
		).WithTextCode(TextCodeInfrastructure)
	default:
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
	defer cancel()

	res, err := fn(ctx)
	if err != nil {
		s.metrics.ObserveCommand(command, KindOf(err), time.Since(start))
		return zero, err
	}

	s.metrics.ObserveCommand(command, "", time.Since(start))
	return res, nil
}

// inTx runs fn in the configured transactor and classifies what comes out.
func (s *Service) inTx(ctx context.Context, message string, fn func(ctx context.Context) error) error {
	if err := s.stores.Transactor.RunInTx(ctx, fn); err != nil {
		return infrastructureError(err, message)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event ActivityEvent) {
	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record activity %s: %v", event, err)
	}
}

func (s *Service) loadUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.stores.Users.FindByID(ctx, id)
	if err != nil {
		if notFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, infrastructureError(err, "failed to load user")
	}
	return user, nil
}

func (s *Service) loadRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	role, err := s.stores.Roles.FindByID(ctx, id)
	if err != nil {
		if notFound(err) {
			return nil, ErrRoleNotFound
		}
		return nil, infrastructureError(err, "failed to load role")
	}
	return role, nil
}

func (s *Service) saveUser(ctx context.Context, user *User) error {
	if err := s.stores.Users.Save(ctx, user); err != nil {
		if uniqueViolation(err) {
			return ErrEmailTaken
		}
		return infrastructureError(err, "failed to save user")
	}
	return nil
}

func (s *Service) saveRole(ctx context.Context, role *Role) error {
	if err := s.stores.Roles.Save(ctx, role); err != nil {
		if uniqueViolation(err) {
			return ErrRoleNameTaken
		}
		return infrastructureError(err, "failed to save role")
	}
	return nil
}

func (s *Service) revokeSessions(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	n, err := s.stores.RefreshTokens.RevokeAllForUser(ctx, userID, now)
	if err != nil {
		return 0, infrastructureError(err, "failed to revoke refresh tokens")
	}
	return n, nil
}

func (s *Service) checkTenant(ctx context.Context, tenantID *uuid.UUID) error {
	if tenantID == nil {
		return nil
	}
	ok, err := s.stores.Tenants.Exists(ctx, *tenantID)
	if err != nil {
		return infrastructureError(err, "failed to look up organization")
	}
	if !ok {
		return ErrTenantNotFound
	}
	return nil
}

// sessionTokens issues a refresh token and the matching access token.
func (s *Service) sessionTokens(ctx context.Context, user *User, userAgent, ip string, now time.Time) (*SessionTokens, error) {
	refresh, err := NewRefreshToken(user.ID, s.cfg.RefreshTokenTTL, now)
	if err != nil {
		return nil, err
	}
	refresh.UserAgent = userAgent
	refresh.IP = ip

	if err := s.stores.RefreshTokens.Save(ctx, refresh); err != nil {
		return nil, infrastructureError(err, "failed to save refresh token")
	}

	roles, err := s.stores.Roles.FindByIDs(ctx, user.RoleIDs)
	if err != nil {
		return nil, infrastructureError(err, "failed to load roles")
	}

	access, claims, err := s.tokens.Issue(ctx, user, roles)
	if err != nil {
		return nil, err
	}

	return &SessionTokens{
		AccessToken:  access,
		Claims:       claims,
		RefreshToken: refresh,
		ExpiresIn:    s.tokens.TTL(),
	}, nil
}

// SessionTokens is what Login and Refresh hand back.
type SessionTokens struct {
	AccessToken  string
	Claims       *AccessClaims
	RefreshToken *RefreshToken
	ExpiresIn    time.Duration
}
