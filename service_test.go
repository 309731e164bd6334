package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-rbac"
)

// MockRefreshTokenStore lets tests fail individual refresh token calls.
type MockRefreshTokenStore struct {
	mock.Mock
}

func (m *MockRefreshTokenStore) Save(ctx context.Context, token *auth.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockRefreshTokenStore) FindByValue(ctx context.Context, value string) (*auth.RefreshToken, error) {
	args := m.Called(ctx, value)
	if token := args.Get(0); token != nil {
		return token.(*auth.RefreshToken), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRefreshTokenStore) MarkRevoked(ctx context.Context, value string, at time.Time) (bool, error) {
	args := m.Called(ctx, value, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int, error) {
	args := m.Called(ctx, userID, at)
	return args.Int(0), args.Error(1)
}

// MockUserStore wraps a real store and lets tests break lookups.
type MockUserStore struct {
	mock.Mock
	auth.UserStore
}

func (m *MockUserStore) FindByEmail(ctx context.Context, email auth.Email) (*auth.User, error) {
	args := m.Called(ctx, email)
	if user := args.Get(0); user != nil {
		return user.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

var errStoreDown = errors.New("connection refused")

func TestLoginRollsBackWhenRefreshSaveFails(t *testing.T) {
	refreshStore := &MockRefreshTokenStore{}
	refreshStore.On("Save", mock.Anything, mock.AnythingOfType("*auth.RefreshToken")).Return(errStoreDown)

	env := newTestEnv(t, withStores(func(stores *auth.Stores) {
		stores.RefreshTokens = refreshStore
	}))
	ctx := context.Background()
	user := env.register(t, "pepe@example.com").User

	_, _ = env.svc.Login(ctx, auth.LoginMessage{Email: "pepe@example.com", Password: "Wrong-Passw0rd"})
	require.Equal(t, 1, env.reloadUser(t, user.ID).FailedLogins)

	_, err := env.svc.Login(ctx, auth.LoginMessage{Email: "pepe@example.com", Password: testPassword})
	requireKind(t, auth.KindInfrastructure, err)
	assert.ErrorIs(t, err, errStoreDown)

	stored := env.reloadUser(t, user.ID)
	assert.Equal(t, 1, stored.FailedLogins, "the successful-login reset is rolled back")
	assert.Zero(t, env.sink.Count(auth.ActivityEventLoginSuccess))

	refreshStore.AssertExpectations(t)
}

func TestStoreFailuresSurfaceAsInfrastructure(t *testing.T) {
	users := &MockUserStore{}

	env := newTestEnv(t, withStores(func(stores *auth.Stores) {
		users.UserStore = stores.Users
		stores.Users = users
	}))
	users.On("FindByEmail", mock.Anything, mock.Anything).Return(nil, errStoreDown)

	ctx := context.Background()

	_, err := env.svc.Login(ctx, auth.LoginMessage{Email: "pepe@example.com", Password: testPassword})
	requireKind(t, auth.KindInfrastructure, err)
	assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = env.svc.ForgotPassword(ctx, auth.ForgotPasswordMessage{Email: "pepe@example.com"})
	requireKind(t, auth.KindInfrastructure, err)

	_, err = env.svc.ResendVerification(ctx, auth.ResendVerificationMessage{Email: "pepe@example.com"})
	requireKind(t, auth.KindInfrastructure, err)

	users.AssertNumberOfCalls(t, "FindByEmail", 3)
}

func TestRefreshReplayLosesCompareAndSet(t *testing.T) {
	now := newTestClock().Now()
	token, err := auth.NewRefreshToken(uuid.New(), time.Hour, now)
	require.NoError(t, err)

	refreshStore := &MockRefreshTokenStore{}
	refreshStore.On("FindByValue", mock.Anything, token.Value).Return(token, nil)
	refreshStore.On("MarkRevoked", mock.Anything, token.Value, mock.Anything).Return(false, nil)

	env := newTestEnv(t, withStores(func(stores *auth.Stores) {
		stores.RefreshTokens = refreshStore
	}))
	user := env.register(t, "pepe@example.com").User
	token.UserID = user.ID

	_, err = env.svc.Refresh(context.Background(), auth.RefreshMessage{RefreshToken: token.Value})
	requireKind(t, auth.KindUnauthorized, err)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)

	refreshStore.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestCancelledContextIsInfrastructure(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.svc.Register(ctx, auth.RegisterUserMessage{Email: "pepe@example.com", Password: testPassword})
	requireKind(t, auth.KindInfrastructure, err)
	assert.ErrorIs(t, err, context.Canceled)

	exists, err := env.repos.Users().Exists(context.Background(), auth.MustParseEmail("pepe@example.com"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNewServiceValidatesInputs(t *testing.T) {
	repos := auth.NewRepositoryManager(newTestDB(t))

	_, err := auth.NewService(testConfig(), auth.Stores{})
	requireKind(t, auth.KindValidation, err)

	cfg := testConfig()
	cfg.SigningKey = "short"
	_, err = auth.NewService(cfg, auth.StoresFromManager(repos))
	requireKind(t, auth.KindValidation, err)

	svc, err := auth.NewService(testConfig(), auth.StoresFromManager(repos), nil)
	require.NoError(t, err)
	assert.Equal(t, "auth-test", svc.Config().Issuer)
}

func TestServiceAuthorize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	read := env.permission(t, "articles", "read")
	env.permission(t, "articles", "delete")
	viewer := env.role(t, "viewer", read)
	user := env.register(t, "pepe@example.com").User

	_, err := env.svc.AssignRole(ctx, auth.RoleAssignmentMessage{UserID: user.ID, RoleID: viewer.ID})
	require.NoError(t, err)
	login := env.login(t, "pepe@example.com")

	claims, err := env.svc.Authorize(ctx, login.AccessToken, "articles:read")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)

	_, err = env.svc.Authorize(ctx, login.AccessToken, "articles:delete")
	requireKind(t, auth.KindForbidden, err)

	_, err = env.svc.Authorize(ctx, "garbage", "articles:read")
	requireKind(t, auth.KindUnauthorized, err)

	set, err := env.svc.EffectivePermissions(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{read.ID}, set.IDs())

	_, err = env.svc.EffectivePermissions(ctx, uuid.New())
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestAuthorizeContext(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	read := env.permission(t, "articles", "read")
	viewer := env.role(t, "viewer", read)
	user := env.register(t, "pepe@example.com").User

	_, err := env.svc.AssignRole(ctx, auth.RoleAssignmentMessage{UserID: user.ID, RoleID: viewer.ID})
	require.NoError(t, err)
	login := env.login(t, "pepe@example.com")

	_, err = env.svc.AuthorizeContext(ctx, "articles:read")
	requireKind(t, auth.KindUnauthorized, err)

	reqCtx := auth.WithClaimsContext(ctx, login.Claims)
	got, ok := auth.GetClaims(reqCtx)
	require.True(t, ok)
	assert.Equal(t, login.Claims.Subject, got.Subject)

	claims, err := env.svc.AuthorizeContext(reqCtx, "articles:read")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)

	assert.True(t, auth.Can(reqCtx, env.svc.Resolver(), "articles:read"))
	assert.False(t, auth.Can(reqCtx, env.svc.Resolver(), "articles:write"))
	assert.False(t, auth.Can(ctx, env.svc.Resolver(), "articles:read"))
}

func TestPrometheusMetricsRecordOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := auth.NewPrometheusMetrics("test", reg)

	env := newTestEnv(t)
	svc, err := auth.NewService(testConfig(), env.stores,
		auth.WithLogger(testLogger{}),
		auth.WithClock(env.clock.Now),
		auth.WithMetrics(metrics),
	)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Register(ctx, auth.RegisterUserMessage{Email: "pepe@example.com", Password: testPassword})
	require.NoError(t, err)
	_, err = svc.Register(ctx, auth.RegisterUserMessage{Email: "pepe@example.com", Password: testPassword})
	require.Error(t, err)

	for i := 0; i < 3; i++ {
		_, _ = svc.Login(ctx, auth.LoginMessage{Email: "pepe@example.com", Password: "Wrong-Passw0rd"})
	}

	_, err = svc.Refresh(ctx, auth.RefreshMessage{RefreshToken: "unknown"})
	require.Error(t, err)

	expected := `
# HELP test_auth_account_lockouts_total Accounts locked after repeated failed logins.
# TYPE test_auth_account_lockouts_total counter
test_auth_account_lockouts_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_auth_account_lockouts_total"))

	expected = `
# HELP test_auth_refresh_rotations_total Refresh token rotations by result.
# TYPE test_auth_refresh_rotations_total counter
test_auth_refresh_rotations_total{result="unknown"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_auth_refresh_rotations_total"))

	commands := `
# HELP test_auth_commands_total Total number of auth commands by outcome.
# TYPE test_auth_commands_total counter
test_auth_commands_total{command="auth.login",outcome="unauthorized"} 3
test_auth_commands_total{command="auth.refresh",outcome="unauthorized"} 1
test_auth_commands_total{command="user.register",outcome="conflict"} 1
test_auth_commands_total{command="user.register",outcome="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(commands), "test_auth_commands_total"))

	metrics.EventsDropped(0)
	metrics.EventsDropped(2)
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "test_auth_events_dropped_total"))
}
