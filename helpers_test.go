package auth_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/goliatone/go-auth-rbac"
)

const testPassword = "Sup3rSecret!"

var testSigningKey = strings.Repeat("s", 32)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *recordingSink) Last(eventType auth.ActivityEventType) (auth.ActivityEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].EventType == eventType {
			return s.events[i], true
		}
	}
	return auth.ActivityEvent{}, false
}

func (s *recordingSink) Count(eventType auth.ActivityEventType) int {
	n := 0
	for _, t := range s.Types() {
		if t == eventType {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu            sync.Mutex
	verifications []*auth.EmailVerificationToken
	resets        []*auth.PasswordResetToken
	err           error
}

func (n *recordingNotifier) SendEmailVerification(_ context.Context, _ *auth.User, token *auth.EmailVerificationToken) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications = append(n.verifications, token)
	return n.err
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, _ *auth.User, token *auth.PasswordResetToken) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, token)
	return n.err
}

func (n *recordingNotifier) LastReset() *auth.PasswordResetToken {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resets) == 0 {
		return nil
	}
	return n.resets[len(n.resets)-1]
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	require.NoError(t, auth.CreateSchema(context.Background(), db))
	return db
}

func testConfig() auth.Config {
	cfg := auth.DefaultConfig()
	cfg.SigningKey = testSigningKey
	cfg.Issuer = "auth-test"
	cfg.Audience = []string{"auth-test-clients"}
	cfg.LockoutThreshold = 3
	cfg.LockoutDuration = 15 * time.Minute
	return cfg
}

type testEnv struct {
	db       *bun.DB
	repos    auth.RepositoryManager
	stores   auth.Stores
	svc      *auth.Service
	clock    *testClock
	sink     *recordingSink
	notifier *recordingNotifier
}

type envOption func(cfg *auth.Config, stores *auth.Stores)

func withConfig(fn func(cfg *auth.Config)) envOption {
	return func(cfg *auth.Config, _ *auth.Stores) { fn(cfg) }
}

func withStores(fn func(stores *auth.Stores)) envOption {
	return func(_ *auth.Config, stores *auth.Stores) { fn(stores) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	db := newTestDB(t)
	repos := auth.NewRepositoryManager(db)
	cfg := testConfig()
	stores := auth.StoresFromManager(repos)

	for _, opt := range opts {
		opt(&cfg, &stores)
	}

	env := &testEnv{
		db:       db,
		repos:    repos,
		stores:   stores,
		clock:    newTestClock(),
		sink:     &recordingSink{},
		notifier: &recordingNotifier{},
	}

	svc, err := auth.NewService(cfg, stores,
		auth.WithLogger(testLogger{}),
		auth.WithClock(env.clock.Now),
		auth.WithActivitySink(env.sink),
		auth.WithNotifier(env.notifier),
	)
	require.NoError(t, err)
	env.svc = svc

	return env
}

func (e *testEnv) register(t *testing.T, email string) *auth.RegisterUserResponse {
	t.Helper()
	resp, err := e.svc.Register(context.Background(), auth.RegisterUserMessage{
		FirstName: "Pepe",
		LastName:  "Rone",
		Email:     email,
		Password:  testPassword,
	})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) login(t *testing.T, email string) *auth.LoginResponse {
	t.Helper()
	resp, err := e.svc.Login(context.Background(), auth.LoginMessage{
		Email:    email,
		Password: testPassword,
	})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) reloadUser(t *testing.T, id uuid.UUID) *auth.User {
	t.Helper()
	user, err := e.repos.Users().FindByID(context.Background(), id)
	require.NoError(t, err)
	return user
}

func (e *testEnv) permission(t *testing.T, resource, action string) *auth.Permission {
	t.Helper()
	resp, err := e.svc.CreatePermission(context.Background(), auth.CreatePermissionMessage{
		Resource: resource,
		Action:   action,
	})
	require.NoError(t, err)
	return resp.Permission
}

func (e *testEnv) role(t *testing.T, name string, permissions ...*auth.Permission) *auth.Role {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(permissions))
	for _, p := range permissions {
		ids = append(ids, p.ID)
	}
	resp, err := e.svc.CreateRole(context.Background(), auth.CreateRoleMessage{
		Name:          name,
		PermissionIDs: ids,
	})
	require.NoError(t, err)
	return resp.Role
}

func requireKind(t *testing.T, kind auth.ErrorKind, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, auth.KindOf(err), "unexpected error: %v", err)
}

// racingUsers reports every email as free, as a concurrent registration would see it.
type racingUsers struct{ auth.UserStore }

func (racingUsers) Exists(context.Context, auth.Email) (bool, error) { return false, nil }

type racingRoles struct{ auth.RoleStore }

func (racingRoles) Exists(context.Context, string, *uuid.UUID) (bool, error) { return false, nil }

func withRacingLookups() envOption {
	return withStores(func(stores *auth.Stores) {
		stores.Users = racingUsers{stores.Users}
		stores.Roles = racingRoles{stores.Roles}
	})
}
