package refreshredis_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/goliatone/go-auth-rbac"
	"github.com/goliatone/go-auth-rbac/refreshredis"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newRedis(t *testing.T) (*miniredis.Miniredis, *refreshredis.Store) {
	t.Helper()

	mr := miniredis.RunT(t)
	mr.SetTime(testNow)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, refreshredis.NewStore(client, "test")
}

func newToken(t *testing.T, userID uuid.UUID) *auth.RefreshToken {
	t.Helper()
	token, err := auth.NewRefreshToken(userID, time.Hour, testNow)
	require.NoError(t, err)
	token.UserAgent = "agent"
	token.IP = "10.0.0.1"
	return token
}

func TestSaveAndFind(t *testing.T) {
	mr, store := newRedis(t)
	ctx := context.Background()
	token := newToken(t, uuid.New())

	require.NoError(t, store.Save(ctx, token))
	assert.True(t, mr.Exists("test:rt:"+token.Value))

	found, err := store.FindByValue(ctx, token.Value)
	require.NoError(t, err)
	assert.Equal(t, token.ID, found.ID)
	assert.Equal(t, token.UserID, found.UserID)
	assert.True(t, token.ExpiresAt.Equal(found.ExpiresAt))
	assert.Equal(t, "agent", found.UserAgent)
	assert.Equal(t, "10.0.0.1", found.IP)
	assert.False(t, found.IsRevoked())

	_, err = store.FindByValue(ctx, "missing")
	require.Error(t, err)
	assert.True(t, auth.IsNotFound(err))
}

func TestTokensExpireWithTTL(t *testing.T) {
	mr, store := newRedis(t)
	ctx := context.Background()
	token := newToken(t, uuid.New())
	require.NoError(t, store.Save(ctx, token))

	mr.FastForward(time.Hour + time.Second)

	_, err := store.FindByValue(ctx, token.Value)
	assert.True(t, auth.IsNotFound(err))
}

func TestMarkRevokedIsCompareAndSet(t *testing.T) {
	_, store := newRedis(t)
	ctx := context.Background()
	token := newToken(t, uuid.New())
	require.NoError(t, store.Save(ctx, token))

	ok, err := store.MarkRevoked(ctx, token.Value, testNow)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkRevoked(ctx, token.Value, testNow.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := store.FindByValue(ctx, token.Value)
	require.NoError(t, err)
	require.NotNil(t, found.RevokedAt)
	assert.True(t, testNow.Equal(*found.RevokedAt))

	ok, err = store.MarkRevoked(ctx, "missing", testNow)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeAllForUser(t *testing.T) {
	_, store := newRedis(t)
	ctx := context.Background()
	userID := uuid.New()

	first, second, other := newToken(t, userID), newToken(t, userID), newToken(t, uuid.New())
	for _, token := range []*auth.RefreshToken{first, second, other} {
		require.NoError(t, store.Save(ctx, token))
	}

	ok, err := store.MarkRevoked(ctx, first.Value, testNow)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := store.RevokeAllForUser(ctx, userID, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "already revoked tokens are not counted")

	count, err := store.Count(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	found, err := store.FindByValue(ctx, other.Value)
	require.NoError(t, err)
	assert.False(t, found.IsRevoked())

	n, err = store.RevokeAllForUser(ctx, uuid.New(), testNow)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRevokeAllPrunesExpiredMembers(t *testing.T) {
	mr, store := newRedis(t)
	ctx := context.Background()
	userID := uuid.New()

	short, err := auth.NewRefreshToken(userID, time.Minute, testNow)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, short))
	require.NoError(t, store.Save(ctx, newToken(t, userID)))

	mr.FastForward(2 * time.Minute)

	n, err := store.RevokeAllForUser(ctx, userID, testNow.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := store.Count(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUserIndexOutlivesShorterTokens(t *testing.T) {
	mr, store := newRedis(t)
	ctx := context.Background()
	userID := uuid.New()

	long, err := auth.NewRefreshToken(userID, 30*24*time.Hour, testNow)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, long))

	short, err := auth.NewRefreshToken(userID, time.Hour, testNow)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, short))

	mr.FastForward(2 * time.Hour)
	require.True(t, mr.Exists("test:ru:"+userID.String()))

	n, err := store.RevokeAllForUser(ctx, userID, testNow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := store.FindByValue(ctx, long.Value)
	require.NoError(t, err)
	assert.True(t, found.IsRevoked())
}

func TestUnavailableIsInfrastructure(t *testing.T) {
	mr, store := newRedis(t)
	mr.Close()

	_, err := store.FindByValue(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, auth.IsInfrastructure(err))
	assert.ErrorIs(t, err, refreshredis.ErrRedisUnavailable)
}

func TestCorruptRecordIsInfrastructure(t *testing.T) {
	mr, store := newRedis(t)
	mr.HSet("test:rt:broken", "id", "not-a-uuid")

	_, err := store.FindByValue(context.Background(), "broken")
	require.Error(t, err)
	assert.True(t, auth.IsInfrastructure(err))
}

func newService(t *testing.T, store *refreshredis.Store) *auth.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })
	require.NoError(t, auth.CreateSchema(context.Background(), db))

	stores := auth.StoresFromManager(auth.NewRepositoryManager(db))
	stores.RefreshTokens = store

	cfg := auth.DefaultConfig()
	cfg.SigningKey = strings.Repeat("k", 32)

	svc, err := auth.NewService(cfg, stores, auth.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return svc
}

func TestServiceRefreshWithRedisStore(t *testing.T) {
	_, store := newRedis(t)
	svc := newService(t, store)
	ctx := context.Background()

	_, err := svc.Register(ctx, auth.RegisterUserMessage{Email: "pepe@example.com", Password: "Sup3rSecret!"})
	require.NoError(t, err)

	login, err := svc.Login(ctx, auth.LoginMessage{Email: "pepe@example.com", Password: "Sup3rSecret!"})
	require.NoError(t, err)

	const callers = 16
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		winners atomic.Int32
		losers  atomic.Int32
		next    atomic.Value
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			resp, err := svc.Refresh(ctx, auth.RefreshMessage{RefreshToken: login.RefreshToken.Value})
			if err != nil {
				if auth.IsUnauthorized(err) {
					losers.Add(1)
				}
				return
			}
			winners.Add(1)
			next.Store(resp.RefreshToken.Value)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(callers-1), losers.Load())

	resp, err := svc.Logout(ctx, auth.LogoutMessage{RefreshToken: next.Load().(string), AllDevices: true})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Revoked)
}
