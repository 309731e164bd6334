package refreshredis

import (
	"context"
	"errors"
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	auth "github.com/goliatone/go-auth-rbac"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "auth"

// ErrRedisUnavailable wraps transport failures.
var ErrRedisUnavailable = errors.New("refresh token store unavailable")

const (
	fieldID        = "id"
	fieldUserID    = "user_id"
	fieldExpiresAt = "expires_at"
	fieldCreatedAt = "created_at"
	fieldRevokedAt = "revoked_at"
	fieldUserAgent = "user_agent"
	fieldIP        = "ip"
)

// save writes the token hash and indexes it in the user's sorted set, scored
// by expiry. The index key only ever expires with its longest-lived member.
const saveScript = `
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('PEXPIREAT', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
local top = redis.call('ZRANGE', KEYS[2], -1, -1)
if top[1] == ARGV[2] then
  redis.call('PEXPIREAT', KEYS[2], ARGV[1])
end
return 1
`

var saveLua = redis.NewScript(saveScript)

// revoke returns -1 for a missing token, 0 when it was already revoked and
// 1 for the single caller that revoked it.
const revokeScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local revoked = redis.call('HGET', KEYS[1], 'revoked_at')
if revoked and revoked ~= '' then
  return 0
end
redis.call('HSET', KEYS[1], 'revoked_at', ARGV[1])
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// revokeAll walks the user index, revoking live tokens and pruning
// members whose hash already expired.
const revokeAllScript = `
local members = redis.call('ZRANGE', KEYS[1], 0, -1)
local revoked = 0
for _, value in ipairs(members) do
  local key = ARGV[2] .. value
  if redis.call('EXISTS', key) == 1 then
    local at = redis.call('HGET', key, 'revoked_at')
    if not at or at == '' then
      redis.call('HSET', key, 'revoked_at', ARGV[1])
      revoked = revoked + 1
    end
  else
    redis.call('ZREM', KEYS[1], value)
  end
end
return revoked
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// Store keeps refresh tokens in Redis hashes, one per token value, plus a
// sorted set per user indexing its token values by expiry.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

var _ auth.RefreshTokenStore = (*Store)(nil)

// NewStore creates a Store. An empty prefix uses DefaultPrefix.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		redis:  client,
		prefix: prefix,
	}
}

func (s *Store) tokenPrefix() string {
	return s.prefix + ":rt:"
}

func (s *Store) key(value string) string {
	return s.tokenPrefix() + value
}

func (s *Store) userKey(userID uuid.UUID) string {
	return s.prefix + ":ru:" + userID.String()
}

func (s *Store) Save(ctx context.Context, token *auth.RefreshToken) error {
	key := s.key(token.Value)
	userKey := s.userKey(token.UserID)

	expiresAt := strconv.FormatInt(token.ExpiresAt.UnixMilli(), 10)
	args := []any{
		expiresAt, token.Value,
		fieldID, token.ID.String(),
		fieldUserID, token.UserID.String(),
		fieldExpiresAt, formatTime(token.ExpiresAt),
		fieldCreatedAt, formatTime(token.CreatedAt),
		fieldUserAgent, token.UserAgent,
		fieldIP, token.IP,
	}
	if token.RevokedAt != nil {
		args = append(args, fieldRevokedAt, formatTime(*token.RevokedAt))
	}

	if err := saveLua.Run(ctx, s.redis, []string{key, userKey}, args...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) FindByValue(ctx context.Context, value string) (*auth.RefreshToken, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(value)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound()
		}
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, notFound()
	}
	return decode(value, fields)
}

func (s *Store) MarkRevoked(ctx context.Context, value string, at time.Time) (bool, error) {
	res, err := revokeLua.Run(ctx, s.redis, []string{s.key(value)}, formatTime(at)).Int()
	if err != nil {
		return false, unavailable(err)
	}
	return res == 1, nil
}

func (s *Store) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int, error) {
	res, err := revokeAllLua.Run(ctx, s.redis, []string{s.userKey(userID)}, formatTime(at), s.tokenPrefix()).Int()
	if err != nil {
		return 0, unavailable(err)
	}
	return res, nil
}

// Count returns how many token values are indexed for the user.
func (s *Store) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.redis.ZCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func decode(value string, fields map[string]string) (*auth.RefreshToken, error) {
	id, err := uuid.Parse(fields[fieldID])
	if err != nil {
		return nil, corrupt(fieldID, err)
	}
	userID, err := uuid.Parse(fields[fieldUserID])
	if err != nil {
		return nil, corrupt(fieldUserID, err)
	}
	expiresAt, err := parseTime(fields[fieldExpiresAt])
	if err != nil {
		return nil, corrupt(fieldExpiresAt, err)
	}
	createdAt, err := parseTime(fields[fieldCreatedAt])
	if err != nil {
		return nil, corrupt(fieldCreatedAt, err)
	}

	token := &auth.RefreshToken{
		OpaqueToken: auth.OpaqueToken{
			ID:        id,
			Value:     value,
			UserID:    userID,
			ExpiresAt: expiresAt,
			CreatedAt: createdAt,
		},
		UserAgent: fields[fieldUserAgent],
		IP:        fields[fieldIP],
	}

	if raw := fields[fieldRevokedAt]; raw != "" {
		revokedAt, err := parseTime(raw)
		if err != nil {
			return nil, corrupt(fieldRevokedAt, err)
		}
		token.RevokedAt = &revokedAt
	}

	return token, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}

func notFound() error {
	return goerrors.New("refresh token not found", goerrors.CategoryNotFound).
		WithTextCode(auth.TextCodeRecordNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{"store": "redis"})
}

func unavailable(err error) error {
	return goerrors.Wrap(errors.Join(ErrRedisUnavailable, err), goerrors.CategoryInternal, ErrRedisUnavailable.Error()).
		WithTextCode(auth.TextCodeInfrastructure)
}

func corrupt(field string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "corrupt refresh token record").
		WithTextCode(auth.TextCodeInfrastructure).
		WithMetadata(map[string]any{"field": field})
}
