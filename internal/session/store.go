package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix = "refresh:"
	userKeyPrefix  = "refresh_user:"
)

// Both scripts run server-side so replace and spend are atomic per user;
// concurrent logins or refreshes cannot leave two live tokens.
var (
	// KEYS[1] token key, KEYS[2] user key; ARGV: username, ttl ms, token
	// key prefix, token.
	putScript = redis.NewScript(`
local prev = redis.call("GET", KEYS[2])
if prev then
  redis.call("DEL", ARGV[3] .. prev)
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SET", KEYS[2], ARGV[4], "PX", ARGV[2])
return 1
`)

	// KEYS[1] token key; ARGV: user key prefix, token. Returns 0 when the
	// token was already gone. The reverse key is only removed while it
	// still points at this token.
	deleteScript = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if not owner then
  return 0
end
redis.call("DEL", KEYS[1])
local userKey = ARGV[1] .. owner
if redis.call("GET", userKey) == ARGV[2] then
  redis.call("DEL", userKey)
end
return 1
`)
)

// RedisStore maps refresh token -> username, with a reverse key per user so
// issuing a new token replaces the previous one.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, username, token string, ttl time.Duration) error {
	keys := []string{tokenKeyPrefix + token, userKeyPrefix + username}
	err := putScript.Run(ctx, s.client, keys, username, ttl.Milliseconds(), tokenKeyPrefix, token).Err()
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (string, error) {
	username, err := s.client.Get(ctx, tokenKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrInvalidRefreshToken
		}
		return "", fmt.Errorf("read refresh token: %w", err)
	}

	return username, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	keys := []string{tokenKeyPrefix + token}
	deleted, err := deleteScript.Run(ctx, s.client, keys, userKeyPrefix, token).Int()
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	if deleted == 0 {
		return ErrInvalidRefreshToken
	}

	return nil
}
