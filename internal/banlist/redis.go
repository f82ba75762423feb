package banlist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"turnstile/internal/clock"
)

const keyPrefix = "turnstile:ban:"

// banScript stores the ban deadline unless a later one is already present.
//
// KEYS[1] = ban key
// ARGV[1] = deadline in unix milliseconds
// ARGV[2] = ttl in milliseconds
var banScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
    return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// RedisStore shares bans between processes that use the same API key or IP.
type RedisStore struct {
	client redis.UniversalClient
	clock  clock.Clock
	owned  bool
}

// NewRedisStore wraps an existing client. Close does not close it.
func NewRedisStore(client redis.UniversalClient, clk clock.Clock) *RedisStore {
	if clk == nil {
		clk = clock.New()
	}
	return &RedisStore{client: client, clock: clk}
}

// OpenRedis connects to a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	s := NewRedisStore(client, nil)
	s.owned = true
	return s, nil
}

func (s *RedisStore) Ban(ctx context.Context, scope string, until time.Time) error {
	ttl := until.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	err := banScript.Run(ctx, s.client, []string{keyPrefix + scope}, until.UnixMilli(), ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("banlist: ban %s: %w", scope, err)
	}
	return nil
}

func (s *RedisStore) BannedUntil(ctx context.Context, scope string) (time.Time, error) {
	val, err := s.client.Get(ctx, keyPrefix+scope).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("banlist: get %s: %w", scope, err)
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("banlist: parse %s: %w", scope, err)
	}
	until := time.UnixMilli(ms)
	if !until.After(s.clock.Now()) {
		return time.Time{}, nil
	}
	return until, nil
}

func (s *RedisStore) Lift(ctx context.Context, scope string) error {
	if err := s.client.Del(ctx, keyPrefix+scope).Err(); err != nil {
		return fmt.Errorf("banlist: lift %s: %w", scope, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
