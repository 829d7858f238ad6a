package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle counts failed sign-in attempts per account in a fixed window
// stored in Redis. Keys hash the account identifier so emails are not
// written to Redis in clear.
type Throttle struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

// failScript bumps the counter and arms the window in one step. A key that
// somehow lost its TTL gets one on the next failure, so a counter can never
// outlive its window.
var failScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// NewThrottle builds a Throttle allowing limit failures per window.
func NewThrottle(client *redis.Client, limit int, window time.Duration) *Throttle {
	return &Throttle{client: client, limit: int64(limit), window: window, prefix: "lumen:login_failures:"}
}

// Blocked reports whether key has reached the failure limit.
func (t *Throttle) Blocked(ctx context.Context, key string) (bool, error) {
	if t == nil || t.limit <= 0 {
		return false, nil
	}
	n, err := t.client.Get(ctx, t.redisKey(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("auth: throttle get: %w", err)
	}
	return n >= t.limit, nil
}

// Fail records one failed attempt and returns the count in the current
// window. The window starts at the first failure.
func (t *Throttle) Fail(ctx context.Context, key string) (int64, error) {
	if t == nil || t.limit <= 0 {
		return 0, nil
	}
	n, err := failScript.Run(ctx, t.client, []string{t.redisKey(key)}, t.window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("auth: throttle fail: %w", err)
	}
	return n, nil
}

// Reset clears the failure count for key.
func (t *Throttle) Reset(ctx context.Context, key string) error {
	if t == nil || t.limit <= 0 {
		return nil
	}
	if err := t.client.Del(ctx, t.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("auth: throttle reset: %w", err)
	}
	return nil
}

func (t *Throttle) redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return t.prefix + hex.EncodeToString(sum[:])
}
