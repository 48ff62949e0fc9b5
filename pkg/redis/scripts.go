package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua keeps read-then-write sequences atomic on the server.
const (
	incrWindowSource = `local n = redis.call("INCR", KEYS[1])
if n == 1 then redis.call("PEXPIRE", KEYS[1], ARGV[1]) end
return n`

	delIfValueSource = `if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`

	expireIfValueSource = `if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`
)

var (
	incrWindowScript    = redis.NewScript(incrWindowSource)
	delIfValueScript    = redis.NewScript(delIfValueSource)
	expireIfValueScript = redis.NewScript(expireIfValueSource)
)

// IncrWithTTL increments key and starts its TTL on the first hit of a window.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return do(c, func(s commands) (int64, error) {
		return incrWindowScript.Run(ctx, s, []string{key}, ttl.Milliseconds()).Int64()
	})
}

// DelIfValue deletes key only while it still holds value.
func (c *Client) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	return do(c, func(s commands) (bool, error) {
		n, err := delIfValueScript.Run(ctx, s, []string{key}, value).Int64()
		return n == 1, err
	})
}

// ExpireIfValue resets the TTL of key only while it still holds value.
func (c *Client) ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return do(c, func(s commands) (bool, error) {
		n, err := expireIfValueScript.Run(ctx, s, []string{key}, value, ttl.Milliseconds()).Int64()
		return n == 1, err
	})
}
