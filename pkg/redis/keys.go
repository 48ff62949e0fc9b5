package redis

import "strings"

// every key lives under sf:<kind>:...
const (
	keyNamespace = "sf"

	kindIdempotency = "idempotency"
	kindRateLimit   = "rate_limit"
	kindSession     = "session"
	kindHQPass      = "hq_pass"
	kindLock        = "lock"
)

func buildKey(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(kind)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}

// IdempotencyKey namespaces a replay or delivery record.
func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(kindIdempotency, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return buildKey(kindRateLimit, scope)
}

// AccessSessionKey holds the refresh session bound to an access token id.
func (c *Client) AccessSessionKey(accessID string) string {
	return buildKey(kindSession, "access", accessID)
}

// HQPassKey holds the headquarters bypass issued to a session.
func (c *Client) HQPassKey(sessionID string) string {
	return buildKey(kindHQPass, sessionID)
}

func (c *Client) LockKey(name string) string {
	return buildKey(kindLock, name)
}
