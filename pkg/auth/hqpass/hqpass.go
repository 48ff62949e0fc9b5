// Package hqpass issues the time-boxed headquarters capability token that
// grants admin console access independently of the profile role.
package hqpass

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const DefaultTTL = time.Hour

// ErrNoPass is returned by Lookup when the session holds no live pass.
var ErrNoPass = errors.New("headquarters pass not found")

// Token is the capability stored per session.
type Token struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the token is still inside its window at now.
func (t Token) ValidAt(now time.Time) bool {
	return t.ID != "" && now.Before(t.ExpiresAt)
}

type store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type keyer interface {
	HQPassKey(sessionID string) string
}

// Checker is the read side used by the admin gate.
type Checker interface {
	Check(ctx context.Context, sessionID, tokenID string) (bool, error)
}

type Issuer struct {
	store store
	keys  keyer
	ttl   time.Duration
	now   func() time.Time
	logg  *logger.Logger
}

// NewIssuer builds an issuer backed by the redis client.
func NewIssuer(client interface {
	store
	keyer
}, ttl time.Duration, logg *logger.Logger) (*Issuer, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{store: client, keys: client, ttl: ttl, now: time.Now, logg: logg}, nil
}

// Issue mints a pass bound to sessionID, replacing any previous one.
func (i *Issuer) Issue(ctx context.Context, sessionID string) (*Token, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	now := i.now().UTC()
	token := Token{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}
	payload, err := json.Marshal(token)
	if err != nil {
		return nil, err
	}
	if err := i.store.Set(ctx, i.keys.HQPassKey(sessionID), string(payload), i.ttl); err != nil {
		return nil, fmt.Errorf("store headquarters pass: %w", err)
	}
	return &token, nil
}

// Lookup returns the live pass for sessionID. The expiry is re-checked against
// the clock on every read; the redis TTL only bounds storage.
func (i *Issuer) Lookup(ctx context.Context, sessionID string) (*Token, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrNoPass
	}
	key := i.keys.HQPassKey(sessionID)
	raw, err := i.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, ErrNoPass
		}
		return nil, err
	}
	var token Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		i.discard(ctx, key, "drop unreadable headquarters pass")
		return nil, ErrNoPass
	}
	if token.SessionID != sessionID || !token.ValidAt(i.now()) {
		i.discard(ctx, key, "drop stale headquarters pass")
		return nil, ErrNoPass
	}
	return &token, nil
}

// discard removes a pass Lookup refused. A failed delete leaves the key to
// its redis TTL, so it is logged rather than returned.
func (i *Issuer) discard(ctx context.Context, key, msg string) {
	if err := i.store.Del(ctx, key); err != nil && i.logg != nil {
		i.logg.Error(i.logg.WithField(ctx, "hq_pass_key", key), msg, err)
	}
}

// Check reports whether tokenID is the live pass of sessionID.
func (i *Issuer) Check(ctx context.Context, sessionID, tokenID string) (bool, error) {
	if strings.TrimSpace(tokenID) == "" {
		return false, nil
	}
	token, err := i.Lookup(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNoPass) {
			return false, nil
		}
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(token.ID), []byte(tokenID)) == 1, nil
}

// Revoke drops the pass of sessionID.
func (i *Issuer) Revoke(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	return i.store.Del(ctx, i.keys.HQPassKey(sessionID))
}
