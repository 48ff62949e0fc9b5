// Package session keeps refresh sessions in redis, one key per access token
// id (the JWT jti).
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

const refreshTokenBytes = 32

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	errNoAccessID = errors.New("access id is required")
)

// Store is the redis surface sessions live on.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker is what the auth middleware needs.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// entry is stored per access id. Only a digest of the refresh token is kept.
type entry struct {
	UserID      uuid.UUID `json:"user_id"`
	TokenDigest string    `json:"token_sha256"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Rotated is the session that replaced the one presented to Rotate.
type Rotated struct {
	AccessID     string
	RefreshToken string
	UserID       uuid.UUID
}

type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager requires the refresh lifetime to outlast the access token so a
// client can always refresh an expired access token.
func NewManager(store Store, cfg config.JWTConfig) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	ttl := cfg.RefreshTokenTTL()
	accessTTL := time.Duration(cfg.ExpirationMinutes) * time.Minute
	if ttl <= 0 || ttl <= accessTTL {
		return nil, fmt.Errorf("refresh token ttl (%s) must be positive and exceed access token ttl (%s)", ttl, accessTTL)
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// NewAccessID produces the identifier used as the JWT jti and redis key.
func NewAccessID() string {
	return uuid.NewString()
}

// Generate opens a session for accessID and returns its refresh token.
func (m *Manager) Generate(ctx context.Context, accessID string, userID uuid.UUID) (string, error) {
	if strings.TrimSpace(accessID) == "" {
		return "", errNoAccessID
	}
	if userID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	return m.open(ctx, accessID, userID)
}

// Rotate trades a refresh token for a new session. The old session is
// claimed with a compare-and-delete so two concurrent refreshes with the same
// token cannot both succeed.
func (m *Manager) Rotate(ctx context.Context, oldAccessID, presented string) (*Rotated, error) {
	if strings.TrimSpace(oldAccessID) == "" || strings.TrimSpace(presented) == "" {
		return nil, ErrInvalidRefreshToken
	}
	key := m.store.AccessSessionKey(oldAccessID)

	raw, err := m.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}
	var current entry
	if json.Unmarshal([]byte(raw), &current) != nil || current.TokenDigest != digest(presented) {
		return nil, ErrInvalidRefreshToken
	}

	claimed, err := m.store.DelIfValue(ctx, key, raw)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrInvalidRefreshToken
	}

	next := &Rotated{AccessID: NewAccessID(), UserID: current.UserID}
	if next.RefreshToken, err = m.open(ctx, next.AccessID, current.UserID); err != nil {
		return nil, err
	}
	return next, nil
}

// Revoke ends the session for accessID. Unknown ids are not an error.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return errNoAccessID
	}
	return m.store.Del(ctx, m.store.AccessSessionKey(accessID))
}

// HasSession reports whether accessID still has a live session.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, errNoAccessID
	}
	_, err := m.store.Get(ctx, m.store.AccessSessionKey(accessID))
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (m *Manager) open(ctx context.Context, accessID string, userID uuid.UUID) (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	encoded, err := json.Marshal(entry{UserID: userID, TokenDigest: digest(token), IssuedAt: m.now().UTC()})
	if err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, m.store.AccessSessionKey(accessID), string(encoded), m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
