package hqpass

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type memoryStore struct {
	data   map[string]string
	ttl    map[string]time.Duration
	delErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.data[key] = fmt.Sprint(value)
	m.ttl[key] = ttl
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return v, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	if m.delErr != nil {
		return m.delErr
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) HQPassKey(sessionID string) string {
	return "hq:" + sessionID
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestIssuer(t *testing.T) (*Issuer, *memoryStore, *clock) {
	t.Helper()
	store := newMemoryStore()
	issuer, err := NewIssuer(store, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	issuer.now = c.Now
	return issuer, store, c
}

func TestIssueAndCheck(t *testing.T) {
	t.Parallel()
	issuer, store, _ := newTestIssuer(t)
	ctx := context.Background()

	token, err := issuer.Issue(ctx, "session-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token.ExpiresAt.Sub(token.IssuedAt) != time.Hour {
		t.Fatalf("expected one hour window, got %v", token.ExpiresAt.Sub(token.IssuedAt))
	}
	if store.ttl["hq:session-1"] != time.Hour {
		t.Fatalf("unexpected redis ttl %v", store.ttl["hq:session-1"])
	}

	ok, err := issuer.Check(ctx, "session-1", token.ID)
	if err != nil || !ok {
		t.Fatalf("expected valid pass, got %v %v", ok, err)
	}
	if ok, _ := issuer.Check(ctx, "session-1", "forged"); ok {
		t.Fatal("forged token id accepted")
	}
	if ok, _ := issuer.Check(ctx, "session-2", token.ID); ok {
		t.Fatal("pass leaked across sessions")
	}
}

func TestExpiryIsCheckedOnRead(t *testing.T) {
	t.Parallel()
	issuer, store, c := newTestIssuer(t)
	ctx := context.Background()

	token, err := issuer.Issue(ctx, "session-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	c.now = token.ExpiresAt.Add(-time.Second)
	if ok, _ := issuer.Check(ctx, "session-1", token.ID); !ok {
		t.Fatal("expected pass valid one second before expiry")
	}

	// The stored key is still present; only the clock moved.
	c.now = token.ExpiresAt
	if ok, _ := issuer.Check(ctx, "session-1", token.ID); ok {
		t.Fatal("expected pass rejected at expiry")
	}
	if _, exists := store.data["hq:session-1"]; exists {
		t.Fatal("expired pass should be purged on read")
	}
}

func TestRevokeAndMissing(t *testing.T) {
	t.Parallel()
	issuer, _, _ := newTestIssuer(t)
	ctx := context.Background()

	if _, err := issuer.Lookup(ctx, "nobody"); err != ErrNoPass {
		t.Fatalf("expected ErrNoPass, got %v", err)
	}
	token, _ := issuer.Issue(ctx, "session-1")
	if err := issuer.Revoke(ctx, "session-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if ok, _ := issuer.Check(ctx, "session-1", token.ID); ok {
		t.Fatal("revoked pass accepted")
	}
	if _, err := issuer.Issue(ctx, " "); err == nil {
		t.Fatal("expected error for empty session")
	}
}

func TestCorruptPayloadIsDropped(t *testing.T) {
	t.Parallel()
	issuer, store, _ := newTestIssuer(t)
	store.data["hq:session-1"] = "{not json"
	if _, err := issuer.Lookup(context.Background(), "session-1"); err != ErrNoPass {
		t.Fatalf("expected ErrNoPass, got %v", err)
	}
	if _, exists := store.data["hq:session-1"]; exists {
		t.Fatal("corrupt payload should be removed")
	}
}

func TestFailedPurgeIsLogged(t *testing.T) {
	t.Parallel()
	buf := &bytes.Buffer{}
	store := newMemoryStore()
	store.delErr = errors.New("redis down")
	issuer, err := NewIssuer(store, time.Hour, logger.New(logger.Options{ServiceName: "test", Output: buf, Format: "json"}))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	store.data["hq:session-1"] = "{not json"

	if _, err := issuer.Lookup(context.Background(), "session-1"); err != ErrNoPass {
		t.Fatalf("expected ErrNoPass, got %v", err)
	}
	out := buf.String()
	for _, want := range []string{"drop unreadable headquarters pass", "redis down", `"hq_pass_key":"hq:session-1"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in entry=%s", want, out)
		}
	}
}

func TestFailedPurgeWithoutLogger(t *testing.T) {
	t.Parallel()
	issuer, store, c := newTestIssuer(t)
	ctx := context.Background()
	token, err := issuer.Issue(ctx, "session-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	store.delErr = errors.New("redis down")
	c.now = token.ExpiresAt

	if ok, err := issuer.Check(ctx, "session-1", token.ID); ok || err != nil {
		t.Fatalf("expected rejected pass without error, got %v %v", ok, err)
	}
}
