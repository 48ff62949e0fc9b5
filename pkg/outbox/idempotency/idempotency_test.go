package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	claimed     map[string]bool
	setNXError  error
	lastTTL     time.Duration
	lastDeleted string
}

func newFakeStore() *fakeStore {
	return &fakeStore{claimed: map[string]bool{}}
}

func (f *fakeStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if f.setNXError != nil {
		return false, f.setNXError
	}
	f.lastTTL = ttl
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "sf:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.claimed, key)
		f.lastDeleted = key
	}
	return nil
}

func TestGuardClaimOnce(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	guard, err := NewGuard(store, "outbox-publisher", 24*time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	eventID := uuid.NewString()
	first, err := guard.Claim(context.Background(), eventID)
	if err != nil || !first {
		t.Fatalf("expected first claim to succeed, got %v %v", first, err)
	}
	second, err := guard.Claim(context.Background(), eventID)
	if err != nil || second {
		t.Fatalf("expected second claim to be rejected, got %v %v", second, err)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl %v", store.lastTTL)
	}
}

func TestGuardReleaseAllowsReclaim(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	guard, _ := NewGuard(store, "outbox-publisher", time.Hour)
	eventID := uuid.NewString()

	if _, err := guard.Claim(context.Background(), eventID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := guard.Release(context.Background(), eventID); err != nil {
		t.Fatalf("release: %v", err)
	}
	want := "sf:idempotency:evt:processed:outbox-publisher:" + eventID
	if store.lastDeleted != want {
		t.Fatalf("unexpected deleted key %q", store.lastDeleted)
	}
	again, err := guard.Claim(context.Background(), eventID)
	if err != nil || !again {
		t.Fatalf("expected reclaim after release, got %v %v", again, err)
	}
}

func TestGuardErrors(t *testing.T) {
	t.Parallel()
	if _, err := NewGuard(nil, "w", time.Hour); err == nil {
		t.Fatal("expected missing store error")
	}
	if _, err := NewGuard(newFakeStore(), "", time.Hour); err == nil {
		t.Fatal("expected missing worker error")
	}

	store := newFakeStore()
	store.setNXError = errors.New("boom")
	guard, _ := NewGuard(store, "w", time.Hour)
	if _, err := guard.Claim(context.Background(), uuid.NewString()); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := guard.Claim(context.Background(), ""); err == nil {
		t.Fatal("expected empty event id error")
	}
}
