package security_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

var fastParams = config.PasswordConfig{
	ArgonMemoryKB:    8192,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()
	hash, err := security.HashPassword("very-secure-password", fastParams)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected hash format %q", hash)
	}

	ok, err := security.VerifyPassword("very-secure-password", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, got %v %v", ok, err)
	}
	ok, err = security.VerifyPassword("bogus-password", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got %v %v", ok, err)
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	t.Parallel()
	if _, err := security.HashPassword("", fastParams); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	t.Parallel()
	for _, encoded := range []string{
		"not-a-hash",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=8,t=1,p=1$c2FsdA$",
	} {
		if _, err := security.VerifyPassword("irrelevant", encoded); !errors.Is(err, security.ErrInvalidHash) {
			t.Fatalf("expected ErrInvalidHash for %q, got %v", encoded, err)
		}
	}
}

func TestRandomHex(t *testing.T) {
	t.Parallel()
	value, err := security.RandomHex(3)
	if err != nil {
		t.Fatalf("RandomHex: %v", err)
	}
	if len(value) != 6 {
		t.Fatalf("expected 6 hex chars, got %q", value)
	}
	if _, err := security.RandomHex(0); err == nil {
		t.Fatal("expected error for non-positive length")
	}
}

func TestHasherStale(t *testing.T) {
	t.Parallel()
	hasher := security.NewHasher(fastParams)
	current, err := hasher.Hash("hunter22")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hasher.Stale(current) {
		t.Fatal("hash at current cost reported stale")
	}

	cheaper := fastParams
	cheaper.ArgonMemoryKB = 8
	old, err := security.HashPassword("hunter22", cheaper)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !hasher.Stale(old) {
		t.Fatal("hash at lower memory cost should be stale")
	}
	if ok, _ := security.VerifyPassword("hunter22", old); !ok {
		t.Fatal("stale hash must still verify")
	}
	if !hasher.Stale("garbage") {
		t.Fatal("unparseable hash should be stale")
	}
}
