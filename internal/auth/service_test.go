package auth

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/auth/hqpass"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/security"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	testJWT = config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60}
	testPW  = config.PasswordConfig{ArgonMemoryKB: 8, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
)

type memoryUsers struct {
	byID map[uuid.UUID]*models.User
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memoryUsers) RecordLogin(_ context.Context, id uuid.UUID, at time.Time, rehash string) error {
	if u, ok := m.byID[id]; ok {
		u.LastLoginAt = &at
		if rehash != "" {
			u.PasswordHash = rehash
		}
	}
	return nil
}

func (m *memoryUsers) Create(_ context.Context, input users.CreateUserDTO) (*models.User, error) {
	for _, u := range m.byID {
		if u.Email == input.Email {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
	}
	u := &models.User{ID: uuid.New(), Email: input.Email, PasswordHash: input.PasswordHash, DisplayName: input.DisplayName, Role: enums.UserRoleUser, TotalSpent: decimal.Zero}
	m.byID[u.ID] = u
	clone := *u
	return &clone, nil
}

type stubSessions struct {
	sessions map[string]uuid.UUID
	tokens   map[string]string
}

func newStubSessions() *stubSessions {
	return &stubSessions{sessions: map[string]uuid.UUID{}, tokens: map[string]string{}}
}

func (s *stubSessions) Generate(_ context.Context, accessID string, userID uuid.UUID) (string, error) {
	s.sessions[accessID] = userID
	s.tokens[accessID] = "refresh-" + accessID
	return s.tokens[accessID], nil
}

func (s *stubSessions) Rotate(ctx context.Context, oldAccessID, provided string) (*session.Rotated, error) {
	if s.tokens[oldAccessID] != provided || provided == "" {
		return nil, session.ErrInvalidRefreshToken
	}
	userID := s.sessions[oldAccessID]
	delete(s.sessions, oldAccessID)
	delete(s.tokens, oldAccessID)
	next := session.NewAccessID()
	token, _ := s.Generate(ctx, next, userID)
	return &session.Rotated{AccessID: next, RefreshToken: token, UserID: userID}, nil
}

func (s *stubSessions) Revoke(_ context.Context, accessID string) error {
	delete(s.sessions, accessID)
	delete(s.tokens, accessID)
	return nil
}

type stubPasses struct {
	issued  map[string]hqpass.Token
	revoked []string
}

func (p *stubPasses) Issue(_ context.Context, sessionID string) (*hqpass.Token, error) {
	now := time.Now().UTC()
	token := hqpass.Token{ID: uuid.NewString(), SessionID: sessionID, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	p.issued[sessionID] = token
	return &token, nil
}

func (p *stubPasses) Revoke(_ context.Context, sessionID string) error {
	p.revoked = append(p.revoked, sessionID)
	delete(p.issued, sessionID)
	return nil
}

type authFixture struct {
	svc      Service
	users    *memoryUsers
	sessions *stubSessions
	passes   *stubPasses
}

func newAuthFixture(t *testing.T, hq config.HeadquartersConfig) authFixture {
	t.Helper()
	store := &memoryUsers{byID: map[uuid.UUID]*models.User{}}
	sessions := newStubSessions()
	passes := &stubPasses{issued: map[string]hqpass.Token{}}
	svc, err := NewService(ServiceParams{
		Users:          store,
		Profiles:       store,
		Sessions:       sessions,
		Passes:         passes,
		JWTConfig:      testJWT,
		PasswordConfig: testPW,
		Headquarters:   hq,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return authFixture{svc: svc, users: store, sessions: sessions, passes: passes}
}

func TestRegisterThenLogin(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, config.HeadquartersConfig{})
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, RegisterRequest{Email: " New@Example.com ", Password: "correct-horse", DisplayName: "New"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.User.Email != "new@example.com" {
		t.Fatalf("expected normalized email, got %q", reg.User.Email)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, reg.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Role != enums.UserRoleUser {
		t.Fatalf("expected user role, got %s", claims.Role)
	}
	if _, ok := f.sessions.sessions[claims.SessionID()]; !ok {
		t.Fatal("expected refresh session bound to the jti")
	}

	if _, err := f.svc.Register(ctx, RegisterRequest{Email: "new@example.com", Password: "another-pass", DisplayName: "Dup"}); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict on duplicate email, got %v", err)
	}

	login, err := f.svc.Login(ctx, LoginRequest{Email: "new@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.User.ID != reg.User.ID {
		t.Fatalf("expected same user")
	}

	for _, bad := range []LoginRequest{
		{Email: "new@example.com", Password: "wrong"},
		{Email: "missing@example.com", Password: "correct-horse"},
		{Email: "", Password: "x"},
	} {
		if _, err := f.svc.Login(ctx, bad); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			t.Fatalf("expected unauthorized for %+v, got %v", bad, err)
		}
	}
}

func TestRefreshRereadsRole(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, config.HeadquartersConfig{})
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, RegisterRequest{Email: "staff@example.com", Password: "correct-horse", DisplayName: "Staff"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	claims, _ := pkgAuth.ParseAccessToken(testJWT, reg.AccessToken)
	f.users.byID[reg.User.ID].Role = enums.UserRoleAdmin

	refreshed, err := f.svc.Refresh(ctx, claims.SessionID(), reg.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	next, err := pkgAuth.ParseAccessToken(testJWT, refreshed.AccessToken)
	if err != nil {
		t.Fatalf("parse refreshed token: %v", err)
	}
	if next.Role != enums.UserRoleAdmin {
		t.Fatalf("expected refreshed role admin, got %s", next.Role)
	}
	if next.SessionID() == claims.SessionID() {
		t.Fatal("expected rotated session id")
	}

	if _, err := f.svc.Refresh(ctx, claims.SessionID(), reg.RefreshToken); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected reused refresh token to be rejected, got %v", err)
	}
}

func TestLogoutRevokesSessionAndPass(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, config.HeadquartersConfig{})
	ctx := context.Background()
	reg, err := f.svc.Register(ctx, RegisterRequest{Email: "out@example.com", Password: "correct-horse", DisplayName: "Out"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	claims, _ := pkgAuth.ParseAccessToken(testJWT, reg.AccessToken)

	if err := f.svc.Logout(ctx, claims.SessionID()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(f.sessions.sessions) != 0 {
		t.Fatal("expected session revoked")
	}
	if len(f.passes.revoked) != 1 || f.passes.revoked[0] != claims.SessionID() {
		t.Fatalf("expected pass revoked for session, got %v", f.passes.revoked)
	}
	if err := f.svc.Logout(ctx, ""); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for empty session, got %v", err)
	}
}

func TestHeadquartersPass(t *testing.T) {
	t.Parallel()
	hash, err := security.HashPassword("open sesame", testPW)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	f := newAuthFixture(t, config.HeadquartersConfig{PassphraseHash: hash, BypassTTL: time.Hour})
	ctx := context.Background()

	if _, err := f.svc.Headquarters(ctx, "session-1", "guess"); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected wrong passphrase to be rejected, got %v", err)
	}
	pass, err := f.svc.Headquarters(ctx, "session-1", "open sesame")
	if err != nil {
		t.Fatalf("headquarters: %v", err)
	}
	if pass.Token == "" || !pass.ExpiresAt.After(pass.IssuedAt) {
		t.Fatalf("unexpected pass %+v", pass)
	}
	if f.passes.issued["session-1"].ID != pass.Token {
		t.Fatal("expected pass bound to the caller's session")
	}

	disabled := newAuthFixture(t, config.HeadquartersConfig{})
	if _, err := disabled.svc.Headquarters(ctx, "session-1", "open sesame"); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden when no passphrase is provisioned, got %v", err)
	}
}

func TestLoginUpgradesStaleHash(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, config.HeadquartersConfig{})
	ctx := context.Background()

	weaker := testPW
	weaker.ArgonSaltLen = 8
	oldHash, err := security.HashPassword("correct-horse", weaker)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	id := uuid.New()
	f.users.byID[id] = &models.User{ID: id, Email: "legacy@example.com", PasswordHash: oldHash, Role: enums.UserRoleUser, TotalSpent: decimal.Zero}

	if _, err := f.svc.Login(ctx, LoginRequest{Email: "legacy@example.com", Password: "correct-horse"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	stored := f.users.byID[id]
	if stored.PasswordHash == oldHash {
		t.Fatal("expected stale hash to be replaced")
	}
	if security.NewHasher(testPW).Stale(stored.PasswordHash) {
		t.Fatal("replacement hash should use current costs")
	}
	if stored.LastLoginAt == nil {
		t.Fatal("expected last login stamped")
	}

	upgraded := stored.PasswordHash
	if _, err := f.svc.Login(ctx, LoginRequest{Email: "legacy@example.com", Password: "correct-horse"}); err != nil {
		t.Fatalf("second login: %v", err)
	}
	if f.users.byID[id].PasswordHash != upgraded {
		t.Fatal("current hash must not be rewritten")
	}
}
