package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/auth/hqpass"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/security"
	"github.com/google/uuid"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controllers.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error)
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, accessID, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context, accessID string) error
	Headquarters(ctx context.Context, accessID, passphrase string) (*HeadquartersPass, error)
}

type userStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time, rehash string) error
}

type profileCreator interface {
	Create(ctx context.Context, input users.CreateUserDTO) (*models.User, error)
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string, userID uuid.UUID) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (*session.Rotated, error)
	Revoke(ctx context.Context, accessID string) error
}

type passIssuer interface {
	Issue(ctx context.Context, sessionID string) (*hqpass.Token, error)
	Revoke(ctx context.Context, sessionID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Users          userStore
	Profiles       profileCreator
	Sessions       sessionManager
	Passes         passIssuer
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	Headquarters   config.HeadquartersConfig
	Logger         *logger.Logger
}

type service struct {
	users    userStore
	profiles profileCreator
	sessions sessionManager
	passes   passIssuer
	jwtCfg   config.JWTConfig
	hasher   *security.Hasher
	hqCfg    config.HeadquartersConfig
	logg     *logger.Logger
	now      func() time.Time
}

// NewService constructs the auth service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile creator is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if params.Passes == nil {
		return nil, fmt.Errorf("headquarters pass issuer is required")
	}
	return &service{
		users:    params.Users,
		profiles: params.Profiles,
		sessions: params.Sessions,
		passes:   params.Passes,
		jwtCfg:   params.JWTConfig,
		hasher:   security.NewHasher(params.PasswordConfig),
		hqCfg:    params.Headquarters,
		logg:     params.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Register creates the profile on the lowest membership level and signs the
// new user in.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name is required")
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid password")
	}
	user, err := s.profiles.Create(ctx, users.CreateUserDTO{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  name,
	})
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user, s.now())
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.users.RecordLogin(ctx, user.ID, now, s.rehash(ctx, user, req.Password)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record login")
	}
	user.LastLoginAt = &now
	return s.issue(ctx, user, now)
}

// Refresh rotates the session and mints a new access token. The role is read
// from the profile again so a demotion takes effect on the next refresh.
func (s *service) Refresh(ctx context.Context, accessID, refreshToken string) (*TokenResponse, error) {
	rotated, err := s.sessions.Rotate(ctx, accessID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}
	_ = s.passes.Revoke(ctx, accessID)

	user, err := s.users.FindByID(ctx, rotated.UserID)
	if err != nil {
		_ = s.sessions.Revoke(ctx, rotated.AccessID)
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account no longer exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, s.now(), pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    rotated.AccessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: rotated.RefreshToken,
		User:         users.FromModel(user),
	}, nil
}

// Logout drops the refresh session and any headquarters pass bound to it.
func (s *service) Logout(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if err := s.sessions.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	if err := s.passes.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke headquarters pass")
	}
	return nil
}

// Headquarters exchanges the configured passphrase for a bypass token bound
// to the caller's session.
func (s *service) Headquarters(ctx context.Context, accessID, passphrase string) (*HeadquartersPass, error) {
	if !s.hqCfg.Enabled() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "headquarters access is not configured")
	}
	if strings.TrimSpace(accessID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	ok, err := security.VerifyPassword(passphrase, s.hqCfg.PassphraseHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify passphrase")
	}
	if !ok {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "session_id", accessID), "headquarters passphrase rejected")
		}
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid passphrase")
	}
	token, err := s.passes.Issue(ctx, accessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue headquarters pass")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "session_id", accessID), "headquarters pass issued")
	}
	return &HeadquartersPass{Token: token.ID, IssuedAt: token.IssuedAt, ExpiresAt: token.ExpiresAt}, nil
}

func (s *service) issue(ctx context.Context, user *models.User, now time.Time) (*TokenResponse, error) {
	accessID := session.NewAccessID()
	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refreshToken, err := s.sessions.Generate(ctx, accessID, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refresh token")
	}
	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         users.FromModel(user),
	}, nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	input := strings.TrimSpace(email)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByEmail(ctx, input)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	valid, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return user, nil
}

// rehash returns a fresh hash when the stored one was made at another cost.
// Failing to rehash never blocks the login.
func (s *service) rehash(ctx context.Context, user *models.User, password string) string {
	if !s.hasher.Stale(user.PasswordHash) {
		return ""
	}
	fresh, err := s.hasher.Hash(password)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithUserID(ctx, user.ID.String()), "password rehash failed", err)
		}
		return ""
	}
	return fresh
}
