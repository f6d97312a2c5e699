package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/alphacut/alphacut-backend/internal/devicestore"
	"github.com/alphacut/alphacut-backend/internal/entitlements"
	"github.com/alphacut/alphacut-backend/internal/users"
	pkgAuth "github.com/alphacut/alphacut-backend/pkg/auth"
	"github.com/alphacut/alphacut-backend/pkg/auth/session"
	"github.com/alphacut/alphacut-backend/pkg/config"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
)

// Service opens and closes device sessions.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Logout(ctx context.Context, sessionID string) error
	Me(ctx context.Context, sessionID string) (*users.User, error)
}

type snapshotStore interface {
	Load(ctx context.Context, sessionID string, kind devicestore.Kind, dest any) (bool, error)
	Save(ctx context.Context, sessionID string, kind devicestore.Kind, value any) error
	Purge(ctx context.Context, sessionID string) error
}

type entitlementInitializer interface {
	Initialize(ctx context.Context, sessionID string) (entitlements.Record, error)
}

type sessionManager interface {
	Open(ctx context.Context, sessionID, userID string) error
	Revoke(ctx context.Context, sessionID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Snapshots      snapshotStore
	Entitlements   entitlementInitializer
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	Clock          func() time.Time
}

type service struct {
	snapshots    snapshotStore
	entitlements entitlementInitializer
	session      sessionManager
	jwtCfg       config.JWTConfig
	now          func() time.Time
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Snapshots == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	if params.Entitlements == nil {
		return nil, fmt.Errorf("entitlement service is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		snapshots:    params.Snapshots,
		entitlements: params.Entitlements,
		session:      params.SessionManager,
		jwtCfg:       params.JWTConfig,
		now:          clock,
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if users.NormalizeEmail(req.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	now := s.now().UTC()
	user := users.New(req.Email, req.Name, now)
	sessionID := session.NewSessionID()

	if err := s.snapshots.Save(ctx, sessionID, devicestore.KindUser, user); err != nil {
		return nil, err
	}
	rec, err := s.entitlements.Initialize(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.session.Open(ctx, sessionID, user.ID.String()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open session")
	}

	token, err := pkgAuth.MintSessionToken(s.jwtCfg, now, pkgAuth.SessionTokenPayload{
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}

	return &LoginResponse{
		AccessToken: token,
		ExpiresAt:   now.Add(s.jwtCfg.TokenTTL()),
		User:        user,
		Entitlement: rec,
	}, nil
}

// Logout revokes the session and drops every device-local snapshot. Both
// steps run even when one fails.
func (s *service) Logout(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	err := multierr.Combine(
		s.session.Revoke(ctx, sessionID),
		s.snapshots.Purge(ctx, sessionID),
	)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "logout")
	}
	return nil
}

func (s *service) Me(ctx context.Context, sessionID string) (*users.User, error) {
	var user users.User
	found, err := s.snapshots.Load(ctx, sessionID, devicestore.KindUser, &user)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return &user, nil
}
