package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphacut/alphacut-backend/internal/devicestore"
	"github.com/alphacut/alphacut-backend/internal/entitlements"
	pkgAuth "github.com/alphacut/alphacut-backend/pkg/auth"
	"github.com/alphacut/alphacut-backend/pkg/config"
	"github.com/alphacut/alphacut-backend/pkg/enums"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
)

type memorySnapshots struct {
	data     map[string][]byte
	purged   []string
	purgeErr error
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{data: map[string][]byte{}}
}

func (m *memorySnapshots) Load(_ context.Context, sessionID string, kind devicestore.Kind, dest any) (bool, error) {
	raw, ok := m.data[sessionID+":"+string(kind)]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memorySnapshots) Save(_ context.Context, sessionID string, kind devicestore.Kind, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[sessionID+":"+string(kind)] = raw
	return nil
}

func (m *memorySnapshots) Purge(_ context.Context, sessionID string) error {
	m.purged = append(m.purged, sessionID)
	for _, kind := range []devicestore.Kind{devicestore.KindUser, devicestore.KindEntitlement, devicestore.KindAnalyses, devicestore.KindHabits} {
		delete(m.data, sessionID+":"+string(kind))
	}
	return m.purgeErr
}

type stubEntitlements struct {
	snapshots *memorySnapshots
}

func (s *stubEntitlements) Initialize(ctx context.Context, sessionID string) (entitlements.Record, error) {
	rec := entitlements.NewRecord()
	return rec, s.snapshots.Save(ctx, sessionID, devicestore.KindEntitlement, rec)
}

type stubSessions struct {
	open      map[string]string
	revoked   []string
	revokeErr error
}

func (s *stubSessions) Open(_ context.Context, sessionID, userID string) error {
	s.open[sessionID] = userID
	return nil
}

func (s *stubSessions) Revoke(_ context.Context, sessionID string) error {
	s.revoked = append(s.revoked, sessionID)
	delete(s.open, sessionID)
	return s.revokeErr
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "alphacut", ExpirationMinutes: 60}
}

func newTestService(t *testing.T) (Service, *memorySnapshots, *stubSessions) {
	t.Helper()
	snapshots := newMemorySnapshots()
	sessions := &stubSessions{open: map[string]string{}}
	svc, err := NewService(ServiceParams{
		Snapshots:      snapshots,
		Entitlements:   &stubEntitlements{snapshots: snapshots},
		SessionManager: sessions,
		JWTConfig:      testJWTConfig(),
		Clock:          func() time.Time { return time.Now() },
	})
	require.NoError(t, err)
	return svc, snapshots, sessions
}

func TestLoginCreatesSessionState(t *testing.T) {
	svc, snapshots, sessions := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Login(ctx, LoginRequest{Email: "Ana@Example.com", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, enums.PlanTypeFree, resp.Entitlement.Plan)
	assert.Zero(t, resp.Entitlement.AnalysisCount)
	assert.Equal(t, "ana@example.com", resp.User.Email)

	claims, err := pkgAuth.ParseSessionToken(testJWTConfig(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	sessionID := claims.SessionID()
	assert.Equal(t, resp.User.ID.String(), sessions.open[sessionID])

	me, err := svc.Me(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", me.Name)
	assert.Contains(t, snapshots.data, sessionID+":entitlement")
}

func TestLoginSameEmailGetsNewIdentity(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Login(ctx, LoginRequest{Email: "ana@example.com", Name: "Ana"})
	require.NoError(t, err)
	second, err := svc.Login(ctx, LoginRequest{Email: "ana@example.com", Name: "Someone else"})
	require.NoError(t, err)

	assert.NotEqual(t, first.User.ID, second.User.ID)
	claims, err := pkgAuth.ParseSessionToken(testJWTConfig(), second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, second.User.ID, claims.UserID)
}

func TestLoginRequiresEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "  "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestLogoutDropsEveryKey(t *testing.T) {
	svc, snapshots, sessions := newTestService(t)
	ctx := context.Background()
	resp, err := svc.Login(ctx, LoginRequest{Email: "ana@example.com"})
	require.NoError(t, err)
	claims, err := pkgAuth.ParseSessionToken(testJWTConfig(), resp.AccessToken)
	require.NoError(t, err)
	sessionID := claims.SessionID()
	require.NoError(t, snapshots.Save(ctx, sessionID, devicestore.KindHabits, map[string]any{"days": 3}))

	require.NoError(t, svc.Logout(ctx, sessionID))
	assert.Empty(t, snapshots.data)
	assert.Empty(t, sessions.open)

	_, err = svc.Me(ctx, sessionID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestLogoutRunsBothStepsOnFailure(t *testing.T) {
	svc, snapshots, sessions := newTestService(t)
	sessions.revokeErr = errors.New("redis down")
	snapshots.purgeErr = errors.New("redis still down")

	err := svc.Logout(context.Background(), "sid-1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, []string{"sid-1"}, sessions.revoked)
	assert.Equal(t, []string{"sid-1"}, snapshots.purged)
	assert.Contains(t, pkgerrors.As(err).Unwrap().Error(), "redis still down")
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}
