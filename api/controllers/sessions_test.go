package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/alphacut/alphacut-backend/internal/auth"
	"github.com/alphacut/alphacut-backend/internal/entitlements"
	"github.com/alphacut/alphacut-backend/internal/users"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
)

type stubAuthService struct {
	lastLogin   auth.LoginRequest
	lastLogout  string
	logoutErr   error
	me          *users.User
	loginCalled bool
}

func (s *stubAuthService) Login(_ context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	s.loginCalled = true
	s.lastLogin = req
	user := users.New(req.Email, req.Name, controllerNow)
	return &auth.LoginResponse{
		AccessToken: "token-1",
		ExpiresAt:   controllerNow.Add(time.Hour),
		User:        user,
		Entitlement: entitlements.NewRecord(),
	}, nil
}

func (s *stubAuthService) Logout(_ context.Context, sessionID string) error {
	s.lastLogout = sessionID
	return s.logoutErr
}

func (s *stubAuthService) Me(_ context.Context, sessionID string) (*users.User, error) {
	if s.me == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return s.me, nil
}

func TestSessionLogin(t *testing.T) {
	svc := &stubAuthService{}
	rec := serveAs(SessionLogin(svc, nil), http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"email":"ana@example.com","name":"Ana"}`), "", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(tokenHeader) != "token-1" {
		t.Fatalf("expected token header, got %q", rec.Header().Get(tokenHeader))
	}
	var got auth.LoginResponse
	decodeData(t, rec, &got)
	if got.User.ID == uuid.Nil || got.User.Email != "ana@example.com" || got.Entitlement.Plan != entitlements.NewRecord().Plan {
		t.Fatalf("unexpected login response %+v", got)
	}
}

func TestSessionLoginValidatesBody(t *testing.T) {
	svc := &stubAuthService{}
	for _, body := range []string{`{"name":"Ana"}`, `{"email":"not-an-email"}`, `{"email":"a@b.co","role":"admin"}`} {
		rec := serveAs(SessionLogin(svc, nil), http.MethodPost, "/api/v1/sessions", strings.NewReader(body), "", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
	if svc.loginCalled {
		t.Fatalf("login should not run for invalid bodies")
	}
}

func TestSessionLogout(t *testing.T) {
	svc := &stubAuthService{}
	rec := serveAs(SessionLogout(svc, nil), http.MethodDelete, "/api/v1/sessions", nil, "user-1", "sess-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastLogout != "sess-1" {
		t.Fatalf("expected session sess-1 revoked, got %q", svc.lastLogout)
	}

	svc.logoutErr = pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("redis down"), "logout")
	rec = serveAs(SessionLogout(svc, nil), http.MethodDelete, "/api/v1/sessions", nil, "user-1", "sess-1")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestSessionMe(t *testing.T) {
	svc := &stubAuthService{}
	rec := serveAs(SessionMe(svc, nil), http.MethodGet, "/api/v1/sessions/me", nil, "user-1", "sess-1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a user snapshot, got %d", rec.Code)
	}

	svc.me = &users.User{ID: uuid.New(), Name: "Ana", Email: "ana@example.com"}
	rec = serveAs(SessionMe(svc, nil), http.MethodGet, "/api/v1/sessions/me", nil, "user-1", "sess-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got users.User
	decodeData(t, rec, &got)
	if got.Email != "ana@example.com" {
		t.Fatalf("unexpected user %+v", got)
	}
}
