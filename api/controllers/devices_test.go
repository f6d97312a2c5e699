package controllers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/alphacut/alphacut-backend/internal/devicestore"
)

func newDeviceRouter(t *testing.T) (http.Handler, *devicestore.Store) {
	t.Helper()
	store := newSnapshotStore(t)
	r := chi.NewRouter()
	r.Get("/api/v1/devices/me/{kind}", DeviceSnapshotGet(store, nil))
	r.Put("/api/v1/devices/me/{kind}", DeviceSnapshotPut(store, nil))
	return r, store
}

func TestDeviceSnapshotRoundTrip(t *testing.T) {
	router, _ := newDeviceRouter(t)

	rec := serveAs(router, http.MethodGet, "/api/v1/devices/me/habits", nil, "user-1", "sess-1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any write, got %d", rec.Code)
	}

	rec = serveAs(router, http.MethodPut, "/api/v1/devices/me/habits", strings.NewReader(`{"streak":3}`), "user-1", "sess-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	rec = serveAs(router, http.MethodPut, "/api/v1/devices/me/habits", strings.NewReader(`{"streak":4}`), "user-1", "sess-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = serveAs(router, http.MethodGet, "/api/v1/devices/me/habits", nil, "user-1", "sess-1")
	var got map[string]int
	decodeData(t, rec, &got)
	if len(got) != 1 || got["streak"] != 4 {
		t.Fatalf("expected the last snapshot whole, got %v", got)
	}

	rec = serveAs(router, http.MethodGet, "/api/v1/devices/me/habits", nil, "user-2", "sess-2")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("snapshots must not leak across sessions, got %d", rec.Code)
	}
}

func TestDeviceSnapshotPutRejections(t *testing.T) {
	router, _ := newDeviceRouter(t)

	tests := []struct {
		name string
		kind string
		body string
		want int
	}{
		{"server managed", "entitlement", `{"plan":"annual"}`, http.StatusForbidden},
		{"unknown kind", "wallet", `{}`, http.StatusNotFound},
		{"invalid json", "analyses", `[{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := serveAs(router, http.MethodPut, "/api/v1/devices/me/"+tt.kind, strings.NewReader(tt.body), "user-1", "sess-1")
		if rec.Code != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.name, tt.want, rec.Code)
		}
	}

	oversized := `"` + strings.Repeat("a", devicestore.MaxSnapshotBytes) + `"`
	rec := serveAs(router, http.MethodPut, "/api/v1/devices/me/analyses", strings.NewReader(oversized), "user-1", "sess-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized snapshot should be 400, got %d", rec.Code)
	}
}
