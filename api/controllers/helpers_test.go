package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alphacut/alphacut-backend/api/middleware"
	"github.com/alphacut/alphacut-backend/internal/devicestore"
)

type memorySnapshotClient struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemorySnapshotClient() *memorySnapshotClient {
	return &memorySnapshotClient{data: map[string]string{}}
}

func (m *memorySnapshotClient) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memorySnapshotClient) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memorySnapshotClient) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memorySnapshotClient) DeviceKey(sessionID, kind string) string {
	return "ac:device:" + sessionID + ":" + kind
}

func newSnapshotStore(t *testing.T) *devicestore.Store {
	t.Helper()
	store, err := devicestore.New(newMemorySnapshotClient(), time.Hour)
	if err != nil {
		t.Fatalf("snapshot store: %v", err)
	}
	return store
}

// serveAs runs the request through handler with session identity attached.
func serveAs(handler http.Handler, method, target string, body io.Reader, userID, sessionID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	ctx := middleware.WithUserID(req.Context(), userID)
	ctx = middleware.WithSessionID(ctx, sessionID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v (%s)", err, string(envelope.Data))
	}
}
