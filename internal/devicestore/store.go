package devicestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
	pkgredis "github.com/alphacut/alphacut-backend/pkg/redis"
)

// MaxSnapshotBytes bounds a single snapshot payload.
const MaxSnapshotBytes = 256 << 10

// Kind names one device-local snapshot.
type Kind string

const (
	KindUser        Kind = "user"
	KindEntitlement Kind = "entitlement"
	KindAnalyses    Kind = "analyses"
	KindHabits      Kind = "habits"
)

var allKinds = []Kind{KindUser, KindEntitlement, KindAnalyses, KindHabits}

// ClientWritable reports whether clients may replace the snapshot directly.
// The user and entitlement snapshots only change through their services.
func (k Kind) ClientWritable() bool {
	return k == KindAnalyses || k == KindHabits
}

// ParseKind converts raw input into a Kind.
func ParseKind(value string) (Kind, error) {
	for _, candidate := range allKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid snapshot kind %q", value)
}

type snapshotClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DeviceKey(sessionID, kind string) string
}

// Store keeps whole-value JSON snapshots per session in Redis. Every write
// replaces the previous snapshot.
type Store struct {
	client snapshotClient
	ttl    time.Duration
}

// New builds a Store. A zero ttl keeps snapshots until they are purged.
func New(client snapshotClient, ttl time.Duration) (*Store, error) {
	if client == nil {
		return nil, errors.New("snapshot client is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Store{client: client, ttl: ttl}, nil
}

// Get returns the raw snapshot or a NotFound error.
func (s *Store) Get(ctx context.Context, sessionID string, kind Kind) (json.RawMessage, error) {
	key, err := s.key(sessionID, kind)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, key)
	if err != nil {
		if pkgredis.IsMiss(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "snapshot not found").
				WithDetails(map[string]string{"kind": string(kind)})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read snapshot")
	}
	return json.RawMessage(raw), nil
}

// Put replaces the snapshot with payload, which must be valid JSON.
func (s *Store) Put(ctx context.Context, sessionID string, kind Kind, payload json.RawMessage) error {
	key, err := s.key(sessionID, kind)
	if err != nil {
		return err
	}
	if len(payload) > MaxSnapshotBytes {
		return pkgerrors.New(pkgerrors.CodeValidation, "snapshot too large").
			WithDetails(map[string]any{"max_bytes": MaxSnapshotBytes})
	}
	if !json.Valid(payload) {
		return pkgerrors.New(pkgerrors.CodeValidation, "snapshot must be valid JSON")
	}
	if err := s.client.Set(ctx, key, string(payload), s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write snapshot")
	}
	return nil
}

// Load decodes the snapshot into dest. It reports false when there is none.
func (s *Store) Load(ctx context.Context, sessionID string, kind Kind, dest any) (bool, error) {
	raw, err := s.Get(ctx, sessionID, kind)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode snapshot")
	}
	return true, nil
}

// Save encodes value and replaces the snapshot.
func (s *Store) Save(ctx context.Context, sessionID string, kind Kind, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode snapshot")
	}
	return s.Put(ctx, sessionID, kind, payload)
}

// Purge deletes every snapshot held for the session.
func (s *Store) Purge(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	keys := make([]string, 0, len(allKinds))
	for _, kind := range allKinds {
		keys = append(keys, s.client.DeviceKey(sessionID, string(kind)))
	}
	if err := s.client.Del(ctx, keys...); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge snapshots")
	}
	return nil
}

func (s *Store) key(sessionID string, kind Kind) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid snapshot kind")
	}
	return s.client.DeviceKey(sessionID, string(kind)), nil
}
