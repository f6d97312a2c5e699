package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alphacut/alphacut-backend/api/middleware"
	"github.com/alphacut/alphacut-backend/api/responses"
	"github.com/alphacut/alphacut-backend/internal/devicestore"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
	"github.com/alphacut/alphacut-backend/pkg/logger"
)

// SnapshotStore reads and replaces device-local snapshots.
type SnapshotStore interface {
	Get(ctx context.Context, sessionID string, kind devicestore.Kind) (json.RawMessage, error)
	Put(ctx context.Context, sessionID string, kind devicestore.Kind, payload json.RawMessage) error
}

func DeviceSnapshotGet(store SnapshotStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "snapshot store unavailable"))
			return
		}

		kind, err := snapshotKind(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		raw, err := store.Get(r.Context(), middleware.SessionIDFromContext(r.Context()), kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, raw)
	}
}

// DeviceSnapshotPut replaces a client-owned snapshot with the request body.
func DeviceSnapshotPut(store SnapshotStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "snapshot store unavailable"))
			return
		}

		kind, err := snapshotKind(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !kind.ClientWritable() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "snapshot is managed by the server"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, devicestore.MaxSnapshotBytes+1))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if err := store.Put(r.Context(), middleware.SessionIDFromContext(r.Context()), kind, payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "stored", "kind": string(kind)})
	}
}

func snapshotKind(r *http.Request) (devicestore.Kind, error) {
	kind, err := devicestore.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown snapshot")
	}
	return kind, nil
}
