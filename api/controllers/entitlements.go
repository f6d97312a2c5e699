package controllers

import (
	"context"
	"net/http"

	"github.com/alphacut/alphacut-backend/api/middleware"
	"github.com/alphacut/alphacut-backend/api/responses"
	"github.com/alphacut/alphacut-backend/api/validators"
	"github.com/alphacut/alphacut-backend/internal/entitlements"
	"github.com/alphacut/alphacut-backend/pkg/enums"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
	"github.com/alphacut/alphacut-backend/pkg/logger"
)

// EntitlementService is the session entitlement surface used by the HTTP layer.
type EntitlementService interface {
	Get(ctx context.Context, sessionID string) (entitlements.Record, error)
	Subscribe(ctx context.Context, sessionID string, plan enums.PlanType) (entitlements.Record, error)
	Cancel(ctx context.Context, sessionID string) (entitlements.Record, error)
	IncrementAnalysis(ctx context.Context, sessionID string) (entitlements.Record, error)
	Sync(ctx context.Context, sessionID, userID string) (entitlements.Record, error)
	Access(ctx context.Context, sessionID string) (entitlements.Access, error)
}

type subscribeRequest struct {
	Plan string `json:"plan" validate:"required"`
}

type accessResponse struct {
	entitlements.Access
	Action  string `json:"action,omitempty"`
	Allowed *bool  `json:"allowed,omitempty"`
}

func EntitlementGet(svc EntitlementService, logg *logger.Logger) http.HandlerFunc {
	return entitlementHandler(svc, logg, func(r *http.Request, sessionID string) (entitlements.Record, error) {
		return svc.Get(r.Context(), sessionID)
	})
}

// EntitlementSubscribe moves the session replica to the requested paid plan.
func EntitlementSubscribe(svc EntitlementService, logg *logger.Logger) http.HandlerFunc {
	return entitlementHandler(svc, logg, func(r *http.Request, sessionID string) (entitlements.Record, error) {
		var body subscribeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return entitlements.Record{}, err
		}
		plan, err := enums.ParsePlanType(body.Plan)
		if err != nil {
			return entitlements.Record{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown plan")
		}
		return svc.Subscribe(r.Context(), sessionID, plan)
	})
}

func EntitlementCancel(svc EntitlementService, logg *logger.Logger) http.HandlerFunc {
	return entitlementHandler(svc, logg, func(r *http.Request, sessionID string) (entitlements.Record, error) {
		return svc.Cancel(r.Context(), sessionID)
	})
}

// EntitlementAnalyze records one analysis. Free sessions past their
// allowance are refused before anything is counted.
func EntitlementAnalyze(svc EntitlementService, logg *logger.Logger) http.HandlerFunc {
	return entitlementHandler(svc, logg, func(r *http.Request, sessionID string) (entitlements.Record, error) {
		access, err := svc.Access(r.Context(), sessionID)
		if err != nil {
			return entitlements.Record{}, err
		}
		if !access.CanAnalyze {
			return entitlements.Record{}, pkgerrors.New(pkgerrors.CodeForbidden, "free analysis allowance used")
		}
		return svc.IncrementAnalysis(r.Context(), sessionID)
	})
}

// EntitlementSync refreshes the session replica from the durable subscription.
func EntitlementSync(svc EntitlementService, logg *logger.Logger) http.HandlerFunc {
	return entitlementHandler(svc, logg, func(r *http.Request, sessionID string) (entitlements.Record, error) {
		return svc.Sync(r.Context(), sessionID, middleware.UserIDFromContext(r.Context()))
	})
}

// EntitlementAccess evaluates the gate, optionally for a single action.
func EntitlementAccess(svc EntitlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}

		rec, err := svc.Get(r.Context(), middleware.SessionIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := accessResponse{Access: entitlements.Evaluate(rec)}
		if action := validators.SanitizeString(r.URL.Query().Get("action"), 64); action != "" {
			allowed, err := entitlements.Permits(rec, entitlements.Action(action))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			resp.Action = action
			resp.Allowed = &allowed
		}
		responses.WriteSuccess(w, resp)
	}
}

func entitlementHandler(svc EntitlementService, logg *logger.Logger, run func(r *http.Request, sessionID string) (entitlements.Record, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}

		rec, err := run(r, middleware.SessionIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rec)
	}
}
