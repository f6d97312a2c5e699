package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alphacut/alphacut-backend/api/middleware"
	"github.com/alphacut/alphacut-backend/api/responses"
	"github.com/alphacut/alphacut-backend/api/validators"
	"github.com/alphacut/alphacut-backend/internal/checkout"
	"github.com/alphacut/alphacut-backend/pkg/enums"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
	"github.com/alphacut/alphacut-backend/pkg/logger"
)

type checkoutSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// DestinationResolver maps a user and plan to a hosted payment link.
type DestinationResolver interface {
	DestinationFor(userID, email string, plan enums.PlanType) (string, error)
}

// CreateCheckoutSession opens a hosted subscription checkout and returns its id.
func CreateCheckoutSession(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			responses.WriteMethodNotAllowed(w, http.MethodPost)
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var body checkout.SessionRequest
		if err := validators.DecodeJSONLoose(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, checkout.MissingFieldsMessage))
			return
		}

		sessionID, err := svc.CreateSession(r.Context(), body)
		if err != nil {
			writeCheckoutError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, checkoutSessionResponse{SessionID: sessionID})
	}
}

// CheckoutRedirect sends the authenticated user to the payment link of the
// requested plan.
func CheckoutRedirect(initiator DestinationResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if initiator == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout initiator unavailable"))
			return
		}

		plan, err := enums.ParsePlanType(strings.TrimSpace(chi.URLParam(r, "plan")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown plan"))
			return
		}

		ctx := r.Context()
		destination, err := initiator.DestinationFor(middleware.UserIDFromContext(ctx), middleware.EmailFromContext(ctx), plan)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, destination, http.StatusSeeOther)
	}
}

func writeCheckoutError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		responses.WriteError(ctx, logg, w, err)
		return
	}
	responses.WriteErrorStatus(ctx, logg, w, http.StatusInternalServerError, err)
}
