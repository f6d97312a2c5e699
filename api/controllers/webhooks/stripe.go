package webhooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/alphacut/alphacut-backend/api/responses"
	stripewebhook "github.com/alphacut/alphacut-backend/internal/webhooks/stripe"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
	"github.com/alphacut/alphacut-backend/pkg/logger"
	"github.com/alphacut/alphacut-backend/pkg/metrics"
)

const maxPayloadBytes = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (stripewebhook.Disposition, error)
}

type StripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

type webhookObserver interface {
	IncOutcome(eventType, outcome string)
	ObserveDuration(eventType string, duration time.Duration)
}

type receivedResponse struct {
	Received bool `json:"received"`
}

// StripeWebhook verifies and reconciles Stripe subscription lifecycle events.
// Signature failures answer 400 in plain text and never reach the service.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard StripeWebhookGuard, observer webhookObserver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		started := time.Now()

		if r.Method != http.MethodPost {
			responses.WriteMethodNotAllowed(w, http.MethodPost)
			return
		}
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if observer == nil {
			observer = (*metrics.WebhookMetrics)(nil)
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteErrorStatus(ctx, logg, w, http.StatusInternalServerError, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read request body"))
			return
		}

		event, err := stripewebhook.Verify(payload, r.Header.Get(stripewebhook.SignatureHeader), client.SigningSecret())
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConfiguration) {
				observer.IncOutcome("", metrics.OutcomeFailed)
				responses.WriteErrorStatus(ctx, logg, w, http.StatusInternalServerError, err)
				return
			}
			observer.IncOutcome("", metrics.OutcomeRejected)
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe webhook signature rejected")
			}
			responses.WriteText(w, http.StatusBadRequest, "Webhook Error: "+rejectionMessage(err))
			return
		}

		eventType := string(event.Type)
		if logg != nil {
			ctx = logg.WithEvent(ctx, event.ID, eventType)
		}
		defer func() {
			observer.ObserveDuration(eventType, time.Since(started))
		}()

		processed := false
		if guard != nil {
			seen, err := guard.CheckAndMark(ctx, event.ID)
			if err != nil {
				observer.IncOutcome(eventType, metrics.OutcomeFailed)
				responses.WriteErrorStatus(ctx, logg, w, http.StatusInternalServerError, err)
				return
			}
			if seen {
				observer.IncOutcome(eventType, metrics.OutcomeDuplicate)
				if logg != nil {
					logg.Info(ctx, "stripe event already processed")
				}
				responses.WriteJSON(w, http.StatusOK, receivedResponse{Received: true})
				return
			}
			// a panic or error leaves processed unset so the retry is handled again
			defer func() {
				if processed {
					return
				}
				if releaseErr := guard.Release(context.WithoutCancel(ctx), event.ID); releaseErr != nil && logg != nil {
					logg.Error(ctx, "release stripe event", releaseErr)
				}
			}()
		}

		disposition, err := svc.HandleEvent(ctx, event)
		if err != nil {
			observer.IncOutcome(eventType, metrics.OutcomeFailed)
			responses.WriteErrorStatus(ctx, logg, w, http.StatusInternalServerError, err)
			return
		}
		processed = true

		outcome := metrics.OutcomeProcessed
		if disposition == stripewebhook.DispositionIgnored {
			outcome = metrics.OutcomeIgnored
		}
		observer.IncOutcome(eventType, outcome)
		if logg != nil {
			logg.Info(logg.WithField(ctx, "disposition", string(disposition)), "stripe event processed")
		}
		responses.WriteJSON(w, http.StatusOK, receivedResponse{Received: true})
	}
}

func rejectionMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
		return typed.Message()
	}
	return err.Error()
}
