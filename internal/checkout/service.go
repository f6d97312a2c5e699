package checkout

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
	"github.com/alphacut/alphacut-backend/pkg/logger"
)

// MissingFieldsMessage is returned when any session field is absent.
const MissingFieldsMessage = "Missing required fields"

// SessionRequest is the input of a hosted checkout session.
type SessionRequest struct {
	PriceID    string `json:"priceId"`
	UserID     string `json:"userId"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

// Service creates provider checkout sessions for subscriptions.
type Service interface {
	CreateSession(ctx context.Context, req SessionRequest) (string, error)
}

type service struct {
	stripe StripeSessionClient
	logg   *logger.Logger
}

func NewService(client StripeSessionClient, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe session client required")
	}
	return &service{stripe: client, logg: logg}, nil
}

func (s *service) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	req = req.trimmed()
	if req.PriceID == "" || req.UserID == "" || req.SuccessURL == "" || req.CancelURL == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, MissingFieldsMessage)
	}
	if !absoluteURL(req.SuccessURL) || !absoluteURL(req.CancelURL) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "successUrl and cancelUrl must be absolute URLs")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
	}
	params.AddMetadata("userId", req.UserID)

	sess, err := s.stripe.New(ctx, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUpstream, err, providerMessage(err))
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"user_id":    req.UserID,
			"price_id":   req.PriceID,
			"session_id": sess.ID,
		}), "checkout session created")
	}
	return sess.ID, nil
}

func (r SessionRequest) trimmed() SessionRequest {
	return SessionRequest{
		PriceID:    strings.TrimSpace(r.PriceID),
		UserID:     strings.TrimSpace(r.UserID),
		SuccessURL: strings.TrimSpace(r.SuccessURL),
		CancelURL:  strings.TrimSpace(r.CancelURL),
	}
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

func providerMessage(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return err.Error()
}
