package stripewebhook

import (
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
)

// SignatureHeader carries the provider's payload signature.
const SignatureHeader = "Stripe-Signature"

// Verify authenticates the raw payload against the signing secret and parses
// the event envelope. A missing secret is a configuration error; every other
// failure is an authentication error.
func Verify(payload []byte, header, secret string) (*stripe.Event, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "stripe webhook secret is not configured")
	}
	if strings.TrimSpace(header) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeAuthentication, "No signatures found matching the expected signature for payload")
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAuthentication, err, err.Error())
	}
	return &event, nil
}
