package stripewebhook

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
)

// Event is a verified provider event decoded into the payload shape its kind
// requires. Concrete variants are CheckoutCompleted, SubscriptionUpdated,
// SubscriptionDeleted and Unhandled.
type Event interface {
	EventID() string
	Kind() stripe.EventType
}

type envelope struct {
	id   string
	kind stripe.EventType
}

func (e envelope) EventID() string        { return e.id }
func (e envelope) Kind() stripe.EventType { return e.kind }

type CheckoutCompleted struct {
	envelope
	Session *stripe.CheckoutSession
}

type SubscriptionUpdated struct {
	envelope
	Subscription *stripe.Subscription
}

type SubscriptionDeleted struct {
	envelope
	Subscription *stripe.Subscription
}

// Unhandled is any kind the reconciler acknowledges without acting on.
type Unhandled struct {
	envelope
}

const (
	objectCheckoutSession = "checkout.session"
	objectSubscription    = "subscription"
)

// Decode checks the event kind first and only then decodes the payload into
// that kind's type. A payload that does not match the kind is an error.
func Decode(event *stripe.Event) (Event, error) {
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event required")
	}
	env := envelope{id: event.ID, kind: event.Type}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := decodeObject(event, objectCheckoutSession, &session, func() string { return session.Object }); err != nil {
			return nil, err
		}
		return CheckoutCompleted{envelope: env, Session: &session}, nil
	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := decodeObject(event, objectSubscription, &sub, func() string { return sub.Object }); err != nil {
			return nil, err
		}
		return SubscriptionUpdated{envelope: env, Subscription: &sub}, nil
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := decodeObject(event, objectSubscription, &sub, func() string { return sub.Object }); err != nil {
			return nil, err
		}
		return SubscriptionDeleted{envelope: env, Subscription: &sub}, nil
	default:
		return Unhandled{envelope: env}, nil
	}
}

func decodeObject(event *stripe.Event, want string, dest any, object func() string) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s event has no data object", event.Type))
	}
	if err := json.Unmarshal(event.Data.Raw, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("decode %s payload", event.Type))
	}
	if got := object(); got != want {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s event carries %q object, expected %q", event.Type, got, want))
	}
	return nil
}
