package subscriptions

import (
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/alphacut/alphacut-backend/pkg/db/models"
	"github.com/alphacut/alphacut-backend/pkg/enums"
)

// PriceFromSubscription returns the id and recurring interval of the first
// subscription item's price.
func PriceFromSubscription(sub *stripe.Subscription) (string, enums.BillingInterval) {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0] == nil {
		return "", ""
	}
	price := sub.Items.Data[0].Price
	if price == nil {
		return "", ""
	}
	var interval enums.BillingInterval
	if price.Recurring != nil {
		interval = enums.BillingInterval(price.Recurring.Interval)
	}
	return price.ID, interval
}

// CustomerID returns the subscription's customer id, if any.
func CustomerID(sub *stripe.Subscription) string {
	if sub == nil || sub.Customer == nil {
		return ""
	}
	return strings.TrimSpace(sub.Customer.ID)
}

// FromCheckout builds the row written when a checkout completes. Status is
// always active and cancellation state is reset.
func FromCheckout(userID, customerID string, sub *stripe.Subscription, planType enums.PlanType) *models.Subscription {
	priceID, _ := PriceFromSubscription(sub)
	start, end := periodFromSubscription(sub)
	var subscriptionID string
	if sub != nil {
		subscriptionID = sub.ID
	}
	return &models.Subscription{
		UserID:               userID,
		StripeCustomerID:     trimmedPtr(customerID),
		StripeSubscriptionID: trimmedPtr(subscriptionID),
		StripePriceID:        trimmedPtr(priceID),
		Status:               enums.SubscriptionStatusActive,
		PlanType:             planType,
		CurrentPeriodStart:   toTimePtr(start),
		CurrentPeriodEnd:     toTimePtr(end),
		CancelAtPeriodEnd:    false,
		CanceledAt:           nil,
	}
}

// StatusUpdateFromStripe maps a provider subscription onto the columns an
// update event rewrites. Unknown statuses are stored as received.
func StatusUpdateFromStripe(sub *stripe.Subscription) (StatusUpdate, bool) {
	if sub == nil {
		return StatusUpdate{}, false
	}
	start, end := periodFromSubscription(sub)
	status, err := enums.ParseSubscriptionStatus(string(sub.Status))
	known := err == nil
	if !known {
		status = enums.SubscriptionStatus(sub.Status)
	}
	return StatusUpdate{
		Status:             status,
		CurrentPeriodStart: toTimePtr(start),
		CurrentPeriodEnd:   toTimePtr(end),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         toTimePtr(sub.CanceledAt),
	}, known
}

func periodFromSubscription(sub *stripe.Subscription) (int64, int64) {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0] == nil {
		return 0, 0
	}
	item := sub.Items.Data[0]
	return item.CurrentPeriodStart, item.CurrentPeriodEnd
}

func toTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func trimmedPtr(value string) *string {
	if s := strings.TrimSpace(value); s != "" {
		return &s
	}
	return nil
}
