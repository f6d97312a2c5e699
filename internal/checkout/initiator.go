package checkout

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/alphacut/alphacut-backend/internal/plans"
	"github.com/alphacut/alphacut-backend/pkg/enums"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
)

const (
	// ClientReferenceParam carries the user reference to the hosted checkout.
	ClientReferenceParam = "client_reference_id"
	// PrefilledEmailParam pre-populates the email field of a payment link.
	PrefilledEmailParam = "prefilled_email"
)

type planLookup interface {
	Get(planType enums.PlanType) (plans.Plan, bool)
}

// Initiator resolves the hosted payment link for a plan.
type Initiator struct {
	plans planLookup
}

func NewInitiator(catalog planLookup) *Initiator {
	return &Initiator{plans: catalog}
}

// Destination returns the plan's payment link with the user reference attached.
func (i *Initiator) Destination(userID string, plan enums.PlanType) (string, error) {
	return i.DestinationFor(userID, "", plan)
}

// DestinationFor is Destination plus the signed-in email, prefilled on the
// checkout page when present.
func (i *Initiator) DestinationFor(userID, email string, plan enums.PlanType) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !plan.IsPaid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "plan must be monthly or annual")
	}

	var link string
	if i != nil && i.plans != nil {
		if p, ok := i.plans.Get(plan); ok {
			link = strings.TrimSpace(p.PaymentLink)
		}
	}
	if link == "" {
		return "", pkgerrors.New(pkgerrors.CodeConfiguration, fmt.Sprintf("payment link for %s plan is not configured", plan))
	}

	u, err := url.Parse(link)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return "", pkgerrors.New(pkgerrors.CodeConfiguration, fmt.Sprintf("payment link for %s plan is invalid", plan))
	}
	q := u.Query()
	q.Set(ClientReferenceParam, userID)
	if email = strings.TrimSpace(email); email != "" {
		q.Set(PrefilledEmailParam, email)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
