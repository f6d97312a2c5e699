package stripewebhook

import (
	"context"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/alphacut/alphacut-backend/internal/plans"
	"github.com/alphacut/alphacut-backend/internal/subscriptions"
	"github.com/alphacut/alphacut-backend/pkg/enums"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
	"github.com/alphacut/alphacut-backend/pkg/logger"
)

// MetadataUserID is the checkout metadata key carrying the user reference.
const MetadataUserID = "userId"

// Disposition describes what reconciling an event did.
type Disposition string

const (
	// DispositionApplied means durable state was written.
	DispositionApplied Disposition = "applied"
	// DispositionSkipped means the event referenced nothing it could act on.
	DispositionSkipped Disposition = "skipped"
	// DispositionIgnored means the event kind is not reconciled.
	DispositionIgnored Disposition = "ignored"
)

type planResolver interface {
	ResolvePlanType(priceID string, interval enums.BillingInterval) (enums.PlanType, plans.Source)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo              subscriptions.Repository
	StripeClient      subscriptions.StripeSubscriptionClient
	Plans             planResolver
	TransactionRunner txRunner
	Logger            *logger.Logger
	Clock             func() time.Time
}

// Service reconciles verified provider events into durable subscription rows.
type Service struct {
	repo     subscriptions.Repository
	stripe   subscriptions.StripeSubscriptionClient
	plans    planResolver
	txRunner txRunner
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repo required")
	}
	if params.StripeClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.Plans == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan resolver required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:     params.Repo,
		stripe:   params.StripeClient,
		plans:    params.Plans,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

// HandleEvent decodes the event and applies it.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (Disposition, error) {
	decoded, err := Decode(event)
	if err != nil {
		return "", err
	}
	if s.logg != nil {
		ctx = s.logg.WithEvent(ctx, decoded.EventID(), string(decoded.Kind()))
	}

	switch ev := decoded.(type) {
	case CheckoutCompleted:
		return s.checkoutCompleted(ctx, ev.Session)
	case SubscriptionUpdated:
		return s.subscriptionUpdated(ctx, ev.Subscription)
	case SubscriptionDeleted:
		return s.subscriptionDeleted(ctx, ev.Subscription)
	default:
		s.debug(ctx, "stripe event kind not reconciled")
		return DispositionIgnored, nil
	}
}

func (s *Service) checkoutCompleted(ctx context.Context, session *stripe.CheckoutSession) (Disposition, error) {
	userID := strings.TrimSpace(session.Metadata[MetadataUserID])
	if userID == "" {
		userID = strings.TrimSpace(session.ClientReferenceID)
	}
	if userID == "" {
		s.warn(ctx, "checkout completed without a user reference")
		return DispositionSkipped, nil
	}
	if s.logg != nil {
		ctx = s.logg.WithUserID(ctx, userID)
	}
	if session.Subscription == nil || strings.TrimSpace(session.Subscription.ID) == "" {
		s.warn(ctx, "checkout completed without a subscription")
		return DispositionSkipped, nil
	}

	stripeSub, err := s.stripe.Get(ctx, session.Subscription.ID, &stripe.SubscriptionParams{})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "fetch stripe subscription")
	}

	priceID, interval := subscriptions.PriceFromSubscription(stripeSub)
	planType, source := s.plans.ResolvePlanType(priceID, interval)
	if source == plans.SourceMarker || source == plans.SourceDefault {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"price_id":  priceID,
				"plan_type": planType,
				"source":    source,
			}), "price id not in plan catalog")
		}
	}

	customerID := ""
	if session.Customer != nil {
		customerID = session.Customer.ID
	}
	if strings.TrimSpace(customerID) == "" {
		customerID = subscriptions.CustomerID(stripeSub)
	}

	row := subscriptions.FromCheckout(userID, customerID, stripeSub, planType)
	if err := s.repo.UpsertByUser(ctx, row); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "stripe_customer_id", customerID), "stripe customer already linked to another user")
			}
			return DispositionSkipped, nil
		}
		return "", err
	}
	s.info(ctx, "subscription activated from checkout")
	return DispositionApplied, nil
}

func (s *Service) subscriptionUpdated(ctx context.Context, stripeSub *stripe.Subscription) (Disposition, error) {
	customerID := subscriptions.CustomerID(stripeSub)
	if customerID == "" {
		s.warn(ctx, "subscription update without a customer")
		return DispositionSkipped, nil
	}
	update, known := subscriptions.StatusUpdateFromStripe(stripeSub)
	if !known && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "status", update.Status), "unrecognized subscription status stored as received")
	}

	disposition := DispositionApplied
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByCustomerID(ctx, customerID)
		if err != nil {
			return err
		}
		if existing == nil {
			disposition = DispositionSkipped
			return nil
		}
		_, err = repo.UpdateByCustomerID(ctx, customerID, update)
		return err
	})
	if err != nil {
		return "", err
	}
	if disposition == DispositionSkipped {
		s.warn(ctx, "subscription update for unknown customer")
	}
	return disposition, nil
}

func (s *Service) subscriptionDeleted(ctx context.Context, stripeSub *stripe.Subscription) (Disposition, error) {
	customerID := subscriptions.CustomerID(stripeSub)
	if customerID == "" {
		s.warn(ctx, "subscription deletion without a customer")
		return DispositionSkipped, nil
	}
	rows, err := s.repo.MarkCanceledByCustomerID(ctx, customerID, s.now())
	if err != nil {
		return "", err
	}
	if rows == 0 {
		s.debug(ctx, "subscription deletion matched no rows")
	}
	return DispositionApplied, nil
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *Service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

func (s *Service) debug(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Debug(ctx, msg)
	}
}
