package subscriptions

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alphacut/alphacut-backend/internal/repo"
	"github.com/alphacut/alphacut-backend/pkg/db"
	"github.com/alphacut/alphacut-backend/pkg/db/models"
	"github.com/alphacut/alphacut-backend/pkg/enums"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
)

// Repository handles durable subscription persistence. Provider-driven
// updates are always keyed by stripe_customer_id.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	UpsertByUser(ctx context.Context, sub *models.Subscription) error
	FindByUserID(ctx context.Context, userID string) (*models.Subscription, error)
	FindByCustomerID(ctx context.Context, customerID string) (*models.Subscription, error)
	UpdateByCustomerID(ctx context.Context, customerID string, update StatusUpdate) (int64, error)
	MarkCanceledByCustomerID(ctx context.Context, customerID string, at time.Time) (int64, error)
}

// StatusUpdate is the set of columns a subscription.updated event rewrites.
type StatusUpdate struct {
	Status             enums.SubscriptionStatus
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
}

var upsertColumns = []string{
	"stripe_customer_id",
	"stripe_subscription_id",
	"stripe_price_id",
	"status",
	"plan_type",
	"current_period_start",
	"current_period_end",
	"cancel_at_period_end",
	"canceled_at",
	"updated_at",
}

type repository struct {
	repo.Base
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.Bind(tx)}
}

// UpsertByUser inserts the row or replaces every provider-owned column of the
// existing row for the same user.
func (r *repository) UpsertByUser(ctx context.Context, sub *models.Subscription) error {
	if sub == nil || strings.TrimSpace(sub.UserID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription user id is required")
	}
	err := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(sub).Error
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "stripe customer already linked to another user")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert subscription")
	}
	return nil
}

func (r *repository) FindByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	return r.findOne(ctx, "user_id = ?", userID)
}

func (r *repository) FindByCustomerID(ctx context.Context, customerID string) (*models.Subscription, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, nil
	}
	return r.findOne(ctx, "stripe_customer_id = ?", customerID)
}

func (r *repository) UpdateByCustomerID(ctx context.Context, customerID string, update StatusUpdate) (int64, error) {
	result := r.DB(ctx).
		Model(&models.Subscription{}).
		Where("stripe_customer_id = ?", customerID).
		Updates(map[string]any{
			"status":               update.Status,
			"current_period_start": update.CurrentPeriodStart,
			"current_period_end":   update.CurrentPeriodEnd,
			"cancel_at_period_end": update.CancelAtPeriodEnd,
			"canceled_at":          update.CanceledAt,
		})
	if result.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "update subscription")
	}
	return result.RowsAffected, nil
}

func (r *repository) MarkCanceledByCustomerID(ctx context.Context, customerID string, at time.Time) (int64, error) {
	result := r.DB(ctx).
		Model(&models.Subscription{}).
		Where("stripe_customer_id = ?", customerID).
		Updates(map[string]any{
			"status":      enums.SubscriptionStatusCanceled,
			"canceled_at": at.UTC(),
		})
	if result.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "cancel subscription")
	}
	return result.RowsAffected, nil
}

func (r *repository) findOne(ctx context.Context, query string, arg string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.DB(ctx).Where(query, arg).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return &sub, nil
}
