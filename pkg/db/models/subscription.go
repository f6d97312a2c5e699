package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/alphacut/alphacut-backend/pkg/enums"
)

// Subscription persists the Stripe subscription state per user. It is the
// durable source of truth for paid access.
type Subscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;primaryKey"`
	UserID               string                   `gorm:"column:user_id;not null;uniqueIndex"`
	StripeCustomerID     *string                  `gorm:"column:stripe_customer_id;uniqueIndex"`
	StripeSubscriptionID *string                  `gorm:"column:stripe_subscription_id"`
	StripePriceID        *string                  `gorm:"column:stripe_price_id"`
	Status               enums.SubscriptionStatus `gorm:"column:status;not null;default:'active'"`
	PlanType             enums.PlanType           `gorm:"column:plan_type;not null"`
	CurrentPeriodStart   *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd     *time.Time               `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// BeforeCreate assigns the primary key so both postgres and sqlite rows get one.
func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
