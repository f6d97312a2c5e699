package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/alphacut/alphacut-backend/pkg/db/models"
	"github.com/alphacut/alphacut-backend/pkg/enums"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:subscriptions_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Subscription{}))
	return conn
}

func ptr[T any](v T) *T {
	return &v
}

func countRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.Subscription{}).Count(&n).Error)
	return n
}

func checkoutRow(userID, customerID string) *models.Subscription {
	start := time.Unix(1704067200, 0).UTC()
	end := time.Unix(1706745600, 0).UTC()
	return &models.Subscription{
		UserID:               userID,
		StripeCustomerID:     ptr(customerID),
		StripeSubscriptionID: ptr("sub_1"),
		StripePriceID:        ptr("price_1"),
		Status:               enums.SubscriptionStatusActive,
		PlanType:             enums.PlanTypeMonthly,
		CurrentPeriodStart:   &start,
		CurrentPeriodEnd:     &end,
	}
}

func TestUpsertByUserIsIdempotent(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.UpsertByUser(ctx, checkoutRow("u1", "cus_1")))
	first, err := repo.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, repo.UpsertByUser(ctx, checkoutRow("u1", "cus_1")))
	second, err := repo.FindByUserID(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), countRows(t, conn))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, *first.StripeCustomerID, *second.StripeCustomerID)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.PlanType, second.PlanType)
	assert.True(t, first.CurrentPeriodEnd.Equal(*second.CurrentPeriodEnd))
	assert.Equal(t, first.CancelAtPeriodEnd, second.CancelAtPeriodEnd)
}

func TestUpsertByUserResetsCancellation(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.UpsertByUser(ctx, checkoutRow("u1", "cus_1")))
	_, err := repo.MarkCanceledByCustomerID(ctx, "cus_1", time.Now())
	require.NoError(t, err)

	again := checkoutRow("u1", "cus_2")
	again.PlanType = enums.PlanTypeAnnual
	require.NoError(t, repo.UpsertByUser(ctx, again))

	got, err := repo.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, got.Status)
	assert.Equal(t, enums.PlanTypeAnnual, got.PlanType)
	assert.Equal(t, "cus_2", *got.StripeCustomerID)
	assert.Nil(t, got.CanceledAt)
}

func TestUpsertByUserCustomerConflict(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.UpsertByUser(ctx, checkoutRow("u1", "cus_1")))
	err := repo.UpsertByUser(ctx, checkoutRow("u2", "cus_1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	err = repo.UpsertByUser(ctx, &models.Subscription{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateByCustomerID(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	n, err := repo.UpdateByCustomerID(ctx, "cus_missing", StatusUpdate{Status: enums.SubscriptionStatusPastDue})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, countRows(t, conn))

	require.NoError(t, repo.UpsertByUser(ctx, checkoutRow("u1", "cus_1")))
	canceledAt := time.Unix(1706000000, 0).UTC()
	n, err = repo.UpdateByCustomerID(ctx, "cus_1", StatusUpdate{
		Status:            enums.SubscriptionStatusPastDue,
		CancelAtPeriodEnd: true,
		CanceledAt:        &canceledAt,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.FindByCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusPastDue, got.Status)
	assert.True(t, got.CancelAtPeriodEnd)
	assert.Nil(t, got.CurrentPeriodStart)
	require.NotNil(t, got.CanceledAt)
	assert.True(t, canceledAt.Equal(*got.CanceledAt))
	assert.Equal(t, enums.PlanTypeMonthly, got.PlanType)
}

func TestMarkCanceledByCustomerID(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	row := checkoutRow("u1", "cus_1")
	row.Status = enums.SubscriptionStatusPastDue
	require.NoError(t, repo.UpsertByUser(ctx, row))

	now := time.Now()
	n, err := repo.MarkCanceledByCustomerID(ctx, "cus_1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.FindByCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCanceled, got.Status)
	require.NotNil(t, got.CanceledAt)
}

func TestFindMissingReturnsNil(t *testing.T) {
	repo := NewRepository(newTestDB(t))

	got, err := repo.FindByUserID(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = repo.FindByCustomerID(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWithTxUsesTransaction(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return repo.WithTx(tx).UpsertByUser(context.Background(), checkoutRow("u1", "cus_1"))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countRows(t, conn))
	assert.Same(t, repo, repo.WithTx(nil))
}
