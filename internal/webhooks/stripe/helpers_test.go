package stripewebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/alphacut/alphacut-backend/internal/plans"
	"github.com/alphacut/alphacut-backend/internal/subscriptions"
	"github.com/alphacut/alphacut-backend/pkg/db"
	"github.com/alphacut/alphacut-backend/pkg/db/models"
	"github.com/alphacut/alphacut-backend/pkg/enums"
)

const testSecret = "whsec_test"

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	conn    *gorm.DB
	repo    subscriptions.Repository
	stripe  *stubStripeClient
	service *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:webhooks_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Subscription{}))

	catalog, err := plans.New(
		plans.Plan{
			Type:     enums.PlanTypeMonthly,
			PriceID:  "price_basic_m",
			Price:    decimal.RequireFromString("19.90"),
			Interval: enums.BillingIntervalMonth,
		},
		plans.Plan{
			Type:     enums.PlanTypeAnnual,
			PriceID:  "price_basic_y",
			Price:    decimal.RequireFromString("149.00"),
			Interval: enums.BillingIntervalYear,
		},
	)
	require.NoError(t, err)

	repo := subscriptions.NewRepository(conn)
	stub := &stubStripeClient{subs: map[string]*stripe.Subscription{}}
	service, err := NewService(ServiceParams{
		Repo:              repo,
		StripeClient:      stub,
		Plans:             catalog,
		TransactionRunner: db.FromConn(conn),
		Clock:             func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &testEnv{conn: conn, repo: repo, stripe: stub, service: service}
}

func (e *testEnv) rowCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.conn.Model(&models.Subscription{}).Count(&n).Error)
	return n
}

type stubStripeClient struct {
	mu    sync.Mutex
	subs  map[string]*stripe.Subscription
	err   error
	calls int
}

func (s *stubStripeClient) Get(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	sub, ok := s.subs[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	return sub, nil
}

func providerSubscription(t *testing.T, id, customerID, priceID, interval string) *stripe.Subscription {
	t.Helper()
	raw := fmt.Sprintf(`{
		"id": %q,
		"object": "subscription",
		"customer": %q,
		"status": "active",
		"items": {"object": "list", "data": [{
			"id": "si_1",
			"current_period_start": 1705312800,
			"current_period_end": 1707991200,
			"price": {"id": %q, "recurring": {"interval": %q}}
		}]}
	}`, id, customerID, priceID, interval)
	var sub stripe.Subscription
	require.NoError(t, json.Unmarshal([]byte(raw), &sub))
	return &sub
}

func eventPayload(t *testing.T, id string, kind stripe.EventType, object map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        kind,
		"api_version": stripe.APIVersion,
		"created":     fixedNow.Unix(),
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return payload
}

func parseEvent(t *testing.T, payload []byte) *stripe.Event {
	t.Helper()
	var event stripe.Event
	require.NoError(t, json.Unmarshal(payload, &event))
	return &event
}

func checkoutEvent(t *testing.T, id string, session map[string]any) *stripe.Event {
	t.Helper()
	session["object"] = "checkout.session"
	return parseEvent(t, eventPayload(t, id, stripe.EventTypeCheckoutSessionCompleted, session))
}

func subscriptionEvent(t *testing.T, id string, kind stripe.EventType, sub map[string]any) *stripe.Event {
	t.Helper()
	sub["object"] = "subscription"
	return parseEvent(t, eventPayload(t, id, kind, sub))
}

func signatureHeader(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type memoryIdempotencyStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{data: map[string]string{}}
}

func (s *memoryIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "ac:idempotency:" + scope + ":" + id
}

func (s *memoryIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func subscriptionsStatus(status enums.SubscriptionStatus) subscriptions.StatusUpdate {
	start := time.Unix(1705312800, 0).UTC()
	end := time.Unix(1707991200, 0).UTC()
	return subscriptions.StatusUpdate{
		Status:             status,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}
}
