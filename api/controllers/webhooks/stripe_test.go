package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/alphacut/alphacut-backend/api/middleware"
	"github.com/alphacut/alphacut-backend/internal/plans"
	"github.com/alphacut/alphacut-backend/internal/subscriptions"
	stripewebhook "github.com/alphacut/alphacut-backend/internal/webhooks/stripe"
	"github.com/alphacut/alphacut-backend/pkg/db"
	"github.com/alphacut/alphacut-backend/pkg/db/models"
	"github.com/alphacut/alphacut-backend/pkg/enums"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
	"github.com/alphacut/alphacut-backend/pkg/metrics"
)

const testSecret = "whsec_test"

func TestStripeWebhook_SuccessAndIdempotent(t *testing.T) {
	payload, header := buildSignedEvent(t, "evt_"+uuid.NewString(), stripe.EventTypeCustomerSubscriptionUpdated)
	service := &fakeStripeWebhookService{disposition: stripewebhook.DispositionApplied}
	observer := &recordingObserver{}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSecret}, newGuard(t), observer, nil)

	rec := post(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != `{"received":true}` {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}

	rec2 := post(handler, payload, header)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d (%s)", rec2.Code, rec2.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected duplicate not processed, call count %d", service.calls)
	}
	if got := observer.outcomes(); len(got) != 2 || got[0] != metrics.OutcomeProcessed || got[1] != metrics.OutcomeDuplicate {
		t.Fatalf("unexpected outcomes %v", got)
	}
}

func TestStripeWebhook_InvalidSignatureMutatesNothing(t *testing.T) {
	conn := openTestDB(t)
	service := newReconciler(t, conn)
	observer := &recordingObserver{}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSecret}, newGuard(t), observer, nil)

	payload := checkoutPayload(t, "evt_"+uuid.NewString())
	cases := map[string]string{
		"missing":      "",
		"wrong secret": signatureHeader(payload, "whsec_other", time.Now().Unix()),
		"garbage":      "t=1,v1=invalid",
	}
	for name, header := range cases {
		rec := post(handler, payload, header)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
		if !strings.HasPrefix(rec.Body.String(), "Webhook Error: ") {
			t.Fatalf("%s: expected plain text webhook error, got %q", name, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
			t.Fatalf("%s: expected text/plain, got %q", name, ct)
		}
	}

	var count int64
	if err := conn.Model(&models.Subscription{}).Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows after rejected deliveries, got %d", count)
	}
	for _, outcome := range observer.outcomes() {
		if outcome != metrics.OutcomeRejected {
			t.Fatalf("expected only rejected outcomes, got %v", observer.outcomes())
		}
	}
}

func TestStripeWebhook_CheckoutCompletedWritesRow(t *testing.T) {
	conn := openTestDB(t)
	handler := StripeWebhook(newReconciler(t, conn), &fakeSigningClient{secret: testSecret}, newGuard(t), nil, nil)

	payload := checkoutPayload(t, "evt_"+uuid.NewString())
	rec := post(handler, payload, signatureHeader(payload, testSecret, time.Now().Unix()))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var row models.Subscription
	if err := conn.Where("user_id = ?", "user-1").First(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.PlanType != enums.PlanTypeMonthly || row.Status != enums.SubscriptionStatusActive {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestStripeWebhook_ProcessingFailureReleasesGuard(t *testing.T) {
	payload, header := buildSignedEvent(t, "evt_"+uuid.NewString(), stripe.EventTypeCustomerSubscriptionUpdated)
	service := &fakeStripeWebhookService{err: pkgerrors.New(pkgerrors.CodeUpstream, "fetch stripe subscription")}
	observer := &recordingObserver{}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSecret}, newGuard(t), observer, nil)

	rec := post(handler, payload, header)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "fetch stripe subscription" {
		t.Fatalf("unexpected error message %q", body.Error)
	}

	service.err = nil
	rec = post(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", rec.Code)
	}
	if service.calls != 2 {
		t.Fatalf("expected retry to reach the service, got %d calls", service.calls)
	}
	if got := observer.outcomes(); got[0] != metrics.OutcomeFailed {
		t.Fatalf("expected failed outcome first, got %v", got)
	}
}

func TestStripeWebhook_PanicReleasesGuard(t *testing.T) {
	payload, header := buildSignedEvent(t, "evt_"+uuid.NewString(), stripe.EventTypeCustomerSubscriptionUpdated)
	service := &fakeStripeWebhookService{disposition: stripewebhook.DispositionApplied, panicOnce: true}
	handler := middleware.Recoverer(nil)(StripeWebhook(service, &fakeSigningClient{secret: testSecret}, newGuard(t), nil, nil))

	rec := post(handler, payload, header)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}

	rec = post(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 2 {
		t.Fatalf("expected retry to reach the service, got %d calls", service.calls)
	}
}

func TestStripeWebhook_MissingSecretIsServerError(t *testing.T) {
	payload, header := buildSignedEvent(t, "evt_"+uuid.NewString(), stripe.EventTypeCustomerSubscriptionUpdated)
	service := &fakeStripeWebhookService{}
	handler := StripeWebhook(service, &fakeSigningClient{secret: ""}, newGuard(t), nil, nil)

	rec := post(handler, payload, header)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for missing secret, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not run without a secret")
	}
}

func TestStripeWebhook_IgnoredEventAcknowledged(t *testing.T) {
	payload, header := buildSignedEvent(t, "evt_"+uuid.NewString(), stripe.EventTypeInvoicePaid)
	observer := &recordingObserver{}
	handler := StripeWebhook(&fakeStripeWebhookService{disposition: stripewebhook.DispositionIgnored}, &fakeSigningClient{secret: testSecret}, newGuard(t), observer, nil)

	rec := post(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := observer.outcomes(); len(got) != 1 || got[0] != metrics.OutcomeIgnored {
		t.Fatalf("unexpected outcomes %v", got)
	}
}

func TestStripeWebhook_RejectsOtherMethods(t *testing.T) {
	service := &fakeStripeWebhookService{}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSecret}, newGuard(t), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stripe-webhook", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("expected Allow header, got %q", rec.Header().Get("Allow"))
	}
	if service.calls != 0 {
		t.Fatalf("service should not run for %s", http.MethodGet)
	}
}

func post(handler http.Handler, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/stripe-webhook", bytes.NewReader(payload))
	if header != "" {
		req.Header.Set(stripewebhook.SignatureHeader, header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func newGuard(t *testing.T) *stripewebhook.IdempotencyGuard {
	t.Helper()
	guard, err := stripewebhook.NewIdempotencyGuard(newInMemoryStore(), time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return guard
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:webhook_controller_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Subscription{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newReconciler(t *testing.T, conn *gorm.DB) *stripewebhook.Service {
	t.Helper()
	catalog, err := plans.New(plans.Plan{
		Type:     enums.PlanTypeMonthly,
		PriceID:  "price_basic_m",
		Price:    decimal.RequireFromString("19.90"),
		Interval: enums.BillingIntervalMonth,
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	var sub stripe.Subscription
	raw := `{"id":"sub_1","object":"subscription","customer":"cus_1","status":"active",
		"items":{"object":"list","data":[{"id":"si_1","current_period_start":1705312800,
		"current_period_end":1707991200,"price":{"id":"price_basic_m","recurring":{"interval":"month"}}}]}}`
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		t.Fatalf("decode subscription: %v", err)
	}

	service, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Repo:              subscriptions.NewRepository(conn),
		StripeClient:      &stubSubscriptionClient{sub: &sub},
		Plans:             catalog,
		TransactionRunner: db.FromConn(conn),
	})
	if err != nil {
		t.Fatalf("service setup: %v", err)
	}
	return service
}

func checkoutPayload(t *testing.T, eventID string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        stripe.EventTypeCheckoutSessionCompleted,
		"api_version": stripe.APIVersion,
		"data": map[string]any{"object": map[string]any{
			"id":           "cs_1",
			"object":       "checkout.session",
			"customer":     "cus_1",
			"subscription": "sub_1",
			"metadata":     map[string]string{"userId": "user-1"},
		}},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func buildSignedEvent(t *testing.T, eventID string, kind stripe.EventType) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        kind,
		"api_version": stripe.APIVersion,
		"data": map[string]any{"object": map[string]any{
			"id":       "sub_" + uuid.NewString(),
			"object":   "subscription",
			"customer": "cus_1",
			"status":   "active",
		}},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload, signatureHeader(payload, testSecret, time.Now().Unix())
}

func signatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakeStripeWebhookService struct {
	calls       int
	disposition stripewebhook.Disposition
	err         error
	panicOnce   bool
}

func (f *fakeStripeWebhookService) HandleEvent(ctx context.Context, event *stripe.Event) (stripewebhook.Disposition, error) {
	f.calls++
	if f.panicOnce {
		f.panicOnce = false
		panic("subscription mapper blew up")
	}
	if f.err != nil {
		return "", f.err
	}
	return f.disposition, nil
}

type stubSubscriptionClient struct {
	sub *stripe.Subscription
}

func (s *stubSubscriptionClient) Get(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if s.sub == nil || s.sub.ID != id {
		return nil, errors.New("no such subscription")
	}
	return s.sub, nil
}

type fakeSigningClient struct {
	secret string
}

func (c *fakeSigningClient) SigningSecret() string {
	return c.secret
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []string
}

func (o *recordingObserver) IncOutcome(eventType, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, outcome)
}

func (o *recordingObserver) ObserveDuration(string, time.Duration) {}

func (o *recordingObserver) outcomes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.seen...)
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{
		data: make(map[string]string),
	}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("ac:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
