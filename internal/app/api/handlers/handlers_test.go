package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fatflowers/billing/internal/app/service/billing"
	eventlog "github.com/fatflowers/billing/internal/app/service/event_log"
	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/internal/app/service/ledger/ledgertest"
	"github.com/fatflowers/billing/internal/app/service/statistics"
	wh "github.com/fatflowers/billing/internal/app/service/webhook_handler"
	"github.com/fatflowers/billing/internal/models"
	"github.com/fatflowers/billing/pkg/response"
	"github.com/fatflowers/billing/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    json.RawMessage          `json:"data"`
}

func do(t *testing.T, r http.Handler, method, path string, body any, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

type stubProcessor struct {
	out     wh.Outcome
	err     error
	payload []byte
	sig     string
}

func (p *stubProcessor) Handle(ctx context.Context, payload []byte, sig string) (wh.Outcome, error) {
	p.payload, p.sig = payload, sig
	return p.out, p.err
}

func webhookEngine(p WebhookProcessor, max int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterWebhookRoutes(r.Group("/api/v1/billing/webhook"), p, max, zap.NewNop().Sugar())
	return r
}

func TestApiStripeWebhook(t *testing.T) {
	const path = "/api/v1/billing/webhook/stripe"
	sig := map[string]string{StripeSignatureHeader: "t=1,v1=abc"}

	t.Run("applied", func(t *testing.T) {
		p := &stubProcessor{out: wh.Outcome{Kind: wh.OutcomeApplied, EventID: "evt_1", EventType: "invoice.paid", Attempts: 1}}
		w, env := do(t, webhookEngine(p, 0), http.MethodPost, path, []byte(`{"id":"evt_1"}`), sig)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, response.APIResponseCodeOK, env.Code)
		require.Equal(t, `{"id":"evt_1"}`, string(p.payload))
		require.Equal(t, "t=1,v1=abc", p.sig)

		var ack WebhookAck
		require.NoError(t, json.Unmarshal(env.Data, &ack))
		require.Equal(t, "evt_1", ack.EventID)
		require.Equal(t, wh.OutcomeApplied, ack.Outcome)
	})

	t.Run("skipped is acknowledged", func(t *testing.T) {
		p := &stubProcessor{out: wh.Outcome{Kind: wh.OutcomeSkipped, Reason: "unhandled event type"}}
		w, _ := do(t, webhookEngine(p, 0), http.MethodPost, path, []byte(`{}`), sig)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid signature", func(t *testing.T) {
		p := &stubProcessor{err: fmt.Errorf("%w: bad", wh.ErrInvalidSignature)}
		w, env := do(t, webhookEngine(p, 0), http.MethodPost, path, []byte(`{}`), nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Equal(t, response.APIResponseCodeInvalidSignature, env.Code)
	})

	t.Run("failure asks for redelivery", func(t *testing.T) {
		p := &stubProcessor{out: wh.Outcome{Kind: wh.OutcomeFailed, Err: errors.New("timeout"), Attempts: 1}}
		w, env := do(t, webhookEngine(p, 0), http.MethodPost, path, []byte(`{}`), sig)
		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.Equal(t, response.APIResponseCodeError, env.Code)
	})

	t.Run("dead lettered is acknowledged", func(t *testing.T) {
		p := &stubProcessor{out: wh.Outcome{Kind: wh.OutcomeFailed, Err: errors.New("timeout"), Attempts: 8, DeadLettered: true}}
		w, env := do(t, webhookEngine(p, 0), http.MethodPost, path, []byte(`{}`), sig)
		require.Equal(t, http.StatusOK, w.Code)
		var ack WebhookAck
		require.NoError(t, json.Unmarshal(env.Data, &ack))
		require.True(t, ack.DeadLettered)
	})

	t.Run("body too large", func(t *testing.T) {
		p := &stubProcessor{}
		w, _ := do(t, webhookEngine(p, 16), http.MethodPost, path, []byte(strings.Repeat("x", 64)), sig)
		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		require.Nil(t, p.payload)
	})
}

type stubManager struct {
	err error
	got any
}

func (m *stubManager) EnsureSubscription(ctx context.Context, companyID string) (*models.Subscription, error) {
	m.got = companyID
	return &models.Subscription{ID: "s1", CompanyID: companyID, PlanTier: types.PlanTierFree}, m.err
}

func (m *stubManager) CreateCheckoutSession(ctx context.Context, req *billing.CheckoutRequest) (*billing.CheckoutResult, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return &billing.CheckoutResult{SessionID: "cs_1", URL: "https://checkout.example/cs_1"}, nil
}

func (m *stubManager) CreateSubscription(ctx context.Context, req *billing.CreateSubscriptionRequest) (*models.Subscription, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Subscription{CompanyID: req.CompanyID}, nil
}

func (m *stubManager) CancelSubscription(ctx context.Context, companyID string) (*models.Subscription, error) {
	m.got = companyID
	if m.err != nil {
		return nil, m.err
	}
	return &models.Subscription{CompanyID: companyID, Status: types.SubscriptionStatusCancelled}, nil
}

func (m *stubManager) SweepNow(ctx context.Context, companyID string) (int, error) {
	m.got = companyID
	return 2, m.err
}

func billingEngine(m billing.Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterBillingRoutes(r.Group("/api/v1/billing"), m, zap.NewNop().Sugar())
	return r
}

func TestBillingRoutes(t *testing.T) {
	m := &stubManager{}
	r := billingEngine(m)

	_, env := do(t, r, http.MethodPost, "/api/v1/billing/subscription/ensure", map[string]any{"company_id": "co_1"}, nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	require.Equal(t, "co_1", m.got)

	_, env = do(t, r, http.MethodPost, "/api/v1/billing/checkout_session", map[string]any{"company_id": "co_1", "price_id": "price_pro", "seats": 4}, nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	require.Equal(t, &billing.CheckoutRequest{CompanyID: "co_1", PriceID: "price_pro", Seats: 4}, m.got)
	var cr billing.CheckoutResult
	require.NoError(t, json.Unmarshal(env.Data, &cr))
	require.Equal(t, "cs_1", cr.SessionID)

	_, env = do(t, r, http.MethodPost, "/api/v1/billing/sweep", map[string]any{"company_id": "co_1"}, nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	require.JSONEq(t, `{"backfilled":2}`, string(env.Data))

	_, env = do(t, r, http.MethodPost, "/api/v1/billing/subscription/cancel", map[string]any{}, nil)
	require.Equal(t, response.APIResponseCodeBadRequest, env.Code)
}

func TestBillingRoutes_ErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		code response.APIResponseCode
	}{
		{fmt.Errorf("%w: %q", billing.ErrUnknownPlan, "x"), response.APIResponseCodeBadRequest},
		{billing.ErrNoSubscription, response.APIResponseCodeBadRequest},
		{fmt.Errorf("wrapped: %w", ledger.ErrNotFound), response.APIResponseCodeNotFound},
		{errors.New("stripe down"), response.APIResponseCodeError},
	}
	for _, tc := range cases {
		r := billingEngine(&stubManager{err: tc.err})
		w, env := do(t, r, http.MethodPost, "/api/v1/billing/subscription/cancel", map[string]any{"company_id": "co_1"}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, tc.code, env.Code, tc.err.Error())
	}
}

type stubStats struct{}

func (stubStats) GetStatistics(ctx context.Context, r *statistics.Request) (*statistics.Response, error) {
	return &statistics.Response{DataItems: map[statistics.StatisticType][]statistics.ResponseItem{
		statistics.StatisticTypeActiveSubscriptionCount: {{Value: 3}},
	}}, nil
}

type stubJournal struct{ q eventlog.ListQuery }

func (j *stubJournal) List(ctx context.Context, q eventlog.ListQuery) ([]*models.WebhookEventLog, int64, error) {
	j.q = q
	return []*models.WebhookEventLog{{EventID: "evt_1", Status: q.Status}}, 1, nil
}

type stubReplayer struct{ out wh.Outcome }

func (s stubReplayer) Replay(ctx context.Context, id string) (wh.Outcome, error) {
	if id != "evt_1" {
		return wh.Outcome{}, eventlog.ErrNotFound
	}
	return s.out, nil
}

func adminEngine(d AdminDeps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterAdminRoutes(r.Group("/api/v1/admin"), d)
	return r
}

func TestAdminListCompanyPayments(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	for i, st := range []types.PaymentStatus{types.PaymentStatusSucceeded, types.PaymentStatusSucceeded, types.PaymentStatusFailed} {
		require.NoError(t, store.CreatePayment(ctx, &models.PaymentRecord{
			ExternalInvoiceID: fmt.Sprintf("in_%d", i),
			CompanyID:         "co_1",
			SubscriptionID:    "s1",
			Amount:            1250,
			Status:            st,
			RecordedAt:        time.Date(2026, 10, 1+i, 0, 0, 0, 0, time.UTC),
		}))
	}
	r := adminEngine(AdminDeps{Payments: store})

	_, env := do(t, r, http.MethodPost, "/api/v1/admin/list_company_payments", map[string]any{
		"company_id": "co_1",
		"filters":    []map[string]any{{"field": "status", "operator": "eq", "values": []any{"SUCCEEDED"}}},
	}, nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	var res ListPaymentsResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.EqualValues(t, 2, res.Total)
	require.Len(t, res.Items, 2)
	require.Equal(t, "12.50", res.Items[0].AmountDisplay)
	require.EqualValues(t, 2500, res.SucceededAmount)
	require.Equal(t, "25.00", res.SucceededAmountDisplay)

	_, env = do(t, r, http.MethodPost, "/api/v1/admin/list_company_payments", map[string]any{
		"company_id": "co_1",
		"filters":    []map[string]any{{"field": "company_id; drop table", "operator": "eq", "values": []any{"x"}}},
	}, nil)
	require.Equal(t, response.APIResponseCodeBadRequest, env.Code)
}

func TestAdminStatisticsAndEvents(t *testing.T) {
	j := &stubJournal{}
	r := adminEngine(AdminDeps{
		Stats:    stubStats{},
		Journal:  j,
		Replayer: stubReplayer{out: wh.Outcome{Kind: wh.OutcomeApplied, EventID: "evt_1"}},
	})

	_, env := do(t, r, http.MethodPost, "/api/v1/admin/get_statistic", map[string]any{
		"data_items": []map[string]any{{"id": "active_subscription_count"}},
	}, nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	require.Contains(t, string(env.Data), "active_subscription_count")

	_, env = do(t, r, http.MethodPost, "/api/v1/admin/get_statistic", map[string]any{}, nil)
	require.Equal(t, response.APIResponseCodeBadRequest, env.Code)

	_, env = do(t, r, http.MethodGet, "/api/v1/admin/webhook_events?status=dead_lettered&size=5", nil, nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	require.Equal(t, eventlog.ListQuery{Status: models.WebhookEventStatusDeadLettered, Size: 5}, j.q)

	_, env = do(t, r, http.MethodGet, "/api/v1/admin/webhook_events?size=abc", nil, nil)
	require.Equal(t, response.APIResponseCodeBadRequest, env.Code)

	_, env = do(t, r, http.MethodPost, "/api/v1/admin/webhook_events/evt_1/replay", nil, nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	_, env = do(t, r, http.MethodPost, "/api/v1/admin/webhook_events/evt_404/replay", nil, nil)
	require.Equal(t, response.APIResponseCodeNotFound, env.Code)
}

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterHealthRoutes(r)
	w, env := do(t, r, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, string(env.Data))
}
