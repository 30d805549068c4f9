package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	eventlog "github.com/fatflowers/billing/internal/app/service/event_log"
	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/internal/app/service/statistics"
	wh "github.com/fatflowers/billing/internal/app/service/webhook_handler"
	"github.com/fatflowers/billing/internal/models"
	"github.com/fatflowers/billing/pkg/response"
	"github.com/fatflowers/billing/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type PaymentLedger interface {
	ListPaymentsByCompany(ctx context.Context, q *ledger.PaymentQuery) ([]*models.PaymentRecord, int64, error)
	SumSucceededAmountByCompany(ctx context.Context, companyID string) (int64, error)
}

type StatisticsProvider interface {
	GetStatistics(ctx context.Context, r *statistics.Request) (*statistics.Response, error)
}

type EventJournal interface {
	List(ctx context.Context, q eventlog.ListQuery) ([]*models.WebhookEventLog, int64, error)
}

type EventReplayer interface {
	Replay(ctx context.Context, eventID string) (wh.Outcome, error)
}

type ListPaymentsRequest struct {
	CompanyID string        `json:"company_id" binding:"required"`
	Filters   types.Filters `json:"filters"`
	From      int           `json:"from"`
	Size      int           `json:"size"`
}

type PaymentItem struct {
	ID                     string              `json:"id"`
	ExternalInvoiceID      string              `json:"external_invoice_id"`
	ExternalSubscriptionID string              `json:"external_subscription_id"`
	InvoiceNumber          string              `json:"invoice_number"`
	Amount                 int64               `json:"amount"`
	AmountDisplay          string              `json:"amount_display"`
	Status                 types.PaymentStatus `json:"status"`
	Description            string              `json:"description"`
	PeriodStart            *time.Time          `json:"period_start"`
	PeriodEnd              *time.Time          `json:"period_end"`
	RecordedAt             time.Time           `json:"recorded_at"`
}

type ListPaymentsResponse struct {
	Items []*PaymentItem `json:"items"`
	Total int64          `json:"total"`
	// SucceededAmount is the company's lifetime SUCCEEDED total, in minor units.
	SucceededAmount        int64  `json:"succeeded_amount"`
	SucceededAmountDisplay string `json:"succeeded_amount_display"`
}

func displayAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

func toPaymentItem(m *models.PaymentRecord) *PaymentItem {
	return &PaymentItem{
		ID:                     m.ID,
		ExternalInvoiceID:      m.ExternalInvoiceID,
		ExternalSubscriptionID: lo.FromPtr(m.ExternalSubscriptionID),
		InvoiceNumber:          m.InvoiceNumber,
		Amount:                 m.Amount,
		AmountDisplay:          displayAmount(m.Amount),
		Status:                 m.Status,
		Description:            m.Description,
		PeriodStart:            m.PeriodStart,
		PeriodEnd:              m.PeriodEnd,
		RecordedAt:             m.RecordedAt,
	}
}

// @Summary      List company payments (Admin)
// @Description  Paginated, filterable list of a company's payment records, newest first.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     AdminBearer
// @Param        request body ListPaymentsRequest true "Company, filters and pagination"
// @Success      200  {object}  handlers.RespListPayments
// @Router       /api/v1/admin/list_company_payments [post]
func ApiListCompanyPayments(store PaymentLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListPaymentsRequest
		if !bind(c, &req) {
			return
		}
		q := &ledger.PaymentQuery{CompanyID: req.CompanyID, Filters: req.Filters, From: req.From, Size: req.Size}
		if err := q.Validate(); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		rows, total, err := store.ListPaymentsByCompany(c.Request.Context(), q)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		sum, err := store.SumSucceededAmountByCompany(c.Request.Context(), req.CompanyID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ListPaymentsResponse{
			Items:                  lo.Map(rows, func(m *models.PaymentRecord, _ int) *PaymentItem { return toPaymentItem(m) }),
			Total:                  total,
			SucceededAmount:        sum,
			SucceededAmountDisplay: displayAmount(sum),
		}))
	}
}

// @Summary      Get billing statistics (Admin)
// @Description  Daily revenue, payment counts and subscription counts.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     AdminBearer
// @Param        request body statistics.Request true "Statistic request parameters"
// @Success      200  {object}  handlers.RespStatistic
// @Router       /api/v1/admin/get_statistic [post]
func ApiGetStatistic(svc StatisticsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.Request
		if !bind(c, &req) {
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetStatistics(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type ListWebhookEventsResponse struct {
	Items []*models.WebhookEventLog `json:"items"`
	Total int64                     `json:"total"`
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// @Summary      List webhook events (Admin)
// @Description  Journal of received processor events, newest first. Use status=dead_lettered to find replay candidates.
// @Tags         Admin
// @Produce      json
// @Security     AdminBearer
// @Param        status      query string false "received, handled, skipped, failed or dead_lettered"
// @Param        event_type  query string false "Stripe event type"
// @Param        from        query int    false "Offset"
// @Param        size        query int    false "Page size"
// @Success      200  {object}  handlers.RespListWebhookEvents
// @Router       /api/v1/admin/webhook_events [get]
func ApiListWebhookEvents(j EventJournal) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, ok1 := queryInt(c, "from", 0)
		size, ok2 := queryInt(c, "size", 20)
		if !ok1 || !ok2 {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid from or size"))
			return
		}
		rows, total, err := j.List(c.Request.Context(), eventlog.ListQuery{
			Status:    models.WebhookEventStatus(c.Query("status")),
			EventType: c.Query("event_type"),
			From:      from,
			Size:      size,
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ListWebhookEventsResponse{Items: rows, Total: total}))
	}
}

// @Summary      Replay webhook event (Admin)
// @Description  Re-dispatches a journalled event, typically one that was dead-lettered.
// @Tags         Admin
// @Produce      json
// @Security     AdminBearer
// @Param        event_id path string true "Stripe event id"
// @Success      200  {object}  handlers.RespWebhookAck
// @Router       /api/v1/admin/webhook_events/{event_id}/replay [post]
func ApiReplayWebhookEvent(r EventReplayer) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := r.Replay(c.Request.Context(), c.Param("event_id"))
		switch {
		case errors.Is(err, eventlog.ErrNotFound):
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
		case err != nil:
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
		case out.Kind == wh.OutcomeFailed:
			c.JSON(http.StatusOK, response.ErrorT(response.APIResponseCodeError, ackOf(out)))
		default:
			c.JSON(http.StatusOK, response.OKT(ackOf(out)))
		}
	}
}

type AdminDeps struct {
	Payments PaymentLedger
	Stats    StatisticsProvider
	Journal  EventJournal
	Replayer EventReplayer
}

func RegisterAdminRoutes(r gin.IRouter, d AdminDeps) {
	r.POST("/list_company_payments", ApiListCompanyPayments(d.Payments))
	r.POST("/get_statistic", ApiGetStatistic(d.Stats))
	r.GET("/webhook_events", ApiListWebhookEvents(d.Journal))
	r.POST("/webhook_events/:event_id/replay", ApiReplayWebhookEvent(d.Replayer))
}
