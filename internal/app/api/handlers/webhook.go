package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	wh "github.com/fatflowers/billing/internal/app/service/webhook_handler"
	"github.com/fatflowers/billing/pkg/logctx"
	"github.com/fatflowers/billing/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	StripeSignatureHeader = "Stripe-Signature"
	defaultMaxBodyBytes   = 1 << 20
)

type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, signature string) (wh.Outcome, error)
}

type WebhookAck struct {
	EventID      string         `json:"event_id"`
	EventType    string         `json:"event_type"`
	Outcome      wh.OutcomeKind `json:"outcome"`
	Reason       string         `json:"reason,omitempty"`
	Attempts     int            `json:"attempts"`
	DeadLettered bool           `json:"dead_lettered,omitempty"`
}

func ackOf(out wh.Outcome) *WebhookAck {
	return &WebhookAck{
		EventID:      out.EventID,
		EventType:    out.EventType,
		Outcome:      out.Kind,
		Reason:       out.Reason,
		Attempts:     out.Attempts,
		DeadLettered: out.DeadLettered,
	}
}

// @Summary      Stripe webhook
// @Description  Receives Stripe events. The raw body is verified against the Stripe-Signature header.
// @Description  Returns 400 on an invalid signature and 500 when the event should be redelivered.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "Stripe signature header"
// @Param        payload body string true "Raw Stripe event"
// @Success      200  {object}  handlers.RespWebhookAck
// @Failure      400  {object}  handlers.RespOK
// @Failure      500  {object}  handlers.RespWebhookAck
// @Router       /api/v1/billing/webhook/stripe [post]
func ApiStripeWebhook(p WebhookProcessor, maxBodyBytes int64, log *zap.SugaredLogger) gin.HandlerFunc {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return func(c *gin.Context) {
		lg := logctx.FromGin(c, log)
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			status := http.StatusBadRequest
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			lg.Warnw("webhook_stripe_body_rejected", "err", err)
			c.JSON(status, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		out, err := p.Handle(c.Request.Context(), payload, c.GetHeader(StripeSignatureHeader))
		switch {
		case errors.Is(err, wh.ErrInvalidSignature):
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeInvalidSignature, nil))
		case err != nil:
			lg.Errorw("webhook_stripe_handle_error", "err", err)
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
		case out.Retry():
			c.JSON(http.StatusInternalServerError, response.ErrorT(response.APIResponseCodeError, ackOf(out)))
		default:
			c.JSON(http.StatusOK, response.OKT(ackOf(out)))
		}
	}
}

func RegisterWebhookRoutes(r gin.IRouter, p WebhookProcessor, maxBodyBytes int64, log *zap.SugaredLogger) {
	r.POST("/stripe", ApiStripeWebhook(p, maxBodyBytes, log))
}
