package handlers

import (
	"errors"
	"net/http"

	"github.com/fatflowers/billing/internal/app/service/billing"
	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/pkg/logctx"
	"github.com/fatflowers/billing/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CompanyRequest struct {
	CompanyID string `json:"company_id" binding:"required"`
}

type SweepResult struct {
	Backfilled int `json:"backfilled"`
}

// billingError maps service errors onto envelope codes.
func billingError(c *gin.Context, log *zap.SugaredLogger, err error) {
	code := response.APIResponseCodeError
	switch {
	case errors.Is(err, billing.ErrUnknownPlan),
		errors.Is(err, billing.ErrInvalidSeatCount),
		errors.Is(err, billing.ErrCompanyIDRequired),
		errors.Is(err, billing.ErrAlreadySubscribed),
		errors.Is(err, billing.ErrNoSubscription):
		code = response.APIResponseCodeBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		code = response.APIResponseCodeNotFound
	default:
		logctx.FromGin(c, log).Errorw("billing_request_failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(http.StatusOK, response.ErrorT[any](code, err.Error()))
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
		return false
	}
	return true
}

// @Summary      Ensure subscription
// @Description  Returns the company's subscription, creating the FREE trial default on first call.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Param        request body CompanyRequest true "Company"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/billing/subscription/ensure [post]
func ApiEnsureSubscription(m billing.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CompanyRequest
		if !bind(c, &req) {
			return
		}
		sub, err := m.EnsureSubscription(c.Request.Context(), req.CompanyID)
		if err != nil {
			billingError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Create checkout session
// @Description  Opens a hosted Stripe checkout for a configured plan.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Param        request body billing.CheckoutRequest true "Checkout request"
// @Success      200  {object}  handlers.RespCheckout
// @Router       /api/v1/billing/checkout_session [post]
func ApiCreateCheckoutSession(m billing.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req billing.CheckoutRequest
		if !bind(c, &req) {
			return
		}
		res, err := m.CreateCheckoutSession(c.Request.Context(), &req)
		if err != nil {
			billingError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Create subscription
// @Description  Subscribes the company to a plan directly and synchronizes the result.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Param        request body billing.CreateSubscriptionRequest true "Subscription request"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/billing/subscription [post]
func ApiCreateSubscription(m billing.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req billing.CreateSubscriptionRequest
		if !bind(c, &req) {
			return
		}
		sub, err := m.CreateSubscription(c.Request.Context(), &req)
		if err != nil {
			billingError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Cancel subscription
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Param        request body CompanyRequest true "Company"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/billing/subscription/cancel [post]
func ApiCancelSubscription(m billing.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CompanyRequest
		if !bind(c, &req) {
			return
		}
		sub, err := m.CancelSubscription(c.Request.Context(), req.CompanyID)
		if err != nil {
			billingError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Sweep now
// @Description  Backfills the company's paid invoices that are missing from the ledger.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Param        request body CompanyRequest true "Company"
// @Success      200  {object}  handlers.RespSweep
// @Router       /api/v1/billing/sweep [post]
func ApiSweepNow(m billing.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CompanyRequest
		if !bind(c, &req) {
			return
		}
		n, err := m.SweepNow(c.Request.Context(), req.CompanyID)
		if err != nil {
			billingError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&SweepResult{Backfilled: n}))
	}
}

func RegisterBillingRoutes(r gin.IRouter, m billing.Manager, log *zap.SugaredLogger) {
	r.POST("/subscription/ensure", ApiEnsureSubscription(m, log))
	r.POST("/subscription", ApiCreateSubscription(m, log))
	r.POST("/subscription/cancel", ApiCancelSubscription(m, log))
	r.POST("/checkout_session", ApiCreateCheckoutSession(m, log))
	r.POST("/sweep", ApiSweepNow(m, log))
}
