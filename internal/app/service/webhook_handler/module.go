package webhook_handler

import (
	"github.com/fatflowers/billing/internal/app/service/billing"
	eventlog "github.com/fatflowers/billing/internal/app/service/event_log"
	"github.com/fatflowers/billing/internal/app/service/payment"
	"github.com/fatflowers/billing/internal/app/service/resolver"
	"github.com/fatflowers/billing/internal/app/service/subscription"
	"github.com/fatflowers/billing/internal/app/service/sweeper"
	stripeapi "github.com/fatflowers/billing/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billing/pkg/config"
	"github.com/fatflowers/billing/pkg/metrics"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type params struct {
	fx.In

	Cfg      *config.Config
	Verifier *stripeapi.Verifier
	Client   *stripeapi.Client
	Journal  *eventlog.Service
	Resolver *resolver.Resolver
	Sync     *subscription.Service
	Payments *payment.Service
	Sweeper  *sweeper.Service
	Billing  *billing.Service
	Metrics  *metrics.Recorder
	Log      *zap.SugaredLogger
}

func newFromParams(p params) *Handler {
	return New(Deps{
		Verifier:    p.Verifier,
		Journal:     p.Journal,
		Resolver:    p.Resolver,
		Sync:        p.Sync,
		Payments:    p.Payments,
		Sweeper:     p.Sweeper,
		Fetcher:     p.Client,
		Ensurer:     p.Billing,
		Metrics:     p.Metrics,
		Log:         p.Log,
		MaxAttempts: p.Cfg.Webhook.MaxAttempts,
		MaxInvoices: p.Cfg.Sweeper.MaxInvoices,
	})
}

var Module = fx.Options(
	fx.Provide(newFromParams),
)
