package sweeper

import (
	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/internal/app/service/payment"
	stripeapi "github.com/fatflowers/billing/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billing/pkg/metrics"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(func(store ledger.Store, client *stripeapi.Client, payments *payment.Service, rec *metrics.Recorder, log *zap.SugaredLogger) *Service {
		return NewService(store, client, payments, rec, log)
	}),
	fx.Provide(NewRunner),
	fx.Invoke(registerRunner),
)
