package billing

import (
	"github.com/fatflowers/billing/internal/app/service/company"
	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/internal/app/service/subscription"
	subscriptionlog "github.com/fatflowers/billing/internal/app/service/subscription_log"
	"github.com/fatflowers/billing/internal/app/service/sweeper"
	stripeapi "github.com/fatflowers/billing/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billing/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func provide(cfg *config.Config, store ledger.Store, client *stripeapi.Client, companies *company.Service, sync *subscription.Service, sw *sweeper.Service, changes *subscriptionlog.Service, log *zap.SugaredLogger) *Service {
	return NewService(cfg, store, client, companies, sync, sw, changes, log)
}

// Module exposes the billing service via Fx.
var Module = fx.Options(
	fx.Provide(provide),
)
