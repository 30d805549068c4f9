package subscription

import (
	"github.com/fatflowers/billing/internal/app/service/company"
	"github.com/fatflowers/billing/internal/app/service/ledger"
	subscriptionlog "github.com/fatflowers/billing/internal/app/service/subscription_log"
	"github.com/fatflowers/billing/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module exposes the subscription synchronizer via Fx.
var Module = fx.Options(
	fx.Provide(func(cfg *config.Config, store ledger.Store, companies *company.Service, changes *subscriptionlog.Service, log *zap.SugaredLogger) *Service {
		return NewService(cfg, store, companies, changes, log)
	}),
)
