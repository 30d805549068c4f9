package app

import (
	"time"

	"github.com/fatflowers/billing/internal/app/api/server"
	"github.com/fatflowers/billing/internal/app/service/billing"
	"github.com/fatflowers/billing/internal/app/service/company"
	eventlog "github.com/fatflowers/billing/internal/app/service/event_log"
	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/internal/app/service/payment"
	"github.com/fatflowers/billing/internal/app/service/resolver"
	"github.com/fatflowers/billing/internal/app/service/statistics"
	"github.com/fatflowers/billing/internal/app/service/subscription"
	subscriptionlog "github.com/fatflowers/billing/internal/app/service/subscription_log"
	"github.com/fatflowers/billing/internal/app/service/sweeper"
	webhookhandler "github.com/fatflowers/billing/internal/app/service/webhook_handler"
	"github.com/fatflowers/billing/internal/platform/db"
	stripeapi "github.com/fatflowers/billing/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billing/pkg/config"
	"github.com/fatflowers/billing/pkg/logger"
	"github.com/fatflowers/billing/pkg/metrics"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	db.Module,
	ledger.Module,
	stripeapi.Module,
	server.Module,
	company.Module,
	subscriptionlog.Module,
	resolver.Module,
	subscription.Module,
	payment.Module,
	sweeper.Module,
	eventlog.Module,
	billing.Module,
	statistics.Module,
	webhookhandler.Module,
)
