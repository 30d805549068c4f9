package sweeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/internal/app/service/payment"
	"github.com/fatflowers/billing/internal/models"
	stripeapi "github.com/fatflowers/billing/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billing/pkg/logctx"
	"github.com/fatflowers/billing/pkg/metrics"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const DefaultMaxInvoices = 10

// Trigger labels what started a sweep.
type Trigger string

const (
	TriggerWebhook  Trigger = "webhook"
	TriggerPeriodic Trigger = "periodic"
	TriggerOnDemand Trigger = "on_demand"
)

type InvoiceLister interface {
	ListInvoices(ctx context.Context, subscriptionID string, limit int) ([]*stripeapi.Invoice, error)
}

type PaymentRecorder interface {
	RecordSucceeded(ctx context.Context, sub *models.Subscription, inv *stripeapi.Invoice) (*models.PaymentRecord, payment.Effect, error)
}

// Service backfills paid invoices that never reached the ledger.
type Service struct {
	store    ledger.Store
	invoices InvoiceLister
	payments PaymentRecorder
	metrics  *metrics.Recorder
	log      *zap.SugaredLogger
}

func NewService(store ledger.Store, invoices InvoiceLister, payments PaymentRecorder, rec *metrics.Recorder, log *zap.SugaredLogger) *Service {
	return &Service{store: store, invoices: invoices, payments: payments, metrics: rec, log: log}
}

// Sweep backfills the subscription with the given external id and returns the
// number of payment records it created or repaired.
func (s *Service) Sweep(ctx context.Context, externalSubscriptionID string, maxInvoices int) (int, error) {
	sub, err := s.store.GetSubscriptionByExternalSubscriptionID(ctx, externalSubscriptionID)
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", externalSubscriptionID, err)
	}
	return s.SweepSubscription(ctx, sub, maxInvoices, TriggerOnDemand)
}

// SweepSubscription lists the newest invoices of sub and records every paid,
// positive invoice without a SUCCEEDED local record.
func (s *Service) SweepSubscription(ctx context.Context, sub *models.Subscription, maxInvoices int, trigger Trigger) (int, error) {
	extID := lo.FromPtr(sub.ExternalSubscriptionID)
	if extID == "" {
		return 0, nil
	}
	if maxInvoices <= 0 {
		maxInvoices = DefaultMaxInvoices
	}
	invoices, err := s.invoices.ListInvoices(ctx, extID, maxInvoices)
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", extID, err)
	}

	lg := logctx.FromCtx(ctx, s.log)
	backfilled := 0
	for _, inv := range invoices {
		if !inv.IsPaid() || inv.PaidAmount() <= 0 {
			continue
		}
		existing, err := s.store.GetPaymentByExternalInvoiceID(ctx, inv.ID)
		if err == nil && existing.Status.Terminal() {
			continue
		}
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			return backfilled, fmt.Errorf("sweep %s: load invoice %s: %w", extID, inv.ID, err)
		}
		_, effect, err := s.payments.RecordSucceeded(ctx, sub, inv)
		if err != nil {
			return backfilled, fmt.Errorf("sweep %s: record invoice %s: %w", extID, inv.ID, err)
		}
		if effect == payment.EffectCreated || effect == payment.EffectPromoted {
			backfilled++
			lg.Infow("sweep_backfilled", "external_subscription_id", extID, "external_invoice_id", inv.ID, "effect", effect, "trigger", trigger)
		}
	}
	s.metrics.Backfilled(string(trigger), backfilled)
	lg.Debugw("sweep_done", "external_subscription_id", extID, "listed", len(invoices), "backfilled", backfilled, "trigger", trigger)
	return backfilled, nil
}
