package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/internal/models"
	stripeapi "github.com/fatflowers/billing/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billing/pkg/logctx"
	"github.com/fatflowers/billing/pkg/metrics"
	"github.com/fatflowers/billing/pkg/types"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Effect describes what a record call did to the ledger.
type Effect string

const (
	EffectCreated   Effect = "created"
	EffectPromoted  Effect = "promoted"
	EffectFailed    Effect = "marked_failed"
	EffectUnchanged Effect = "unchanged"
)

// Service materializes payment records from processor invoices. The external
// invoice id is the idempotency key; SUCCEEDED is terminal.
type Service struct {
	store   ledger.Store
	metrics *metrics.Recorder
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewService(store ledger.Store, rec *metrics.Recorder, log *zap.SugaredLogger) *Service {
	return &Service{store: store, metrics: rec, log: log, now: time.Now}
}

// RecordSucceeded records a paid invoice. An existing SUCCEEDED record is
// returned as is; an existing FAILED record is promoted.
func (s *Service) RecordSucceeded(ctx context.Context, sub *models.Subscription, inv *stripeapi.Invoice) (*models.PaymentRecord, Effect, error) {
	if inv == nil || inv.ID == "" {
		return nil, "", errors.New("record payment: invoice id is required")
	}
	existing, err := s.store.GetPaymentByExternalInvoiceID(ctx, inv.ID)
	switch {
	case err == nil:
		return s.settle(ctx, existing, types.PaymentStatusSucceeded)
	case !errors.Is(err, ledger.ErrNotFound):
		return nil, "", fmt.Errorf("failed to load payment %s: %w", inv.ID, err)
	}

	rec := s.newRecord(sub, inv, types.PaymentStatusSucceeded, inv.PaidAmount())
	if err := s.store.CreatePayment(ctx, rec); err != nil {
		if errors.Is(err, ledger.ErrAlreadyExists) {
			return s.reread(ctx, inv.ID, types.PaymentStatusSucceeded)
		}
		return nil, "", fmt.Errorf("failed to create payment %s: %w", inv.ID, err)
	}
	s.recorded(ctx, rec, EffectCreated)
	return rec, EffectCreated, nil
}

// RecordFailed records a failed invoice payment. It never downgrades a
// SUCCEEDED record.
func (s *Service) RecordFailed(ctx context.Context, sub *models.Subscription, inv *stripeapi.Invoice) (*models.PaymentRecord, Effect, error) {
	if inv == nil || inv.ID == "" {
		return nil, "", errors.New("record payment failure: invoice id is required")
	}
	existing, err := s.store.GetPaymentByExternalInvoiceID(ctx, inv.ID)
	switch {
	case err == nil:
		return s.settle(ctx, existing, types.PaymentStatusFailed)
	case !errors.Is(err, ledger.ErrNotFound):
		return nil, "", fmt.Errorf("failed to load payment %s: %w", inv.ID, err)
	}

	rec := s.newRecord(sub, inv, types.PaymentStatusFailed, inv.DueAmount())
	if err := s.store.CreatePayment(ctx, rec); err != nil {
		if errors.Is(err, ledger.ErrAlreadyExists) {
			return s.reread(ctx, inv.ID, types.PaymentStatusFailed)
		}
		return nil, "", fmt.Errorf("failed to create payment %s: %w", inv.ID, err)
	}
	s.recorded(ctx, rec, EffectCreated)
	return rec, EffectCreated, nil
}

// reread resolves a lost insert race by settling against the winner's row.
func (s *Service) reread(ctx context.Context, invoiceID string, want types.PaymentStatus) (*models.PaymentRecord, Effect, error) {
	existing, err := s.store.GetPaymentByExternalInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to reload payment %s after conflict: %w", invoiceID, err)
	}
	logctx.FromCtx(ctx, s.log).Infow("payment_insert_conflict", "external_invoice_id", invoiceID, "existing_status", existing.Status)
	return s.settle(ctx, existing, want)
}

// settle moves an existing record towards want. Only status changes, and a
// terminal status is never left.
func (s *Service) settle(ctx context.Context, existing *models.PaymentRecord, want types.PaymentStatus) (*models.PaymentRecord, Effect, error) {
	if existing.Status == want || existing.Status.Terminal() {
		s.recorded(ctx, existing, EffectUnchanged)
		return existing, EffectUnchanged, nil
	}
	ok, err := s.store.UpdatePaymentStatus(ctx, existing.ExternalInvoiceID, want, types.PaymentStatusSucceeded)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		// A concurrent success got there first.
		latest, err := s.store.GetPaymentByExternalInvoiceID(ctx, existing.ExternalInvoiceID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to reload payment %s: %w", existing.ExternalInvoiceID, err)
		}
		s.recorded(ctx, latest, EffectUnchanged)
		return latest, EffectUnchanged, nil
	}
	effect := EffectFailed
	if want == types.PaymentStatusSucceeded {
		effect = EffectPromoted
	}
	existing.Status = want
	s.recorded(ctx, existing, effect)
	return existing, effect, nil
}

func (s *Service) newRecord(sub *models.Subscription, inv *stripeapi.Invoice, status types.PaymentStatus, amount int64) *models.PaymentRecord {
	start, end := inv.ServicePeriod()
	rec := &models.PaymentRecord{
		ExternalInvoiceID:       inv.ID,
		CompanyID:               sub.CompanyID,
		SubscriptionID:          sub.ID,
		Amount:                  amount,
		Status:                  status,
		ExternalPaymentIntentID: nonEmpty(inv.PaymentIntentID()),
		ExternalChargeID:        nonEmpty(inv.ChargeID()),
		ExternalCustomerID:      nonEmpty(inv.Customer.String()),
		ExternalSubscriptionID:  nonEmpty(inv.SubscriptionID()),
		PeriodStart:             start,
		PeriodEnd:               end,
		Description:             inv.HumanDescription(),
		InvoiceNumber:           inv.Number,
		RecordedAt:              s.now(),
	}
	return rec
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return lo.ToPtr(s)
}

func (s *Service) recorded(ctx context.Context, rec *models.PaymentRecord, effect Effect) {
	s.metrics.PaymentRecorded(string(rec.Status), string(effect))
	lg := logctx.FromCtx(ctx, s.log)
	fields := []interface{}{
		"external_invoice_id", rec.ExternalInvoiceID,
		"company_id", rec.CompanyID,
		"amount", rec.Amount,
		"status", rec.Status,
		"effect", effect,
	}
	if effect == EffectUnchanged {
		lg.Debugw("payment_unchanged", fields...)
		return
	}
	lg.Infow("payment_recorded", fields...)
}

var Module = fx.Options(
	fx.Provide(NewService),
)
