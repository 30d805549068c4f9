package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/billing/internal/app/service/company"
	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/internal/models"
	stripeapi "github.com/fatflowers/billing/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billing/pkg/config"
	"github.com/fatflowers/billing/pkg/logctx"
	"github.com/fatflowers/billing/pkg/types"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrStale is returned for an object about a processor subscription other than
// the one linked locally. Nothing is written.
var ErrStale = errors.New("subscription: stale processor subscription")

type CompanyPlanUpdater interface {
	UpdatePlan(ctx context.Context, companyID string, tier types.PlanTier, seatCeiling int) error
}

type ChangeRecorder interface {
	Record(ctx context.Context, before, after *models.Subscription, reason types.SubscriptionChangeReason, extra map[string]any)
}

// Service projects processor subscription objects onto local subscriptions.
type Service struct {
	cfg       *config.Config
	store     ledger.Store
	companies CompanyPlanUpdater
	changes   ChangeRecorder
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewService(cfg *config.Config, store ledger.Store, companies CompanyPlanUpdater, changes ChangeRecorder, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, store: store, companies: companies, changes: changes, log: log, now: time.Now}
}

// Apply synchronizes sub with obj and persists it when anything changed.
// Applying the same object twice is a no-op the second time.
func (s *Service) Apply(ctx context.Context, sub *models.Subscription, obj *stripeapi.Subscription) (bool, error) {
	return s.ApplyWithReason(ctx, sub, obj, types.SubscriptionChangeReasonSync)
}

func (s *Service) ApplyWithReason(ctx context.Context, sub *models.Subscription, obj *stripeapi.Subscription, reason types.SubscriptionChangeReason) (bool, error) {
	if sub == nil || obj == nil {
		return false, errors.New("apply subscription: nil input")
	}
	if !Supersedes(sub, obj) {
		logctx.FromCtx(ctx, s.log).Infow("subscription_stale_ignored",
			"company_id", sub.CompanyID,
			"external_subscription_id", lo.FromPtr(sub.ExternalSubscriptionID),
			"incoming_subscription_id", obj.ID,
			"processor_status", obj.Status,
		)
		return false, ErrStale
	}
	before := sub.Clone()
	s.project(sub, obj)

	if !changed(before, sub) {
		return false, nil
	}

	// The company is updated first so a failed save retries the promotion.
	if sub.PlanTier.Higher(before.PlanTier) {
		if err := s.promote(ctx, sub); err != nil {
			*sub = *before
			return false, err
		}
	}

	if err := s.store.SaveSubscription(ctx, sub); err != nil {
		*sub = *before
		return false, fmt.Errorf("failed to save subscription %s: %w", sub.ID, err)
	}

	logctx.FromCtx(ctx, s.log).Infow("subscription_synced",
		"company_id", sub.CompanyID,
		"external_subscription_id", obj.ID,
		"processor_status", obj.Status,
		"status", sub.Status,
		"plan_tier", sub.PlanTier,
		"seat_count", sub.SeatCount,
		"next_billing_at", sub.NextBillingAt,
		"reason", reason,
	)
	if s.changes != nil {
		s.changes.Record(ctx, before, sub.Clone(), reason, map[string]any{"processor_status": obj.Status})
	}
	return true, nil
}

// Supersedes reports whether obj may be projected onto sub. The linked external
// subscription id wins over any other object, except that a cancelled link gives
// way to a live replacement.
func Supersedes(sub *models.Subscription, obj *stripeapi.Subscription) bool {
	linked := lo.FromPtr(sub.ExternalSubscriptionID)
	if linked == "" || obj.ID == "" || linked == obj.ID {
		return true
	}
	return sub.Status == types.SubscriptionStatusCancelled && !obj.Terminal()
}

// project copies the processor's view onto sub without persisting.
func (s *Service) project(sub *models.Subscription, obj *stripeapi.Subscription) {
	if obj.ID != "" {
		sub.ExternalSubscriptionID = lo.ToPtr(obj.ID)
	}
	if cus := obj.Customer.String(); cus != "" {
		sub.ExternalCustomerID = lo.ToPtr(cus)
	}
	if st, ok := MapStatus(obj.Status); ok {
		sub.Status = st
	}
	if seats, ok := obj.Quantity(); ok && seats > 0 {
		sub.SeatCount = int(seats)
	}
	if amount, ok := obj.UnitAmount(); ok {
		sub.PricePerSeat = decimal.New(amount, -2)
	}

	priceID := obj.PriceID()
	if priceID != "" {
		sub.ExternalPriceID = lo.ToPtr(priceID)
	}
	plan := s.cfg.GetPlanByPriceID(priceID)
	if plan != nil {
		sub.PlanTier = plan.Tier
		sub.BillingCycle = plan.BillingCycle
	}
	if cycle, ok := cycleFromInterval(obj.Interval()); ok {
		sub.BillingCycle = cycle
	}

	sub.NextBillingAt = NextBillingAt(obj, sub.BillingCycle, sub.NextBillingAt, s.now())
}

func (s *Service) promote(ctx context.Context, sub *models.Subscription) error {
	ceiling := sub.SeatCount
	if plan := s.cfg.GetPlanByPriceID(lo.FromPtr(sub.ExternalPriceID)); plan != nil && plan.SeatCeiling > ceiling {
		ceiling = plan.SeatCeiling
	}
	err := s.companies.UpdatePlan(ctx, sub.CompanyID, sub.PlanTier, ceiling)
	switch {
	case errors.Is(err, company.ErrNotFound):
		logctx.FromCtx(ctx, s.log).Warnw("plan_promotion_company_missing", "company_id", sub.CompanyID, "plan_tier", sub.PlanTier)
		return nil
	case err != nil:
		return fmt.Errorf("failed to promote company %s to %s: %w", sub.CompanyID, sub.PlanTier, err)
	}
	return nil
}

// MapStatus maps a processor subscription status to the local lifecycle. The
// second result is false for statuses that must leave local state untouched.
func MapStatus(processorStatus string) (types.SubscriptionStatus, bool) {
	switch processorStatus {
	case "active", "trialing":
		return types.SubscriptionStatusActive, true
	case "past_due", "unpaid":
		return types.SubscriptionStatusSuspended, true
	case "canceled", "incomplete_expired":
		return types.SubscriptionStatusCancelled, true
	}
	return "", false
}

func cycleFromInterval(interval string) (types.BillingCycle, bool) {
	switch interval {
	case "month":
		return types.BillingCycleMonthly, true
	case "year":
		return types.BillingCycleYearly, true
	}
	return "", false
}

// NextBillingAt picks the next billing timestamp, first matching rule wins:
// trialing with a trial end, the later of trial and period end, the period end,
// the trial end, and finally one cycle from now.
//
// The fallback deliberately deviates from a plain now + one cycle: a current
// date that is still in the future is kept, so re-applying an object without
// period data does not move it.
func NextBillingAt(obj *stripeapi.Subscription, cycle types.BillingCycle, current *time.Time, now time.Time) *time.Time {
	trialEnd, periodEnd := obj.TrialEndAt(), obj.PeriodEndAt()
	switch {
	case obj.Status == "trialing" && trialEnd != nil:
		return trialEnd
	case trialEnd != nil && periodEnd != nil:
		if trialEnd.After(*periodEnd) {
			return trialEnd
		}
		return periodEnd
	case periodEnd != nil:
		return periodEnd
	case trialEnd != nil:
		return trialEnd
	case current != nil && current.After(now):
		return current
	}
	next := cycle.Next(now)
	return &next
}

func changed(a, b *models.Subscription) bool {
	return a.Status != b.Status ||
		a.PlanTier != b.PlanTier ||
		a.SeatCount != b.SeatCount ||
		a.BillingCycle != b.BillingCycle ||
		!a.PricePerSeat.Equal(b.PricePerSeat) ||
		!equalTime(a.NextBillingAt, b.NextBillingAt) ||
		lo.FromPtr(a.ExternalCustomerID) != lo.FromPtr(b.ExternalCustomerID) ||
		lo.FromPtr(a.ExternalSubscriptionID) != lo.FromPtr(b.ExternalSubscriptionID) ||
		lo.FromPtr(a.ExternalPriceID) != lo.FromPtr(b.ExternalPriceID)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
