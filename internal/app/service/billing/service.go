package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

type Service struct {
	cfg       *config.Config
	store     ledger.Store
	processor Processor
	companies CompanyReader
	sync      Synchronizer
	sweeper   Sweeper
	changes   ChangeRecorder
	log       *zap.SugaredLogger
}

var _ Manager = (*Service)(nil)

func NewService(cfg *config.Config, store ledger.Store, processor Processor, companies CompanyReader, sync Synchronizer, sweeper Sweeper, changes ChangeRecorder, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, store: store, processor: processor, companies: companies, sync: sync, sweeper: sweeper, changes: changes, log: log}
}

func (s *Service) EnsureSubscription(ctx context.Context, companyID string) (*models.Subscription, error) {
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return nil, ErrCompanyIDRequired
	}
	sub, err := s.store.GetSubscriptionByCompanyID(ctx, companyID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	sub = &models.Subscription{
		CompanyID:    companyID,
		PlanTier:     types.PlanTierFree,
		PricePerSeat: decimal.Zero,
		SeatCount:    1,
		BillingCycle: types.BillingCycleMonthly,
		Status:       types.SubscriptionStatusTrial,
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		if errors.Is(err, ledger.ErrAlreadyExists) {
			// Lost the race to a concurrent first contact.
			return s.store.GetSubscriptionByCompanyID(ctx, companyID)
		}
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription_created", "company_id", companyID, "subscription_id", sub.ID)
	s.record(ctx, nil, sub, types.SubscriptionChangeReasonCreate, nil)
	return sub, nil
}

func (s *Service) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	seats, err := s.checkPlan(req.PriceID, req.Seats)
	if err != nil {
		return nil, err
	}
	sub, err := s.EnsureSubscription(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, sub, req.Email)
	if err != nil {
		return nil, err
	}
	sess, err := s.processor.CreateCheckoutSession(ctx, &stripeapi.CheckoutRequest{
		CompanyID:  sub.CompanyID,
		CustomerID: customerID,
		PriceID:    req.PriceID,
		Seats:      seats,
		SuccessURL: s.cfg.Stripe.CheckoutSuccessURL,
		CancelURL:  s.cfg.Stripe.CheckoutCancelURL,
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("checkout_session_created", "company_id", sub.CompanyID, "session_id", sess.ID, "price_id", req.PriceID, "seats", seats)
	return &CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}

func (s *Service) CreateSubscription(ctx context.Context, req *CreateSubscriptionRequest) (*models.Subscription, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	seats, err := s.checkPlan(req.PriceID, req.Seats)
	if err != nil {
		return nil, err
	}
	sub, err := s.EnsureSubscription(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}
	if sub.ExternalSubscriptionID != nil && sub.Status != types.SubscriptionStatusCancelled {
		return nil, ErrAlreadySubscribed
	}
	customerID, err := s.ensureCustomer(ctx, sub, req.Email)
	if err != nil {
		return nil, err
	}
	obj, err := s.processor.CreateSubscription(ctx, sub.CompanyID, customerID, req.PriceID, seats)
	if err != nil {
		return nil, err
	}
	if _, err := s.sync.ApplyWithReason(ctx, sub, obj, types.SubscriptionChangeReasonSync); err != nil {
		return nil, fmt.Errorf("sync created subscription %s: %w", obj.ID, err)
	}
	return sub, nil
}

func (s *Service) CancelSubscription(ctx context.Context, companyID string) (*models.Subscription, error) {
	sub, err := s.store.GetSubscriptionByCompanyID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	extID := lo.FromPtr(sub.ExternalSubscriptionID)
	if extID == "" {
		return nil, ErrNoSubscription
	}
	obj, err := s.processor.CancelSubscription(ctx, extID)
	if err != nil {
		return nil, err
	}
	if _, err := s.sync.ApplyWithReason(ctx, sub, obj, types.SubscriptionChangeReasonCancel); err != nil {
		return nil, fmt.Errorf("sync cancelled subscription %s: %w", extID, err)
	}
	return sub, nil
}

func (s *Service) SweepNow(ctx context.Context, companyID string) (int, error) {
	sub, err := s.store.GetSubscriptionByCompanyID(ctx, companyID)
	if err != nil {
		return 0, err
	}
	extID := lo.FromPtr(sub.ExternalSubscriptionID)
	if extID == "" {
		return 0, ErrNoSubscription
	}
	return s.sweeper.Sweep(ctx, extID, s.cfg.Sweeper.MaxInvoices)
}

// checkPlan validates the price against the plan catalogue. Seats default to one.
func (s *Service) checkPlan(priceID string, seats int64) (int64, error) {
	if s.cfg.GetPlanByPriceID(priceID) == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPlan, priceID)
	}
	switch {
	case seats == 0:
		return 1, nil
	case seats < 0:
		return 0, ErrInvalidSeatCount
	}
	return seats, nil
}

// ensureCustomer returns the processor customer of sub, creating and linking one if needed.
func (s *Service) ensureCustomer(ctx context.Context, sub *models.Subscription, email string) (string, error) {
	if id := lo.FromPtr(sub.ExternalCustomerID); id != "" {
		return id, nil
	}
	name := ""
	co, err := s.companies.Get(ctx, sub.CompanyID)
	switch {
	case err == nil:
		name = co.Name
	case !errors.Is(err, company.ErrNotFound):
		return "", err
	}
	customerID, err := s.processor.CreateCustomer(ctx, sub.CompanyID, email, name)
	if err != nil {
		return "", err
	}
	before := sub.Clone()
	sub.ExternalCustomerID = lo.ToPtr(customerID)
	if err := s.store.SaveSubscription(ctx, sub); err != nil {
		return "", fmt.Errorf("link customer %s: %w", customerID, err)
	}
	logctx.FromCtx(ctx, s.log).Infow("customer_created", "company_id", sub.CompanyID, "external_customer_id", customerID)
	s.record(ctx, before, sub, types.SubscriptionChangeReasonRelink, map[string]any{"customer_created": true})
	return customerID, nil
}

func (s *Service) record(ctx context.Context, before, after *models.Subscription, reason types.SubscriptionChangeReason, extra map[string]any) {
	if s.changes != nil {
		s.changes.Record(ctx, before.Clone(), after.Clone(), reason, extra)
	}
}
