package billing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fatflowers/billing/internal/app/service/company"
	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/internal/app/service/ledger/ledgertest"
	"github.com/fatflowers/billing/internal/app/service/subscription"
	"github.com/fatflowers/billing/internal/models"
	stripeapi "github.com/fatflowers/billing/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billing/pkg/config"
	"github.com/fatflowers/billing/pkg/types"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProcessor struct {
	customers int
	checkout  *stripeapi.CheckoutRequest
	created   *stripeapi.Subscription
	cancelled string
	err       error
}

func (p *stubProcessor) CreateCustomer(ctx context.Context, companyID, email, name string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.customers++
	return "cus_" + companyID, nil
}

func (p *stubProcessor) CreateSubscription(ctx context.Context, companyID, customerID, priceID string, seats int64) (*stripeapi.Subscription, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.created = &stripeapi.Subscription{
		ID: "sub_" + companyID, Customer: stripeapi.ExpandableID(customerID), Status: "active",
		Metadata: map[string]string{stripeapi.MetadataCompanyID: companyID},
	}
	p.created.Items.Data = []*stripeapi.SubscriptionItem{{Quantity: seats, Price: &stripeapi.Price{ID: priceID, UnitAmount: lo.ToPtr(int64(1500))}}}
	return p.created, nil
}

func (p *stubProcessor) CancelSubscription(ctx context.Context, id string) (*stripeapi.Subscription, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.cancelled = id
	return &stripeapi.Subscription{ID: id, Status: "canceled"}, nil
}

func (p *stubProcessor) CreateCheckoutSession(ctx context.Context, req *stripeapi.CheckoutRequest) (*stripeapi.CheckoutSession, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.checkout = req
	return &stripeapi.CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil
}

type stubCompanies struct{}

func (stubCompanies) Get(ctx context.Context, id string) (*models.Company, error) {
	if id == "co_known" {
		return &models.Company{ID: id, Name: "Known Inc"}, nil
	}
	return nil, company.ErrNotFound
}

func (stubCompanies) UpdatePlan(context.Context, string, types.PlanTier, int) error { return nil }

type stubSweeper struct{ swept string }

func (s *stubSweeper) Sweep(ctx context.Context, id string, max int) (int, error) {
	s.swept = id
	return 1, nil
}

type changeLog struct {
	mu      sync.Mutex
	reasons []types.SubscriptionChangeReason
}

func (c *changeLog) Record(ctx context.Context, before, after *models.Subscription, reason types.SubscriptionChangeReason, extra map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasons = append(c.reasons, reason)
}

type fixture struct {
	svc       *Service
	store     *ledgertest.Store
	processor *stubProcessor
	sweeper   *stubSweeper
	changes   *changeLog
}

func newFixture() *fixture {
	log := zap.NewNop().Sugar()
	cfg := &config.Config{
		Stripe: config.StripeConfig{CheckoutSuccessURL: "https://app.example/ok", CheckoutCancelURL: "https://app.example/cancel"},
		Plans:  []*types.Plan{{PriceID: "price_pro", Tier: types.PlanTierPro, BillingCycle: types.BillingCycleMonthly, SeatCeiling: 25}},
	}
	f := &fixture{store: ledgertest.New(), processor: &stubProcessor{}, sweeper: &stubSweeper{}, changes: &changeLog{}}
	sync := subscription.NewService(cfg, f.store, stubCompanies{}, f.changes, log)
	f.svc = NewService(cfg, f.store, f.processor, stubCompanies{}, sync, f.sweeper, f.changes, log)
	return f
}

func TestEnsureSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	sub, err := f.svc.EnsureSubscription(ctx, "co_1")
	require.NoError(t, err)
	require.Equal(t, types.PlanTierFree, sub.PlanTier)
	require.Equal(t, types.SubscriptionStatusTrial, sub.Status)
	require.Equal(t, 1, sub.SeatCount)
	require.True(t, sub.PricePerSeat.IsZero())

	again, err := f.svc.EnsureSubscription(ctx, "co_1")
	require.NoError(t, err)
	require.Equal(t, sub.ID, again.ID)
	require.Equal(t, []types.SubscriptionChangeReason{types.SubscriptionChangeReasonCreate}, f.changes.reasons)

	_, err = f.svc.EnsureSubscription(ctx, "  ")
	require.ErrorIs(t, err, ErrCompanyIDRequired)
}

// racyStore reports a miss on the first lookup so the create hits the unique index.
type racyStore struct {
	*ledgertest.Store
	missed bool
}

func (s *racyStore) GetSubscriptionByCompanyID(ctx context.Context, id string) (*models.Subscription, error) {
	if !s.missed {
		s.missed = true
		return nil, ledger.ErrNotFound
	}
	return s.Store.GetSubscriptionByCompanyID(ctx, id)
}

func TestEnsureSubscription_LostRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	winner := &models.Subscription{CompanyID: "co_1", PlanTier: types.PlanTierFree, Status: types.SubscriptionStatusTrial}
	require.NoError(t, f.store.CreateSubscription(ctx, winner))

	f.svc.store = &racyStore{Store: f.store}
	sub, err := f.svc.EnsureSubscription(ctx, "co_1")
	require.NoError(t, err)
	require.Equal(t, winner.ID, sub.ID)
	require.Empty(t, f.changes.reasons)
}

func TestCreateCheckoutSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	res, err := f.svc.CreateCheckoutSession(ctx, &CheckoutRequest{CompanyID: "co_known", PriceID: "price_pro", Seats: 5})
	require.NoError(t, err)
	require.Equal(t, "cs_1", res.SessionID)
	require.Equal(t, "https://checkout.example/cs_1", res.URL)
	require.Equal(t, "cus_co_known", f.processor.checkout.CustomerID)
	require.Equal(t, "https://app.example/ok", f.processor.checkout.SuccessURL)
	require.EqualValues(t, 5, f.processor.checkout.Seats)

	sub, err := f.store.GetSubscriptionByCompanyID(ctx, "co_known")
	require.NoError(t, err)
	require.Equal(t, "cus_co_known", lo.FromPtr(sub.ExternalCustomerID))

	// The linked customer is reused.
	_, err = f.svc.CreateCheckoutSession(ctx, &CheckoutRequest{CompanyID: "co_known", PriceID: "price_pro"})
	require.NoError(t, err)
	require.Equal(t, 1, f.processor.customers)
	require.EqualValues(t, 1, f.processor.checkout.Seats)

	_, err = f.svc.CreateCheckoutSession(ctx, &CheckoutRequest{CompanyID: "co_known", PriceID: "price_gold"})
	require.ErrorIs(t, err, ErrUnknownPlan)
	_, err = f.svc.CreateCheckoutSession(ctx, &CheckoutRequest{CompanyID: "co_known", PriceID: "price_pro", Seats: -1})
	require.ErrorIs(t, err, ErrInvalidSeatCount)
}

func TestCreateAndCancelSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	sub, err := f.svc.CreateSubscription(ctx, &CreateSubscriptionRequest{CompanyID: "co_1", PriceID: "price_pro", Seats: 3})
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)
	require.Equal(t, types.PlanTierPro, sub.PlanTier)
	require.Equal(t, 3, sub.SeatCount)
	require.Equal(t, "15", sub.PricePerSeat.String())
	require.Equal(t, "sub_co_1", lo.FromPtr(sub.ExternalSubscriptionID))

	_, err = f.svc.CreateSubscription(ctx, &CreateSubscriptionRequest{CompanyID: "co_1", PriceID: "price_pro"})
	require.ErrorIs(t, err, ErrAlreadySubscribed)

	n, err := f.svc.SweepNow(ctx, "co_1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "sub_co_1", f.sweeper.swept)

	sub, err = f.svc.CancelSubscription(ctx, "co_1")
	require.NoError(t, err)
	require.Equal(t, "sub_co_1", f.processor.cancelled)
	require.Equal(t, types.SubscriptionStatusCancelled, sub.Status)

	stored, err := f.store.GetSubscriptionByCompanyID(ctx, "co_1")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusCancelled, stored.Status)
	require.Contains(t, f.changes.reasons, types.SubscriptionChangeReasonCancel)
}

func TestCancelAndSweep_WithoutProcessorSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.svc.EnsureSubscription(ctx, "co_1")
	require.NoError(t, err)

	_, err = f.svc.CancelSubscription(ctx, "co_1")
	require.ErrorIs(t, err, ErrNoSubscription)
	_, err = f.svc.SweepNow(ctx, "co_1")
	require.ErrorIs(t, err, ErrNoSubscription)
	_, err = f.svc.CancelSubscription(ctx, "co_missing")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestProcessorFailureLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.svc.EnsureSubscription(ctx, "co_1")
	require.NoError(t, err)
	writes := f.store.Writes

	f.processor.err = errors.New("stripe down")
	_, err = f.svc.CreateCheckoutSession(ctx, &CheckoutRequest{CompanyID: "co_1", PriceID: "price_pro"})
	require.ErrorIs(t, err, f.processor.err)
	require.Equal(t, writes, f.store.Writes)
}
