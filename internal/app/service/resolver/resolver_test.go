package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/fatflowers/billing/internal/app/service/ledger/ledgertest"
	"github.com/fatflowers/billing/internal/models"
	stripeapi "github.com/fatflowers/billing/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billing/pkg/types"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubFetcher struct {
	subs  map[string]*stripeapi.Subscription
	err   error
	calls int
}

func (f *stubFetcher) GetSubscription(ctx context.Context, id string) (*stripeapi.Subscription, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	sub, ok := f.subs[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return sub, nil
}

type change struct {
	before, after *models.Subscription
	reason        types.SubscriptionChangeReason
}

type recorder struct{ changes []change }

func (r *recorder) Record(ctx context.Context, before, after *models.Subscription, reason types.SubscriptionChangeReason, extra map[string]any) {
	r.changes = append(r.changes, change{before, after, reason})
}

func seed(t *testing.T, store *ledgertest.Store, companyID, customerID, subscriptionID string) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{CompanyID: companyID, PlanTier: types.PlanTierFree, Status: types.SubscriptionStatusTrial, BillingCycle: types.BillingCycleMonthly}
	if customerID != "" {
		sub.ExternalCustomerID = lo.ToPtr(customerID)
	}
	if subscriptionID != "" {
		sub.ExternalSubscriptionID = lo.ToPtr(subscriptionID)
	}
	require.NoError(t, store.CreateSubscription(context.Background(), sub))
	return sub
}

func newResolver(store *ledgertest.Store, f *stubFetcher, rec *recorder) *Resolver {
	return New(store, f, rec, zap.NewNop().Sugar())
}

func TestResolver_StrategyOrder(t *testing.T) {
	r := newResolver(ledgertest.New(), &stubFetcher{}, &recorder{})
	names := lo.Map(r.Strategies(), func(s Strategy, _ int) string { return s.Name })
	require.Equal(t, []string{"customer_id", "subscription_id", "processor_metadata", "processor_customer_id", "invoice_id"}, names)
}

func TestResolver_DirectLookups(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	byCustomer := seed(t, store, "co_1", "cus_1", "sub_1")
	bySub := seed(t, store, "co_2", "", "sub_2")
	f := &stubFetcher{}
	r := newResolver(store, f, &recorder{})

	got, err := r.Resolve(ctx, Query{CustomerID: "cus_1", SubscriptionID: "sub_2"})
	require.NoError(t, err)
	require.Equal(t, byCustomer.ID, got.ID, "customer id wins over subscription id")

	got, err = r.Resolve(ctx, Query{CustomerID: "cus_unknown", SubscriptionID: "sub_2"})
	require.NoError(t, err)
	require.Equal(t, bySub.ID, got.ID)
	require.Zero(t, f.calls, "direct hits must not call the processor")
}

func TestResolver_HealsFromProcessorMetadata(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	local := seed(t, store, "co_1", "cus_old", "sub_old")
	f := &stubFetcher{subs: map[string]*stripeapi.Subscription{
		"sub_new": {ID: "sub_new", Customer: "cus_new", Metadata: map[string]string{stripeapi.MetadataCompanyID: "co_1"}},
	}}
	rec := &recorder{}
	r := newResolver(store, f, rec)

	got, err := r.Resolve(ctx, Query{SubscriptionID: "sub_new", CustomerID: "cus_new"})
	require.NoError(t, err)
	require.Equal(t, local.ID, got.ID)
	require.Equal(t, "sub_new", lo.FromPtr(got.ExternalSubscriptionID))
	require.Equal(t, "cus_new", lo.FromPtr(got.ExternalCustomerID))

	stored, err := store.GetSubscriptionByExternalSubscriptionID(ctx, "sub_new")
	require.NoError(t, err)
	require.Equal(t, local.ID, stored.ID)

	require.Len(t, rec.changes, 1)
	require.Equal(t, types.SubscriptionChangeReasonRelink, rec.changes[0].reason)
	require.Equal(t, "sub_old", lo.FromPtr(rec.changes[0].before.ExternalSubscriptionID))

	// Subsequent events resolve directly.
	_, err = r.Resolve(ctx, Query{SubscriptionID: "sub_new"})
	require.NoError(t, err)
	require.Equal(t, 1, f.calls)
}

func TestResolver_ProcessorCustomerIDFillsMissingSubscription(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	local := seed(t, store, "co_1", "cus_1", "")
	f := &stubFetcher{subs: map[string]*stripeapi.Subscription{
		"sub_1": {ID: "sub_1", Customer: "cus_1"},
	}}
	r := newResolver(store, f, &recorder{})

	got, err := r.Resolve(ctx, Query{SubscriptionID: "sub_1"})
	require.NoError(t, err)
	require.Equal(t, local.ID, got.ID)
	require.Equal(t, "sub_1", lo.FromPtr(got.ExternalSubscriptionID))
}

func TestResolver_FetchIsMemoized(t *testing.T) {
	store := ledgertest.New()
	f := &stubFetcher{subs: map[string]*stripeapi.Subscription{"sub_x": {ID: "sub_x", Customer: "cus_x"}}}
	r := newResolver(store, f, &recorder{})

	_, err := r.Resolve(context.Background(), Query{SubscriptionID: "sub_x"})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, f.calls)
}

func TestResolver_ByInvoiceID(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	local := seed(t, store, "co_1", "", "")
	require.NoError(t, store.CreatePayment(ctx, &models.PaymentRecord{
		ExternalInvoiceID: "in_1", CompanyID: "co_1", SubscriptionID: local.ID, Status: types.PaymentStatusFailed,
	}))
	r := newResolver(store, &stubFetcher{}, &recorder{})

	got, err := r.Resolve(ctx, Query{InvoiceID: "in_1"})
	require.NoError(t, err)
	require.Equal(t, local.ID, got.ID)
}

func TestResolver_Misses(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()

	r := newResolver(store, &stubFetcher{subs: map[string]*stripeapi.Subscription{}}, &recorder{})
	_, err := r.Resolve(ctx, Query{})
	require.ErrorIs(t, err, ErrNotFound)

	fetchErr := errors.New("processor unavailable")
	r = newResolver(store, &stubFetcher{err: fetchErr}, &recorder{})
	_, err = r.Resolve(ctx, Query{SubscriptionID: "sub_1"})
	require.ErrorIs(t, err, fetchErr)
	require.NotErrorIs(t, err, ErrNotFound)

	storeErr := errors.New("db down")
	store.FailNext["GetSubscriptionByExternalCustomerID"] = storeErr
	_, err = r.Resolve(ctx, Query{CustomerID: "cus_1"})
	require.ErrorIs(t, err, storeErr)
}

func TestResolver_EndedSubscriptionDoesNotReplaceLiveLink(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	local := seed(t, store, "co_1", "cus_1", "sub_new")
	local.Status = types.SubscriptionStatusActive
	require.NoError(t, store.SaveSubscription(ctx, local))
	f := &stubFetcher{subs: map[string]*stripeapi.Subscription{
		"sub_old": {ID: "sub_old", Customer: "cus_old", Status: "canceled", Metadata: map[string]string{stripeapi.MetadataCompanyID: "co_1"}},
	}}
	rec := &recorder{}
	r := newResolver(store, f, rec)

	got, err := r.Resolve(ctx, Query{SubscriptionID: "sub_old", CustomerID: "cus_old"})
	require.NoError(t, err)
	require.Equal(t, local.ID, got.ID)
	require.Equal(t, "sub_new", lo.FromPtr(got.ExternalSubscriptionID))
	require.Equal(t, "cus_1", lo.FromPtr(got.ExternalCustomerID))
	require.Empty(t, rec.changes)
}
