package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/internal/app/service/subscription"
	subscriptionlog "github.com/fatflowers/billing/internal/app/service/subscription_log"
	"github.com/fatflowers/billing/internal/models"
	stripeapi "github.com/fatflowers/billing/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billing/pkg/logctx"
	"github.com/fatflowers/billing/pkg/types"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrNotFound means no strategy located a local subscription. Callers drop the
// event; the sweeper or a redelivery recovers it.
var ErrNotFound = errors.New("resolver: subscription not found")

// Query carries whatever identifiers a webhook payload happened to include.
type Query struct {
	SubscriptionID string
	CustomerID     string
	InvoiceID      string
}

type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*stripeapi.Subscription, error)
}

// ChangeRecorder receives before/after snapshots of relinked subscriptions.
type ChangeRecorder interface {
	Record(ctx context.Context, before, after *models.Subscription, reason types.SubscriptionChangeReason, extra map[string]any)
}

// Strategy is one step of the fallback chain. It returns (nil, nil) on a miss.
type Strategy struct {
	Name string
	Find func(ctx context.Context, r *resolution) (*models.Subscription, error)
}

// resolution is the per-call state shared by strategies. The processor
// subscription is fetched at most once.
type resolution struct {
	q        Query
	fetched  *stripeapi.Subscription
	fetchErr error
	didFetch bool
	fetcher  SubscriptionFetcher
}

func (r *resolution) processorSubscription(ctx context.Context) (*stripeapi.Subscription, error) {
	if r.didFetch {
		return r.fetched, r.fetchErr
	}
	r.didFetch = true
	if r.q.SubscriptionID == "" || r.fetcher == nil {
		return nil, nil
	}
	r.fetched, r.fetchErr = r.fetcher.GetSubscription(ctx, r.q.SubscriptionID)
	return r.fetched, r.fetchErr
}

type Resolver struct {
	store      ledger.Store
	fetcher    SubscriptionFetcher
	changes    ChangeRecorder
	log        *zap.SugaredLogger
	strategies []Strategy
}

func New(store ledger.Store, fetcher SubscriptionFetcher, changes ChangeRecorder, log *zap.SugaredLogger) *Resolver {
	r := &Resolver{store: store, fetcher: fetcher, changes: changes, log: log}
	r.strategies = []Strategy{
		{Name: "customer_id", Find: r.byCustomerID},
		{Name: "subscription_id", Find: r.bySubscriptionID},
		{Name: "processor_metadata", Find: r.byProcessorMetadata},
		{Name: "processor_customer_id", Find: r.byProcessorCustomerID},
		{Name: "invoice_id", Find: r.byInvoiceID},
	}
	return r
}

// Strategies returns the fallback chain in evaluation order.
func (r *Resolver) Strategies() []Strategy { return r.strategies }

// Resolve evaluates the strategies in order and returns the first hit. When every
// strategy misses after a processor fetch failed, the fetch error is returned so
// the event is retried instead of dropped.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*models.Subscription, error) {
	res := &resolution{q: q, fetcher: r.fetcher}
	lg := logctx.FromCtx(ctx, r.log)
	for _, st := range r.strategies {
		sub, err := st.Find(ctx, res)
		if err != nil {
			return nil, fmt.Errorf("resolve by %s: %w", st.Name, err)
		}
		if sub != nil {
			lg.Debugw("resolve_hit", "strategy", st.Name, "subscription_id", sub.ID, "company_id", sub.CompanyID)
			return sub, nil
		}
	}
	if res.fetchErr != nil {
		return nil, fmt.Errorf("resolve subscription %s: %w", q.SubscriptionID, res.fetchErr)
	}
	lg.Warnw("resolve_miss", "external_subscription_id", q.SubscriptionID, "external_customer_id", q.CustomerID, "external_invoice_id", q.InvoiceID)
	return nil, ErrNotFound
}

// miss folds ledger.ErrNotFound into a strategy miss.
func miss(sub *models.Subscription, err error) (*models.Subscription, error) {
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	return sub, err
}

func (r *Resolver) byCustomerID(ctx context.Context, res *resolution) (*models.Subscription, error) {
	if res.q.CustomerID == "" {
		return nil, nil
	}
	return miss(r.store.GetSubscriptionByExternalCustomerID(ctx, res.q.CustomerID))
}

func (r *Resolver) bySubscriptionID(ctx context.Context, res *resolution) (*models.Subscription, error) {
	if res.q.SubscriptionID == "" {
		return nil, nil
	}
	return miss(r.store.GetSubscriptionByExternalSubscriptionID(ctx, res.q.SubscriptionID))
}

// byProcessorMetadata reads the company id this service wrote on the processor
// subscription and repairs the local external ids. An ended processor
// subscription does not replace a live link; it only fills missing ids.
func (r *Resolver) byProcessorMetadata(ctx context.Context, res *resolution) (*models.Subscription, error) {
	obj, err := res.processorSubscription(ctx)
	if err != nil || obj == nil {
		// The fetch error is kept on res and reported if nothing else hits.
		return nil, nil
	}
	companyID := obj.CompanyID()
	if companyID == "" {
		return nil, nil
	}
	sub, err := miss(r.store.GetSubscriptionByCompanyID(ctx, companyID))
	if err != nil || sub == nil {
		return sub, err
	}
	overwrite := !obj.Terminal() || subscription.Supersedes(sub, obj)
	if err := r.relink(ctx, sub, obj.ID, obj.Customer.String(), overwrite, "processor_metadata"); err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *Resolver) byProcessorCustomerID(ctx context.Context, res *resolution) (*models.Subscription, error) {
	obj, err := res.processorSubscription(ctx)
	if err != nil || obj == nil {
		return nil, nil
	}
	customerID := obj.Customer.String()
	if customerID == "" || customerID == res.q.CustomerID {
		return nil, nil
	}
	sub, err := miss(r.store.GetSubscriptionByExternalCustomerID(ctx, customerID))
	if err != nil || sub == nil {
		return sub, err
	}
	if err := r.relink(ctx, sub, obj.ID, customerID, false, "processor_customer_id"); err != nil {
		return nil, err
	}
	return sub, nil
}

// byInvoiceID follows an existing payment record to its company.
func (r *Resolver) byInvoiceID(ctx context.Context, res *resolution) (*models.Subscription, error) {
	if res.q.InvoiceID == "" {
		return nil, nil
	}
	rec, err := r.store.GetPaymentByExternalInvoiceID(ctx, res.q.InvoiceID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.SubscriptionID != "" {
		sub, err := miss(r.store.GetSubscriptionByID(ctx, rec.SubscriptionID))
		if err != nil || sub != nil {
			return sub, err
		}
	}
	return miss(r.store.GetSubscriptionByCompanyID(ctx, rec.CompanyID))
}

// relink writes the processor ids onto sub. With overwrite, stale ids are
// replaced; otherwise only missing ones are filled.
func (r *Resolver) relink(ctx context.Context, sub *models.Subscription, subscriptionID, customerID string, overwrite bool, strategy string) error {
	before := sub.Clone()
	changed := false
	set := func(dst **string, v string) {
		if v == "" {
			return
		}
		if *dst == nil || (overwrite && **dst != v) {
			*dst = lo.ToPtr(v)
			changed = true
		}
	}
	set(&sub.ExternalSubscriptionID, subscriptionID)
	set(&sub.ExternalCustomerID, customerID)
	if !changed {
		return nil
	}
	if err := r.store.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("relink subscription %s: %w", sub.ID, err)
	}
	logctx.FromCtx(ctx, r.log).Infow("subscription_relinked",
		"strategy", strategy,
		"company_id", sub.CompanyID,
		"external_subscription_id", lo.FromPtr(sub.ExternalSubscriptionID),
		"external_customer_id", lo.FromPtr(sub.ExternalCustomerID),
	)
	if r.changes != nil {
		r.changes.Record(ctx, before, sub.Clone(), types.SubscriptionChangeReasonRelink, map[string]any{"strategy": strategy})
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(func(store ledger.Store, client *stripeapi.Client, changes *subscriptionlog.Service, log *zap.SugaredLogger) *Resolver {
		return New(store, client, changes, log)
	}),
)
