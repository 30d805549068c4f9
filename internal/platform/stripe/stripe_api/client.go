package stripe_api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fatflowers/billing/pkg/config"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/subscription"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 10 * time.Second

// Client is the outbound processor client. Every call is bounded by the
// configured timeout; transient failures are retried by the SDK backend.
type Client struct {
	subscriptions *subscription.Client
	invoices      *invoice.Client
	customers     *customer.Client
	sessions      *session.Client
	timeout       time.Duration
	log           *zap.SugaredLogger
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	timeout := cfg.Stripe.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(cfg.Stripe.MaxNetworkRetries),
		LeveledLogger:     log,
	})
	key := cfg.Stripe.SecretKey
	if key == "" {
		log.Warnw("stripe secret key is empty; outbound processor calls will fail")
	}
	return &Client{
		subscriptions: &subscription.Client{B: backend, Key: key},
		invoices:      &invoice.Client{B: backend, Key: key},
		customers:     &customer.Client{B: backend, Key: key},
		sessions:      &session.Client{B: backend, Key: key},
		timeout:       timeout,
		log:           log,
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// GetSubscription fetches the processor's current subscription object.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get subscription %s: %w", subscriptionID, err)
	}
	var out Subscription
	if err := project(sub, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListInvoices returns at most limit of the newest invoices of a subscription.
// Only one page is read.
func (c *Client) ListInvoices(ctx context.Context, subscriptionID string, limit int) ([]*Invoice, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}
	params := &stripe.InvoiceListParams{Subscription: stripe.String(subscriptionID)}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	params.Single = true

	it := c.invoices.List(params)
	out := make([]*Invoice, 0, limit)
	for it.Next() && len(out) < limit {
		var inv Invoice
		if err := project(it.Invoice(), &inv); err != nil {
			return nil, err
		}
		if inv.SubscriptionID() == "" {
			inv.Subscription = ExpandableID(subscriptionID)
		}
		out = append(out, &inv)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("stripe: list invoices of %s: %w", subscriptionID, err)
	}
	return out, nil
}

// CreateCustomer creates a processor customer tagged with the company id.
func (c *Client) CreateCustomer(ctx context.Context, companyID, email, name string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.AddMetadata(MetadataCompanyID, companyID)
	cus, err := c.customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer for company %s: %w", companyID, err)
	}
	return cus.ID, nil
}

// CreateSubscription starts a subscription for seats of priceID.
func (c *Client) CreateSubscription(ctx context.Context, companyID, customerID, priceID string, seats int64) (*Subscription, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(seats)},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataCompanyID, companyID)
	sub, err := c.subscriptions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create subscription for company %s: %w", companyID, err)
	}
	var out Subscription
	if err := project(sub, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelSubscription cancels immediately and returns the cancelled object.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := c.subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: cancel subscription %s: %w", subscriptionID, err)
	}
	var out Subscription
	if err := project(sub, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type CheckoutRequest struct {
	CompanyID  string
	CustomerID string
	PriceID    string
	Seats      int64
	SuccessURL string
	CancelURL  string
}

// CreateCheckoutSession opens a hosted subscription checkout. The company id is set
// as client reference and on the resulting subscription's metadata.
func (c *Client) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(req.CustomerID),
		ClientReferenceID: stripe.String(req.CompanyID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(req.Seats)},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataCompanyID: req.CompanyID},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataCompanyID, req.CompanyID)
	sess, err := c.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session for company %s: %w", req.CompanyID, err)
	}
	var out CheckoutSession
	if err := project(sess, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

var Module = fx.Options(
	fx.Provide(NewClient),
	fx.Provide(func(cfg *config.Config) (*Verifier, error) { return NewVerifier(cfg.Stripe.WebhookSecret) }),
)
