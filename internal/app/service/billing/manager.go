package billing

import (
	"context"
	"errors"

	"github.com/fatflowers/billing/internal/models"
	stripeapi "github.com/fatflowers/billing/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billing/pkg/types"
)

var (
	ErrUnknownPlan       = errors.New("unknown plan")
	ErrNoSubscription    = errors.New("company has no processor subscription")
	ErrAlreadySubscribed = errors.New("company already has a live processor subscription")
	ErrInvalidSeatCount  = errors.New("seat count must be positive")
	ErrCompanyIDRequired = errors.New("company id is required")
)

type CheckoutRequest struct {
	CompanyID string `json:"company_id"`
	PriceID   string `json:"price_id"`
	Seats     int64  `json:"seats"`
	Email     string `json:"email"`
}

type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type CreateSubscriptionRequest struct {
	CompanyID string `json:"company_id"`
	PriceID   string `json:"price_id"`
	Seats     int64  `json:"seats"`
	Email     string `json:"email"`
}

// Processor is the outbound slice of the Stripe client billing needs.
type Processor interface {
	CreateCustomer(ctx context.Context, companyID, email, name string) (string, error)
	CreateSubscription(ctx context.Context, companyID, customerID, priceID string, seats int64) (*stripeapi.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*stripeapi.Subscription, error)
	CreateCheckoutSession(ctx context.Context, req *stripeapi.CheckoutRequest) (*stripeapi.CheckoutSession, error)
}

type CompanyReader interface {
	Get(ctx context.Context, companyID string) (*models.Company, error)
}

type Synchronizer interface {
	ApplyWithReason(ctx context.Context, sub *models.Subscription, obj *stripeapi.Subscription, reason types.SubscriptionChangeReason) (bool, error)
}

type Sweeper interface {
	Sweep(ctx context.Context, externalSubscriptionID string, maxInvoices int) (int, error)
}

type ChangeRecorder interface {
	Record(ctx context.Context, before, after *models.Subscription, reason types.SubscriptionChangeReason, extra map[string]any)
}

// Manager is the operator and product facing billing surface.
type Manager interface {
	// EnsureSubscription returns the company's subscription, creating the FREE/TRIAL default.
	EnsureSubscription(ctx context.Context, companyID string) (*models.Subscription, error)
	// CreateCheckoutSession opens a hosted checkout for a configured plan.
	CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error)
	// CreateSubscription subscribes the company directly and syncs the result.
	CreateSubscription(ctx context.Context, req *CreateSubscriptionRequest) (*models.Subscription, error)
	// CancelSubscription cancels at the processor and syncs the result.
	CancelSubscription(ctx context.Context, companyID string) (*models.Subscription, error)
	// SweepNow backfills the company's paid invoices.
	SweepNow(ctx context.Context, companyID string) (int, error)
}
