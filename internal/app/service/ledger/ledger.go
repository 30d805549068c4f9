package ledger

import (
	"context"
	"errors"

	"github.com/fatflowers/billing/internal/models"
	"github.com/fatflowers/billing/pkg/types"
)

var (
	ErrNotFound      = errors.New("ledger: not found")
	ErrAlreadyExists = errors.New("ledger: already exists")
)

// Store is the persistence boundary of the reconciliation engine. Uniqueness of
// company_id on subscriptions and external_invoice_id on payments is enforced by
// the store and reported as ErrAlreadyExists; callers rely on it instead of locks.
type Store interface {
	GetSubscriptionByID(ctx context.Context, id string) (*models.Subscription, error)
	GetSubscriptionByCompanyID(ctx context.Context, companyID string) (*models.Subscription, error)
	GetSubscriptionByExternalCustomerID(ctx context.Context, customerID string) (*models.Subscription, error)
	GetSubscriptionByExternalSubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	SaveSubscription(ctx context.Context, sub *models.Subscription) error
	// ListSweepableSubscriptions pages over non-cancelled subscriptions linked to
	// the processor, ordered by id, starting after afterID.
	ListSweepableSubscriptions(ctx context.Context, afterID string, limit int) ([]*models.Subscription, error)

	GetPaymentByExternalInvoiceID(ctx context.Context, invoiceID string) (*models.PaymentRecord, error)
	CreatePayment(ctx context.Context, rec *models.PaymentRecord) error
	// UpdatePaymentStatus sets the status of the invoice's record unless its
	// current status is unless. It reports whether a row changed.
	UpdatePaymentStatus(ctx context.Context, invoiceID string, to, unless types.PaymentStatus) (bool, error)
	SumSucceededAmountByCompany(ctx context.Context, companyID string) (int64, error)
	ListPaymentsByCompany(ctx context.Context, q *PaymentQuery) ([]*models.PaymentRecord, int64, error)
}

// PaymentQuery selects a page of a company's payments, newest first.
type PaymentQuery struct {
	CompanyID string
	Filters   types.Filters
	From      int
	Size      int
}

// PaymentFilterFields lists the payment columns admin filters may reference.
var PaymentFilterFields = map[string]bool{
	"status":                   true,
	"amount":                   true,
	"recorded_at":              true,
	"external_invoice_id":      true,
	"external_subscription_id": true,
	"invoice_number":           true,
}

const maxPageSize = 200

// Normalize applies paging defaults.
func (q *PaymentQuery) Normalize() {
	if q.From < 0 {
		q.From = 0
	}
	if q.Size <= 0 || q.Size > maxPageSize {
		q.Size = 20
	}
}

// Validate checks every filter against PaymentFilterFields.
func (q *PaymentQuery) Validate() error {
	if q.CompanyID == "" {
		return errors.New("company id is required")
	}
	for _, f := range q.Filters {
		if err := f.Validate(PaymentFilterFields); err != nil {
			return err
		}
	}
	return nil
}
