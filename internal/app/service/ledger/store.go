package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatflowers/billing/internal/models"
	"github.com/fatflowers/billing/pkg/tool"
	"github.com/fatflowers/billing/pkg/types"

	"gorm.io/gorm"
)

// GormStore implements Store on GORM. The database must be opened with
// TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
type GormStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func (s *GormStore) firstSubscription(ctx context.Context, query string, arg any) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where(query, arg).First(&sub).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *GormStore) GetSubscriptionByID(ctx context.Context, id string) (*models.Subscription, error) {
	return s.firstSubscription(ctx, "id = ?", id)
}

func (s *GormStore) GetSubscriptionByCompanyID(ctx context.Context, companyID string) (*models.Subscription, error) {
	return s.firstSubscription(ctx, "company_id = ?", companyID)
}

func (s *GormStore) GetSubscriptionByExternalCustomerID(ctx context.Context, customerID string) (*models.Subscription, error) {
	if customerID == "" {
		return nil, ErrNotFound
	}
	return s.firstSubscription(ctx, "external_customer_id = ?", customerID)
}

func (s *GormStore) GetSubscriptionByExternalSubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	if subscriptionID == "" {
		return nil, ErrNotFound
	}
	return s.firstSubscription(ctx, "external_subscription_id = ?", subscriptionID)
}

func (s *GormStore) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = tool.GenerateUUIDV7()
	}
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("create subscription for company %s: %w", sub.CompanyID, translate(err))
	}
	return nil
}

func (s *GormStore) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		return errors.New("save subscription: missing id")
	}
	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("save subscription %s: %w", sub.ID, translate(err))
	}
	return nil
}

func (s *GormStore) ListSweepableSubscriptions(ctx context.Context, afterID string, limit int) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status <> ?", types.SubscriptionStatusCancelled).
		Where("external_subscription_id IS NOT NULL AND external_subscription_id <> ''").
		Where("id > ?", afterID).
		Order("id").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("list sweepable subscriptions: %w", err)
	}
	return subs, nil
}

func (s *GormStore) GetPaymentByExternalInvoiceID(ctx context.Context, invoiceID string) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	if err := s.db.WithContext(ctx).Where("external_invoice_id = ?", invoiceID).First(&rec).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func (s *GormStore) CreatePayment(ctx context.Context, rec *models.PaymentRecord) error {
	if rec.ID == "" {
		rec.ID = tool.GenerateUUIDV7()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create payment for invoice %s: %w", rec.ExternalInvoiceID, translate(err))
	}
	return nil
}

func (s *GormStore) UpdatePaymentStatus(ctx context.Context, invoiceID string, to, unless types.PaymentStatus) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("external_invoice_id = ? AND status <> ?", invoiceID, unless).
		Updates(map[string]any{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("update payment %s to %s: %w", invoiceID, to, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) SumSucceededAmountByCompany(ctx context.Context, companyID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("company_id = ? AND status = ?", companyID, types.PaymentStatusSucceeded).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum payments of company %s: %w", companyID, err)
	}
	return total, nil
}

func (s *GormStore) ListPaymentsByCompany(ctx context.Context, q *PaymentQuery) ([]*models.PaymentRecord, int64, error) {
	if err := q.Validate(); err != nil {
		return nil, 0, err
	}
	q.Normalize()

	base := s.db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("company_id = ?", q.CompanyID).
		Where(q.Filters)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	var recs []*models.PaymentRecord
	if err := base.Session(&gorm.Session{}).Order("recorded_at desc, id desc").Offset(q.From).Limit(q.Size).Find(&recs).Error; err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	return recs, total, nil
}

// translate maps GORM and driver errors onto the package sentinels. The string
// match covers drivers without an error translator.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key") {
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	}
	return err
}
