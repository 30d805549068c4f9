// Package ledgertest provides an in-memory ledger.Store that enforces the same
// uniqueness rules as the database.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/internal/models"
	"github.com/fatflowers/billing/pkg/tool"
	"github.com/fatflowers/billing/pkg/types"
)

type Store struct {
	mu       sync.Mutex
	subs     map[string]*models.Subscription
	payments map[string]*models.PaymentRecord

	// Writes counts successful mutations, so tests can assert nothing changed.
	Writes int
	// FailNext, when set, is returned by the next call of the named method.
	FailNext map[string]error
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		subs:     map[string]*models.Subscription{},
		payments: map[string]*models.PaymentRecord{},
		FailNext: map[string]error{},
	}
}

func (s *Store) fail(method string) error {
	if err, ok := s.FailNext[method]; ok {
		delete(s.FailNext, method)
		return err
	}
	return nil
}

func (s *Store) findSub(match func(*models.Subscription) bool) (*models.Subscription, error) {
	for _, sub := range s.subs {
		if match(sub) {
			return sub.Clone(), nil
		}
	}
	return nil, ledger.ErrNotFound
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (s *Store) GetSubscriptionByID(ctx context.Context, id string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetSubscriptionByID"); err != nil {
		return nil, err
	}
	return s.findSub(func(sub *models.Subscription) bool { return sub.ID == id })
}

func (s *Store) GetSubscriptionByCompanyID(ctx context.Context, companyID string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetSubscriptionByCompanyID"); err != nil {
		return nil, err
	}
	return s.findSub(func(sub *models.Subscription) bool { return sub.CompanyID == companyID })
}

func (s *Store) GetSubscriptionByExternalCustomerID(ctx context.Context, customerID string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetSubscriptionByExternalCustomerID"); err != nil {
		return nil, err
	}
	if customerID == "" {
		return nil, ledger.ErrNotFound
	}
	return s.findSub(func(sub *models.Subscription) bool { return deref(sub.ExternalCustomerID) == customerID })
}

func (s *Store) GetSubscriptionByExternalSubscriptionID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetSubscriptionByExternalSubscriptionID"); err != nil {
		return nil, err
	}
	if subscriptionID == "" {
		return nil, ledger.ErrNotFound
	}
	return s.findSub(func(sub *models.Subscription) bool { return deref(sub.ExternalSubscriptionID) == subscriptionID })
}

func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateSubscription"); err != nil {
		return err
	}
	for _, existing := range s.subs {
		if existing.CompanyID == sub.CompanyID {
			return fmt.Errorf("create subscription for company %s: %w", sub.CompanyID, ledger.ErrAlreadyExists)
		}
	}
	if sub.ID == "" {
		sub.ID = tool.GenerateUUIDV7()
	}
	now := time.Now()
	sub.CreatedAt, sub.UpdatedAt = now, now
	s.subs[sub.ID] = sub.Clone()
	s.Writes++
	return nil
}

func (s *Store) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SaveSubscription"); err != nil {
		return err
	}
	if _, ok := s.subs[sub.ID]; !ok {
		return fmt.Errorf("save subscription %s: %w", sub.ID, ledger.ErrNotFound)
	}
	for id, existing := range s.subs {
		if id != sub.ID && existing.CompanyID == sub.CompanyID {
			return fmt.Errorf("save subscription %s: %w", sub.ID, ledger.ErrAlreadyExists)
		}
	}
	sub.UpdatedAt = time.Now()
	s.subs[sub.ID] = sub.Clone()
	s.Writes++
	return nil
}

func (s *Store) ListSweepableSubscriptions(ctx context.Context, afterID string, limit int) ([]*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListSweepableSubscriptions"); err != nil {
		return nil, err
	}
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.Status != types.SubscriptionStatusCancelled && deref(sub.ExternalSubscriptionID) != "" && sub.ID > afterID {
			out = append(out, sub.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clonePayment(p *models.PaymentRecord) *models.PaymentRecord {
	cp := *p
	return &cp
}

func (s *Store) GetPaymentByExternalInvoiceID(ctx context.Context, invoiceID string) (*models.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetPaymentByExternalInvoiceID"); err != nil {
		return nil, err
	}
	rec, ok := s.payments[invoiceID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return clonePayment(rec), nil
}

func (s *Store) CreatePayment(ctx context.Context, rec *models.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreatePayment"); err != nil {
		return err
	}
	if _, ok := s.payments[rec.ExternalInvoiceID]; ok {
		return fmt.Errorf("create payment for invoice %s: %w", rec.ExternalInvoiceID, ledger.ErrAlreadyExists)
	}
	if rec.ID == "" {
		rec.ID = tool.GenerateUUIDV7()
	}
	now := time.Now()
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = now
	}
	rec.CreatedAt, rec.UpdatedAt = now, now
	s.payments[rec.ExternalInvoiceID] = clonePayment(rec)
	s.Writes++
	return nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, invoiceID string, to, unless types.PaymentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdatePaymentStatus"); err != nil {
		return false, err
	}
	rec, ok := s.payments[invoiceID]
	if !ok || rec.Status == unless {
		return false, nil
	}
	rec.Status = to
	rec.UpdatedAt = time.Now()
	s.Writes++
	return true, nil
}

func (s *Store) SumSucceededAmountByCompany(ctx context.Context, companyID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, rec := range s.payments {
		if rec.CompanyID == companyID && rec.Status == types.PaymentStatusSucceeded {
			total += rec.Amount
		}
	}
	return total, nil
}

// ListPaymentsByCompany supports eq, not_eq and in filters on string columns
// and every operator on amount.
func (s *Store) ListPaymentsByCompany(ctx context.Context, q *ledger.PaymentQuery) ([]*models.PaymentRecord, int64, error) {
	if err := q.Validate(); err != nil {
		return nil, 0, err
	}
	q.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*models.PaymentRecord
	for _, rec := range s.payments {
		if rec.CompanyID == q.CompanyID && matches(rec, q.Filters) {
			all = append(all, clonePayment(rec))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].RecordedAt.Equal(all[j].RecordedAt) {
			return all[i].RecordedAt.After(all[j].RecordedAt)
		}
		return all[i].ID > all[j].ID
	})
	total := int64(len(all))
	if q.From >= len(all) {
		return nil, total, nil
	}
	end := q.From + q.Size
	if end > len(all) {
		end = len(all)
	}
	return all[q.From:end], total, nil
}

func matches(rec *models.PaymentRecord, filters types.Filters) bool {
	for _, f := range filters {
		if f.Field == "amount" {
			if !matchAmount(rec.Amount, f) {
				return false
			}
			continue
		}
		var v string
		switch f.Field {
		case "status":
			v = string(rec.Status)
		case "external_invoice_id":
			v = rec.ExternalInvoiceID
		case "external_subscription_id":
			v = deref(rec.ExternalSubscriptionID)
		case "invoice_number":
			v = rec.InvoiceNumber
		default:
			continue
		}
		if !matchString(v, f) {
			return false
		}
	}
	return true
}

func matchString(v string, f *types.CommonFilter) bool {
	switch f.Operator {
	case types.CommonFilterOperatorEq:
		return strings.EqualFold(v, fmt.Sprint(f.Values[0]))
	case types.CommonFilterOperatorNotEq:
		return !strings.EqualFold(v, fmt.Sprint(f.Values[0]))
	case types.CommonFilterOperatorIn:
		for _, want := range f.Values {
			if strings.EqualFold(v, fmt.Sprint(want)) {
				return true
			}
		}
		return false
	}
	return true
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func matchAmount(amount int64, f *types.CommonFilter) bool {
	first := toInt64(f.Values[0])
	switch f.Operator {
	case types.CommonFilterOperatorEq:
		return amount == first
	case types.CommonFilterOperatorNotEq:
		return amount != first
	case types.CommonFilterOperatorLt:
		return amount < first
	case types.CommonFilterOperatorLte:
		return amount <= first
	case types.CommonFilterOperatorGt:
		return amount > first
	case types.CommonFilterOperatorGte:
		return amount >= first
	case types.CommonFilterOperatorRange:
		return amount >= first && amount <= toInt64(f.Values[1])
	case types.CommonFilterOperatorIn:
		for _, want := range f.Values {
			if amount == toInt64(want) {
				return true
			}
		}
		return false
	}
	return true
}
