package statistics

import (
	"context"
	"fmt"
	"sync"

	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/internal/models"
	"github.com/fatflowers/billing/pkg/types"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StatisticType string

const (
	// Payment ledger
	StatisticTypeDailyPaymentCount StatisticType = "daily_payment_count"
	StatisticTypeDailyRevenue      StatisticType = "daily_revenue"
	StatisticTypeTotalRevenue      StatisticType = "total_revenue"
	StatisticTypePaymentFailure    StatisticType = "daily_payment_failure_rate"

	// Subscriptions
	StatisticTypeDailyNewSubscriptionCount StatisticType = "daily_new_subscription_count"
	StatisticTypeActiveSubscriptionCount   StatisticType = "active_subscription_count"
)

var paymentStatistics = []StatisticType{
	StatisticTypeDailyPaymentCount,
	StatisticTypeDailyRevenue,
	StatisticTypeTotalRevenue,
	StatisticTypePaymentFailure,
}

var allStatistics = append([]StatisticType{
	StatisticTypeDailyNewSubscriptionCount,
	StatisticTypeActiveSubscriptionCount,
}, paymentStatistics...)

// validFilters lists the statistics a filter field applies to. A statistic asked
// for together with a filter that does not apply to it comes back empty.
var validFilters = func() map[string][]StatisticType {
	m := map[string][]StatisticType{"company_id": allStatistics}
	for field := range ledger.PaymentFilterFields {
		m[field] = paymentStatistics
	}
	return m
}()

type DataItem struct {
	ID StatisticType `json:"id"`
}

type Request struct {
	Filters   types.Filters `json:"filters"`
	DataItems []*DataItem   `json:"data_items"`
}

func (r *Request) Validate() error {
	if r == nil || len(r.DataItems) == 0 {
		return fmt.Errorf("at least one data item is required")
	}
	allowed := lo.MapValues(validFilters, func(_ []StatisticType, _ string) bool { return true })
	for _, f := range r.Filters {
		if err := f.Validate(allowed); err != nil {
			return err
		}
	}
	for _, di := range r.DataItems {
		if di == nil || !lo.Contains(allStatistics, di.ID) {
			return fmt.Errorf("invalid data item id: %v", lo.FromPtr(di).ID)
		}
	}
	return nil
}

// applies reports whether every filter of r can be evaluated for typ.
func (r *Request) applies(typ StatisticType) bool {
	for _, f := range r.Filters {
		if !lo.Contains(validFilters[f.Field], typ) {
			return false
		}
	}
	return true
}

// ResponseItem is one point of a series. Money values are in minor units, with
// Display carrying the major unit rendering.
type ResponseItem struct {
	Date    string `json:"date,omitempty"`
	Value   int64  `json:"value"`
	Value2  int64  `json:"value2,omitempty"`
	Value3  int64  `json:"value3,omitempty"`
	Display string `json:"display,omitempty"`
}

type Response struct {
	DataItems map[StatisticType][]ResponseItem `json:"data_items"`
}

type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

// dayExpr renders column as YYYY-MM-DD text. SQLite keeps timestamps as text
// that starts with the date.
func (s *Service) dayExpr(column string) string {
	if s.db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", column)
	}
	return fmt.Sprintf("substr(%s, 1, 10)", column)
}

func where(f types.Filters) clause.Expression {
	return clause.Where{Exprs: []clause.Expression{f}}
}

func money(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

func (s *Service) payments(ctx context.Context, r *Request) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.PaymentRecord{}).Where(where(r.Filters))
}

func (s *Service) getDailyPaymentCount(ctx context.Context, r *Request) ([]ResponseItem, error) {
	var rows []ResponseItem
	day := s.dayExpr("recorded_at")
	err := s.payments(ctx, r).
		Select(day+" as date, SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) as value, SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) as value2",
			types.PaymentStatusSucceeded, types.PaymentStatusFailed).
		Group(day).
		Order("date").
		Scan(&rows).Error
	return rows, err
}

func (s *Service) getDailyRevenue(ctx context.Context, r *Request) ([]ResponseItem, error) {
	var rows []ResponseItem
	day := s.dayExpr("recorded_at")
	err := s.payments(ctx, r).
		Select(day+" as date, COALESCE(SUM(amount), 0) as value, COUNT(*) as value2").
		Where("status = ?", types.PaymentStatusSucceeded).
		Group(day).
		Order("date").
		Scan(&rows).Error
	for i := range rows {
		rows[i].Display = money(rows[i].Value)
	}
	return rows, err
}

// getTotalRevenue is the running revenue total, one point per day with payments.
func (s *Service) getTotalRevenue(ctx context.Context, r *Request) ([]ResponseItem, error) {
	daily, err := s.getDailyRevenue(ctx, r)
	if err != nil {
		return nil, err
	}
	var total int64
	for i := range daily {
		total += daily[i].Value
		daily[i].Value, daily[i].Value2 = total, 0
		daily[i].Display = money(total)
	}
	return daily, nil
}

// getPaymentFailureRate reports failed/all per day in basis points.
func (s *Service) getPaymentFailureRate(ctx context.Context, r *Request) ([]ResponseItem, error) {
	counts, err := s.getDailyPaymentCount(ctx, r)
	if err != nil {
		return nil, err
	}
	out := make([]ResponseItem, 0, len(counts))
	for _, c := range counts {
		all := c.Value + c.Value2
		if all == 0 {
			continue
		}
		out = append(out, ResponseItem{Date: c.Date, Value: c.Value2 * 10000 / all, Value2: all, Value3: c.Value2})
	}
	return out, nil
}

func (s *Service) getDailyNewSubscriptionCount(ctx context.Context, r *Request) ([]ResponseItem, error) {
	var rows []ResponseItem
	day := s.dayExpr("created_at")
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Select(day + " as date, COUNT(*) as value").
		Where(where(r.Filters)).
		Group(day).
		Order("date").
		Scan(&rows).Error
	return rows, err
}

func (s *Service) getActiveSubscriptionCount(ctx context.Context, r *Request) ([]ResponseItem, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where(where(r.Filters)).
		Where("status = ?", types.SubscriptionStatusActive).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	return []ResponseItem{{Value: count}}, nil
}

func (s *Service) get(ctx context.Context, r *Request, typ StatisticType) ([]ResponseItem, error) {
	switch typ {
	case StatisticTypeDailyPaymentCount:
		return s.getDailyPaymentCount(ctx, r)
	case StatisticTypeDailyRevenue:
		return s.getDailyRevenue(ctx, r)
	case StatisticTypeTotalRevenue:
		return s.getTotalRevenue(ctx, r)
	case StatisticTypePaymentFailure:
		return s.getPaymentFailureRate(ctx, r)
	case StatisticTypeDailyNewSubscriptionCount:
		return s.getDailyNewSubscriptionCount(ctx, r)
	case StatisticTypeActiveSubscriptionCount:
		return s.getActiveSubscriptionCount(ctx, r)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", typ)
	}
}

// GetStatistics computes every requested data item concurrently.
func (s *Service) GetStatistics(ctx context.Context, r *Request) (*Response, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	var mu sync.Mutex
	results := make(map[StatisticType][]ResponseItem, len(r.DataItems))
	g, gctx := errgroup.WithContext(ctx)
	for _, di := range r.DataItems {
		typ := di.ID
		g.Go(func() error {
			var items []ResponseItem
			if r.applies(typ) {
				var err error
				if items, err = s.get(gctx, r, typ); err != nil {
					return fmt.Errorf("statistic %s: %w", typ, err)
				}
			}
			mu.Lock()
			results[typ] = items
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Response{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
