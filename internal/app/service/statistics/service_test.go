package statistics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fatflowers/billing/internal/models"
	"github.com/fatflowers/billing/pkg/tool"
	"github.com/fatflowers/billing/pkg/types"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Subscription{}, &models.PaymentRecord{}))
	return New(db), db
}

func seedPayment(t *testing.T, db *gorm.DB, companyID string, amount int64, status types.PaymentStatus, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.PaymentRecord{
		ID:                tool.GenerateUUIDV7(),
		ExternalInvoiceID: "in_" + uuid.NewString(),
		CompanyID:         companyID,
		SubscriptionID:    uuid.NewString(),
		Amount:            amount,
		Status:            status,
		RecordedAt:        at,
	}).Error)
}

func day(d, h int) time.Time { return time.Date(2026, 10, d, h, 0, 0, 0, time.UTC) }

func TestGetStatistics_Payments(t *testing.T) {
	s, db := newTestService(t)
	seedPayment(t, db, "co_1", 1050, types.PaymentStatusSucceeded, day(1, 9))
	seedPayment(t, db, "co_1", 2000, types.PaymentStatusSucceeded, day(1, 15))
	seedPayment(t, db, "co_1", 999, types.PaymentStatusFailed, day(2, 10))
	seedPayment(t, db, "co_1", 500, types.PaymentStatusSucceeded, day(2, 11))
	seedPayment(t, db, "co_2", 7000, types.PaymentStatusSucceeded, day(2, 12))

	res, err := s.GetStatistics(context.Background(), &Request{
		Filters: types.Filters{{Field: "company_id", Operator: types.CommonFilterOperatorEq, Values: []any{"co_1"}}},
		DataItems: []*DataItem{
			{ID: StatisticTypeDailyRevenue},
			{ID: StatisticTypeTotalRevenue},
			{ID: StatisticTypeDailyPaymentCount},
			{ID: StatisticTypePaymentFailure},
		},
	})
	require.NoError(t, err)

	require.Equal(t, []ResponseItem{
		{Date: "2026-10-01", Value: 3050, Value2: 2, Display: "30.50"},
		{Date: "2026-10-02", Value: 500, Value2: 1, Display: "5.00"},
	}, res.DataItems[StatisticTypeDailyRevenue])
	require.Equal(t, []ResponseItem{
		{Date: "2026-10-01", Value: 3050, Display: "30.50"},
		{Date: "2026-10-02", Value: 3550, Display: "35.50"},
	}, res.DataItems[StatisticTypeTotalRevenue])
	require.Equal(t, []ResponseItem{
		{Date: "2026-10-01", Value: 2},
		{Date: "2026-10-02", Value: 1, Value2: 1},
	}, res.DataItems[StatisticTypeDailyPaymentCount])
	require.Equal(t, []ResponseItem{
		{Date: "2026-10-01", Value: 0, Value2: 2},
		{Date: "2026-10-02", Value: 5000, Value2: 2, Value3: 1},
	}, res.DataItems[StatisticTypePaymentFailure])
}

func TestGetStatistics_Subscriptions(t *testing.T) {
	s, db := newTestService(t)
	for i, st := range []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusActive, types.SubscriptionStatusTrial} {
		require.NoError(t, db.Create(&models.Subscription{
			ID: tool.GenerateUUIDV7(), CompanyID: fmt.Sprintf("co_%d", i), PlanTier: types.PlanTierFree,
			BillingCycle: types.BillingCycleMonthly, Status: st, CreatedAt: day(3+i%2, 8),
		}).Error)
	}

	res, err := s.GetStatistics(context.Background(), &Request{DataItems: []*DataItem{
		{ID: StatisticTypeActiveSubscriptionCount},
		{ID: StatisticTypeDailyNewSubscriptionCount},
	}})
	require.NoError(t, err)
	require.Equal(t, []ResponseItem{{Value: 2}}, res.DataItems[StatisticTypeActiveSubscriptionCount])
	require.Equal(t, []ResponseItem{
		{Date: "2026-10-03", Value: 2},
		{Date: "2026-10-04", Value: 1},
	}, res.DataItems[StatisticTypeDailyNewSubscriptionCount])
}

func TestGetStatistics_FilterApplicability(t *testing.T) {
	s, db := newTestService(t)
	seedPayment(t, db, "co_1", 100, types.PaymentStatusSucceeded, day(1, 9))

	res, err := s.GetStatistics(context.Background(), &Request{
		Filters: types.Filters{{Field: "amount", Operator: types.CommonFilterOperatorGte, Values: []any{50}}},
		DataItems: []*DataItem{
			{ID: StatisticTypeDailyRevenue},
			{ID: StatisticTypeActiveSubscriptionCount},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.DataItems[StatisticTypeDailyRevenue], 1)
	require.Contains(t, res.DataItems, StatisticTypeActiveSubscriptionCount)
	require.Nil(t, res.DataItems[StatisticTypeActiveSubscriptionCount])
}

func TestRequestValidate(t *testing.T) {
	require.Error(t, (&Request{}).Validate())
	require.Error(t, (&Request{DataItems: []*DataItem{{ID: "daily_gmv"}}}).Validate())
	require.ErrorContains(t, (&Request{
		Filters:   types.Filters{{Field: "customer_email", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}}},
		DataItems: []*DataItem{{ID: StatisticTypeDailyRevenue}},
	}).Validate(), "not allowed")
}
