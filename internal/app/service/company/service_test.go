package company

import (
	"context"
	"fmt"
	"testing"

	"github.com/fatflowers/billing/internal/models"
	"github.com/fatflowers/billing/pkg/types"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Company{}))
	require.NoError(t, db.Create(&models.Company{ID: "co_1", Name: "Acme", PlanTier: types.PlanTierFree, SeatCeiling: 5}).Error)
	return NewService(db, zap.NewNop().Sugar())
}

func TestService_UpdatePlan(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	require.NoError(t, s.UpdatePlan(ctx, "co_1", types.PlanTierPro, 25))
	c, err := s.Get(ctx, "co_1")
	require.NoError(t, err)
	require.Equal(t, types.PlanTierPro, c.PlanTier)
	require.Equal(t, 25, c.SeatCeiling)

	// A lower ceiling does not shrink the company.
	require.NoError(t, s.UpdatePlan(ctx, "co_1", types.PlanTierEnterprise, 10))
	c, err = s.Get(ctx, "co_1")
	require.NoError(t, err)
	require.Equal(t, types.PlanTierEnterprise, c.PlanTier)
	require.Equal(t, 25, c.SeatCeiling)
}

func TestService_Errors(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	_, err := s.Get(ctx, "co_missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.UpdatePlan(ctx, "co_missing", types.PlanTierPro, 1), ErrNotFound)
	require.Error(t, s.UpdatePlan(ctx, "co_1", types.PlanTier("GOLD"), 1))
}
