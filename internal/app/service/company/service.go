package company

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatflowers/billing/internal/models"
	"github.com/fatflowers/billing/pkg/logctx"
	"github.com/fatflowers/billing/pkg/types"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("company not found")

// Service reads and updates the billing columns of the company aggregate.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

func (s *Service) Get(ctx context.Context, companyID string) (*models.Company, error) {
	var c models.Company
	if err := s.db.WithContext(ctx).Where("id = ?", companyID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get company %s: %w", companyID, err)
	}
	return &c, nil
}

// UpdatePlan sets the company's plan tier and raises its seat ceiling to at
// least seatCeiling. The ceiling never goes down here; removing seats is an
// administrative action.
func (s *Service) UpdatePlan(ctx context.Context, companyID string, tier types.PlanTier, seatCeiling int) error {
	if !tier.Valid() {
		return fmt.Errorf("update company %s: unknown plan tier %q", companyID, tier)
	}
	res := s.db.WithContext(ctx).Model(&models.Company{}).
		Where("id = ?", companyID).
		Updates(map[string]any{
			"plan_tier":    tier,
			"seat_ceiling": gorm.Expr("CASE WHEN seat_ceiling < ? THEN ? ELSE seat_ceiling END", seatCeiling, seatCeiling),
		})
	if res.Error != nil {
		return fmt.Errorf("update company %s plan: %w", companyID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	logctx.FromCtx(ctx, s.log).Infow("company_plan_updated", "company_id", companyID, "tier", tier, "min_seat_ceiling", seatCeiling)
	return nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
