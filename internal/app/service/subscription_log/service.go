package subscription_log

import (
	"context"

	"github.com/fatflowers/billing/internal/models"
	"github.com/fatflowers/billing/pkg/logctx"
	"github.com/fatflowers/billing/pkg/tool"
	"github.com/fatflowers/billing/pkg/types"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Record asynchronously persists a before/after snapshot. Errors are logged only.
func (s *Service) Record(ctx context.Context, before, after *models.Subscription, reason types.SubscriptionChangeReason, extra map[string]any) {
	companyID := ""
	switch {
	case after != nil:
		companyID = after.CompanyID
	case before != nil:
		companyID = before.CompanyID
	}
	if extra == nil {
		extra = map[string]any{}
	}
	if ev := logctx.EventID(ctx); ev != "" {
		extra["event_id"] = ev
	}
	entry := &models.SubscriptionLog{
		ID:        tool.GenerateUUIDV7(),
		CompanyID: companyID,
		Reason:    reason,
		Before:    datatypes.NewJSONType(before),
		After:     datatypes.NewJSONType(after),
		Extra:     datatypes.JSONMap(extra),
	}
	go func() {
		if err := s.db.Save(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save subscription log: %v", err)
		}
	}()
}

var Module = fx.Options(
	fx.Provide(New),
)
