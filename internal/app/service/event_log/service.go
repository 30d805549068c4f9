package event_log

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fatflowers/billing/internal/models"
	stripeapi "github.com/fatflowers/billing/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billing/pkg/logctx"
	"github.com/fatflowers/billing/pkg/tool"
	"github.com/fatflowers/billing/pkg/types"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("webhook event not found")

// Service is the journal of verified webhook events. Every delivery of an
// event id increments its attempt counter.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Begin records a delivery of ev and returns the journal entry. Entries that
// are already done are returned unchanged.
func (s *Service) Begin(ctx context.Context, ev *stripeapi.Event) (*models.WebhookEventLog, error) {
	entry, err := s.Get(ctx, ev.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		data, mErr := json.Marshal(ev)
		if mErr != nil {
			return nil, fmt.Errorf("marshal event %s: %w", ev.ID, mErr)
		}
		entry = &models.WebhookEventLog{
			ID:         tool.GenerateUUIDV7(),
			ProviderID: string(types.PaymentProviderStripe),
			EventID:    ev.ID,
			EventType:  ev.Type,
			TraceID:    logctx.TraceID(ctx),
			Attempts:   1,
			Status:     models.WebhookEventStatusReceived,
			Data:       datatypes.JSON(data),
			EventAt:    ev.Created,
		}
		if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
			if !isDuplicate(err) {
				return nil, fmt.Errorf("create webhook event %s: %w", ev.ID, err)
			}
			// Concurrent delivery of the same event; count this one too.
			return s.bump(ctx, ev.ID)
		}
		return entry, nil
	case err != nil:
		return nil, err
	case entry.Status.Done():
		return entry, nil
	}
	return s.bump(ctx, ev.ID)
}

// Restart counts an operator replay of a stored event, whatever its status.
func (s *Service) Restart(ctx context.Context, eventID string) (*models.WebhookEventLog, error) {
	return s.bump(ctx, eventID)
}

func (s *Service) bump(ctx context.Context, eventID string) (*models.WebhookEventLog, error) {
	res := s.db.WithContext(ctx).Model(&models.WebhookEventLog{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"attempts": gorm.Expr("attempts + 1"),
			"status":   models.WebhookEventStatusReceived,
			"trace_id": logctx.TraceID(ctx),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("count attempt of webhook event %s: %w", eventID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, eventID)
}

// Finish stores the outcome of one attempt.
func (s *Service) Finish(ctx context.Context, entry *models.WebhookEventLog, status models.WebhookEventStatus, result any, cause error) error {
	resBytes, err := json.Marshal(result)
	if err != nil {
		resBytes = []byte("null")
	}
	lastErr := ""
	if cause != nil {
		lastErr = cause.Error()
	}
	res := datatypes.JSON(resBytes)
	entry.Status, entry.Result, entry.LastError = status, &res, lastErr
	err = s.db.WithContext(ctx).Model(&models.WebhookEventLog{}).
		Where("event_id = ?", entry.EventID).
		Updates(map[string]any{"status": status, "result": res, "last_error": lastErr}).Error
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to save webhook event result: %v", err)
		return fmt.Errorf("finish webhook event %s: %w", entry.EventID, err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, eventID string) (*models.WebhookEventLog, error) {
	var entry models.WebhookEventLog
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get webhook event %s: %w", eventID, err)
	}
	return &entry, nil
}

// ListQuery pages journal entries, newest first.
type ListQuery struct {
	Status    models.WebhookEventStatus
	EventType string
	From      int
	Size      int
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]*models.WebhookEventLog, int64, error) {
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 20
	}
	base := s.db.WithContext(ctx).Model(&models.WebhookEventLog{}).Omit("data")
	if q.Status != "" {
		base = base.Where("status = ?", q.Status)
	}
	if q.EventType != "" {
		base = base.Where("event_type = ?", q.EventType)
	}
	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count webhook events: %w", err)
	}
	var out []*models.WebhookEventLog
	if err := base.Session(&gorm.Session{}).Order("created_at desc").Offset(q.From).Limit(q.Size).Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list webhook events: %w", err)
	}
	return out, total, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key")
}

var Module = fx.Options(
	fx.Provide(New),
)
