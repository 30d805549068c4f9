package event_log

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fatflowers/billing/internal/models"
	stripeapi "github.com/fatflowers/billing/internal/platform/stripe/stripe_api"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{TranslateError: true, Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.WebhookEventLog{}))
	return New(db, zap.NewNop().Sugar())
}

func testEvent(id string) *stripeapi.Event {
	return &stripeapi.Event{ID: id, Type: "invoice.paid", Created: time.Unix(1760000000, 0).UTC(), Object: []byte(`{"id":"in_1"}`)}
}

func TestService_AttemptsAndDone(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	entry, err := s.Begin(ctx, testEvent("evt_1"))
	require.NoError(t, err)
	require.Equal(t, 1, entry.Attempts)
	require.Equal(t, models.WebhookEventStatusReceived, entry.Status)

	require.NoError(t, s.Finish(ctx, entry, models.WebhookEventStatusFailed, map[string]any{"kind": "failed"}, errors.New("processor down")))

	entry, err = s.Begin(ctx, testEvent("evt_1"))
	require.NoError(t, err)
	require.Equal(t, 2, entry.Attempts)
	require.Equal(t, models.WebhookEventStatusReceived, entry.Status)

	require.NoError(t, s.Finish(ctx, entry, models.WebhookEventStatusHandled, map[string]any{"kind": "applied"}, nil))

	entry, err = s.Begin(ctx, testEvent("evt_1"))
	require.NoError(t, err)
	require.Equal(t, 2, entry.Attempts, "done events are not counted again")
	require.Equal(t, models.WebhookEventStatusHandled, entry.Status)
	require.Empty(t, entry.LastError)

	stored, err := stripeapi.DecodeEvent(entry.Data)
	require.NoError(t, err)
	require.Equal(t, "evt_1", stored.ID)
	require.JSONEq(t, `{"id":"in_1"}`, string(stored.Object))
}

func TestService_RestartAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	_, err := s.Restart(ctx, "evt_missing")
	require.ErrorIs(t, err, ErrNotFound)

	entry, err := s.Begin(ctx, testEvent("evt_2"))
	require.NoError(t, err)
	require.NoError(t, s.Finish(ctx, entry, models.WebhookEventStatusDeadLettered, nil, errors.New("gave up")))
	_, err = s.Begin(ctx, testEvent("evt_3"))
	require.NoError(t, err)

	items, total, err := s.List(ctx, ListQuery{Status: models.WebhookEventStatusDeadLettered})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "evt_2", items[0].EventID)
	require.Equal(t, "gave up", items[0].LastError)

	entry, err = s.Restart(ctx, "evt_2")
	require.NoError(t, err)
	require.Equal(t, 2, entry.Attempts)
	require.Equal(t, models.WebhookEventStatusReceived, entry.Status)
}

func TestService_UnresolvedIsCountedAgain(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	entry, err := s.Begin(ctx, testEvent("evt_u"))
	require.NoError(t, err)
	require.NoError(t, s.Finish(ctx, entry, models.WebhookEventStatusUnresolved, map[string]any{"kind": "skipped", "unresolved": true}, nil))

	entry, err = s.Begin(ctx, testEvent("evt_u"))
	require.NoError(t, err)
	require.Equal(t, 2, entry.Attempts)
	require.Equal(t, models.WebhookEventStatusReceived, entry.Status)
}
