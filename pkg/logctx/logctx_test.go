package logctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromCtx_PrefersStoredLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := With(context.Background(), base, "event_id", "evt_1")
	FromCtx(ctx, zap.NewNop().Sugar()).Infow("hello")

	require.Equal(t, 1, logs.Len())
	require.Equal(t, "evt_1", logs.All()[0].ContextMap()["event_id"])
}

func TestFromCtx_EnrichesTraceID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := WithTraceID(context.Background(), "trace-1")
	FromCtx(ctx, base).Infow("hello")

	require.Equal(t, "trace-1", logs.All()[0].ContextMap()["trace_id"])
	require.Equal(t, "trace-1", TraceID(ctx))
}

func TestFromCtx_NilBaseIsSafe(t *testing.T) {
	require.NotNil(t, FromCtx(context.Background(), nil))
}

func TestWithEventID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := WithEventID(context.Background(), base, "evt_9")
	require.Equal(t, "evt_9", EventID(ctx))
	require.Empty(t, EventID(context.Background()))

	FromCtx(ctx, nil).Infow("hello")
	require.Equal(t, "evt_9", logs.All()[0].ContextMap()["event_id"])
}
