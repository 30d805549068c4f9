package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebhookEventStatusDone(t *testing.T) {
	cases := map[WebhookEventStatus]bool{
		WebhookEventStatusReceived:     false,
		WebhookEventStatusHandled:      true,
		WebhookEventStatusSkipped:      true,
		WebhookEventStatusUnresolved:   false,
		WebhookEventStatusFailed:       false,
		WebhookEventStatusDeadLettered: true,
	}
	for status, done := range cases {
		require.Equal(t, done, status.Done(), status)
	}
}
