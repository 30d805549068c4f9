package models

import (
	"time"

	"gorm.io/datatypes"
)

type WebhookEventStatus string

const (
	WebhookEventStatusReceived     WebhookEventStatus = "received"
	WebhookEventStatusHandled      WebhookEventStatus = "handled"
	WebhookEventStatusSkipped      WebhookEventStatus = "skipped"
	// WebhookEventStatusUnresolved is a drop because no local subscription matched
	// yet. A redelivery is processed again.
	WebhookEventStatusUnresolved   WebhookEventStatus = "unresolved"
	WebhookEventStatusFailed       WebhookEventStatus = "failed"
	WebhookEventStatusDeadLettered WebhookEventStatus = "dead_lettered"
)

// Done reports whether redeliveries of the event can be acknowledged without work.
func (s WebhookEventStatus) Done() bool {
	return s == WebhookEventStatusHandled || s == WebhookEventStatusSkipped || s == WebhookEventStatusDeadLettered
}

// WebhookEventLog is the journal of verified processor events, one row per event id.
type WebhookEventLog struct {
	ID         string             `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ProviderID string             `gorm:"column:provider_id;type:varchar(32);not null" json:"provider_id"`
	EventID    string             `gorm:"column:event_id;type:varchar(128);not null;uniqueIndex" json:"event_id"`
	EventType  string             `gorm:"column:event_type;type:varchar(128);not null;index" json:"event_type"`
	TraceID    string             `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Attempts   int                `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Status     WebhookEventStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	// Data is the verified event body, kept for replay.
	Data      datatypes.JSON  `gorm:"column:data;type:jsonb" json:"data"`
	Result    *datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`
	LastError string          `gorm:"column:last_error;type:text" json:"last_error"`
	EventAt   time.Time       `gorm:"column:event_at" json:"event_at"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (WebhookEventLog) TableName() string { return "webhook_event_log" }
