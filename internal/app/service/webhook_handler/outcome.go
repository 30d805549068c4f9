package webhook_handler

import "github.com/fatflowers/billing/internal/models"

type OutcomeKind string

const (
	OutcomeApplied OutcomeKind = "applied"
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeFailed  OutcomeKind = "failed"
)

// Outcome is the result of processing one event. Handlers report failures
// through it instead of returning errors to the ingress.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error

	EventID   string
	EventType string
	Attempts  int
	// DeadLettered is set when a failure exhausted the retry budget; the event is
	// acknowledged and kept for replay.
	DeadLettered bool
	// Unresolved marks a skip that a later redelivery may still apply.
	Unresolved bool
}

func Applied(reason string) Outcome { return Outcome{Kind: OutcomeApplied, Reason: reason} }
func Skipped(reason string) Outcome { return Outcome{Kind: OutcomeSkipped, Reason: reason} }
func Failed(err error) Outcome      { return Outcome{Kind: OutcomeFailed, Err: err} }

func Unresolved(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason, Unresolved: true}
}

// Retry reports whether the sender should redeliver the event.
func (o Outcome) Retry() bool {
	return o.Kind == OutcomeFailed && !o.DeadLettered
}

func (o Outcome) journalStatus() models.WebhookEventStatus {
	switch {
	case o.Kind == OutcomeApplied:
		return models.WebhookEventStatusHandled
	case o.Kind == OutcomeSkipped && o.Unresolved:
		return models.WebhookEventStatusUnresolved
	case o.Kind == OutcomeSkipped:
		return models.WebhookEventStatusSkipped
	case o.DeadLettered:
		return models.WebhookEventStatusDeadLettered
	}
	return models.WebhookEventStatusFailed
}

func (o Outcome) label() string {
	if o.DeadLettered {
		return "dead_lettered"
	}
	return string(o.Kind)
}

func (o Outcome) result() map[string]any {
	m := map[string]any{"kind": o.Kind, "reason": o.Reason, "attempts": o.Attempts}
	if o.Err != nil {
		m["error"] = o.Err.Error()
	}
	if o.DeadLettered {
		m["dead_lettered"] = true
	}
	if o.Unresolved {
		m["unresolved"] = true
	}
	return m
}
