package webhook_handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/billing/internal/app/service/payment"
	"github.com/fatflowers/billing/internal/app/service/resolver"
	"github.com/fatflowers/billing/internal/app/service/subscription"
	"github.com/fatflowers/billing/internal/app/service/sweeper"
	"github.com/fatflowers/billing/internal/models"
	stripeapi "github.com/fatflowers/billing/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billing/pkg/logctx"
	"github.com/fatflowers/billing/pkg/metrics"
	"github.com/fatflowers/billing/pkg/types"

	"go.uber.org/zap"
)

// ErrInvalidSignature rejects a payload before any processing.
var ErrInvalidSignature = errors.New("invalid webhook signature")

const defaultMaxAttempts = 8

type Verifier interface {
	Verify(payload []byte, signature string) (*stripeapi.Event, error)
}

type Journal interface {
	Get(ctx context.Context, eventID string) (*models.WebhookEventLog, error)
	Begin(ctx context.Context, ev *stripeapi.Event) (*models.WebhookEventLog, error)
	Restart(ctx context.Context, eventID string) (*models.WebhookEventLog, error)
	Finish(ctx context.Context, entry *models.WebhookEventLog, status models.WebhookEventStatus, result any, cause error) error
}

type Resolver interface {
	Resolve(ctx context.Context, q resolver.Query) (*models.Subscription, error)
}

type Synchronizer interface {
	ApplyWithReason(ctx context.Context, sub *models.Subscription, obj *stripeapi.Subscription, reason types.SubscriptionChangeReason) (bool, error)
}

type PaymentRecorder interface {
	RecordSucceeded(ctx context.Context, sub *models.Subscription, inv *stripeapi.Invoice) (*models.PaymentRecord, payment.Effect, error)
	RecordFailed(ctx context.Context, sub *models.Subscription, inv *stripeapi.Invoice) (*models.PaymentRecord, payment.Effect, error)
}

type Sweeper interface {
	SweepSubscription(ctx context.Context, sub *models.Subscription, maxInvoices int, trigger sweeper.Trigger) (int, error)
}

type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*stripeapi.Subscription, error)
}

// SubscriptionEnsurer returns the company's local subscription, creating the
// default one on first contact.
type SubscriptionEnsurer interface {
	EnsureSubscription(ctx context.Context, companyID string) (*models.Subscription, error)
}

type Deps struct {
	Verifier    Verifier
	Journal     Journal
	Resolver    Resolver
	Sync        Synchronizer
	Payments    PaymentRecorder
	Sweeper     Sweeper
	Fetcher     SubscriptionFetcher
	Ensurer     SubscriptionEnsurer
	Metrics     *metrics.Recorder
	Log         *zap.SugaredLogger
	MaxAttempts int
	MaxInvoices int
}

type handlerFunc func(ctx context.Context, ev *stripeapi.Event) Outcome

// Handler is the webhook ingress: it verifies, journals and dispatches
// processor events.
type Handler struct {
	Deps
	routes map[string]handlerFunc
}

func New(d Deps) *Handler {
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = defaultMaxAttempts
	}
	if d.MaxInvoices <= 0 {
		d.MaxInvoices = sweeper.DefaultMaxInvoices
	}
	h := &Handler{Deps: d}
	h.routes = map[string]handlerFunc{
		"customer.subscription.created": typed(h.subscriptionChanged(true)),
		"customer.subscription.updated": typed(h.subscriptionChanged(true)),
		"customer.subscription.deleted": typed(h.subscriptionChanged(false)),
		"invoice.paid":                  typed(h.invoicePaid),
		"invoice.payment_succeeded":     typed(h.invoicePaid),
		"invoice.payment_failed":        typed(h.invoiceFailed),
		"checkout.session.completed":    typed(h.checkoutCompleted),
	}
	return h
}

// typed decodes the event object into the projection fn consumes.
func typed[T any](fn func(ctx context.Context, obj *T) Outcome) handlerFunc {
	return func(ctx context.Context, ev *stripeapi.Event) Outcome {
		var obj T
		if err := ev.Decode(&obj); err != nil {
			// A payload that does not decode will not decode on redelivery either.
			return Skipped(err.Error())
		}
		return fn(ctx, &obj)
	}
}

// Handles reports whether eventType has a handler.
func (h *Handler) Handles(eventType string) bool {
	_, ok := h.routes[eventType]
	return ok
}

// Handle verifies payload and processes the event it carries. The error is
// non-nil only for authenticity failures; everything else is in the Outcome.
func (h *Handler) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	ev, err := h.Verifier.Verify(payload, signature)
	if err != nil {
		h.Metrics.WebhookEvent("unverified", "rejected")
		logctx.FromCtx(ctx, h.Log).Warnw("webhook_stripe_rejected", "err", err)
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	ctx = logctx.WithEventID(ctx, h.Log, ev.ID)
	logctx.FromCtx(ctx, h.Log).Infow("webhook_stripe_received", "event_type", ev.Type, "event_created", ev.Created)
	return h.process(ctx, ev, false), nil
}

// Replay re-dispatches a journalled event, typically a dead-lettered one.
func (h *Handler) Replay(ctx context.Context, eventID string) (Outcome, error) {
	entry, err := h.Journal.Get(ctx, eventID)
	if err != nil {
		return Outcome{}, err
	}
	ev, err := stripeapi.DecodeEvent(entry.Data)
	if err != nil {
		return Outcome{}, err
	}
	ctx = logctx.WithEventID(ctx, h.Log, ev.ID)
	logctx.FromCtx(ctx, h.Log).Infow("webhook_stripe_replay", "event_type", ev.Type, "previous_status", entry.Status, "attempts", entry.Attempts)
	return h.process(ctx, ev, true), nil
}

func (h *Handler) process(ctx context.Context, ev *stripeapi.Event, replay bool) (out Outcome) {
	start := time.Now()
	lg := logctx.FromCtx(ctx, h.Log)

	var entry *models.WebhookEventLog
	var err error
	if replay {
		entry, err = h.Journal.Restart(ctx, ev.ID)
	} else {
		entry, err = h.Journal.Begin(ctx, ev)
	}
	if err != nil {
		out = Failed(fmt.Errorf("journal event: %w", err))
		out.EventID, out.EventType = ev.ID, ev.Type
		h.Metrics.WebhookEvent(ev.Type, out.label())
		lg.Errorw("webhook_stripe_journal_failed", "event_type", ev.Type, "err", err)
		return out
	}
	if !replay && entry.Status.Done() {
		out = Skipped("duplicate event")
		out.EventID, out.EventType, out.Attempts = ev.ID, ev.Type, entry.Attempts
		h.Metrics.WebhookEvent(ev.Type, "duplicate")
		lg.Infow("webhook_stripe_duplicate", "event_type", ev.Type, "status", entry.Status)
		return out
	}

	out = h.dispatch(ctx, ev)
	out.EventID, out.EventType, out.Attempts = ev.ID, ev.Type, entry.Attempts
	if out.Kind == OutcomeFailed && entry.Attempts >= h.MaxAttempts {
		out.DeadLettered = true
	}

	if err := h.Journal.Finish(ctx, entry, out.journalStatus(), out.result(), out.Err); err != nil {
		lg.Warnw("webhook_stripe_journal_finish_failed", "err", err)
	}
	h.Metrics.WebhookEvent(ev.Type, out.label())
	h.Metrics.ObserveSince("webhook", ev.Type, start)

	fields := []interface{}{"event_type", ev.Type, "outcome", out.label(), "reason", out.Reason, "attempts", entry.Attempts, "elapsed_ms", time.Since(start).Milliseconds()}
	switch {
	case out.DeadLettered:
		lg.Errorw("webhook_stripe_dead_lettered", append(fields, "err", out.Err)...)
	case out.Kind == OutcomeFailed:
		lg.Warnw("webhook_stripe_failed", append(fields, "err", out.Err)...)
	default:
		lg.Infow("webhook_stripe_processed", fields...)
	}
	return out
}

func (h *Handler) dispatch(ctx context.Context, ev *stripeapi.Event) (out Outcome) {
	route, ok := h.routes[ev.Type]
	if !ok {
		return Skipped("unhandled event type")
	}
	defer func() {
		if r := recover(); r != nil {
			out = Failed(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return route(ctx, ev)
}

// resolve maps resolver errors onto outcomes; ok is false when out is final.
func (h *Handler) resolve(ctx context.Context, q resolver.Query) (*models.Subscription, Outcome, bool) {
	sub, err := h.Resolver.Resolve(ctx, q)
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		return nil, Unresolved("subscription not resolved"), false
	case err != nil:
		return nil, Failed(err), false
	}
	return sub, Outcome{}, true
}

func (h *Handler) subscriptionChanged(sweep bool) func(ctx context.Context, obj *stripeapi.Subscription) Outcome {
	return func(ctx context.Context, obj *stripeapi.Subscription) Outcome {
		if obj.ID == "" {
			return Skipped("subscription id missing")
		}
		sub, out, ok := h.resolve(ctx, resolver.Query{SubscriptionID: obj.ID, CustomerID: obj.Customer.String()})
		if !ok {
			return out
		}
		ctx = logctx.With(ctx, h.Log, "company_id", sub.CompanyID)
		changed, err := h.Sync.ApplyWithReason(ctx, sub, obj, types.SubscriptionChangeReasonSync)
		if errors.Is(err, subscription.ErrStale) {
			return Skipped("stale subscription")
		}
		if err != nil {
			return Failed(err)
		}
		reason := fmt.Sprintf("synced changed=%t", changed)
		if sweep {
			n, err := h.Sweeper.SweepSubscription(ctx, sub, h.MaxInvoices, sweeper.TriggerWebhook)
			if err != nil {
				// The sync is already durable; the next sweep catches up.
				logctx.FromCtx(ctx, h.Log).Warnw("webhook_sweep_failed", "err", err)
			}
			reason = fmt.Sprintf("%s backfilled=%d", reason, n)
		}
		return Applied(reason)
	}
}

func (h *Handler) invoicePaid(ctx context.Context, inv *stripeapi.Invoice) Outcome {
	return h.recordInvoice(ctx, inv, h.Payments.RecordSucceeded)
}

func (h *Handler) invoiceFailed(ctx context.Context, inv *stripeapi.Invoice) Outcome {
	return h.recordInvoice(ctx, inv, h.Payments.RecordFailed)
}

type recordFunc func(ctx context.Context, sub *models.Subscription, inv *stripeapi.Invoice) (*models.PaymentRecord, payment.Effect, error)

func (h *Handler) recordInvoice(ctx context.Context, inv *stripeapi.Invoice, record recordFunc) Outcome {
	if inv.ID == "" {
		return Skipped("invoice id missing")
	}
	sub, out, ok := h.resolve(ctx, resolver.Query{
		SubscriptionID: inv.SubscriptionID(),
		CustomerID:     inv.Customer.String(),
		InvoiceID:      inv.ID,
	})
	if !ok {
		return out
	}
	ctx = logctx.With(ctx, h.Log, "company_id", sub.CompanyID)
	_, effect, err := record(ctx, sub, inv)
	if err != nil {
		return Failed(err)
	}
	return Applied("payment " + string(effect))
}

func (h *Handler) checkoutCompleted(ctx context.Context, cs *stripeapi.CheckoutSession) Outcome {
	if cs.Subscription == "" {
		return Skipped("checkout without subscription")
	}
	var sub *models.Subscription
	if companyID := cs.CompanyID(); companyID != "" {
		var err error
		if sub, err = h.Ensurer.EnsureSubscription(ctx, companyID); err != nil {
			return Failed(err)
		}
	} else {
		var out Outcome
		var ok bool
		if sub, out, ok = h.resolve(ctx, resolver.Query{SubscriptionID: cs.Subscription.String(), CustomerID: cs.Customer.String()}); !ok {
			return out
		}
	}
	ctx = logctx.With(ctx, h.Log, "company_id", sub.CompanyID)
	obj, err := h.Fetcher.GetSubscription(ctx, cs.Subscription.String())
	if err != nil {
		return Failed(err)
	}
	changed, err := h.Sync.ApplyWithReason(ctx, sub, obj, types.SubscriptionChangeReasonCheckout)
	if errors.Is(err, subscription.ErrStale) {
		return Skipped("stale subscription")
	}
	if err != nil {
		return Failed(err)
	}
	return Applied(fmt.Sprintf("checkout linked changed=%t", changed))
}
