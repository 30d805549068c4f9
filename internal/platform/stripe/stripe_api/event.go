package stripe_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrSignature is returned when a payload does not carry a valid signature for
// the configured secret.
var ErrSignature = errors.New("stripe: invalid webhook signature")

// Event is a verified webhook event. Object is the raw data.object document.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	APIVersion string          `json:"api_version,omitempty"`
	Created    time.Time       `json:"created"`
	Object     json.RawMessage `json:"object"`
}

// DecodeEvent restores an Event journalled by a previous verification.
func DecodeEvent(b []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("decode stored event: %w", err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, errors.New("decode stored event: missing id or type")
	}
	return &ev, nil
}

// Verifier checks the Stripe-Signature header against the endpoint secret.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("stripe: webhook secret is empty")
	}
	return &Verifier{secret: secret}, nil
}

// Verify authenticates payload and returns the decoded event. Any failure,
// including a missing header, wraps ErrSignature.
func (v *Verifier) Verify(payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, fmt.Errorf("%w: missing header", ErrSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		// Event objects are decoded into local projections, so the account's
		// pinned API version does not have to match the SDK's.
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	out := &Event{
		ID:         ev.ID,
		Type:       string(ev.Type),
		APIVersion: ev.APIVersion,
		Created:    time.Unix(ev.Created, 0).UTC(),
	}
	if ev.Data != nil {
		out.Object = ev.Data.Raw
	}
	return out, nil
}

// Decode unmarshals the event object into dst.
func (e *Event) Decode(dst any) error {
	if len(e.Object) == 0 {
		return fmt.Errorf("event %s has no data object", e.ID)
	}
	if err := json.Unmarshal(e.Object, dst); err != nil {
		return fmt.Errorf("decode %s object: %w", e.Type, err)
	}
	return nil
}
