package stripe_api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MetadataCompanyID is the metadata key this service writes on every processor
// customer, subscription and checkout session it creates.
const MetadataCompanyID = "company_id"

// ExpandableID decodes a Stripe expandable field, which is either an id string
// or an object carrying an "id".
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = ExpandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("expandable field: %w", err)
	}
	*e = ExpandableID(obj.ID)
	return nil
}

func (e ExpandableID) String() string { return string(e) }

// unixTime treats 0 as absent because the SDK types flatten null timestamps to 0.
func unixTime(sec *int64) *time.Time {
	if sec == nil || *sec <= 0 {
		return nil
	}
	t := time.Unix(*sec, 0).UTC()
	return &t
}

type PriceRecurring struct {
	Interval string `json:"interval"`
}

type Price struct {
	ID         string          `json:"id"`
	UnitAmount *int64          `json:"unit_amount"`
	Recurring  *PriceRecurring `json:"recurring"`
}

// legacyPlan is the pre-Prices "plan" object some payloads still carry.
type legacyPlan struct {
	ID       string `json:"id"`
	Amount   *int64 `json:"amount"`
	Interval string `json:"interval"`
}

type SubscriptionItem struct {
	ID               string      `json:"id"`
	Quantity         int64       `json:"quantity"`
	Price            *Price      `json:"price"`
	Plan             *legacyPlan `json:"plan"`
	CurrentPeriodEnd *int64      `json:"current_period_end"`
}

// Subscription is the projection of a processor subscription used by reconciliation.
type Subscription struct {
	ID       string            `json:"id"`
	Customer ExpandableID      `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	TrialEnd *int64            `json:"trial_end"`
	// CurrentPeriodEnd is set by API versions that keep it on the subscription.
	CurrentPeriodEnd *int64 `json:"current_period_end"`
	Items            struct {
		Data []*SubscriptionItem `json:"data"`
	} `json:"items"`
}

// CompanyID returns the tenant attribute this service embedded at creation time.
func (s *Subscription) CompanyID() string {
	if s == nil {
		return ""
	}
	return s.Metadata[MetadataCompanyID]
}

// Item returns the first line item, or nil.
func (s *Subscription) Item() *SubscriptionItem {
	if s == nil || len(s.Items.Data) == 0 {
		return nil
	}
	return s.Items.Data[0]
}

// PriceID returns the price of the first line item, falling back to the legacy plan id.
func (s *Subscription) PriceID() string {
	it := s.Item()
	switch {
	case it == nil:
		return ""
	case it.Price != nil && it.Price.ID != "":
		return it.Price.ID
	case it.Plan != nil:
		return it.Plan.ID
	}
	return ""
}

// UnitAmount returns the per-seat price in minor units, if the payload has one.
func (s *Subscription) UnitAmount() (int64, bool) {
	it := s.Item()
	switch {
	case it == nil:
		return 0, false
	case it.Price != nil && it.Price.UnitAmount != nil:
		return *it.Price.UnitAmount, true
	case it.Plan != nil && it.Plan.Amount != nil:
		return *it.Plan.Amount, true
	}
	return 0, false
}

// Interval returns the recurring interval of the first line item ("month", "year" or "").
func (s *Subscription) Interval() string {
	it := s.Item()
	switch {
	case it == nil:
		return ""
	case it.Price != nil && it.Price.Recurring != nil:
		return it.Price.Recurring.Interval
	case it.Plan != nil:
		return it.Plan.Interval
	}
	return ""
}

// Quantity returns the seat count of the first line item.
func (s *Subscription) Quantity() (int64, bool) {
	it := s.Item()
	if it == nil {
		return 0, false
	}
	return it.Quantity, true
}

// Terminal reports a status the processor never leaves.
func (s *Subscription) Terminal() bool {
	return s != nil && (s.Status == "canceled" || s.Status == "incomplete_expired")
}

func (s *Subscription) TrialEndAt() *time.Time {
	if s == nil {
		return nil
	}
	return unixTime(s.TrialEnd)
}

// PeriodEndAt reads the subscription level period end, then the first item's.
func (s *Subscription) PeriodEndAt() *time.Time {
	if s == nil {
		return nil
	}
	if t := unixTime(s.CurrentPeriodEnd); t != nil {
		return t
	}
	if it := s.Item(); it != nil {
		return unixTime(it.CurrentPeriodEnd)
	}
	return nil
}

type invoicePayment struct {
	Payment struct {
		PaymentIntent ExpandableID `json:"payment_intent"`
		Charge        ExpandableID `json:"charge"`
	} `json:"payment"`
}

type invoiceLine struct {
	Description string `json:"description"`
	Period      struct {
		Start *int64 `json:"start"`
		End   *int64 `json:"end"`
	} `json:"period"`
}

// Invoice is the projection of a processor invoice. Amount fields are pointers so
// an absent field can be told apart from zero.
type Invoice struct {
	ID            string            `json:"id"`
	Number        string            `json:"number"`
	Customer      ExpandableID      `json:"customer"`
	Subscription  ExpandableID      `json:"subscription"`
	Status        string            `json:"status"`
	Paid          *bool             `json:"paid"`
	AmountPaid    *int64            `json:"amount_paid"`
	AmountDue     *int64            `json:"amount_due"`
	Total         *int64            `json:"total"`
	PaymentIntent ExpandableID      `json:"payment_intent"`
	Charge        ExpandableID      `json:"charge"`
	PeriodStart   *int64            `json:"period_start"`
	PeriodEnd     *int64            `json:"period_end"`
	Description   string            `json:"description"`
	Metadata      map[string]string `json:"metadata"`
	Created       *int64            `json:"created"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription ExpandableID     `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Payments *struct {
		Data []invoicePayment `json:"data"`
	} `json:"payments"`
	Lines *struct {
		Data []invoiceLine `json:"data"`
	} `json:"lines"`
}

// SubscriptionID reads the legacy top-level field, then parent.subscription_details.
func (inv *Invoice) SubscriptionID() string {
	if inv == nil {
		return ""
	}
	if inv.Subscription != "" {
		return string(inv.Subscription)
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		return string(inv.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

func (inv *Invoice) PaymentIntentID() string {
	if inv.PaymentIntent != "" {
		return string(inv.PaymentIntent)
	}
	if inv.Payments != nil {
		for _, p := range inv.Payments.Data {
			if p.Payment.PaymentIntent != "" {
				return string(p.Payment.PaymentIntent)
			}
		}
	}
	return ""
}

func (inv *Invoice) ChargeID() string {
	if inv.Charge != "" {
		return string(inv.Charge)
	}
	if inv.Payments != nil {
		for _, p := range inv.Payments.Data {
			if p.Payment.Charge != "" {
				return string(p.Payment.Charge)
			}
		}
	}
	return ""
}

// IsPaid reports the processor's paid flag or status.
func (inv *Invoice) IsPaid() bool {
	if inv == nil {
		return false
	}
	if inv.Paid != nil && *inv.Paid {
		return true
	}
	return inv.Status == "paid"
}

// PaidAmount is amount_paid, falling back to total, then amount_due, then zero.
func (inv *Invoice) PaidAmount() int64 {
	return firstAmount(inv.AmountPaid, inv.Total, inv.AmountDue)
}

// DueAmount is amount_due, falling back to total, then zero.
func (inv *Invoice) DueAmount() int64 {
	return firstAmount(inv.AmountDue, inv.Total)
}

func firstAmount(candidates ...*int64) int64 {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return 0
}

// ServicePeriod prefers the first line's period, which is the billed service window
// for subscription invoices.
func (inv *Invoice) ServicePeriod() (start, end *time.Time) {
	if inv.Lines != nil && len(inv.Lines.Data) > 0 {
		l := inv.Lines.Data[0]
		if s, e := unixTime(l.Period.Start), unixTime(l.Period.End); s != nil || e != nil {
			return s, e
		}
	}
	return unixTime(inv.PeriodStart), unixTime(inv.PeriodEnd)
}

// HumanDescription is the invoice description or the first line's.
func (inv *Invoice) HumanDescription() string {
	if inv.Description != "" {
		return inv.Description
	}
	if inv.Lines != nil && len(inv.Lines.Data) > 0 {
		return inv.Lines.Data[0].Description
	}
	return ""
}

// CheckoutSession is the projection of a completed checkout session.
type CheckoutSession struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	Mode              string            `json:"mode"`
	Customer          ExpandableID      `json:"customer"`
	Subscription      ExpandableID      `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// CompanyID is the client reference id, falling back to metadata.
func (cs *CheckoutSession) CompanyID() string {
	if cs.ClientReferenceID != "" {
		return cs.ClientReferenceID
	}
	return cs.Metadata[MetadataCompanyID]
}

// project converts SDK structs into projections through their JSON form.
func project(src any, dst any) error {
	b, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", src, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("project %T: %w", src, err)
	}
	return nil
}
