package models

import (
	"time"

	"github.com/fatflowers/billing/pkg/types"

	"github.com/shopspring/decimal"
)

// Subscription is the local, denormalized view of a company's processor subscription.
// There is at most one row per company.
type Subscription struct {
	ID           string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	CompanyID    string                   `gorm:"column:company_id;type:varchar(64);not null;uniqueIndex" json:"company_id"`
	PlanTier     types.PlanTier           `gorm:"column:plan_tier;type:varchar(32);not null" json:"plan_tier"`
	PricePerSeat decimal.Decimal          `gorm:"column:price_per_seat;type:numeric(12,2);not null;default:0" json:"price_per_seat"`
	SeatCount    int                      `gorm:"column:seat_count;not null;default:1" json:"seat_count"`
	BillingCycle types.BillingCycle       `gorm:"column:billing_cycle;type:varchar(16);not null" json:"billing_cycle"`
	Status       types.SubscriptionStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	// NextBillingAt is derived from the processor's trial and period ends.
	NextBillingAt *time.Time `gorm:"column:next_billing_at;default:null" json:"next_billing_at"`
	// External linkage. ExternalSubscriptionID, once set, is the authoritative cross-reference.
	ExternalCustomerID     *string   `gorm:"column:external_customer_id;type:varchar(128);index" json:"external_customer_id"`
	ExternalSubscriptionID *string   `gorm:"column:external_subscription_id;type:varchar(128);index" json:"external_subscription_id"`
	ExternalPriceID        *string   `gorm:"column:external_price_id;type:varchar(128)" json:"external_price_id"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// Clone returns a deep copy, used for before/after change logs.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	cp := *s
	cp.NextBillingAt = clonePtr(s.NextBillingAt)
	cp.ExternalCustomerID = clonePtr(s.ExternalCustomerID)
	cp.ExternalSubscriptionID = clonePtr(s.ExternalSubscriptionID)
	cp.ExternalPriceID = clonePtr(s.ExternalPriceID)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
