package types

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "TRIAL"
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusSuspended SubscriptionStatus = "SUSPENDED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

// Valid reports whether s is one of the known lifecycle states.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusTrial, SubscriptionStatusActive, SubscriptionStatusSuspended, SubscriptionStatusCancelled:
		return true
	}
	return false
}

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "MONTHLY"
	BillingCycleYearly  BillingCycle = "YEARLY"
)

// Next returns t advanced by one billing cycle unit. Unknown cycles are treated as monthly.
func (c BillingCycle) Next(t time.Time) time.Time {
	if c == BillingCycleYearly {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonCreate   SubscriptionChangeReason = "create"
	SubscriptionChangeReasonSync     SubscriptionChangeReason = "sync"
	SubscriptionChangeReasonRelink   SubscriptionChangeReason = "relink"
	SubscriptionChangeReasonCheckout SubscriptionChangeReason = "checkout"
	SubscriptionChangeReasonCancel   SubscriptionChangeReason = "cancel"
)
