package types

import "strings"

type PlanTier string

const (
	PlanTierFree       PlanTier = "FREE"
	PlanTierBasic      PlanTier = "BASIC"
	PlanTierPro        PlanTier = "PRO"
	PlanTierEnterprise PlanTier = "ENTERPRISE"
)

var planTierRank = map[PlanTier]int{
	PlanTierFree:       0,
	PlanTierBasic:      1,
	PlanTierPro:        2,
	PlanTierEnterprise: 3,
}

// Rank orders tiers from FREE upwards. Unknown tiers rank below FREE.
func (t PlanTier) Rank() int {
	if r, ok := planTierRank[t]; ok {
		return r
	}
	return -1
}

func (t PlanTier) Valid() bool {
	_, ok := planTierRank[t]
	return ok
}

// Higher reports whether t is a strictly higher tier than other.
func (t PlanTier) Higher(other PlanTier) bool {
	return t.Rank() > other.Rank()
}

// Plan maps a processor price to local commercial terms. Plans are loaded from config.
type Plan struct {
	PriceID      string       `json:"price_id" mapstructure:"price_id"`
	Tier         PlanTier     `json:"tier" mapstructure:"tier"`
	BillingCycle BillingCycle `json:"billing_cycle" mapstructure:"billing_cycle"`
	// SeatCeiling is the company seat limit granted by this plan.
	SeatCeiling int `json:"seat_ceiling" mapstructure:"seat_ceiling"`
}

// Normalize upper-cases tier and billing cycle so configs may use either case.
func (p *Plan) Normalize() {
	p.Tier = PlanTier(strings.ToUpper(string(p.Tier)))
	p.BillingCycle = BillingCycle(strings.ToUpper(string(p.BillingCycle)))
	if p.BillingCycle == "" {
		p.BillingCycle = BillingCycleMonthly
	}
}
