package models

import (
	"testing"
	"time"

	"github.com/fatflowers/billing/pkg/types"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionClone(t *testing.T) {
	next := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	s := &Subscription{
		ID:                     "s1",
		CompanyID:              "co_1",
		PlanTier:               types.PlanTierBasic,
		PricePerSeat:           decimal.RequireFromString("9.99"),
		SeatCount:              3,
		Status:                 types.SubscriptionStatusActive,
		NextBillingAt:          &next,
		ExternalCustomerID:     lo.ToPtr("cus_1"),
		ExternalSubscriptionID: lo.ToPtr("sub_1"),
	}

	cp := s.Clone()
	require.Equal(t, s, cp)

	*cp.NextBillingAt = next.AddDate(0, 1, 0)
	*cp.ExternalSubscriptionID = "sub_2"
	cp.SeatCount = 5
	require.Equal(t, next, *s.NextBillingAt)
	require.Equal(t, "sub_1", *s.ExternalSubscriptionID)
	require.Equal(t, 3, s.SeatCount)
	require.Nil(t, cp.ExternalPriceID)

	var nilSub *Subscription
	require.Nil(t, nilSub.Clone())
}
