package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatflowers/billing/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestNew_MissingWebhookSecretIsStartupFault(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	t.Setenv("APP_STRIPE_WEBHOOK_SECRET", "")

	_, err := New()
	require.Error(t, err)
	require.Contains(t, err.Error(), "stripe.webhook_secret")
}

func TestNew_DefaultsAndEnvOverride(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	t.Setenv("APP_STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("APP_SWEEPER_MAX_INVOICES", "25")

	c, err := New()
	require.NoError(t, err)
	require.Equal(t, "whsec_test", c.Stripe.WebhookSecret)
	require.Equal(t, 10*time.Second, c.Stripe.RequestTimeout)
	require.Equal(t, 8, c.Webhook.MaxAttempts)
	require.Equal(t, 25, c.Sweeper.MaxInvoices)
	require.Equal(t, time.Hour, c.Sweeper.Interval)
}

func TestNew_LoadsPlansFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "billing.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
stripe:
  webhook_secret: whsec_file
plans:
  - price_id: price_pro_monthly
    tier: pro
    billing_cycle: monthly
    seat_ceiling: 50
  - price_id: price_ent_yearly
    tier: ENTERPRISE
    billing_cycle: YEARLY
    seat_ceiling: 500
`), 0o600))
	t.Setenv("APP_CONFIG_FILE", file)

	c, err := New()
	require.NoError(t, err)
	require.Len(t, c.Plans, 2)

	p := c.GetPlanByPriceID("price_pro_monthly")
	require.NotNil(t, p)
	require.Equal(t, types.PlanTierPro, p.Tier)
	require.Equal(t, types.BillingCycleMonthly, p.BillingCycle)
	require.Equal(t, 50, p.SeatCeiling)
	require.Nil(t, c.GetPlanByPriceID("price_unknown"))
}

func TestValidate_RejectsBadPlans(t *testing.T) {
	c := &Config{
		Stripe:  StripeConfig{WebhookSecret: "whsec"},
		Webhook: WebhookConfig{MaxAttempts: 3},
		Plans: []*types.Plan{
			{PriceID: "p1", Tier: types.PlanTierPro, BillingCycle: types.BillingCycleMonthly},
			{PriceID: "p1", Tier: "GOLD", BillingCycle: types.BillingCycleMonthly},
		},
	}
	err := c.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate price_id")
	require.Contains(t, err.Error(), "unknown tier")
}
