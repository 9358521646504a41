package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultPricingConfigIsValid(t *testing.T) {
	cfg := DefaultPricingConfig()
	require.NoError(t, ValidatePricingConfig(cfg))
	assert.Equal(t, int64(299), cfg.RatePerMinuteCents)
	assert.True(t, cfg.HasCreditPackage(2500))
	assert.False(t, cfg.HasCreditPackage(2400))
}

func TestValidatePricingConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PricingConfig)
	}{
		{"zero rate", func(c *PricingConfig) { c.RatePerMinuteCents = 0 }},
		{"no packages", func(c *PricingConfig) { c.CreditPackages = nil }},
		{"negative package", func(c *PricingConfig) { c.CreditPackages = []CreditPackage{{AmountCents: -1}} }},
		{"bad tier", func(c *PricingConfig) { c.DurationTiers = []int{0} }},
		{"empty greeting", func(c *PricingConfig) { c.Greeting = "  " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultPricingConfig()
			tc.mutate(&cfg)
			assert.Error(t, ValidatePricingConfig(cfg))
		})
	}
}

func TestNewPricingHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`pricing:
  ratePerMinuteCents: 350
  creditPackages:
    - amountCents: 2000
      label: "$20"
  greeting: "Welcome"
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pricing.yml"), content, 0o600))
	t.Chdir(dir)

	holder, err := NewPricingHolder(zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, int64(350), cfg.RatePerMinuteCents)
	assert.Equal(t, []CreditPackage{{AmountCents: 2000, Label: "$20"}}, cfg.CreditPackages)
	assert.Equal(t, "Welcome", cfg.Greeting)
	assert.Equal(t, []int{5, 15, 30, 60}, cfg.DurationTiers)
}

func TestNewPricingHolderDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewPricingHolder(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultRatePerMinuteCents, holder.Get().RatePerMinuteCents)
}
