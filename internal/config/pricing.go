package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DefaultRatePerMinuteCents is the live chat price when pricing.yml is absent.
const DefaultRatePerMinuteCents int64 = 299

type CreditPackage struct {
	AmountCents int64  `mapstructure:"amountCents" json:"amount_cents"`
	Label       string `mapstructure:"label" json:"label"`
}

// PricingConfig holds operator-tunable chat pricing. Changes apply to sessions
// requested after the reload; existing sessions keep the rate they were sold at.
type PricingConfig struct {
	RatePerMinuteCents int64           `mapstructure:"ratePerMinuteCents"`
	DurationTiers      []int           `mapstructure:"durationTiers"`
	CreditPackages     []CreditPackage `mapstructure:"creditPackages"`
	Greeting           string          `mapstructure:"greeting"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		RatePerMinuteCents: DefaultRatePerMinuteCents,
		DurationTiers:      []int{5, 15, 30, 60},
		CreditPackages: []CreditPackage{
			{AmountCents: 1000, Label: "$10"},
			{AmountCents: 2500, Label: "$25"},
			{AmountCents: 5000, Label: "$50"},
			{AmountCents: 10000, Label: "$100"},
		},
		Greeting: "Hello, I'm here with you now. What would you like guidance on today?",
	}
}

func (p PricingConfig) HasCreditPackage(amountCents int64) bool {
	for _, pkg := range p.CreditPackages {
		if pkg.AmountCents == amountCents {
			return true
		}
	}
	return false
}

type PricingHolder struct {
	current atomic.Value // holds PricingConfig
}

// NewStaticPricingHolder returns a holder that never reloads.
func NewStaticPricingHolder(cfg PricingConfig) *PricingHolder {
	holder := &PricingHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPricingHolder(log *zap.Logger) (*PricingHolder, error) {
	log = log.Named("pricing.config")
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/mystictxt/config")
	v.AddConfigPath("/etc/mystictxt")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MYSTICTXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPricingConfig()
	v.SetDefault("pricing.ratePerMinuteCents", defaults.RatePerMinuteCents)
	v.SetDefault("pricing.durationTiers", defaults.DurationTiers)
	v.SetDefault("pricing.creditPackages", defaults.CreditPackages)
	v.SetDefault("pricing.greeting", defaults.Greeting)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	if err := ValidatePricingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPricingHolder(cfg)
	if !fileFound {
		log.Info("pricing.yml not found, using defaults", zap.Int64("rate_per_minute_cents", cfg.RatePerMinuteCents))
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Warn("reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := ValidatePricingConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded",
			zap.String("file", e.Name),
			zap.Int64("rate_per_minute_cents", updated.RatePerMinuteCents),
		)
	})

	return holder, nil
}

func (h *PricingHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

func ValidatePricingConfig(cfg PricingConfig) error {
	if cfg.RatePerMinuteCents <= 0 {
		return errors.New("pricing.ratePerMinuteCents must be positive")
	}
	if len(cfg.CreditPackages) == 0 {
		return errors.New("pricing.creditPackages cannot be empty")
	}
	for _, pkg := range cfg.CreditPackages {
		if pkg.AmountCents <= 0 {
			return fmt.Errorf("pricing.creditPackages: amount %d must be positive", pkg.AmountCents)
		}
	}
	for _, tier := range cfg.DurationTiers {
		if tier <= 0 {
			return fmt.Errorf("pricing.durationTiers: %d must be positive", tier)
		}
	}
	if strings.TrimSpace(cfg.Greeting) == "" {
		return errors.New("pricing.greeting cannot be empty")
	}
	return nil
}
