package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Pricing is the invoice pricing policy applied to every new invoice.
type Pricing struct {
	BaseAmount  float64
	Currency    string
	Description string
}

func DefaultPricing() Pricing {
	return Pricing{
		BaseAmount:  1500,
		Currency:    "MNT",
		Description: "academiacareer",
	}
}

type PricingHolder struct {
	current atomic.Value // holds Pricing
}

// NewStaticPricingHolder returns a holder that never reloads.
func NewStaticPricingHolder(p Pricing) *PricingHolder {
	holder := &PricingHolder{}
	holder.current.Store(p)
	return holder
}

// NewPricingHolder reads pricing.yml (or PRICING_FILE) and keeps it hot-reloaded.
func NewPricingHolder(cfg Config, log *zap.Logger) (*PricingHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.pricing")

	v := viper.New()
	if file := strings.TrimSpace(cfg.PricingFile); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("pricing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/qpayrelay")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("QPAYRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPricing()
	v.SetDefault("pricing.base_amount", defaults.BaseAmount)
	v.SetDefault("pricing.currency", defaults.Currency)
	v.SetDefault("pricing.description", defaults.Description)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
		log.Info("pricing file not found, using defaults")
	}

	pricing := readPricing(v)
	if err := validatePricing(pricing); err != nil {
		return nil, err
	}

	holder := NewStaticPricingHolder(pricing)
	if !watch {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated := readPricing(v)
		if err := validatePricing(updated); err != nil {
			log.Warn("invalid pricing ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("pricing reloaded",
			zap.String("file", e.Name),
			zap.Float64("base_amount", updated.BaseAmount),
		)
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PricingHolder) Get() Pricing {
	return h.current.Load().(Pricing)
}

func readPricing(v *viper.Viper) Pricing {
	return Pricing{
		BaseAmount:  v.GetFloat64("pricing.base_amount"),
		Currency:    strings.ToUpper(strings.TrimSpace(v.GetString("pricing.currency"))),
		Description: strings.TrimSpace(v.GetString("pricing.description")),
	}
}

func validatePricing(p Pricing) error {
	if p.BaseAmount <= 0 {
		return errors.New("pricing.base_amount must be positive")
	}
	if strings.TrimSpace(p.Description) == "" {
		return errors.New("pricing.description cannot be empty")
	}
	return nil
}
