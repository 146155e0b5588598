package core

import (
	"fmt"
	"strings"
)

type BrandConfig struct {
	AccessToken string `koanf:"access_token" mapstructure:"access_token"`
	PixelID     string `koanf:"pixel_id" mapstructure:"pixel_id"`
}

type DeliveryConfig struct {
	MaxAttempts         int `koanf:"max_attempts" mapstructure:"max_attempts"`
	BackoffCapMinutes   int `koanf:"backoff_cap_minutes" mapstructure:"backoff_cap_minutes"`
	JitterMaxSeconds    int `koanf:"jitter_max_seconds" mapstructure:"jitter_max_seconds"`
	BatchSize           int `koanf:"batch_size" mapstructure:"batch_size"`
	TickIntervalSeconds int `koanf:"tick_interval_seconds" mapstructure:"tick_interval_seconds"`
	DedupWindowDays     int `koanf:"dedup_window_days" mapstructure:"dedup_window_days"`
}

type ReconcileConfig struct {
	ContactDelaysSeconds []int `koanf:"contact_delays_seconds" mapstructure:"contact_delays_seconds"`
	GlobalDelaysSeconds  []int `koanf:"global_delays_seconds" mapstructure:"global_delays_seconds"`
	LookbackMinutes      int   `koanf:"lookback_minutes" mapstructure:"lookback_minutes"`
	ScanLimit            int   `koanf:"scan_limit" mapstructure:"scan_limit"`
}

type Config struct {
	ServiceName string                 `koanf:"service_name" mapstructure:"service_name"`
	Delivery    DeliveryConfig         `koanf:"delivery" mapstructure:"delivery"`
	Reconcile   ReconcileConfig        `koanf:"reconcile" mapstructure:"reconcile"`
	Brands      map[string]BrandConfig `koanf:"brands" mapstructure:"brands"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "amare",
		Delivery: DeliveryConfig{
			MaxAttempts:         6,
			BackoffCapMinutes:   60,
			JitterMaxSeconds:    30,
			BatchSize:           50,
			TickIntervalSeconds: 30,
			DedupWindowDays:     7,
		},
		Reconcile: ReconcileConfig{
			ContactDelaysSeconds: []int{10, 20, 30},
			GlobalDelaysSeconds:  []int{15, 30, 60},
			LookbackMinutes:      30,
			ScanLimit:            50,
		},
		Brands: map[string]BrandConfig{},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("core: delivery.max_attempts must be >= 1")
	}
	if c.Delivery.BackoffCapMinutes < 1 {
		return fmt.Errorf("core: delivery.backoff_cap_minutes must be >= 1")
	}
	if c.Delivery.JitterMaxSeconds < 0 {
		return fmt.Errorf("core: delivery.jitter_max_seconds must be >= 0")
	}
	if c.Reconcile.ScanLimit < 1 {
		return fmt.Errorf("core: reconcile.scan_limit must be >= 1")
	}
	for brand, creds := range c.Brands {
		if strings.TrimSpace(brand) == "" {
			return fmt.Errorf("core: brand key must not be empty")
		}
		if strings.TrimSpace(creds.PixelID) == "" {
			return fmt.Errorf("core: brand %q requires a pixel_id", brand)
		}
	}
	return nil
}

// StaticBrandResolver is the explicit brand -> credential map demanded by
// the configuration design: no hidden environment coupling.
type StaticBrandResolver map[string]BrandConfig

func NewStaticBrandResolver(brands map[string]BrandConfig) StaticBrandResolver {
	resolver := make(StaticBrandResolver, len(brands))
	for brand, creds := range brands {
		trimmed := strings.TrimSpace(brand)
		if trimmed == "" {
			continue
		}
		resolver[trimmed] = creds
	}
	return resolver
}

func (r StaticBrandResolver) AccessToken(brand string) (string, bool) {
	creds, ok := r[strings.TrimSpace(brand)]
	if !ok || strings.TrimSpace(creds.AccessToken) == "" {
		return "", false
	}
	return creds.AccessToken, true
}

func (r StaticBrandResolver) PixelID(brand string) (string, bool) {
	creds, ok := r[strings.TrimSpace(brand)]
	if !ok || strings.TrimSpace(creds.PixelID) == "" {
		return "", false
	}
	return creds.PixelID, true
}

var _ BrandResolver = (StaticBrandResolver)(nil)
