package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/AskFox/internal/pkg/env"
	"github.com/ManuelReschke/AskFox/internal/pkg/plans"
)

const defaultPayPalAPIBase = "https://api-m.paypal.com"

// Config is the typed view over the environment used to wire the application.
type Config struct {
	App    AppConfig
	Cache  CacheConfig
	Auth   AuthConfig
	Stripe StripeConfig
	PayPal PayPalConfig
}

type AppConfig struct {
	Host string `validate:"required"`
	Port string `validate:"required,numeric"`
	Env  string `validate:"oneof=dev prod test"`
}

type CacheConfig struct {
	EntitlementTTL time.Duration `validate:"gte=0"`
}

type AuthConfig struct {
	Issuer   string `validate:"required_without=Disabled"`
	Audience string
	JWKSURL  string `validate:"omitempty,url"`
	Disabled bool
}

type StripeConfig struct {
	WebhookSecret string
	// PriceIDs maps catalog plans to Stripe price IDs.
	PriceIDs map[plans.ID]string
}

type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
	APIBase      string `validate:"required,url"`
	// PlanIDs maps catalog plans to PayPal billing plan IDs.
	PlanIDs map[plans.ID]string
}

// Load assembles the configuration from env.GetEnv and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Host: env.GetEnv("APP_HOST", "localhost"),
			Port: env.GetEnv("APP_PORT", "4000"),
			Env:  env.GetEnv("APP_ENV", "prod"),
		},
		Cache: CacheConfig{
			EntitlementTTL: env.GetEnvDuration("ENTITLEMENT_CACHE_TTL", 30*time.Second),
		},
		Auth: AuthConfig{
			Issuer:   strings.TrimSpace(env.GetEnv("AUTH_ISSUER", "")),
			Audience: strings.TrimSpace(env.GetEnv("AUTH_AUDIENCE", "")),
			JWKSURL:  strings.TrimSpace(env.GetEnv("AUTH_JWKS_URL", "")),
			Disabled: env.GetEnvBool("AUTH_DISABLED", false) && env.IsDev(),
		},
		Stripe: StripeConfig{
			WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
			PriceIDs:      planRefsFromEnv("STRIPE_PRICE_"),
		},
		PayPal: PayPalConfig{
			ClientID:     strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_SECRET", "")),
			WebhookID:    strings.TrimSpace(env.GetEnv("PAYPAL_WEBHOOK_ID", "")),
			APIBase:      strings.TrimRight(strings.TrimSpace(env.GetEnv("PAYPAL_API_BASE", defaultPayPalAPIBase)), "/"),
			PlanIDs:      planRefsFromEnv("PAYPAL_PLAN_"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints of every section.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// StripeEnabled reports whether the Stripe webhook can verify deliveries.
func (c *Config) StripeEnabled() bool {
	return c.Stripe.WebhookSecret != ""
}

// PayPalEnabled reports whether the PayPal webhook can verify deliveries.
func (c *Config) PayPalEnabled() bool {
	return c.PayPal.ClientID != "" && c.PayPal.ClientSecret != "" && c.PayPal.WebhookID != ""
}

func planRefsFromEnv(prefix string) map[plans.ID]string {
	refs := make(map[plans.ID]string)
	for _, def := range plans.All() {
		if def.ID == plans.Free {
			continue
		}
		if ref := strings.TrimSpace(env.GetEnv(prefix+string(def.ID), "")); ref != "" {
			refs[def.ID] = ref
		}
	}
	return refs
}
