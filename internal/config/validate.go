package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secrets
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// Upstream summarization service
	if c.Anthropic.APIKey == "" {
		errs = append(errs, "ANTHROPIC_API_KEY is required")
	}
	if !strings.HasPrefix(c.Anthropic.BaseURL, "http://") && !strings.HasPrefix(c.Anthropic.BaseURL, "https://") {
		errs = append(errs, "ANTHROPIC_BASE_URL must be an http(s) URL")
	}
	if c.Anthropic.MaxTokens < 1 || c.Anthropic.MaxTokens > 8192 {
		errs = append(errs, fmt.Sprintf("ANTHROPIC_MAX_TOKENS must be 1–8192, got %d", c.Anthropic.MaxTokens))
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Stripe: warn only, billing sync degrades to manual tier management
	if c.Stripe.SecretKey == "" {
		slog.Warn("STRIPE_SECRET_KEY is empty — checkout and subscription sync are disabled")
	} else if c.Stripe.WebhookSecret == "" {
		errs = append(errs, "STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}

	if c.Quota.Unrestricted {
		slog.Warn("BETA_MODE is enabled — payment and quota gates are bypassed")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
