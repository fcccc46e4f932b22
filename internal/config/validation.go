package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateLLM()...)
	errors = append(errors, c.validateAgent()...)
	errors = append(errors, c.validateMarket()...)
	errors = append(errors, c.validateFraud()...)
	errors = append(errors, c.validateStorage()...)
	errors = append(errors, c.validatePorts()...)
	errors = append(errors, c.validateEnvironmentRequirements()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if !validEnvs[strings.ToLower(c.App.Environment)] {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("must be one of: development, staging, production (got: %s)", c.App.Environment),
		})
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.App.LogLevel)); err != nil || c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: fmt.Sprintf("unknown log level %q", c.App.LogLevel),
		})
	}

	if c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("must be json or console (got: %s)", c.App.LogFormat),
		})
	}

	return errors
}

func (c *Config) validateLLM() ValidationErrors {
	var errors ValidationErrors

	if c.LLM.APIKey != "" && c.LLM.Model == "" {
		errors = append(errors, ValidationError{Field: "llm.model", Message: "required when llm.api_key is set"})
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("must be between 0 and 2 (got: %.2f)", c.LLM.Temperature),
		})
	}
	if c.LLM.Timeout < 0 {
		errors = append(errors, ValidationError{Field: "llm.timeout", Message: "must not be negative"})
	}
	if c.LLM.MaxRetries < 0 {
		errors = append(errors, ValidationError{Field: "llm.max_retries", Message: "must not be negative"})
	}

	return errors
}

func (c *Config) validateAgent() ValidationErrors {
	var errors ValidationErrors

	if c.Agent.MaxSteps < 1 || c.Agent.MaxSteps > 50 {
		errors = append(errors, ValidationError{
			Field:   "agent.max_steps",
			Message: fmt.Sprintf("must be between 1 and 50 (got: %d)", c.Agent.MaxSteps),
		})
	}
	if strings.TrimSpace(c.Agent.DefaultUser) == "" {
		errors = append(errors, ValidationError{Field: "agent.default_user", Message: "must not be empty"})
	}

	return errors
}

func (c *Config) validateMarket() ValidationErrors {
	var errors ValidationErrors

	if c.Market.RiskFreeRate < 0 || c.Market.RiskFreeRate >= 1 {
		errors = append(errors, ValidationError{
			Field:   "market.risk_free_rate",
			Message: fmt.Sprintf("must be in [0, 1) (got: %.4f)", c.Market.RiskFreeRate),
		})
	}
	if c.Market.CacheTTLHours < 0 {
		errors = append(errors, ValidationError{Field: "market.cache_ttl_hours", Message: "must not be negative"})
	}
	if c.Market.HTTPTimeout < 0 {
		errors = append(errors, ValidationError{Field: "market.http_timeout", Message: "must not be negative"})
	}
	if c.Market.HistoryMonths < 1 || c.Market.HistoryMonths > 60 {
		errors = append(errors, ValidationError{
			Field:   "market.history_months",
			Message: fmt.Sprintf("must be between 1 and 60 (got: %d)", c.Market.HistoryMonths),
		})
	}

	return errors
}

func (c *Config) validateFraud() ValidationErrors {
	var errors ValidationErrors

	for _, h := range c.Fraud.OddHours {
		if h < 0 || h > 23 {
			errors = append(errors, ValidationError{
				Field:   "fraud.odd_hours",
				Message: fmt.Sprintf("hours must be between 0 and 23 (got: %d)", h),
			})
		}
	}
	if c.Fraud.LargeAmountThreshold <= 0 {
		errors = append(errors, ValidationError{
			Field:   "fraud.large_amount_threshold",
			Message: fmt.Sprintf("must be positive (got: %.2f)", c.Fraud.LargeAmountThreshold),
		})
	}

	return errors
}

func (c *Config) validateStorage() ValidationErrors {
	var errors ValidationErrors

	if u := c.Database.URL; u != "" && !strings.HasPrefix(u, "postgres://") && !strings.HasPrefix(u, "postgresql://") {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "must start with postgres:// or postgresql://",
		})
	}
	if u := c.Redis.URL; u != "" && !strings.HasPrefix(u, "redis://") && !strings.HasPrefix(u, "rediss://") {
		errors = append(errors, ValidationError{
			Field:   "redis.url",
			Message: "must start with redis:// or rediss://",
		})
	}
	if u := c.NATS.URL; u != "" && !strings.HasPrefix(u, "nats://") && !strings.HasPrefix(u, "tls://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "must start with nats:// or tls://",
		})
	}
	if c.Webhook.DedupeTTL < 0 {
		errors = append(errors, ValidationError{Field: "webhook.dedupe_ttl", Message: "must not be negative"})
	}

	return errors
}

func (c *Config) validatePorts() ValidationErrors {
	var errors ValidationErrors

	ports := []struct {
		field string
		port  int
	}{
		{"api.port", c.API.Port},
		{"metrics.port", c.Metrics.Port},
	}
	for _, p := range ports {
		if p.port < 1 || p.port > 65535 {
			errors = append(errors, ValidationError{
				Field:   p.field,
				Message: fmt.Sprintf("must be between 1 and 65535 (got: %d)", p.port),
			})
		}
	}
	if c.Metrics.Enabled && c.API.Port == c.Metrics.Port {
		errors = append(errors, ValidationError{
			Field:   "metrics.port",
			Message: fmt.Sprintf("conflicts with api.port %d", c.API.Port),
		})
	}
	if c.API.RateLimit < 0 || c.API.RateBurst < 0 {
		errors = append(errors, ValidationError{Field: "api.rate_limit", Message: "must not be negative"})
	}

	return errors
}

// validateEnvironmentRequirements applies production-only rules.
func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	var errors ValidationErrors
	if !c.App.IsProduction() {
		return errors
	}

	if c.Database.URL == "" {
		errors = append(errors, ValidationError{Field: "database.url", Message: "required in production"})
	}
	if c.Webhook.Secret == "" {
		errors = append(errors, ValidationError{Field: "webhook.secret", Message: "required in production"})
	} else if isPlaceholder(c.Webhook.Secret) {
		errors = append(errors, ValidationError{Field: "webhook.secret", Message: "appears to be a placeholder value"})
	}
	if c.App.LogFormat != "json" {
		errors = append(errors, ValidationError{Field: "app.log_format", Message: "must be json in production"})
	}

	return errors
}

var placeholders = []string{"changeme", "your_secret", "your_api_key", "example", "secret"}

func isPlaceholder(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range placeholders {
		if s == p || strings.Contains(s, p) {
			return true
		}
	}
	return false
}
