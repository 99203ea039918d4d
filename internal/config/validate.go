package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWebhook(); err != nil {
		return err
	}
	if err := c.validateAnalyzer(); err != nil {
		return err
	}
	if err := c.validateAlerts(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateWebhook() error {
	if strings.TrimSpace(c.Webhook.Bind) == "" {
		return errors.New("webhook.bind must be set")
	}
	if c.Webhook.RequireSignature && strings.TrimSpace(c.Webhook.SecretToken) == "" {
		return errors.New("webhook.secret_token is required when webhook.require_signature is true (set CALLWATCH_WEBHOOK_SECRET)")
	}
	if c.Webhook.ReplayToleranceSeconds <= 0 {
		return errors.New("webhook.replay_tolerance_seconds must be positive")
	}
	if c.Webhook.DedupTTLSeconds < c.Webhook.ReplayToleranceSeconds {
		return errors.New("webhook.dedup_ttl_seconds must cover the replay tolerance window")
	}
	return nil
}

func (c *Config) validateAnalyzer() error {
	if strings.TrimSpace(c.Analyzer.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/callwatch/config.toml"
		}
		return fmt.Errorf("analyzer.api_key is required. Set CALLWATCH_ANALYZER_API_KEY env var or edit %s", defaultPath)
	}
	if strings.TrimSpace(c.Analyzer.Model) == "" {
		return errors.New("analyzer.model must be set")
	}
	if c.Analyzer.TimeoutSeconds <= 0 {
		return errors.New("analyzer.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateAlerts() error {
	// Alerts are optional; when the API key is missing the daemon runs with a
	// noop notifier and alert sends fail visibly at the worker.
	if strings.TrimSpace(c.Alerts.APIKey) == "" {
		return nil
	}
	if strings.TrimSpace(c.Alerts.FromEmail) == "" {
		return errors.New("alerts.from_email must be set when alerts.api_key is configured")
	}
	if strings.TrimSpace(c.Alerts.ToEmail) == "" {
		return errors.New("alerts.to_email must be set when alerts.api_key is configured")
	}
	if c.Alerts.TimeoutSeconds <= 0 {
		return errors.New("alerts.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.PollIntervalSeconds <= 0 {
		return errors.New("workers.poll_interval_seconds must be positive")
	}
	if c.Workers.ErrorRetryIntervalSeconds <= 0 {
		return errors.New("workers.error_retry_interval_seconds must be positive")
	}
	if c.Workers.BatchSize <= 0 {
		return errors.New("workers.batch_size must be positive")
	}
	if c.Workers.MaxRetries < 0 {
		return errors.New("workers.max_retries must not be negative")
	}
	if c.Workers.BreakerThreshold <= 0 {
		return errors.New("workers.breaker_threshold must be positive")
	}
	if c.Workers.BreakerCooldownSeconds <= 0 {
		return errors.New("workers.breaker_cooldown_seconds must be positive")
	}
	if c.Workers.ShortCallSeconds < 0 {
		return errors.New("workers.short_call_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
