// Package testsupport provides helpers shared across package tests: temp-dir
// backed configs and store constructors.
package testsupport

import (
	"path/filepath"
	"testing"

	"callwatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.AudioTempDir = filepath.Join(base, "audio")
	cfg.Webhook.Bind = "127.0.0.1:0"
	cfg.Webhook.SecretToken = "test-secret"
	cfg.Analyzer.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithWebhookSecret overrides the shared webhook secret on the test config.
func WithWebhookSecret(secret string) ConfigOption {
	return func(c *config.Config) {
		c.Webhook.SecretToken = secret
	}
}

// WithAlertGateway configures the outbound email gateway on the test config.
func WithAlertGateway(baseURL, from, to string) ConfigOption {
	return func(c *config.Config) {
		c.Alerts.APIKey = "test"
		c.Alerts.BaseURL = baseURL
		c.Alerts.FromEmail = from
		c.Alerts.ToEmail = to
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
