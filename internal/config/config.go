package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for daemon state.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	LogDir       string `toml:"log_dir"`
	AudioTempDir string `toml:"audio_temp_dir"`
}

// Webhook contains settings for the inbound recording-event endpoint.
type Webhook struct {
	Bind                   string `toml:"bind"`
	SecretToken            string `toml:"secret_token"`
	RequireSignature       bool   `toml:"require_signature"`
	ReplayToleranceSeconds int    `toml:"replay_tolerance_seconds"`
	DedupTTLSeconds        int    `toml:"dedup_ttl_seconds"`
}

// Analyzer contains connection settings for the call-analysis model API.
type Analyzer struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Prompt         string `toml:"prompt"`
}

// Alerts contains settings for the outbound email alert gateway.
type Alerts struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	FromEmail      string `toml:"from_email"`
	ToEmail        string `toml:"to_email"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Workers contains polling-loop timing and failure-handling thresholds.
type Workers struct {
	PollIntervalSeconds       int `toml:"poll_interval_seconds"`
	ErrorRetryIntervalSeconds int `toml:"error_retry_interval_seconds"`
	BatchSize                 int `toml:"batch_size"`
	MaxRetries                int `toml:"max_retries"`
	BreakerThreshold          int `toml:"breaker_threshold"`
	BreakerCooldownSeconds    int `toml:"breaker_cooldown_seconds"`
	ShortCallSeconds          int `toml:"short_call_seconds"`
	DownloadTimeoutSeconds    int `toml:"download_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for callwatch.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Webhook: inbound event endpoint, signature enforcement, replay/dedup windows
//   - Analyzer: call-analysis model API connection
//   - Alerts: outbound email gateway for warning alerts
//   - Workers: polling intervals, batch sizing, retry and breaker thresholds
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Webhook  Webhook  `toml:"webhook"`
	Analyzer Analyzer `toml:"analyzer"`
	Alerts   Alerts   `toml:"alerts"`
	Workers  Workers  `toml:"workers"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/callwatch/config.toml")
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. Secrets may also be
// supplied through the environment (a .env file is honoured when present); env
// values win over file values. The returned config has all path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// applyEnvOverrides layers environment-provided secrets over file values.
func (c *Config) applyEnvOverrides() {
	_ = godotenv.Load()

	if v := strings.TrimSpace(os.Getenv("CALLWATCH_WEBHOOK_SECRET")); v != "" {
		c.Webhook.SecretToken = v
	}
	if v := strings.TrimSpace(os.Getenv("CALLWATCH_ANALYZER_API_KEY")); v != "" {
		c.Analyzer.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("CALLWATCH_ALERT_API_KEY")); v != "" {
		c.Alerts.APIKey = v
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("callwatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.AudioTempDir, err = expandPath(c.Paths.AudioTempDir); err != nil {
		return err
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.AudioTempDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the call-record database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "records.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
