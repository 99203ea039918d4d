package config

const (
	defaultDataDir      = "~/.local/share/callwatch"
	defaultLogDir       = "~/.local/share/callwatch/logs"
	defaultAudioTempDir = "~/.local/share/callwatch/audio"

	defaultWebhookBind         = "127.0.0.1:8484"
	defaultReplayToleranceSecs = 300
	defaultDedupTTLSecs        = 900
	defaultAnalyzerBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultAnalyzerModel       = "gemini-2.0-flash"
	defaultAnalyzerTimeoutSecs = 120
	defaultAlertBaseURL        = "https://api.resend.com"
	defaultAlertTimeoutSecs    = 15
	defaultPollIntervalSecs    = 15
	defaultErrorRetrySecs      = 10
	defaultBatchSize           = 5
	defaultMaxRetries          = 3
	defaultBreakerThreshold    = 5
	defaultBreakerCooldownSecs = 60
	defaultShortCallSecs       = 10
	defaultDownloadTimeoutSecs = 300
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			LogDir:       defaultLogDir,
			AudioTempDir: defaultAudioTempDir,
		},
		Webhook: Webhook{
			Bind:                   defaultWebhookBind,
			RequireSignature:       true,
			ReplayToleranceSeconds: defaultReplayToleranceSecs,
			DedupTTLSeconds:        defaultDedupTTLSecs,
		},
		Analyzer: Analyzer{
			BaseURL:        defaultAnalyzerBaseURL,
			Model:          defaultAnalyzerModel,
			TimeoutSeconds: defaultAnalyzerTimeoutSecs,
		},
		Alerts: Alerts{
			BaseURL:        defaultAlertBaseURL,
			TimeoutSeconds: defaultAlertTimeoutSecs,
		},
		Workers: Workers{
			PollIntervalSeconds:       defaultPollIntervalSecs,
			ErrorRetryIntervalSeconds: defaultErrorRetrySecs,
			BatchSize:                 defaultBatchSize,
			MaxRetries:                defaultMaxRetries,
			BreakerThreshold:          defaultBreakerThreshold,
			BreakerCooldownSeconds:    defaultBreakerCooldownSecs,
			ShortCallSeconds:          defaultShortCallSecs,
			DownloadTimeoutSeconds:    defaultDownloadTimeoutSecs,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
