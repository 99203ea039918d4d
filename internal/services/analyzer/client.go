// Package analyzer talks to the Gemini generateContent API to score call
// recordings and transcripts.
package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"callwatch/internal/services"
)

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel       = "gemini-2.0-flash"
	defaultHTTPTimeout = 120 * time.Second
	maxInlineAudio     = 19 * 1024 * 1024
)

// Config captures the runtime settings required to talk to the model API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	Prompt         string
}

// Client wraps the Gemini generateContent API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs an analyzer client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
			Prompt:         strings.TrimSpace(cfg.Prompt),
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.Model == "" {
		client.cfg.Model = defaultModel
	}
	if client.cfg.Prompt == "" {
		client.cfg.Prompt = DefaultPrompt
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// AnalyzeAudio sends the recording at path to the model in a single request
// and returns the normalized verdict.
func (c *Client) AnalyzeAudio(ctx context.Context, path, agentName string) (Result, error) {
	var empty Result
	if c.cfg.APIKey == "" {
		return empty, services.Wrap(services.ErrConfiguration, "analysis", "analyze audio", "api key required", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return empty, services.Wrap(services.ErrNotFound, "analysis", "analyze audio", "read recording", err)
	}
	if len(data) > maxInlineAudio {
		return empty, services.Wrap(services.ErrPermanent, "analysis", "analyze audio",
			fmt.Sprintf("recording too large (%d bytes)", len(data)), nil)
	}

	parts := []requestPart{
		{Text: c.buildAudioPrompt(agentName)},
		{InlineData: &inlineData{
			MimeType: audioMimeType(path),
			Data:     base64.StdEncoding.EncodeToString(data),
		}},
	}
	raw, err := c.generate(ctx, parts)
	if err != nil {
		return empty, err
	}
	return parseResult(raw), nil
}

// AnalyzeTranscript evaluates a text transcript when no recording is
// available.
func (c *Client) AnalyzeTranscript(ctx context.Context, transcript, agentName string) (Result, error) {
	var empty Result
	if c.cfg.APIKey == "" {
		return empty, services.Wrap(services.ErrConfiguration, "analysis", "analyze transcript", "api key required", nil)
	}
	if len(strings.TrimSpace(transcript)) < 10 {
		return empty, services.Wrap(services.ErrValidation, "analysis", "analyze transcript", "transcript too short", nil)
	}
	parts := []requestPart{{Text: c.buildTextPrompt(transcript, agentName)}}
	raw, err := c.generate(ctx, parts)
	if err != nil {
		return empty, err
	}
	return parseResult(raw), nil
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "analysis", "health", "api key required", nil)
	}
	raw, err := c.generate(ctx, []requestPart{{Text: "Respond with {\"ok\":true}"}})
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := decodeModelJSON(raw, &parsed); err != nil {
		return fmt.Errorf("analyzer health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("analyzer health: unexpected response")
	}
	return nil
}

func (c *Client) buildAudioPrompt(agentName string) string {
	var b strings.Builder
	b.WriteString(c.cfg.Prompt)
	if agentName != "" {
		b.WriteString("\n\nAgent Name: ")
		b.WriteString(agentName)
	}
	b.WriteString("\n\nListen to the audio recording above and provide your analysis as JSON.")
	return b.String()
}

func (c *Client) buildTextPrompt(transcript, agentName string) string {
	var b strings.Builder
	b.WriteString(c.cfg.Prompt)
	if agentName != "" {
		b.WriteString("\n\nAgent: ")
		b.WriteString(agentName)
	}
	b.WriteString("\n\n=== CALL TRANSCRIPT ===\n")
	b.WriteString(transcript)
	b.WriteString("\n=== END TRANSCRIPT ===")
	return b.String()
}

type generateRequest struct {
	Contents         []requestContent `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) generate(ctx context.Context, parts []requestPart) (string, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "models", c.cfg.Model+":generateContent")
	if err != nil {
		return "", fmt.Errorf("analyzer request: build url: %w", err)
	}
	payload := generateRequest{
		Contents: []requestContent{{Parts: parts}},
		GenerationConfig: generationConfig{
			Temperature:      0.1,
			MaxOutputTokens:  4096,
			ResponseMimeType: "application/json",
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("analyzer request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("analyzer request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "analysis", "model request", "http error", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "analysis", "model request", "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrPermanent
		switch {
		case resp.StatusCode == http.StatusRequestTimeout,
			resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode >= http.StatusInternalServerError:
			marker = services.ErrTransient
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			marker = services.ErrConfiguration
		}
		return "", services.Wrap(marker, "analysis", "model request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, summarizeSnippet(string(body))), nil)
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", services.Wrap(services.ErrTransient, "analysis", "model request", "decode response", err)
	}
	if decoded.Error != nil {
		return "", services.Wrap(services.ErrTransient, "analysis", "model request",
			fmt.Sprintf("api error: %s", strings.TrimSpace(decoded.Error.Message)), nil)
	}
	for _, candidate := range decoded.Candidates {
		for _, part := range candidate.Content.Parts {
			if text := strings.TrimSpace(part.Text); text != "" {
				return text, nil
			}
		}
	}
	return "", services.Wrap(services.ErrTransient, "analysis", "model request", "empty candidates", nil)
}

func audioMimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	default:
		return "audio/mpeg"
	}
}
