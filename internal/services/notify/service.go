// Package notify delivers alert emails for calls whose analysis flagged a
// warning.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"callwatch/internal/config"
	"callwatch/internal/records"
	"callwatch/internal/services"
)

const userAgent = "Callwatch-Go/0.1.0"

// Service defines the alert surface exposed to the pipeline workers.
type Service interface {
	SendCallAlert(ctx context.Context, record *records.CallRecord) error
	TestNotification(ctx context.Context) error
}

// NewService builds an alert service backed by the configured email gateway.
// When no API key is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	apiKey := strings.TrimSpace(cfg.Alerts.APIKey)
	if apiKey == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Alerts.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &emailService{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.Alerts.BaseURL), "/"),
		from:    strings.TrimSpace(cfg.Alerts.FromEmail),
		to:      strings.TrimSpace(cfg.Alerts.ToEmail),
		client:  &http.Client{Timeout: timeout},
	}
}

type emailService struct {
	apiKey  string
	baseURL string
	from    string
	to      string
	client  *http.Client
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

type emailResponse struct {
	ID string `json:"id"`
}

func (s *emailService) SendCallAlert(ctx context.Context, record *records.CallRecord) error {
	if record == nil {
		return services.Wrap(services.ErrValidation, "alert", "send", "record is nil", nil)
	}
	if s.from == "" || s.to == "" {
		return services.Wrap(services.ErrConfiguration, "alert", "send", "from and to addresses required", nil)
	}
	payload := emailRequest{
		From:    s.from,
		To:      []string{s.to},
		Subject: buildSubject(record),
		HTML:    buildHTMLBody(record),
		Text:    buildTextBody(record),
	}
	return s.post(ctx, payload)
}

func (s *emailService) TestNotification(ctx context.Context) error {
	if s.from == "" || s.to == "" {
		return services.Wrap(services.ErrConfiguration, "alert", "test", "from and to addresses required", nil)
	}
	payload := emailRequest{
		From:    s.from,
		To:      []string{s.to},
		Subject: "Callwatch - Test",
		HTML:    "<p>Alert delivery test.</p>",
		Text:    "Alert delivery test.",
	}
	return s.post(ctx, payload)
}

func (s *emailService) post(ctx context.Context, payload emailRequest) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode alert email: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "alert", "send", "http error", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode >= 300 {
		marker := services.ErrPermanent
		switch {
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= http.StatusInternalServerError:
			marker = services.ErrTransient
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			marker = services.ErrConfiguration
		}
		return services.Wrap(marker, "alert", "send",
			fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var decoded emailResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return services.Wrap(services.ErrTransient, "alert", "send", "decode gateway response", err)
	}
	if decoded.ID == "" {
		return services.Wrap(services.ErrTransient, "alert", "send", "gateway returned no message id", nil)
	}
	return nil
}

type noopService struct{}

func (noopService) SendCallAlert(context.Context, *records.CallRecord) error { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
