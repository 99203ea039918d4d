package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"callwatch/internal/config"
	"callwatch/internal/records"
	"callwatch/internal/testsupport"
	"callwatch/internal/webhook"
)

type serverFixture struct {
	baseURL string
	secret  string
	store   *records.Store
}

func newServerFixture(t *testing.T, opts ...testsupport.ConfigOption) *serverFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)

	srv, err := webhook.NewServer(cfg, store, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		srv.Stop()
	})
	return &serverFixture{
		baseURL: "http://" + srv.Addr(),
		secret:  cfg.Webhook.SecretToken,
		store:   store,
	}
}

func (f *serverFixture) postSigned(t *testing.T, body string) *http.Response {
	t.Helper()
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	return f.post(t, body, timestamp, webhook.ComputeSignature(f.secret, timestamp, []byte(body)))
}

func (f *serverFixture) post(t *testing.T, body, timestamp, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.baseURL+"/webhook/recordings", strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if timestamp != "" {
		req.Header.Set("X-Webhook-Timestamp", timestamp)
	}
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode response %q: %v", data, err)
	}
	return payload
}

func recordingEvent(callID string) string {
	return fmt.Sprintf(`{
		"event": "recording.completed",
		"payload": {
			"object": {
				"call_id": %q,
				"download_url": "https://recordings.example.com/%s.mp3",
				"callee": {"name": "Dana Reeve", "extension_number": "104"},
				"caller": {"phone_number": "+15551230000"},
				"date_time": "2026-08-30T09:15:00Z",
				"duration": 214
			}
		}
	}`, callID, callID)
}

func TestServerRecordsCall(t *testing.T) {
	fixture := newServerFixture(t)

	resp := fixture.postSigned(t, recordingEvent("rec-1001"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	payload := decodeBody(t, resp)
	if payload["status"] != "success" {
		t.Fatalf("status field = %v, want success", payload["status"])
	}

	record, err := fixture.store.FindByCallID(context.Background(), "rec-1001")
	if err != nil {
		t.Fatalf("FindByCallID: %v", err)
	}
	if record == nil {
		t.Fatal("expected record to be persisted")
	}
	if record.AgentName != "Dana Reeve" || record.AgentID != "104" {
		t.Fatalf("agent = %q/%q", record.AgentName, record.AgentID)
	}
	if record.CustomerNumber != "+15551230000" {
		t.Fatalf("customer number = %q", record.CustomerNumber)
	}
	if record.DurationSecs != 214 {
		t.Fatalf("duration = %d", record.DurationSecs)
	}
	if record.RecordingURL == "" || record.StartTime == nil {
		t.Fatalf("expected recording URL and start time, got %q %v", record.RecordingURL, record.StartTime)
	}
	if record.AnalysisStatus != records.StatusPending {
		t.Fatalf("analysis status = %s", record.AnalysisStatus)
	}
}

func TestServerSkipsKnownCall(t *testing.T) {
	fixture := newServerFixture(t)

	if resp := fixture.postSigned(t, recordingEvent("rec-2002")); resp.StatusCode != http.StatusOK {
		t.Fatalf("first delivery status = %d", resp.StatusCode)
	}

	// A later delivery for the same call carries a different body, so it
	// passes dedup and lands on the unique call_id constraint instead.
	second := fmt.Sprintf(`{"event":"recording.completed","payload":{"object":{"call_id":%q,"duration":5}}}`, "rec-2002")
	resp := fixture.postSigned(t, second)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second delivery status = %d", resp.StatusCode)
	}
	payload := decodeBody(t, resp)
	if payload["status"] != "skipped" {
		t.Fatalf("status field = %v, want skipped", payload["status"])
	}
}

func TestServerDeduplicatesRetriedDelivery(t *testing.T) {
	fixture := newServerFixture(t)

	body := recordingEvent("rec-3003")
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	signature := webhook.ComputeSignature(fixture.secret, timestamp, []byte(body))

	if resp := fixture.post(t, body, timestamp, signature); resp.StatusCode != http.StatusOK {
		t.Fatalf("first delivery status = %d", resp.StatusCode)
	}
	resp := fixture.post(t, body, timestamp, signature)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retried delivery status = %d", resp.StatusCode)
	}
	if payload := decodeBody(t, resp); payload["status"] != "duplicate" {
		t.Fatalf("status field = %v, want duplicate", payload["status"])
	}
}

func TestServerForgetsDeliveryWhenStoreFails(t *testing.T) {
	fixture := newServerFixture(t)

	body := recordingEvent("rec-3500")
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	signature := webhook.ComputeSignature(fixture.secret, timestamp, []byte(body))

	// With the store gone the insert fails and the provider gets a 500,
	// which it answers by redelivering the exact same event.
	fixture.store.Close()
	if resp := fixture.post(t, body, timestamp, signature); resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("failed delivery status = %d, want 500", resp.StatusCode)
	}

	// The redelivery must reach the store again rather than being answered
	// as a duplicate with no side effects.
	resp := fixture.post(t, body, timestamp, signature)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("redelivery status = %d, want 500", resp.StatusCode)
	}
	if payload := decodeBody(t, resp); payload["status"] == "duplicate" {
		t.Fatal("failed delivery must not be remembered as a duplicate")
	}
}

func TestServerRejectsBadSignature(t *testing.T) {
	fixture := newServerFixture(t)

	body := recordingEvent("rec-4004")
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	resp := fixture.post(t, body, timestamp, webhook.ComputeSignature("wrong-secret", timestamp, []byte(body)))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	record, err := fixture.store.FindByCallID(context.Background(), "rec-4004")
	if err != nil {
		t.Fatalf("FindByCallID: %v", err)
	}
	if record != nil {
		t.Fatal("unsigned delivery must not be persisted")
	}
}

func TestServerRejectsStaleTimestamp(t *testing.T) {
	fixture := newServerFixture(t)

	body := recordingEvent("rec-5005")
	timestamp := fmt.Sprintf("%d", time.Now().Add(-time.Hour).Unix())
	resp := fixture.post(t, body, timestamp, webhook.ComputeSignature(fixture.secret, timestamp, []byte(body)))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestServerAllowsUnsignedWhenNotEnforced(t *testing.T) {
	fixture := newServerFixture(t, func(c *config.Config) {
		c.Webhook.RequireSignature = false
	})

	resp := fixture.post(t, recordingEvent("rec-6006"), "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if payload := decodeBody(t, resp); payload["status"] != "success" {
		t.Fatalf("status field = %v, want success", payload["status"])
	}
}

func TestServerAnswersValidationChallenge(t *testing.T) {
	fixture := newServerFixture(t)

	// Validation is answered without signature headers.
	resp := fixture.post(t, `{"event":"endpoint.url_validation","payload":{"plainToken":"abc123"}}`, "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	payload := decodeBody(t, resp)
	if payload["plainToken"] != "abc123" {
		t.Fatalf("plainToken = %v", payload["plainToken"])
	}
	if payload["encryptedToken"] != webhook.ChallengeResponse(fixture.secret, "abc123") {
		t.Fatalf("encryptedToken mismatch: %v", payload["encryptedToken"])
	}
}

func TestServerIgnoresUnknownEvents(t *testing.T) {
	fixture := newServerFixture(t)

	resp := fixture.postSigned(t, `{"event":"recording.paused","payload":{}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	payload := decodeBody(t, resp)
	if payload["status"] != "ignored" || payload["event"] != "recording.paused" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestServerRejectsMalformedJSON(t *testing.T) {
	fixture := newServerFixture(t)

	body := `{"event": "recording.completed",`
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	resp := fixture.post(t, body, timestamp, webhook.ComputeSignature(fixture.secret, timestamp, []byte(body)))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServerGeneratesCallIDWhenMissing(t *testing.T) {
	fixture := newServerFixture(t)

	resp := fixture.postSigned(t, `{"event":"recording.completed","payload":{"object":{"download_url":"https://recordings.example.com/x.mp3","duration":30}}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	payload := decodeBody(t, resp)
	callID, _ := payload["call_id"].(string)
	if !strings.HasPrefix(callID, "generated-") {
		t.Fatalf("call_id = %q, want generated prefix", callID)
	}
}

func TestServerHealthEndpoint(t *testing.T) {
	fixture := newServerFixture(t)
	testsupport.NewCall(t, fixture.store)
	testsupport.NewCall(t, fixture.store)

	resp, err := http.Get(fixture.baseURL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var payload struct {
		Status  string         `json:"status"`
		Records map[string]int `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("health status = %q", payload.Status)
	}
	if payload.Records["total"] != 2 || payload.Records["analysis_pending"] != 2 {
		t.Fatalf("health counts = %v", payload.Records)
	}
}

func TestServerConfigEndpointRedactsSecret(t *testing.T) {
	fixture := newServerFixture(t)

	resp, err := http.Get(fixture.baseURL + "/config")
	if err != nil {
		t.Fatalf("GET /config: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if bytes.Contains(data, []byte(fixture.secret)) {
		t.Fatalf("config response leaks the secret: %s", data)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if payload["secret_configured"] != true {
		t.Fatalf("secret_configured = %v", payload["secret_configured"])
	}
}
