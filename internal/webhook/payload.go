package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"callwatch/internal/records"
)

const (
	eventRecordingCompleted = "recording.completed"
	eventURLValidation      = "endpoint.url_validation"
)

// envelope is the outer shape every provider event shares.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type validationPayload struct {
	PlainToken string `json:"plainToken"`
}

type recordingPayload struct {
	Object recordingObject `json:"object"`
}

type recordingObject struct {
	CallID        string         `json:"call_id"`
	ID            string         `json:"id"`
	DownloadURL   string         `json:"download_url"`
	RecordingFile *recordingFile `json:"recording_file"`
	Callee        *callParty     `json:"callee"`
	Caller        *callParty     `json:"caller"`
	DateTime      string         `json:"date_time"`
	StartTime     string         `json:"start_time"`
	EndTime       string         `json:"end_time"`
	Duration      int            `json:"duration"`
}

type recordingFile struct {
	DownloadURL string `json:"download_url"`
}

type callParty struct {
	Name            string `json:"name"`
	ExtensionNumber string `json:"extension_number"`
	PhoneNumber     string `json:"phone_number"`
}

// extractCallParams maps a recording-completed payload onto insert parameters.
// Providers are inconsistent about which field carries each value, so every
// field has a fallback chain; a missing call ID gets a generated one so the
// event is still recorded.
func extractCallParams(raw json.RawMessage) (records.NewCallParams, error) {
	var payload recordingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return records.NewCallParams{}, fmt.Errorf("decode recording payload: %w", err)
	}
	obj := payload.Object

	callID := strings.TrimSpace(obj.CallID)
	if callID == "" {
		callID = strings.TrimSpace(obj.ID)
	}
	if callID == "" {
		callID = "generated-" + uuid.NewString()
	}

	recordingURL := strings.TrimSpace(obj.DownloadURL)
	if recordingURL == "" && obj.RecordingFile != nil {
		recordingURL = strings.TrimSpace(obj.RecordingFile.DownloadURL)
	}

	params := records.NewCallParams{
		CallID:       callID,
		RecordingURL: recordingURL,
		DurationSecs: obj.Duration,
	}
	if obj.Callee != nil {
		params.AgentName = strings.TrimSpace(obj.Callee.Name)
		params.AgentID = strings.TrimSpace(obj.Callee.ExtensionNumber)
	}
	if obj.Caller != nil {
		params.CustomerNumber = strings.TrimSpace(obj.Caller.PhoneNumber)
		if params.CustomerNumber == "" {
			params.CustomerNumber = strings.TrimSpace(obj.Caller.Name)
		}
	}
	if start := parseEventTime(obj.DateTime, obj.StartTime); start != nil {
		params.StartTime = start
	}
	if end := parseEventTime(obj.EndTime); end != nil {
		params.EndTime = end
	}
	return params, nil
}

func parseEventTime(candidates ...string) *time.Time {
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z"}
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		for _, layout := range layouts {
			if parsed, err := time.Parse(layout, candidate); err == nil {
				return &parsed
			}
		}
	}
	return nil
}
