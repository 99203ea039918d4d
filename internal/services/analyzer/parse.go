package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Result is the normalized verdict for one call.
//
// ParseFailed marks a response the model produced but we could not decode;
// callers treat those calls as unanalyzable rather than retrying, since the
// model already consumed the audio once.
type Result struct {
	IsAgentCall    bool
	Score          int
	HasWarning     bool
	WarningReasons []string
	Summary        string
	Sentiment      string
	Department     string
	ParseFailed    bool
	Raw            string
}

const maxSummaryLen = 500

type rawResult struct {
	IsAgentCall       *bool           `json:"is_agent_call"`
	OverallScore      json.RawMessage `json:"overall_score"`
	HasWarning        bool            `json:"has_warning"`
	WarningReasons    json.RawMessage `json:"warning_reasons"`
	ShortSummary      string          `json:"short_summary"`
	CustomerSentiment string          `json:"customer_sentiment"`
	Department        string          `json:"department"`
}

func parseResult(raw string) Result {
	var decoded rawResult
	if err := decodeModelJSON(raw, &decoded); err != nil {
		return Result{
			IsAgentCall:    false,
			WarningReasons: []string{"parse_error"},
			Summary:        "Analysis could not be parsed. Please review manually.",
			Sentiment:      "neutral",
			Department:     "unknown",
			ParseFailed:    true,
			Raw:            raw,
		}
	}

	result := Result{
		IsAgentCall: true,
		Score:       clampScore(parseScore(decoded.OverallScore)),
		HasWarning:  decoded.HasWarning,
		Summary:     truncate(strings.TrimSpace(decoded.ShortSummary), maxSummaryLen),
		Sentiment:   coerceSentiment(decoded.CustomerSentiment),
		Department:  strings.ToLower(strings.TrimSpace(decoded.Department)),
		Raw:         raw,
	}
	if decoded.IsAgentCall != nil {
		result.IsAgentCall = *decoded.IsAgentCall
	}
	result.WarningReasons = parseReasons(decoded.WarningReasons)
	if result.Summary == "" {
		result.Summary = "No summary available."
	}
	if result.Department == "" {
		result.Department = "unknown"
	}
	return result
}

func parseScore(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 3
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return int(number)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if parsed, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
			return parsed
		}
	}
	return 3
}

func clampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 5 {
		return 5
	}
	return score
}

func parseReasons(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}

func coerceSentiment(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "positive":
		return "positive"
	case "negative":
		return "negative"
	default:
		return "neutral"
	}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

// decodeModelJSON decodes JSON from a model response, handling common
// formatting quirks like code fences and surrounding prose.
func decodeModelJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}

	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}

	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return fmt.Errorf("%w (payload snippet: %s)", directErr, summarizeSnippet(trimmed))
	}

	sanitizedErr := json.Unmarshal([]byte(sanitized), target)
	if sanitizedErr == nil {
		return nil
	}
	return fmt.Errorf("%w (sanitized payload snippet: %s)", sanitizedErr, summarizeSnippet(sanitized))
}

func sanitizeJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFenceBlock(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFenceBlock(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3:]
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
		body = strings.TrimLeft(body, " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func summarizeSnippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	replacer := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")
	clean := replacer.Replace(trimmed)
	clean = strings.Join(strings.Fields(clean), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
