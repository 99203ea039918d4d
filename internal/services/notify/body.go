package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"callwatch/internal/records"
)

const (
	transcriptHTMLLimit = 3000
	transcriptTextLimit = 1000
	subjectReasonLimit  = 80
)

func buildSubject(record *records.CallRecord) string {
	agent := strings.TrimSpace(record.AgentName)
	if agent == "" {
		agent = "Agent"
	}
	reasons := record.WarningReasons()
	if len(reasons) == 0 {
		return fmt.Sprintf("Call Alert - %s", agent)
	}
	if len(reasons) > 3 {
		reasons = reasons[:3]
	}
	joined := strings.Join(reasons, ", ")
	if len(joined) > subjectReasonLimit {
		joined = joined[:subjectReasonLimit]
	}
	return fmt.Sprintf("Call Alert - %s - %s", agent, joined)
}

func buildHTMLBody(record *records.CallRecord) string {
	agent := html.EscapeString(record.AgentName)
	score := "N/A"
	scoreColor := "#6b7280"
	if record.OverallScore != nil {
		score = fmt.Sprintf("%d", *record.OverallScore)
		switch {
		case *record.OverallScore >= 4:
			scoreColor = "#16a34a"
		case *record.OverallScore >= 3:
			scoreColor = "#f59e0b"
		default:
			scoreColor = "#dc2626"
		}
	}
	sentiment := html.EscapeString(string(record.CustomerSentiment))
	sentimentColor := map[records.Sentiment]string{
		records.SentimentPositive: "#16a34a",
		records.SentimentNegative: "#dc2626",
	}[record.CustomerSentiment]
	if sentimentColor == "" {
		sentimentColor = "#6b7280"
	}

	var warningsHTML string
	if reasons := record.WarningReasons(); len(reasons) > 0 {
		var items strings.Builder
		for _, reason := range reasons {
			items.WriteString("<li>")
			items.WriteString(html.EscapeString(reason))
			items.WriteString("</li>")
		}
		warningsHTML = "<ul style='color:#dc2626'>" + items.String() + "</ul>"
	} else {
		warningsHTML = "<span style='color:#6b7280'>None</span>"
	}

	var transcriptHTML string
	if transcript := record.TranscriptText; transcript != "" {
		clipped, truncated := clip(transcript, transcriptHTMLLimit)
		suffix := ""
		if truncated {
			suffix = "..."
		}
		transcriptHTML = "<div class='section'><div class='section-title'>Full Transcript</div>" +
			"<div class='transcript'>" + html.EscapeString(clipped) + suffix + "</div></div>"
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<style>
body { font-family: Arial, sans-serif; background:#fafafa; }
.container { max-width:600px; margin:auto; background:white; border-radius:8px; }
.header { background:#991b1b; color:white; padding:20px; border-radius:8px 8px 0 0; }
.section { padding:15px; border-bottom:1px solid #eee; }
.section-title { font-weight:bold; margin-bottom:8px; }
.transcript { white-space:pre-wrap; background:#f3f4f6; padding:10px; border-radius:6px; }
.metric { display:inline-block; margin:4px; }
</style>
</head>
<body>
<div class="container">
<div class="header">
  <h2>Call Alert</h2>
  <p>A call requires your attention</p>
</div>
<div class="section">
  <div class="metric"><b>Agent:</b> %s</div>
  <div class="metric"><b>Score:</b> <span style="color:%s">%s/5</span></div>
  <div class="metric"><b>Sentiment:</b> <span style="color:%s">%s</span></div>
  <div class="metric"><b>Duration:</b> %s</div>
</div>
<div class="section">
  <div class="section-title">Call Details</div>
  <div><b>Customer:</b> %s</div>
  <div><b>Start:</b> %s</div>
  <div><b>End:</b> %s</div>
  <div><b>Agent ID:</b> %s</div>
</div>
<div class="section">
  <div class="section-title">Warnings</div>
  %s
</div>
<div class="section">
  <div class="section-title">Summary</div>
  <div>%s</div>
</div>
%s
</div>
</body>
</html>`,
		agent,
		scoreColor, score,
		sentimentColor, sentiment,
		formatDuration(record.DurationSecs),
		html.EscapeString(record.CustomerNumber),
		html.EscapeString(formatTime(record.StartTime)),
		html.EscapeString(formatTime(record.EndTime)),
		html.EscapeString(record.AgentID),
		warningsHTML,
		html.EscapeString(record.ShortSummary),
		transcriptHTML,
	)
}

func buildTextBody(record *records.CallRecord) string {
	agent := record.AgentName
	if agent == "" {
		agent = "Unknown"
	}
	score := "N/A"
	if record.OverallScore != nil {
		score = fmt.Sprintf("%d", *record.OverallScore)
	}
	warnings := "None"
	if reasons := record.WarningReasons(); len(reasons) > 0 {
		warnings = strings.Join(reasons, ", ")
	}
	transcript, _ := clip(record.TranscriptText, transcriptTextLimit)

	return strings.TrimSpace(fmt.Sprintf(`CALL ALERT

Agent: %s
Customer: %s
Time: %s -> %s
Score: %s/5
Sentiment: %s

Warnings:
%s

Summary:
%s

Transcript (truncated):
%s`,
		agent,
		record.CustomerNumber,
		formatTime(record.StartTime),
		formatTime(record.EndTime),
		score,
		record.CustomerSentiment,
		warnings,
		record.ShortSummary,
		transcript,
	))
}

func clip(value string, limit int) (string, bool) {
	runes := []rune(value)
	if len(runes) <= limit {
		return value, false
	}
	return string(runes[:limit]), true
}

func formatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}

func formatTime(value *time.Time) string {
	if value == nil {
		return "N/A"
	}
	return value.UTC().Format(time.RFC3339)
}
