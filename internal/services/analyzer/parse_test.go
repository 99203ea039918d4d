package analyzer

import "testing"

func TestParseResultNormalizes(t *testing.T) {
	raw := `{"is_agent_call": true, "overall_score": 9, "has_warning": true,
        "warning_reasons": "rude_agent", "short_summary": "  Agent was dismissive.  ",
        "customer_sentiment": "ANGRY", "department": " Support "}`
	result := parseResult(raw)
	if result.ParseFailed {
		t.Fatalf("unexpected parse failure: %+v", result)
	}
	if result.Score != 5 {
		t.Fatalf("expected score clamped to 5, got %d", result.Score)
	}
	if len(result.WarningReasons) != 1 || result.WarningReasons[0] != "rude_agent" {
		t.Fatalf("expected string reason promoted to list, got %v", result.WarningReasons)
	}
	if result.Sentiment != "neutral" {
		t.Fatalf("expected unknown sentiment coerced to neutral, got %s", result.Sentiment)
	}
	if result.Department != "support" {
		t.Fatalf("expected lowercased department, got %q", result.Department)
	}
	if result.Summary != "Agent was dismissive." {
		t.Fatalf("unexpected summary: %q", result.Summary)
	}
}

func TestParseResultCodeFence(t *testing.T) {
	raw := "```json\n{\"overall_score\": 2, \"has_warning\": true, \"warning_reasons\": [\"customer_angry\"], \"short_summary\": \"Tense call.\", \"customer_sentiment\": \"negative\", \"department\": \"billing\"}\n```"
	result := parseResult(raw)
	if result.ParseFailed {
		t.Fatalf("unexpected parse failure: %+v", result)
	}
	if result.Score != 2 || !result.HasWarning || result.Sentiment != "negative" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !result.IsAgentCall {
		t.Fatal("is_agent_call should default to true when omitted")
	}
}

func TestParseResultStringScore(t *testing.T) {
	result := parseResult(`{"overall_score": "4", "short_summary": "Fine."}`)
	if result.Score != 4 {
		t.Fatalf("expected string score parsed, got %d", result.Score)
	}
}

func TestParseResultFallback(t *testing.T) {
	result := parseResult("the model rambled instead of emitting JSON {")
	if !result.ParseFailed {
		t.Fatal("expected parse failure")
	}
	if result.IsAgentCall {
		t.Fatal("unparseable verdicts must not count as agent calls")
	}
	if len(result.WarningReasons) != 1 || result.WarningReasons[0] != "parse_error" {
		t.Fatalf("expected parse_error tag, got %v", result.WarningReasons)
	}
}

func TestParseResultNonAgentCall(t *testing.T) {
	result := parseResult(`{"is_agent_call": false, "short_summary": "Voicemail only."}`)
	if result.ParseFailed || result.IsAgentCall {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestAudioMimeType(t *testing.T) {
	cases := map[string]string{
		"call.mp3":  "audio/mpeg",
		"call.WAV":  "audio/wav",
		"call.m4a":  "audio/mp4",
		"call.flac": "audio/flac",
		"call":      "audio/mpeg",
	}
	for path, want := range cases {
		if got := audioMimeType(path); got != want {
			t.Fatalf("audioMimeType(%q) = %q, want %q", path, got, want)
		}
	}
}
