package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const signaturePrefix = "v0="

// ComputeSignature returns the hex HMAC-SHA256 of "v0:{timestamp}:{body}"
// keyed with the shared secret.
func ComputeSignature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a provided signature against the expected HMAC in
// constant time. The "v0=" prefix is accepted on either side.
func VerifySignature(secret, timestamp string, body []byte, provided string) bool {
	provided = strings.TrimSpace(provided)
	if provided == "" {
		return false
	}
	expected := ComputeSignature(secret, timestamp, body)
	candidate := strings.TrimPrefix(provided, signaturePrefix)
	return hmac.Equal([]byte(expected), []byte(candidate))
}

// ChallengeResponse computes the encrypted token for a URL-validation
// challenge: HMAC-SHA256 of the plain token keyed with the shared secret.
func ChallengeResponse(secret, plainToken string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(plainToken))
	return hex.EncodeToString(mac.Sum(nil))
}

// CheckTimestamp rejects deliveries whose timestamp falls outside the replay
// tolerance window around now. Timestamps are accepted as unix seconds or
// unix milliseconds.
func CheckTimestamp(timestamp string, now time.Time, tolerance time.Duration) error {
	raw, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("unparseable timestamp %q", timestamp)
	}
	var at time.Time
	if raw > 1e12 {
		at = time.UnixMilli(raw)
	} else {
		at = time.Unix(raw, 0)
	}
	drift := now.Sub(at)
	if drift < 0 {
		drift = -drift
	}
	if drift > tolerance {
		return fmt.Errorf("timestamp outside replay window (drift %s)", drift.Round(time.Second))
	}
	return nil
}
