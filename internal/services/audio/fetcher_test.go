package audio_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"callwatch/internal/services"
	"callwatch/internal/services/audio"
	"callwatch/internal/testsupport"
)

func TestFetchPrefersLocalPath(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "recording.mp3")
	testsupport.WriteFile(t, local, 64)

	fetcher := audio.NewFetcher(filepath.Join(dir, "tmp"), time.Second)
	path, cleanup, err := fetcher.Fetch(context.Background(), local, "https://example.com/never-hit.mp3")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer cleanup()
	if path != local {
		t.Fatalf("expected local path reused, got %s", path)
	}
	cleanup()
	if _, err := os.Stat(local); err != nil {
		t.Fatal("cleanup must not remove caller-owned recordings")
	}
}

func TestFetchDownloadsAndCleansUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer server.Close()

	dir := t.TempDir()
	fetcher := audio.NewFetcher(dir, time.Second)
	path, cleanup, err := fetcher.Fetch(context.Background(), "", server.URL+"/rec/call-1.mp3")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !strings.HasPrefix(path, dir) {
		t.Fatalf("expected download inside temp dir, got %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Fatalf("unexpected payload: %q", data)
	}

	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected cleanup to remove downloaded file")
	}
}

func TestFetchClassifiesHTTPFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	fetcher := audio.NewFetcher(t.TempDir(), time.Second)
	_, _, err := fetcher.Fetch(context.Background(), "", server.URL+"/missing.mp3")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error for 404, got %v", err)
	}
	if services.IsTransient(err) {
		t.Fatal("missing recordings must not be retried")
	}
}

func TestFetchRejectsMissingSource(t *testing.T) {
	fetcher := audio.NewFetcher(t.TempDir(), time.Second)
	_, _, err := fetcher.Fetch(context.Background(), "", "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, _, err = fetcher.Fetch(context.Background(), "", "ftp://example.com/x.mp3")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for scheme, got %v", err)
	}
}
