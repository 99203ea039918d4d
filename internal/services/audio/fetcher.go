// Package audio stages call recordings on local disk, downloading them from
// the upstream recording URL when necessary.
package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"callwatch/internal/services"
)

const defaultDownloadTimeout = 5 * time.Minute

// Fetcher resolves a record's recording to a readable local file.
type Fetcher struct {
	tempDir    string
	httpClient *http.Client
}

// Option customizes the fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// NewFetcher constructs a fetcher that stages downloads under tempDir.
func NewFetcher(tempDir string, timeout time.Duration, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	fetcher := &Fetcher{
		tempDir:    tempDir,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(fetcher)
	}
	return fetcher
}

// Fetch returns a local path to the recording plus a cleanup function the
// caller must invoke once analysis finishes. A recording already on local
// disk is used in place and cleanup is a no-op.
func (f *Fetcher) Fetch(ctx context.Context, localPath, recordingURL string) (string, func(), error) {
	noop := func() {}
	if localPath = strings.TrimSpace(localPath); localPath != "" {
		if _, err := os.Stat(localPath); err == nil {
			return localPath, noop, nil
		}
	}
	recordingURL = strings.TrimSpace(recordingURL)
	if recordingURL == "" {
		return "", noop, services.Wrap(services.ErrValidation, "analysis", "fetch recording", "no recording path or url", nil)
	}
	return f.download(ctx, recordingURL)
}

func (f *Fetcher) download(ctx context.Context, recordingURL string) (string, func(), error) {
	noop := func() {}
	parsed, err := url.Parse(recordingURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", noop, services.Wrap(services.ErrValidation, "analysis", "fetch recording",
			fmt.Sprintf("invalid recording url %q", recordingURL), nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return "", noop, services.Wrap(services.ErrValidation, "analysis", "fetch recording", "build request", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", noop, services.Wrap(services.ErrTransient, "analysis", "fetch recording", "http error", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrPermanent
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			marker = services.ErrTransient
		}
		return "", noop, services.Wrap(marker, "analysis", "fetch recording",
			fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	if err := os.MkdirAll(f.tempDir, 0o755); err != nil {
		return "", noop, services.Wrap(services.ErrTransient, "analysis", "fetch recording", "create temp dir", err)
	}
	target := filepath.Join(f.tempDir, uuid.NewString()+downloadExt(parsed.Path, resp.Header.Get("Content-Type")))
	out, err := os.Create(target)
	if err != nil {
		return "", noop, services.Wrap(services.ErrTransient, "analysis", "fetch recording", "create temp file", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		_ = os.Remove(target)
		return "", noop, services.Wrap(services.ErrTransient, "analysis", "fetch recording", "write temp file", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(target)
		return "", noop, services.Wrap(services.ErrTransient, "analysis", "fetch recording", "close temp file", err)
	}

	cleanup := func() { _ = os.Remove(target) }
	return target, cleanup, nil
}

func downloadExt(urlPath, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(urlPath)); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch {
	case strings.Contains(contentType, "wav"):
		return ".wav"
	case strings.Contains(contentType, "mp4"), strings.Contains(contentType, "m4a"):
		return ".m4a"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	default:
		return ".mp3"
	}
}
