package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"

	"toolharvest/internal/config"
	"toolharvest/internal/logger"
	"toolharvest/pkg/utils"
)

// Loader errors.
var (
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	ErrSnapshotNotFound     = errors.New("snapshot not found")
	ErrRetriesExhausted     = errors.New("retries exhausted")
)

// Retried reports whether err comes from a loader that already applied its
// retry policy: a final status code or an exhausted retry budget.
func Retried(err error) bool {
	return errors.Is(err, ErrUnexpectedStatusCode) || errors.Is(err, ErrRetriesExhausted)
}

// HTTPLoader fetches pages over HTTP with config-driven retry logic.
type HTTPLoader struct {
	client      *resty.Client
	retryPolicy *config.RetryPolicy
	bodyLimit   int
	log         *logger.Logger
}

// NewHTTPLoader creates a loader using the given retry policy. bodyLimitKb
// caps how much of each response is kept.
func NewHTTPLoader(retryPolicy *config.RetryPolicy, userAgent string, bodyLimitKb int, log *logger.Logger) *HTTPLoader {
	if log == nil {
		log = logger.Discard()
	}

	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetTimeout(retryPolicy.GetTimeout())

	headers := map[string]string{}
	if userAgent != "" {
		headers["User-Agent"] = userAgent
	}

	for key, values := range utils.BuildHeaders(headers) {
		client.SetHeader(key, strings.Join(values, ", "))
	}

	return &HTTPLoader{
		client:      client,
		retryPolicy: retryPolicy,
		bodyLimit:   bodyLimitKb * 1024,
		log:         log.With("component", "http_loader"),
	}
}

// Client exposes the underlying resty client, mainly for tests.
func (l *HTTPLoader) Client() *resty.Client {
	return l.client
}

// Load fetches url, retrying transport errors and retryable status codes.
func (l *HTTPLoader) Load(ctx context.Context, url string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= l.retryPolicy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, l.retryPolicy.GetRetryDelay(attempt)); err != nil {
				return "", err
			}
		}

		startTime := time.Now()
		resp, err := l.client.R().SetContext(ctx).Get(url)

		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}

			lastErr = fmt.Errorf("request failed (attempt %d/%d): %w", attempt, l.retryPolicy.MaxAttempts, err)
			l.log.Debug("fetch failed", "url", url, "attempt", attempt, "error", err)

			continue
		}

		l.log.Debug("fetched", "url", url, "status", resp.StatusCode(), "duration", time.Since(startTime))

		if resp.StatusCode() != http.StatusOK {
			lastErr = fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode())

			if !isRetryableStatus(resp.StatusCode()) {
				return "", lastErr
			}

			continue
		}

		body := resp.Body()
		if l.bodyLimit > 0 && len(body) > l.bodyLimit {
			body = body[:l.bodyLimit]
		}

		return string(body), nil
	}

	return "", fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// isRetryableStatus determines if we should retry based on HTTP status code.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests,
		http.StatusRequestTimeout:
		return true
	}

	return false
}

// DirLoader replays pages saved as <dir>/<last path segment>.html. The site
// root maps to index.html.
type DirLoader struct {
	Dir string
}

// Load reads the snapshot saved for url.
func (l DirLoader) Load(ctx context.Context, rawURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	file := filepath.Join(l.Dir, SnapshotName(rawURL))

	content, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrSnapshotNotFound, file)
		}

		return "", fmt.Errorf("failed to read snapshot %s: %w", file, err)
	}

	return string(content), nil
}

// SnapshotName is the file name DirLoader uses for rawURL.
func SnapshotName(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}

	name := path.Base(strings.TrimRight(p, "/"))
	if name == "" || name == "." || name == "/" {
		name = "index"
	}

	return name + ".html"
}
