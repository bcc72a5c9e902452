package mesh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultFetchTimeout is the per-request timeout for frame downloads.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of download attempts.
	DefaultMaxRetries = 3

	defaultBaseBackoff = 500 * time.Millisecond

	// maxFrameBytes bounds a downloaded image.
	maxFrameBytes = 64 << 20
)

// FetchOption configures FetchFrameData.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
	maxBytes    int64
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
		maxBytes:    maxFrameBytes,
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.timeout = d }
}

// WithMaxRetries sets the number of attempts. Values below 1 mean one attempt.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) { c.maxRetries = n }
}

// WithBaseBackoff sets the delay before the second attempt. Each further
// attempt doubles it.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.baseBackoff = d }
}

// WithHTTPClient replaces the default client. WithTimeout is then ignored.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) { c.client = client }
}

// WithMaxBytes bounds the accepted image size.
func WithMaxBytes(n int64) FetchOption {
	return func(c *fetchConfig) { c.maxBytes = n }
}

// permanentError marks a download failure that another attempt cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(format string, args ...interface{}) error {
	return permanentError{err: fmt.Errorf(format, args...)}
}

// FetchFrameData downloads an encoded color or depth image.
func FetchFrameData(url string, opts ...FetchOption) ([]byte, error) {
	return FetchFrameDataWithContext(context.Background(), url, opts...)
}

// FetchFrameDataWithContext downloads an encoded image, retrying network
// errors, 5xx, 408 and 429 responses with exponential backoff. Other 4xx
// statuses, empty or oversized bodies and non-image content types fail at once.
func FetchFrameDataWithContext(ctx context.Context, url string, opts ...FetchOption) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("fetch frame: URL is empty")
	}

	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	attempts := max(cfg.maxRetries, 1)
	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch frame: %w", ctx.Err())
			case <-time.After(cfg.baseBackoff << (attempt - 1)):
			}
		}

		body, err := fetchOnce(ctx, client, url, cfg.maxBytes)
		if err == nil {
			return body, nil
		}
		var perm permanentError
		if errors.As(err, &perm) || ctx.Err() != nil {
			return nil, fmt.Errorf("fetch frame: %w", err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("fetch frame: all %d attempts failed: %w", attempts, lastErr)
}

func fetchOnce(ctx context.Context, client *http.Client, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, permanent("creating request: %w", err)
	}
	req.Header.Set("Accept", "image/png, image/tiff, image/jpeg")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	default:
		return nil, permanent("GET %s: status %d", url, resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); !acceptableFrameType(ct) {
		return nil, permanent("GET %s: unexpected content type %q", url, ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	if int64(len(body)) > maxBytes {
		return nil, permanent("GET %s: image larger than %d bytes", url, maxBytes)
	}
	if len(body) == 0 {
		return nil, permanent("GET %s: empty response", url)
	}
	return body, nil
}

// acceptableFrameType accepts image types, generic binary and unlabelled
// responses.
func acceptableFrameType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "image/") || mt == "application/octet-stream"
}
