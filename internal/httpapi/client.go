// Package httpapi is the HTTP transport shared by backend adapters:
// bearer auth injection, per-adapter timeout and rate limiting, and
// classification of HTTP failures into the unified error taxonomy.
//
// The client performs no automatic retries. The single recovery step
// the system allows — one token refresh on detected expiry — belongs
// to the session layer, not the transport.
package httpapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/skymux/skymux-go/internal/cloud"
)

// defaultTimeout bounds any single backend call. On timeout the
// operation fails with cloud.ErrTransport — callers treat timeouts and
// network faults identically, so there is no distinct timeout kind.
const defaultTimeout = 30 * time.Second

// defaultRateLimit caps request throughput per adapter instance so a
// burst of UI-driven operations cannot trip backend throttling.
const (
	defaultRateLimit = rate.Limit(10) // requests per second
	defaultRateBurst = 10
)

// ClassifyFunc maps a non-2xx response to a taxonomy sentinel.
// Adapters override the default for backend-specific status quirks
// (e.g. Dropbox reports conflicts under 409 with an error_summary,
// OneDrive-style APIs use 507 for quota).
type ClassifyFunc func(statusCode int, body []byte) error

// Client executes requests against one backend API on behalf of one
// adapter. Construct with New; zero value is not usable.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	classify   ClassifyFunc
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client (tests inject
// httptest servers this way).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClassifier overrides the default status classification.
func WithClassifier(f ClassifyFunc) Option {
	return func(c *Client) { c.classify = f }
}

// WithRateLimit replaces the default request rate limit.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(limit, burst) }
}

// New creates a client rooted at baseURL.
func New(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(defaultRateLimit, defaultRateBurst),
		classify:   ClassifyDefault,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Request describes one backend call.
type Request struct {
	Method      string
	Path        string // appended to the client base URL
	Body        io.Reader
	ContentType string // defaults to application/json when Body is set
	AccessToken string
	Header      http.Header // optional extra headers
}

// Do executes the request and returns the response for 2xx statuses.
// Non-2xx statuses are read, closed, and classified; network faults
// and timeouts come back as cloud.ErrTransport. The caller closes the
// response body on success.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("httpapi: rate limit wait: %w", cloud.ErrTransport)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, req.Body)
	if err != nil {
		return nil, fmt.Errorf("httpapi: building request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)

	if req.Body != nil {
		ct := req.ContentType
		if ct == "" {
			ct = "application/json"
		}

		httpReq.Header.Set("Content-Type", ct)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("request failed",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("httpapi: %s %s: %v: %w", req.Method, req.Path, err, cloud.ErrTransport)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	sentinel := c.classify(resp.StatusCode, errBody)

	c.logger.Warn("backend error",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
	)

	return nil, &StatusError{
		StatusCode: resp.StatusCode,
		Body:       string(errBody),
		Err:        sentinel,
	}
}

// maxErrorBodyBytes bounds how much of an error response is retained.
const maxErrorBodyBytes = 8 << 10

// StatusError carries the backend's status code and error body along
// with the taxonomy sentinel for errors.Is checks.
type StatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpapi: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// ClassifyDefault is the baseline status mapping shared by adapters.
func ClassifyDefault(code int, _ []byte) error {
	switch code {
	case http.StatusUnauthorized:
		return cloud.ErrUnauthorized
	case http.StatusNotFound, http.StatusGone:
		return cloud.ErrNotFound
	case http.StatusConflict:
		return cloud.ErrNameConflict
	case http.StatusInsufficientStorage:
		return cloud.ErrQuotaExceeded
	default:
		// Throttling, timeouts, and server faults all surface as
		// transport failures: safe for the caller to retry.
		return cloud.ErrTransport
	}
}
