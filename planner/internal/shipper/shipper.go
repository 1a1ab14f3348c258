package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/obsidianstack/repairstack/pkg/compute"
)

const (
	backoffInitial     = 1 * time.Second
	backoffMax         = 60 * time.Second
	backoffMultiplier  = 2.0
	sendTimeout        = 30 * time.Second
	defaultMaxAttempts = 4
	maxResponseBytes   = 8 << 20
)

// Evaluation kinds, matching the server's POST endpoints.
const (
	KindAvailability = "availability"
	KindOptimize     = "optimize"
	KindEvaluate     = "evaluate"
)

// Client ships scenarios to kofn-server's REST API and returns the records
// the server produced. Transient failures are retried with truncated
// exponential backoff; rejected requests are not.
type Client struct {
	endpoint    string
	header, key string
	http        *http.Client
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error // injectable for tests
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key in header on every request. An empty key sends nothing.
func WithAPIKey(header, key string) Option {
	return func(c *Client) {
		if header == "" {
			header = "x-api-key"
		}
		c.header, c.key = header, key
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMaxAttempts bounds the number of sends per Ship call (minimum 1).
func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = max(n, 1) }
}

// New creates a Client for the server at endpoint, e.g. "http://localhost:8080".
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		http:        &http.Client{Timeout: sendTimeout},
		maxAttempts: defaultMaxAttempts,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned HTTP %d: %s", e.Code, e.Message)
}

// Unwrap maps the status onto the evaluation errors the server derived it
// from, so callers can test with errors.Is as for a local evaluation.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest:
		return compute.ErrInvalidParameter
	case http.StatusUnprocessableEntity:
		return compute.ErrDegenerateModel
	}
	return nil
}

// Ship posts req to the endpoint for kind and returns the stored record.
func (c *Client) Ship(ctx context.Context, kind string, req Request) (*Record, error) {
	switch kind {
	case KindAvailability, KindOptimize, KindEvaluate:
	default:
		return nil, fmt.Errorf("shipper: unknown kind %q", kind)
	}
	if u, err := url.Parse(c.endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("shipper: invalid server endpoint %q", c.endpoint)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("shipper: encode request: %w", err)
	}

	bo := newBackoff()
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		rec, err := c.send(ctx, kind, body)
		if err == nil {
			slog.Debug("shipper: record received", "id", rec.ID, "kind", kind, "attempt", attempt)
			return rec, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isPermanentError(err) {
			return nil, fmt.Errorf("shipper: %w", err)
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}

		wait := bo.next()
		slog.Warn("shipper: send failed, will retry",
			"endpoint", c.endpoint,
			"kind", kind,
			"attempt", attempt,
			"err", err,
			"retry_in", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("shipper: giving up after %d attempts: %w", c.maxAttempts, lastErr)
}

// send performs one POST.
func (c *Client) send(ctx context.Context, kind string, body []byte) (*Record, error) {
	target := c.endpoint + "/api/v1/" + kind
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set(c.header, c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return nil, &StatusError{Code: resp.StatusCode, Message: msg}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

// isPermanentError returns true for failures that retrying cannot fix: the
// server rejected the request itself or the caller's credentials.
func isPermanentError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch {
	case se.Code == http.StatusTooManyRequests, se.Code == http.StatusRequestTimeout:
		return false
	case se.Code >= 400 && se.Code < 500:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	// Advance for next call.
	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}
