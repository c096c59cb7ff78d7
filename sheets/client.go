package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brensch/attendance/attendance"
	"github.com/brensch/attendance/metrics"
	"github.com/cenkalti/backoff/v4"
)

// SuccessMarker is the value of "result" in a successful webhook response.
const SuccessMarker = "success"

const maxResponseBody = 1 << 20

var (
	// ErrNotConfigured is reported when no webhook URL is set.
	ErrNotConfigured = errors.New("webhook url not configured")
	// ErrNoSuccessMarker is reported for a 200 response without the success marker.
	ErrNoSuccessMarker = errors.New("webhook response missing success marker")
)

// StatusError is a non-200 webhook response.
type StatusError struct {
	Code int
	// Title is the <title> of an HTML error page, when the webhook returned one.
	Title string
}

func (e *StatusError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("webhook returned HTTP %d: %s", e.Code, e.Title)
	}
	return fmt.Sprintf("webhook returned HTTP %d", e.Code)
}

// Transient reports whether a retry could succeed.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Delivery is the outcome of posting one payload.
type Delivery struct {
	Delivered  bool   `json:"delivered"`
	Attempts   int    `json:"attempts"`
	Permanent  bool   `json:"permanent"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Summary is a short human readable description of the outcome.
func (d Delivery) Summary() string {
	switch {
	case d.Delivered:
		return fmt.Sprintf("OK (HTTP %d, %d intento(s))", d.StatusCode, d.Attempts)
	case d.Error != "":
		return fmt.Sprintf("Error: %s (%d intento(s))", d.Error, d.Attempts)
	default:
		return "Error desconocido"
	}
}

// Client posts payloads to the webhook. The zero retry policy is a single attempt.
type Client struct {
	url            string
	httpClient     *http.Client
	timeout        time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	metrics        *metrics.Manager
}

// NewClient creates a client for url. An empty url disables delivery.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:            strings.TrimSpace(url),
		httpClient:     &http.Client{},
		timeout:        10 * time.Second,
		maxAttempts:    1,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.url == "" {
		slog.Warn("webhook url not configured, attendance events will not be recorded")
	}
	return c
}

// Enabled reports whether a webhook URL is configured.
func (c *Client) Enabled() bool {
	return c.url != ""
}

// URL returns the configured webhook URL.
func (c *Client) URL() string {
	return c.url
}

// Record delivers an event and reports whether the webhook confirmed it.
// It never returns an error; every failure is logged and reported as false.
func (c *Client) Record(ctx context.Context, ev attendance.Event) bool {
	d := c.Deliver(ctx, NewPayload(ev))
	c.metrics.EventRecorded(string(ev.Action), d.Delivered)

	if d.Delivered {
		slog.Info("event recorded",
			"event", ev.ID,
			"action", ev.Action,
			"user", ev.Actor.Tag(),
			"attempts", d.Attempts)
		return true
	}
	slog.Warn("failed to record event",
		"event", ev.ID,
		"action", ev.Action,
		"user", ev.Actor.Tag(),
		"attempts", d.Attempts,
		"permanent", d.Permanent,
		"error", d.Error)
	return false
}

// Probe posts a health_check payload.
func (c *Client) Probe(ctx context.Context) Delivery {
	return c.Deliver(ctx, HealthCheckPayload(time.Now()))
}

// Deliver posts p, retrying transient failures within the configured budget.
func (c *Client) Deliver(ctx context.Context, p Payload) (d Delivery) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("webhook delivery panicked", "panic", rec)
			d.Delivered = false
			d.Error = fmt.Sprint(rec)
		}
	}()

	if !c.Enabled() {
		d.Permanent = true
		d.Error = ErrNotConfigured.Error()
		return d
	}

	body, err := json.Marshal(p)
	if err != nil {
		d.Permanent = true
		d.Error = fmt.Sprintf("failed to encode payload: %v", err)
		return d
	}

	policy := c.policy(ctx)
	operation := func() error {
		d.Attempts++
		start := time.Now()
		status, err := c.post(ctx, body)
		d.StatusCode = status

		switch {
		case err == nil:
			c.metrics.WebhookAttempt("success", time.Since(start))
			return nil
		case isTransient(err):
			c.metrics.WebhookAttempt("transient", time.Since(start))
			return err
		default:
			c.metrics.WebhookAttempt("permanent", time.Since(start))
			d.Permanent = true
			return backoff.Permanent(err)
		}
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("retrying webhook delivery",
			"attempt", d.Attempts,
			"retry_in", wait,
			"error", err)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		d.Error = err.Error()
		return d
	}
	d.Delivered = true
	return d
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = 0

	retries := 0
	if c.maxAttempts > 1 {
		retries = c.maxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// post performs one bounded attempt and returns the HTTP status, if any.
func (c *Client) post(ctx context.Context, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &transportError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, &transportError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Code: resp.StatusCode}
		if isHTML(resp.Header.Get("Content-Type"), raw) {
			statusErr.Title = htmlTitle(raw)
		}
		return resp.StatusCode, statusErr
	}

	var result struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		if isHTML(resp.Header.Get("Content-Type"), raw) {
			if title := htmlTitle(raw); title != "" {
				return resp.StatusCode, fmt.Errorf("%w: html page %q", ErrNoSuccessMarker, title)
			}
		}
		return resp.StatusCode, fmt.Errorf("%w: %v", ErrNoSuccessMarker, err)
	}
	if result.Result != SuccessMarker {
		return resp.StatusCode, fmt.Errorf("%w: result %q", ErrNoSuccessMarker, result.Result)
	}
	return resp.StatusCode, nil
}

// transportError wraps failures where no usable response was received.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	return false
}
