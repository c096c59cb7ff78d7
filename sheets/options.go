package sheets

import (
	"net/http"
	"time"

	"github.com/brensch/attendance/metrics"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetry allows up to maxAttempts attempts with exponential backoff between
// initial and max. Only transient failures are retried.
func WithRetry(maxAttempts int, initial, max time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if initial > 0 {
			c.initialBackoff = initial
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithMetrics records attempts and outcomes on m.
func WithMetrics(m *metrics.Manager) Option {
	return func(c *Client) {
		c.metrics = m
	}
}
