package transfer

import (
	"net/http"
	"time"
)

// SimulatedOption applies a configuration option to Simulated.
type SimulatedOption func(*Simulated)

// WithLatencyRange sets the simulated confirmation latency.
func WithLatencyRange(minLatency, maxLatency time.Duration) SimulatedOption {
	return func(s *Simulated) {
		if minLatency > 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithFailAfter makes every transfer after the first n fail.
func WithFailAfter(n int) SimulatedOption {
	return func(s *Simulated) {
		if n >= 0 {
			s.failAfter = n
		}
	}
}

// HTTPOption applies a configuration option to HTTPClient.
type HTTPOption func(*HTTPClient)

// WithAuthToken sets the bearer token sent to the signer.
func WithAuthToken(token string) HTTPOption {
	return func(c *HTTPClient) {
		c.authToken = token
	}
}

// WithTimeout bounds a single transfer call.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithIdempotencyKeys replaces the generator for the Idempotency-Key header.
func WithIdempotencyKeys(fn func() string) HTTPOption {
	return func(c *HTTPClient) {
		if fn != nil {
			c.newKey = fn
		}
	}
}
