package profile

import (
	"net/http"
	"time"

	"github.com/okian/boostcalc/pkg/logger"
)

// Option applies a configuration option to the HTTPFetcher.
type Option func(*HTTPFetcher)

// WithTimeout bounds each outbound request.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithRateLimit caps outbound requests per second across all callers.
// perSec <= 0 disables limiting.
func WithRateLimit(perSec float64, burst int) Option {
	return func(f *HTTPFetcher) {
		f.ratePerSec = perSec
		if burst > 0 {
			f.burst = burst
		}
	}
}

// WithCache keeps up to size pages for ttl. size <= 0 or ttl <= 0 disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.cacheSize = size
		f.cacheTTL = ttl
	}
}

// WithUserAgent sets the User-Agent header on outbound requests.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithMaxBodyBytes limits how much of a page is read.
func WithMaxBodyBytes(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBody = n
		}
	}
}

// WithLogger sets the fetcher logger.
func WithLogger(l logger.Logger) Option {
	return func(f *HTTPFetcher) {
		if l != nil {
			f.logger = l
		}
	}
}
