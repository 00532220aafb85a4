package profile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/okian/boostcalc/internal/domain/errs"
	"github.com/okian/boostcalc/pkg/logger"
	"github.com/okian/boostcalc/pkg/metrics"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Defaults for HTTPFetcher.
const (
	DefaultTimeout      = 15 * time.Second
	DefaultUserAgent    = "Mozilla/5.0 (compatible; boostcalc/1.0)"
	DefaultMaxBodyBytes = 8 << 20
	DefaultBurst        = 1
)

// HTTPFetcher downloads profile pages. Concurrent fetches of the same URL
// share one request, successful pages may be cached, and all requests pass
// through a shared rate limiter.
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	maxBody   int64
	logger    logger.Logger

	ratePerSec float64
	burst      int
	limiter    *rate.Limiter

	cacheSize int
	cacheTTL  time.Duration
	cache     *expirable.LRU[string, []byte]

	group singleflight.Group
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher. Without options it neither caches nor rate limits.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{},
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		maxBody:   DefaultMaxBodyBytes,
		burst:     DefaultBurst,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logger.Get().Named("profile-fetcher")
	}
	if f.ratePerSec > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(f.ratePerSec), f.burst)
	}
	if f.cacheSize > 0 && f.cacheTTL > 0 {
		f.cache = expirable.NewLRU[string, []byte](f.cacheSize, nil, f.cacheTTL)
	}
	return f
}

// Fetch returns the page at profileURL. The returned slice may be shared
// with other callers and must not be modified. Failures carry errs.ErrUpstreamFetch.
func (f *HTTPFetcher) Fetch(ctx context.Context, profileURL string) ([]byte, error) {
	const op = "profile.fetch"

	if f.cache != nil {
		if body, ok := f.cache.Get(profileURL); ok {
			metrics.RecordProfileCacheLookup(true)
			return body, nil
		}
		metrics.RecordProfileCacheLookup(false)
	}

	ch := f.group.DoChan(profileURL, func() (any, error) {
		// Detached so one caller's cancellation does not fail the others sharing the call.
		return f.do(context.WithoutCancel(ctx), profileURL)
	})

	select {
	case <-ctx.Done():
		metrics.RecordProfileFetchError("canceled")
		return nil, errs.WrapKind(op, errs.ErrUpstreamFetch, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, errs.WrapKind(op, errs.ErrUpstreamFetch, res.Err)
		}
		body, _ := res.Val.([]byte)
		return body, nil
	}
}

func (f *HTTPFetcher) do(ctx context.Context, profileURL string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			metrics.RecordProfileFetchError("rate_limit")
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.RecordProfileFetchLatency(float64(time.Since(start).Milliseconds()))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		metrics.RecordProfileFetchError("request")
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.RecordProfileFetchError("transport")
		f.logger.Warn(ctx, "profile fetch failed", logger.String("url", profileURL), logger.Error(err))
		return nil, fmt.Errorf("request %s: %w", profileURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordProfileFetchError("status")
		f.logger.Warn(ctx, "profile fetch returned non-200",
			logger.String("url", profileURL), logger.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		metrics.RecordProfileFetchError("read")
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		metrics.RecordProfileFetchError("too_large")
		return nil, ErrBodyTooLarge
	}

	if f.cache != nil {
		f.cache.Add(profileURL, body)
	}
	return body, nil
}

// Purge drops every cached page.
func (f *HTTPFetcher) Purge() {
	if f.cache != nil {
		f.cache.Purge()
	}
}
