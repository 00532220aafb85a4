package profile_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/boostcalc/internal/adapters/profile"
	"github.com/okian/boostcalc/internal/domain/errs"
	"github.com/okian/boostcalc/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_FetchOK(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := profile.NewHTTPFetcher(profile.WithLogger(logger.Nop()), profile.WithUserAgent("test-agent"))
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))

	_, err = f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "no cache configured")
}

func TestHTTPFetcher_Cache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("page"))
	}))
	defer srv.Close()

	f := profile.NewHTTPFetcher(profile.WithLogger(logger.Nop()), profile.WithCache(8, time.Minute))
	for i := 0; i < 3; i++ {
		body, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "page", string(body))
	}
	assert.Equal(t, int32(1), hits.Load())

	f.Purge()
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPFetcher_NonOKIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := profile.NewHTTPFetcher(profile.WithLogger(logger.Nop()), profile.WithCache(8, time.Minute))
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUpstreamFetch))
	assert.True(t, errors.Is(err, profile.ErrUnexpectedStatus))
	assert.Equal(t, http.StatusBadGateway, errs.HTTPStatus(err))
}

func TestHTTPFetcher_TransportErrorIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := profile.NewHTTPFetcher(profile.WithLogger(logger.Nop()), profile.WithTimeout(time.Second))
	_, err := f.Fetch(context.Background(), url)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUpstreamFetch))
}

func TestHTTPFetcher_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	f := profile.NewHTTPFetcher(profile.WithLogger(logger.Nop()), profile.WithMaxBodyBytes(16))
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, profile.ErrBodyTooLarge))
}

func TestHTTPFetcher_CollapsesConcurrentFetches(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte("shared"))
	}))
	defer srv.Close()

	f := profile.NewHTTPFetcher(profile.WithLogger(logger.Nop()))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, err := f.Fetch(context.Background(), srv.URL)
			if err == nil {
				results[i] = string(body)
			}
		}(i)
	}

	require.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	// Give the remaining callers time to join the in-flight request.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
}

func TestHTTPFetcher_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	f := profile.NewHTTPFetcher(profile.WithLogger(logger.Nop()))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUpstreamFetch))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHTTPFetcher_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	f := profile.NewHTTPFetcher(profile.WithLogger(logger.Nop()), profile.WithRateLimit(20, 1))
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
