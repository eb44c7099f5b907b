package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metadata "visitid/pkg/platform/middleware/metadata"
)

func TestAllowWithinLimit(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := store.Allow(ctx, "10.0.0.1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 5-i-1, result.Remaining)
	}

	result, err := store.Allow(ctx, "10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
}

func TestKeysAreIndependent(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Allow(ctx, "10.0.0.1", 3, time.Minute)
		require.NoError(t, err)
	}

	result, err := store.Allow(ctx, "10.0.0.2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestWindowSlides(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	_, err := store.Allow(ctx, "10.0.0.1", 1, 20*time.Millisecond)
	require.NoError(t, err)

	result, err := store.Allow(ctx, "10.0.0.1", 1, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	time.Sleep(30 * time.Millisecond)

	result, err = store.Allow(ctx, "10.0.0.1", 1, 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestConcurrentAllow(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	const workers = 50
	const limit = 10

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := store.Allow(ctx, "shared", limit, time.Minute)
			require.NoError(t, err)
			if result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, allowed)
}

func TestPerIPMiddleware(t *testing.T) {
	store := NewInMemory()
	mw := NewMiddleware(store, slog.New(slog.DiscardHandler), 2, time.Minute)

	handler := metadata.ClientMetadata(mw.PerIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	doRequest := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/visitor", nil)
		req.RemoteAddr = "192.168.1.9:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, doRequest().Code)
	assert.Equal(t, http.StatusOK, doRequest().Code)

	rec := doRequest()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestPerIPMiddlewareFailsOpen(t *testing.T) {
	mw := NewMiddleware(failingStore{}, slog.New(slog.DiscardHandler), 1, time.Minute)

	handler := metadata.ClientMetadata(mw.PerIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodPost, "/auth/visitor", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPerIPMiddlewareDisabled(t *testing.T) {
	store := NewInMemory()
	mw := NewMiddleware(store, slog.New(slog.DiscardHandler), 0, time.Minute, WithDisabled(true))

	handler := metadata.ClientMetadata(mw.PerIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/visitor", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

type failingStore struct{}

func (failingStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	return nil, context.DeadlineExceeded
}
