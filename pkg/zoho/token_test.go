package zoho

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, hits *atomic.Int32, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "rt-1", r.Form.Get("refresh_token"))
		assert.Equal(t, "client-id", r.Form.Get("client_id"))
		assert.Equal(t, "client-secret", r.Form.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenManager_ReusesTokenWithinValidity(t *testing.T) {
	var hits atomic.Int32
	srv := newTokenServer(t, &hits, http.StatusOK, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewTokenManager(srv.URL, "client-id", "client-secret", WithClock(func() time.Time { return now }))

	tok, err := m.AccessToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	now = now.Add(50 * time.Minute)
	tok, err = m.AccessToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int32(1), hits.Load())
}

func TestTokenManager_RefreshesInsideSafetyMargin(t *testing.T) {
	var hits atomic.Int32
	srv := newTokenServer(t, &hits, http.StatusOK, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewTokenManager(srv.URL, "client-id", "client-secret", WithClock(func() time.Time { return now }))

	_, err := m.AccessToken(context.Background(), "rt-1")
	require.NoError(t, err)

	// 59 seconds before nominal expiry is inside the margin.
	now = now.Add(3600*time.Second - 59*time.Second)
	_, err = m.AccessToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestTokenManager_DefaultLifetime(t *testing.T) {
	var hits atomic.Int32
	srv := newTokenServer(t, &hits, http.StatusOK, `{"access_token":"tok-1","token_type":"Bearer"}`)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewTokenManager(srv.URL, "client-id", "client-secret", WithClock(func() time.Time { return now }))

	_, err := m.AccessToken(context.Background(), "rt-1")
	require.NoError(t, err)

	now = now.Add(58 * time.Minute)
	_, err = m.AccessToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	now = now.Add(2 * time.Minute)
	_, err = m.AccessToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestTokenManager_ExchangeFailure(t *testing.T) {
	var hits atomic.Int32
	srv := newTokenServer(t, &hits, http.StatusBadRequest, `{"error":"invalid_code"}`)

	m := NewTokenManager(srv.URL, "client-id", "client-secret")

	_, err := m.AccessToken(context.Background(), "rt-1")
	require.Error(t, err)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)

	// Failures are not cached.
	_, err = m.AccessToken(context.Background(), "rt-1")
	require.Error(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestTokenManager_ErrorInSuccessBody(t *testing.T) {
	var hits atomic.Int32
	srv := newTokenServer(t, &hits, http.StatusOK, `{"error":"invalid_client"}`)

	m := NewTokenManager(srv.URL, "client-id", "client-secret")

	_, err := m.AccessToken(context.Background(), "rt-1")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
}

func TestTokenManager_EmptyRefreshToken(t *testing.T) {
	m := NewTokenManager("http://127.0.0.1:1", "client-id", "client-secret")

	_, err := m.AccessToken(context.Background(), "")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
}

func TestTokenManager_Invalidate(t *testing.T) {
	var hits atomic.Int32
	srv := newTokenServer(t, &hits, http.StatusOK, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)

	m := NewTokenManager(srv.URL, "client-id", "client-secret")

	_, err := m.AccessToken(context.Background(), "rt-1")
	require.NoError(t, err)
	m.Invalidate("rt-1")
	_, err = m.AccessToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestTokenManager_LifetimeFollowsInjectedClock(t *testing.T) {
	var hits atomic.Int32
	srv := newTokenServer(t, &hits, http.StatusOK, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)

	// Far from the wall clock, so any mixing of clocks would show.
	now := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	m := NewTokenManager(srv.URL, "client-id", "client-secret", WithClock(func() time.Time { return now }))

	_, err := m.AccessToken(context.Background(), "rt-1")
	require.NoError(t, err)

	now = now.Add(3600*time.Second - tokenSafetyMargin - time.Nanosecond)
	_, err = m.AccessToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "still valid one tick before the margin")

	now = now.Add(time.Nanosecond)
	_, err = m.AccessToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "refreshed exactly at the margin")
}

func TestTokenManager_ShortLivedToken(t *testing.T) {
	var hits atomic.Int32
	srv := newTokenServer(t, &hits, http.StatusOK, `{"access_token":"tok-1","token_type":"Bearer","expires_in":90}`)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewTokenManager(srv.URL, "client-id", "client-secret", WithClock(func() time.Time { return now }))

	_, err := m.AccessToken(context.Background(), "rt-1")
	require.NoError(t, err)

	now = now.Add(31 * time.Second)
	_, err = m.AccessToken(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestTokenManager_ConcurrentAccessAndInvalidate(t *testing.T) {
	var (
		mu     sync.Mutex
		issued = map[string]bool{}
		seq    atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		tok := "tok-" + strconv.Itoa(int(seq.Add(1)))
		mu.Lock()
		issued[tok] = true
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + tok + `","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)

	m := NewTokenManager(srv.URL, "client-id", "client-secret")

	const workers = 50
	results := make([]string, workers)
	errs := make([]error, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			rt := "rt-" + strconv.Itoa(i%3)
			if i%5 == 0 {
				m.Invalidate(rt)
			}
			results[i], errs[i] = m.AccessToken(context.Background(), rt)
			if i%7 == 0 {
				m.Invalidate(rt)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i], "worker %d", i)
		assert.NotEmpty(t, results[i], "worker %d", i)
		assert.True(t, issued[results[i]], "worker %d got %q, which the server never issued", i, results[i])
	}
	assert.GreaterOrEqual(t, int(seq.Load()), 3)
}
