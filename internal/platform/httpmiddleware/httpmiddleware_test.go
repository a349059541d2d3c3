package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sqidlink.local/gee"
	"sqidlink.local/internal/platform/auth"
	"sqidlink.local/internal/platform/metrics"
	"sqidlink.local/internal/platform/ratelimit"
)

// memLimiter 按 key 计数，不做时间窗口
type memLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (m *memLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (ratelimit.Decision, error) {
	if m.err != nil {
		return ratelimit.Decision{}, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[key]++
	if m.counts[key] > limit {
		return ratelimit.Decision{RetryAfter: window - time.Millisecond}, nil
	}
	return ratelimit.Decision{Allowed: true}, nil
}

func do(h http.Handler, method, target, remote string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"direct public ignores headers", "203.0.113.5:1111", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.5"},
		{"loopback trusts cf", "127.0.0.1:1111", map[string]string{"CF-Connecting-IP": "198.51.100.7"}, "198.51.100.7"},
		{"private trusts xff first hop", "10.0.0.2:1111", map[string]string{"X-Forwarded-For": "198.51.100.8, 10.0.0.1"}, "198.51.100.8"},
		{"docker bridge x-real-ip", "172.17.0.1:1111", map[string]string{"X-Real-IP": "198.51.100.9"}, "198.51.100.9"},
		{"garbage header falls back", "192.168.1.1:1111", map[string]string{"X-Forwarded-For": "not-an-ip"}, "192.168.1.1"},
		{"ipv6 ula", "[fd00::1]:1111", map[string]string{"X-Real-IP": "2001:db8::1"}, "2001:db8::1"},
		{"no port", "203.0.113.5", nil, "203.0.113.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIP(req))
		})
	}
}

func TestRateLimit(t *testing.T) {
	lim := &memLimiter{}
	r := gee.New()
	r.GET("/t", RateLimit(lim, "test", 2, 2*time.Second), func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "ok")
	})

	h := map[string]string{"CF-Connecting-IP": "203.0.113.10"}
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/t", "127.0.0.1:1", h).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/t", "127.0.0.1:1", h).Code)

	rec := do(r, http.MethodGet, "/t", "127.0.0.1:1", h)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	// 另一个客户端不受影响
	other := map[string]string{"CF-Connecting-IP": "203.0.113.11"}
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/t", "127.0.0.1:1", other).Code)
	assert.Equal(t, 3, lim.counts["rl:test:203.0.113.10"])
}

func TestRateLimit_FailsOpen(t *testing.T) {
	r := gee.New()
	r.GET("/t", RateLimit(&memLimiter{err: errors.New("redis down")}, "test", 1, time.Second), func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "ok")
	})
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/t", "", nil).Code)
	}

	r2 := gee.New()
	r2.GET("/t", RateLimit(nil, "test", 1, time.Second), func(ctx *gee.Context) { ctx.String(http.StatusOK, "ok") })
	assert.Equal(t, http.StatusOK, do(r2, http.MethodGet, "/t", "", nil).Code)
}

func TestAuthMiddleware(t *testing.T) {
	ts, err := auth.NewHS256Service("secret", "sqidlink", time.Hour)
	require.NoError(t, err)
	userTok, err := ts.Sign(auth.Identity{UserID: 2, Role: auth.RoleUser})
	require.NoError(t, err)
	adminTok, err := ts.Sign(auth.Identity{UserID: 1, Role: auth.RoleAdmin})
	require.NoError(t, err)

	r := gee.New()
	whoami := func(ctx *gee.Context) {
		id, ok := auth.GetIdentity(ctx.Req.Context())
		if !ok {
			ctx.String(http.StatusOK, "anon")
			return
		}
		ctx.String(http.StatusOK, "%d", id.UserID)
	}
	r.GET("/me", AuthRequired(ts), whoami)
	r.GET("/maybe", AuthOptional(ts), whoami)
	r.GET("/admin", AuthRequired(ts), RequireRole(auth.RoleAdmin), whoami)

	bearer := func(tok string) map[string]string { return map[string]string{"Authorization": "Bearer " + tok} }

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", "", map[string]string{"Authorization": "Basic abc"}).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", "", bearer("junk")).Code)

	rec := do(r, http.MethodGet, "/me", "", bearer(userTok))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Body.String())

	assert.Equal(t, "anon", do(r, http.MethodGet, "/maybe", "", nil).Body.String())
	assert.Equal(t, "anon", do(r, http.MethodGet, "/maybe", "", bearer("junk")).Body.String())
	assert.Equal(t, "2", do(r, http.MethodGet, "/maybe", "", bearer(userTok)).Body.String())

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin", "", bearer(userTok)).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin", "", bearer(adminTok)).Code)
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	r := gee.New()
	r.Use(Metrics())
	r.GET("/m/:code", func(ctx *gee.Context) { ctx.String(http.StatusOK, "ok") })

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/m/:code", "200"))
	do(r, http.MethodGet, "/m/abc", "", nil)
	do(r, http.MethodGet, "/m/xyz", "", nil)
	after := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/m/:code", "200"))
	assert.Equal(t, 2.0, after-before)

	unmatched := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "UNMATCHED", "404"))
	do(r, http.MethodGet, "/nope/a/b", "", nil)
	assert.Equal(t, unmatched+1, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "UNMATCHED", "404")))
}
