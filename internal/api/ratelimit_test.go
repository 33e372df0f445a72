package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	tb := newTokenBucket(2, 1)
	if !tb.allow() || !tb.allow() {
		t.Fatal("burst not allowed")
	}
	if tb.allow() {
		t.Error("request over burst allowed")
	}
	if got := tb.remaining(); got != 0 {
		t.Errorf("remaining = %d", got)
	}

	// Pretend two seconds passed.
	tb.mu.Lock()
	tb.lastRefill = tb.lastRefill.Add(-2 * time.Second)
	tb.mu.Unlock()
	if !tb.allow() {
		t.Error("bucket did not refill")
	}
	if tb.reset().Before(time.Now().Add(-time.Second)) {
		t.Error("reset is in the past")
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 3})
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("192.0.2.1") {
			t.Fatalf("request %d denied", i)
		}
	}
	if rl.Allow("192.0.2.1") {
		t.Error("request over burst allowed")
	}
	if !rl.Allow("192.0.2.2") {
		t.Error("second client shares the first client's bucket")
	}
	if got := rl.Remaining("192.0.2.2"); got != 2 {
		t.Errorf("Remaining = %d, want 2", got)
	}
}

func TestRateLimiterDefaultBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60})
	defer rl.Stop()
	if rl.config.BurstSize != DefaultBurst {
		t.Errorf("BurstSize = %d", rl.config.BurstSize)
	}
	rl.Stop() // idempotent
}

func TestRateLimiterEvict(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 1})
	defer rl.Stop()

	rl.Allow("192.0.2.1")
	rl.evict(time.Now())
	if len(rl.buckets) != 1 {
		t.Fatal("active bucket evicted")
	}
	rl.evict(time.Now().Add(rl.cleanupTTL + time.Hour))
	if len(rl.buckets) != 0 {
		t.Error("idle bucket kept")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 30, BurstSize: 1})
	defer rl.Stop()
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/convert", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	w := send()
	if w.Code != http.StatusOK {
		t.Fatalf("first request = %d", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "30" {
		t.Errorf("X-RateLimit-Limit = %q", got)
	}
	w = send()
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second request = %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		forwarded  string
		realIP     string
		expectedIP string
	}{
		{"remote addr", "192.0.2.1:1234", "", "", "192.0.2.1"},
		{"forwarded first entry", "10.0.0.1:1", "198.51.100.7, 10.0.0.2", "", "198.51.100.7"},
		{"invalid forwarded falls back", "10.0.0.1:1", "not-an-ip", "198.51.100.8", "198.51.100.8"},
		{"real ip", "10.0.0.1:1", "", "198.51.100.9", "198.51.100.9"},
		{"ipv6", "[2001:db8::1]:443", "", "", "2001:db8::1"},
		{"garbage", "garbage", "", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := getClientIP(req); got != tt.expectedIP {
				t.Errorf("getClientIP() = %q, want %q", got, tt.expectedIP)
			}
		})
	}
}
