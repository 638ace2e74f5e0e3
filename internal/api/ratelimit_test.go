// ABOUTME: Tests for the per-IP request limiter and its middleware.
// ABOUTME: Uses package api (not api_test) to access unexported Server fields.
package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestIPRateLimiterAllow(t *testing.T) {
	t.Parallel()

	rl := newIPRateLimiter(rate.Limit(100), 3, time.Minute)
	for i := 1; i <= 3; i++ {
		if !rl.Allow("127.0.0.1") {
			t.Errorf("request %d: should be allowed (within burst of 3)", i)
		}
	}
	if rl.Allow("127.0.0.1") {
		t.Error("4th request: should be denied (burst of 3 exhausted)")
	}
}

func TestIPRateLimiterSeparateBucketsPerIP(t *testing.T) {
	t.Parallel()

	rl := newIPRateLimiter(rate.Limit(1), 1, time.Minute)
	if !rl.Allow("1.2.3.4") {
		t.Error("1.2.3.4 first request should be allowed")
	}
	if rl.Allow("1.2.3.4") {
		t.Error("1.2.3.4 second request should be denied")
	}
	if !rl.Allow("5.6.7.8") {
		t.Error("5.6.7.8 first request should be allowed (independent bucket)")
	}
}

func TestClientRateLimitReturns429AfterBurst(t *testing.T) {
	t.Parallel()

	srv := &Server{rateLimiter: newIPRateLimiter(rate.Limit(100), 2, time.Minute)}
	handler := srv.clientRateLimitMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	for i := 1; i <= 3; i++ {
		resp, err := ts.Client().Get(ts.URL)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()

		wantStatus := http.StatusOK
		if i > 2 {
			wantStatus = http.StatusTooManyRequests
		}
		if resp.StatusCode != wantStatus {
			t.Errorf("request %d: got status %d, want %d", i, resp.StatusCode, wantStatus)
		}
		if i > 2 && resp.Header.Get("Retry-After") == "" {
			t.Error("rate-limited response missing Retry-After header")
		}
	}
}
