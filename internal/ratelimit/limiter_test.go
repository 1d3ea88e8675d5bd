package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// =============================================================================
// Generators for property-based testing
// =============================================================================

func clientKeyGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`10\.0\.[0-9]{1,3}\.[0-9]{1,3}`)
}

// =============================================================================
// Property: Requests within the burst succeed
// =============================================================================

func testRateLimiter_RequestsWithinLimit(t *rapid.T) {
	config := Config{RPS: 100, Burst: 200, CleanupInterval: time.Hour}
	rl := NewRateLimiter(config)
	defer rl.Stop()

	key := clientKeyGenerator().Draw(t, "key")
	n := rapid.IntRange(1, 50).Draw(t, "n")
	for i := 0; i < n; i++ {
		if !rl.Allow(key) {
			t.Fatalf("request %d of %d should have been allowed (burst %d)", i+1, n, config.Burst)
		}
	}
}

func TestRateLimiter_RequestsWithinLimit(t *testing.T) {
	rapid.Check(t, testRateLimiter_RequestsWithinLimit)
}

func FuzzRateLimiter_RequestsWithinLimit(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_RequestsWithinLimit))
}

// =============================================================================
// Property: Requests beyond the burst are blocked
// =============================================================================

func testRateLimiter_ExceedingLimitBlocked(t *rapid.T) {
	burst := rapid.IntRange(1, 20).Draw(t, "burst")
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: burst, CleanupInterval: time.Hour})
	defer rl.Stop()

	key := clientKeyGenerator().Draw(t, "key")
	for i := 0; i < burst; i++ {
		rl.Allow(key)
	}
	if rl.Allow(key) {
		t.Fatalf("request beyond burst %d should have been blocked", burst)
	}
}

func TestRateLimiter_ExceedingLimitBlocked(t *testing.T) {
	rapid.Check(t, testRateLimiter_ExceedingLimitBlocked)
}

func FuzzRateLimiter_ExceedingLimitBlocked(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_ExceedingLimitBlocked))
}

// =============================================================================
// Property: Clients have independent buckets
// =============================================================================

func testRateLimiter_ClientIndependence(t *rapid.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 3, CleanupInterval: time.Hour})
	defer rl.Stop()

	a := clientKeyGenerator().Draw(t, "a")
	b := clientKeyGenerator().Filter(func(s string) bool { return s != a }).Draw(t, "b")
	for i := 0; i < 3; i++ {
		rl.Allow(a)
	}
	if rl.Allow(a) {
		t.Fatalf("client %s should be exhausted", a)
	}
	if !rl.Allow(b) {
		t.Fatalf("client %s must not be affected by %s", b, a)
	}
	if rl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rl.Len())
	}
}

func TestRateLimiter_ClientIndependence(t *testing.T) {
	rapid.Check(t, testRateLimiter_ClientIndependence)
}

// =============================================================================
// Cleanup and shutdown
// =============================================================================

func TestRateLimiter_IdleLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 10, Burst: 10, CleanupInterval: 20 * time.Millisecond})
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	time.Sleep(50 * time.Millisecond)
	rl.Cleanup()
	if rl.Len() != 0 {
		t.Fatalf("idle limiter survived cleanup, Len() = %d", rl.Len())
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 1000, Burst: 1000, CleanupInterval: time.Hour})
	defer rl.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				rl.Allow("10.0.0.2")
			}
		}()
	}
	wg.Wait()
	if rl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", rl.Len())
	}
}

func TestRateLimiter_StopGracefulShutdown(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 10, Burst: 10, CleanupInterval: 10 * time.Millisecond})
	done := make(chan struct{})
	go func() {
		rl.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return within timeout")
	}
}

// =============================================================================
// Middleware
// =============================================================================

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 2, CleanupInterval: time.Hour})
	defer rl.Stop()

	h := Middleware(rl, ClientIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v3-public/localProviders/local?action=login", nil)
		req.RemoteAddr = "10.0.0.9:51234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
		if i == 2 && rr.Header().Get("Retry-After") != "1" {
			t.Fatalf("missing Retry-After header")
		}
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestMiddleware_EmptyKeyPassesThrough(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	h := Middleware(rl, func(*http.Request) string { return "" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d got %d", i, rr.Code)
		}
	}
	if rl.Len() != 0 {
		t.Fatalf("empty keys must not allocate limiters")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := ClientIP(req); got != "192.0.2.1" {
		t.Fatalf("ClientIP = %q", got)
	}
	req.RemoteAddr = "pipe"
	if got := ClientIP(req); got != "pipe" {
		t.Fatalf("ClientIP = %q", got)
	}
}
