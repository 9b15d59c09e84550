package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func rateLimitedConfig() Config {
	cfg := testConfig()
	cfg.RateLimitEnabled = true
	cfg.GlobalRatePerMinute = 100
	cfg.UploadRatePerHour = 3
	cfg.DownloadRatePerHour = 5
	return cfg
}

func TestMemoryRate_SlidingWindow(t *testing.T) {
	mr := newMemoryRate()
	rule := rateRule{name: "test", limit: 3, window: 50 * time.Millisecond}

	for i := 0; i < 3; i++ {
		if !mr.allow(context.Background(), "ip1", rule) {
			t.Fatalf("request %d: expected allow", i)
		}
	}
	if mr.allow(context.Background(), "ip1", rule) {
		t.Fatal("Expected deny once the window is full")
	}

	// Another key has its own budget.
	if !mr.allow(context.Background(), "ip2", rule) {
		t.Error("Expected a different key to be allowed")
	}

	// The window slides: old entries age out.
	time.Sleep(60 * time.Millisecond)
	if !mr.allow(context.Background(), "ip1", rule) {
		t.Error("Expected allow after the window slid past old entries")
	}
}

func TestRateLimiter_UploadBudget(t *testing.T) {
	cfg := rateLimitedConfig()
	env := newTestEnvWithLimiter(t, cfg)

	for i := 0; i < 3; i++ {
		rr := doUpload(t, env, "a.txt", "text/plain", []byte("x"), "")
		if rr.Code != http.StatusCreated {
			t.Fatalf("upload %d: expected 201, got %d", i, rr.Code)
		}
	}

	rr := doUpload(t, env, "a.txt", "text/plain", []byte("x"), "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 on the 4th upload, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Expected a Retry-After header")
	}
}

func TestRateLimiter_DownloadBudgetSeparateFromUpload(t *testing.T) {
	cfg := rateLimitedConfig()
	env := newTestEnvWithLimiter(t, cfg)

	// Exhaust the upload budget.
	for i := 0; i < 3; i++ {
		doUpload(t, env, "a.txt", "text/plain", []byte("x"), "")
	}

	// Downloads still have their own window.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/download/sometoken", nil)
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	if rr.Code == http.StatusTooManyRequests {
		t.Fatal("Download was throttled by the upload budget")
	}
}

func TestRateLimiter_DisabledByConfig(t *testing.T) {
	cfg := rateLimitedConfig()
	cfg.RateLimitEnabled = false
	env := newTestEnvWithLimiter(t, cfg)

	for i := 0; i < 10; i++ {
		rr := doUpload(t, env, "a.txt", "text/plain", []byte("x"), "")
		if rr.Code != http.StatusCreated {
			t.Fatalf("upload %d: expected 201 with limiting disabled, got %d", i, rr.Code)
		}
	}
}

func newTestEnvWithLimiter(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := newTestEnv(t, cfg, nil, nil)

	srv := New(cfg, Deps{
		Ledger:  env.ledger,
		Store:   env.store,
		Scanner: NewPassScanner(),
		Cipher:  mustTestCipher(t),
		Audit:   env.audit,
		Limiter: NewRateLimiter(cfg, nil),
	})
	env.srv = srv
	return env
}
