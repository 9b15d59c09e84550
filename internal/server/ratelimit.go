// ratelimit.go - Per-IP rate limiting ahead of the orchestrators.
//
// Three windows mirror the abuse profile of the service: a global
// per-minute limit, plus tighter per-hour limits for the upload and
// download paths. The counting strategy is pluggable: a Redis-backed
// sliding window when SSR_REDIS_URL is set (multiple instances share
// one budget), an in-memory window otherwise.
package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// rateRule describes one limit window.
type rateRule struct {
	name   string
	limit  int
	window time.Duration
}

// rateStrategy counts a hit for key under rule and reports whether the
// request is still within budget.
type rateStrategy interface {
	allow(ctx context.Context, key string, rule rateRule) bool
}

// RateLimiter applies the configured rules per client IP.
type RateLimiter struct {
	strategy rateStrategy
	global   rateRule
	upload   rateRule
	download rateRule
}

// NewRateLimiter builds a limiter from config. Pass a nil strategy to
// use the in-memory sliding window.
func NewRateLimiter(cfg Config, strategy rateStrategy) *RateLimiter {
	if strategy == nil {
		strategy = newMemoryRate()
	}
	return &RateLimiter{
		strategy: strategy,
		global:   rateRule{name: "global", limit: cfg.GlobalRatePerMinute, window: time.Minute},
		upload:   rateRule{name: "upload", limit: cfg.UploadRatePerHour, window: time.Hour},
		download: rateRule{name: "download", limit: cfg.DownloadRatePerHour, window: time.Hour},
	}
}

// Middleware enforces the limits and responds 429 when a window is
// exhausted.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)

		rules := []rateRule{rl.global}
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v1/upload") && r.Method == http.MethodPost:
			rules = append(rules, rl.upload)
		case strings.HasPrefix(r.URL.Path, "/api/v1/download") && r.Method == http.MethodGet:
			rules = append(rules, rl.download)
		}

		for _, rule := range rules {
			if rl.strategy.allow(r.Context(), rule.name+":"+ip, rule) {
				continue
			}
			Warn("rate_limit_exceeded", map[string]any{
				"path":       r.URL.Path,
				"method":     r.Method,
				"limit_type": rule.name,
			})
			w.Header().Set("Retry-After", strconv.Itoa(int(rule.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.global.limit))
		next.ServeHTTP(w, r)
	})
}

// memoryRate is a sliding-window counter held in process memory.
// Suitable for a single instance; shared deployments use redisRate.
type memoryRate struct {
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	mu       sync.Mutex
	requests []time.Time
}

func newMemoryRate() *memoryRate {
	mr := &memoryRate{visitors: make(map[string]*visitor)}
	go mr.cleanup()
	return mr
}

func (mr *memoryRate) allow(_ context.Context, key string, rule rateRule) bool {
	mr.mu.Lock()
	v, ok := mr.visitors[key]
	if !ok {
		v = &visitor{requests: make([]time.Time, 0, rule.limit)}
		mr.visitors[key] = v
	}
	mr.mu.Unlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rule.window)

	valid := v.requests[:0]
	for _, t := range v.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	v.requests = valid

	if len(v.requests) >= rule.limit {
		return false
	}
	v.requests = append(v.requests, now)
	return true
}

// cleanup drops visitors with no recent activity so the map does not
// grow without bound.
func (mr *memoryRate) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-2 * time.Hour)
		mr.mu.Lock()
		for key, v := range mr.visitors {
			v.mu.Lock()
			idle := len(v.requests) == 0 || v.requests[len(v.requests)-1].Before(cutoff)
			v.mu.Unlock()
			if idle {
				delete(mr.visitors, key)
			}
		}
		mr.mu.Unlock()
	}
}
