package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeadersApplied(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/download/info/whatever", nil)
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)

	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for name, want := range headers {
		if got := rr.Header().Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if csp := rr.Header().Get("Content-Security-Policy"); csp == "" {
		t.Error("Missing Content-Security-Policy header")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil, nil)

	// Client-supplied ID is kept.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/download/info/x", nil)
	req.Header.Set("X-Request-Id", "client-chosen-id")
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-Id"); got != "client-chosen-id" {
		t.Errorf("Expected client request id to be kept, got %q", got)
	}

	// Absent one is generated.
	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/download/info/x", nil)
	rr2 := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr2, req2)
	if rr2.Header().Get("X-Request-Id") == "" {
		t.Error("Expected a generated request id")
	}
}

func TestCORSAllowedOrigin(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/upload", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected 204 preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Expected origin echo, got %q", got)
	}
}

func TestCORSUnknownOriginNotEchoed(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/download/info/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Unknown origin must not be allowed, got %q", got)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(r *http.Request)
		remote string
		want   string
	}{
		{
			"x-forwarded-for first hop",
			func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1") },
			"10.0.0.2:1234",
			"203.0.113.7",
		},
		{
			"x-real-ip",
			func(r *http.Request) { r.Header.Set("X-Real-IP", "203.0.113.9") },
			"10.0.0.2:1234",
			"203.0.113.9",
		},
		{
			"remote addr port stripped",
			func(r *http.Request) {},
			"192.0.2.4:5678",
			"192.0.2.4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			tt.setup(req)
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
