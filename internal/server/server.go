package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"secureshare/internal/cryptox"
)

// Deps are the collaborators the orchestrators run against. All are
// explicitly constructed and injected; tests substitute fakes without
// process-wide mutation.
type Deps struct {
	DB      *sql.DB
	Ledger  RecordLedger
	Store   ContentStore
	Scanner Scanner
	Cipher  *cryptox.Cipher
	Audit   AuditSink
	Limiter *RateLimiter
}

// Server wires routes, middleware and dependencies together.
type Server struct {
	cfg        Config
	httpServer *http.Server

	db      *sql.DB
	ledger  RecordLedger
	store   ContentStore
	scanner Scanner
	cipher  *cryptox.Cipher
	audit   AuditSink

	scanBreaker  *CircuitBreaker
	storeBreaker *CircuitBreaker
}

// New builds the server. Deps.Limiter may be nil to disable rate
// limiting (tests).
func New(cfg Config, deps Deps) *Server {
	s := &Server{
		cfg:          cfg,
		db:           deps.DB,
		ledger:       deps.Ledger,
		store:        deps.Store,
		scanner:      deps.Scanner,
		cipher:       deps.Cipher,
		audit:        deps.Audit,
		scanBreaker:  NewCircuitBreaker("scanner", 5, 30*time.Second),
		storeBreaker: NewCircuitBreaker("content_store", 5, 30*time.Second),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", metricsHandler(cfg.Build))

	mux.Handle("POST /api/v1/upload", s.uploadHandler())
	mux.Handle("GET /api/v1/download/info/{token}", s.infoHandler())
	mux.Handle("GET /api/v1/download/{token}", s.downloadHandler())

	// Wrap middleware: requestID -> logging -> security -> cors -> ratelimit -> mux
	var handler http.Handler = mux
	if deps.Limiter != nil && cfg.RateLimitEnabled {
		handler = deps.Limiter.Middleware(handler)
	}
	handler = corsMiddleware(cfg.CORSOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Handler exposes the full middleware chain, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// errorResp is the uniform JSON error body.
type errorResp struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResp{Detail: detail})
}
