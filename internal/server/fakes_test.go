package server

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"secureshare/internal/cryptox"
)

// fakeLedger implements RecordLedger over a mutex-guarded map. The
// real atomicity lives in the SQL conditional update; this fake
// mirrors its semantics so handler behavior can be tested without a
// database.
type fakeLedger struct {
	mu      sync.Mutex
	records map[string]*FileRecord
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]*FileRecord)}
}

func (f *fakeLedger) Create(_ context.Context, rec *FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[rec.TokenFingerprint]; ok {
		return ErrConflict
	}
	for _, other := range f.records {
		if other.StorageKey == rec.StorageKey {
			return ErrConflict
		}
	}
	cp := *rec
	f.records[rec.TokenFingerprint] = &cp
	return nil
}

func (f *fakeLedger) FindByFingerprint(_ context.Context, fp string) (*FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[fp]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeLedger) ClaimForDownload(_ context.Context, fp string, now time.Time) (ClaimResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[fp]
	if !ok {
		return ClaimResult{Status: ClaimNotFound}, nil
	}
	switch {
	case rec.Expired(now):
		return ClaimResult{Status: ClaimExpired}, nil
	case rec.Consumed():
		return ClaimResult{Status: ClaimAlreadyConsumed}, nil
	case rec.ScanStatus != ScanClean:
		return ClaimResult{Status: ClaimNotClean}, nil
	}

	t := now
	rec.ConsumedAt = &t
	cp := *rec
	return ClaimResult{Status: ClaimOK, Record: &cp}, nil
}

func (f *fakeLedger) PurgeCandidates(_ context.Context, now time.Time, limit int) ([]PurgeCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PurgeCandidate
	for _, rec := range f.records {
		if len(out) >= limit {
			break
		}
		if rec.Consumed() || rec.Expired(now) {
			out = append(out, PurgeCandidate{ID: rec.ID, StorageKey: rec.StorageKey})
		}
	}
	return out, nil
}

// captureAudit records events in memory for assertions.
type captureAudit struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (c *captureAudit) Record(_ context.Context, ev AuditEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureAudit) byType(t AuditEventType) []AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []AuditEvent
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// infectedScanner flags everything as malware.
type infectedScanner struct{}

func (infectedScanner) Scan(context.Context, []byte) (ScanVerdict, error) {
	return ScanVerdict{Clean: false, Detail: "Eicar-Test-Signature"}, nil
}

// failingStore errors on the chosen operations.
type failingStore struct {
	ContentStore
	failGet    bool
	failDelete bool
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failGet {
		return nil, errors.New("backend unreachable")
	}
	return f.ContentStore.Get(ctx, key)
}

func (f *failingStore) Delete(ctx context.Context, key string) error {
	if f.failDelete {
		return errors.New("backend unreachable")
	}
	return f.ContentStore.Delete(ctx, key)
}

type testEnv struct {
	srv    *Server
	ledger *fakeLedger
	store  ContentStore
	audit  *captureAudit
}

func testConfig() Config {
	return Config{
		Addr:            ":0",
		BaseURL:         "http://localhost:8080",
		MaxUploadBytes:  10 << 20,
		DefaultTTLHours: 24,
		MaxTTLHours:     48,
		Storage:         StorageMemory,
		CORSOrigins:     []string{"http://localhost:3000"},
	}
}

func mustTestCipher(t *testing.T) *cryptox.Cipher {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	cipher, err := cryptox.New(key)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	return cipher
}

func newTestEnv(t *testing.T, cfg Config, scanner Scanner, store ContentStore) *testEnv {
	t.Helper()

	cipher := mustTestCipher(t)

	if scanner == nil {
		scanner = NewPassScanner()
	}
	if store == nil {
		store = NewMemoryStore()
	}

	ledger := newFakeLedger()
	audit := &captureAudit{}

	srv := New(cfg, Deps{
		Ledger:  ledger,
		Store:   store,
		Scanner: scanner,
		Cipher:  cipher,
		Audit:   audit,
	})

	return &testEnv{srv: srv, ledger: ledger, store: store, audit: audit}
}
