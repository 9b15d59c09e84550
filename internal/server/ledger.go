// ledger.go - Record Ledger: the transactional table of file records
// and the single state transition that matters, "claim for download".
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"secureshare/internal/cryptox"
)

// ScanStatus is the antivirus classification stored on a record.
type ScanStatus string

const (
	ScanPending  ScanStatus = "pending"
	ScanClean    ScanStatus = "clean"
	ScanInfected ScanStatus = "infected"
)

// FileRecord is one stored file's metadata. Everything except
// ConsumedAt is immutable after creation.
type FileRecord struct {
	ID                   uuid.UUID
	TokenFingerprint     string
	Filename             string
	MimeType             string
	SizeBytes            int64
	StorageKey           string
	CipherMetadata       cryptox.Metadata
	RequesterFingerprint string
	ScanStatus           ScanStatus
	CreatedAt            time.Time
	ExpiresAt            time.Time
	ConsumedAt           *time.Time
}

// Expired reports whether the record is past its TTL at the given
// instant. Expiry is always evaluated against wall-clock time at the
// point of use, never by a background sweep.
func (r *FileRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Consumed reports whether the one-time download already happened.
func (r *FileRecord) Consumed() bool {
	return r.ConsumedAt != nil
}

// Available reports whether the record can still be claimed.
func (r *FileRecord) Available(now time.Time) bool {
	return !r.Expired(now) && !r.Consumed() && r.ScanStatus == ScanClean
}

// ClaimStatus is the closed set of claim outcomes. Callers must handle
// each case distinctly; there is no generic failure bucket.
type ClaimStatus int

const (
	ClaimOK ClaimStatus = iota
	ClaimNotFound
	ClaimExpired
	ClaimAlreadyConsumed
	ClaimNotClean
)

func (s ClaimStatus) String() string {
	switch s {
	case ClaimOK:
		return "ok"
	case ClaimNotFound:
		return "not_found"
	case ClaimExpired:
		return "expired"
	case ClaimAlreadyConsumed:
		return "already_consumed"
	case ClaimNotClean:
		return "not_clean"
	default:
		return "unknown"
	}
}

// ClaimResult carries the outcome and, on ClaimOK, the pre-claim
// snapshot the caller needs to retrieve and stream content.
type ClaimResult struct {
	Status ClaimStatus
	Record *FileRecord
}

var (
	// ErrConflict signals a token fingerprint or storage key
	// collision on insert. With 256-bit tokens this should never
	// happen, but it is handled, not assumed impossible.
	ErrConflict = errors.New("ledger: record conflicts with an existing one")

	// ErrRecordNotFound is returned by point lookups.
	ErrRecordNotFound = errors.New("ledger: record not found")
)

// RecordLedger is the persistence contract the orchestrators depend
// on. The production implementation is Postgres-backed; handler tests
// substitute an in-memory fake.
type RecordLedger interface {
	Create(ctx context.Context, rec *FileRecord) error
	FindByFingerprint(ctx context.Context, fp string) (*FileRecord, error)
	ClaimForDownload(ctx context.Context, fp string, now time.Time) (ClaimResult, error)
	PurgeCandidates(ctx context.Context, now time.Time, limit int) ([]PurgeCandidate, error)
}

// PurgeCandidate identifies a blob that may be residual ciphertext.
type PurgeCandidate struct {
	ID         uuid.UUID
	StorageKey string
}

// Ledger is the Postgres-backed RecordLedger.
type Ledger struct {
	db *sql.DB
}

// NewLedger wraps a database pool.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

const recordColumns = `id, token_fingerprint, filename, mime_type, size_bytes, storage_key,
       cipher_metadata, requester_fingerprint, scan_status, created_at, expires_at, consumed_at`

// Create inserts a new record. Unique violations on the fingerprint or
// storage key surface as ErrConflict so the caller can regenerate.
func (l *Ledger) Create(ctx context.Context, rec *FileRecord) error {
	meta, err := json.Marshal(rec.CipherMetadata)
	if err != nil {
		return fmt.Errorf("ledger: marshal cipher metadata: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO file_records
			(id, token_fingerprint, filename, mime_type, size_bytes, storage_key,
			 cipher_metadata, requester_fingerprint, scan_status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rec.ID, rec.TokenFingerprint, rec.Filename, rec.MimeType, rec.SizeBytes,
		rec.StorageKey, meta, rec.RequesterFingerprint, rec.ScanStatus,
		rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

// FindByFingerprint is a point lookup with no locking, used by the
// read-only info endpoint. It never mutates the record.
func (l *Ledger) FindByFingerprint(ctx context.Context, fp string) (*FileRecord, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM file_records WHERE token_fingerprint = $1`, fp)
	return scanRecord(row)
}

// ClaimForDownload atomically marks the record consumed. The
// conditional update serializes concurrent claimants on the database
// row: under N concurrent calls exactly one sees an affected row, the
// rest fall through to classification. No in-process lock is involved,
// so multiple service instances against one database stay correct.
func (l *Ledger) ClaimForDownload(ctx context.Context, fp string, now time.Time) (ClaimResult, error) {
	row := l.db.QueryRowContext(ctx, `
		UPDATE file_records
		   SET consumed_at = $2
		 WHERE token_fingerprint = $1
		   AND consumed_at IS NULL
		   AND scan_status = 'clean'
		   AND expires_at > $2
		RETURNING `+recordColumns,
		fp, now.UTC(),
	)

	rec, err := scanRecord(row)
	if err == nil {
		return ClaimResult{Status: ClaimOK, Record: rec}, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return ClaimResult{}, err
	}

	// Zero rows updated: either the record does not exist or it is
	// unavailable. A plain read classifies which, in policy order:
	// missing, expired, already consumed, not clean.
	rec, err = l.FindByFingerprint(ctx, fp)
	if errors.Is(err, ErrRecordNotFound) {
		return ClaimResult{Status: ClaimNotFound}, nil
	}
	if err != nil {
		return ClaimResult{}, err
	}

	switch {
	case rec.Expired(now):
		return ClaimResult{Status: ClaimExpired}, nil
	case rec.Consumed():
		return ClaimResult{Status: ClaimAlreadyConsumed}, nil
	default:
		return ClaimResult{Status: ClaimNotClean}, nil
	}
}

// PurgeCandidates lists records whose blobs may still exist even
// though the record can never be downloaded again.
func (l *Ledger) PurgeCandidates(ctx context.Context, now time.Time, limit int) ([]PurgeCandidate, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, storage_key
		  FROM file_records
		 WHERE consumed_at IS NOT NULL OR expires_at < $1
		 ORDER BY expires_at ASC
		 LIMIT $2
	`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PurgeCandidate
	for rows.Next() {
		var c PurgeCandidate
		if err := rows.Scan(&c.ID, &c.StorageKey); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*FileRecord, error) {
	var (
		rec      FileRecord
		metaJSON []byte
		consumed sql.NullTime
	)
	err := row.Scan(
		&rec.ID,
		&rec.TokenFingerprint,
		&rec.Filename,
		&rec.MimeType,
		&rec.SizeBytes,
		&rec.StorageKey,
		&metaJSON,
		&rec.RequesterFingerprint,
		&rec.ScanStatus,
		&rec.CreatedAt,
		&rec.ExpiresAt,
		&consumed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(metaJSON, &rec.CipherMetadata); err != nil {
		return nil, fmt.Errorf("ledger: unmarshal cipher metadata: %w", err)
	}
	if consumed.Valid {
		t := consumed.Time
		rec.ConsumedAt = &t
	}
	return &rec, nil
}
