// audit.go - Append-only audit trail written beside every
// orchestrator step.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEventType classifies audit events.
type AuditEventType string

const (
	AuditUpload          AuditEventType = "upload"
	AuditDownload        AuditEventType = "download"
	AuditInfoView        AuditEventType = "info_view"
	AuditMalwareDetected AuditEventType = "malware_detected"
	AuditError           AuditEventType = "error"
)

// AuditEvent is one appended entry. FileID is nullable so events
// outlive record deletion; the requester fingerprint is already
// anonymized by the token codec.
type AuditEvent struct {
	Type                 AuditEventType
	FileID               *uuid.UUID
	RequesterFingerprint string
	Context              map[string]any
}

// AuditSink records events. Recording is best-effort by contract: a
// failing sink must never fail or block the primary operation.
type AuditSink interface {
	Record(ctx context.Context, ev AuditEvent)
}

// AuditTrail is the Postgres-backed AuditSink.
type AuditTrail struct {
	db *sql.DB
}

// NewAuditTrail wraps a database pool.
func NewAuditTrail(db *sql.DB) *AuditTrail {
	return &AuditTrail{db: db}
}

// Record appends one event. Failures are logged and swallowed.
func (a *AuditTrail) Record(ctx context.Context, ev AuditEvent) {
	var contextJSON []byte
	if ev.Context != nil {
		var err error
		contextJSON, err = json.Marshal(ev.Context)
		if err != nil {
			Warn("audit_context_marshal_failed", map[string]any{"event": string(ev.Type)})
			contextJSON = nil
		}
	}

	var fileID any
	if ev.FileID != nil {
		fileID = *ev.FileID
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO audit_events (event_type, file_id, requester_fingerprint, context, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.Type, fileID, ev.RequesterFingerprint, contextJSON, time.Now().UTC())
	if err != nil {
		Error("audit_write_failed", map[string]any{"event": string(ev.Type)}, err)
	}
}
