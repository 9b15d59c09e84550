// download.go - Download Orchestrator: the state machine enforcing
// at-most-once redemption, plus the read-only info endpoint.
//
// The claim is the irreversible commit point. Everything after it
// (retrieval, decryption, purge) can fail without rollback: the
// record stays consumed, and each such failure leaves an audit event
// carrying enough context for manual investigation.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"secureshare/internal/cryptox"
	"secureshare/internal/token"
)

// infoResp is the metadata-only view of a record.
type infoResp struct {
	Filename    string    `json:"filename"`
	FileSize    int64     `json:"file_size"`
	MimeType    string    `json:"mime_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	IsAvailable bool      `json:"is_available"`
	ScanStatus  string    `json:"scan_status"`
}

func (s *Server) downloadHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := RequestIDFromContext(r.Context())
		requesterFP := token.FingerprintAddress(getClientIP(r), s.cfg.AddressSalt)

		bearer := r.PathValue("token")
		if bearer == "" {
			writeError(w, http.StatusBadRequest, "Missing token")
			return
		}
		fingerprint := token.Fingerprint(bearer)

		result, err := s.ledger.ClaimForDownload(r.Context(), fingerprint, time.Now().UTC())
		if err != nil {
			Error("claim_failed", map[string]any{"rid": rid}, err)
			writeError(w, http.StatusInternalServerError, "Database error")
			return
		}

		switch result.Status {
		case ClaimOK:
			// fall through to retrieval

		case ClaimNotFound:
			writeError(w, http.StatusNotFound, "File not found")
			return

		case ClaimExpired:
			GetMetrics().RecordExpiredRejection()
			s.audit.Record(r.Context(), AuditEvent{
				Type:                 AuditError,
				RequesterFingerprint: requesterFP,
				Context:              map[string]any{"stage": "claim", "outcome": result.Status.String()},
			})
			writeError(w, http.StatusGone, "File has expired")
			return

		case ClaimAlreadyConsumed:
			GetMetrics().RecordClaimConflict()
			s.audit.Record(r.Context(), AuditEvent{
				Type:                 AuditError,
				RequesterFingerprint: requesterFP,
				Context:              map[string]any{"stage": "claim", "outcome": result.Status.String()},
			})
			writeError(w, http.StatusGone, "File has already been downloaded (one-time use)")
			return

		default: // ClaimNotClean
			s.audit.Record(r.Context(), AuditEvent{
				Type:                 AuditError,
				RequesterFingerprint: requesterFP,
				Context:              map[string]any{"stage": "claim", "outcome": result.Status.String()},
			})
			writeError(w, http.StatusGone, "File is not available")
			return
		}

		rec := result.Record

		// The record is consumed from here on; failures below are
		// terminal for this token by design.
		var ciphertext []byte
		err = s.storeBreaker.Execute(func() error {
			var getErr error
			ciphertext, getErr = s.store.Get(r.Context(), rec.StorageKey)
			return getErr
		})
		if err != nil {
			Error("storage_get_failed", map[string]any{"rid": rid, "file_id": rec.ID.String()}, err)
			s.audit.Record(r.Context(), AuditEvent{
				Type:                 AuditError,
				FileID:               &rec.ID,
				RequesterFingerprint: requesterFP,
				Context:              map[string]any{"stage": "retrieval", "error": err.Error()},
			})
			writeError(w, http.StatusInternalServerError, "Storage retrieval failed")
			return
		}

		plaintext, err := s.cipher.Decrypt(ciphertext, rec.CipherMetadata)
		if err != nil {
			Error("decrypt_failed", map[string]any{"rid": rid, "file_id": rec.ID.String()}, err)
			kind := "decryption_error"
			if errors.Is(err, cryptox.ErrIntegrity) {
				kind = "integrity_error"
			}
			s.audit.Record(r.Context(), AuditEvent{
				Type:                 AuditError,
				FileID:               &rec.ID,
				RequesterFingerprint: requesterFP,
				Context:              map[string]any{"stage": "decryption", "kind": kind},
			})
			writeError(w, http.StatusInternalServerError, "Decryption failed")
			return
		}

		s.audit.Record(r.Context(), AuditEvent{
			Type:                 AuditDownload,
			FileID:               &rec.ID,
			RequesterFingerprint: requesterFP,
			Context: map[string]any{
				"filename":  rec.Filename,
				"file_size": rec.SizeBytes,
			},
		})

		// Best-effort purge. Failure is audited, never surfaced: the
		// one-time guarantee already holds via the consumed record.
		if err := s.store.Delete(r.Context(), rec.StorageKey); err != nil {
			GetMetrics().RecordPurgeFailure()
			Warn("purge_failed", map[string]any{"rid": rid, "file_id": rec.ID.String()})
			s.audit.Record(r.Context(), AuditEvent{
				Type:                 AuditError,
				FileID:               &rec.ID,
				RequesterFingerprint: requesterFP,
				Context:              map[string]any{"stage": "purge", "error": err.Error()},
			})
		}

		GetMetrics().RecordDownload(int64(len(plaintext)))

		w.Header().Set("Content-Type", rec.MimeType)
		w.Header().Set("Content-Length", strconv.Itoa(len(plaintext)))
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, rec.Filename))
		// Nothing may cache or sniff one-time plaintext.
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("X-Content-Type-Options", "nosniff")

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(plaintext)
	})
}

// infoHandler exposes metadata without claiming: safely repeatable,
// never sets consumed_at.
func (s *Server) infoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := RequestIDFromContext(r.Context())
		requesterFP := token.FingerprintAddress(getClientIP(r), s.cfg.AddressSalt)

		bearer := r.PathValue("token")
		if bearer == "" {
			writeError(w, http.StatusBadRequest, "Missing token")
			return
		}

		rec, err := s.ledger.FindByFingerprint(r.Context(), token.Fingerprint(bearer))
		if errors.Is(err, ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		if err != nil {
			Error("info_lookup_failed", map[string]any{"rid": rid}, err)
			writeError(w, http.StatusInternalServerError, "Database error")
			return
		}

		now := time.Now().UTC()
		if !rec.Available(now) {
			switch {
			case rec.Expired(now):
				writeError(w, http.StatusGone, "File has expired")
			case rec.Consumed():
				writeError(w, http.StatusGone, "File has already been downloaded")
			default:
				writeError(w, http.StatusGone, "File is not available")
			}
			return
		}

		s.audit.Record(r.Context(), AuditEvent{
			Type:                 AuditInfoView,
			FileID:               &rec.ID,
			RequesterFingerprint: requesterFP,
			Context:              map[string]any{"filename": rec.Filename},
		})

		writeJSON(w, http.StatusOK, infoResp{
			Filename:    rec.Filename,
			FileSize:    rec.SizeBytes,
			MimeType:    rec.MimeType,
			UploadedAt:  rec.CreatedAt,
			ExpiresAt:   rec.ExpiresAt,
			IsAvailable: true,
			ScanStatus:  string(rec.ScanStatus),
		})
	})
}
