// upload.go - Upload Orchestrator: validate, scan, encrypt, store,
// record, audit. Each step's failure terminates the flow with no
// partial record visible to readers; the blob is written before the
// record, so a record never exists without its ciphertext.
package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"secureshare/internal/token"
)

// uploadResp is the JSON response returned after a successful upload.
type uploadResp struct {
	FileID        string    `json:"file_id"`
	DownloadURL   string    `json:"download_url"`
	DownloadToken string    `json:"download_token"`
	ExpiresAt     time.Time `json:"expires_at"`
	Filename      string    `json:"filename"`
	FileSize      int64     `json:"file_size"`
	MimeType      string    `json:"mime_type"`
}

func (s *Server) uploadHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := RequestIDFromContext(r.Context())
		requesterFP := token.FingerprintAddress(getClientIP(r), s.cfg.AddressSalt)

		// Bound the body before touching the multipart reader so an
		// oversized upload fails while streaming, not after buffering.
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

		if err := r.ParseMultipartForm(4 << 20); err != nil {
			GetMetrics().RecordUploadError()
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge, "File too large. Maximum size: "+strconv.FormatInt(s.cfg.MaxUploadBytes, 10)+" bytes")
				return
			}
			writeError(w, http.StatusBadRequest, "Invalid multipart form")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			GetMetrics().RecordUploadError()
			writeError(w, http.StatusBadRequest, "Missing file field")
			return
		}
		defer func() { _ = file.Close() }()

		filename := sanitizeFilename(header.Filename)
		if header.Filename == "" {
			GetMetrics().RecordUploadError()
			writeError(w, http.StatusBadRequest, "Filename is required")
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			GetMetrics().RecordUploadError()
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge, "File too large. Maximum size: "+strconv.FormatInt(s.cfg.MaxUploadBytes, 10)+" bytes")
				return
			}
			writeError(w, http.StatusBadRequest, "Failed to read file")
			return
		}
		if len(content) == 0 {
			GetMetrics().RecordUploadError()
			writeError(w, http.StatusBadRequest, "Empty file not allowed")
			return
		}

		ttlHours := 0
		if raw := r.FormValue("ttl_hours"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				GetMetrics().RecordUploadError()
				writeError(w, http.StatusBadRequest, "ttl_hours must be an integer")
				return
			}
			ttlHours = n
		}
		ttlHours = clampTTL(ttlHours, s.cfg.DefaultTTLHours, s.cfg.MaxTTLHours)

		// Scan before anything is persisted. Infected content leaves
		// only an audit trail behind: no record, no blob.
		var verdict ScanVerdict
		err = s.scanBreaker.Execute(func() error {
			var scanErr error
			verdict, scanErr = s.scanner.Scan(r.Context(), content)
			return scanErr
		})
		if err != nil {
			GetMetrics().RecordUploadError()
			Error("scan_failed", map[string]any{"rid": rid}, err)
			writeError(w, http.StatusServiceUnavailable, "Malware scan unavailable. Please try again later.")
			return
		}
		if !verdict.Clean {
			GetMetrics().RecordMalwareDetected()
			s.audit.Record(r.Context(), AuditEvent{
				Type:                 AuditMalwareDetected,
				RequesterFingerprint: requesterFP,
				Context: map[string]any{
					"filename":    filename,
					"file_size":   len(content),
					"scan_result": verdict.Detail,
				},
			})
			writeError(w, http.StatusUnprocessableEntity, "File rejected: malware detected")
			return
		}

		ciphertext, cipherMeta, err := s.cipher.Encrypt(content)
		if err != nil {
			GetMetrics().RecordUploadError()
			Error("encrypt_failed", map[string]any{"rid": rid}, err)
			writeError(w, http.StatusInternalServerError, "Encryption failed")
			return
		}

		fileID := uuid.New()
		storageKey := fileID.String() + ".enc"

		err = s.storeBreaker.Execute(func() error {
			return s.store.Put(r.Context(), storageKey, ciphertext, "application/octet-stream")
		})
		if err != nil {
			GetMetrics().RecordUploadError()
			Error("storage_put_failed", map[string]any{"rid": rid}, err)
			writeError(w, http.StatusInternalServerError, "Storage failed")
			return
		}

		mimeType := normalizeMime(header.Header.Get("Content-Type"))
		now := time.Now().UTC()
		expiresAt := now.Add(time.Duration(ttlHours) * time.Hour)

		bearer, fingerprint := token.Generate()
		rec := &FileRecord{
			ID:                   fileID,
			TokenFingerprint:     fingerprint,
			Filename:             filename,
			MimeType:             mimeType,
			SizeBytes:            int64(len(content)),
			StorageKey:           storageKey,
			CipherMetadata:       cipherMeta,
			RequesterFingerprint: requesterFP,
			ScanStatus:           ScanClean,
			CreatedAt:            now,
			ExpiresAt:            expiresAt,
		}

		err = s.ledger.Create(r.Context(), rec)
		if errors.Is(err, ErrConflict) {
			// Astronomically unlikely fingerprint collision; one
			// retry with a fresh token covers it.
			bearer, fingerprint = token.Generate()
			rec.TokenFingerprint = fingerprint
			err = s.ledger.Create(r.Context(), rec)
		}
		if err != nil {
			GetMetrics().RecordUploadError()
			Error("record_create_failed", map[string]any{"rid": rid}, err)
			// The blob is orphaned now; the sweeper reconciles it.
			writeError(w, http.StatusInternalServerError, "Database error")
			return
		}

		s.audit.Record(r.Context(), AuditEvent{
			Type:                 AuditUpload,
			FileID:               &fileID,
			RequesterFingerprint: requesterFP,
			Context: map[string]any{
				"filename":  filename,
				"file_size": len(content),
				"mime_type": mimeType,
				"ttl_hours": ttlHours,
			},
		})

		GetMetrics().RecordUpload(int64(len(content)))

		writeJSON(w, http.StatusCreated, uploadResp{
			FileID:        fileID.String(),
			DownloadURL:   s.cfg.BaseURL + "/api/v1/download/" + bearer,
			DownloadToken: bearer,
			ExpiresAt:     expiresAt,
			Filename:      filename,
			FileSize:      int64(len(content)),
			MimeType:      mimeType,
		})
	})
}
