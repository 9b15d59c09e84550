// validation.go - Input validation and sanitization helpers
package server

import (
	"path/filepath"
	"strings"
)

// clampTTL resolves the requested TTL in hours against the configured
// bounds: zero or negative means "use the default", anything above the
// maximum is clamped down to it.
func clampTTL(requested, def, max int) int {
	if requested <= 0 {
		requested = def
	}
	if requested > max {
		requested = max
	}
	if requested < 1 {
		requested = 1
	}
	return requested
}

// sanitizeFilename strips path components and characters that would
// break the Content-Disposition header or the filesystem of whoever
// saves the download.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	// Drop any directory part, whichever separator the client used.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			// control characters
		case r == '"':
			b.WriteRune('\'')
		default:
			b.WriteRune(r)
		}
	}
	name = b.String()

	if name == "" || name == "." || name == ".." {
		return "file"
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}

// normalizeMime falls back to the generic binary type when the client
// supplied nothing usable.
func normalizeMime(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return "application/octet-stream"
	}
	if len(mimeType) > 100 {
		return "application/octet-stream"
	}
	return mimeType
}
