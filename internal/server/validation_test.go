package server

import (
	"strings"
	"testing"
)

func TestClampTTL(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		want      int
	}{
		{"zero uses default", 0, 24},
		{"negative uses default", -5, 24},
		{"within bounds kept", 12, 12},
		{"at max kept", 48, 48},
		{"above max clamped", 100, 48},
		{"one is valid", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampTTL(tt.requested, 24, 48); got != tt.want {
				t.Errorf("clampTTL(%d) = %d, want %d", tt.requested, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "report.pdf", "report.pdf"},
		{"unix path stripped", "/etc/passwd", "passwd"},
		{"traversal stripped", "../../secret.txt", "secret.txt"},
		{"windows path stripped", `C:\Users\x\doc.docx`, "doc.docx"},
		{"quotes replaced", `my "file".txt`, "my 'file'.txt"},
		{"control chars dropped", "a\x00b\x1fc.txt", "abc.txt"},
		{"empty falls back", "", "file"},
		{"dot falls back", ".", "file"},
		{"dotdot falls back", "..", "file"},
		{"whitespace trimmed", "  doc.pdf  ", "doc.pdf"},
		{"unicode kept", "résumé.pdf", "résumé.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeFilename(tt.in); got != tt.want {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename_LengthCap(t *testing.T) {
	long := strings.Repeat("a", 300) + ".txt"
	got := sanitizeFilename(long)
	if len(got) != 255 {
		t.Errorf("Expected 255 bytes, got %d", len(got))
	}
}

func TestNormalizeMime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"text/plain", "text/plain"},
		{"", "application/octet-stream"},
		{"   ", "application/octet-stream"},
		{strings.Repeat("x", 150), "application/octet-stream"},
		{"application/pdf", "application/pdf"},
	}
	for _, tt := range tests {
		if got := normalizeMime(tt.in); got != tt.want {
			t.Errorf("normalizeMime(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
