// metrics.go - In-process counters exposed at /metrics.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Metrics holds application metrics
type Metrics struct {
	mu sync.RWMutex

	// Upload metrics
	uploadsTotal      int64
	uploadBytesTotal  int64
	uploadErrorsTotal int64
	malwareDetected   int64

	// Download metrics
	downloadsTotal     int64
	downloadBytesTotal int64
	claimConflicts     int64 // lost claim races (already consumed)
	expiredRejections  int64
	purgeFailures      int64

	// System metrics
	requestsTotal    int64
	requestErrors4xx int64
	requestErrors5xx int64
}

var globalMetrics = &Metrics{}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordRequest counts one HTTP request by status class.
func (m *Metrics) RecordRequest(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestsTotal++
	switch {
	case status >= 500:
		m.requestErrors5xx++
	case status >= 400:
		m.requestErrors4xx++
	}
}

// RecordUpload records a successful upload
func (m *Metrics) RecordUpload(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadsTotal++
	m.uploadBytesTotal += bytes
}

// RecordUploadError records an upload error
func (m *Metrics) RecordUploadError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadErrorsTotal++
}

// RecordMalwareDetected counts a rejected infected upload.
func (m *Metrics) RecordMalwareDetected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.malwareDetected++
}

// RecordDownload records a successful one-time download
func (m *Metrics) RecordDownload(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadsTotal++
	m.downloadBytesTotal += bytes
}

// RecordClaimConflict counts a download attempt that lost the claim
// race or hit an already consumed record.
func (m *Metrics) RecordClaimConflict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimConflicts++
}

// RecordExpiredRejection counts a download attempt on an expired record.
func (m *Metrics) RecordExpiredRejection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiredRejections++
}

// RecordPurgeFailure counts a best-effort blob deletion that failed.
func (m *Metrics) RecordPurgeFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeFailures++
}

// MetricsSnapshot is a consistent copy of all counters.
type MetricsSnapshot struct {
	UploadsTotal      int64
	UploadBytesTotal  int64
	UploadErrorsTotal int64
	MalwareDetected   int64
	DownloadsTotal    int64
	DownloadBytes     int64
	ClaimConflicts    int64
	ExpiredRejections int64
	PurgeFailures     int64
	RequestsTotal     int64
	RequestErrors4xx  int64
	RequestErrors5xx  int64
}

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		UploadsTotal:      m.uploadsTotal,
		UploadBytesTotal:  m.uploadBytesTotal,
		UploadErrorsTotal: m.uploadErrorsTotal,
		MalwareDetected:   m.malwareDetected,
		DownloadsTotal:    m.downloadsTotal,
		DownloadBytes:     m.downloadBytesTotal,
		ClaimConflicts:    m.claimConflicts,
		ExpiredRejections: m.expiredRejections,
		PurgeFailures:     m.purgeFailures,
		RequestsTotal:     m.requestsTotal,
		RequestErrors4xx:  m.requestErrors4xx,
		RequestErrors5xx:  m.requestErrors5xx,
	}
}

// metricsHandler renders the counters in Prometheus text format.
func metricsHandler(build BuildInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := GetMetrics().Snapshot()

		var out strings.Builder
		writeCounter := func(name, help string, v int64) {
			out.WriteString("# HELP " + name + " " + help + "\n")
			out.WriteString("# TYPE " + name + " counter\n")
			fmt.Fprintf(&out, "%s %d\n\n", name, v)
		}

		out.WriteString("# HELP ssr_info Application version info\n")
		out.WriteString("# TYPE ssr_info gauge\n")
		fmt.Fprintf(&out, "ssr_info{version=%q,commit=%q} 1\n\n", build.Version, build.Commit)

		writeCounter("ssr_requests_total", "Total number of HTTP requests", s.RequestsTotal)
		writeCounter("ssr_request_errors_4xx_total", "Client-error responses", s.RequestErrors4xx)
		writeCounter("ssr_request_errors_5xx_total", "Server-error responses", s.RequestErrors5xx)
		writeCounter("ssr_uploads_total", "Total number of stored uploads", s.UploadsTotal)
		writeCounter("ssr_upload_bytes_total", "Total plaintext bytes uploaded", s.UploadBytesTotal)
		writeCounter("ssr_upload_errors_total", "Failed upload attempts", s.UploadErrorsTotal)
		writeCounter("ssr_malware_detected_total", "Uploads rejected by the scanner", s.MalwareDetected)
		writeCounter("ssr_downloads_total", "Total number of one-time downloads", s.DownloadsTotal)
		writeCounter("ssr_download_bytes_total", "Total plaintext bytes downloaded", s.DownloadBytes)
		writeCounter("ssr_claim_conflicts_total", "Download attempts on consumed records", s.ClaimConflicts)
		writeCounter("ssr_expired_rejections_total", "Download attempts on expired records", s.ExpiredRejections)
		writeCounter("ssr_purge_failures_total", "Best-effort blob deletions that failed", s.PurgeFailures)

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(out.String()))
	}
}
