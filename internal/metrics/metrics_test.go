package metrics

import (
	"strings"
	"testing"
)

func TestRecordRequestAndExport(t *testing.T) {
	// Record a single request and ensure it appears in the export.
	RecordRequest("GET", "/status/:id", 200, 42)

	out := Export()
	if !strings.Contains(out, "fetchd_http_requests_total{method=\"GET\",path=\"/status/:id\",status=\"200\"}") {
		t.Fatalf("expected HTTP request metric for GET /status/:id in export, got:\n%s", out)
	}
	if !strings.Contains(out, "fetchd_http_request_duration_ms_sum") || !strings.Contains(out, "fetchd_http_request_duration_ms_count") {
		t.Fatalf("expected latency metrics headers in export, got:\n%s", out)
	}
}

func TestRecordJobMetrics(t *testing.T) {
	RecordJobSubmitted()
	RecordJobFinished("completed", 1200)
	RecordJobFinished("failed", 0)

	out := Export()
	if !strings.Contains(out, "fetchd_jobs_submitted_total ") {
		t.Fatalf("expected jobs_submitted_total, got:\n%s", out)
	}
	if !strings.Contains(out, "fetchd_jobs_finished_total{state=\"completed\"}") {
		t.Fatalf("expected completed jobs counter, got:\n%s", out)
	}
	if !strings.Contains(out, "fetchd_jobs_finished_total{state=\"failed\"}") {
		t.Fatalf("expected failed jobs counter, got:\n%s", out)
	}
}

func TestRecordRetentionMetrics(t *testing.T) {
	RecordRetentionFiles(2, 2048)
	RecordRetentionJobs(1)
	// Non-positive values are ignored.
	RecordRetentionFiles(0, 999)

	out := Export()
	if !strings.Contains(out, "fetchd_retention_files_deleted_total") {
		t.Fatalf("expected retention files metric, got:\n%s", out)
	}
	if !strings.Contains(out, "fetchd_retention_bytes_reclaimed_total") {
		t.Fatalf("expected retention bytes metric, got:\n%s", out)
	}
	if !strings.Contains(out, "fetchd_retention_jobs_evicted_total") {
		t.Fatalf("expected retention jobs metric, got:\n%s", out)
	}
}
