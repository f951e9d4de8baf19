package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for HTTP requests and job lifecycle.
// In-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	jobsSubmitted      int64
	jobsFinished       = make(map[string]int64)
	jobDurationMsSum   = make(map[string]int64)
	retentionFiles     int64
	retentionBytes     int64
	retentionJobsEvict int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordJobSubmitted counts an accepted submission.
func RecordJobSubmitted() {
	mu.Lock()
	defer mu.Unlock()
	jobsSubmitted++
}

// RecordJobFinished counts a job reaching a terminal state and how long it
// ran.
func RecordJobFinished(state string, durationMs int64) {
	mu.Lock()
	defer mu.Unlock()
	jobsFinished[state]++
	if durationMs > 0 {
		jobDurationMsSum[state] += durationMs
	}
}

// RecordRetentionFiles adds artifacts reclaimed by a sweep.
func RecordRetentionFiles(files, bytes int64) {
	if files <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionFiles += files
	retentionBytes += bytes
}

// RecordRetentionJobs adds job records evicted by a sweep.
func RecordRetentionJobs(evicted int64) {
	if evicted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionJobsEvict += evicted
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP fetchd_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE fetchd_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		v := requestsTotal[k]
		fmt.Fprintf(&b, "fetchd_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP fetchd_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE fetchd_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP fetchd_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE fetchd_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "fetchd_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "fetchd_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP fetchd_jobs_submitted_total Total accepted download submissions\n")
	b.WriteString("# TYPE fetchd_jobs_submitted_total counter\n")
	fmt.Fprintf(&b, "fetchd_jobs_submitted_total %d\n", jobsSubmitted)

	b.WriteString("# HELP fetchd_jobs_finished_total Total jobs reaching a terminal state\n")
	b.WriteString("# TYPE fetchd_jobs_finished_total counter\n")
	b.WriteString("# HELP fetchd_job_duration_ms_sum Total run time of finished jobs in milliseconds\n")
	b.WriteString("# TYPE fetchd_job_duration_ms_sum counter\n")

	var states []string
	for s := range jobsFinished {
		states = append(states, s)
	}
	sort.Strings(states)
	for _, s := range states {
		fmt.Fprintf(&b, "fetchd_jobs_finished_total{state=\"%s\"} %d\n", s, jobsFinished[s])
		fmt.Fprintf(&b, "fetchd_job_duration_ms_sum{state=\"%s\"} %d\n", s, jobDurationMsSum[s])
	}

	// Retention metrics
	b.WriteString("# HELP fetchd_retention_files_deleted_total Total artifacts deleted by retention\n")
	b.WriteString("# TYPE fetchd_retention_files_deleted_total counter\n")
	fmt.Fprintf(&b, "fetchd_retention_files_deleted_total %d\n", retentionFiles)

	b.WriteString("# HELP fetchd_retention_bytes_reclaimed_total Total artifact bytes reclaimed by retention\n")
	b.WriteString("# TYPE fetchd_retention_bytes_reclaimed_total counter\n")
	fmt.Fprintf(&b, "fetchd_retention_bytes_reclaimed_total %d\n", retentionBytes)

	b.WriteString("# HELP fetchd_retention_jobs_evicted_total Total finished job records evicted\n")
	b.WriteString("# TYPE fetchd_retention_jobs_evicted_total counter\n")
	fmt.Fprintf(&b, "fetchd_retention_jobs_evicted_total %d\n", retentionJobsEvict)

	return b.String()
}
