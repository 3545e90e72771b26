// Package metrics defines custom Prometheus metrics for BucketDesk.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketdesk_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bucketdesk_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Bucket operation metrics.
var (
	// OperationsTotal counts bucket operations by name and outcome status
	// ("success", "bad_request", "conflict", "not_found", "internal").
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketdesk_operations_total",
			Help: "Bucket operations by type and outcome",
		},
		[]string{"operation", "status"},
	)

	// TransferBytesTotal counts bytes moved by uploads and downloads.
	TransferBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketdesk_transfer_bytes_total",
			Help: "Bytes transferred to or from the object store",
		},
		[]string{"direction"},
	)

	// ErrorsReportedTotal counts internal failures handed to the error
	// reporter, by operation.
	ErrorsReportedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketdesk_errors_reported_total",
			Help: "Internal failures reported, by operation",
		},
		[]string{"operation"},
	)
)

// Transfer directions used as TransferBytesTotal labels.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// Register registers all Prometheus collectors with the default registry.
// This must be called explicitly (typically from main) so that metrics
// registration can be made conditional on configuration. It is safe to call
// multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			OperationsTotal,
			TransferBytesTotal,
			ErrorsReportedTotal,
		)
		// Initialize the transfer counters so they appear in /metrics output
		// before the first transfer.
		TransferBytesTotal.WithLabelValues(DirectionUpload)
		TransferBytesTotal.WithLabelValues(DirectionDownload)
	})
}

// routes are the fixed request paths served by BucketDesk.
var routes = map[string]bool{
	"/":             true,
	"/listBuckets":  true,
	"/findBucket":   true,
	"/listObjects":  true,
	"/findObject":   true,
	"/createBucket": true,
	"/uploadFile":   true,
	"/downloadFile": true,
	"/deleteBucket": true,
	"/emptyBucket":  true,
	"/health":       true,
	"/metrics":      true,
}

// NormalizePath maps actual request paths to a bounded set of labels
// suitable for Prometheus. Unknown paths collapse to "other" so probes and
// typos cannot grow label cardinality.
func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if routes[path] {
		return path
	}
	if path == "/docs" || strings.HasPrefix(path, "/docs/") {
		return "/docs"
	}
	if strings.HasPrefix(path, "/openapi") {
		return "/openapi"
	}
	if trimmed := strings.TrimSuffix(path, "/"); trimmed != path && routes[trimmed] {
		return trimmed
	}
	return "other"
}
