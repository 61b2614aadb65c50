// Package metrics registers the Prometheus collectors exposed by the
// control server's /metrics endpoint and updated by the rest of the
// pipeline as it runs.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DownloadsAttempted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "downloads_attempted_total",
		Help: "Total download attempts, one per URL per call to the downloader.",
	})
	DownloadsSucceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "downloads_succeeded_total",
		Help: "Total downloads that completed successfully.",
	})
	DownloadsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "downloads_failed_total",
		Help: "Total downloads that failed after exhausting retries.",
	})
	BytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bytes_written_total",
		Help: "Total bytes written to disk across all downloads.",
	})
	RetryCandidates = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "retry_candidates",
		Help: "Number of URLs currently eligible for another retry pass.",
	})
	ActiveWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "active_workers",
		Help: "Number of download workers currently in flight.",
	})
	PipelineRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_running",
		Help: "1 if a pipeline run is currently in progress, 0 otherwise.",
	})
	LastRunDurationSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "last_run_duration_seconds",
		Help: "Wall-clock duration of the most recently completed pipeline run.",
	})
)

// Register attaches every collector in this package to reg. Called once at
// process start; the control server's /metrics handler then delegates to
// promhttp against the same registry.
func Register(reg *prometheus.Registry) {
	reg.MustRegister(
		DownloadsAttempted,
		DownloadsSucceeded,
		DownloadsFailed,
		BytesWritten,
		RetryCandidates,
		ActiveWorkers,
		PipelineRunning,
		LastRunDurationSeconds,
	)
}
