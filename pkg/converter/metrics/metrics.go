// Package metrics collects per-run conversion statistics in a Prometheus
// registry and writes them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stackvity/to-utf/pkg/converter"
)

// Recorder implements converter.MetricsRecorder. Each run gets its own
// registry, so runs in one process do not share counters.
type Recorder struct {
	registry *prometheus.Registry

	// FilesProcessed counts finished files by outcome (success/cached/skipped/failed).
	FilesProcessed *prometheus.CounterVec

	// SourceEncodings counts converted or listed files by the encoding they were read as.
	SourceEncodings *prometheus.CounterVec

	// BytesRead sums the size of every processed source file.
	BytesRead prometheus.Counter

	// FileDuration measures how long a single file took, cache hits included.
	FileDuration prometheus.Histogram
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		FilesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "toutf_files_total",
			Help: "Files handled by the converter, by outcome",
		}, []string{"outcome"}),
		SourceEncodings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "toutf_source_encoding_files_total",
			Help: "Converted or listed files, by source encoding",
		}, []string{"encoding"}),
		BytesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "toutf_source_bytes_total",
			Help: "Bytes of source files processed",
		}),
		FileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "toutf_file_duration_seconds",
			Help:    "Time spent on a single file",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

// ObserveFile implements converter.MetricsRecorder.
func (r *Recorder) ObserveFile(outcome converter.Status, sourceEncoding string, bytes int64, duration time.Duration) {
	r.FilesProcessed.WithLabelValues(string(outcome)).Inc()
	if outcome == converter.StatusSuccess && sourceEncoding != "" {
		r.SourceEncodings.WithLabelValues(strings.ToUpper(sourceEncoding)).Inc()
	}
	if bytes > 0 {
		r.BytesRead.Add(float64(bytes))
	}
	r.FileDuration.Observe(duration.Seconds())
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
