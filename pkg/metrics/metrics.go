// Package metrics exposes Prometheus metrics for the conversion engine:
// documents materialized into Arrow columns, documents projected back out,
// and bulk write batches submitted to MongoDB.
//
// # Basic Usage
//
//	timer := metrics.NewTimer("materialize")
//	tbl, err := m.Materialize(ctx, docs, s)
//	timer.ObserveDuration(err)
//
// All collectors are registered with the default registry on package init.
// The CLI dumps them in text exposition format with --metrics-file.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mongoarrow"

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// DocumentsMaterialized counts documents appended to Arrow builders.
	// Labels: status (success/failure of the pass the documents belonged to)
	DocumentsMaterialized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_materialized_total",
			Help:      "Total number of documents converted into Arrow columns",
		},
		[]string{"status"},
	)

	// DocumentsProjected counts rows turned back into BSON documents
	DocumentsProjected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_projected_total",
			Help:      "Total number of Arrow rows projected into BSON documents",
		},
	)

	// ProcessingLatency tracks the duration of whole operations in seconds.
	// Labels: operation (materialize/write/find/aggregate), status
	ProcessingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Duration of conversion and write operations in seconds",
			Buckets: []float64{
				0.001, // 1ms - tiny result sets
				0.01,
				0.1,
				1,  // 1s - large batch writes
				10, // 10s - multi-batch loads
				60,
			},
		},
		[]string{"operation", "status"},
	)

	// WriteBatches counts InsertMany batches by outcome
	WriteBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_batches_total",
			Help:      "Total number of bulk insert batches submitted",
		},
		[]string{"status"},
	)

	// DocumentsWritten counts documents acknowledged by the server
	DocumentsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_written_total",
			Help:      "Total number of documents inserted",
		},
	)

	// WriteErrors counts per-document write errors reported by the server
	WriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_errors_total",
			Help:      "Total number of per-document write errors",
		},
	)
)

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Stop returns the elapsed duration since creation. It may be called more than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the timer's elapsed time under its name
func (t *Timer) ObserveDuration(err error) time.Duration {
	d := t.Stop()
	ProcessingLatency.WithLabelValues(t.name, status(err)).Observe(d.Seconds())
	return d
}

// ObserveMaterialize records one materialization pass
func ObserveMaterialize(docs int, err error) {
	DocumentsMaterialized.WithLabelValues(status(err)).Add(float64(docs))
}

// ObserveBatch records one InsertMany batch
func ObserveBatch(inserted, writeErrors int, err error) {
	WriteBatches.WithLabelValues(status(err)).Inc()
	DocumentsWritten.Add(float64(inserted))
	WriteErrors.Add(float64(writeErrors))
}

func status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}
