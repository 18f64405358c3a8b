// Package metrics collects run counters on a private prometheus registry.
//
// The tool runs as a batch job, so nothing is served over HTTP. Counters are
// written once at the end of a run in the text exposition format, for the
// node_exporter textfile collector.
package metrics

import (
	"fmt"

	"github.com/poiesic/scriptorium/dedupe"
	"github.com/poiesic/scriptorium/embed"
	"github.com/poiesic/scriptorium/importer"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "scriptorium"

// Metrics holds the counters for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	embedAttempts  prometheus.Counter
	embedFailures  *prometheus.CounterVec
	recordsSkipped prometheus.Counter
	chunks         *prometheus.CounterVec
	rowsImported   prometheus.Counter
	rowsFailed     prometheus.Counter
	duplicates     prometheus.Counter
	rowsDeleted    prometheus.Counter
	reembedded     *prometheus.CounterVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		embedAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_attempts_total",
			Help:      "Calls made to the embedding service, retries included",
		}),
		embedFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_failures_total",
			Help:      "Entries whose embedding could not be generated, by failure kind",
		}, []string{"kind"}),
		recordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Entries left out of the import because they had no valid embedding",
		}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_chunks_total",
			Help:      "Import chunks by outcome",
		}, []string{"status"}),
		rowsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_imported_total",
			Help:      "Rows acknowledged by the store",
		}),
		rowsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_failed_total",
			Help:      "Rows sent to the store but not acknowledged",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_found_total",
			Help:      "Passages dropped as fingerprint duplicates",
		}),
		rowsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_deleted_total",
			Help:      "Duplicate rows deleted from the store",
		}),
		reembedded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reembed_records_total",
			Help:      "Stored records visited by the regeneration pass, by outcome",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.embedAttempts,
		m.embedFailures,
		m.recordsSkipped,
		m.chunks,
		m.rowsImported,
		m.rowsFailed,
		m.duplicates,
		m.rowsDeleted,
		m.reembedded,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveDuplicates counts passages dropped by deduplication.
func (m *Metrics) ObserveDuplicates(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.duplicates.Add(float64(n))
}

// ObserveEmbedding records the outcome of a batch embedding pass.
func (m *Metrics) ObserveEmbedding(r embed.Report) {
	if m == nil {
		return
	}
	m.embedAttempts.Add(float64(r.Attempts))
	m.embedFailures.WithLabelValues("transient").Add(float64(r.Transient))
	m.embedFailures.WithLabelValues("validation").Add(float64(r.Validation))
}

// ObserveSkipped counts entries refused during preparation.
func (m *Metrics) ObserveSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsSkipped.Add(float64(n))
}

// ObserveImport records chunk outcomes and row counts of an import.
func (m *Metrics) ObserveImport(r *importer.Report) {
	if m == nil || r == nil {
		return
	}
	for _, c := range r.ChunkResults {
		m.chunks.WithLabelValues(c.Status.String()).Inc()
	}
	m.rowsImported.Add(float64(r.SuccessCount))
	m.rowsFailed.Add(float64(r.ErrorCount))
}

// ObservePurge records the outcome of a duplicate purge.
func (m *Metrics) ObservePurge(r *dedupe.PurgeReport) {
	if m == nil || r == nil {
		return
	}
	m.duplicates.Add(float64(r.Duplicates))
	m.rowsDeleted.Add(float64(r.Deleted))
}

// ObserveReembed records the outcome counts of a regeneration pass.
func (m *Metrics) ObserveReembed(updated, failed, skipped int) {
	if m == nil {
		return
	}
	m.reembedded.WithLabelValues("updated").Add(float64(updated))
	m.reembedded.WithLabelValues("failed").Add(float64(failed))
	m.reembedded.WithLabelValues("skipped").Add(float64(skipped))
}

// WriteTextfile writes every collected metric to path. The file is written
// to a temporary name and renamed so the collector never sees a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
