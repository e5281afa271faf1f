// Package metrics defines the Prometheus collectors for the aggregation
// pipeline and exposes an HTTP handler for scraping. All recording methods
// are safe to call on a nil *Metrics, which disables collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// File statuses recorded by FileProcessed.
const (
	StatusOK        = "ok"
	StatusOpenError = "open_error"
	StatusNoContent = "no_content"
)

// Metrics holds all Prometheus collectors for a run.
type Metrics struct {
	FilesTotal        *prometheus.CounterVec
	PhrasesEmitted    prometheus.Counter
	ReducesTotal      prometheus.Counter
	SpillsTotal       *prometheus.CounterVec
	SpillBytesTotal   prometheus.Counter
	SpillDuration     prometheus.Histogram
	MergedSpillsTotal *prometheus.CounterVec
	StageDuration     *prometheus.GaugeVec
	DistinctPhrases   prometheus.Gauge
	ExportsTotal      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry creates the collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		FilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngram_files_total",
				Help: "Input files handled by the fold stage, by status.",
			},
			[]string{"status"},
		),
		PhrasesEmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ngram_phrases_emitted_total",
				Help: "Phrase occurrences extracted from committed files.",
			},
		),
		ReducesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ngram_reduces_total",
				Help: "Pairwise branch reductions performed.",
			},
		),
		SpillsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngram_spills_total",
				Help: "Branch snapshots written to temporary storage, by status.",
			},
			[]string{"status"},
		),
		SpillBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ngram_spill_bytes_total",
				Help: "Bytes written to spill files.",
			},
		),
		SpillDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ngram_spill_duration_seconds",
				Help:    "Time taken to serialise one spill file.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		MergedSpillsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngram_merged_spills_total",
				Help: "Spill files read back by the external merge, by status.",
			},
			[]string{"status"},
		),
		StageDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ngram_stage_duration_seconds",
				Help: "Wall-clock duration of each pipeline stage in the last run.",
			},
			[]string{"stage"},
		),
		DistinctPhrases: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ngram_distinct_phrases",
				Help: "Distinct phrases in the final merged table.",
			},
		),
		ExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ngram_exports_total",
				Help: "Report exports by sink and status.",
			},
			[]string{"sink", "status"},
		),
		gatherer: gatherer,
	}

	reg.MustRegister(
		m.FilesTotal,
		m.PhrasesEmitted,
		m.ReducesTotal,
		m.SpillsTotal,
		m.SpillBytesTotal,
		m.SpillDuration,
		m.MergedSpillsTotal,
		m.StageDuration,
		m.DistinctPhrases,
		m.ExportsTotal,
	)

	return m
}

func (m *Metrics) FileProcessed(status string, phrases int) {
	if m == nil {
		return
	}
	m.FilesTotal.WithLabelValues(status).Inc()
	if phrases > 0 {
		m.PhrasesEmitted.Add(float64(phrases))
	}
}

func (m *Metrics) Reduced() {
	if m == nil {
		return
	}
	m.ReducesTotal.Inc()
}

func (m *Metrics) Spilled(err error, bytes int64, d time.Duration) {
	if m == nil {
		return
	}
	if err != nil {
		m.SpillsTotal.WithLabelValues("error").Inc()
		return
	}
	m.SpillsTotal.WithLabelValues("ok").Inc()
	m.SpillBytesTotal.Add(float64(bytes))
	m.SpillDuration.Observe(d.Seconds())
}

func (m *Metrics) SpillMerged(status string) {
	if m == nil {
		return
	}
	m.MergedSpillsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) Stage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Set(d.Seconds())
}

func (m *Metrics) SetDistinct(n int) {
	if m == nil {
		return
	}
	m.DistinctPhrases.Set(float64(n))
}

func (m *Metrics) Exported(sink string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ExportsTotal.WithLabelValues(sink, status).Inc()
}

// Handler returns the Prometheus scrape HTTP handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
