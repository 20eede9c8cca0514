// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLMRequests counts completed LLM provider requests by outcome.
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifelens_llm_requests_total",
		Help: "LLM provider requests by outcome (success, transient, rate_limited, permanent).",
	}, []string{"outcome"})

	// LLMRetries counts retried LLM calls.
	LLMRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifelens_llm_retries_total",
		Help: "LLM calls that were retried after a transient failure or rate limit.",
	})

	// CacheHits counts content-cache hits by cache key kind.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifelens_cache_hits_total",
		Help: "Content cache hits by key kind (extract, agg).",
	}, []string{"kind"})

	// CacheMisses counts content-cache misses by cache key kind.
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifelens_cache_misses_total",
		Help: "Content cache misses by key kind (extract, agg).",
	}, []string{"kind"})

	// JobsFinished counts jobs reaching a terminal status.
	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifelens_jobs_finished_total",
		Help: "Jobs reaching a terminal status, by job type and status.",
	}, []string{"job_type", "status"})

	// PipelinePhase reports the coordinator's current phase as a one-hot gauge.
	PipelinePhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lifelens_pipeline_phase",
		Help: "Current pipeline phase (1 for the active phase, 0 otherwise).",
	}, []string{"phase"})

	// ProcessedEntries reports how many entries the current run has extracted.
	ProcessedEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lifelens_processed_entries",
		Help: "Entries extracted so far in the current run.",
	})
)

// SetPhase marks phase as active and clears the others.
func SetPhase(phase string) {
	for _, p := range []string{"idle", "extracting", "aggregating", "complete"} {
		v := 0.0
		if p == phase {
			v = 1.0
		}
		PipelinePhase.WithLabelValues(p).Set(v)
	}
}
