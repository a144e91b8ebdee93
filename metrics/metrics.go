// Package metrics exposes the engine's Prometheus instrumentation: merge
// lifecycle counters, per-level component-tree gauges, merge duration, and
// cache hit/miss counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MergesStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ladderstore_merges_started_total",
		Help: "Total number of component-tree merges started.",
	})

	MergesCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ladderstore_merges_completed_total",
		Help: "Total number of component-tree merges completed successfully.",
	})

	MergesAborted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ladderstore_merges_aborted_total",
		Help: "Total number of component-tree merges aborted due to error.",
	})

	ComponentTreesPerLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ladderstore_component_trees_per_level",
			Help: "Number of component trees currently resident at each doubling-array level.",
		},
		[]string{"level"},
	)

	MergeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ladderstore_merge_duration_seconds",
		Help:    "Time spent running a single component-tree merge.",
		Buckets: prometheus.DefBuckets,
	})

	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ladderstore_pagecache_hits_total",
		Help: "Total number of page cache lookups that hit.",
	})

	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ladderstore_pagecache_misses_total",
		Help: "Total number of page cache lookups that missed.",
	})
)

func init() {
	prometheus.MustRegister(
		MergesStarted,
		MergesCompleted,
		MergesAborted,
		ComponentTreesPerLevel,
		MergeDuration,
		CacheHits,
		CacheMisses,
	)
}
