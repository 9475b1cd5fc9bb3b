package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sieve_queries_total",
			Help: "Queries executed through the fabric",
		},
		[]string{"status"}, // ok, planning_error, execution_error
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sieve_query_duration_seconds",
			Help:    "Wall time of streaming query execution",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	CompactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sieve_compactions_total",
			Help: "Compaction runs by outcome",
		},
		[]string{"status"}, // ok, error
	)

	CompactionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sieve_compaction_duration_seconds",
			Help:    "Wall time of one compaction run",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	CompactionOutputBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sieve_compaction_output_bytes_total",
			Help: "Bytes of compacted output produced",
		},
	)

	StagedFilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sieve_staged_files_total",
			Help: "Segment files staged into the storage fabric",
		},
	)

	FileStatCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sieve_file_stat_cache_hits_total",
			Help: "File-statistics cache hits",
		},
	)

	FileStatCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sieve_file_stat_cache_misses_total",
			Help: "File-statistics cache misses",
		},
	)
)
