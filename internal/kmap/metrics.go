package kmap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kmap_stage_duration_seconds",
		Help:    "Time spent in each kernel map pipeline stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	lookupBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kmap_lookup_batches_total",
		Help: "Total number of lookup batches processed",
	})

	lookupMatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kmap_lookup_matches_total",
		Help: "Total number of kernel map matches found",
	})

	uniqueCoords = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kmap_unique_coords",
		Help:    "Number of unique coordinates per build",
		Buckets: prometheus.ExponentialBuckets(1, 4, 12),
	})
)
