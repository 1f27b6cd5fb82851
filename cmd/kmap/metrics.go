package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kmap_builds_total",
		Help: "The total number of kernel map builds by outcome",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kmap_request_duration_seconds",
		Help:    "Time spent processing build requests",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kmap_cache_hits_total",
		Help: "Build requests answered from the response cache",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kmap_cache_misses_total",
		Help: "Build requests that ran the pipeline",
	})
)
