package trace

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	traceEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kmap_trace_entries_total",
		Help: "Total number of synthetic memory accesses recorded",
	}, []string{"phase"})

	traceFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kmap_trace_flushes_total",
		Help: "Total number of batched merges into a shared trace",
	})

	// Resolved once so the hot path skips the label lookup.
	phaseCounters = func() map[Phase]prometheus.Counter {
		m := make(map[Phase]prometheus.Counter)
		for _, p := range Phases() {
			m[p] = traceEntries.WithLabelValues(p.String())
		}
		return m
	}()
)

func entriesCounter(p Phase) prometheus.Counter {
	if c, ok := phaseCounters[p]; ok {
		return c
	}
	return traceEntries.WithLabelValues(p.String())
}
