package trace

import (
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates a trace for reporting.
type Summary struct {
	Total      int            `cbor:"total" json:"total"`
	Reads      int            `cbor:"reads" json:"reads"`
	Writes     int            `cbor:"writes" json:"writes"`
	ByPhase    map[string]int `cbor:"by_phase" json:"by_phase"`
	ByRegion   map[string]int `cbor:"by_region" json:"by_region"`
	ByThread   []int          `cbor:"by_thread" json:"by_thread"`
	LoadMean   float64        `cbor:"load_mean" json:"load_mean"`
	LoadStdDev float64        `cbor:"load_stddev" json:"load_stddev"`
}

// Summarize counts entries per phase, region, op and thread. LoadMean and
// LoadStdDev describe how evenly accesses spread over the threads that appear.
func Summarize(entries []Entry) Summary {
	s := Summary{
		Total:    len(entries),
		ByPhase:  make(map[string]int),
		ByRegion: make(map[string]int),
	}
	maxThread := -1
	for _, e := range entries {
		if int(e.Thread) > maxThread {
			maxThread = int(e.Thread)
		}
	}
	s.ByThread = make([]int, maxThread+1)

	for _, e := range entries {
		if e.Op == OpWrite {
			s.Writes++
		} else {
			s.Reads++
		}
		s.ByPhase[e.Phase.String()]++
		s.ByRegion[e.Region.String()]++
		s.ByThread[e.Thread]++
	}

	if len(s.ByThread) > 0 {
		loads := make([]float64, len(s.ByThread))
		for i, n := range s.ByThread {
			loads[i] = float64(n)
		}
		if len(loads) == 1 {
			s.LoadMean = loads[0]
		} else {
			s.LoadMean, s.LoadStdDev = stat.MeanStdDev(loads, nil)
		}
	}
	return s
}
