package kmap

import (
	"cmp"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-kmap/internal/coord"
	"github.com/23skdu/longbow-kmap/internal/trace"
)

const radixPasses = 4

type keyedIndex struct {
	key uint32
	idx int
}

// simulateRadixSort records the accesses of an LSD radix sort over n 32-bit keys
// stored at base, one pass per byte. Every element is read once for the
// histogram, then read again and written to its bucket slot; the written slot
// is approximated by the element index. Nothing is reordered.
func simulateRadixSort(rec trace.Recorder, n int, base uint64) {
	if n == 0 {
		return
	}
	l := rec.Layout()
	for p := 0; p < radixPasses; p++ {
		for i := 0; i < n; i++ {
			rec.Record(i%l.NumThreads, trace.OpRead, base+uint64(i)*l.SizeKey)
		}
		for i := 0; i < n; i++ {
			tid := i % l.NumThreads
			addr := base + uint64(i)*l.SizeKey
			rec.Record(tid, trace.OpRead, addr)
			rec.Record(tid, trace.OpWrite, addr)
		}
	}
}

// UniqueSorted quantizes coords by stride and returns one entry per distinct
// key, sorted ascending by key. Each entry carries the original index of the
// first input (in input order) that produced its key.
func UniqueSorted(rec trace.Recorder, coords []coord.Coord3D, stride int) []coord.IndexedCoord {
	pairs := make([]keyedIndex, len(coords))
	for i, c := range coords {
		pairs[i] = keyedIndex{key: c.Quantized(stride).Key(), idx: i}
	}

	simulateRadixSort(rec, len(pairs), rec.Layout().IBase)

	slices.SortStableFunc(pairs, func(a, b keyedIndex) int {
		return cmp.Compare(a.key, b.key)
	})

	var uniq []coord.IndexedCoord
	for i, p := range pairs {
		if i > 0 && p.key == pairs[i-1].key {
			continue
		}
		uniq = append(uniq, coord.NewIndexed(coord.FromKey(p.key), p.idx))
	}

	if rec.Layout().Debug {
		log.Debug().Int("count", len(uniq)).Msg("Unique sorted coordinates")
		for _, ic := range uniq {
			log.Debug().
				Str("key", coord.KeyHex(ic.Key())).
				Stringer("coord", ic.Coord).
				Int("orig_idx", ic.OrigIdx).
				Msg("unique coord")
		}
	}
	return uniq
}
