package kmap

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-kmap/internal/coord"
	"github.com/23skdu/longbow-kmap/internal/trace"
)

// BatchSize is the number of queries resolved per fan-out.
const BatchSize = 128

// LookupOptions tunes Lookup.
type LookupOptions struct {
	// Deterministic sorts every match list once the lookup completes.
	Deterministic bool
}

type lookupState struct {
	rec     trace.Recorder
	uniq    []coord.IndexedCoord
	queries Queries
	index   TileIndex
	kmap    *KernelMap
	kmSlot  atomic.Uint64
}

// Lookup resolves every query against the tile index and returns the kernel map.
//
// Queries are processed in batches of BatchSize. Each batch is split into
// NumThreads contiguous portions that run concurrently; the next batch starts
// only after every worker of the current one has finished and merged its
// trace buffer. Matches are appended under the kernel map lock as they are
// found, so with more than one worker the order inside a match list depends
// on scheduling. ctx is checked between batches.
func Lookup(ctx context.Context, rec trace.Recorder, uniq []coord.IndexedCoord, queries Queries, index TileIndex, opts LookupOptions) (*KernelMap, error) {
	km := NewKernelMap()
	if len(uniq) == 0 || queries.Len() == 0 {
		return km, nil
	}

	st := &lookupState{rec: rec, uniq: uniq, queries: queries, index: index, kmap: km}
	numThreads := rec.Layout().NumThreads
	qryCount := queries.Len()
	numBatches := (qryCount + BatchSize - 1) / BatchSize

	log.Info().Int("threads", numThreads).Int("batches", numBatches).Msg("Starting LKP phase")

	for b := 0; b < numBatches; b++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batchStart := b * BatchSize
		batchLen := min(BatchSize, qryCount-batchStart)
		portion := (batchLen + numThreads - 1) / numThreads

		var wg sync.WaitGroup
		for tid := 0; tid < numThreads; tid++ {
			start := tid * portion
			if start >= batchLen {
				break
			}
			end := min(start+portion, batchLen)

			wg.Add(1)
			go func(tid, s, e int) {
				defer wg.Done()
				buf := rec.Local()
				for q := batchStart + s; q < batchStart+e; q++ {
					st.resolve(buf, tid, q)
				}
				buf.Flush()
			}(tid, start, end)
		}
		wg.Wait()
		lookupBatches.Inc()

		if (b+1)%10 == 0 || b+1 == numBatches {
			log.Info().Int("batch", b+1).Int("of", numBatches).Msg("LKP progress")
		}
	}

	if opts.Deterministic {
		km.SortMatches()
	}
	lookupMatches.Add(float64(km.Total()))
	log.Info().Int("offsets", km.Len()).Int("matches", km.Total()).Msg("LKP phase complete")
	return km, nil
}

// resolve looks up query q on behalf of worker tid.
func (st *lookupState) resolve(buf *trace.Buffer, tid, q int) {
	l := st.rec.Layout()
	qk := st.queries.Keys[q]
	key := qk.Key()

	buf.Record(tid, trace.OpRead, l.QKBase+uint64(q)*l.SizeKey)

	if len(st.index.Pivots) == 0 {
		return
	}
	tile := st.index.Find(key, func(mid int) {
		buf.Record(tid, trace.OpRead, l.PIVBase+uint64(mid)*l.SizeKey)
	})
	// A key below the first pivot still scans tile 0.
	if tile < 0 {
		tile = 0
	}
	if tile >= len(st.index.Tiles) {
		return
	}

	for local, ic := range st.index.Tiles[tile] {
		// Tile-relative position approximated from the nominal tile size, for addressing only.
		pos := tile*st.index.TileSize + local
		if pos >= len(st.uniq) {
			pos = len(st.uniq) - 1
		}
		buf.Record(tid, trace.OpRead, l.TileBase+uint64(pos)*l.SizeKey)

		if ic.Key() == key {
			st.kmap.Append(st.queries.OffIdx[q], Match{InputIdx: ic.OrigIdx, QuerySrcIdx: qk.OrigIdx})
			slot := st.kmSlot.Add(1) - 1
			buf.Record(tid, trace.OpWrite, l.KMBase+slot*l.SizeInt)
			return
		}
	}
}
