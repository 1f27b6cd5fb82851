package kmap

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-kmap/internal/coord"
	"github.com/23skdu/longbow-kmap/internal/trace"
)

func runLookup(t *testing.T, rec trace.Recorder, coords, offsets []coord.Coord3D, tileSize int) *KernelMap {
	t.Helper()
	uniq := UniqueSorted(rec.WithPhase(trace.PhaseRDX), coords, 1)
	q := BuildQueries(uniq, offsets)
	idx := BuildTiles(rec.WithPhase(trace.PhasePVT), uniq, tileSize)
	km, err := Lookup(context.Background(), rec.WithPhase(trace.PhaseLKP), uniq, q, idx, LookupOptions{})
	require.NoError(t, err)
	return km
}

func TestLookup_EndToEndExample(t *testing.T) {
	rec, l := newRecorder(1)
	coords := []coord.Coord3D{{0, 0, 0}, {1, 0, 0}}
	offsets := []coord.Coord3D{{0, 0, 0}, {1, 0, 0}}

	uniq := UniqueSorted(rec.WithPhase(trace.PhaseRDX), coords, 1)
	q := BuildQueries(uniq, offsets)
	idx := BuildTiles(rec.WithPhase(trace.PhasePVT), uniq, 0)
	before := rec.Trace().Len()

	km, err := Lookup(context.Background(), rec.WithPhase(trace.PhaseLKP), uniq, q, idx, LookupOptions{})
	require.NoError(t, err)

	assert.Equal(t, []Match{{0, 0}, {1, 1}}, km.Get(0))
	assert.Equal(t, []Match{{1, 0}}, km.Get(1))

	groups := km.Sorted()
	require.Len(t, groups, 2)
	assert.Equal(t, 0, groups[0].OffsetIdx)
	assert.Equal(t, 1, groups[1].OffsetIdx)

	lkp := rec.Trace().Entries()[before:]
	require.Len(t, lkp, 18)
	var writes []uint64
	for _, e := range lkp {
		assert.Equal(t, trace.PhaseLKP, e.Phase)
		assert.Equal(t, uint8(0), e.Thread)
		if e.Op == trace.OpWrite {
			assert.Equal(t, trace.RegionKM, e.Region)
			writes = append(writes, e.Addr)
		}
	}
	assert.Equal(t, []uint64{l.KMBase, l.KMBase + l.SizeInt, l.KMBase + 2*l.SizeInt}, writes)
	assert.Equal(t, trace.Entry{Phase: trace.PhaseLKP, Op: trace.OpRead, Region: trace.RegionQK, Addr: l.QKBase}, lkp[0])
}

func TestLookup_Soundness(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	coords := randomCoords(r, 600, 6)
	offsets := coord.CubeOffsets(3)

	for _, threads := range []int{1, 3, 8} {
		for _, tileSize := range []int{0, 1, 5, 64} {
			rec, _ := newRecorder(threads)
			km := runLookup(t, rec, coords, offsets, tileSize)

			uniq := UniqueSorted(rec, coords, 1)
			byKey := map[uint32]int{}
			for _, ic := range uniq {
				byKey[ic.Key()] = ic.OrigIdx
			}
			for off, o := range offsets {
				var want []Match
				for _, ic := range uniq {
					if orig, ok := byKey[ic.Coord.Add(o).Key()]; ok {
						want = append(want, Match{InputIdx: orig, QuerySrcIdx: ic.OrigIdx})
					}
				}
				assert.ElementsMatch(t, want, km.Get(off), "threads=%d tile=%d offset=%d", threads, tileSize, off)
			}
		}
	}
}

func TestLookup_SingleThreadDeterministic(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	coords := randomCoords(r, 300, 5)
	offsets := coord.CubeOffsets(3)

	recA, _ := newRecorder(1)
	recB, _ := newRecorder(1)
	kmA := runLookup(t, recA, coords, offsets, 16)
	kmB := runLookup(t, recB, coords, offsets, 16)

	assert.Equal(t, kmA.Sorted(), kmB.Sorted())
	assert.Equal(t, recA.Trace().Entries(), recB.Trace().Entries())
}

func TestLookup_MultiThreadSetsStable(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	coords := randomCoords(r, 400, 5)
	offsets := coord.CubeOffsets(3)

	recA, _ := newRecorder(6)
	recB, _ := newRecorder(6)
	kmA := runLookup(t, recA, coords, offsets, 8)
	kmB := runLookup(t, recB, coords, offsets, 8)

	require.Equal(t, kmA.Len(), kmB.Len())
	for off := range offsets {
		assert.ElementsMatch(t, kmA.Get(off), kmB.Get(off))
	}
	assert.Equal(t, recA.Trace().Len(), recB.Trace().Len())
}

func TestLookup_ThreadIDsCoverPortions(t *testing.T) {
	rec, _ := newRecorder(4)
	coords := make([]coord.Coord3D, 64)
	for i := range coords {
		coords[i] = coord.Coord3D{X: int32(i % 8), Y: int32(i / 8)}
	}
	uniq := UniqueSorted(rec.WithPhase(trace.PhaseRDX), coords, 1)
	q := BuildQueries(uniq, []coord.Coord3D{{}, {X: 1}})
	idx := BuildTiles(rec.WithPhase(trace.PhasePVT), uniq, 8)
	before := rec.Trace().Len()

	_, err := Lookup(context.Background(), rec.WithPhase(trace.PhaseLKP), uniq, q, idx, LookupOptions{})
	require.NoError(t, err)

	seen := map[uint8]int{}
	for _, e := range rec.Trace().Entries()[before:] {
		if e.Region == trace.RegionQK {
			seen[e.Thread]++
		}
	}
	// 128 queries in one batch, 32 per worker.
	assert.Equal(t, map[uint8]int{0: 32, 1: 32, 2: 32, 3: 32}, seen)
}

func TestLookup_Empty(t *testing.T) {
	rec, _ := newRecorder(2)
	km, err := Lookup(context.Background(), rec, nil, Queries{}, TileIndex{}, LookupOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, km.Len())
	assert.Equal(t, 0, rec.Trace().Len())
}

func TestLookup_Cancelled(t *testing.T) {
	rec, _ := newRecorder(2)
	uniq := sortedUnique(4)
	q := BuildQueries(uniq, []coord.Coord3D{{}})
	idx := BuildTiles(rec, uniq, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Lookup(ctx, rec, uniq, q, idx, LookupOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLookup_DeterministicOption(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	coords := randomCoords(r, 500, 4)
	offsets := coord.CubeOffsets(3)

	build := func() *KernelMap {
		rec, _ := newRecorder(8)
		uniq := UniqueSorted(rec, coords, 1)
		q := BuildQueries(uniq, offsets)
		idx := BuildTiles(rec, uniq, 4)
		km, err := Lookup(context.Background(), rec, uniq, q, idx, LookupOptions{Deterministic: true})
		require.NoError(t, err)
		return km
	}
	assert.Equal(t, build().Sorted(), build().Sorted())
}
