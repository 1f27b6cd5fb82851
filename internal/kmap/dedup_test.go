package kmap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-kmap/internal/coord"
	"github.com/23skdu/longbow-kmap/internal/trace"
)

func newRecorder(threads int) (trace.Recorder, *trace.Layout) {
	l := trace.DefaultLayout()
	l.NumThreads = threads
	return trace.NewRecorder(&l, trace.NewTrace()), &l
}

func randomCoords(r *rand.Rand, n int, extent int32) []coord.Coord3D {
	out := make([]coord.Coord3D, n)
	for i := range out {
		out[i] = coord.Coord3D{
			X: r.Int31n(2*extent) - extent,
			Y: r.Int31n(2*extent) - extent,
			Z: r.Int31n(2*extent) - extent,
		}
	}
	return out
}

func TestUniqueSorted_Empty(t *testing.T) {
	rec, _ := newRecorder(4)
	assert.Empty(t, UniqueSorted(rec, nil, 1))
	assert.Equal(t, 0, rec.Trace().Len())
}

func TestUniqueSorted_FirstOccurrenceWins(t *testing.T) {
	rec, _ := newRecorder(4)
	in := []coord.Coord3D{
		{2, 0, 0}, // 0
		{0, 0, 0}, // 1
		{2, 0, 0}, // 2
		{1, 1, 1}, // 3
		{0, 0, 0}, // 4
	}
	got := UniqueSorted(rec, in, 1)
	require.Len(t, got, 3)
	assert.Equal(t, coord.NewIndexed(coord.Coord3D{0, 0, 0}, 1), got[0])
	assert.Equal(t, coord.NewIndexed(coord.Coord3D{1, 1, 1}, 3), got[1])
	assert.Equal(t, coord.NewIndexed(coord.Coord3D{2, 0, 0}, 0), got[2])
}

func TestUniqueSorted_QuantizesByStride(t *testing.T) {
	rec, _ := newRecorder(1)
	in := []coord.Coord3D{{3, 3, 3}, {2, 2, 2}, {-1, 0, 0}}
	got := UniqueSorted(rec, in, 2)
	require.Len(t, got, 2)

	keys := map[uint32]int{}
	for _, ic := range got {
		keys[ic.Key()] = ic.OrigIdx
	}
	assert.Equal(t, 0, keys[coord.Coord3D{1, 1, 1}.Key()])
	assert.Equal(t, 2, keys[coord.Coord3D{-1, 0, 0}.Key()])
}

func TestUniqueSorted_Properties(t *testing.T) {
	rec, _ := newRecorder(3)
	r := rand.New(rand.NewSource(7))
	in := randomCoords(r, 2000, 8)

	got := UniqueSorted(rec, in, 1)

	first := map[uint32]int{}
	for i, c := range in {
		if _, ok := first[c.Key()]; !ok {
			first[c.Key()] = i
		}
	}
	require.Len(t, got, len(first))
	for i, ic := range got {
		if i > 0 {
			assert.Less(t, got[i-1].Key(), ic.Key())
		}
		assert.Equal(t, first[ic.Key()], ic.OrigIdx)
	}
}

func TestSimulatedRadixSortTrace(t *testing.T) {
	rec, l := newRecorder(4)
	rec = rec.WithPhase(trace.PhaseRDX)
	in := make([]coord.Coord3D, 5)
	UniqueSorted(rec, in, 1)

	entries := rec.Trace().Entries()
	require.Len(t, entries, radixPasses*3*len(in))

	// First pass: 5 histogram reads, then 5 read/write pairs.
	for i := 0; i < 5; i++ {
		e := entries[i]
		assert.Equal(t, trace.OpRead, e.Op)
		assert.Equal(t, uint8(i%4), e.Thread)
		assert.Equal(t, l.IBase+uint64(i)*l.SizeKey, e.Addr)
		assert.Equal(t, trace.RegionI, e.Region)
		assert.Equal(t, trace.PhaseRDX, e.Phase)
	}
	for i := 0; i < 5; i++ {
		rd, wr := entries[5+2*i], entries[6+2*i]
		assert.Equal(t, trace.OpRead, rd.Op)
		assert.Equal(t, trace.OpWrite, wr.Op)
		assert.Equal(t, rd.Addr, wr.Addr)
		assert.Equal(t, uint8(i%4), wr.Thread)
	}
}
