package trace

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	_ = c.Write(&m)
	return m.GetCounter().GetValue()
}

func TestRecorder_Record(t *testing.T) {
	l := DefaultLayout()
	tr := NewTrace()
	rec := NewRecorder(&l, tr).WithPhase(PhasePVT)

	before := counterValue(entriesCounter(PhasePVT))
	rec.Record(0, OpWrite, l.PIVBase+4)
	rec.Record(3, OpRead, l.KMBase)

	got := tr.Entries()
	require.Len(t, got, 2)
	assert.Equal(t, Entry{Phase: PhasePVT, Thread: 0, Op: OpWrite, Region: RegionPIV, Addr: l.PIVBase + 4}, got[0])
	assert.Equal(t, Entry{Phase: PhasePVT, Thread: 3, Op: OpRead, Region: RegionKM, Addr: l.KMBase}, got[1])
	assert.Equal(t, 2.0, counterValue(entriesCounter(PhasePVT))-before)
}

func TestRecorder_PhaseIsPerValue(t *testing.T) {
	l := DefaultLayout()
	tr := NewTrace()
	base := NewRecorder(&l, tr)
	lkp := base.WithPhase(PhaseLKP)

	assert.Equal(t, PhaseRDX, base.Phase())
	assert.Equal(t, PhaseLKP, lkp.Phase())
	assert.Same(t, tr, lkp.Trace())
	assert.Same(t, &l, lkp.Layout())
}

func TestRecorder_Concurrent(t *testing.T) {
	l := DefaultLayout()
	tr := NewTrace()
	rec := NewRecorder(&l, tr).WithPhase(PhaseLKP)

	const workers, perWorker = 8, 500
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				rec.Record(tid, OpRead, l.QKBase+uint64(i)*l.SizeKey)
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, workers*perWorker, tr.Len())
}

func TestBuffer_FlushPreservesOrder(t *testing.T) {
	l := DefaultLayout()
	tr := NewTrace()
	rec := NewRecorder(&l, tr).WithPhase(PhaseLKP)

	tr.Append(Entry{Phase: PhaseRDX, Addr: 1})

	buf := rec.Local()
	for i := 0; i < 5; i++ {
		buf.Record(2, OpRead, l.QKBase+uint64(i))
	}
	assert.Equal(t, 5, buf.Len())
	assert.Equal(t, 1, tr.Len(), "buffered entries stay private until flushed")

	buf.Flush()
	assert.Equal(t, 0, buf.Len())

	got := tr.Entries()
	require.Len(t, got, 6)
	for i := 1; i < 6; i++ {
		assert.Equal(t, l.QKBase+uint64(i-1), got[i].Addr)
		assert.Equal(t, uint8(2), got[i].Thread)
		assert.Equal(t, RegionQK, got[i].Region)
	}

	buf.Flush()
	assert.Equal(t, 6, tr.Len(), "empty flush is a no-op")
}

func TestTrace_Reset(t *testing.T) {
	tr := NewTrace()
	tr.Merge([]Entry{{}, {}})
	assert.Equal(t, 2, tr.Len())
	tr.Reset()
	assert.Equal(t, 0, tr.Len())
	assert.Empty(t, tr.Entries())
}

func TestSummarize(t *testing.T) {
	entries := []Entry{
		{Phase: PhaseRDX, Thread: 0, Op: OpRead, Region: RegionI},
		{Phase: PhaseRDX, Thread: 1, Op: OpWrite, Region: RegionI},
		{Phase: PhaseLKP, Thread: 1, Op: OpRead, Region: RegionPIV},
		{Phase: PhaseLKP, Thread: 0, Op: OpWrite, Region: RegionKM},
	}
	s := Summarize(entries)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Reads)
	assert.Equal(t, 2, s.Writes)
	assert.Equal(t, map[string]int{"RDX": 2, "LKP": 2}, s.ByPhase)
	assert.Equal(t, map[string]int{"I": 2, "PIV": 1, "KM": 1}, s.ByRegion)
	assert.Equal(t, []int{2, 2}, s.ByThread)
	assert.InDelta(t, 2.0, s.LoadMean, 1e-9)
	assert.InDelta(t, 0.0, s.LoadStdDev, 1e-9)

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.Total)
	assert.Empty(t, empty.ByThread)
}
