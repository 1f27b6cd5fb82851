package trace

import (
	"sync"
)

// Entry is one synthetic memory access.
type Entry struct {
	Phase  Phase
	Thread uint8
	Op     Op
	Region Region
	Addr   uint64
}

// Trace is the append-only access log of a single run.
// It is safe for concurrent use.
type Trace struct {
	mu      sync.Mutex
	entries []Entry
}

// NewTrace creates an empty trace.
func NewTrace() *Trace {
	return &Trace{}
}

// Append adds a single entry under the trace lock.
func (t *Trace) Append(e Entry) {
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
}

// Merge appends a batch of entries with one lock acquisition, preserving their order.
func (t *Trace) Merge(batch []Entry) {
	if len(batch) == 0 {
		return
	}
	t.mu.Lock()
	t.entries = append(t.entries, batch...)
	t.mu.Unlock()
	traceFlushes.Inc()
}

// Entries returns a snapshot of the log.
func (t *Trace) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of recorded entries.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Reset drops every entry.
func (t *Trace) Reset() {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}

// Recorder resolves and appends accesses for one pipeline phase.
// Stages receive a copy already tagged through WithPhase.
type Recorder struct {
	layout *Layout
	sink   *Trace
	phase  Phase
}

// NewRecorder binds a layout to a trace. The returned recorder is tagged PhaseRDX
// until WithPhase is called.
func NewRecorder(layout *Layout, sink *Trace) Recorder {
	return Recorder{layout: layout, sink: sink, phase: PhaseRDX}
}

// WithPhase returns a copy of the recorder tagged with p.
func (r Recorder) WithPhase(p Phase) Recorder {
	r.phase = p
	return r
}

// Phase returns the tag applied to recorded entries.
func (r Recorder) Phase() Phase { return r.phase }

// Layout returns the address layout used for classification.
func (r Recorder) Layout() *Layout { return r.layout }

// Trace returns the shared sink.
func (r Recorder) Trace() *Trace { return r.sink }

func (r Recorder) entry(tid int, op Op, addr uint64) Entry {
	return Entry{
		Phase:  r.phase,
		Thread: uint8(tid),
		Op:     op,
		Region: r.layout.Classify(addr),
		Addr:   addr,
	}
}

// Record classifies addr and appends it to the shared trace.
// Only the trace lock is taken.
func (r Recorder) Record(tid int, op Op, addr uint64) {
	r.sink.Append(r.entry(tid, op, addr))
	entriesCounter(r.phase).Inc()
}

// Local returns a private buffer for a single worker.
func (r Recorder) Local() *Buffer {
	return &Buffer{rec: r}
}

// Buffer accumulates entries for one worker without locking.
// It is not safe for concurrent use.
type Buffer struct {
	rec     Recorder
	entries []Entry
}

// Record appends to the private buffer in program order.
func (b *Buffer) Record(tid int, op Op, addr uint64) {
	b.entries = append(b.entries, b.rec.entry(tid, op, addr))
}

// Len returns the number of pending entries.
func (b *Buffer) Len() int { return len(b.entries) }

// Flush drains the buffer into the shared trace with a single lock acquisition.
func (b *Buffer) Flush() {
	if len(b.entries) == 0 {
		return
	}
	b.rec.sink.Merge(b.entries)
	entriesCounter(b.rec.phase).Add(float64(len(b.entries)))
	b.entries = b.entries[:0]
}
