package trace

import (
	"errors"
	"fmt"
)

// ErrInvalidLayout is returned by Validate.
var ErrInvalidLayout = errors.New("invalid address layout")

// wvSpan bounds the WV region; anything past WVBase+wvSpan is Unknown.
const wvSpan = 2 << 32

// Layout is the synthetic address map of the target accelerator.
// It is read-only for the duration of a run.
type Layout struct {
	IBase    uint64
	TileBase uint64 // alias of IBase
	QKBase   uint64
	QIBase   uint64
	QOBase   uint64
	PIVBase  uint64
	KMBase   uint64
	WOBase   uint64
	IVBase   uint64
	GMBase   uint64
	WVBase   uint64

	NumThreads int
	SizeKey    uint64
	SizeInt    uint64
	SizeWeight uint64
	SizeFeat   uint64

	Debug bool
}

// DefaultLayout returns the stock region map.
func DefaultLayout() Layout {
	return Layout{
		IBase:      0x10000000,
		TileBase:   0x10000000,
		QKBase:     0x20000000,
		QIBase:     0x30000000,
		QOBase:     0x40000000,
		PIVBase:    0x50000000,
		KMBase:     0x60000000,
		WOBase:     0x80000000,
		IVBase:     0x100000000,
		GMBase:     0x800000000,
		WVBase:     0xF00000000,
		NumThreads: 4,
		SizeKey:    4,
		SizeInt:    4,
		SizeWeight: 4,
		SizeFeat:   2,
	}
}

func (l *Layout) bases() []struct {
	name string
	addr uint64
} {
	return []struct {
		name string
		addr uint64
	}{
		{"I", l.IBase}, {"QK", l.QKBase}, {"QI", l.QIBase}, {"QO", l.QOBase},
		{"PIV", l.PIVBase}, {"KM", l.KMBase}, {"WO", l.WOBase}, {"IV", l.IVBase},
		{"GM", l.GMBase}, {"WV", l.WVBase},
	}
}

// Validate checks that regions are strictly increasing and that thread ids fit in a byte.
func (l *Layout) Validate() error {
	b := l.bases()
	for i := 1; i < len(b); i++ {
		if b[i].addr <= b[i-1].addr {
			return fmt.Errorf("%w: %s_BASE (0x%x) must be above %s_BASE (0x%x)",
				ErrInvalidLayout, b[i].name, b[i].addr, b[i-1].name, b[i-1].addr)
		}
	}
	if l.NumThreads < 1 || l.NumThreads > 256 {
		return fmt.Errorf("%w: NUM_THREADS must be in [1, 256], got %d", ErrInvalidLayout, l.NumThreads)
	}
	if l.SizeKey == 0 || l.SizeInt == 0 || l.SizeWeight == 0 || l.SizeFeat == 0 {
		return fmt.Errorf("%w: element sizes must be positive", ErrInvalidLayout)
	}
	return nil
}

// Classify maps an address onto the region containing it.
func (l *Layout) Classify(addr uint64) Region {
	switch {
	case addr >= l.IBase && addr < l.QKBase:
		return RegionI
	case addr >= l.QKBase && addr < l.QIBase:
		return RegionQK
	case addr >= l.QIBase && addr < l.QOBase:
		return RegionQI
	case addr >= l.QOBase && addr < l.PIVBase:
		return RegionQO
	case addr >= l.PIVBase && addr < l.KMBase:
		return RegionPIV
	case addr >= l.KMBase && addr < l.WOBase:
		return RegionKM
	case addr >= l.WOBase && addr < l.IVBase:
		return RegionWC
	case addr >= l.IVBase && addr < l.GMBase:
		return RegionIV
	case addr >= l.GMBase && addr < l.WVBase:
		return RegionGM
	case addr >= l.WVBase && addr < l.WVBase+wvSpan:
		return RegionWV
	}
	return RegionUnknown
}
