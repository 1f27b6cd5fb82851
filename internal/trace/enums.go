package trace

// table is a fixed two-way lookup between small integer ids and their names.
// It is built once at package init and never mutated afterwards.
type table[T ~uint8] struct {
	names map[T]string
	ids   map[string]T
}

func newTable[T ~uint8](pairs map[string]T) table[T] {
	t := table[T]{
		names: make(map[T]string, len(pairs)),
		ids:   make(map[string]T, len(pairs)),
	}
	for name, id := range pairs {
		t.names[id] = name
		t.ids[name] = id
	}
	return t
}

func (t table[T]) name(id T) (string, bool) {
	n, ok := t.names[id]
	return n, ok
}

func (t table[T]) id(name string) (T, bool) {
	id, ok := t.ids[name]
	return id, ok
}

// Phase tags the pipeline stage that produced an access.
type Phase uint8

const (
	PhaseRDX Phase = iota // radix sort / dedup
	PhaseQRY              // query construction
	PhaseSRT              // sort
	PhasePVT              // tile and pivot build
	PhaseLKP              // lookup
	PhaseGTH              // gather
	PhaseSCT              // scatter
)

// Region identifies the logical tensor an address falls into.
type Region uint8

const (
	RegionI Region = iota
	RegionQK
	RegionQI
	RegionQO
	RegionPIV
	RegionKM
	RegionWC
	RegionTILE
	RegionIV
	RegionGM
	RegionWV
	RegionUnknown Region = 255
)

// Op is the kind of memory operation.
type Op uint8

const (
	OpRead Op = iota
	OpWrite
)

var (
	phases = newTable(map[string]Phase{
		"RDX": PhaseRDX, "QRY": PhaseQRY, "SRT": PhaseSRT, "PVT": PhasePVT,
		"LKP": PhaseLKP, "GTH": PhaseGTH, "SCT": PhaseSCT,
	})
	regions = newTable(map[string]Region{
		"I": RegionI, "QK": RegionQK, "QI": RegionQI, "QO": RegionQO,
		"PIV": RegionPIV, "KM": RegionKM, "WC": RegionWC, "TILE": RegionTILE,
		"IV": RegionIV, "GM": RegionGM, "WV": RegionWV, "Unknown": RegionUnknown,
	})
	ops = newTable(map[string]Op{"R": OpRead, "W": OpWrite})
)

func (p Phase) String() string {
	if n, ok := phases.name(p); ok {
		return n
	}
	return "Phase(?)"
}

func (r Region) String() string {
	if n, ok := regions.name(r); ok {
		return n
	}
	return "Unknown"
}

func (o Op) String() string {
	if n, ok := ops.name(o); ok {
		return n
	}
	return "Op(?)"
}

// ParsePhase resolves a phase name such as "LKP".
func ParsePhase(name string) (Phase, bool) { return phases.id(name) }

// ParseRegion resolves a region name such as "PIV".
func ParseRegion(name string) (Region, bool) { return regions.id(name) }

// ParseOp resolves "R" or "W".
func ParseOp(name string) (Op, bool) { return ops.id(name) }

// Phases lists every phase in id order.
func Phases() []Phase {
	return []Phase{PhaseRDX, PhaseQRY, PhaseSRT, PhasePVT, PhaseLKP, PhaseGTH, PhaseSCT}
}
