package kmap

import "github.com/23skdu/longbow-kmap/internal/coord"

// Queries is the offset-major cross product of unique coordinates and
// kernel offsets, stored as parallel slices. Query k belongs to offset
// k / U and unique coordinate k % U, where U is the number of unique coordinates.
type Queries struct {
	// Keys holds the shifted coordinate, carrying the source point's original index.
	Keys    []coord.IndexedCoord
	InIdx   []int
	OffIdx  []int
	Offsets []coord.Coord3D

	numInputs int
}

// BuildQueries shifts every unique coordinate by every offset. No accesses are recorded.
func BuildQueries(uniq []coord.IndexedCoord, offsets []coord.Coord3D) Queries {
	u, f := len(uniq), len(offsets)
	total := u * f
	q := Queries{
		Keys:      make([]coord.IndexedCoord, total),
		InIdx:     make([]int, total),
		OffIdx:    make([]int, total),
		Offsets:   make([]coord.Coord3D, total),
		numInputs: u,
	}
	for off, o := range offsets {
		for in, ic := range uniq {
			k := off*u + in
			q.Keys[k] = coord.NewIndexed(ic.Coord.Add(o), ic.OrigIdx)
			q.InIdx[k] = in
			q.OffIdx[k] = off
			q.Offsets[k] = o
		}
	}
	return q
}

// Len returns the number of queries.
func (q Queries) Len() int { return len(q.Keys) }

// Decode splits a query index into its offset index and unique-coordinate index.
func (q Queries) Decode(k int) (offIdx, inIdx int) {
	if q.numInputs == 0 {
		return 0, 0
	}
	return k / q.numInputs, k % q.numInputs
}
