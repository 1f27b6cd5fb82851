package kmap

import (
	"cmp"
	"slices"
	"sync"
)

// Match is one correspondence: the input point found at the shifted
// coordinate and the input point the query was generated from.
type Match struct {
	InputIdx    int `cbor:"input_idx"`
	QuerySrcIdx int `cbor:"query_src_idx"`
}

// Group is one offset's match list.
type Group struct {
	OffsetIdx int
	Matches   []Match
}

// KernelMap maps an offset index to its match list.
// Appends are safe for concurrent use.
type KernelMap struct {
	mu      sync.Mutex
	entries map[int][]Match
}

// NewKernelMap creates an empty map.
func NewKernelMap() *KernelMap {
	return &KernelMap{entries: make(map[int][]Match)}
}

// Append adds m to the list of offIdx under the map lock.
func (k *KernelMap) Append(offIdx int, m Match) {
	k.mu.Lock()
	k.entries[offIdx] = append(k.entries[offIdx], m)
	k.mu.Unlock()
}

// Get returns a copy of the match list for offIdx.
func (k *KernelMap) Get(offIdx int) []Match {
	k.mu.Lock()
	defer k.mu.Unlock()
	return slices.Clone(k.entries[offIdx])
}

// Len returns the number of offsets with at least one match.
func (k *KernelMap) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// Total returns the number of matches across all offsets.
func (k *KernelMap) Total() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for _, ms := range k.entries {
		n += len(ms)
	}
	return n
}

// Sorted returns the groups ordered by descending match count, then by
// ascending offset index.
func (k *KernelMap) Sorted() []Group {
	k.mu.Lock()
	groups := make([]Group, 0, len(k.entries))
	for off, ms := range k.entries {
		groups = append(groups, Group{OffsetIdx: off, Matches: slices.Clone(ms)})
	}
	k.mu.Unlock()

	slices.SortStableFunc(groups, func(a, b Group) int {
		if c := cmp.Compare(len(b.Matches), len(a.Matches)); c != 0 {
			return c
		}
		return cmp.Compare(a.OffsetIdx, b.OffsetIdx)
	})
	return groups
}

// SortMatches orders every match list by (QuerySrcIdx, InputIdx).
func (k *KernelMap) SortMatches() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, ms := range k.entries {
		slices.SortFunc(ms, func(a, b Match) int {
			if c := cmp.Compare(a.QuerySrcIdx, b.QuerySrcIdx); c != 0 {
				return c
			}
			return cmp.Compare(a.InputIdx, b.InputIdx)
		})
	}
}
