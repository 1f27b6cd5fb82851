package kmap

import (
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-kmap/internal/coord"
	"github.com/23skdu/longbow-kmap/internal/trace"
)

// TileIndex partitions the sorted unique coordinates into contiguous tiles.
// Pivots[i] is the first element of Tiles[i]; pivot keys increase strictly.
type TileIndex struct {
	Tiles    [][]coord.IndexedCoord
	Pivots   []coord.IndexedCoord
	TileSize int
}

// BuildTiles chunks uniq left to right into tiles of tileSize elements (the
// last one may be shorter). A tileSize of zero or less yields a single tile.
// Each pivot write is recorded by thread 0.
func BuildTiles(rec trace.Recorder, uniq []coord.IndexedCoord, tileSize int) TileIndex {
	if len(uniq) == 0 {
		if rec.Layout().Debug {
			log.Debug().Msg("Skipping tile creation, no unique coordinates")
		}
		return TileIndex{TileSize: tileSize}
	}
	if tileSize <= 0 {
		tileSize = len(uniq)
		if rec.Layout().Debug {
			log.Debug().Int("tile_size", tileSize).Msg("Tile size not set, using full range")
		}
	}

	l := rec.Layout()
	numTiles := (len(uniq) + tileSize - 1) / tileSize
	idx := TileIndex{
		Tiles:    make([][]coord.IndexedCoord, 0, numTiles),
		Pivots:   make([]coord.IndexedCoord, 0, numTiles),
		TileSize: tileSize,
	}
	for start := 0; start < len(uniq); start += tileSize {
		end := min(start+tileSize, len(uniq))
		idx.Tiles = append(idx.Tiles, uniq[start:end:end])
		idx.Pivots = append(idx.Pivots, uniq[start])
		rec.Record(0, trace.OpWrite, l.PIVBase+uint64(len(idx.Pivots)-1)*l.SizeKey)
	}

	if l.Debug {
		log.Debug().Int("tiles", len(idx.Tiles)).Int("pivots", len(idx.Pivots)).Msg("Created tiles")
	}
	return idx
}

// Find returns the index of the tile whose pivot is the greatest one not
// above key, or -1 if every pivot is above key. probe is called with each
// pivot index the binary search inspects.
func (t TileIndex) Find(key uint32, probe func(mid int)) int {
	found := -1
	lo, hi := 0, len(t.Pivots)-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if probe != nil {
			probe(mid)
		}
		if t.Pivots[mid].Key() <= key {
			found = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return found
}
