package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"

	"github.com/23skdu/longbow-kmap/internal/codec"
	"github.com/23skdu/longbow-kmap/internal/config"
	"github.com/23skdu/longbow-kmap/internal/coord"
	"github.com/23skdu/longbow-kmap/internal/kmap"
	"github.com/23skdu/longbow-kmap/internal/trace"
)

// BuildRequest is the CBOR document accepted by the HTTP server and the -input flag.
type BuildRequest struct {
	Coords        [][3]int32 `cbor:"coords"`
	Offsets       [][3]int32 `cbor:"offsets,omitempty"`
	KernelSize    int        `cbor:"kernel_size,omitempty"`
	Stride        int        `cbor:"stride,omitempty"`
	TileSize      int        `cbor:"tile_size,omitempty"`
	Deterministic bool       `cbor:"deterministic,omitempty"`
}

// BuildResponse is returned by POST /kmap.
type BuildResponse struct {
	Matches      []codec.Record `cbor:"matches"`
	KernelMapCRC uint32         `cbor:"kernel_map_crc32"`
	Unique       int            `cbor:"unique"`
	TraceEntries int            `cbor:"trace_entries"`
	Summary      trace.Summary  `cbor:"summary"`
}

// BuildOutput is everything a single build produced.
type BuildOutput struct {
	Offsets []coord.Coord3D
	Result  *kmap.Result
	Trace   *trace.Trace
	Records []codec.Record
}

// Response flattens the output for the wire.
func (o *BuildOutput) Response() (BuildResponse, error) {
	crc, _, err := codec.EncodeKernelMap(io.Discard, o.Result.KernelMap, o.Offsets)
	if err != nil {
		return BuildResponse{}, err
	}
	entries := o.Trace.Entries()
	return BuildResponse{
		Matches:      o.Records,
		KernelMapCRC: crc,
		Unique:       len(o.Result.Unique),
		TraceEntries: len(entries),
		Summary:      trace.Summarize(entries),
	}, nil
}

// KernelMapBuilder runs the kernel map pipeline.
type KernelMapBuilder interface {
	Build(ctx context.Context, req BuildRequest) (*BuildOutput, error)
}

// Builder runs builds against a fixed configuration. Every build gets its own trace.
type Builder struct {
	cfg config.Config
}

func NewBuilder(cfg config.Config) *Builder {
	return &Builder{cfg: cfg}
}

func (b *Builder) Build(ctx context.Context, req BuildRequest) (*BuildOutput, error) {
	in := kmap.Input{
		Coords:        toCoords(req.Coords),
		Offsets:       toCoords(req.Offsets),
		Stride:        req.Stride,
		TileSize:      req.TileSize,
		Deterministic: req.Deterministic,
	}
	if len(in.Offsets) == 0 {
		size := req.KernelSize
		if size == 0 {
			size = 3
		}
		in.Offsets = coord.CubeOffsets(size)
	}
	if in.Stride == 0 {
		in.Stride = b.cfg.Stride
	}
	if in.TileSize == 0 {
		in.TileSize = b.cfg.TileSize
	}

	tr := trace.NewTrace()
	rec := trace.NewRecorder(&b.cfg.Layout, tr)
	res, err := kmap.Build(ctx, rec, in)
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel map: %w", err)
	}
	return &BuildOutput{
		Offsets: in.Offsets,
		Result:  res,
		Trace:   tr,
		Records: codec.Records(res.KernelMap, in.Offsets),
	}, nil
}

func toCoords(raw [][3]int32) []coord.Coord3D {
	if len(raw) == 0 {
		return nil
	}
	out := make([]coord.Coord3D, len(raw))
	for i, c := range raw {
		out[i] = coord.Coord3D{X: c[0], Y: c[1], Z: c[2]}
	}
	return out
}

// syntheticCloud returns n random points inside [-extent, extent)^3.
func syntheticCloud(n, extent int, seed int64) [][3]int32 {
	if extent <= 0 {
		extent = 1
	}
	r := rand.New(rand.NewSource(seed))
	out := make([][3]int32, n)
	for i := range out {
		for d := 0; d < 3; d++ {
			out[i][d] = int32(r.Intn(2*extent) - extent)
		}
	}
	return out
}
