package kmap

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/23skdu/longbow-kmap/internal/coord"
	memtrace "github.com/23skdu/longbow-kmap/internal/trace"
)

// ErrNoOffsets is returned when a build is requested without kernel offsets.
var ErrNoOffsets = errors.New("no kernel offsets")

var tracer = otel.Tracer("longbow-kmap")

// Input describes one kernel map build.
type Input struct {
	Coords        []coord.Coord3D
	Offsets       []coord.Coord3D
	Stride        int
	TileSize      int
	Deterministic bool
}

// Result holds every intermediate of a build. The access trace lives in the
// recorder passed to Build.
type Result struct {
	Unique    []coord.IndexedCoord
	Queries   Queries
	Index     TileIndex
	KernelMap *KernelMap
}

// Build runs dedup, query construction, tiling and lookup, tagging the
// accesses of each stage with its phase.
func Build(ctx context.Context, rec memtrace.Recorder, in Input) (*Result, error) {
	if len(in.Offsets) == 0 {
		return nil, ErrNoOffsets
	}

	ctx, span := tracer.Start(ctx, "kmap.Build", trace.WithAttributes(
		attribute.Int("coords", len(in.Coords)),
		attribute.Int("offsets", len(in.Offsets)),
		attribute.Int("stride", in.Stride),
		attribute.Int("tile_size", in.TileSize),
	))
	defer span.End()

	res := &Result{}

	stage(ctx, memtrace.PhaseRDX, func() {
		res.Unique = UniqueSorted(rec.WithPhase(memtrace.PhaseRDX), in.Coords, in.Stride)
	})
	uniqueCoords.Observe(float64(len(res.Unique)))

	stage(ctx, memtrace.PhaseQRY, func() {
		res.Queries = BuildQueries(res.Unique, in.Offsets)
	})

	stage(ctx, memtrace.PhasePVT, func() {
		res.Index = BuildTiles(rec.WithPhase(memtrace.PhasePVT), res.Unique, in.TileSize)
	})

	var err error
	stage(ctx, memtrace.PhaseLKP, func() {
		res.KernelMap, err = Lookup(ctx, rec.WithPhase(memtrace.PhaseLKP), res.Unique, res.Queries, res.Index,
			LookupOptions{Deterministic: in.Deterministic})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("unique", len(res.Unique)),
		attribute.Int("matches", res.KernelMap.Total()),
		attribute.Int("trace_entries", rec.Trace().Len()),
	)
	return res, nil
}

func stage(ctx context.Context, phase memtrace.Phase, fn func()) {
	_, span := tracer.Start(ctx, "kmap."+phase.String())
	defer span.End()

	start := time.Now()
	fn()
	stageDuration.WithLabelValues(phase.String()).Observe(time.Since(start).Seconds())
}
