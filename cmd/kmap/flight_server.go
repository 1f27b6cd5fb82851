package main

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"
)

// PutSummary is carried in the AppMetadata of the DoPut reply.
type PutSummary struct {
	Coords       int    `cbor:"coords"`
	Unique       int    `cbor:"unique"`
	Matches      int    `cbor:"matches"`
	KernelMapCRC uint32 `cbor:"kernel_map_crc32"`
	TraceEntries int    `cbor:"trace_entries"`
}

type KmapFlightServer struct {
	flight.BaseFlightServer
	builder KernelMapBuilder
	alloc   memory.Allocator
}

func NewKmapFlightServer(builder KernelMapBuilder) *KmapFlightServer {
	return &KmapFlightServer{
		builder: builder,
		alloc:   memory.NewGoAllocator(),
	}
}

func (s *KmapFlightServer) DoExchange(stream flight.FlightService_DoExchangeServer) error {
	return fmt.Errorf("DoExchange not implemented")
}

// DoPut accepts batches with int32 x, y and z columns, builds one kernel map
// over all of them and replies with a CBOR PutSummary.
func (s *KmapFlightServer) DoPut(stream flight.FlightService_DoPutServer) error {
	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.alloc))
	if err != nil {
		return err
	}
	defer reader.Release()

	var coords [][3]int32
	for reader.Next() {
		rec := reader.Record()
		log.Info().Int64("rows", rec.NumRows()).Msg("DoPut received batch")
		coords, err = appendCoords(coords, rec)
		if err != nil {
			return err
		}
	}
	if err := reader.Err(); err != nil {
		return err
	}

	out, err := s.builder.Build(stream.Context(), BuildRequest{Coords: coords})
	if err != nil {
		return err
	}
	resp, err := out.Response()
	if err != nil {
		return err
	}
	meta, err := cbor.Marshal(PutSummary{
		Coords:       len(coords),
		Unique:       resp.Unique,
		Matches:      len(resp.Matches),
		KernelMapCRC: resp.KernelMapCRC,
		TraceEntries: resp.TraceEntries,
	})
	if err != nil {
		return err
	}
	return stream.Send(&flight.PutResult{AppMetadata: meta})
}

func appendCoords(dst [][3]int32, rec arrow.RecordBatch) ([][3]int32, error) {
	var cols [3]*array.Int32
	for d, name := range []string{"x", "y", "z"} {
		idx := rec.Schema().FieldIndices(name)
		if len(idx) == 0 {
			return dst, fmt.Errorf("missing column %q", name)
		}
		col, ok := rec.Column(idx[0]).(*array.Int32)
		if !ok {
			return dst, fmt.Errorf("column %q is %s, want int32", name, rec.Column(idx[0]).DataType())
		}
		cols[d] = col
	}
	for i := 0; i < int(rec.NumRows()); i++ {
		dst = append(dst, [3]int32{cols[0].Value(i), cols[1].Value(i), cols[2].Value(i)})
	}
	return dst, nil
}

func StartFlightServer(addr string, builder KernelMapBuilder) {
	server := flight.NewFlightServer()
	server.RegisterFlightService(NewKmapFlightServer(builder))

	if err := server.Init(addr); err != nil {
		log.Fatal().Err(err).Msg("Failed to init Flight server")
	}

	log.Info().Str("addr", addr).Msg("Starting kernel map Flight server")
	if err := server.Serve(); err != nil {
		log.Fatal().Err(err).Msg("Flight server failed")
	}
}
