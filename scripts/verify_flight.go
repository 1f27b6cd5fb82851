//go:build ignore

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type putSummary struct {
	Coords       int    `cbor:"coords"`
	Unique       int    `cbor:"unique"`
	Matches      int    `cbor:"matches"`
	KernelMapCRC uint32 `cbor:"kernel_map_crc32"`
	TraceEntries int    `cbor:"trace_entries"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	addr := "localhost:9090"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	log.Info().Str("addr", addr).Msg("Connecting to kernel map Flight server")

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create client")
	}
	defer conn.Close()
	c := flight.NewClientFromConn(conn, nil)

	// Three points on a line: 3 self matches plus 4 neighbour matches.
	pts := [][3]int32{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Int32},
		{Name: "y", Type: arrow.PrimitiveTypes.Int32},
		{Name: "z", Type: arrow.PrimitiveTypes.Int32},
	}, nil)
	rb := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer rb.Release()
	for _, p := range pts {
		for d := 0; d < 3; d++ {
			rb.Field(d).(*array.Int32Builder).Append(p[d])
		}
	}
	rec := rb.NewRecord()
	defer rec.Release()

	// Retry until the server is up
	var res *flight.PutResult
	for i := 0; i < 10; i++ {
		res, err = put(c, schema, rec)
		if err == nil {
			break
		}
		log.Warn().Err(err).Msg("DoPut failed, retrying...")
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to put after retries")
	}

	var s putSummary
	if err := cbor.Unmarshal(res.AppMetadata, &s); err != nil {
		log.Fatal().Err(err).Msg("Bad summary")
	}
	log.Info().Interface("summary", s).Msg("Received summary")

	if s.Unique != len(pts) || s.Matches != 7 {
		log.Fatal().Int("unique", s.Unique).Int("matches", s.Matches).Msg("Unexpected kernel map")
	}

	fmt.Println("VERIFICATION PASSED")
}

func put(c flight.Client, schema *arrow.Schema, rec arrow.RecordBatch) (*flight.PutResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := c.DoPut(ctx)
	if err != nil {
		return nil, err
	}
	w := flight.NewRecordWriter(stream, ipc.WithSchema(schema))
	w.SetFlightDescriptor(&flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"points"}})
	if err := w.Write(rec); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return stream.Recv()
}
