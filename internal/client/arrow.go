package client

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-kmap/internal/codec"
	"github.com/23skdu/longbow-kmap/internal/trace"
)

var (
	// KernelMapSchema is the Arrow layout of a kernel map file record.
	KernelMapSchema = arrow.NewSchema(
		[]arrow.Field{
			{Name: "offset_key", Type: arrow.PrimitiveTypes.Uint32},
			{Name: "input_idx", Type: arrow.PrimitiveTypes.Uint32},
			{Name: "query_src_idx", Type: arrow.PrimitiveTypes.Uint32},
		},
		nil,
	)

	// TraceSchema is the Arrow layout of an access trace entry.
	TraceSchema = arrow.NewSchema(
		[]arrow.Field{
			{Name: "phase", Type: arrow.PrimitiveTypes.Uint8},
			{Name: "thread", Type: arrow.PrimitiveTypes.Uint8},
			{Name: "op", Type: arrow.PrimitiveTypes.Uint8},
			{Name: "region", Type: arrow.PrimitiveTypes.Uint8},
			{Name: "addr", Type: arrow.PrimitiveTypes.Uint64},
		},
		nil,
	)
)

// RecordBatchBuilder creates Arrow RecordBatches from kernel maps and traces.
type RecordBatchBuilder struct {
	mem memory.Allocator
}

// NewRecordBatchBuilder creates a new builder.
func NewRecordBatchBuilder(mem memory.Allocator) *RecordBatchBuilder {
	return &RecordBatchBuilder{mem: mem}
}

// BuildKernelMap converts kernel map records into a RecordBatch, preserving order.
// It returns nil for an empty input.
func (b *RecordBatchBuilder) BuildKernelMap(recs []codec.Record) (arrow.RecordBatch, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	rb := array.NewRecordBuilder(b.mem, KernelMapSchema)
	defer rb.Release()

	offsets := rb.Field(0).(*array.Uint32Builder)
	inputs := rb.Field(1).(*array.Uint32Builder)
	sources := rb.Field(2).(*array.Uint32Builder)
	offsets.Reserve(len(recs))
	inputs.Reserve(len(recs))
	sources.Reserve(len(recs))

	for _, r := range recs {
		offsets.UnsafeAppend(r.OffsetKey)
		inputs.UnsafeAppend(r.InputIdx)
		sources.UnsafeAppend(r.QuerySrcIdx)
	}
	return rb.NewRecord(), nil
}

// BuildTrace converts trace entries into a RecordBatch. It returns nil for an empty input.
func (b *RecordBatchBuilder) BuildTrace(entries []trace.Entry) (arrow.RecordBatch, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	rb := array.NewRecordBuilder(b.mem, TraceSchema)
	defer rb.Release()

	phase := rb.Field(0).(*array.Uint8Builder)
	thread := rb.Field(1).(*array.Uint8Builder)
	op := rb.Field(2).(*array.Uint8Builder)
	region := rb.Field(3).(*array.Uint8Builder)
	addr := rb.Field(4).(*array.Uint64Builder)

	for _, e := range entries {
		phase.Append(uint8(e.Phase))
		thread.Append(e.Thread)
		op.Append(uint8(e.Op))
		region.Append(uint8(e.Region))
		addr.Append(e.Addr)
	}
	return rb.NewRecord(), nil
}

// WriteStream writes rec as an Arrow IPC stream.
func WriteStream(w io.Writer, rec arrow.RecordBatch) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}
