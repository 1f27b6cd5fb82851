//go:build ignore

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/23skdu/longbow-kmap/internal/codec"
	"github.com/23skdu/longbow-kmap/internal/coord"
	"github.com/23skdu/longbow-kmap/internal/trace"
)

// OutputDump summarizes a pair of output files for verification
type OutputDump struct {
	Trace          trace.Summary  `json:"trace"`
	TraceCRC       string         `json:"trace_crc32"`
	KernelMapCount int            `json:"kernel_map_records"`
	KernelMapCRC   string         `json:"kernel_map_crc32"`
	ByOffset       map[string]int `json:"by_offset"`
	FirstFew       []codec.Record `json:"first_few"`
}

func main() {
	dir := flag.String("dir", "out", "Directory holding trace.bin.gz and kernel_map.bin.gz")
	addrWidth := flag.Int("addr-width", 4, "Trace address width in bytes")
	flag.Parse()

	entries, traceCRC, err := codec.OpenTrace(filepath.Join(*dir, "trace.bin.gz"), *addrWidth)
	if err != nil {
		log.Fatalf("Failed to read trace: %v", err)
	}
	recs, kmCRC, err := codec.OpenKernelMap(filepath.Join(*dir, "kernel_map.bin.gz"))
	if err != nil {
		log.Fatalf("Failed to read kernel map: %v", err)
	}

	d := OutputDump{
		Trace:          trace.Summarize(entries),
		TraceCRC:       fmt.Sprintf("0x%08x", traceCRC),
		KernelMapCount: len(recs),
		KernelMapCRC:   fmt.Sprintf("0x%08x", kmCRC),
		ByOffset:       make(map[string]int),
	}
	for _, r := range recs {
		d.ByOffset[coord.FromKey(r.OffsetKey).String()]++
	}
	d.FirstFew = recs[:min(5, len(recs))]

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		log.Fatal(err)
	}
}
