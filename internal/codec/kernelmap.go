package codec

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-kmap/internal/coord"
	"github.com/23skdu/longbow-kmap/internal/kmap"
)

// Record is one kernel map file entry.
type Record struct {
	OffsetKey   uint32 `cbor:"offset_key"`
	InputIdx    uint32 `cbor:"input_idx"`
	QuerySrcIdx uint32 `cbor:"query_src_idx"`
}

// Records flattens km into file order: groups by descending match count,
// each match tagged with the packed key of its offset. Groups whose offset
// index has no entry in offsets are logged and skipped.
func Records(km *kmap.KernelMap, offsets []coord.Coord3D) []Record {
	var out []Record
	for _, g := range km.Sorted() {
		if g.OffsetIdx < 0 || g.OffsetIdx >= len(offsets) {
			log.Warn().
				Int("offset_idx", g.OffsetIdx).
				Int("offsets", len(offsets)).
				Int("matches", len(g.Matches)).
				Msg("Kernel map offset index out of range, skipping entry")
			continue
		}
		key := offsets[g.OffsetIdx].Key()
		for _, m := range g.Matches {
			out = append(out, Record{OffsetKey: key, InputIdx: uint32(m.InputIdx), QuerySrcIdx: uint32(m.QuerySrcIdx)})
		}
	}
	return out
}

// EncodeKernelMap writes km as a compressed kernel map to w. The leading
// count covers only the records actually written.
func EncodeKernelMap(w io.Writer, km *kmap.KernelMap, offsets []coord.Coord3D) (uint32, int, error) {
	recs := Records(km, offsets)
	p := newPayloadWriter(w)
	if err := p.writeUint32(uint32(len(recs))); err != nil {
		return 0, 0, err
	}
	var b [12]byte
	for _, r := range recs {
		le.PutUint32(b[0:], r.OffsetKey)
		le.PutUint32(b[4:], r.InputIdx)
		le.PutUint32(b[8:], r.QuerySrcIdx)
		if err := p.write(b[:]); err != nil {
			return 0, 0, err
		}
	}
	crc, err := p.close()
	return crc, len(recs), err
}

// WriteKernelMap writes km to path and returns the payload CRC-32.
func WriteKernelMap(path string, km *kmap.KernelMap, offsets []coord.Coord3D) (uint32, error) {
	var n int
	crc, err := writeFile(path, func(w io.Writer) (uint32, error) {
		var crc uint32
		var err error
		crc, n, err = EncodeKernelMap(w, km, offsets)
		return crc, err
	})
	if err != nil {
		return 0, err
	}
	log.Info().Str("path", path).Int("entries", n).Uint32("crc32", crc).Msg("Kernel map written")
	return crc, nil
}

// ReadKernelMap decodes a kernel map file and returns its records with the
// CRC-32 of the decompressed payload.
func ReadKernelMap(r io.Reader) ([]Record, uint32, error) {
	p, err := newPayloadReader(r)
	if err != nil {
		return nil, 0, err
	}
	defer p.close()

	n, err := p.readUint32()
	if err != nil {
		return nil, 0, err
	}
	recs := make([]Record, 0, min(n, maxPrealloc))
	for i := uint32(0); i < n; i++ {
		b, err := p.read(12)
		if err != nil {
			return nil, 0, fmt.Errorf("record %d: %w", i, err)
		}
		recs = append(recs, Record{OffsetKey: le.Uint32(b[0:]), InputIdx: le.Uint32(b[4:]), QuerySrcIdx: le.Uint32(b[8:])})
	}
	return recs, p.crc.Sum32(), nil
}

// OpenKernelMap reads a kernel map file from disk.
func OpenKernelMap(path string) ([]Record, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer f.Close()
	return ReadKernelMap(f)
}
