package codec

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-kmap/internal/trace"
)

func checkAddrWidth(width int) error {
	if width != 4 && width != 8 {
		return fmt.Errorf("%w: got %d", ErrInvalidAddressWidth, width)
	}
	return nil
}

// EncodeTrace writes entries as a compressed trace to w. Each record is
// {phase, thread, op, region uint8; addr uint32 or uint64} depending on
// addrWidth. Addresses are truncated when addrWidth is 4.
func EncodeTrace(w io.Writer, entries []trace.Entry, addrWidth int) (uint32, error) {
	if err := checkAddrWidth(addrWidth); err != nil {
		return 0, err
	}
	p := newPayloadWriter(w)
	if err := p.writeUint32(uint32(len(entries))); err != nil {
		return 0, err
	}
	rec := make([]byte, 4+addrWidth)
	for _, e := range entries {
		rec[0], rec[1], rec[2], rec[3] = uint8(e.Phase), e.Thread, uint8(e.Op), uint8(e.Region)
		if addrWidth == 4 {
			le.PutUint32(rec[4:], uint32(e.Addr))
		} else {
			le.PutUint64(rec[4:], e.Addr)
		}
		if err := p.write(rec); err != nil {
			return 0, err
		}
	}
	return p.close()
}

// WriteTrace writes entries to path and returns the payload CRC-32.
// The address width is checked before the file is created.
func WriteTrace(path string, entries []trace.Entry, addrWidth int) (uint32, error) {
	if err := checkAddrWidth(addrWidth); err != nil {
		return 0, err
	}
	crc, err := writeFile(path, func(w io.Writer) (uint32, error) {
		return EncodeTrace(w, entries, addrWidth)
	})
	if err != nil {
		return 0, err
	}
	log.Info().Str("path", path).Int("entries", len(entries)).Uint32("crc32", crc).Msg("Memory trace written")
	return crc, nil
}

// ReadTrace decodes a trace written with the given address width and returns
// the entries together with the CRC-32 of the decompressed payload.
func ReadTrace(r io.Reader, addrWidth int) ([]trace.Entry, uint32, error) {
	if err := checkAddrWidth(addrWidth); err != nil {
		return nil, 0, err
	}
	p, err := newPayloadReader(r)
	if err != nil {
		return nil, 0, err
	}
	defer p.close()

	n, err := p.readUint32()
	if err != nil {
		return nil, 0, err
	}
	entries := make([]trace.Entry, 0, min(n, maxPrealloc))
	for i := uint32(0); i < n; i++ {
		b, err := p.read(4 + addrWidth)
		if err != nil {
			return nil, 0, fmt.Errorf("record %d: %w", i, err)
		}
		e := trace.Entry{
			Phase:  trace.Phase(b[0]),
			Thread: b[1],
			Op:     trace.Op(b[2]),
			Region: trace.Region(b[3]),
		}
		if addrWidth == 4 {
			e.Addr = uint64(le.Uint32(b[4:]))
		} else {
			e.Addr = le.Uint64(b[4:])
		}
		entries = append(entries, e)
	}
	return entries, p.crc.Sum32(), nil
}

// OpenTrace reads a trace file from disk.
func OpenTrace(path string, addrWidth int) ([]trace.Entry, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer f.Close()
	return ReadTrace(f, addrWidth)
}
