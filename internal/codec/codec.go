// Package codec writes and reads the gzip-compressed access-trace and
// kernel-map files. Both formats are little-endian, start with a uint32
// record count and carry no embedded checksum: the CRC-32 (IEEE) of the
// uncompressed payload is returned to the caller instead.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

var (
	// ErrInvalidAddressWidth is returned for trace address widths other than 4 or 8.
	ErrInvalidAddressWidth = errors.New("address width must be 4 or 8")
	// ErrIO wraps failures to open, write or close an output stream.
	ErrIO = errors.New("i/o failure")
	// ErrCorrupt is returned when a file ends early or is not gzip.
	ErrCorrupt = errors.New("corrupt file")
)

var le = binary.LittleEndian

// maxPrealloc caps the capacity reserved from an untrusted record count.
const maxPrealloc = 1 << 20

// payloadWriter compresses everything written to it and checksums the
// uncompressed bytes.
type payloadWriter struct {
	gz  *gzip.Writer
	crc hash.Hash32
	buf [16]byte
}

func newPayloadWriter(w io.Writer) *payloadWriter {
	return &payloadWriter{gz: gzip.NewWriter(w), crc: crc32.NewIEEE()}
}

func (p *payloadWriter) write(b []byte) error {
	if _, err := p.gz.Write(b); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	p.crc.Write(b)
	return nil
}

func (p *payloadWriter) writeUint32(v uint32) error {
	le.PutUint32(p.buf[:4], v)
	return p.write(p.buf[:4])
}

func (p *payloadWriter) close() (uint32, error) {
	if err := p.gz.Close(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return p.crc.Sum32(), nil
}

// payloadReader decompresses and checksums what it reads.
type payloadReader struct {
	r   io.Reader
	gz  *gzip.Reader
	crc hash.Hash32
	buf [16]byte
}

func newPayloadReader(r io.Reader) (*payloadReader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	crc := crc32.NewIEEE()
	return &payloadReader{r: io.TeeReader(gz, crc), gz: gz, crc: crc}, nil
}

func (p *payloadReader) read(n int) ([]byte, error) {
	if _, err := io.ReadFull(p.r, p.buf[:n]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return p.buf[:n], nil
}

func (p *payloadReader) readUint32() (uint32, error) {
	b, err := p.read(4)
	if err != nil {
		return 0, err
	}
	return le.Uint32(b), nil
}

func (p *payloadReader) close() error {
	return p.gz.Close()
}

// writeFile creates path and streams encode into it. A failed encode
// leaves no file behind.
func writeFile(path string, encode func(io.Writer) (uint32, error)) (uint32, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to open %s for writing: %w", ErrIO, path, err)
	}
	crc, err := encode(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: failed to close %s: %w", ErrIO, path, cerr)
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return crc, nil
}
