package coord

import "fmt"

// Each component is packed as a 10-bit two's complement field.
const (
	fieldBits = 10
	fieldMask = 1<<fieldBits - 1

	// MinComponent and MaxComponent bound the values that survive a Key/FromKey round trip.
	MinComponent = -(1 << (fieldBits - 1))
	MaxComponent = 1<<(fieldBits-1) - 1
)

// Coord3D is a point on the sparse voxel grid.
type Coord3D struct {
	X, Y, Z int32
}

// Add returns the component-wise sum c + o.
func (c Coord3D) Add(o Coord3D) Coord3D {
	return Coord3D{X: c.X + o.X, Y: c.Y + o.Y, Z: c.Z + o.Z}
}

// Quantized floors every component onto a grid of the given stride.
// A stride of 1 or less leaves the coordinate unchanged.
func (c Coord3D) Quantized(stride int) Coord3D {
	if stride <= 1 {
		return c
	}
	s := int32(stride)
	return Coord3D{X: floorDiv(c.X, s), Y: floorDiv(c.Y, s), Z: floorDiv(c.Z, s)}
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Key packs the coordinate into a single 32-bit value: X in bits 20-29,
// Y in bits 10-19 and Z in bits 0-9. Components outside
// [MinComponent, MaxComponent] wrap.
func (c Coord3D) Key() uint32 {
	return (uint32(c.X)&fieldMask)<<(2*fieldBits) |
		(uint32(c.Y)&fieldMask)<<fieldBits |
		uint32(c.Z)&fieldMask
}

// FromKey is the inverse of Key.
func FromKey(key uint32) Coord3D {
	return Coord3D{
		X: signExtend(key >> (2 * fieldBits)),
		Y: signExtend(key >> fieldBits),
		Z: signExtend(key),
	}
}

func signExtend(v uint32) int32 {
	v &= fieldMask
	if v&(1<<(fieldBits-1)) != 0 {
		return int32(v) - (1 << fieldBits)
	}
	return int32(v)
}

// InRange reports whether every component round-trips through Key.
func (c Coord3D) InRange() bool {
	for _, v := range [3]int32{c.X, c.Y, c.Z} {
		if v < MinComponent || v > MaxComponent {
			return false
		}
	}
	return true
}

// Equal compares coordinates by packed key.
func (c Coord3D) Equal(o Coord3D) bool {
	return c.Key() == o.Key()
}

func (c Coord3D) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c.X, c.Y, c.Z)
}

// KeyHex formats a packed key for debug output.
func KeyHex(key uint32) string {
	return fmt.Sprintf("0x%08x", key)
}

// IndexedCoord is a coordinate together with the index of the input point it came from.
type IndexedCoord struct {
	Coord   Coord3D
	OrigIdx int
}

// NewIndexed pairs a coordinate with its original input index.
func NewIndexed(c Coord3D, origIdx int) IndexedCoord {
	return IndexedCoord{Coord: c, OrigIdx: origIdx}
}

// Key returns the packed key of the wrapped coordinate.
func (ic IndexedCoord) Key() uint32 {
	return ic.Coord.Key()
}

// CubeOffsets returns the size^3 offsets of a cubic kernel centred on the origin,
// enumerated with X varying slowest. Even sizes are rounded up to the next odd size.
func CubeOffsets(size int) []Coord3D {
	if size <= 0 {
		return nil
	}
	if size%2 == 0 {
		size++
	}
	r := int32(size / 2)
	offsets := make([]Coord3D, 0, size*size*size)
	for x := -r; x <= r; x++ {
		for y := -r; y <= r; y++ {
			for z := -r; z <= r; z++ {
				offsets = append(offsets, Coord3D{X: x, Y: y, Z: z})
			}
		}
	}
	return offsets
}
