package models

import (
	"fmt"
	"math"
	"strings"
)

// PixelType identifies the numeric type samples are stored as.
// Samples are always held as float64 in memory; the pixel type decides how
// values are rounded and clamped when cast.
type PixelType int

const (
	UInt8 PixelType = iota
	Int8
	UInt16
	Int16
	UInt32
	Int32
	Float32
	Float64
)

var pixelTypeNames = map[PixelType]string{
	UInt8:   "uint8",
	Int8:    "int8",
	UInt16:  "uint16",
	Int16:   "int16",
	UInt32:  "uint32",
	Int32:   "int32",
	Float32: "float",
	Float64: "double",
}

func (p PixelType) String() string {
	if name, ok := pixelTypeNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PixelType(%d)", int(p))
}

// ParsePixelType accepts the NRRD spellings of a sample type
// ("uchar", "unsigned char", "uint8", "short", "float", "double", ...).
func ParsePixelType(s string) (PixelType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uchar", "unsigned char", "uint8", "uint8_t":
		return UInt8, nil
	case "signed char", "int8", "int8_t":
		return Int8, nil
	case "ushort", "unsigned short", "unsigned short int", "uint16", "uint16_t":
		return UInt16, nil
	case "short", "short int", "signed short", "signed short int", "int16", "int16_t":
		return Int16, nil
	case "uint", "unsigned int", "uint32", "uint32_t":
		return UInt32, nil
	case "int", "signed int", "int32", "int32_t":
		return Int32, nil
	case "float", "float32":
		return Float32, nil
	case "double", "float64":
		return Float64, nil
	}
	return 0, fmt.Errorf("unsupported pixel type %q", s)
}

// IsInteger reports whether samples of this type are integral.
func (p PixelType) IsInteger() bool {
	return p != Float32 && p != Float64
}

// Range returns the representable range of the type.
func (p PixelType) Range() (lo, hi float64) {
	switch p {
	case UInt8:
		return 0, math.MaxUint8
	case Int8:
		return math.MinInt8, math.MaxInt8
	case UInt16:
		return 0, math.MaxUint16
	case Int16:
		return math.MinInt16, math.MaxInt16
	case UInt32:
		return 0, math.MaxUint32
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Float32:
		return -math.MaxFloat32, math.MaxFloat32
	}
	return -math.MaxFloat64, math.MaxFloat64
}

// Cast converts v into a value representable by the type: integer types
// round half away from zero and saturate at their range.
func (p PixelType) Cast(v float64) float64 {
	if math.IsNaN(v) {
		if p.IsInteger() {
			return 0
		}
		return v
	}
	lo, hi := p.Range()
	switch {
	case p.IsInteger():
		v = math.Round(v)
	case p == Float32:
		v = float64(float32(v))
	}
	return math.Max(lo, math.Min(hi, v))
}

// Buffer is a raw N-dimensional sample array in storage order: row-major,
// with the first axis varying slowest. A 3-D buffer has Shape [nx, ny, nz];
// a stack of volumes has Shape [n, nx, ny, nz].
type Buffer struct {
	Data      []float64
	Shape     []int
	PixelType PixelType
}

// NewBuffer allocates a zero-filled buffer of the given shape.
func NewBuffer(pixelType PixelType, shape ...int) *Buffer {
	return &Buffer{
		Data:      make([]float64, product(shape)),
		Shape:     append([]int(nil), shape...),
		PixelType: pixelType,
	}
}

// Dims returns the number of axes.
func (b *Buffer) Dims() int { return len(b.Shape) }

// Validate checks that the shape is non-negative and matches the data length.
func (b *Buffer) Validate() error {
	for i, n := range b.Shape {
		if n < 0 {
			return fmt.Errorf("axis %d has negative extent %d", i, n)
		}
	}
	if want := product(b.Shape); len(b.Data) != want {
		return fmt.Errorf("buffer holds %d samples, shape %v needs %d", len(b.Data), b.Shape, want)
	}
	return nil
}

// Volume returns the i-th sub-buffer along the leading axis. The returned
// buffer shares storage with b.
func (b *Buffer) Volume(i int) (*Buffer, error) {
	if b.Dims() < 2 {
		return nil, fmt.Errorf("buffer of %d axes has no sub-volumes", b.Dims())
	}
	if i < 0 || i >= b.Shape[0] {
		return nil, fmt.Errorf("volume index %d out of range [0, %d)", i, b.Shape[0])
	}
	stride := product(b.Shape[1:])
	return &Buffer{
		Data:      b.Data[i*stride : (i+1)*stride : (i+1)*stride],
		Shape:     append([]int(nil), b.Shape[1:]...),
		PixelType: b.PixelType,
	}, nil
}

// Transpose3 reorders a 3-D storage buffer into image order, so that the
// first spatial axis becomes the fastest-varying one.
func (b *Buffer) Transpose3() (*Volume, error) {
	if b.Dims() != 3 {
		return nil, fmt.Errorf("expected a 3-D buffer, got shape %v", b.Shape)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	nx, ny, nz := b.Shape[0], b.Shape[1], b.Shape[2]
	vol := NewVolume(b.PixelType, [3]int{nx, ny, nz})
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			src := (x*ny + y) * nz
			for z := 0; z < nz; z++ {
				vol.Data[vol.Index(x, y, z)] = b.Data[src+z]
			}
		}
	}
	return vol, nil
}

// Volume is a 3-D sample grid in image order: x varies fastest, so the
// sample at (x, y, z) lives at (z*ny + y)*nx + x.
type Volume struct {
	Data      []float64
	Size      [3]int
	PixelType PixelType
}

// NewVolume allocates a zero-filled volume.
func NewVolume(pixelType PixelType, size [3]int) *Volume {
	return &Volume{
		Data:      make([]float64, size[0]*size[1]*size[2]),
		Size:      size,
		PixelType: pixelType,
	}
}

// Len returns the number of voxels.
func (v *Volume) Len() int { return v.Size[0] * v.Size[1] * v.Size[2] }

// Empty reports whether any axis has zero extent.
func (v *Volume) Empty() bool { return v.Len() == 0 }

// Index returns the linear offset of voxel (x, y, z).
func (v *Volume) Index(x, y, z int) int {
	return (z*v.Size[1]+y)*v.Size[0] + x
}

// At returns the sample at (x, y, z).
func (v *Volume) At(x, y, z int) float64 { return v.Data[v.Index(x, y, z)] }

// Set stores a sample at (x, y, z).
func (v *Volume) Set(x, y, z int, value float64) { v.Data[v.Index(x, y, z)] = value }

// Fill sets every voxel to value.
func (v *Volume) Fill(value float64) {
	for i := range v.Data {
		v.Data[i] = value
	}
}

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	return &Volume{
		Data:      append([]float64(nil), v.Data...),
		Size:      v.Size,
		PixelType: v.PixelType,
	}
}

// Validate checks the data length against the size.
func (v *Volume) Validate() error {
	for i, n := range v.Size {
		if n < 0 {
			return fmt.Errorf("axis %d has negative extent %d", i, n)
		}
	}
	if len(v.Data) != v.Len() {
		return fmt.Errorf("volume holds %d samples, size %v needs %d", len(v.Data), v.Size, v.Len())
	}
	return nil
}

// Storage converts the volume back into a storage-order buffer, the inverse
// of Buffer.Transpose3.
func (v *Volume) Storage() *Buffer {
	nx, ny, nz := v.Size[0], v.Size[1], v.Size[2]
	b := NewBuffer(v.PixelType, nx, ny, nz)
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				b.Data[(x*ny+y)*nz+z] = v.At(x, y, z)
			}
		}
	}
	return b
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
