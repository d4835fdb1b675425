package volume

import (
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"imagetools/pkg/affine"
	"imagetools/pkg/errors"
)

// Space is the patient coordinate convention a frame is expressed in.
type Space int

const (
	SpaceLPS Space = iota
	SpaceRAS
)

// NRRD spellings of the supported spaces.
const (
	LPSName = "left-posterior-superior"
	RASName = "right-anterior-superior"
)

// String returns the NRRD spelling.
func (s Space) String() string {
	if s == SpaceRAS {
		return RASName
	}
	return LPSName
}

// ParseSpace accepts the NRRD spellings and their three-letter abbreviations.
func ParseSpace(s string) (Space, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case RASName, "ras":
		return SpaceRAS, nil
	case LPSName, "lps":
		return SpaceLPS, nil
	}
	return 0, errors.New(errors.ErrCodeUnknownSpace, "unknown space %q", s)
}

// Frame places a voxel grid in physical space. Direction holds the unit axis
// directions as columns; a voxel index i maps to
// Origin + Direction·diag(Spacing)·i.
type Frame struct {
	Origin    r3.Vec
	Spacing   r3.Vec
	Direction affine.Mat3
	Space     Space
}

// IdentityFrame returns a unit-spaced, axis-aligned RAS frame at origin.
func IdentityFrame(origin r3.Vec) Frame {
	return Frame{
		Origin:    origin,
		Spacing:   r3.Vec{X: 1, Y: 1, Z: 1},
		Direction: affine.Identity3(),
		Space:     SpaceRAS,
	}
}

// Validate checks that all spacing components are strictly positive.
func (f Frame) Validate() error {
	for i, s := range [3]float64{f.Spacing.X, f.Spacing.Y, f.Spacing.Z} {
		if !(s > 0) {
			return errors.New(errors.ErrCodeDegenerateSpacing, "spacing of axis %d is %g, must be positive", i, s)
		}
	}
	return nil
}

// DirectionFlat returns the direction matrix flattened row-major, the layout
// imaging toolkits expect.
func (f Frame) DirectionFlat() [9]float64 {
	return f.Direction.Flat()
}

// IndexToPhysical maps a (continuous) voxel index to a physical point.
func (f Frame) IndexToPhysical(idx r3.Vec) r3.Vec {
	return r3.Add(f.Origin, f.Direction.ScaleCols(f.Spacing).MulVec(idx))
}

// Locator returns a function mapping physical points to continuous voxel
// indices in f. The matrix is inverted once so the returned function can be
// called per voxel and shared between goroutines.
func (f Frame) Locator() (func(p r3.Vec) r3.Vec, error) {
	inv, err := f.Direction.ScaleCols(f.Spacing).Inverse()
	if err != nil {
		return nil, err
	}
	origin := f.Origin
	return func(p r3.Vec) r3.Vec {
		return inv.MulVec(r3.Sub(p, origin))
	}, nil
}

// ToRAS expresses the frame in RAS. RAS frames are returned unchanged.
func (f Frame) ToRAS() Frame {
	if f.Space == SpaceRAS {
		return f
	}
	f.Origin = affine.HomogeneousLPSToRAS(affine.Homogeneous(f.Origin)).Vec3()
	f.Direction = affine.DirectionLPSToRAS(f.Direction)
	f.Space = SpaceRAS
	return f
}

// Crop returns the frame of the sub-grid starting at index lower.
func (f Frame) Crop(lower [3]int) Frame {
	f.Origin = f.IndexToPhysical(r3.Vec{X: float64(lower[0]), Y: float64(lower[1]), Z: float64(lower[2])})
	return f
}
