// Package affine provides the fixed-size vector and matrix math used to place
// voxel grids in physical space.
//
// Three-vectors are gonum r3.Vec values; 3×3 and 4×4 matrices are arrays with
// value semantics, indexed [row][col]. The LPS and RAS patient conventions
// differ only by the sign of their first two axes, so both conversions below
// are multiplications by a constant diagonal matrix and are their own inverse.
package affine

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"imagetools/pkg/errors"
)

// Vec4 is a homogeneous 4-vector.
type Vec4 [4]float64

// Mat3 is a 3×3 matrix indexed [row][col].
type Mat3 [3][3]float64

// Mat4 is a 4×4 matrix indexed [row][col].
type Mat4 [4][4]float64

var (
	// LPSToRAS4 converts homogeneous LPS coordinates to RAS.
	LPSToRAS4 = Mat4{
		{-1, 0, 0, 0},
		{0, -1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}

	// LPSToRAS3 converts direction matrices from LPS to RAS.
	LPSToRAS3 = Mat3{
		{-1, 0, 0},
		{0, -1, 0},
		{0, 0, 1},
	}
)

// Identity3 returns the 3×3 identity.
func Identity3() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// HomogeneousLPSToRAS maps a homogeneous LPS point to RAS. Drop the last
// component with Vec3 to recover the spatial part.
func HomogeneousLPSToRAS(v Vec4) Vec4 {
	return LPSToRAS4.MulVec(v)
}

// DirectionLPSToRAS left-multiplies m by diag(-1,-1,1).
func DirectionLPSToRAS(m Mat3) Mat3 {
	return LPSToRAS3.Mul(m)
}

// Normalize scales v to unit length.
func Normalize(v r3.Vec) (r3.Vec, error) {
	n := r3.Norm(v)
	if n == 0 {
		return r3.Vec{}, errors.New(errors.ErrCodeDegenerateVector, "cannot normalize zero vector")
	}
	return r3.Scale(1/n, v), nil
}

// Homogeneous extends v with a trailing 1.
func Homogeneous(v r3.Vec) Vec4 {
	return Vec4{v.X, v.Y, v.Z, 1}
}

// Vec3 drops the homogeneous component.
func (v Vec4) Vec3() r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

// MulVec returns m·v.
func (m Mat4) MulVec(v Vec4) Vec4 {
	var out Vec4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i] += m[i][j] * v[j]
		}
	}
	return out
}

// RowStack builds a matrix whose rows are a, b and c.
func RowStack(a, b, c r3.Vec) Mat3 {
	return Mat3{
		{a.X, a.Y, a.Z},
		{b.X, b.Y, b.Z},
		{c.X, c.Y, c.Z},
	}
}

// ColStack builds a matrix whose columns are a, b and c.
func ColStack(a, b, c r3.Vec) Mat3 {
	return RowStack(a, b, c).Transpose()
}

// Row returns row i.
func (m Mat3) Row(i int) r3.Vec {
	return r3.Vec{X: m[i][0], Y: m[i][1], Z: m[i][2]}
}

// Col returns column j.
func (m Mat3) Col(j int) r3.Vec {
	return r3.Vec{X: m[0][j], Y: m[1][j], Z: m[2][j]}
}

// Transpose returns mᵀ.
func (m Mat3) Transpose() Mat3 {
	var t Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t[j][i] = m[i][j]
		}
	}
	return t
}

// Mul returns m·n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += m[i][k] * n[k][j]
			}
		}
	}
	return out
}

// MulVec returns m·v.
func (m Mat3) MulVec(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// ScaleCols multiplies column j by s[j], i.e. returns m·diag(s).
func (m Mat3) ScaleCols(s r3.Vec) Mat3 {
	f := [3]float64{s.X, s.Y, s.Z}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] *= f[j]
		}
	}
	return m
}

// Flat returns the matrix flattened row-major.
func (m Mat3) Flat() [9]float64 {
	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = m[i][j]
		}
	}
	return out
}

// Inverse returns m⁻¹. Singular or numerically singular matrices are
// reported as degenerate.
func (m Mat3) Inverse() (Mat3, error) {
	flat := m.Flat()
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, flat[:])); err != nil {
		return Mat3{}, errors.Wrap(errors.ErrCodeDegenerateVector, err, "matrix is not invertible")
	}
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = inv.At(i, j)
		}
	}
	return out, nil
}
