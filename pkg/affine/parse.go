package affine

import (
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"imagetools/pkg/errors"
)

// ParseVector reads a NRRD-style vector such as "(1,2,3)", "(1, 2, 3)" or
// "1 2 3". Exactly three finite components are required.
func ParseVector(s string) (r3.Vec, error) {
	body := strings.TrimSpace(s)
	body = strings.TrimPrefix(body, "(")
	body = strings.TrimSuffix(body, ")")
	fields := strings.FieldsFunc(body, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) != 3 {
		return r3.Vec{}, errors.New(errors.ErrCodeInvalidVector, "expected 3 components in %q, got %d", s, len(fields))
	}

	var c [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return r3.Vec{}, errors.Wrap(errors.ErrCodeInvalidVector, err, "component %d of %q", i, s)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return r3.Vec{}, errors.New(errors.ErrCodeInvalidVector, "component %d of %q is not finite", i, s)
		}
		c[i] = v
	}
	return r3.Vec{X: c[0], Y: c[1], Z: c[2]}, nil
}

// FormatVector renders v in the NRRD "(x,y,z)" form accepted by ParseVector.
func FormatVector(v r3.Vec) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, c := range [3]float64{v.X, v.Y, v.Z} {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(c, 'g', -1, 64))
	}
	b.WriteByte(')')
	return b.String()
}
