package nrrd

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"imagetools/internal/models"
	"imagetools/pkg/affine"
	"imagetools/pkg/errors"
	"imagetools/pkg/volume"
)

// Reconstruct builds a RAS image from a 3-D storage-order buffer and the
// header describing it.
//
// Spacing is the length of each space direction and the direction matrix
// holds the normalized directions as columns. LPS origins and directions have
// their first two components negated. Metadata carries the header's key/value
// pairs after the reserved space entry.
func Reconstruct(buf *models.Buffer, hdr *Header) (*volume.Image, error) {
	if buf == nil || hdr == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "reconstruct needs a buffer and a header")
	}
	if n := len(hdr.SpaceDirections); n != 3 {
		return nil, errors.New(errors.ErrCodeDimensionality,
			"expected 3-D spatial frame, got %d space directions", n).WithField(FieldSpaceDirections)
	}

	var spacing [3]float64
	var dirs [3]r3.Vec
	for i, s := range hdr.SpaceDirections {
		d, err := affine.ParseVector(s)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidVector, err, "space direction %d", i).WithField(FieldSpaceDirections)
		}
		spacing[i] = r3.Norm(d)
		if spacing[i] == 0 {
			return nil, errors.New(errors.ErrCodeDegenerateSpacing,
				"space direction %d has zero length", i).WithField(FieldSpaceDirections)
		}
		dirs[i] = r3.Scale(1/spacing[i], d)
	}

	space, err := volume.ParseSpace(hdr.Space)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnknownSpace, err, "cannot place image").WithField(FieldSpace)
	}
	origin, err := affine.ParseVector(hdr.SpaceOrigin)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidVector, err, "space origin").WithField(FieldSpaceOrigin)
	}

	frame := volume.Frame{
		Origin:    origin,
		Spacing:   r3.Vec{X: spacing[0], Y: spacing[1], Z: spacing[2]},
		Direction: affine.ColStack(dirs[0], dirs[1], dirs[2]),
		Space:     space,
	}
	frame = frame.ToRAS()

	vol, err := buf.Transpose3()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeShapeMismatch, err, "voxel buffer")
	}
	if hdr.Type != "" {
		pt, err := models.ParsePixelType(hdr.Type)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "sample type").WithField(FieldType)
		}
		vol.PixelType = pt
	}

	meta := volume.NewMetadata(volume.SpaceKey, volume.RASName)
	meta.Merge(hdr.KeyValuePairs)
	// the frame is RAS whatever the pairs claim
	meta.Set(volume.SpaceKey, volume.RASName)
	return volume.New(vol, frame, meta)
}

// Loader reconstructs images from single and stacked buffers.
type Loader struct {
	// Workers bounds the number of volumes reconstructed concurrently;
	// zero or less uses one per CPU.
	Workers int
}

// Load reconstructs every image held by buf: one for a 3-D header, one per
// stacked volume for a 4-D header.
func Load(buf *models.Buffer, hdr *Header) ([]*volume.Image, error) {
	return Loader{}.Load(buf, hdr)
}

// SplitVolumes splits a 4-D stack into single-volume images.
func SplitVolumes(buf *models.Buffer, hdr *Header) ([]*volume.Image, error) {
	return Loader{}.SplitVolumes(buf, hdr)
}

// Load reconstructs every image held by buf: one for a 3-D header, one per
// stacked volume for a 4-D header.
func (l Loader) Load(buf *models.Buffer, hdr *Header) ([]*volume.Image, error) {
	if buf == nil || hdr == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "load needs a buffer and a header")
	}
	if buf.Dims() != hdr.Dimension {
		return nil, errors.New(errors.ErrCodeShapeMismatch,
			"header declares dimension %d, buffer has %d axes", hdr.Dimension, buf.Dims()).WithField(FieldDimension)
	}

	switch hdr.Dimension {
	case 3:
		img, err := Reconstruct(buf, hdr)
		if err != nil {
			return nil, err
		}
		return []*volume.Image{img}, nil
	case 4:
		return l.SplitVolumes(buf, hdr)
	}
	return nil, errors.New(errors.ErrCodeDimensionality,
		"unsupported dimension %d, expected 3 or 4", hdr.Dimension).WithField(FieldDimension)
}

// SplitVolumes splits a stack of shape (n, nx, ny, nz) into n images, in
// stack order. The first space direction describes the stacking axis and is
// dropped; the remaining three place every volume. Failures report the index
// of the offending volume; when several volumes fail, the lowest index wins.
func (l Loader) SplitVolumes(buf *models.Buffer, hdr *Header) ([]*volume.Image, error) {
	if buf == nil || hdr == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "split needs a buffer and a header")
	}
	if buf.Dims() != 4 {
		return nil, errors.New(errors.ErrCodeShapeMismatch, "expected a 4-D buffer, got shape %v", buf.Shape)
	}
	if err := buf.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeShapeMismatch, err, "voxel buffer")
	}
	if n := len(hdr.SpaceDirections); n != 4 {
		return nil, errors.New(errors.ErrCodeDimensionality,
			"expected 4 space directions for a stack, got %d", n).WithField(FieldSpaceDirections)
	}

	n := buf.Shape[0]
	images := make([]*volume.Image, n)
	failures := make([]error, n)

	workers := l.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	var eg errgroup.Group
	eg.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			sub, err := buf.Volume(i)
			if err != nil {
				failures[i] = errors.WithVolume(err, i)
				return nil
			}
			volHdr := hdr.Clone()
			volHdr.Dimension = 3
			volHdr.SpaceDirections = volHdr.SpaceDirections[1:]
			img, err := Reconstruct(sub, volHdr)
			if err != nil {
				failures[i] = errors.WithVolume(err, i)
				return nil
			}
			images[i] = img
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for _, err := range failures {
		if err != nil {
			return nil, fmt.Errorf("splitting %d volumes: %w", n, err)
		}
	}
	return images, nil
}
