// Package export stores images as a NumPy .npy voxel buffer next to a YAML
// header sidecar, and reads such pairs back through nrrd.Load.
//
// The buffer is written in storage order (shape [nx, ny, nz], or
// [n, nx, ny, nz] for a stack) and the sidecar holds the NRRD placement
// fields, so a pair can be turned back into a NRRD file by any tool that
// speaks both formats.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kshedden/gonpy"
	"gonum.org/v1/gonum/spatial/r3"

	"imagetools/internal/models"
	"imagetools/pkg/affine"
	"imagetools/pkg/errors"
	"imagetools/pkg/nrrd"
	"imagetools/pkg/volume"
)

// File extensions of the two halves of a stored image.
const (
	BufferExt = ".npy"
	HeaderExt = ".yaml"
)

// stackAxis is the NRRD space direction of a non-spatial axis.
const stackAxis = "none"

// Paths returns the buffer and header paths of the image called name in dir.
func Paths(dir, name string) (bufferPath, headerPath string) {
	base := filepath.Join(dir, name)
	return base + BufferExt, base + HeaderExt
}

// HeaderFor returns the header describing img's placement.
func HeaderFor(img *volume.Image) *nrrd.Header {
	hdr := &nrrd.Header{
		Dimension:     3,
		Space:         img.Frame.Space.String(),
		SpaceOrigin:   affine.FormatVector(img.Frame.Origin),
		Type:          img.PixelType().String(),
		KeyValuePairs: img.Metadata.Clone(),
	}
	spacing := [3]float64{img.Frame.Spacing.X, img.Frame.Spacing.Y, img.Frame.Spacing.Z}
	for i := 0; i < 3; i++ {
		dir := r3.Scale(spacing[i], img.Frame.Direction.Col(i))
		hdr.SpaceDirections = append(hdr.SpaceDirections, affine.FormatVector(dir))
	}
	return hdr
}

// WriteImage stores img as name.npy and name.yaml in dir and returns both
// paths.
func WriteImage(dir, name string, img *volume.Image) (string, string, error) {
	if img == nil {
		return "", "", errors.New(errors.ErrCodeInvalidInput, "no image to write")
	}
	return write(dir, name, img.Volume.Storage(), HeaderFor(img))
}

// WriteStack stores images sharing one grid as a single 4-D buffer, the
// layout of a multi-segment segmentation. Metadata is taken from the first
// image.
func WriteStack(dir, name string, images []*volume.Image) (string, string, error) {
	if len(images) == 0 {
		return "", "", errors.New(errors.ErrCodeEmptyInput, "no images to stack")
	}
	first := images[0]
	size := first.Size()
	buf := models.NewBuffer(first.PixelType(), len(images), size[0], size[1], size[2])
	stride := size[0] * size[1] * size[2]
	for i, img := range images {
		if img == nil || !img.SameGrid(first) {
			return "", "", errors.New(errors.ErrCodeShapeMismatch, "image %d is not on the grid of image 0", i)
		}
		copy(buf.Data[i*stride:], img.Volume.Storage().Data)
	}

	hdr := HeaderFor(first)
	hdr.Dimension = 4
	hdr.SpaceDirections = append([]string{stackAxis}, hdr.SpaceDirections...)
	return write(dir, name, buf, hdr)
}

func write(dir, name string, buf *models.Buffer, hdr *nrrd.Header) (string, string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", errors.Wrap(errors.ErrCodeIO, err, "creating output directory")
	}
	bufferPath, headerPath := Paths(dir, name)

	w, err := gonpy.NewFileWriter(bufferPath)
	if err != nil {
		return "", "", errors.Wrap(errors.ErrCodeIO, err, "opening %s", bufferPath)
	}
	w.Shape = buf.Shape
	w.Version = 2
	if err := w.WriteFloat64(buf.Data); err != nil {
		return "", "", errors.Wrap(errors.ErrCodeIO, err, "writing %s", bufferPath)
	}

	f, err := os.Create(headerPath)
	if err != nil {
		return "", "", errors.Wrap(errors.ErrCodeIO, err, "creating %s", headerPath)
	}
	if err := nrrd.EncodeHeader(f, hdr); err != nil {
		f.Close()
		return "", "", errors.Wrap(errors.ErrCodeIO, err, "writing %s", headerPath)
	}
	if err := f.Close(); err != nil {
		return "", "", errors.Wrap(errors.ErrCodeIO, err, "closing %s", headerPath)
	}
	return bufferPath, headerPath, nil
}

// ReadBuffer reads a float64 .npy file as a storage-order buffer. The pixel
// type is left as Float64; headers carry the real sample type.
func ReadBuffer(path string) (*models.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "opening %s", path)
	}
	defer f.Close()

	r, err := gonpy.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "reading %s", path)
	}
	if r.ColumnMajor {
		return nil, errors.New(errors.ErrCodeShapeMismatch, "%s is stored column-major", path)
	}
	data, err := r.GetFloat64()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "reading %s", path)
	}
	buf := &models.Buffer{Data: data, Shape: append([]int(nil), r.Shape...), PixelType: models.Float64}
	if err := buf.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeShapeMismatch, err, "buffer %s", path)
	}
	return buf, nil
}

// ReadHeader reads a header sidecar.
func ReadHeader(path string) (*nrrd.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "opening %s", path)
	}
	defer f.Close()
	return nrrd.DecodeHeader(f)
}

// ReadImages reconstructs every image stored in a buffer/header pair: one
// for a 3-D header, one per stacked volume for a 4-D header.
func ReadImages(bufferPath, headerPath string, loader nrrd.Loader) ([]*volume.Image, error) {
	buf, err := ReadBuffer(bufferPath)
	if err != nil {
		return nil, err
	}
	hdr, err := ReadHeader(headerPath)
	if err != nil {
		return nil, err
	}
	images, err := loader.Load(buf, hdr)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", headerPath, err)
	}
	return images, nil
}

// ReadImage reads a pair holding exactly one image.
func ReadImage(bufferPath, headerPath string) (*volume.Image, error) {
	images, err := ReadImages(bufferPath, headerPath, nrrd.Loader{})
	if err != nil {
		return nil, err
	}
	if len(images) != 1 {
		return nil, errors.New(errors.ErrCodeDimensionality, "%s holds %d images, expected 1", headerPath, len(images))
	}
	return images[0], nil
}
