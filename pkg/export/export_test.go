package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"imagetools/internal/models"
	"imagetools/pkg/affine"
	"imagetools/pkg/errors"
	"imagetools/pkg/nrrd"
	"imagetools/pkg/volume"
)

func sampleImage(t *testing.T, pt models.PixelType, offset float64) *volume.Image {
	t.Helper()
	vol := models.NewVolume(pt, [3]int{3, 2, 2})
	for i := range vol.Data {
		vol.Data[i] = float64(i) + offset
	}
	frame := volume.Frame{
		Origin:    r3.Vec{X: -10, Y: 4.5, Z: 2},
		Spacing:   r3.Vec{X: 0.5, Y: 2, Z: 3},
		Direction: affine.ColStack(r3.Vec{Y: 1}, r3.Vec{X: -1}, r3.Vec{Z: 1}),
		Space:     volume.SpaceRAS,
	}
	img, err := volume.New(vol, frame, volume.NewMetadata(volume.SpaceKey, volume.RASName, "Segment0_Name", "lesion"))
	require.NoError(t, err)
	return img
}

func TestHeaderFor(t *testing.T) {
	hdr := HeaderFor(sampleImage(t, models.Int16, 0))

	assert.Equal(t, 3, hdr.Dimension)
	assert.Equal(t, volume.RASName, hdr.Space)
	assert.Equal(t, "(-10,4.5,2)", hdr.SpaceOrigin)
	assert.Equal(t, []string{"(0,0.5,0)", "(-2,0,0)", "(0,0,3)"}, hdr.SpaceDirections)
	assert.Equal(t, "int16", hdr.Type)
	assert.Equal(t, []string{volume.SpaceKey, "Segment0_Name"}, hdr.KeyValuePairs.Keys())
}

func TestWriteImageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	img := sampleImage(t, models.Int16, 0)

	bufferPath, headerPath, err := WriteImage(filepath.Join(dir, "out"), "image", img)
	require.NoError(t, err)
	assert.FileExists(t, bufferPath)
	assert.FileExists(t, headerPath)
	assert.Equal(t, ".npy", filepath.Ext(bufferPath))

	got, err := ReadImage(bufferPath, headerPath)
	require.NoError(t, err)
	assert.Equal(t, img.Size(), got.Size())
	assert.Equal(t, img.Frame, got.Frame)
	assert.Equal(t, models.Int16, got.PixelType())
	assert.Equal(t, img.Volume.Data, got.Volume.Data)
	name, _ := got.Metadata.Get("Segment0_Name")
	assert.Equal(t, "lesion", name)
}

func TestWriteStackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := sampleImage(t, models.UInt8, 0)
	b := sampleImage(t, models.UInt8, 100)

	bufferPath, headerPath, err := WriteStack(dir, "segmentation", []*volume.Image{a, b})
	require.NoError(t, err)

	buf, err := ReadBuffer(bufferPath)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 2, 2}, buf.Shape)

	hdr, err := ReadHeader(headerPath)
	require.NoError(t, err)
	assert.Equal(t, 4, hdr.Dimension)
	assert.Equal(t, "none", hdr.SpaceDirections[0])

	images, err := ReadImages(bufferPath, headerPath, nrrd.Loader{Workers: 2})
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, a.Volume.Data, images[0].Volume.Data)
	assert.Equal(t, b.Volume.Data, images[1].Volume.Data)
	assert.Equal(t, a.Frame, images[1].Frame)

	_, err = ReadImage(bufferPath, headerPath)
	assert.True(t, errors.Is(err, errors.ErrCodeDimensionality))
}

func TestWriteStackErrors(t *testing.T) {
	dir := t.TempDir()
	_, _, err := WriteStack(dir, "empty", nil)
	assert.True(t, errors.Is(err, errors.ErrCodeEmptyInput))

	a := sampleImage(t, models.UInt8, 0)
	other, err := volume.New(models.NewVolume(models.UInt8, [3]int{1, 1, 1}), a.Frame, nil)
	require.NoError(t, err)
	_, _, err = WriteStack(dir, "mixed", []*volume.Image{a, other})
	assert.True(t, errors.Is(err, errors.ErrCodeShapeMismatch))

	_, _, err = WriteImage(dir, "none", nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadBuffer(filepath.Join(dir, "missing.npy"))
	assert.True(t, errors.Is(err, errors.ErrCodeIO))

	_, err = ReadHeader(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.Is(err, errors.ErrCodeIO))

	bufferPath, headerPath, err := WriteImage(dir, "image", sampleImage(t, models.Float32, 0))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(headerPath, []byte("dimension: 3\nspace: scanner-xyz\nspace origin: (0,0,0)\nspace directions: [\"(1,0,0)\", \"(0,1,0)\", \"(0,0,1)\"]\n"), 0644))

	_, err = ReadImage(bufferPath, headerPath)
	assert.True(t, errors.Is(err, errors.ErrCodeUnknownSpace))
}
