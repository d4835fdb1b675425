// Package alignment brings images onto a common reference grid.
//
// The central operation is ResampleAndCrop: a target image is resampled onto
// the reference grid and cropped to the smallest box of reference voxels that
// the target physically covers. The interpolation itself is delegated to a
// Resampler.
package alignment

import (
	"fmt"

	"imagetools/internal/models"
	"imagetools/pkg/errors"
	"imagetools/pkg/interpolation"
	"imagetools/pkg/volume"
)

// Resampler samples src on the voxel grid of onto. Voxels outside src's
// physical extent receive defaultValue. The returned volume has onto's size
// and src's pixel type.
type Resampler interface {
	Resample(src, onto *volume.Image, method interpolation.Method, defaultValue float64) (*models.Volume, error)
}

// Engine resamples and crops images with a Resampler.
type Engine struct {
	resampler Resampler

	// DefaultValue fills resampled voxels outside the target's extent.
	DefaultValue float64
}

// NewEngine returns an engine backed by r. A nil r uses an
// interpolation.Grid with one worker per CPU.
func NewEngine(r Resampler) *Engine {
	if r == nil {
		r = interpolation.NewGrid(0)
	}
	return &Engine{resampler: r}
}

// BoundingBox is an inclusive box of reference-grid indices (x, y, z).
// An Empty box covers no voxel; Min and Max are meaningless then.
type BoundingBox struct {
	Min, Max [3]int
	Empty    bool
}

// Size returns the extent of the box along each axis.
func (b BoundingBox) Size() [3]int {
	if b.Empty {
		return [3]int{}
	}
	return [3]int{b.Max[0] - b.Min[0] + 1, b.Max[1] - b.Min[1] + 1, b.Max[2] - b.Min[2] + 1}
}

// CropAmounts converts the box into the number of voxels to drop below and
// above it on a grid of the given size.
func (b BoundingBox) CropAmounts(size [3]int) (lower, upper [3]int) {
	if b.Empty {
		return size, [3]int{}
	}
	for i := 0; i < 3; i++ {
		lower[i] = b.Min[i]
		upper[i] = size[i] - b.Max[i] - 1
	}
	return lower, upper
}

// ComputeBoundingBox returns the component-wise minimum and maximum indices
// of the voxels of vol equal to value.
func ComputeBoundingBox(vol *models.Volume, value float64) BoundingBox {
	box := BoundingBox{Empty: true}
	for z := 0; z < vol.Size[2]; z++ {
		for y := 0; y < vol.Size[1]; y++ {
			for x := 0; x < vol.Size[0]; x++ {
				if vol.At(x, y, z) != value {
					continue
				}
				idx := [3]int{x, y, z}
				if box.Empty {
					box = BoundingBox{Min: idx, Max: idx}
					continue
				}
				for i := 0; i < 3; i++ {
					box.Min[i] = min(box.Min[i], idx[i])
					box.Max[i] = max(box.Max[i], idx[i])
				}
			}
		}
	}
	return box
}

// ResampleLinear resamples target onto reference with linear interpolation.
// A missing image yields a nil result.
func (e *Engine) ResampleLinear(reference, target *volume.Image) (*volume.Image, error) {
	return e.resample(reference, target, interpolation.Linear, e.DefaultValue)
}

// ResampleNearest resamples target onto reference with nearest-neighbour
// interpolation. A missing image yields a nil result.
func (e *Engine) ResampleNearest(reference, target *volume.Image) (*volume.Image, error) {
	return e.resample(reference, target, interpolation.NearestNeighbor, e.DefaultValue)
}

func (e *Engine) resample(reference, target *volume.Image, method interpolation.Method, defaultValue float64) (*volume.Image, error) {
	if reference == nil || target == nil {
		return nil, nil
	}
	vol, err := e.resampler.Resample(target, reference, method, defaultValue)
	if err != nil {
		return nil, fmt.Errorf("%v resampling: %w", method, err)
	}
	if vol.Size != reference.Size() {
		return nil, errors.New(errors.ErrCodeShapeMismatch,
			"resampler returned size %v for a %v reference", vol.Size, reference.Size())
	}
	return volume.New(vol, reference.Frame, target.Metadata.Clone())
}

// OverlapBox returns the box of reference voxels whose centres fall inside
// target's physical extent.
func (e *Engine) OverlapBox(reference, target *volume.Image) (BoundingBox, error) {
	ones := models.NewVolume(models.UInt8, target.Size())
	ones.Fill(1)
	mask, err := volume.New(ones, target.Frame, nil)
	if err != nil {
		return BoundingBox{}, err
	}
	covered, err := e.resampler.Resample(mask, reference, interpolation.NearestNeighbor, 0)
	if err != nil {
		return BoundingBox{}, fmt.Errorf("resampling overlap mask: %w", err)
	}
	return ComputeBoundingBox(covered, 1), nil
}

// ResampleAndCrop resamples target onto reference with linear interpolation,
// crops the result to the region target covers and casts it to reference's
// pixel type. When the images do not overlap the result is an empty image
// on reference's frame. A missing image yields a nil result.
func (e *Engine) ResampleAndCrop(reference, target *volume.Image) (*volume.Image, error) {
	if reference == nil || target == nil {
		return nil, nil
	}

	box, err := e.OverlapBox(reference, target)
	if err != nil {
		return nil, err
	}
	if box.Empty {
		return volume.New(models.NewVolume(reference.PixelType(), [3]int{}), reference.Frame, target.Metadata.Clone())
	}

	resampled, err := e.ResampleLinear(reference, target)
	if err != nil {
		return nil, err
	}
	lower, upper := box.CropAmounts(resampled.Size())
	cropped, err := Crop(resampled, lower, upper)
	if err != nil {
		return nil, err
	}
	return Cast(cropped, reference.PixelType()), nil
}

// Crop drops lower[i] voxels from the start and upper[i] voxels from the end
// of axis i. The origin moves to the first kept voxel.
func Crop(img *volume.Image, lower, upper [3]int) (*volume.Image, error) {
	size := img.Size()
	var out [3]int
	for i := 0; i < 3; i++ {
		if lower[i] < 0 || upper[i] < 0 {
			return nil, errors.New(errors.ErrCodeInvalidInput, "negative crop on axis %d", i)
		}
		out[i] = size[i] - lower[i] - upper[i]
		if out[i] < 0 {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"cropping %d+%d voxels from axis %d of extent %d", lower[i], upper[i], i, size[i])
		}
	}

	vol := models.NewVolume(img.PixelType(), out)
	for z := 0; z < out[2]; z++ {
		for y := 0; y < out[1]; y++ {
			for x := 0; x < out[0]; x++ {
				vol.Set(x, y, z, img.Volume.At(x+lower[0], y+lower[1], z+lower[2]))
			}
		}
	}
	return volume.New(vol, img.Frame.Crop(lower), img.Metadata.Clone())
}

// Cast converts the samples of img to pixel type pt.
func Cast(img *volume.Image, pt models.PixelType) *volume.Image {
	vol := models.NewVolume(pt, img.Size())
	for i, v := range img.Volume.Data {
		vol.Data[i] = pt.Cast(v)
	}
	return &volume.Image{Volume: vol, Frame: img.Frame, Metadata: img.Metadata.Clone()}
}

// CopyMetadata returns target with every metadata entry of reference merged
// in, overwriting colliding keys.
func CopyMetadata(reference, target *volume.Image) (*volume.Image, error) {
	if reference == nil || target == nil {
		return nil, errors.New(errors.ErrCodeMissingReference, "copying metadata needs a reference and a target")
	}
	meta := target.Metadata.Clone()
	meta.Merge(reference.Metadata)
	return &volume.Image{Volume: target.Volume, Frame: target.Frame, Metadata: meta}, nil
}
