// Package labels merges segmentation label maps into a single binary mask.
//
// Label maps are typically segment layers split out of a 3D Slicer
// segmentation (see nrrd.SplitVolumes). Each map is resampled onto a common
// reference grid with nearest-neighbour interpolation, the maps are summed
// voxel-wise and the sum is binarized: every positive voxel becomes 1.
package labels

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"imagetools/internal/models"
	"imagetools/pkg/alignment"
	"imagetools/pkg/errors"
	"imagetools/pkg/interpolation"
	"imagetools/pkg/volume"
)

// Aggregator combines label maps on a reference grid.
type Aggregator struct {
	// Resampler places each label map on the reference grid; nil uses an
	// interpolation.Grid.
	Resampler alignment.Resampler
	// Workers bounds the number of maps resampled concurrently; zero or less
	// uses one per CPU.
	Workers int
}

// FromList merges labels into one binary mask on the grid of ref.
//
// Every map is resampled onto ref with nearest-neighbour interpolation, so
// voxels outside a map's extent count as background. The result is UInt8,
// holds 1 wherever the summed maps are positive and carries ref's frame and metadata.
func FromList(labels []*volume.Image, ref *volume.Image) (*volume.Image, error) {
	return Aggregator{}.FromList(labels, ref)
}

// FromList merges labels into one binary mask on the grid of ref.
func (a Aggregator) FromList(labels []*volume.Image, ref *volume.Image) (*volume.Image, error) {
	if len(labels) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyInput, "no label maps to aggregate")
	}
	if ref == nil {
		return nil, errors.New(errors.ErrCodeMissingReference, "aggregating labels needs a reference image")
	}

	for i, label := range labels {
		if label == nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, "label map %d is missing", i)
		}
	}

	resampler := a.Resampler
	if resampler == nil {
		resampler = interpolation.NewGrid(0)
	}
	workers := a.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	resampled := make([]*models.Volume, len(labels))
	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, label := range labels {
		i, label := i, label
		eg.Go(func() error {
			vol, err := resampler.Resample(label, ref, interpolation.NearestNeighbor, 0)
			if err != nil {
				return fmt.Errorf("resampling label map %d: %w", i, err)
			}
			resampled[i] = vol
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sum, err := Union(resampled...)
	if err != nil {
		return nil, err
	}
	return volume.New(Binarize(sum), ref.Frame, ref.Metadata.Clone())
}

// Union returns the voxel-wise sum of vols as a Float64 volume. All volumes
// must share the same size.
func Union(vols ...*models.Volume) (*models.Volume, error) {
	if len(vols) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyInput, "no volumes to combine")
	}
	out := models.NewVolume(models.Float64, vols[0].Size)
	for i, v := range vols {
		if v.Size != out.Size {
			return nil, errors.New(errors.ErrCodeShapeMismatch,
				"volume %d has size %v, expected %v", i, v.Size, out.Size)
		}
		floats.Add(out.Data, v.Data)
	}
	return out, nil
}

// Binarize returns a UInt8 volume holding 1 where vol is positive and 0
// elsewhere.
func Binarize(vol *models.Volume) *models.Volume {
	out := models.NewVolume(models.UInt8, vol.Size)
	for i, v := range vol.Data {
		if v > 0 {
			out.Data[i] = 1
		}
	}
	return out
}

// ForegroundSize counts the positive voxels of img.
func ForegroundSize(img *volume.Image) int {
	n := 0
	for _, v := range img.Volume.Data {
		if v > 0 {
			n++
		}
	}
	return n
}

// ForegroundLocation returns the mean voxel index of the positive voxels of
// img. It reports false when img has no foreground.
func ForegroundLocation(img *volume.Image) ([3]float64, bool) {
	size := img.Size()
	var xs, ys, zs []float64
	for z := 0; z < size[2]; z++ {
		for y := 0; y < size[1]; y++ {
			for x := 0; x < size[0]; x++ {
				if img.Volume.At(x, y, z) <= 0 {
					continue
				}
				xs = append(xs, float64(x))
				ys = append(ys, float64(y))
				zs = append(zs, float64(z))
			}
		}
	}
	if len(xs) == 0 {
		return [3]float64{}, false
	}
	return [3]float64{stat.Mean(xs, nil), stat.Mean(ys, nil), stat.Mean(zs, nil)}, true
}

// Segment describes one segment layer of a segmentation.
type Segment struct {
	Index int
	ID    string
	Name  string
}

// SegmentNames lists the segments recorded by 3D Slicer in the metadata
// shared by the layers of a split segmentation. One segment is expected per
// Segment<i>_ID entry, each with a Segment<i>_Name.
func SegmentNames(layers []*volume.Image) ([]Segment, error) {
	if len(layers) == 0 || layers[0] == nil {
		return nil, errors.New(errors.ErrCodeEmptyInput, "no segmentation layers")
	}
	meta := layers[0].Metadata

	n := 0
	for _, k := range meta.Keys() {
		if strings.HasPrefix(k, "Segment") && strings.HasSuffix(k, "_ID") {
			n++
		}
	}

	segments := make([]Segment, n)
	for i := 0; i < n; i++ {
		name, ok := meta.Get(fmt.Sprintf("Segment%d_Name", i))
		if !ok {
			return nil, errors.New(errors.ErrCodeMissingMetadata, "segment %d has no name", i)
		}
		id, _ := meta.Get(fmt.Sprintf("Segment%d_ID", i))
		segments[i] = Segment{Index: i, ID: id, Name: name}
	}
	return segments, nil
}
