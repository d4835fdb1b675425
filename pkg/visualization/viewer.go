// Package visualization renders 2D previews of images: orthogonal slices,
// optionally rescaled to the physical voxel aspect, saved as JPEG or PNG.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/floats"

	"imagetools/pkg/alignment"
	"imagetools/pkg/volume"
)

// Viewer extracts slices and regions from an image.
type Viewer struct {
	// img holds the image being viewed
	img *volume.Image

	// lo and hi bound the intensity window mapped onto the grey range
	lo, hi float64
}

// NewViewer creates a viewer whose intensity window spans the image's
// minimum and maximum sample.
func NewViewer(img *volume.Image) *Viewer {
	v := &Viewer{img: img}
	if data := img.Volume.Data; len(data) > 0 {
		v.lo, v.hi = floats.Min(data), floats.Max(data)
	}
	return v
}

// SetWindow overrides the intensity window.
func (v *Viewer) SetWindow(lo, hi float64) {
	v.lo, v.hi = lo, hi
}

// gray maps a sample onto the 16-bit grey range.
func (v *Viewer) gray(value float64) color.Gray16 {
	if v.hi <= v.lo {
		if value > v.lo {
			return color.Gray16{Y: math.MaxUint16}
		}
		return color.Gray16{}
	}
	t := (value - v.lo) / (v.hi - v.lo)
	return color.Gray16{Y: uint16(math.Round(math.Max(0, math.Min(1, t)) * math.MaxUint16))}
}

// axisIndex maps an axis name onto 0, 1 or 2.
func axisIndex(axis string) (int, error) {
	switch strings.ToLower(axis) {
	case "x":
		return 0, nil
	case "y":
		return 1, nil
	case "z":
		return 2, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts a 2D slice from the volume perpendicular to the
// given axis. An x slice spans (z, y), a y slice (x, z) and a z slice (x, y).
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return nil, err
	}
	size := v.img.Size()
	if position < 0 || position >= size[a] {
		return nil, fmt.Errorf("position %d outside axis %s of extent %d", position, axis, size[a])
	}

	vol := v.img.Volume
	var img *image.Gray16
	switch a {
	case 0:
		img = image.NewGray16(image.Rect(0, 0, size[2], size[1]))
		for y := 0; y < size[1]; y++ {
			for z := 0; z < size[2]; z++ {
				img.SetGray16(z, y, v.gray(vol.At(position, y, z)))
			}
		}
	case 1:
		img = image.NewGray16(image.Rect(0, 0, size[0], size[2]))
		for z := 0; z < size[2]; z++ {
			for x := 0; x < size[0]; x++ {
				img.SetGray16(x, z, v.gray(vol.At(x, position, z)))
			}
		}
	default:
		img = image.NewGray16(image.Rect(0, 0, size[0], size[1]))
		for y := 0; y < size[1]; y++ {
			for x := 0; x < size[0]; x++ {
				img.SetGray16(x, y, v.gray(vol.At(x, y, position)))
			}
		}
	}
	return img, nil
}

// ExtractPhysicalSlice extracts a slice like ExtractSlice and stretches it so
// one pixel covers the finest in-plane spacing along both directions.
func (v *Viewer) ExtractPhysicalSlice(axis string, position int) (image.Image, error) {
	slice, err := v.ExtractSlice(axis, position)
	if err != nil {
		return nil, err
	}
	a, _ := axisIndex(axis)
	sp := v.img.Frame.Spacing
	spacing := [3]float64{sp.X, sp.Y, sp.Z}

	// in-plane axes in (column, row) order, matching ExtractSlice
	planes := [3][2]int{{2, 1}, {0, 2}, {0, 1}}
	cols, rows := planes[a][0], planes[a][1]
	finest := math.Min(spacing[cols], spacing[rows])

	b := slice.Bounds()
	w := int(math.Round(float64(b.Dx()) * spacing[cols] / finest))
	h := int(math.Round(float64(b.Dy()) * spacing[rows] / finest))
	if w == b.Dx() && h == b.Dy() {
		return slice, nil
	}
	return imaging.Resize(slice, w, h, imaging.Linear), nil
}

// ExtractRegion extracts a 3D subregion starting at start with the given size.
// The region keeps its physical placement.
func (v *Viewer) ExtractRegion(start, size [3]int) (*volume.Image, error) {
	full := v.img.Size()
	var upper [3]int
	for i := 0; i < 3; i++ {
		if start[i] < 0 {
			return nil, fmt.Errorf("start coordinates must be non-negative")
		}
		if size[i] <= 0 {
			return nil, fmt.Errorf("size dimensions must be positive")
		}
		if start[i]+size[i] > full[i] {
			return nil, fmt.Errorf("region extends beyond volume boundaries")
		}
		upper[i] = full[i] - start[i] - size[i]
	}
	return alignment.Crop(v.img, start, upper)
}

// SaveSlice saves an extracted slice. The format follows the file extension;
// JPEG files are written at quality 90.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	if err := imaging.Save(img, filename, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("saving slice %s: %w", filename, err)
	}
	return nil
}

// SaveSliceSequence extracts and saves every slice along the specified axis
// as slice_<axis>_<nnn>.<format> in outputDir.
func (v *Viewer) SaveSliceSequence(axis, outputDir, format string) error {
	a, err := axisIndex(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < v.img.Size()[a]; pos++ {
		img, err := v.ExtractPhysicalSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.%s", strings.ToLower(axis), pos, format))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
