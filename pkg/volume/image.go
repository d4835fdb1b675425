// Package volume defines the image type shared by the reconstruction,
// alignment and aggregation packages: a voxel grid, the frame placing it in
// physical space and an ordered metadata mapping.
package volume

import (
	"fmt"

	"github.com/charmbracelet/log"

	"imagetools/internal/models"
	"imagetools/pkg/errors"
)

// Image is a voxel grid placed in physical space.
//
// Images are built with New, which checks the frame and buffer; operations in
// this module never modify an image they are given and return new ones
// instead.
type Image struct {
	Volume   *models.Volume
	Frame    Frame
	Metadata *Metadata
}

// New builds an image. The frame must have positive spacing and the volume's
// data must match its size. A nil metadata mapping is replaced by an empty one.
func New(vol *models.Volume, frame Frame, meta *Metadata) (*Image, error) {
	if vol == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "image needs a voxel volume")
	}
	if err := vol.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeShapeMismatch, err, "invalid voxel volume")
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if meta == nil {
		meta = NewMetadata()
	}
	return &Image{Volume: vol, Frame: frame, Metadata: meta}, nil
}

// Size returns the grid extent along x, y and z.
func (img *Image) Size() [3]int { return img.Volume.Size }

// PixelType returns the sample type.
func (img *Image) PixelType() models.PixelType { return img.Volume.PixelType }

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	return &Image{
		Volume:   img.Volume.Clone(),
		Frame:    img.Frame,
		Metadata: img.Metadata.Clone(),
	}
}

// WithVolume returns an image sharing img's frame and a copy of its metadata
// but holding vol. The volume's size is not checked against img.
func (img *Image) WithVolume(vol *models.Volume) (*Image, error) {
	return New(vol, img.Frame, img.Metadata.Clone())
}

// SameGrid reports whether both images have the same size and frame.
func (img *Image) SameGrid(other *Image) bool {
	return img.Size() == other.Size() && img.Frame == other.Frame
}

// ToRAS returns the image expressed in RAS. The space is taken from the
// reserved metadata entry when present, otherwise from the frame. RAS images
// are returned as is.
func (img *Image) ToRAS() (*Image, error) {
	space := img.Frame.Space
	if name, ok := img.Metadata.Get(SpaceKey); ok {
		s, err := ParseSpace(name)
		if err != nil {
			return nil, err
		}
		space = s
	}
	if space == SpaceRAS {
		return img, nil
	}

	frame := img.Frame
	frame.Space = SpaceLPS
	out := &Image{
		Volume:   img.Volume,
		Frame:    frame.ToRAS(),
		Metadata: img.Metadata.Clone(),
	}
	out.Metadata.Set(SpaceKey, RASName)
	return out, nil
}

// LogInfo writes the image geometry to logger at info level.
func LogInfo(logger *log.Logger, title string, img *Image) {
	if img == nil {
		logger.Info("Image details", "title", title, "image", "none")
		return
	}
	space, ok := img.Metadata.Get(SpaceKey)
	if !ok {
		space = "None"
	}
	size := img.Size()
	logger.Info("Image details",
		"title", title,
		"origin", fmt.Sprintf("(%.3f, %.3f, %.3f)", img.Frame.Origin.X, img.Frame.Origin.Y, img.Frame.Origin.Z),
		"direction", fmt.Sprintf("%.2f", img.DirectionSlice()),
		"size", fmt.Sprintf("%dx%dx%d", size[0], size[1], size[2]),
		"spacing", fmt.Sprintf("(%.3f, %.3f, %.3f)", img.Frame.Spacing.X, img.Frame.Spacing.Y, img.Frame.Spacing.Z),
		"pixel", img.PixelType(),
		"space", space,
	)
}

// DirectionSlice returns the row-major direction as a slice.
func (img *Image) DirectionSlice() []float64 {
	d := img.Frame.DirectionFlat()
	return d[:]
}
