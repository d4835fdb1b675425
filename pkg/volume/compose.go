package volume

import (
	"imagetools/pkg/errors"
)

// Composite is a multi-channel image: every voxel holds one sample per
// channel, interleaved so that channel c of voxel i is at Data[i*Channels+c].
type Composite struct {
	Data     []float64
	Size     [3]int
	Channels int
	Frame    Frame
}

// At returns channel c of voxel (x, y, z).
func (c *Composite) At(x, y, z, ch int) float64 {
	i := (z*c.Size[1]+y)*c.Size[0] + x
	return c.Data[i*c.Channels+ch]
}

// Compose stacks images sharing one grid into a multi-channel image, in the
// order given. At least two images are required.
func Compose(images []*Image) (*Composite, error) {
	if len(images) < 2 {
		return nil, errors.New(errors.ErrCodeEmptyInput, "composing needs at least two images, got %d", len(images))
	}
	first := images[0]
	for i, img := range images[1:] {
		if img.Size() != first.Size() {
			return nil, errors.New(errors.ErrCodeShapeMismatch,
				"image %d has size %v, image 0 has %v", i+1, img.Size(), first.Size())
		}
	}

	n := len(images)
	out := &Composite{
		Data:     make([]float64, first.Volume.Len()*n),
		Size:     first.Size(),
		Channels: n,
		Frame:    first.Frame,
	}
	for c, img := range images {
		for i, v := range img.Volume.Data {
			out.Data[i*n+c] = v
		}
	}
	return out, nil
}
