// Package interpolation resamples an image onto the voxel grid of another.
//
// For every voxel of the destination grid the physical position is mapped
// into the source's continuous index space and sampled there with the chosen
// interpolation method. Positions falling outside the source's extent receive
// a caller-supplied default value. Rows of the destination grid are processed
// in parallel.
package interpolation

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"imagetools/internal/models"
	"imagetools/pkg/volume"
)

// Method selects how samples between voxel centres are computed.
type Method int

const (
	// NearestNeighbor copies the closest source voxel; use it for label maps.
	NearestNeighbor Method = iota
	// Linear blends the eight surrounding voxels trilinearly.
	Linear
)

func (m Method) String() string {
	switch m {
	case NearestNeighbor:
		return "nearest"
	case Linear:
		return "linear"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ProgressCallback receives the number of completed and total slices.
type ProgressCallback func(completed, total int, message string)

// Grid resamples images between voxel grids.
type Grid struct {
	workers  int
	progress ProgressCallback
	mu       sync.Mutex
}

// NewGrid returns a resampler using up to workers goroutines; workers <= 0
// uses one per CPU.
func NewGrid(workers int) *Grid {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Grid{workers: workers}
}

// SetProgressCallback installs a callback invoked after each output slice.
func (g *Grid) SetProgressCallback(callback ProgressCallback) {
	g.progress = callback
}

// Resample samples src on the grid of onto. The result has onto's size and
// src's pixel type; voxels outside src's extent are set to defaultValue.
func (g *Grid) Resample(src, onto *volume.Image, method Method, defaultValue float64) (*models.Volume, error) {
	if src == nil || onto == nil {
		return nil, fmt.Errorf("resample needs both a source and a reference image")
	}
	if method != NearestNeighbor && method != Linear {
		return nil, fmt.Errorf("unsupported interpolation method %v", method)
	}
	locate, err := src.Frame.Locator()
	if err != nil {
		return nil, fmt.Errorf("source frame: %w", err)
	}

	out := models.NewVolume(src.PixelType(), onto.Size())
	if out.Empty() {
		return out, nil
	}
	fill := src.PixelType().Cast(defaultValue)

	size := out.Size
	completed := 0
	var eg errgroup.Group
	eg.SetLimit(g.workers)
	for z := 0; z < size[2]; z++ {
		z := z
		eg.Go(func() error {
			for y := 0; y < size[1]; y++ {
				for x := 0; x < size[0]; x++ {
					p := onto.Frame.IndexToPhysical(r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)})
					v, ok := sample(src.Volume, locate(p), method)
					if !ok {
						out.Data[out.Index(x, y, z)] = fill
						continue
					}
					out.Data[out.Index(x, y, z)] = src.PixelType().Cast(v)
				}
			}
			g.reportProgress(&completed, size[2], method)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Grid) reportProgress(completed *int, total int, method Method) {
	if g.progress == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	*completed++
	g.progress(*completed, total, fmt.Sprintf("%s resampling", method))
}

// sample evaluates vol at continuous index c. A position is inside the
// volume when every coordinate lies in [-0.5, n-0.5).
func sample(vol *models.Volume, c r3.Vec, method Method) (float64, bool) {
	ci := [3]float64{c.X, c.Y, c.Z}
	for i, n := range vol.Size {
		if !(ci[i] >= -0.5 && ci[i] < float64(n)-0.5) {
			return 0, false
		}
	}

	if method == NearestNeighbor {
		var idx [3]int
		for i := range ci {
			idx[i] = clamp(int(math.Floor(ci[i]+0.5)), vol.Size[i])
		}
		return vol.At(idx[0], idx[1], idx[2]), true
	}

	var lo, hi [3]int
	var frac [3]float64
	for i := range ci {
		base := math.Floor(ci[i])
		frac[i] = ci[i] - base
		lo[i] = clamp(int(base), vol.Size[i])
		hi[i] = clamp(int(base)+1, vol.Size[i])
	}

	var value float64
	for corner := 0; corner < 8; corner++ {
		w := 1.0
		var idx [3]int
		for i := 0; i < 3; i++ {
			if corner&(1<<i) != 0 {
				idx[i] = hi[i]
				w *= frac[i]
			} else {
				idx[i] = lo[i]
				w *= 1 - frac[i]
			}
		}
		if w == 0 {
			continue
		}
		value += w * vol.At(idx[0], idx[1], idx[2])
	}
	return value, true
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
