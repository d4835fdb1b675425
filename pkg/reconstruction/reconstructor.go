// Package reconstruction runs the end-to-end label pipeline: it loads a
// reference image and one or more segmentation files, places every label
// layer on the reference grid, merges the layers into a binary mask and crops
// the reference to the labelled region.
//
// The pipeline consists of several steps:
//  1. Loading the reference image
//  2. Loading and splitting the label files
//  3. Resampling and cropping each label layer onto the reference
//  4. Aggregating the layers into one binary mask
//  5. Cropping the reference to the mask's bounding box
//  6. Saving the results
package reconstruction

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"imagetools/pkg/alignment"
	"imagetools/pkg/config"
	"imagetools/pkg/errors"
	"imagetools/pkg/export"
	"imagetools/pkg/interpolation"
	"imagetools/pkg/labels"
	"imagetools/pkg/nrrd"
	"imagetools/pkg/visualization"
	"imagetools/pkg/volume"
)

// Params holds the pipeline parameters.
type Params struct {
	// Reference is the path of the reference image without extension; the
	// buffer and header are read from Reference.npy and Reference.yaml.
	Reference string

	// Labels are the paths of the label files without extension. A file may
	// hold a single label map or a stack of segment layers.
	Labels []string

	// OutputDir receives the mask and the cropped reference.
	OutputDir string

	// OutputName prefixes the output file names.
	OutputName string

	// NumWorkers bounds the goroutines used for splitting and resampling.
	NumWorkers int

	// DefaultPixelValue fills resampled voxels outside a label's extent.
	DefaultPixelValue float64

	// SaveIntermediaryResults determines whether slice previews are saved.
	SaveIntermediaryResults bool

	// IntermediaryDir is where slice previews are saved.
	IntermediaryDir string

	// SliceFormat is the image format of slice previews.
	SliceFormat string

	// Logger receives progress; nil discards it.
	Logger *log.Logger
}

// ParamsFromConfig returns parameters carrying the processing and output
// settings of cfg. Inputs and outputs are left for the caller to fill in.
func ParamsFromConfig(cfg *config.Config) *Params {
	return &Params{
		NumWorkers:              cfg.Processing.NumWorkers,
		DefaultPixelValue:       cfg.Processing.DefaultPixelValue,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         cfg.Output.IntermediaryDir,
		SliceFormat:             cfg.Output.SliceFormat,
	}
}

// NewLogger creates a logger writing timestamped entries to w at or above level.
func NewLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// LoggerFromConfig creates a logger at the level named by cfg.
func LoggerFromConfig(w io.Writer, cfg *config.Config) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logging level: %w", err)
	}
	return NewLogger(w, level), nil
}

// LayerResult describes one label layer after alignment.
type LayerResult struct {
	// Source is the label file the layer was read from.
	Source string

	// Segment is the Slicer segment the layer holds, if recorded.
	Segment labels.Segment

	// CroppedSize is the size of the layer cropped to its overlap with the
	// reference; zero when they do not overlap.
	CroppedSize [3]int

	// Foreground counts the positive voxels of the aligned layer.
	Foreground int
}

// Summary holds the results of a pipeline run.
type Summary struct {
	Layers []LayerResult

	// ForegroundSize counts the voxels of the aggregated mask.
	ForegroundSize int

	// ForegroundLocation is the mean voxel index of the mask.
	ForegroundLocation [3]float64

	// Region is the mask's bounding box on the reference grid.
	Region alignment.BoundingBox

	// MaskPath and CroppedPath are the buffer paths of the saved outputs.
	MaskPath    string
	CroppedPath string

	Duration time.Duration
}

// Reconstructor runs the pipeline.
type Reconstructor struct {
	// params stores the pipeline configuration
	params *Params

	logger *log.Logger
	grid   *interpolation.Grid
	engine *alignment.Engine
	loader nrrd.Loader

	reference *volume.Image
	layers    []*volume.Image
	layerInfo []LayerResult
	mask      *volume.Image
	cropped   *volume.Image

	summary Summary
}

// NewReconstructor creates a new pipeline instance with the provided parameters.
func NewReconstructor(params *Params) *Reconstructor {
	logger := params.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	grid := interpolation.NewGrid(params.NumWorkers)
	grid.SetProgressCallback(func(completed, total int, message string) {
		logger.Debug(message, "slice", completed, "of", total)
	})
	engine := alignment.NewEngine(grid)
	engine.DefaultValue = params.DefaultPixelValue

	return &Reconstructor{
		params: params,
		logger: logger,
		grid:   grid,
		engine: engine,
		loader: nrrd.Loader{Workers: params.NumWorkers},
	}
}

// Validate checks that the parameters name every input and output.
func (p *Params) Validate() error {
	if p.Reference == "" {
		return errors.New(errors.ErrCodeMissingReference, "no reference image given")
	}
	if len(p.Labels) == 0 {
		return errors.New(errors.ErrCodeEmptyInput, "no label files given")
	}
	if p.OutputDir == "" || p.OutputName == "" {
		return errors.New(errors.ErrCodeInvalidInput, "output directory and name are required")
	}
	if p.SaveIntermediaryResults && p.IntermediaryDir == "" {
		return errors.New(errors.ErrCodeInvalidInput, "intermediary directory is required")
	}
	return nil
}

// Process runs the complete pipeline.
func (r *Reconstructor) Process() error {
	start := time.Now()
	if err := r.params.Validate(); err != nil {
		return err
	}
	r.layers, r.layerInfo, r.summary = nil, nil, Summary{}

	if r.params.SaveIntermediaryResults {
		if err := os.MkdirAll(r.params.IntermediaryDir, 0755); err != nil {
			return fmt.Errorf("failed to create intermediary directory: %w", err)
		}
	}

	r.logger.Info("Step 1: Loading reference image", "path", r.params.Reference)
	if err := r.loadReference(); err != nil {
		return fmt.Errorf("failed to load reference: %w", err)
	}
	volume.LogInfo(r.logger, "reference", r.reference)
	r.saveIntermediaryResult("01_reference", r.reference)

	r.logger.Info("Step 2: Loading label files", "files", len(r.params.Labels))
	if err := r.loadLabels(); err != nil {
		return fmt.Errorf("failed to load labels: %w", err)
	}

	r.logger.Info("Step 3: Resampling label layers onto the reference", "layers", len(r.layers))
	if err := r.alignLayers(); err != nil {
		return fmt.Errorf("failed to align labels: %w", err)
	}

	r.logger.Info("Step 4: Aggregating label layers")
	if err := r.aggregate(); err != nil {
		return fmt.Errorf("failed to aggregate labels: %w", err)
	}
	r.saveIntermediaryResult("04_mask", r.mask)

	r.logger.Info("Step 5: Cropping reference to the labelled region")
	if err := r.cropReference(); err != nil {
		return fmt.Errorf("failed to crop reference: %w", err)
	}
	r.saveIntermediaryResult("05_cropped_reference", r.cropped)

	r.logger.Info("Step 6: Saving results", "dir", r.params.OutputDir)
	if err := r.saveResults(); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	r.summary.Layers = r.layerInfo
	r.summary.Duration = time.Since(start)
	r.logger.Info("Pipeline finished",
		"foreground", r.summary.ForegroundSize,
		"elapsed", r.summary.Duration.Round(time.Millisecond))
	return nil
}

func (r *Reconstructor) loadReference() error {
	bufferPath, headerPath := r.paths(r.params.Reference)
	img, err := export.ReadImage(bufferPath, headerPath)
	if err != nil {
		return err
	}
	r.reference = img
	return nil
}

func (r *Reconstructor) loadLabels() error {
	for _, path := range r.params.Labels {
		bufferPath, headerPath := r.paths(path)
		layers, err := export.ReadImages(bufferPath, headerPath, r.loader)
		if err != nil {
			return err
		}

		segments, err := labels.SegmentNames(layers)
		if err != nil {
			r.logger.Warn("Segment names unavailable", "file", path, "err", err)
		}
		for i, layer := range layers {
			info := LayerResult{Source: path, Segment: labels.Segment{Index: i}}
			if i < len(segments) {
				info.Segment = segments[i]
			}
			r.layers = append(r.layers, layer)
			r.layerInfo = append(r.layerInfo, info)
		}
		r.logger.Info("Loaded label file", "file", path, "layers", len(layers), "segments", len(segments))
	}
	return nil
}

func (r *Reconstructor) alignLayers() error {
	for i, layer := range r.layers {
		aligned, err := r.engine.ResampleAndCrop(r.reference, layer)
		if err != nil {
			return fmt.Errorf("layer %d of %s: %w", i, r.layerInfo[i].Source, err)
		}
		info := &r.layerInfo[i]
		info.CroppedSize = aligned.Size()
		info.Foreground = labels.ForegroundSize(aligned)
		if aligned.Volume.Empty() {
			r.logger.Warn("Label layer does not overlap the reference", "layer", i, "segment", info.Segment.Name)
			continue
		}
		r.logger.Info("Aligned label layer",
			"layer", i,
			"segment", info.Segment.Name,
			"size", fmt.Sprintf("%dx%dx%d", info.CroppedSize[0], info.CroppedSize[1], info.CroppedSize[2]),
			"foreground", info.Foreground)
	}
	return nil
}

func (r *Reconstructor) aggregate() error {
	agg := labels.Aggregator{
		Resampler: r.grid,
		Workers:   r.params.NumWorkers,
	}
	mask, err := agg.FromList(r.layers, r.reference)
	if err != nil {
		return err
	}
	r.mask = mask

	r.summary.ForegroundSize = labels.ForegroundSize(mask)
	if loc, ok := labels.ForegroundLocation(mask); ok {
		r.summary.ForegroundLocation = loc
	}
	r.logger.Info("Aggregated mask",
		"foreground", r.summary.ForegroundSize,
		"location", fmt.Sprintf("(%.1f, %.1f, %.1f)", r.summary.ForegroundLocation[0],
			r.summary.ForegroundLocation[1], r.summary.ForegroundLocation[2]))
	return nil
}

func (r *Reconstructor) cropReference() error {
	box := alignment.ComputeBoundingBox(r.mask.Volume, 1)
	r.summary.Region = box
	if box.Empty {
		r.logger.Warn("Mask is empty, keeping the full reference")
		r.cropped = r.reference
		return nil
	}

	lower, upper := box.CropAmounts(r.reference.Size())
	cropped, err := alignment.Crop(r.reference, lower, upper)
	if err != nil {
		return err
	}
	r.cropped = cropped
	volume.LogInfo(r.logger, "cropped reference", cropped)
	return nil
}

func (r *Reconstructor) saveResults() error {
	// the mask is saved with the reference's metadata plus the segments'
	mask := r.mask
	for _, layer := range r.layers {
		merged, err := alignment.CopyMetadata(layer, mask)
		if err != nil {
			return err
		}
		mask = merged
	}
	merged, err := alignment.CopyMetadata(r.reference, mask)
	if err != nil {
		return err
	}

	maskPath, _, err := export.WriteImage(r.params.OutputDir, r.params.OutputName+"_mask", merged)
	if err != nil {
		return err
	}
	croppedPath, _, err := export.WriteImage(r.params.OutputDir, r.params.OutputName+"_cropped", r.cropped)
	if err != nil {
		return err
	}
	r.summary.MaskPath = maskPath
	r.summary.CroppedPath = croppedPath
	return nil
}

// paths strips a buffer or header extension the caller may have given.
func (r *Reconstructor) paths(base string) (string, string) {
	ext := filepath.Ext(base)
	if strings.EqualFold(ext, export.BufferExt) || strings.EqualFold(ext, export.HeaderExt) {
		base = strings.TrimSuffix(base, ext)
	}
	return export.Paths(filepath.Dir(base), filepath.Base(base))
}

// saveIntermediaryResult saves the z slices of img under stage. Failures are
// logged and do not stop the pipeline.
func (r *Reconstructor) saveIntermediaryResult(stage string, img *volume.Image) {
	if !r.params.SaveIntermediaryResults || img == nil || img.Volume.Empty() {
		return
	}
	format := r.params.SliceFormat
	if format == "" {
		format = "jpg"
	}
	dir := filepath.Join(r.params.IntermediaryDir, stage)
	if err := visualization.NewViewer(img).SaveSliceSequence("z", dir, format); err != nil {
		r.logger.Warn("Failed to save intermediary slices", "stage", stage, "err", err)
		return
	}
	r.logger.Debug("Saved intermediary slices", "stage", stage, "dir", dir)
}

// GetSummary returns the results of the last run.
func (r *Reconstructor) GetSummary() Summary {
	return r.summary
}

// GetMask returns the aggregated mask of the last run.
func (r *Reconstructor) GetMask() *volume.Image {
	return r.mask
}

// GetCropped returns the reference cropped to the labelled region.
func (r *Reconstructor) GetCropped() *volume.Image {
	return r.cropped
}
