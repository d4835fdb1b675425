// Package nrrd turns a decoded NRRD voxel buffer and its header fields into
// geometrically correct RAS images.
//
// Decoding the container itself is left to a reader; this package consumes
// the header fields that describe physical placement:
//
//	space: left-posterior-superior
//	space origin: (-120.5,-98.2,34.0)
//	space directions: [(0.5,0,0), (0,0.5,0), (0,0,3)]
//
// LPS headers are converted to RAS on the way in, so every image produced here
// is tagged right-anterior-superior. Stacked segmentations (dimension 4, as
// written by 3D Slicer) are split into one image per segment.
package nrrd

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"imagetools/pkg/volume"
)

// Header field names.
const (
	FieldDimension       = "dimension"
	FieldSpace           = "space"
	FieldSpaceOrigin     = "space origin"
	FieldSpaceDirections = "space directions"
	FieldType            = "type"
	FieldKeyValuePairs   = "keyvaluepairs"
)

// Header holds the placement fields of a NRRD header.
type Header struct {
	Dimension       int              `yaml:"dimension"`
	Space           string           `yaml:"space"`
	SpaceOrigin     string           `yaml:"space origin"`
	SpaceDirections []string         `yaml:"space directions"`
	Type            string           `yaml:"type,omitempty"`
	KeyValuePairs   *volume.Metadata `yaml:"keyvaluepairs,omitempty"`
}

// Clone returns a copy that shares nothing with h.
func (h *Header) Clone() *Header {
	c := *h
	c.SpaceDirections = append([]string(nil), h.SpaceDirections...)
	if h.KeyValuePairs != nil {
		c.KeyValuePairs = h.KeyValuePairs.Clone()
	}
	return &c
}

// DecodeHeader reads a header from its YAML sidecar form.
func DecodeHeader(r io.Reader) (*Header, error) {
	var h Header
	if err := yaml.NewDecoder(r).Decode(&h); err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}
	return &h, nil
}

// EncodeHeader writes h in its YAML sidecar form.
func EncodeHeader(w io.Writer, h *Header) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(h); err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}
	return enc.Close()
}
