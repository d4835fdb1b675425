package volume

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"imagetools/internal/models"
	"imagetools/pkg/affine"
	"imagetools/pkg/errors"
)

func TestParseSpace(t *testing.T) {
	for in, want := range map[string]Space{
		"right-anterior-superior": SpaceRAS,
		"RAS":                     SpaceRAS,
		"left-posterior-superior": SpaceLPS,
		" lps ":                   SpaceLPS,
	} {
		got, err := ParseSpace(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSpace("scanner-xyz")
	assert.True(t, errors.Is(err, errors.ErrCodeUnknownSpace))
	assert.Equal(t, RASName, SpaceRAS.String())
	assert.Equal(t, LPSName, SpaceLPS.String())
}

func TestFrameValidate(t *testing.T) {
	f := IdentityFrame(r3.Vec{})
	require.NoError(t, f.Validate())

	for axis := 0; axis < 3; axis++ {
		for _, bad := range []float64{0, -1} {
			g := f
			s := [3]float64{1, 1, 1}
			s[axis] = bad
			g.Spacing = r3.Vec{X: s[0], Y: s[1], Z: s[2]}
			err := g.Validate()
			assert.True(t, errors.Is(err, errors.ErrCodeDegenerateSpacing), "axis %d spacing %v", axis, bad)
		}
	}
}

func TestFrameIndexMapping(t *testing.T) {
	f := Frame{
		Origin:    r3.Vec{X: 10, Y: -5, Z: 2},
		Spacing:   r3.Vec{X: 0.5, Y: 2, Z: 3},
		Direction: affine.ColStack(r3.Vec{Y: 1}, r3.Vec{X: -1}, r3.Vec{Z: 1}),
		Space:     SpaceRAS,
	}

	p := f.IndexToPhysical(r3.Vec{X: 2, Y: 1, Z: 1})
	assert.InDelta(t, 10-2, p.X, 1e-12)
	assert.InDelta(t, -5+1, p.Y, 1e-12)
	assert.InDelta(t, 2+3, p.Z, 1e-12)

	locate, err := f.Locator()
	require.NoError(t, err)
	idx := locate(p)
	assert.InDelta(t, 2, idx.X, 1e-12)
	assert.InDelta(t, 1, idx.Y, 1e-12)
	assert.InDelta(t, 1, idx.Z, 1e-12)

	cropped := f.Crop([3]int{2, 1, 1})
	assert.Equal(t, p, cropped.Origin)
	assert.Equal(t, f.Spacing, cropped.Spacing)
}

func TestFrameToRAS(t *testing.T) {
	f := Frame{
		Origin:    r3.Vec{X: 1, Y: 2, Z: 3},
		Spacing:   r3.Vec{X: 1, Y: 1, Z: 1},
		Direction: affine.Identity3(),
		Space:     SpaceLPS,
	}
	ras := f.ToRAS()
	assert.Equal(t, SpaceRAS, ras.Space)
	assert.Equal(t, r3.Vec{X: -1, Y: -2, Z: 3}, ras.Origin)
	assert.Equal(t, r3.Vec{X: -1}, ras.Direction.Col(0))
	assert.Equal(t, r3.Vec{Y: -1}, ras.Direction.Col(1))
	assert.Equal(t, r3.Vec{Z: 1}, ras.Direction.Col(2))

	assert.Equal(t, ras, ras.ToRAS())
}

func TestMetadataOrderAndMerge(t *testing.T) {
	m := NewMetadata("b", "1", "a", "2")
	m.Set("b", "3")
	m.Set("c", "4")
	assert.Equal(t, []string{"b", "a", "c"}, m.Keys())

	v, ok := m.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	other := NewMetadata("c", "overwritten", "d", "5")
	m.Merge(other)
	assert.Equal(t, []string{"b", "a", "c", "d"}, m.Keys())
	v, _ = m.Get("c")
	assert.Equal(t, "overwritten", v)

	clone := m.Clone()
	clone.Set("e", "6")
	assert.False(t, m.Has("e"))
	assert.Equal(t, 4, m.Len())

	var nilMeta *Metadata
	assert.Equal(t, 0, nilMeta.Len())
	assert.False(t, nilMeta.Has("a"))
	assert.Nil(t, nilMeta.Keys())
}

func TestMetadataYAMLPreservesOrder(t *testing.T) {
	src := []byte("zeta: \"1\"\nalpha: two\nmid: \"3\"\n")
	var m Metadata
	require.NoError(t, yaml.Unmarshal(src, &m))
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, m.Keys())

	out, err := yaml.Marshal(&m)
	require.NoError(t, err)

	var back Metadata
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, m.Keys(), back.Keys())
	v, _ := back.Get("alpha")
	assert.Equal(t, "two", v)

	assert.Error(t, yaml.Unmarshal([]byte("- a\n- b\n"), &back))
}

func TestNewImageValidates(t *testing.T) {
	vol := models.NewVolume(models.UInt8, [3]int{2, 2, 2})

	img, err := New(vol, IdentityFrame(r3.Vec{}), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, img.Metadata.Len())
	assert.Equal(t, [3]int{2, 2, 2}, img.Size())

	_, err = New(nil, IdentityFrame(r3.Vec{}), nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	bad := IdentityFrame(r3.Vec{})
	bad.Spacing.Y = 0
	_, err = New(vol, bad, nil)
	assert.True(t, errors.Is(err, errors.ErrCodeDegenerateSpacing))

	short := &models.Volume{Data: make([]float64, 3), Size: [3]int{2, 2, 2}}
	_, err = New(short, IdentityFrame(r3.Vec{}), nil)
	assert.True(t, errors.Is(err, errors.ErrCodeShapeMismatch))
}

func TestImageToRAS(t *testing.T) {
	vol := models.NewVolume(models.Int16, [3]int{1, 1, 1})
	frame := IdentityFrame(r3.Vec{X: 4, Y: 5, Z: 6})
	frame.Space = SpaceLPS
	img, err := New(vol, frame, NewMetadata(SpaceKey, LPSName, "k", "v"))
	require.NoError(t, err)

	ras, err := img.ToRAS()
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{X: -4, Y: -5, Z: 6}, ras.Frame.Origin)
	space, _ := ras.Metadata.Get(SpaceKey)
	assert.Equal(t, RASName, space)
	assert.Equal(t, []string{SpaceKey, "k"}, ras.Metadata.Keys())

	// the input is left alone
	space, _ = img.Metadata.Get(SpaceKey)
	assert.Equal(t, LPSName, space)
	assert.Equal(t, r3.Vec{X: 4, Y: 5, Z: 6}, img.Frame.Origin)

	same, err := ras.ToRAS()
	require.NoError(t, err)
	assert.Same(t, ras, same)

	img.Metadata.Set(SpaceKey, "scanner")
	_, err = img.ToRAS()
	assert.True(t, errors.Is(err, errors.ErrCodeUnknownSpace))
}

func TestCompose(t *testing.T) {
	mk := func(v float64) *Image {
		vol := models.NewVolume(models.UInt8, [3]int{2, 1, 1})
		vol.Fill(v)
		img, err := New(vol, IdentityFrame(r3.Vec{}), nil)
		require.NoError(t, err)
		return img
	}

	_, err := Compose([]*Image{mk(1)})
	assert.True(t, errors.Is(err, errors.ErrCodeEmptyInput))
	_, err = Compose(nil)
	assert.True(t, errors.Is(err, errors.ErrCodeEmptyInput))

	c, err := Compose([]*Image{mk(1), mk(2), mk(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Channels)
	assert.Equal(t, []float64{1, 2, 3, 1, 2, 3}, c.Data)
	assert.Equal(t, 2.0, c.At(1, 0, 0, 1))

	other, err := New(models.NewVolume(models.UInt8, [3]int{3, 1, 1}), IdentityFrame(r3.Vec{}), nil)
	require.NoError(t, err)
	_, err = Compose([]*Image{mk(1), other})
	assert.True(t, errors.Is(err, errors.ErrCodeShapeMismatch))
}

func TestLogInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.InfoLevel})

	img, err := New(models.NewVolume(models.UInt8, [3]int{4, 3, 2}), IdentityFrame(r3.Vec{}), NewMetadata(SpaceKey, RASName))
	require.NoError(t, err)
	LogInfo(logger, "reference", img)
	LogInfo(logger, "missing", nil)

	out := buf.String()
	assert.Contains(t, out, "reference")
	assert.Contains(t, out, "4x3x2")
	assert.Contains(t, out, RASName)
	assert.Contains(t, out, "missing")
}
