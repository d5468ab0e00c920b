package cogview

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolutionLevel(t *testing.T) {
	full := FullResolution()
	assert.True(t, full.IsFull())
	_, ok := full.OverviewIndex()
	assert.False(t, ok)
	assert.Equal(t, ResolutionLevel{}, full)

	ov := Overview(0)
	assert.False(t, ov.IsFull())
	i, ok := ov.OverviewIndex()
	assert.True(t, ok)
	assert.Equal(t, 0, i)
	assert.Equal(t, "overview 0", ov.String())
	assert.NotEqual(t, full, ov)
}

// pyramid is a 1024x1024 raster of 1 unit pixels with 2x, 4x, 8x and 16x
// overviews.
var pyramid = []Size{{512, 512}, {256, 256}, {128, 128}, {64, 64}}

func TestSelectLevelMinimalExcess(t *testing.T) {
	full := Size{1024, 1024}
	gt := Geotransform{0, 1, 0, 1024, 0, -1}
	for _, tc := range []struct {
		gpp  float64
		want ResolutionLevel
	}{
		{0.5, FullResolution()},
		{1, FullResolution()},
		{1.9, FullResolution()},
		{2, Overview(0)},
		{3, Overview(0)},
		{4, Overview(1)},
		{15.9, Overview(2)},
		{100, Overview(3)},
	} {
		got, err := SelectLevel(full, pyramid, gt, tc.gpp, DefaultDensity)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "gpp %v", tc.gpp)
	}
}

func TestSelectLevelNeverBelowDensity(t *testing.T) {
	full := Size{1024, 1024}
	gt := Geotransform{0, 1, 0, 1024, 0, -1}
	for _, density := range []float64{0.5, 1, 2, 3} {
		for gpp := 0.25; gpp < 64; gpp *= 1.3 {
			lvl, err := SelectLevel(full, pyramid, gt, gpp, density)
			require.NoError(t, err)
			g, err := Geometry(full, pyramid, lvl)
			require.NoError(t, err)
			ratio := gpp / g.FactorX
			if gpp >= density {
				assert.GreaterOrEqual(t, ratio, density, "gpp %v density %v", gpp, density)
			}
			// No coarser level also reaches density.
			if i, ok := lvl.OverviewIndex(); ok && i+1 < len(pyramid) {
				next := gpp / (float64(full.Width) / float64(pyramid[i+1].Width))
				assert.Less(t, next, density)
			}
		}
	}
}

func TestSelectLevelBothAxes(t *testing.T) {
	// The overview keeps half the columns but a quarter of the rows, so at 2
	// ground units per display pixel it would give 0.5 rows per display pixel.
	full := Size{1000, 1000}
	gt := Geotransform{0, 1, 0, 1000, 0, -1}
	lvl, err := SelectLevel(full, []Size{{500, 250}}, gt, 2, DefaultDensity)
	require.NoError(t, err)
	assert.True(t, lvl.IsFull())

	lvl, err = SelectLevel(full, []Size{{500, 250}}, gt, 4, DefaultDensity)
	require.NoError(t, err)
	assert.Equal(t, Overview(0), lvl)

	// Rectangular pixels: rows are 3 units tall, so at 2 units per display
	// pixel even the 2x overview would undersample them.
	tall := Geotransform{0, 1, 0, 3000, 0, -3}
	lvl, err = SelectLevel(full, []Size{{500, 500}}, tall, 2, DefaultDensity)
	require.NoError(t, err)
	assert.True(t, lvl.IsFull())
}

func TestSelectLevelNoOverviews(t *testing.T) {
	lvl, err := SelectLevel(Size{100, 100}, nil, Geotransform{0, 1, 0, 0, 0, -1}, 50, 1)
	require.NoError(t, err)
	assert.True(t, lvl.IsFull())
}

func TestSelectLevelNoGeotransform(t *testing.T) {
	_, err := SelectLevel(Size{100, 100}, pyramid, Geotransform{}, 1, 1)
	assert.True(t, errors.Is(err, ErrNoGeotransform))
}

func TestGeometry(t *testing.T) {
	g, err := Geometry(Size{1000, 500}, []Size{{250, 125}}, Overview(0))
	require.NoError(t, err)
	assert.Equal(t, Size{250, 125}, g.Size)
	assert.Equal(t, 4.0, g.FactorX)
	assert.Equal(t, 4.0, g.FactorY)

	_, err = Geometry(Size{1000, 500}, nil, Overview(0))
	assert.Error(t, err)
}
