package cogview

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeotransformInvert(t *testing.T) {
	gt := Geotransform{440720, 60, 0.5, 3751320, 0.25, -60}
	inv, err := gt.Invert()
	require.NoError(t, err)
	for _, p := range [][2]float64{{0, 0}, {10, 20}, {511.5, 3.25}} {
		x, y := gt.Apply(p[0], p[1])
		px, py := inv.Apply(x, y)
		assert.InDelta(t, p[0], px, 1e-6)
		assert.InDelta(t, p[1], py, 1e-6)
	}

	_, err = Geotransform{1, 0, 0, 1, 0, 0}.Invert()
	assert.ErrorIs(t, err, ErrNoGeotransform)
	assert.False(t, Geotransform{}.Valid())
	assert.True(t, IdentityGeotransform.Valid())
}

func TestGeotransformScaledAndBounds(t *testing.T) {
	gt := Geotransform{100, 2, 0, 500, 0, -2}
	s := gt.Scaled(4, 4)
	x, y := s.Apply(1, 1)
	assert.Equal(t, 108.0, x)
	assert.Equal(t, 492.0, y)

	b := gt.Bounds(10, 5)
	assert.Equal(t, 100.0, b.Min[0])
	assert.Equal(t, 490.0, b.Min[1])
	assert.Equal(t, 120.0, b.Max[0])
	assert.Equal(t, 500.0, b.Max[1])

	px, py := gt.PixelSize()
	assert.Equal(t, 2.0, px)
	assert.Equal(t, 2.0, py)
}

func TestGeotransformFootprint(t *testing.T) {
	gt := Geotransform{100, 10, 0, 200, 0, -10}
	poly := gt.Footprint(4, 3)
	require.Len(t, poly, 1)
	assert.Equal(t, orb.Ring{{100, 200}, {140, 200}, {140, 170}, {100, 170}, {100, 200}}, poly[0])
	assert.True(t, poly[0].Closed())
	assert.Equal(t, gt.Bounds(4, 3), poly.Bound())

	// A rotated raster's outline is not its bounding box.
	rot := Geotransform{0, 1, 1, 0, 1, -1}
	assert.Equal(t, orb.Point{2, 0}, rot.Footprint(1, 1)[0][2])
}
