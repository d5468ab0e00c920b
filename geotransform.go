package cogview

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
)

// Geotransform is an affine pixel to ground transform in GDAL order:
//
//	Xgeo = gt[0] + px*gt[1] + py*gt[2]
//	Ygeo = gt[3] + px*gt[4] + py*gt[5]
type Geotransform [6]float64

// IdentityGeotransform maps pixel coordinates onto themselves with y growing
// downwards.
var IdentityGeotransform = Geotransform{0, 1, 0, 0, 0, 1}

// Valid reports whether the transform can be inverted.
func (gt Geotransform) Valid() bool {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	return det != 0 && !math.IsNaN(det) && !math.IsInf(det, 0)
}

// Apply maps pixel/line coordinates to ground coordinates.
func (gt Geotransform) Apply(px, py float64) (x, y float64) {
	return gt[0] + px*gt[1] + py*gt[2], gt[3] + px*gt[4] + py*gt[5]
}

// Invert returns the ground to pixel transform.
func (gt Geotransform) Invert() (Geotransform, error) {
	if !gt.Valid() {
		return Geotransform{}, ErrNoGeotransform
	}
	m := mat.NewDense(3, 3, []float64{
		gt[1], gt[2], gt[0],
		gt[4], gt[5], gt[3],
		0, 0, 1,
	})
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return Geotransform{}, fmt.Errorf("failed to invert geotransform: %w", err)
		}
	}
	return Geotransform{
		inv.At(0, 2), inv.At(0, 0), inv.At(0, 1),
		inv.At(1, 2), inv.At(1, 0), inv.At(1, 1),
	}, nil
}

// Scaled returns the transform of a level whose pixels are fx by fy full
// resolution pixels. The origin does not move.
func (gt Geotransform) Scaled(fx, fy float64) Geotransform {
	return Geotransform{
		gt[0], gt[1] * fx, gt[2] * fy,
		gt[3], gt[4] * fx, gt[5] * fy,
	}
}

// PixelSize returns the absolute ground size of one pixel along each axis.
func (gt Geotransform) PixelSize() (float64, float64) {
	return math.Hypot(gt[1], gt[4]), math.Hypot(gt[2], gt[5])
}

// Bounds returns the ground bounding box of a width x height raster.
func (gt Geotransform) Bounds(width, height int) orb.Bound {
	w, h := float64(width), float64(height)
	corners := [4][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}}
	var b orb.Bound
	for i, c := range corners {
		x, y := gt.Apply(c[0], c[1])
		if i == 0 {
			b = orb.Point{x, y}.Bound()
			continue
		}
		b = b.Extend(orb.Point{x, y})
	}
	return b
}

// Footprint returns the ground outline of a width x height raster as a
// closed ring from the top-left corner, clockwise in pixel space. Unlike
// Bounds it follows rotated transforms.
func (gt Geotransform) Footprint(width, height int) orb.Polygon {
	w, h := float64(width), float64(height)
	ring := make(orb.Ring, 0, 5)
	for _, c := range [5][2]float64{{0, 0}, {w, 0}, {w, h}, {0, h}, {0, 0}} {
		x, y := gt.Apply(c[0], c[1])
		ring = append(ring, orb.Point{x, y})
	}
	return orb.Polygon{ring}
}
