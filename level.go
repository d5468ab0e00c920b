package cogview

import (
	"fmt"
	"math"
)

// DefaultDensity is the number of source pixels wanted per display pixel.
const DefaultDensity = 1.0

// ResolutionLevel identifies either the full resolution raster or one
// overview. The zero value is full resolution.
type ResolutionLevel struct {
	ov int // overview index + 1, 0 for full resolution
}

// FullResolution returns the full resolution level.
func FullResolution() ResolutionLevel { return ResolutionLevel{} }

// Overview returns the level of overview i, counted from 0.
func Overview(i int) ResolutionLevel {
	if i < 0 {
		panic(fmt.Sprintf("cogview: negative overview index %d", i))
	}
	return ResolutionLevel{ov: i + 1}
}

// IsFull reports whether l is the full resolution level.
func (l ResolutionLevel) IsFull() bool { return l.ov == 0 }

// OverviewIndex returns the overview index and true, or false for full
// resolution.
func (l ResolutionLevel) OverviewIndex() (int, bool) {
	if l.ov == 0 {
		return 0, false
	}
	return l.ov - 1, true
}

func (l ResolutionLevel) String() string {
	if i, ok := l.OverviewIndex(); ok {
		return fmt.Sprintf("overview %d", i)
	}
	return "full resolution"
}

// LevelGeometry is a level together with its pixel size and its downsample
// factors relative to full resolution.
type LevelGeometry struct {
	Level   ResolutionLevel
	Size    Size
	FactorX float64
	FactorY float64
}

// Geometry returns the size and downsample factors of level l.
func Geometry(full Size, overviews []Size, l ResolutionLevel) (LevelGeometry, error) {
	g := LevelGeometry{Level: l, Size: full, FactorX: 1, FactorY: 1}
	i, ok := l.OverviewIndex()
	if !ok {
		return g, nil
	}
	if i >= len(overviews) {
		return g, fmt.Errorf("overview %d of %d does not exist", i, len(overviews))
	}
	ov := overviews[i]
	if ov.Width <= 0 || ov.Height <= 0 {
		return g, fmt.Errorf("overview %d has empty size %dx%d", i, ov.Width, ov.Height)
	}
	g.Size = ov
	g.FactorX = float64(full.Width) / float64(ov.Width)
	g.FactorY = float64(full.Height) / float64(ov.Height)
	return g, nil
}

// SelectLevel picks the coarsest level that still gives at least density
// source pixels per display pixel at groundPerPixel ground units per display
// pixel on both axes. Full resolution is used when no level reaches density.
func SelectLevel(full Size, overviews []Size, gt Geotransform, groundPerPixel, density float64) (ResolutionLevel, error) {
	if !gt.Valid() {
		return FullResolution(), ErrNoGeotransform
	}
	if density <= 0 {
		density = DefaultDensity
	}
	px, py := gt.PixelSize()

	best := FullResolution()
	bestExcess := math.Inf(1)
	// The coarser axis decides, so neither falls below density.
	ratio := func(fx, fy float64) float64 {
		return math.Min(groundPerPixel/(px*fx), groundPerPixel/(py*fy))
	}
	if r := ratio(1, 1); r >= density {
		bestExcess = r - density
	}
	for i, ov := range overviews {
		if ov.Width <= 0 || ov.Height <= 0 {
			continue
		}
		r := ratio(float64(full.Width)/float64(ov.Width), float64(full.Height)/float64(ov.Height))
		if r < density {
			continue
		}
		if excess := r - density; excess < bestExcess {
			best = Overview(i)
			bestExcess = excess
		}
	}
	return best, nil
}
