package cogview

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Extent is the ground position and scale of the view.
type Extent struct {
	CenterX        float64
	CenterY        float64
	GroundPerPixel float64
}

// Bound returns the ground area covered by a width x height display.
func (e Extent) Bound(width, height int) orb.Bound {
	hw := float64(width) / 2 * e.GroundPerPixel
	hh := float64(height) / 2 * e.GroundPerPixel
	return orb.Bound{
		Min: orb.Point{e.CenterX - hw, e.CenterY - hh},
		Max: orb.Point{e.CenterX + hw, e.CenterY + hh},
	}
}

// Margins are how far, in level pixels, the requested window reaches past
// each edge of the raster.
type Margins struct {
	Left   float64
	Right  float64
	Top    float64
	Bottom float64
}

// RasterWindow is the source rectangle to read for one view and where the
// samples land in the destination buffer.
type RasterWindow struct {
	SrcX      int
	SrcY      int
	SrcWidth  int
	SrcHeight int

	// DestOffset is DestY*width + DestX.
	DestOffset int
	DestX      int
	DestY      int
	DestWidth  int
	DestHeight int

	// ReadWidth and ReadHeight are the display pixels spanned by the whole
	// source pixels of the rectangle. Edge pixels may reach past the display;
	// CropX and CropY locate the displayed part within that span.
	ReadWidth  int
	ReadHeight int
	CropX      int
	CropY      int

	// RequestedWidth and RequestedHeight are the unclamped window size in
	// level pixels.
	RequestedWidth  float64
	RequestedHeight float64
	Margins         Margins
}

// Source returns the source rectangle.
func (w RasterWindow) Source() Rect {
	return Rect{X: w.SrcX, Y: w.SrcY, Width: w.SrcWidth, Height: w.SrcHeight}
}

// Empty reports whether nothing of the raster is visible.
func (w RasterWindow) Empty() bool {
	return w.SrcWidth <= 0 || w.SrcHeight <= 0 || w.DestWidth <= 0 || w.DestHeight <= 0
}

// Contains reports whether destination pixel (x, y) holds raster samples.
func (w RasterWindow) Contains(x, y int) bool {
	return x >= w.DestX && x < w.DestX+w.DestWidth && y >= w.DestY && y < w.DestY+w.DestHeight
}

// snap absorbs floating point noise before pixel edges are rounded.
const snap = 1e-6

// maxMagnification is the most display pixels one level pixel may cover.
const maxMagnification = 1 << 20

// ComputeWindow maps ext, shown on a width x height display, onto the pixels
// of level. The source rectangle is always inside the level's raster.
func ComputeWindow(gt Geotransform, level LevelGeometry, ext Extent, width, height int) (RasterWindow, error) {
	var win RasterWindow
	if width <= 0 || height <= 0 {
		return win, fmt.Errorf("invalid display size %dx%d", width, height)
	}
	if !(ext.GroundPerPixel > 0) {
		return win, fmt.Errorf("invalid ground resolution %v", ext.GroundPerPixel)
	}

	inv, err := gt.Scaled(level.FactorX, level.FactorY).Invert()
	if err != nil {
		return win, err
	}

	b := ext.Bound(width, height)
	px0, py0 := math.Inf(1), math.Inf(1)
	px1, py1 := math.Inf(-1), math.Inf(-1)
	for _, c := range []orb.Point{b.Min, b.Max, b.LeftTop(), b.RightBottom()} {
		px, py := inv.Apply(c[0], c[1])
		px0, px1 = math.Min(px0, px), math.Max(px1, px)
		py0, py1 = math.Min(py0, py), math.Max(py1, py)
	}

	lw, lh := float64(level.Size.Width), float64(level.Size.Height)
	win.RequestedWidth = px1 - px0
	win.RequestedHeight = py1 - py0
	win.Margins.Left, win.Margins.Right = margins(px0, px1, lw)
	win.Margins.Top, win.Margins.Bottom = margins(py0, py1, lh)

	win.SrcX, win.SrcWidth = clampSpan(px0, px1, level.Size.Width)
	win.SrcY, win.SrcHeight = clampSpan(py0, py1, level.Size.Height)
	if win.SrcWidth == 0 || win.SrcHeight == 0 {
		win.SrcWidth, win.SrcHeight = 0, 0
		return win, nil
	}

	scaleX := float64(width) / win.RequestedWidth
	scaleY := float64(height) / win.RequestedHeight
	if scaleX > maxMagnification || scaleY > maxMagnification {
		return win, fmt.Errorf("ground resolution %v is too fine for this raster", ext.GroundPerPixel)
	}
	win.DestX, win.DestWidth, win.CropX, win.ReadWidth = destSpan(win.SrcX, win.SrcWidth, px0, scaleX, width)
	win.DestY, win.DestHeight, win.CropY, win.ReadHeight = destSpan(win.SrcY, win.SrcHeight, py0, scaleY, height)
	if win.DestWidth == 0 || win.DestHeight == 0 {
		win.DestX, win.DestY, win.DestWidth, win.DestHeight = 0, 0, 0, 0
		return win, nil
	}
	win.DestOffset = win.DestY*width + win.DestX
	return win, nil
}

// margins returns how far [p0, p1] reaches below 0 and beyond limit. Their
// sum never exceeds p1-p0.
func margins(p0, p1, limit float64) (lo, hi float64) {
	req := p1 - p0
	lo = clampFloat(-p0, 0, req)
	hi = clampFloat(p1-limit, 0, req-lo)
	return lo, hi
}

// clampSpan returns the whole pixels of [p0, p1] inside [0, limit).
func clampSpan(p0, p1 float64, limit int) (start, size int) {
	l := float64(limit)
	s := math.Floor(clampFloat(p0, 0, l) + snap)
	e := math.Ceil(clampFloat(p1, 0, l) - snap)
	if e <= s {
		return int(math.Min(s, l)), 0
	}
	return int(s), int(e - s)
}

// destSpan places the whole pixels [start, start+n) of a level axis on a
// display axis of size pixels, where p0 is the level coordinate of the
// display's first edge. It returns the visible destination span, where it
// starts within the read span, and the read span's length.
func destSpan(start, n int, p0, scale float64, size int) (dest, destN, crop, readN int) {
	r0 := int(math.Round((float64(start) - p0) * scale))
	r1 := int(math.Round((float64(start+n) - p0) * scale))
	if r1 <= r0 {
		return 0, 0, 0, 0
	}
	dest = min(max(r0, 0), size)
	end := min(r1, size)
	if end <= dest {
		return 0, 0, 0, 0
	}
	return dest, end - dest, dest - r0, r1 - r0
}

// ReadWindow reads the samples of win from b into dst, a display sized
// buffer with the given stride. Where whole source pixels reach past the
// display, or one source pixel covers many display pixels, the rectangle is
// read at no more than its own size and sampled at display pixel centres.
func ReadWindow(b Band, level ResolutionLevel, win RasterWindow, dst []float64, stride int) error {
	if win.Empty() {
		return nil
	}
	if win.CropX == 0 && win.CropY == 0 && win.ReadWidth == win.DestWidth && win.ReadHeight == win.DestHeight {
		return b.Read(level, win.Source(), dst[win.DestOffset:], win.DestWidth, win.DestHeight, stride)
	}
	rw, rh := min(win.ReadWidth, win.SrcWidth), min(win.ReadHeight, win.SrcHeight)
	scratch := make([]float64, rw*rh)
	if err := b.Read(level, win.Source(), scratch, rw, rh, rw); err != nil {
		return err
	}
	cols := make([]int, win.DestWidth)
	for x := range cols {
		cols[x] = sampleIndex(win.CropX+x, win.ReadWidth, rw)
	}
	for y := 0; y < win.DestHeight; y++ {
		src := scratch[sampleIndex(win.CropY+y, win.ReadHeight, rh)*rw:]
		row := dst[win.DestOffset+y*stride:]
		for x, sx := range cols {
			row[x] = src[sx]
		}
	}
	return nil
}

// sampleIndex returns the index, among n samples spread over span display
// pixels, of the sample under the centre of display pixel i.
func sampleIndex(i, span, n int) int {
	return min(int((float64(i)+0.5)*float64(n)/float64(span)), n-1)
}

func clampFloat(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(hi, v))
}
