package cogview

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Checkerboard shades painted where the view lies outside the raster.
const (
	checkerLight = 0xC0
	checkerDark  = 0x80
)

// DisplayImage is one rendered view. Depth is 3 for interleaved RGB.
type DisplayImage struct {
	Width   int
	Height  int
	Depth   int
	Pixels  []byte
	Palette color.Palette // set for colour table images of at most 256 classes
}

// At returns the colour of pixel (x, y).
func (im *DisplayImage) At(x, y int) color.RGBA {
	i := (y*im.Width + x) * im.Depth
	if im.Depth == 1 {
		v := im.Pixels[i]
		return color.RGBA{v, v, v, 0xFF}
	}
	return color.RGBA{im.Pixels[i], im.Pixels[i+1], im.Pixels[i+2], 0xFF}
}

// Image converts the buffer to an *image.RGBA.
func (im *DisplayImage) Image() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			out.SetRGBA(x, y, im.At(x, y))
		}
	}
	return out
}

// ColorTable holds the colour columns of an attribute table. Entry i is the
// colour of class value i.
type ColorTable struct {
	Red, Green, Blue, Alpha []int
}

// NewColorTable reads the red, green and blue columns of rat, and alpha when
// present. band is used in errors only.
func NewColorTable(rat AttributeTable, band int) (*ColorTable, error) {
	if rat == nil {
		return nil, &ColumnError{Band: band, Missing: []string{"Red", "Green", "Blue"}}
	}
	cols := map[string]int{
		"Red":   findColumn(rat, UsageRed),
		"Green": findColumn(rat, UsageGreen),
		"Blue":  findColumn(rat, UsageBlue),
	}
	var missing []string
	for _, name := range []string{"Red", "Green", "Blue"} {
		if cols[name] < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &ColumnError{Band: band, Missing: missing}
	}

	read := func(col int) ([]int, error) {
		v, err := rat.IntColumn(col)
		if err != nil {
			return nil, fmt.Errorf("failed to read attribute table column %d of band %d: %w", col, band, err)
		}
		return v, nil
	}
	ct := &ColorTable{}
	var err error
	if ct.Red, err = read(cols["Red"]); err != nil {
		return nil, err
	}
	if ct.Green, err = read(cols["Green"]); err != nil {
		return nil, err
	}
	if ct.Blue, err = read(cols["Blue"]); err != nil {
		return nil, err
	}
	if a := findColumn(rat, UsageAlpha); a >= 0 {
		if ct.Alpha, err = read(a); err != nil {
			return nil, err
		}
	}
	return ct, nil
}

// Len returns the number of classes.
func (ct *ColorTable) Len() int {
	return min(len(ct.Red), len(ct.Green), len(ct.Blue))
}

// Lookup returns the colour of class i.
func (ct *ColorTable) Lookup(i int) (color.RGBA, bool) {
	if i < 0 || i >= ct.Len() {
		return color.RGBA{}, false
	}
	a := uint8(0xFF)
	if i < len(ct.Alpha) {
		a = uint8(clampInt(ct.Alpha[i]))
	}
	return color.RGBA{uint8(clampInt(ct.Red[i])), uint8(clampInt(ct.Green[i])), uint8(clampInt(ct.Blue[i])), a}, true
}

// Palette returns the table as a palette, or nil above 256 classes.
func (ct *ColorTable) Palette() color.Palette {
	n := ct.Len()
	if n == 0 || n > 256 {
		return nil
	}
	p := make(color.Palette, n)
	for i := range p {
		p[i], _ = ct.Lookup(i)
	}
	return p
}

func clampInt(v int) int {
	return max(0, min(255, v))
}

// Compose builds the display image of a width x height view.
//
// For ModeRGB bands holds three stretched buffers and for ModeGreyscale one.
// For ModeColorTable the raw class values are taken from classes and looked
// up in table. Pixels outside win's destination region get a checkerboard.
func Compose(mode DisplayMode, bands [][]byte, classes []float64, table *ColorTable, width, height int, win RasterWindow) (*DisplayImage, error) {
	n := width * height
	im := &DisplayImage{Width: width, Height: height, Depth: 3, Pixels: make([]byte, n*3)}
	px := im.Pixels

	switch mode {
	case ModeRGB:
		if len(bands) != 3 {
			return nil, fmt.Errorf("rgb composition needs 3 bands, got %d", len(bands))
		}
		for c, b := range bands {
			if len(b) < n {
				return nil, fmt.Errorf("band buffer %d holds %d of %d samples", c, len(b), n)
			}
		}
		r, g, b := bands[0], bands[1], bands[2]
		for i := 0; i < n; i++ {
			px[i*3], px[i*3+1], px[i*3+2] = r[i], g[i], b[i]
		}

	case ModeGreyscale:
		if len(bands) != 1 || len(bands[0]) < n {
			return nil, fmt.Errorf("greyscale composition needs 1 band of %d samples", n)
		}
		for i, v := range bands[0][:n] {
			px[i*3], px[i*3+1], px[i*3+2] = v, v, v
		}

	case ModeColorTable:
		if table == nil {
			return nil, fmt.Errorf("colour table composition needs a colour table")
		}
		if len(classes) < n {
			return nil, fmt.Errorf("class buffer holds %d of %d samples", len(classes), n)
		}
		for i, v := range classes[:n] {
			c, ok := table.Lookup(classIndex(v))
			if !ok {
				continue
			}
			px[i*3], px[i*3+1], px[i*3+2] = c.R, c.G, c.B
		}
		im.Palette = table.Palette()

	case ModePseudoColor:
		return nil, fmt.Errorf("%s: %w", mode, ErrUnsupportedMode)

	default:
		return nil, fmt.Errorf("unknown display mode %d", int(mode))
	}

	paintCheckerboard(im, win)
	return im, nil
}

func classIndex(v float64) int {
	if math.IsNaN(v) || v < 0 || v > math.MaxInt32 {
		return -1
	}
	return int(v)
}

// paintCheckerboard fills every pixel outside win with 5x3 pixel cells of
// alternating grey.
func paintCheckerboard(im *DisplayImage, win RasterWindow) {
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			if win.Contains(x, y) {
				continue
			}
			v := byte(checkerDark)
			if (x/5^y/3)&1 != 0 {
				v = checkerLight
			}
			i := (y*im.Width + x) * im.Depth
			for c := 0; c < im.Depth; c++ {
				im.Pixels[i+c] = v
			}
		}
	}
}

// DecodeClasses maps the pixels of a colour table image back to class
// values. Where several classes share a colour the lowest wins. Pixels
// outside win, or with a colour not in table, decode to -1.
func DecodeClasses(im *DisplayImage, table *ColorTable, win RasterWindow) []int {
	index := make(map[[3]byte]int, table.Len())
	for i := table.Len() - 1; i >= 0; i-- {
		c, _ := table.Lookup(i)
		index[[3]byte{c.R, c.G, c.B}] = i
	}
	out := make([]int, im.Width*im.Height)
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			i := y*im.Width + x
			out[i] = -1
			if !win.Contains(x, y) {
				continue
			}
			c := im.At(x, y)
			if v, ok := index[[3]byte{c.R, c.G, c.B}]; ok {
				out[i] = v
			}
		}
	}
	return out
}
