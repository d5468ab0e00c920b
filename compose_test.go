package cogview

import (
	"errors"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wholeWindow(w, h int) RasterWindow {
	return RasterWindow{SrcWidth: w, SrcHeight: h, DestWidth: w, DestHeight: h}
}

func TestComposeRGB(t *testing.T) {
	r := []byte{1, 2, 3, 4}
	g := []byte{10, 20, 30, 40}
	b := []byte{100, 200, 250, 255}
	im, err := Compose(ModeRGB, [][]byte{r, g, b}, nil, nil, 2, 2, wholeWindow(2, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, im.Depth)
	assert.Equal(t, []byte{1, 10, 100, 2, 20, 200, 3, 30, 250, 4, 40, 255}, im.Pixels)
	assert.Equal(t, color.RGBA{4, 40, 255, 255}, im.At(1, 1))
	assert.Nil(t, im.Palette)

	_, err = Compose(ModeRGB, [][]byte{r, g}, nil, nil, 2, 2, wholeWindow(2, 2))
	assert.Error(t, err)
}

func TestComposeGreyscale(t *testing.T) {
	im, err := Compose(ModeGreyscale, [][]byte{{7, 9}}, nil, nil, 2, 1, wholeWindow(2, 1))
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 7, 7, 9, 9, 9}, im.Pixels)
}

func TestComposeCheckerboard(t *testing.T) {
	w, h := 12, 6
	band := make([]byte, w*h)
	for i := range band {
		band[i] = 1
	}
	win := RasterWindow{SrcWidth: 1, SrcHeight: 1, DestX: 10, DestY: 3, DestWidth: 2, DestHeight: 3}
	im, err := Compose(ModeGreyscale, [][]byte{band}, nil, nil, w, h, win)
	require.NoError(t, err)

	assert.Equal(t, byte(1), im.At(10, 3).R)
	assert.Equal(t, byte(1), im.At(11, 5).R)
	assert.Equal(t, byte(checkerDark), im.At(0, 0).R)
	assert.Equal(t, byte(checkerDark), im.At(4, 2).R)
	assert.Equal(t, byte(checkerLight), im.At(5, 0).R)
	assert.Equal(t, byte(checkerLight), im.At(0, 3).R)
	assert.Equal(t, byte(checkerDark), im.At(5, 3).R)
}

func TestComposeFullyClipped(t *testing.T) {
	im, err := Compose(ModeGreyscale, [][]byte{make([]byte, 20)}, nil, nil, 5, 4, RasterWindow{})
	require.NoError(t, err)
	for y := 0; y < 4; y++ {
		for x := 0; x < 5; x++ {
			assert.NotZero(t, im.At(x, y).R)
		}
	}
}

func TestColorTableRoundTrip(t *testing.T) {
	colors := [][3]int{{0, 0, 0}, {255, 0, 0}, {0, 255, 0}, {0, 0, 255}, {255, 255, 0}, {12, 34, 56}}
	ct, err := NewColorTable(paletteTable(colors), 1)
	require.NoError(t, err)
	assert.Equal(t, len(colors), ct.Len())

	w, h := 4, 3
	classes := make([]float64, w*h)
	for i := range classes {
		classes[i] = float64(i % len(colors))
	}
	win := wholeWindow(w, h)
	im, err := Compose(ModeColorTable, nil, classes, ct, w, h, win)
	require.NoError(t, err)
	require.Len(t, im.Palette, len(colors))
	assert.Equal(t, color.RGBA{12, 34, 56, 255}, im.Palette[5])

	got := DecodeClasses(im, ct, win)
	for i, v := range classes {
		assert.Equal(t, int(v), got[i], "pixel %d", i)
	}
}

func TestColorTableIndependentColumns(t *testing.T) {
	// Green and blue differ in every row, so mixing up the columns shows.
	ct, err := NewColorTable(paletteTable([][3]int{{1, 2, 3}, {4, 5, 6}}), 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, ct.Red)
	assert.Equal(t, []int{2, 5}, ct.Green)
	assert.Equal(t, []int{3, 6}, ct.Blue)
	c, ok := ct.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, color.RGBA{4, 5, 6, 255}, c)
	_, ok = ct.Lookup(2)
	assert.False(t, ok)
}

func TestColorTableMissingColumns(t *testing.T) {
	tbl := paletteTable([][3]int{{1, 2, 3}})
	tbl.usages[3] = UsageGeneric // blue
	_, err := NewColorTable(tbl, 4)
	var ce *ColumnError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 4, ce.Band)
	assert.Equal(t, []string{"Blue"}, ce.Missing)

	_, err = NewColorTable(nil, 1)
	assert.True(t, errors.As(err, &ce))
}

func TestComposePseudoColor(t *testing.T) {
	_, err := Compose(ModePseudoColor, nil, nil, nil, 1, 1, wholeWindow(1, 1))
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestDisplayImageImage(t *testing.T) {
	im := &DisplayImage{Width: 2, Height: 1, Depth: 3, Pixels: []byte{1, 2, 3, 4, 5, 6}}
	rgba := im.Image()
	assert.Equal(t, color.RGBA{4, 5, 6, 255}, rgba.RGBAAt(1, 0))
}
