package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tingold/cogview"
)

// rowBand holds y*width+x at (x, y) and records the rectangles read.
type rowBand struct {
	width int
	reads []cogview.Rect
}

func (b *rowBand) Metadata(string) (string, bool)         { return "", false }
func (b *rowBand) AttributeTable() cogview.AttributeTable { return nil }
func (b *rowBand) Read(_ cogview.ResolutionLevel, src cogview.Rect, dst []float64, w, h, stride int) error {
	b.reads = append(b.reads, src)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst[y*stride+x] = float64((src.Y+y)*b.width + src.X + x)
		}
	}
	return nil
}

func TestReadBlocks(t *testing.T) {
	band := &rowBand{width: 5}
	size := cogview.Size{Width: 5, Height: 7}
	var seen []float64
	var lens []int
	require.NoError(t, readBlocks(band, cogview.FullResolution(), size, 12, func(block []float64) {
		seen = append(seen, block...)
		lens = append(lens, len(block))
	}))

	// Two rows fit in 12 samples; the last block holds the odd row.
	assert.Equal(t, []int{10, 10, 10, 5}, lens)
	assert.Len(t, seen, 35)
	for i, v := range seen {
		assert.Equal(t, float64(i), v)
	}
	assert.Equal(t, cogview.Rect{Y: 6, Width: 5, Height: 1}, band.reads[3])
}

func TestReadBlocksWideRows(t *testing.T) {
	band := &rowBand{width: 50}
	n := 0
	require.NoError(t, readBlocks(band, cogview.FullResolution(), cogview.Size{Width: 50, Height: 3}, 10, func(block []float64) {
		assert.Len(t, block, 50, "a row wider than the limit is read whole")
		n++
	}))
	assert.Equal(t, 3, n)
}
