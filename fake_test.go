package cogview

import (
	"errors"
	"fmt"
)

// memTable is an attribute table held in memory.
type memTable struct {
	usages []int
	cols   [][]int
}

func (t *memTable) RowCount() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0])
}
func (t *memTable) ColumnCount() int { return len(t.cols) }
func (t *memTable) ColumnUsage(col int) int { return t.usages[col] }
func (t *memTable) IntColumn(col int) ([]int, error) {
	if col < 0 || col >= len(t.cols) {
		return nil, fmt.Errorf("no column %d", col)
	}
	return append([]int(nil), t.cols[col]...), nil
}

// paletteTable returns a table with red, green, blue and alpha columns.
func paletteTable(colors [][3]int) *memTable {
	t := &memTable{usages: []int{UsagePixelCount, UsageRed, UsageGreen, UsageBlue, UsageAlpha}}
	t.cols = make([][]int, 5)
	for _, c := range colors {
		t.cols[0] = append(t.cols[0], 1)
		t.cols[1] = append(t.cols[1], c[0])
		t.cols[2] = append(t.cols[2], c[1])
		t.cols[3] = append(t.cols[3], c[2])
		t.cols[4] = append(t.cols[4], 255)
	}
	return t
}

// memBand is a band whose full resolution pixels are produced by a function.
type memBand struct {
	md    map[string]string
	rat   AttributeTable
	value func(x, y int) float64
	ds    *memDataset
	reads []Rect
}

func (b *memBand) Metadata(key string) (string, bool) {
	v, ok := b.md[key]
	return v, ok
}

func (b *memBand) AttributeTable() AttributeTable { return b.rat }

// Read does nearest neighbour sampling of the level, whose pixels are
// sampled from full resolution.
func (b *memBand) Read(level ResolutionLevel, src Rect, dst []float64, dw, dh, stride int) error {
	g, err := Geometry(b.ds.size, b.ds.overviews, level)
	if err != nil {
		return err
	}
	if src.X < 0 || src.Y < 0 || src.X+src.Width > g.Size.Width || src.Y+src.Height > g.Size.Height {
		return errors.New("read outside raster")
	}
	b.reads = append(b.reads, src)
	for y := 0; y < dh; y++ {
		sy := src.Y + y*src.Height/dh
		for x := 0; x < dw; x++ {
			sx := src.X + x*src.Width/dw
			dst[y*stride+x] = b.value(int(float64(sx)*g.FactorX), int(float64(sy)*g.FactorY))
		}
	}
	return nil
}

type memDataset struct {
	size      Size
	gt        Geotransform
	hasGT     bool
	overviews []Size
	bands     []*memBand
	closed    bool
}

func newMemDataset(w, h, nbands int) *memDataset {
	ds := &memDataset{size: Size{w, h}, gt: Geotransform{0, 1, 0, float64(h), 0, -1}, hasGT: true}
	for i := 0; i < nbands; i++ {
		ds.bands = append(ds.bands, &memBand{
			md:    map[string]string{},
			ds:    ds,
			value: func(x, y int) float64 { return float64(x) },
		})
	}
	return ds
}

func (d *memDataset) BandCount() int { return len(d.bands) }
func (d *memDataset) Size() Size { return d.size }
func (d *memDataset) Geotransform() (Geotransform, bool) { return d.gt, d.hasGT }
func (d *memDataset) Overviews() []Size { return d.overviews }
func (d *memDataset) Close() error { d.closed = true; return nil }
func (d *memDataset) Band(i int) Band {
	if i < 1 || i > len(d.bands) {
		return nil
	}
	return d.bands[i-1]
}

// thematic marks band i as a classified band with the given colours.
func (d *memDataset) thematic(i int, colors [][3]int) {
	b := d.bands[i-1]
	b.md[KeyLayerType] = LayerThematic
	b.rat = paletteTable(colors)
}

func openerOf(sets map[string]*memDataset) Opener {
	return func(name string) (Dataset, error) {
		ds, ok := sets[name]
		if !ok {
			return nil, fmt.Errorf("%s: no such file", name)
		}
		ds.closed = false
		return ds, nil
	}
}
