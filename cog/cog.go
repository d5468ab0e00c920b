// Package cog reads Cloud Optimized GeoTIFFs and plain tiled or stripped
// GeoTIFFs from local files or over HTTP range requests. An open Dataset
// serves windowed band reads from the full resolution image or any overview.
package cog

import (
	"fmt"
	"io"
	"maps"
	"os"
	"sort"

	"github.com/paulmach/orb"
	"github.com/valyala/fasthttp"

	"github.com/tingold/cogview"
)

// Dataset is an open COG. It implements cogview.Dataset.
type Dataset struct {
	name   string
	closer io.Closer
	tr     *TIFFReader
	levels []*image // full resolution first, then overviews finest to coarsest
	geo    Georeference
	meta   map[string]string
	bands  []*Band
}

var _ cogview.Dataset = (*Dataset)(nil)

// Open opens a COG from a file path or URL and reads its directories and
// metadata; pixel data is read on demand. URLs (http:// or https://) are
// read with range requests through client, or DefaultClient when nil.
func Open(pathOrURL string, client *fasthttp.Client) (*Dataset, error) {
	if client == nil {
		client = DefaultClient
	}

	var (
		reader io.ReadSeeker
		closer io.Closer
	)
	if isURL(pathOrURL) {
		rr, err := NewRangeReader(pathOrURL, client)
		if err != nil {
			return nil, err
		}
		reader, closer = rr, rr
	} else {
		file, err := os.Open(pathOrURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		reader, closer = file, file
	}

	ds, err := newDataset(pathOrURL, reader, client)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("failed to open %s: %w", pathOrURL, err)
	}
	ds.closer = closer
	return ds, nil
}

// Read opens a COG held by r. The sidecar is not consulted.
func Read(r io.ReadSeeker) (*Dataset, error) {
	return newDataset("", r, nil)
}

// Opener adapts Open to the engine's opener signature.
func Opener(client *fasthttp.Client) cogview.Opener {
	return func(name string) (cogview.Dataset, error) {
		ds, err := Open(name, client)
		if err != nil {
			return nil, err
		}
		return ds, nil
	}
}

func newDataset(name string, r io.ReadSeeker, client *fasthttp.Client) (*Dataset, error) {
	tr, err := NewTIFFReader(r)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{name: name, tr: tr}

	for i := 0; i < tr.IFDCount(); i++ {
		ifd := tr.GetIFD(i)
		if i > 0 {
			kind := ifd.Tag(TagNewSubfileType).Uint(0)
			if kind&subfileMask != 0 || kind&subfileReduced == 0 {
				continue
			}
		}
		im, err := newImage(ifd, tr)
		if err != nil {
			return nil, fmt.Errorf("IFD %d: %w", i, err)
		}
		if i > 0 && im.samples != ds.levels[0].samples {
			continue
		}
		ds.levels = append(ds.levels, im)
	}
	ovs := ds.levels[1:]
	sort.SliceStable(ovs, func(i, j int) bool { return ovs[i].width > ovs[j].width })

	full := ds.levels[0]
	ds.geo = readGeoreference(full.ifd)

	meta, perBand, err := parseGDALMetadata(full.ifd.Tag(TagGDALMetadata).String())
	if err != nil {
		return nil, err
	}
	ds.meta = meta
	noData, hasNoData := parseNoData(full.ifd.Tag(TagGDALNoData).String())

	var pam *pamDataset
	if name != "" {
		if pam, err = loadPAM(name, client); err != nil {
			return nil, err
		}
	}
	if pam != nil {
		for _, m := range pam.Metadata {
			if m.Domain == "" {
				for _, it := range m.Items {
					ds.meta[it.Key] = it.Value
				}
			}
		}
	}

	for b := 0; b < full.samples; b++ {
		band := &Band{ds: ds, index: b, meta: make(map[string]string), noData: noData, hasNoData: hasNoData}
		maps.Copy(band.meta, perBand[b])
		if pb := pam.band(b + 1); pb != nil {
			pb.mergeInto(band.meta)
			if t := pb.attributeTable(); t != nil {
				band.rat = t
			}
		}
		if full.photometric == photometricPalette && b == 0 {
			if band.rat == nil {
				band.rat = colorMapTable(full.ifd.Tag(TagColorMap).Uints())
			}
			if _, ok := band.meta[cogview.KeyLayerType]; !ok {
				band.meta[cogview.KeyLayerType] = cogview.LayerThematic
			}
		}
		ds.bands = append(ds.bands, band)
	}
	return ds, nil
}

// Name returns the path or URL the dataset was opened from.
func (d *Dataset) Name() string { return d.name }

// BandCount returns the number of samples per pixel.
func (d *Dataset) BandCount() int { return len(d.bands) }

// Size returns the full resolution dimensions.
func (d *Dataset) Size() cogview.Size {
	return cogview.Size{Width: d.levels[0].width, Height: d.levels[0].height}
}

// Geotransform returns the full resolution geotransform.
func (d *Dataset) Geotransform() (cogview.Geotransform, bool) {
	return d.geo.Geotransform, d.geo.Valid
}

// CRS returns the EPSG code of the dataset, such as "EPSG:32633", or "".
func (d *Dataset) CRS() string { return d.geo.CRS }

// Bounds returns the georeferenced extent, or an empty bound when the
// dataset is not georeferenced.
func (d *Dataset) Bounds() orb.Bound {
	if !d.geo.Valid {
		return orb.Bound{}
	}
	s := d.Size()
	return d.geo.Geotransform.Bounds(s.Width, s.Height)
}

// Metadata returns a dataset level metadata item.
func (d *Dataset) Metadata(key string) (string, bool) {
	v, ok := d.meta[key]
	return v, ok
}

// Overviews lists the reduced resolution images, finest first.
func (d *Dataset) Overviews() []cogview.Size {
	out := make([]cogview.Size, 0, len(d.levels)-1)
	for _, im := range d.levels[1:] {
		out = append(out, cogview.Size{Width: im.width, Height: im.height})
	}
	return out
}

// Band returns the 1-based band i.
func (d *Dataset) Band(i int) cogview.Band {
	if b := d.RasterBand(i); b != nil {
		return b
	}
	return nil
}

// RasterBand is Band with the concrete type.
func (d *Dataset) RasterBand(i int) *Band {
	if i < 1 || i > len(d.bands) {
		return nil
	}
	return d.bands[i-1]
}

// Close releases the underlying file or HTTP reader.
func (d *Dataset) Close() error {
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}

func (d *Dataset) level(l cogview.ResolutionLevel) (*image, error) {
	i := 0
	if ov, ok := l.OverviewIndex(); ok {
		i = ov + 1
	}
	if i >= len(d.levels) {
		return nil, fmt.Errorf("%s: no %s", d.name, l)
	}
	return d.levels[i], nil
}

// Band is one band of a Dataset. It implements cogview.Band.
type Band struct {
	ds        *Dataset
	index     int
	meta      map[string]string
	rat       *AttributeTable
	noData    float64
	hasNoData bool
}

var _ cogview.Band = (*Band)(nil)

// Metadata returns the band metadata item key, drawn from the GDAL metadata
// tag overlaid with the PAM sidecar.
func (b *Band) Metadata(key string) (string, bool) {
	v, ok := b.meta[key]
	return v, ok
}

// AttributeTable returns the band's attribute table, or nil.
func (b *Band) AttributeTable() cogview.AttributeTable {
	if b.rat == nil {
		return nil
	}
	return b.rat
}

// NoData returns the nodata value of the band.
func (b *Band) NoData() (float64, bool) {
	return b.noData, b.hasNoData
}

// Read samples src of the given level into dst with nearest neighbour
// resampling to dstWidth x dstHeight, starting each row stride samples after
// the previous one.
func (b *Band) Read(level cogview.ResolutionLevel, src cogview.Rect, dst []float64, dstWidth, dstHeight, stride int) error {
	im, err := b.ds.level(level)
	if err != nil {
		return err
	}
	if src.Empty() || src.X < 0 || src.Y < 0 || src.X+src.Width > im.width || src.Y+src.Height > im.height {
		return fmt.Errorf("window %+v outside %dx%d %s", src, im.width, im.height, level)
	}
	if dstWidth <= 0 || dstHeight <= 0 || stride < dstWidth || len(dst) < (dstHeight-1)*stride+dstWidth {
		return fmt.Errorf("destination %dx%d with stride %d does not fit %d samples", dstWidth, dstHeight, stride, len(dst))
	}

	region, err := im.readRegion(b.ds.tr, src)
	if err != nil {
		return fmt.Errorf("band %d: %w", b.index+1, err)
	}

	cols := make([]int, dstWidth)
	for dx := range cols {
		cols[dx] = nearest(dx, dstWidth, src.Width)
	}
	for dy := 0; dy < dstHeight; dy++ {
		sy := nearest(dy, dstHeight, src.Height)
		row := dst[dy*stride : dy*stride+dstWidth]
		for dx, sx := range cols {
			row[dx] = im.sample(region, (sy*src.Width+sx)*im.samples+b.index)
		}
	}
	return nil
}

// nearest maps destination index i of n onto a source span of size m by
// its pixel centre.
func nearest(i, n, m int) int {
	s := (2*i + 1) * m / (2 * n)
	if s >= m {
		s = m - 1
	}
	return s
}
