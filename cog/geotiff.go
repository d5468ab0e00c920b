package cog

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tingold/cogview"
)

// GeoTIFF tag IDs
const (
	TagModelPixelScale     = 33550
	TagModelTiepoint       = 33922
	TagModelTransformation = 34264
	TagGeoKeyDirectory     = 34735
)

// GeoKeys
const (
	GTModelTypeGeoKey        = 1024
	GTRasterTypeGeoKey       = 1025
	GTRasterTypePixelIsPoint = 2
	GeographicTypeGeoKey     = 2048
	ProjectedCSTypeGeoKey    = 3072
)

// Georeference is the placement of the full resolution image.
type Georeference struct {
	Geotransform cogview.Geotransform
	Valid        bool
	CRS          string
}

// readGeoreference derives a GDAL style geotransform from the model
// transformation or from the first tiepoint and the pixel scale.
func readGeoreference(ifd *IFD) Georeference {
	var g Georeference
	keys := readGeoKeys(ifd)

	if code := keys[ProjectedCSTypeGeoKey]; code != 0 && code != 32767 {
		g.CRS = fmt.Sprintf("EPSG:%d", code)
	} else if code := keys[GeographicTypeGeoKey]; code != 0 && code != 32767 {
		g.CRS = fmt.Sprintf("EPSG:%d", code)
	}

	if t := ifd.Tag(TagModelTransformation).Floats(); len(t) >= 16 {
		g.Geotransform = cogview.Geotransform{t[3], t[0], t[1], t[7], t[4], t[5]}
	} else {
		tp := ifd.Tag(TagModelTiepoint).Floats()
		scale := ifd.Tag(TagModelPixelScale).Floats()
		if len(tp) < 6 || len(scale) < 2 || scale[0] == 0 || scale[1] == 0 {
			return g
		}
		g.Geotransform = cogview.Geotransform{
			tp[3] - tp[0]*scale[0], scale[0], 0,
			tp[4] + tp[1]*scale[1], 0, -scale[1],
		}
	}

	// Point registered rasters name pixel centres; shift to the corner.
	if keys[GTRasterTypeGeoKey] == GTRasterTypePixelIsPoint {
		gt := &g.Geotransform
		gt[0] -= 0.5*gt[1] + 0.5*gt[2]
		gt[3] -= 0.5*gt[4] + 0.5*gt[5]
	}
	g.Valid = g.Geotransform.Valid()
	return g
}

// readGeoKeys returns the short valued keys of the GeoKey directory. Keys
// stored in the double or ASCII parameter tags are not needed here.
func readGeoKeys(ifd *IFD) map[uint16]uint64 {
	keys := make(map[uint16]uint64)
	dir := ifd.Tag(TagGeoKeyDirectory).Uints()
	if len(dir) < 4 {
		return keys
	}
	n := int(dir[3])
	for i := 0; i < n && 4+i*4+3 < len(dir); i++ {
		e := dir[4+i*4 : 8+i*4]
		if e[1] == 0 && e[2] == 1 {
			keys[uint16(e[0])] = e[3]
		}
	}
	return keys
}

// gdalMetadata is the XML document GDAL stores in TIFF tag 42112.
type gdalMetadata struct {
	XMLName xml.Name       `xml:"GDALMetadata"`
	Items   []gdalMetaItem `xml:"Item"`
}

type gdalMetaItem struct {
	Name   string `xml:"name,attr"`
	Sample string `xml:"sample,attr"`
	Role   string `xml:"role,attr"`
	Domain string `xml:"domain,attr"`
	Value  string `xml:",chardata"`
}

// parseGDALMetadata splits the items of tag 42112 into dataset level items
// and items per zero-based sample. Items with a role (scale, offset, unit
// type) or a non-default domain are not metadata in the key/value sense.
func parseGDALMetadata(text string) (map[string]string, map[int]map[string]string, error) {
	dataset := make(map[string]string)
	bands := make(map[int]map[string]string)
	if strings.TrimSpace(text) == "" {
		return dataset, bands, nil
	}
	var doc gdalMetadata
	if err := xml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse GDAL metadata: %w", err)
	}
	for _, it := range doc.Items {
		if it.Role != "" || it.Domain != "" {
			continue
		}
		if it.Sample == "" {
			dataset[it.Name] = it.Value
			continue
		}
		s, err := strconv.Atoi(it.Sample)
		if err != nil || s < 0 {
			continue
		}
		if bands[s] == nil {
			bands[s] = make(map[string]string)
		}
		bands[s][it.Name] = it.Value
	}
	return dataset, bands, nil
}

// parseNoData reads the GDAL_NODATA tag text.
func parseNoData(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// colorMapTable turns a TIFF ColorMap into an attribute table with one row
// per pixel value. The map holds all reds, then greens, then blues, scaled to
// 16 bits.
func colorMapTable(cmap []uint64) *AttributeTable {
	n := len(cmap) / 3
	if n == 0 {
		return nil
	}
	red, green, blue, alpha := make([]int, n), make([]int, n), make([]int, n), make([]int, n)
	for i := 0; i < n; i++ {
		red[i] = int(math.Round(float64(cmap[i]) / 257))
		green[i] = int(math.Round(float64(cmap[n+i]) / 257))
		blue[i] = int(math.Round(float64(cmap[2*n+i]) / 257))
		alpha[i] = 255
	}
	return &AttributeTable{
		Columns: []Column{
			{Name: "Red", Usage: cogview.UsageRed, Values: red},
			{Name: "Green", Usage: cogview.UsageGreen, Values: green},
			{Name: "Blue", Usage: cogview.UsageBlue, Values: blue},
			{Name: "Alpha", Usage: cogview.UsageAlpha, Values: alpha},
		},
		Rows: n,
	}
}
