package cog

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/tingold/cogview"
)

// SidecarSuffix is appended to a dataset name to find its PAM file.
const SidecarSuffix = ".aux.xml"

// pamDataset is GDAL's persistent auxiliary metadata document. Elements the
// reader does not model are kept so that rewriting the file preserves them.
type pamDataset struct {
	XMLName  xml.Name      `xml:"PAMDataset"`
	Metadata []pamMetadata `xml:"Metadata"`
	Bands    []pamBand     `xml:"PAMRasterBand"`
	Other    []xmlElement  `xml:",any"`
}

type pamMetadata struct {
	Domain string   `xml:"domain,attr,omitempty"`
	Items  []pamMDI `xml:"MDI"`
}

type pamMDI struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

type pamBand struct {
	Band       int            `xml:"band,attr"`
	Metadata   []pamMetadata  `xml:"Metadata"`
	Histograms *pamHistograms `xml:"Histograms,omitempty"`
	RAT        *pamRAT        `xml:"GDALRasterAttributeTable,omitempty"`
	Other      []xmlElement   `xml:",any"`
}

type pamHistograms struct {
	Items []pamHistItem `xml:"HistItem"`
}

type pamHistItem struct {
	HistMin           float64 `xml:"HistMin"`
	HistMax           float64 `xml:"HistMax"`
	BucketCount       int     `xml:"BucketCount"`
	IncludeOutOfRange int     `xml:"IncludeOutOfRange"`
	Approximate       int     `xml:"Approximate"`
	HistCounts        string  `xml:"HistCounts"`
}

type pamRAT struct {
	TableType string     `xml:"tableType,attr,omitempty"`
	Fields    []pamField `xml:"FieldDefn"`
	Rows      []pamRow   `xml:"Row"`
}

type pamField struct {
	Index int    `xml:"index,attr"`
	Name  string `xml:"Name"`
	Type  int    `xml:"Type"`
	Usage int    `xml:"Usage"`
}

type pamRow struct {
	Index  int      `xml:"index,attr"`
	Fields []string `xml:"F"`
}

type xmlElement struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

func parsePAM(data []byte) (*pamDataset, error) {
	var p pamDataset
	if err := xml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse PAM sidecar: %w", err)
	}
	return &p, nil
}

// loadPAM reads the sidecar of a local file or URL. A missing sidecar is not
// an error.
func loadPAM(name string, client *fasthttp.Client) (*pamDataset, error) {
	var data []byte
	if isURL(name) {
		status, body, err := client.Get(nil, name+SidecarSuffix)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch PAM sidecar: %w", err)
		}
		if status != fasthttp.StatusOK {
			return nil, nil
		}
		data = body
	} else {
		b, err := os.ReadFile(name + SidecarSuffix)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read PAM sidecar: %w", err)
		}
		data = b
	}
	return parsePAM(data)
}

// band returns the entry for 1-based band n, or nil.
func (p *pamDataset) band(n int) *pamBand {
	if p == nil {
		return nil
	}
	for i := range p.Bands {
		if p.Bands[i].Band == n {
			return &p.Bands[i]
		}
	}
	return nil
}

// mergeInto copies the default domain items of b into md. Histogram items
// fill the STATISTICS_HISTO* keys when the metadata does not carry them.
func (b *pamBand) mergeInto(md map[string]string) {
	for _, m := range b.Metadata {
		if m.Domain != "" {
			continue
		}
		for _, it := range m.Items {
			md[it.Key] = it.Value
		}
	}
	if _, ok := md[cogview.KeyHistoBinValues]; ok || b.Histograms == nil || len(b.Histograms.Items) == 0 {
		return
	}
	h := b.Histograms.Items[0]
	md[cogview.KeyHistoMin] = strconv.FormatFloat(h.HistMin, 'f', -1, 64)
	md[cogview.KeyHistoMax] = strconv.FormatFloat(h.HistMax, 'f', -1, 64)
	counts := strings.TrimSpace(h.HistCounts)
	if counts != "" && !strings.HasSuffix(counts, "|") {
		counts += "|"
	}
	md[cogview.KeyHistoBinValues] = counts
}

// attributeTable converts the band's GDALRasterAttributeTable. Real and
// string fields are rounded or read as zero.
func (b *pamBand) attributeTable() *AttributeTable {
	if b.RAT == nil || len(b.RAT.Fields) == 0 {
		return nil
	}
	fields := append([]pamField(nil), b.RAT.Fields...)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Index < fields[j].Index })

	rows := 0
	for _, r := range b.RAT.Rows {
		if r.Index+1 > rows {
			rows = r.Index + 1
		}
	}
	t := &AttributeTable{Rows: rows, Columns: make([]Column, len(fields))}
	for i, f := range fields {
		t.Columns[i] = Column{Name: f.Name, Usage: f.Usage, Values: make([]int, rows)}
	}
	for _, r := range b.RAT.Rows {
		if r.Index < 0 {
			continue
		}
		for i := range fields {
			if i >= len(r.Fields) {
				break
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(r.Fields[i]), 64)
			if err == nil && !math.IsNaN(v) {
				t.Columns[i].Values[r.Index] = int(math.Round(v))
			}
		}
	}
	return t
}

// statisticKeys are written as MDI items; the histogram goes in a HistItem.
var statisticKeys = []string{cogview.KeyMinimum, cogview.KeyMaximum, cogview.KeyMean, cogview.KeyStdDev}

// SaveStatistics records per band statistics in the PAM sidecar of the local
// file name, keeping whatever else the sidecar already holds. Keys of stats
// are 1-based band numbers.
func SaveStatistics(name string, stats map[int]cogview.Statistics) error {
	if isURL(name) {
		return fmt.Errorf("cannot write statistics for remote dataset %s", name)
	}
	p, err := loadPAM(name, nil)
	if err != nil {
		return err
	}
	if p == nil {
		p = &pamDataset{}
	}

	bands := make([]int, 0, len(stats))
	for n := range stats {
		bands = append(bands, n)
	}
	sort.Ints(bands)
	for _, n := range bands {
		s := stats[n]
		b := p.band(n)
		if b == nil {
			p.Bands = append(p.Bands, pamBand{Band: n})
			b = &p.Bands[len(p.Bands)-1]
		}
		b.setStatistics(s)
	}
	sort.SliceStable(p.Bands, func(i, j int) bool { return p.Bands[i].Band < p.Bands[j].Band })

	out, err := xml.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode PAM sidecar: %w", err)
	}
	if err := os.WriteFile(name+SidecarSuffix, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write PAM sidecar: %w", err)
	}
	return nil
}

func (b *pamBand) setStatistics(s cogview.Statistics) {
	md := s.Metadata()
	var dflt *pamMetadata
	for i := range b.Metadata {
		if b.Metadata[i].Domain == "" {
			dflt = &b.Metadata[i]
			break
		}
	}
	if dflt == nil {
		b.Metadata = append(b.Metadata, pamMetadata{})
		dflt = &b.Metadata[len(b.Metadata)-1]
	}

	for _, key := range statisticKeys {
		v, ok := md[key]
		if !ok {
			continue
		}
		found := false
		for i := range dflt.Items {
			if dflt.Items[i].Key == key {
				dflt.Items[i].Value = v
				found = true
			}
		}
		if !found {
			dflt.Items = append(dflt.Items, pamMDI{Key: key, Value: v})
		}
	}

	if s.Histogram != nil {
		b.Histograms = &pamHistograms{Items: []pamHistItem{{
			HistMin:     s.Histogram.Min,
			HistMax:     s.Histogram.Max,
			BucketCount: len(s.Histogram.Counts),
			HistCounts:  strings.TrimSuffix(cogview.FormatBinValues(s.Histogram.Counts), "|"),
		}}}
	}
}
