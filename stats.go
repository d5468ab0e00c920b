package cogview

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Histogram is a set of equal width bins covering [Min, Max].
type Histogram struct {
	Min    float64
	Max    float64
	Counts []float64
}

// BinWidth returns the width of one bin.
func (h *Histogram) BinWidth() float64 {
	if len(h.Counts) == 0 {
		return 0
	}
	return (h.Max - h.Min) / float64(len(h.Counts))
}

// Statistics are the per band summary values the stretches need.
type Statistics struct {
	Min, Max      float64
	Mean, StdDev  float64
	HasMinMax     bool
	HasMeanStdDev bool
	Histogram     *Histogram
}

// MetadataSource looks up band metadata.
type MetadataSource interface {
	Metadata(key string) (string, bool)
}

// StatisticsFromMetadata reads the STATISTICS_* items of a band. Missing or
// unparsable items leave the matching fields unset.
func StatisticsFromMetadata(md MetadataSource) Statistics {
	var s Statistics
	num := func(key string) (float64, bool) {
		v, ok := md.Metadata(key)
		if !ok {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}

	lo, okLo := num(KeyMinimum)
	hi, okHi := num(KeyMaximum)
	if okLo && okHi {
		s.Min, s.Max, s.HasMinMax = lo, hi, true
	}
	mean, okMean := num(KeyMean)
	sd, okSD := num(KeyStdDev)
	if okMean && okSD {
		s.Mean, s.StdDev, s.HasMeanStdDev = mean, sd, true
	}

	hmin, okHMin := num(KeyHistoMin)
	hmax, okHMax := num(KeyHistoMax)
	bins, okBins := md.Metadata(KeyHistoBinValues)
	if okBins && !okHMin && !okHMax && s.HasMinMax {
		hmin, hmax, okHMin, okHMax = s.Min, s.Max, true, true
	}
	if okHMin && okHMax && okBins {
		if counts, err := ParseBinValues(bins); err == nil && len(counts) > 0 {
			s.Histogram = &Histogram{Min: hmin, Max: hmax, Counts: counts}
		}
	}
	return s
}

// ParseBinValues parses a pipe separated list of bin counts such as
// "12|0|7|". Empty entries are skipped.
func ParseBinValues(v string) ([]float64, error) {
	var counts []float64
	for _, p := range strings.Split(v, "|") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		c, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("bad histogram bin %q: %w", p, err)
		}
		counts = append(counts, c)
	}
	return counts, nil
}

// FormatBinValues is the inverse of ParseBinValues.
func FormatBinValues(counts []float64) string {
	var sb strings.Builder
	for _, c := range counts {
		sb.WriteString(strconv.FormatFloat(c, 'f', -1, 64))
		sb.WriteByte('|')
	}
	return sb.String()
}

// Metadata renders s as the STATISTICS_* items StatisticsFromMetadata reads.
func (s Statistics) Metadata() map[string]string {
	md := make(map[string]string)
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	if s.HasMinMax {
		md[KeyMinimum] = f(s.Min)
		md[KeyMaximum] = f(s.Max)
	}
	if s.HasMeanStdDev {
		md[KeyMean] = f(s.Mean)
		md[KeyStdDev] = f(s.StdDev)
	}
	if s.Histogram != nil {
		md[KeyHistoMin] = f(s.Histogram.Min)
		md[KeyHistoMax] = f(s.Histogram.Max)
		md[KeyHistoBinValues] = FormatBinValues(s.Histogram.Counts)
	}
	return md
}

// ComputeStatistics summarises samples, skipping NaN and, when noData is not
// nil, samples equal to *noData. bins is the histogram size.
func ComputeStatistics(samples []float64, noData *float64, bins int) (Statistics, error) {
	b := NewStatisticsBuilder(noData, bins)
	b.Add(samples)
	if b.Binned() {
		b.Bin(samples)
	}
	return b.Statistics()
}

// StatisticsBuilder summarises a band read in blocks. Every block is passed
// to Add, then, when Binned reports a histogram is wanted, to Bin again.
type StatisticsBuilder struct {
	noData *float64
	bins   int

	n, min, max float64
	mean, m2    float64

	dividers []float64
	counts   []float64
	block    []float64
	valid    []float64
}

// NewStatisticsBuilder returns a builder skipping NaN and, when noData is not
// nil, samples equal to *noData, with a histogram of bins bins.
func NewStatisticsBuilder(noData *float64, bins int) *StatisticsBuilder {
	return &StatisticsBuilder{noData: noData, bins: bins, min: math.Inf(1), max: math.Inf(-1)}
}

// filter returns the valid samples of block in a reused buffer.
func (b *StatisticsBuilder) filter(block []float64) []float64 {
	b.valid = b.valid[:0]
	for _, v := range block {
		if math.IsNaN(v) || (b.noData != nil && v == *b.noData) {
			continue
		}
		b.valid = append(b.valid, v)
	}
	return b.valid
}

// Add accumulates the range, mean and variance of block.
func (b *StatisticsBuilder) Add(block []float64) {
	valid := b.filter(block)
	if len(valid) == 0 {
		return
	}
	b.min = math.Min(b.min, floats.Min(valid))
	b.max = math.Max(b.max, floats.Max(valid))

	// Blocks are merged with the pairwise update of Chan et al.
	mean, sd := stat.PopMeanStdDev(valid, nil)
	n := float64(len(valid))
	total := b.n + n
	delta := mean - b.mean
	b.m2 += sd*sd*n + delta*delta*b.n*n/total
	b.mean += delta * n / total
	b.n = total
}

// Binned reports whether Bin must see the blocks again.
func (b *StatisticsBuilder) Binned() bool {
	return b.bins > 0 && b.n > 0
}

// Bin counts block into the histogram. Every block must have been added
// first.
func (b *StatisticsBuilder) Bin(block []float64) {
	if !b.Binned() {
		return
	}
	if b.dividers == nil {
		bins := b.bins
		if b.max == b.min {
			bins = 1
		}
		// The last divider sits just above Max so the largest sample lands
		// in the top bin.
		b.dividers = make([]float64, bins+1)
		floats.Span(b.dividers, b.min, b.max)
		b.dividers[bins] = math.Nextafter(b.max, math.Inf(1))
		b.counts = make([]float64, bins)
		b.block = make([]float64, bins)
	}
	valid := b.filter(block)
	if len(valid) == 0 {
		return
	}
	slices.Sort(valid)
	floats.Add(b.counts, stat.Histogram(b.block, b.dividers, valid, nil))
}

// Statistics returns the summary of everything added.
func (b *StatisticsBuilder) Statistics() (Statistics, error) {
	var s Statistics
	if b.n == 0 {
		return s, fmt.Errorf("no valid samples")
	}
	s.Min, s.Max, s.HasMinMax = b.min, b.max, true
	s.Mean, s.StdDev = b.mean, math.Sqrt(b.m2/b.n)
	s.HasMeanStdDev = true
	if b.counts != nil {
		s.Histogram = &Histogram{Min: s.Min, Max: s.Max, Counts: slices.Clone(b.counts)}
	}
	return s, nil
}
