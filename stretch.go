package cogview

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Stretch parameter defaults.
const (
	defaultStdDevs  = 2.0
	defaultHistLow  = 0.025
	defaultHistHigh = 0.01
)

// Stretcher maps raw samples of one band onto 0-255.
type Stretcher struct {
	mode StretchMode
	lo   float64
	hi   float64

	// stddev only
	mean, k, sd float64
	ranged      bool
	min, max    float64
}

// NewStretcher prepares a stretch of the given mode. It fails with a
// *StretchError when stats lack what mode needs.
func NewStretcher(mode StretchMode, params []float64, stats Statistics) (*Stretcher, error) {
	s := &Stretcher{mode: mode}
	fail := func(reason string) (*Stretcher, error) {
		return nil, &StretchError{Mode: mode, Reason: reason}
	}

	switch mode {
	case StretchNone:
		s.lo, s.hi = 0, 255

	case StretchLinear:
		switch {
		case len(params) == 2:
			s.lo, s.hi = params[0], params[1]
		case stats.HasMinMax:
			s.lo, s.hi = stats.Min, stats.Max
		default:
			return fail("statistics not available, run cogview stats first")
		}

	case StretchStdDev:
		if !stats.HasMeanStdDev {
			return fail("statistics not available, run cogview stats first")
		}
		s.k = defaultStdDevs
		if len(params) > 0 {
			s.k = params[0]
		}
		if s.k <= 0 {
			return fail("number of standard deviations must be positive")
		}
		if stats.StdDev <= 0 {
			return fail("standard deviation is zero")
		}
		s.mean, s.sd = stats.Mean, stats.StdDev
		s.ranged = stats.HasMinMax
		s.min, s.max = stats.Min, stats.Max

	case StretchHistogram:
		h := stats.Histogram
		if h == nil || len(h.Counts) == 0 {
			return fail("histogram not available, run cogview stats first")
		}
		low, high := defaultHistLow, defaultHistHigh
		if len(params) > 0 {
			low = params[0]
		}
		if len(params) > 1 {
			high = params[1]
		}
		if low < 0 || high < 0 || low+high >= 1 {
			return fail("histogram cutoffs must be non-negative and sum below 1")
		}
		lo, hi, ok := HistogramCutoffs(h, low, high)
		if !ok {
			return fail("histogram is empty")
		}
		s.lo, s.hi = lo, hi

	default:
		return fail("unknown stretch")
	}
	return s, nil
}

// Mode returns the stretch mode.
func (s *Stretcher) Mode() StretchMode { return s.mode }

// Range returns the input values mapped to 0 and 255. It is meaningless for
// the stddev stretch.
func (s *Stretcher) Range() (float64, float64) { return s.lo, s.hi }

// Apply stretches src into dst. dst must be at least as long as src.
func (s *Stretcher) Apply(dst []byte, src []float64) {
	_ = dst[:len(src)]
	switch s.mode {
	case StretchStdDev:
		scale := 255 / (2 * s.k * s.sd)
		for i, v := range src {
			if v == 0 || math.IsNaN(v) || (s.ranged && (v < s.min || v > s.max)) {
				dst[i] = 0
				continue
			}
			dst[i] = clampByte((v - s.mean + s.k*s.sd) * scale)
		}
	case StretchNone:
		for i, v := range src {
			dst[i] = clampByte(v)
		}
	default:
		for i, v := range src {
			dst[i] = s.linear(v)
		}
	}
}

func (s *Stretcher) linear(v float64) byte {
	switch {
	case math.IsNaN(v), v <= s.lo:
		return 0
	case v >= s.hi:
		return 255
	}
	return clampByte((v - s.lo) * 255 / (s.hi - s.lo))
}

func clampByte(v float64) byte {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return byte(v)
}

// HistogramCutoffs returns the values below which low and above which high
// of the histogram's total count fall.
//
// The low cutoff is the lower edge of the first bin at which the count
// accumulated from the bottom reaches low*total. The high cutoff is the upper
// edge of the first bin, scanning down from the top, at which the count
// accumulated from the top reaches high*total. A collapsed range is widened
// to one bin. ok is false for an empty histogram.
func HistogramCutoffs(h *Histogram, low, high float64) (lo, hi float64, ok bool) {
	n := len(h.Counts)
	if n == 0 {
		return 0, 0, false
	}
	cum := floats.CumSum(make([]float64, n), h.Counts)
	total := cum[n-1]
	if total <= 0 {
		return 0, 0, false
	}
	bw := h.BinWidth()

	lo = h.Min
	for i := 0; i < n; i++ {
		if cum[i] >= low*total {
			lo = h.Min + float64(i)*bw
			break
		}
	}
	hi = h.Max
	for j := n - 1; j >= 0; j-- {
		above := total - cum[j] + h.Counts[j]
		if above >= high*total {
			hi = h.Min + float64(j+1)*bw
			break
		}
	}
	if hi <= lo {
		hi = lo + bw
	}
	return lo, hi, true
}
