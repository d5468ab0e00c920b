package cogview

import (
	"fmt"
	"strconv"
	"strings"
)

// Comparison is how a rule compares its threshold with a band count.
type Comparison int

const (
	CompLess Comparison = iota
	CompGreater
	CompEqual
)

var comparisonNames = map[Comparison]string{
	CompLess:    "less",
	CompGreater: "greater",
	CompEqual:   "equal",
}

func (c Comparison) String() string {
	if s, ok := comparisonNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Comparison(%d)", int(c))
}

// DisplayMode is how bands are combined into displayable colour.
type DisplayMode int

const (
	ModeColorTable DisplayMode = iota + 1
	ModeGreyscale
	ModeRGB
	ModePseudoColor // parsed, never displayed
)

var modeNames = map[DisplayMode]string{
	ModeColorTable:  "colortable",
	ModeGreyscale:   "greyscale",
	ModeRGB:         "rgb",
	ModePseudoColor: "pseudocolor",
}

func (m DisplayMode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("DisplayMode(%d)", int(m))
}

// StretchMode is how raw samples are mapped onto 0-255.
type StretchMode int

const (
	StretchNone StretchMode = iota + 1
	StretchLinear
	StretchStdDev
	StretchHistogram
)

var stretchNames = map[StretchMode]string{
	StretchNone:      "none",
	StretchLinear:    "linear",
	StretchStdDev:    "stddev",
	StretchHistogram: "histogram",
}

func (s StretchMode) String() string {
	if n, ok := stretchNames[s]; ok {
		return n
	}
	return fmt.Sprintf("StretchMode(%d)", int(s))
}

// NoClassBand marks a rule that does not look at a classification band.
const NoClassBand = -1

// Rule says: when a dataset's band count compares true against Threshold
// (and, if ClassBand is set, that band is a thematic band with a colour
// table), show Bands in Mode using Stretch.
type Rule struct {
	Comparison Comparison
	Threshold  int
	ClassBand  int
	Mode       DisplayMode
	Stretch    StretchMode
	Params     []float64
	Bands      []int
}

// defaultRuleStrings are the rules used when no configuration supplies any.
var defaultRuleStrings = []string{
	"equal,1,1:colortable,none,,1",
	"equal,1,-1:greyscale,none,,1",
	"equal,2,-1:greyscale,none,,1",
	"equal,3,-1:rgb,none,,1|2|3",
	"less,6,-1:rgb,stddev,2.0,4|3|2",
	"greater,5,-1:rgb,stddev,2.0,5|4|2",
}

// DefaultRules returns the built-in rule list.
func DefaultRules() []Rule {
	rules, err := ParseRules(defaultRuleStrings)
	if err != nil {
		panic(err)
	}
	return rules
}

// ParseRules parses every string in order and stops at the first bad one.
func ParseRules(lines []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(lines))
	for i, line := range lines {
		r, err := ParseRule(line)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// ParseRule parses
//
//	comparator,threshold,classBand:mode,stretch,p1|p2,b1|b2|b3
//
// The separator after classBand may also be a comma, which is the form older
// configuration files use.
func ParseRule(s string) (Rule, error) {
	var r Rule
	fields := splitRule(s)
	if len(fields) != 7 {
		return r, &RuleError{Rule: s, Field: "rule", Reason: fmt.Sprintf("want 7 fields, got %d", len(fields))}
	}
	fail := func(field, value, reason string) (Rule, error) {
		return Rule{}, &RuleError{Rule: s, Field: field, Value: value, Reason: reason}
	}

	switch fields[0] {
	case "less":
		r.Comparison = CompLess
	case "greater":
		r.Comparison = CompGreater
	case "equal":
		r.Comparison = CompEqual
	default:
		return fail("comparator", fields[0], "want less, greater or equal")
	}

	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return fail("threshold", fields[1], "not an integer")
	}
	r.Threshold = n

	switch fields[2] {
	case "-1", "none":
		r.ClassBand = NoClassBand
	default:
		n, err := strconv.Atoi(fields[2])
		if err != nil || n < 1 {
			return fail("class band", fields[2], "want -1, none or a band number from 1")
		}
		r.ClassBand = n
	}

	switch fields[3] {
	case "colortable":
		r.Mode = ModeColorTable
	case "greyscale":
		r.Mode = ModeGreyscale
	case "rgb":
		r.Mode = ModeRGB
	case "pseudocolor":
		r.Mode = ModePseudoColor
	default:
		return fail("mode", fields[3], "want colortable, greyscale, rgb or pseudocolor")
	}

	switch fields[4] {
	case "", "none":
		r.Stretch = StretchNone
	case "linear":
		r.Stretch = StretchLinear
	case "stddev":
		r.Stretch = StretchStdDev
	case "histogram":
		r.Stretch = StretchHistogram
	default:
		return fail("stretch", fields[4], "want none, linear, stddev or histogram")
	}

	if fields[5] != "" {
		parts := splitPipes(fields[5])
		if len(parts) > 2 {
			return fail("params", fields[5], "at most 2 parameters")
		}
		for _, p := range parts {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return fail("params", p, "not a number")
			}
			r.Params = append(r.Params, v)
		}
	}

	if fields[6] == "" {
		return fail("bands", "", "at least one band is required")
	}
	for _, p := range splitPipes(fields[6]) {
		b, err := strconv.Atoi(p)
		if err != nil || b < 1 {
			return fail("bands", p, "want a band number from 1")
		}
		r.Bands = append(r.Bands, b)
	}
	want := 1
	if r.Mode == ModeRGB {
		want = 3
	}
	if len(r.Bands) != want {
		return fail("bands", fields[6], fmt.Sprintf("%s needs %d band(s)", r.Mode, want))
	}

	return r, nil
}

func splitRule(s string) []string {
	head, tail, found := strings.Cut(s, ":")
	var fields []string
	if found {
		fields = append(strings.Split(head, ","), strings.Split(tail, ",")...)
	} else {
		fields = strings.Split(s, ",")
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func splitPipes(s string) []string {
	parts := strings.Split(s, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// String renders the rule in the canonical grammar ParseRule accepts.
func (r Rule) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s,%d,%d:%s,%s,", r.Comparison, r.Threshold, r.ClassBand, r.Mode, r.Stretch)
	for i, p := range r.Params {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(strconv.FormatFloat(p, 'f', -1, 64))
	}
	sb.WriteByte(',')
	for i, b := range r.Bands {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(strconv.Itoa(b))
	}
	return sb.String()
}

// Describe returns the one line summary shown in the status bar.
func (r Rule) Describe() string {
	var mode string
	switch r.Mode {
	case ModeColorTable:
		mode = fmt.Sprintf("Color Table %d", r.band(0))
	case ModeGreyscale:
		mode = fmt.Sprintf("GreyScale %d", r.band(0))
	case ModeRGB:
		mode = fmt.Sprintf("RGB %d %d %d", r.band(0), r.band(1), r.band(2))
	case ModePseudoColor:
		mode = fmt.Sprintf("PseudoColor %d", r.band(0))
	}

	switch r.Stretch {
	case StretchNone:
		return mode + " No Stretch"
	case StretchLinear:
		if len(r.Params) < 2 {
			return mode + " Linear Stretch"
		}
		return mode + fmt.Sprintf(" Linear Stretch %.2f - %.2f", r.Params[0], r.Params[1])
	case StretchStdDev:
		return mode + fmt.Sprintf(" Standard Deviation %.2f", r.param(0, defaultStdDevs))
	case StretchHistogram:
		return mode + fmt.Sprintf(" Histogram Stretch %.2f - %.2f",
			r.param(0, defaultHistLow), r.param(1, defaultHistHigh))
	}
	return mode
}

func (r Rule) band(i int) int {
	if i < len(r.Bands) {
		return r.Bands[i]
	}
	return 0
}

func (r Rule) param(i int, def float64) float64 {
	if i < len(r.Params) {
		return r.Params[i]
	}
	return def
}
