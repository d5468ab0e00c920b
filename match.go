package cogview

import "strings"

// ClassificationProbe is the part of a dataset rule matching looks at.
type ClassificationProbe interface {
	BandCount() int
	Band(i int) Band
}

// SelectRule returns the first rule in rules that applies to ds.
// A *NoRuleError is returned when none does.
func SelectRule(rules []Rule, ds ClassificationProbe) (Rule, error) {
	n := ds.BandCount()
	for _, r := range rules {
		if !r.Comparison.holds(n, r.Threshold) {
			continue
		}
		if r.ClassBand != NoClassBand && !isClassified(ds, r.ClassBand) {
			continue
		}
		return r, nil
	}
	return Rule{}, &NoRuleError{BandCount: n}
}

func (c Comparison) holds(n, threshold int) bool {
	switch c {
	case CompLess:
		return n < threshold
	case CompGreater:
		return n > threshold
	case CompEqual:
		return n == threshold
	}
	return false
}

// isClassified reports whether band i exists, is thematic and has an
// attribute table with red, green, blue and alpha columns.
func isClassified(ds ClassificationProbe, i int) bool {
	if i < 1 || i > ds.BandCount() {
		return false
	}
	b := ds.Band(i)
	if b == nil {
		return false
	}
	lt, ok := b.Metadata(KeyLayerType)
	if !ok || !strings.EqualFold(strings.TrimSpace(lt), LayerThematic) {
		return false
	}
	rat := b.AttributeTable()
	if rat == nil {
		return false
	}
	for _, u := range []int{UsageRed, UsageGreen, UsageBlue, UsageAlpha} {
		if findColumn(rat, u) < 0 {
			return false
		}
	}
	return true
}

// findColumn returns the first column of rat with the given usage, or -1.
func findColumn(rat AttributeTable, usage int) int {
	for c := 0; c < rat.ColumnCount(); c++ {
		if rat.ColumnUsage(c) == usage {
			return c
		}
	}
	return -1
}
