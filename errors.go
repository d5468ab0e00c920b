package cogview

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoGeotransform is returned when a dataset carries no usable
	// georeferencing. No overview or window can be chosen without it.
	ErrNoGeotransform = errors.New("dataset has no geotransform")

	// ErrUnsupportedMode is returned for display or stretch modes that are
	// recognised but not implemented.
	ErrUnsupportedMode = errors.New("mode not currently supported")

	// ErrNoDataset is returned when an operation needs an open dataset.
	ErrNoDataset = errors.New("no dataset open")
)

// RuleError reports a malformed stretch rule string.
type RuleError struct {
	Rule   string
	Field  string
	Value  string
	Reason string
}

func (e *RuleError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("stretch rule %q: %s %q: %s", e.Rule, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("stretch rule %q: %s: %s", e.Rule, e.Field, e.Reason)
}

// NoRuleError indicates that no rule in the list applies to a dataset.
type NoRuleError struct {
	Name      string
	BandCount int
}

func (e *NoRuleError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("could not find stretch to use for %s (%d bands)", e.Name, e.BandCount)
	}
	return fmt.Sprintf("could not find stretch to use for a %d band dataset", e.BandCount)
}

// StretchError indicates that a band lacks what its stretch needs, most often
// statistics or a histogram.
type StretchError struct {
	Band   int
	Mode   StretchMode
	Reason string
}

func (e *StretchError) Error() string {
	return fmt.Sprintf("band %d: %s stretch: %s", e.Band, e.Mode, e.Reason)
}

// ColumnError indicates an attribute table missing colour columns.
type ColumnError struct {
	Band    int
	Missing []string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("band %d: attribute table lacks %s column(s)", e.Band, strings.Join(e.Missing, ", "))
}
