package cogview

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRules(t *testing.T, lines ...string) []Rule {
	t.Helper()
	rules, err := ParseRules(lines)
	require.NoError(t, err)
	return rules
}

func TestSelectRuleThematic(t *testing.T) {
	ds := newMemDataset(10, 10, 1)
	ds.thematic(1, [][3]int{{0, 0, 0}, {255, 0, 0}})

	r, err := SelectRule(mustRules(t, "equal,1,1:colortable,none,,1"), ds)
	require.NoError(t, err)
	assert.Equal(t, ModeColorTable, r.Mode)
	assert.Equal(t, StretchNone, r.Stretch)
	assert.Equal(t, []int{1}, r.Bands)
}

func TestSelectRuleSixBands(t *testing.T) {
	r, err := SelectRule(DefaultRules(), newMemDataset(10, 10, 6))
	require.NoError(t, err)
	assert.Equal(t, ModeRGB, r.Mode)
	assert.Equal(t, StretchStdDev, r.Stretch)
	assert.Equal(t, []float64{2.0}, r.Params)
	assert.Equal(t, []int{5, 4, 2}, r.Bands)
}

func TestSelectRuleFirstMatchWins(t *testing.T) {
	rules := mustRules(t,
		"less,4,-1:greyscale,none,,1",
		"less,5,-1:greyscale,linear,,2",
		"equal,3,-1:rgb,none,,1|2|3",
	)
	for n, want := range map[int]int{1: 0, 3: 0, 4: 1} {
		r, err := SelectRule(rules, newMemDataset(4, 4, n))
		require.NoError(t, err)
		assert.Equal(t, rules[want], r, "%d bands", n)
	}
}

func TestSelectRuleClassificationChecks(t *testing.T) {
	rules := mustRules(t,
		"equal,1,1:colortable,none,,1",
		"equal,1,-1:greyscale,none,,1",
	)

	plain := newMemDataset(4, 4, 1)
	r, err := SelectRule(rules, plain)
	require.NoError(t, err)
	assert.Equal(t, ModeGreyscale, r.Mode, "band without attribute table")

	athematic := newMemDataset(4, 4, 1)
	athematic.thematic(1, [][3]int{{1, 2, 3}})
	athematic.bands[0].md[KeyLayerType] = LayerAthematic
	r, err = SelectRule(rules, athematic)
	require.NoError(t, err)
	assert.Equal(t, ModeGreyscale, r.Mode, "athematic band")

	noAlpha := newMemDataset(4, 4, 1)
	noAlpha.thematic(1, [][3]int{{1, 2, 3}})
	tbl := noAlpha.bands[0].rat.(*memTable)
	tbl.usages[4] = UsageGeneric
	r, err = SelectRule(rules, noAlpha)
	require.NoError(t, err)
	assert.Equal(t, ModeGreyscale, r.Mode, "table without alpha")

	missing := newMemDataset(4, 4, 1)
	r, err = SelectRule(mustRules(t, "equal,1,2:colortable,none,,1"), missing)
	assert.Error(t, err, "class band beyond band count")
	assert.Equal(t, Rule{}, r)
}

func TestSelectRuleNoMatch(t *testing.T) {
	_, err := SelectRule(mustRules(t, "equal,3,-1:rgb,none,,1|2|3"), newMemDataset(4, 4, 2))
	var nr *NoRuleError
	require.True(t, errors.As(err, &nr))
	assert.Equal(t, 2, nr.BandCount)
}
