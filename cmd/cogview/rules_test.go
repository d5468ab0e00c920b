package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertLegacy(t *testing.T) {
	in := `Driver=ncurses
Rule=equal,1,1,colortable,none,,1
  Rule = less,6,-1:rgb,stddev,2.0,4|3|2
not a setting
`
	rules, err := convertLegacy(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"equal,1,1:colortable,none,,1",
		"less,6,-1:rgb,stddev,2,4|3|2",
	}, rules)
}

func TestConvertLegacyBadRule(t *testing.T) {
	_, err := convertLegacy(strings.NewReader("Rule=equal,1,1\nRule=sometimes,1,1:rgb,none,,1|2|3\n"))
	assert.ErrorContains(t, err, "line 1")
}
