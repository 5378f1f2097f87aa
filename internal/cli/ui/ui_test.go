package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableGroupsFirstColumn(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	table := NewTable(&buf, []string{"Flow", "Field"}, &TableOptions{NoColor: true, GroupFirstColumn: true})
	table.AddRow("Assign_Lead", "Lead.Country")
	table.AddRow("Assign_Lead", "Lead.OwnerId")
	table.AddRow("Route_Case", "Case.Priority")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	assert.True(t, strings.HasPrefix(lines[0], "Flow"))
	assert.Contains(t, lines[1], "─")
	assert.Equal(t, "Assign_Lead  Lead.Country", lines[2])
	assert.Equal(t, "             Lead.OwnerId", lines[3])
	assert.Equal(t, "Route_Case   Case.Priority", lines[4])
	assert.Equal(t, 3, table.Len())
}

func TestTableWithoutHeadersRendersNothing(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, nil, nil)
	table.AddRow("x")
	table.Render()
	assert.Empty(t, buf.String())
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf, true)
	kv.AddRow("Run", "abc")
	kv.AddRow("Fields", "3 inserted")
	kv.Render()

	assert.Equal(t, "Run:    abc\nFields: 3 inserted\n", buf.String())
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, ProgressBarOptions{Width: 10, NoColor: true})

	bar.Update(1, 4, "Account")
	assert.Contains(t, buf.String(), " 25% 1/4 Account")
	assert.Contains(t, buf.String(), "[██░░░░░░░░]")

	buf.Reset()
	bar.Finish("Fields synced")
	assert.Contains(t, buf.String(), "100% 4/4")
	assert.Contains(t, buf.String(), "✓ Fields synced")
}

func TestProgressBarZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, ProgressBarOptions{NoColor: true})
	bar.Update(0, 0, "nothing")
	assert.Empty(t, buf.String())
}

func TestSuggest(t *testing.T) {
	assert.Equal(t, []string{"flows"}, Suggest("flowz", []string{"flows"}))
	assert.Equal(t, []string{"flows"}, Suggest("FLOWS", []string{"flows"}))
	assert.Empty(t, Suggest("dependencies", []string{"flows"}))
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"", "abc", 3},
		{"abc", "", 3},
		{"flows", "flows", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevenshteinDistance(tt.a, tt.b), "%s -> %s", tt.a, tt.b)
	}
}

func TestFormatError(t *testing.T) {
	out := UnknownReportError("flowz", []string{"flows"}, true)

	assert.Contains(t, out, "❌ UNKNOWN REPORT")
	assert.Contains(t, out, "Cannot find report 'flowz'")
	assert.Contains(t, out, "Did you mean: flows?")
	assert.Contains(t, out, "→ Get help: sfsync --help")
}

func TestFormatErrorLevels(t *testing.T) {
	assert.True(t, strings.HasPrefix(Warning("careful", true), "⚠️ careful"))
	assert.True(t, strings.HasPrefix(Info("fyi", true), "ℹ️ fyi"))
	assert.Contains(t, DatabaseError("ping failed", true), "DATABASE ERROR")
	assert.Contains(t, ConfigError("SALESFORCE_ORG is not set", true), "SALESFORCE_ORG is not set")
}
