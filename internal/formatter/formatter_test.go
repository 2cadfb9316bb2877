package formatter

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/d3-pipeline/internal/rowset"
	"github.com/kyleking/d3-pipeline/internal/suppression"
)

func sample(t *testing.T) *rowset.RowSet {
	t.Helper()

	rs := rowset.New([]string{"b01992001", "b01992002"})
	require.NoError(t, rs.Append("26163", []rowset.Value{rowset.Int(1200), rowset.Int(45)}))
	require.NoError(t, rs.Append("26125", []rowset.Value{rowset.Int(7), rowset.Null()}))
	require.NoError(t, rs.Append("26099", []rowset.Value{rowset.Null(), rowset.Null()}))

	return rs
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected OutputFormat
		wantErr  bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"CSV", FormatCSV, false},
		{"json", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormatText(t *testing.T) {
	out := NewFormatter(0).Format(sample(t), FormatText)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	require.Len(t, lines, 4)
	assert.Equal(t, []string{"geoid", "b01992001", "b01992002"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"26163", "1200", "45"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"26125", "7", "-"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"26099", "-", "-"}, strings.Fields(lines[3]))

	// Columns are right aligned to a common width
	assert.Equal(t, len(lines[0]), len(lines[1]))
}

func TestFormatCSV(t *testing.T) {
	out := NewFormatter(0).Format(sample(t), FormatCSV)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"geoid", "b01992001", "b01992002"},
		{"26163", "1200", "45"},
		{"26125", "7", ""},
		{"26099", "", ""},
	}, records)
}

func TestFormatLimit(t *testing.T) {
	rs := sample(t)

	text := NewFormatter(1).Format(rs, FormatText)
	assert.Contains(t, text, "26163")
	assert.NotContains(t, text, "26125")
	assert.Contains(t, text, "... 2 more rows")

	records, err := csv.NewReader(strings.NewReader(NewFormatter(2).Format(rs, FormatCSV))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestFormatEmpty(t *testing.T) {
	rs := rowset.New([]string{"b01992001"})

	assert.Equal(t, "geoid,b01992001\n", NewFormatter(0).Format(rs, FormatCSV))
	assert.Equal(t, []string{"geoid", "b01992001"}, strings.Fields(NewFormatter(0).Format(rs, FormatText)))
}

func TestFormatStats(t *testing.T) {
	assert.Equal(t, "0 rows", FormatStats(suppression.Stats{}))
	assert.Equal(t,
		"4 rows: 1 unchanged, 2 partially suppressed, 1 fully suppressed (75.0% suppressed)",
		FormatStats(suppression.Stats{Rows: 4, Unchanged: 1, Partial: 2, Full: 1}))
}
