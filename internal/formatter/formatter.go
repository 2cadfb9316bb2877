package formatter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/kyleking/d3-pipeline/internal/rowset"
	"github.com/kyleking/d3-pipeline/internal/suppression"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatCSV  OutputFormat = "csv"
)

// SuppressedMarker is printed in text output for muted cells
const SuppressedMarker = "-"

// ParseFormat validates a --format value. Empty selects text.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected text or csv)", s)
	}
}

// Formatter renders RowSets for the terminal
type Formatter struct {
	// Limit caps printed rows; zero prints everything
	Limit int
}

// NewFormatter creates a new formatter instance
func NewFormatter(limit int) *Formatter {
	return &Formatter{Limit: limit}
}

// Write renders rs to w in the requested format
func (f *Formatter) Write(w io.Writer, rs *rowset.RowSet, format OutputFormat) error {
	switch format {
	case FormatCSV:
		return f.writeCSV(w, rs)
	default:
		return f.writeText(w, rs)
	}
}

// Format renders rs as a string
func (f *Formatter) Format(rs *rowset.RowSet, format OutputFormat) string {
	var b strings.Builder
	if err := f.Write(&b, rs, format); err != nil {
		return ""
	}

	return b.String()
}

func (f *Formatter) rows(rs *rowset.RowSet) []rowset.Row {
	if f.Limit > 0 && len(rs.Rows) > f.Limit {
		return rs.Rows[:f.Limit]
	}

	return rs.Rows
}

func (f *Formatter) writeText(w io.Writer, rs *rowset.RowSet) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintln(tw, strings.Join(rs.Header(), "\t")+"\t")

	for _, row := range f.rows(rs) {
		cells := make([]string, 0, len(row.Values)+1)
		cells = append(cells, row.GeoID)

		for _, v := range row.Values {
			cells = append(cells, textCell(v))
		}

		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	if hidden := len(rs.Rows) - len(f.rows(rs)); hidden > 0 {
		_, err := fmt.Fprintf(w, "... %d more rows\n", hidden)
		return err
	}

	return nil
}

func (f *Formatter) writeCSV(w io.Writer, rs *rowset.RowSet) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(rs.Header()); err != nil {
		return err
	}

	for _, row := range f.rows(rs) {
		record := make([]string, 0, len(row.Values)+1)
		record = append(record, row.GeoID)

		for _, v := range row.Values {
			record = append(record, v.String())
		}

		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

func textCell(v rowset.Value) string {
	if !v.Valid {
		return SuppressedMarker
	}

	return v.String()
}

// FormatStats summarises a suppression pass on one line
func FormatStats(stats suppression.Stats) string {
	if stats.Rows == 0 {
		return "0 rows"
	}

	return fmt.Sprintf("%d rows: %d unchanged, %d partially suppressed, %d fully suppressed (%s suppressed)",
		stats.Rows, stats.Unchanged, stats.Partial, stats.Full, percent(stats.Partial+stats.Full, stats.Rows))
}

func percent(n, total int) string {
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}
