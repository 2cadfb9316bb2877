package suppression

import (
	"strings"

	"github.com/kyleking/d3-pipeline/internal/catalog"
	"github.com/kyleking/d3-pipeline/internal/errors"
	"github.com/kyleking/d3-pipeline/internal/rowset"
)

// Pivot classifies a row against the threshold. It is one of AllAbove,
// AllBelow or RightOn.
type Pivot interface {
	pivot()
}

// AllAbove means no value is below the threshold
type AllAbove struct{}

// AllBelow means every value is below the threshold
type AllBelow struct{}

// RightOn names the below-threshold column with the largest value
type RightOn struct {
	Column string
	Value  int64
}

func (AllAbove) pivot() {}
func (AllBelow) pivot() {}
func (RightOn) pivot()  {}

// FindPivot scans a row's values. Null cells compare as zero. Ties go to
// the first maximal column.
func FindPivot(columns []string, values []rowset.Value, threshold int) Pivot {
	limit := int64(threshold)
	below := 0

	var best RightOn

	for i, v := range values {
		n := v.Int
		if !v.Valid {
			n = 0
		}

		if n >= limit {
			continue
		}

		if below == 0 || n > best.Value {
			best = RightOn{Column: columns[i], Value: n}
		}

		below++
	}

	switch {
	case below == 0:
		return AllAbove{}
	case below == len(values):
		return AllBelow{}
	default:
		return best
	}
}

// MuteRow applies one pivot decision to a row and returns a new row. For
// RightOn, every catalog variable at or deeper than the pivot's indentation
// is muted, whichever branch of the hierarchy it sits on.
func MuteRow(row rowset.Row, columns []string, cat *catalog.Catalog, p Pivot) (rowset.Row, error) {
	out := row.Clone()

	switch p := p.(type) {
	case AllAbove:
		return out, nil

	case AllBelow:
		for i := range out.Values {
			out.Values[i] = rowset.Null()
		}

		return out, nil

	case RightOn:
		depth, ok := cat.Indentation(p.Column)
		if !ok {
			return rowset.Row{}, errors.Newf(errors.ErrTypeCatalog,
				"pivot %s for geoid %s not found in variable metadata", p.Column, row.GeoID).
				WithSuggestion("check d3_variable_metadata indentation for table " + cat.Table())
		}

		mute := make(map[string]struct{})
		for _, name := range cat.AtOrBelow(depth) {
			mute[name] = struct{}{}
		}

		for i, c := range columns {
			if _, ok := mute[strings.ToLower(c)]; ok {
				out.Values[i] = rowset.Null()
			}
		}

		return out, nil

	default:
		return rowset.Row{}, errors.Newf(errors.ErrTypeInternal, "unknown pivot %T", p)
	}
}
