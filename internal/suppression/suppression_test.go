package suppression

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/d3-pipeline/internal/catalog"
	"github.com/kyleking/d3-pipeline/internal/errors"
	"github.com/kyleking/d3-pipeline/internal/rowset"
	"github.com/kyleking/d3-pipeline/internal/testutil"
)

// b01992 has one total at depth 0 and eight breakdowns at depth 1
func b01992() *catalog.Catalog {
	vars := []catalog.Variable{{Name: "b01992001", Indentation: 0}}
	for i := 2; i <= 9; i++ {
		vars = append(vars, catalog.Variable{
			Name:        fmt.Sprintf("b0199200%d", i),
			Indentation: 1,
			ParentName:  "b01992001",
		})
	}

	return catalog.MustNew("b01992", vars)
}

func ints(ns ...int64) []rowset.Value {
	out := make([]rowset.Value, len(ns))
	for i, n := range ns {
		out[i] = rowset.Int(n)
	}

	return out
}

func nulls(n int) []rowset.Value {
	return make([]rowset.Value, n)
}

func buildRowSet(t *testing.T, cat *catalog.Catalog, rows map[string][]rowset.Value, order []string) *rowset.RowSet {
	t.Helper()

	rs := rowset.New(cat.Names())
	for _, geoid := range order {
		require.NoError(t, rs.Append(geoid, rows[geoid]))
	}

	return rs
}

func TestSuppressReferenceScenarios(t *testing.T) {
	cat := b01992()
	rs := buildRowSet(t, cat, map[string][]rowset.Value{
		"g1": ints(100, 50, 50, 50, 50, 50, 50, 50, 50),
		"g2": ints(6, 3, 3, 3, 3, 3, 3, 3, 3),
		"g3": ints(7, 2, 2, 2, 2, 2, 2, 2, 2),
		"g4": ints(5, 2, 2, 2, 2, 2, 2, 2, 2),
	}, []string{"g1", "g2", "g3", "g4"})

	out, err := Suppress(rs, cat, 6)
	require.NoError(t, err)

	require.Equal(t, []string{"g1", "g2", "g3", "g4"}, out.GeoIDs())
	assert.Equal(t, ints(100, 50, 50, 50, 50, 50, 50, 50, 50), out.Rows[0].Values)
	assert.Equal(t, append(ints(6), nulls(8)...), out.Rows[1].Values)
	assert.Equal(t, append(ints(7), nulls(8)...), out.Rows[2].Values)
	assert.Equal(t, nulls(9), out.Rows[3].Values)
}

func TestFindPivot(t *testing.T) {
	cols := []string{"a", "b", "c", "d"}

	tests := []struct {
		name     string
		values   []rowset.Value
		expected Pivot
	}{
		{"all above", ints(6, 7, 8, 9), AllAbove{}},
		{"equal to threshold is safe", ints(6, 6, 6, 6), AllAbove{}},
		{"all below", ints(5, 0, 1, 2), AllBelow{}},
		{"max below wins", ints(10, 2, 5, 3), RightOn{Column: "c", Value: 5}},
		{"tie goes to first", ints(10, 4, 4, 1), RightOn{Column: "b", Value: 4}},
		{"null compares as zero", []rowset.Value{rowset.Int(10), rowset.Null(), rowset.Int(8), rowset.Int(9)}, RightOn{Column: "b", Value: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FindPivot(cols, tt.values, 6))
		})
	}
}

func TestFindPivotNoColumns(t *testing.T) {
	assert.Equal(t, AllAbove{}, FindPivot(nil, nil, 6))
}

func TestMonotonicity(t *testing.T) {
	cat := catalog.MustNew("t", []catalog.Variable{
		{Name: "v0", Indentation: 0},
		{Name: "v1", Indentation: 1, ParentName: "v0"},
		{Name: "v2", Indentation: 2, ParentName: "v1"},
		{Name: "v3", Indentation: 1, ParentName: "v0"},
		{Name: "v4", Indentation: 2, ParentName: "v3"},
	})

	// pivot v4 (depth 2) mutes v2 and v4 only; v3 is the pivot's parent and stays
	rs := buildRowSet(t, cat, map[string][]rowset.Value{"g": ints(40, 20, 10, 20, 3)}, []string{"g"})

	out, err := Suppress(rs, cat, 6)
	require.NoError(t, err)

	for i, name := range cat.Names() {
		depth, _ := cat.Indentation(name)
		if depth >= 2 {
			assert.False(t, out.Rows[0].Values[i].Valid, name)
		} else {
			assert.Equal(t, rs.Rows[0].Values[i], out.Rows[0].Values[i], name)
		}
	}
}

func TestDepthCutMutesUnrelatedSubtrees(t *testing.T) {
	cat := catalog.MustNew("t", []catalog.Variable{
		{Name: "a", Indentation: 0},
		{Name: "a1", Indentation: 1, ParentName: "a"},
		{Name: "a2", Indentation: 1, ParentName: "a"},
		{Name: "b", Indentation: 0},
		{Name: "b1", Indentation: 1, ParentName: "b"},
	})

	// only a1 is small, but b1 sits on another branch at the same depth
	rs := buildRowSet(t, cat, map[string][]rowset.Value{"g": ints(100, 2, 98, 50, 50)}, []string{"g"})

	out, err := Suppress(rs, cat, 6)
	require.NoError(t, err)

	assert.Equal(t, []rowset.Value{
		rowset.Int(100), rowset.Null(), rowset.Null(), rowset.Int(50), rowset.Null(),
	}, out.Rows[0].Values)
}

func TestPivotMissingFromCatalog(t *testing.T) {
	cat := b01992()

	rs := rowset.New([]string{"b01992001", "b01992099"})
	require.NoError(t, rs.Append("26163", ints(100, 2)))

	_, err := Suppress(rs, cat, 6)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeCatalog))
	assert.Contains(t, err.Error(), "b01992099")
	assert.Contains(t, err.Error(), "26163")
}

func TestColumnsOutsideCatalogAreLeftAlone(t *testing.T) {
	cat := catalog.MustNew("t", []catalog.Variable{
		{Name: "a", Indentation: 0},
		{Name: "a1", Indentation: 1, ParentName: "a"},
	})

	rs := rowset.New([]string{"a", "a1", "extra"})
	require.NoError(t, rs.Append("g", ints(50, 3, 40)))

	out, err := Suppress(rs, cat, 6)
	require.NoError(t, err)

	assert.Equal(t, []rowset.Value{rowset.Int(50), rowset.Null(), rowset.Int(40)}, out.Rows[0].Values)
}

func TestSuppressDoesNotMutateInput(t *testing.T) {
	cat := b01992()
	rs := buildRowSet(t, cat, map[string][]rowset.Value{"g": ints(6, 3, 3, 3, 3, 3, 3, 3, 3)}, []string{"g"})
	before := rs.Clone()

	_, err := Suppress(rs, cat, 6)
	require.NoError(t, err)

	assert.Equal(t, before, rs)
}

func TestInvalidThreshold(t *testing.T) {
	_, err := Suppress(rowset.New(nil), b01992(), 0)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestNilCatalog(t *testing.T) {
	_, err := Suppress(rowset.New(nil), nil, 6)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeCatalog))
}

func TestEmptyRowSet(t *testing.T) {
	out, stats, err := NewEngine().Suppress(context.Background(), rowset.New(b01992().Names()), b01992(), 6)
	require.NoError(t, err)

	assert.Equal(t, 0, out.Len())
	assert.Equal(t, b01992().Names(), out.Columns)
	assert.Equal(t, Stats{}, stats)
}

func largeRowSet(t *testing.T, cat *catalog.Catalog, n int) *rowset.RowSet {
	t.Helper()

	rs := rowset.New(cat.Names())
	for i := 0; i < n; i++ {
		values := make([]rowset.Value, cat.Len())
		for j := range values {
			values[j] = rowset.Int(int64((i*7 + j*3) % 13))
		}

		require.NoError(t, rs.Append(fmt.Sprintf("g%05d", i), values))
	}

	return rs
}

func TestParallelMatchesSerial(t *testing.T) {
	cat := b01992()
	rs := largeRowSet(t, cat, 5000)

	serial, serialStats, err := NewEngine(WithWorkers(1)).Suppress(context.Background(), rs, cat, 6)
	require.NoError(t, err)

	parallel, parallelStats, err := NewEngine(WithWorkers(8)).Suppress(context.Background(), rs, cat, 6)
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
	assert.Equal(t, serialStats, parallelStats)
	assert.Equal(t, 5000, parallelStats.Rows)
	assert.Equal(t, parallelStats.Rows, parallelStats.Unchanged+parallelStats.Partial+parallelStats.Full)
}

func TestEngineSharedAcrossCallers(t *testing.T) {
	cat := b01992()
	rs := largeRowSet(t, cat, testutil.TestLargeRowCount)
	engine := NewEngine(WithWorkers(4))

	expected, _, err := NewEngine(WithWorkers(1)).Suppress(context.Background(), rs, cat, testutil.TestThreshold)
	require.NoError(t, err)

	testutil.AssertNoRaces(t, func() error {
		out, _, err := engine.Suppress(context.Background(), rs, cat, testutil.TestThreshold)
		if err != nil {
			return err
		}

		assert.Equal(t, expected, out)

		return nil
	}, 8)
}

func TestParallelCatalogError(t *testing.T) {
	cat := catalog.MustNew("t", []catalog.Variable{{Name: "a"}})

	rs := rowset.New([]string{"a", "missing"})
	for i := 0; i < 3000; i++ {
		require.NoError(t, rs.Append(fmt.Sprintf("g%d", i), ints(100, 1)))
	}

	_, _, err := NewEngine(WithWorkers(4)).Suppress(context.Background(), rs, cat, 6)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeCatalog))
}

func TestCancelledContext(t *testing.T) {
	cat := b01992()
	rs := largeRowSet(t, cat, 3000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewEngine(WithWorkers(4)).Suppress(ctx, rs, cat, 6)
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	cat := b01992()
	rs := buildRowSet(t, cat, map[string][]rowset.Value{
		"g1": ints(100, 50, 50, 50, 50, 50, 50, 50, 50),
		"g2": ints(6, 3, 3, 3, 3, 3, 3, 3, 3),
		"g3": ints(5, 2, 2, 2, 2, 2, 2, 2, 2),
	}, []string{"g1", "g2", "g3"})

	_, stats, err := NewEngine().Suppress(context.Background(), rs, cat, 6)
	require.NoError(t, err)

	assert.Equal(t, Stats{Rows: 3, Unchanged: 1, Partial: 1, Full: 1}, stats)
}
