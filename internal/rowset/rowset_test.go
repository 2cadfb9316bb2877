package rowset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/d3-pipeline/internal/errors"
)

func TestValue(t *testing.T) {
	assert.Equal(t, "0", Int(0).String())
	assert.Equal(t, "42", Int(42).String())
	assert.Equal(t, "", Null().String())
	assert.NotEqual(t, Int(0), Null())
}

func TestAppend(t *testing.T) {
	rs := New([]string{"v1", "v2"})

	require.NoError(t, rs.Append("26163", []Value{Int(1), Int(2)}))

	err := rs.Append("26125", []Value{Int(1)})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
	assert.Contains(t, err.Error(), "row 26125 has 1 values, expected 2")

	assert.Equal(t, 1, rs.Len())
	assert.Equal(t, []string{"26163"}, rs.GeoIDs())
}

func TestNewCopiesColumns(t *testing.T) {
	cols := []string{"v1"}
	rs := New(cols)
	cols[0] = "changed"

	assert.Equal(t, []string{"v1"}, rs.Columns)
}

func TestHeaderAndColumnIndex(t *testing.T) {
	rs := New([]string{"b01980001", "b01980002"})

	assert.Equal(t, []string{"geoid", "b01980001", "b01980002"}, rs.Header())
	assert.Equal(t, 1, rs.ColumnIndex("b01980002"))
	assert.Equal(t, -1, rs.ColumnIndex("geoid"))
}

func TestClone(t *testing.T) {
	rs := New([]string{"v1"})
	require.NoError(t, rs.Append("a", []Value{Int(5)}))

	clone := rs.Clone()
	clone.Rows[0].Values[0] = Null()
	clone.Columns[0] = "x"

	assert.Equal(t, Int(5), rs.Rows[0].Values[0])
	assert.Equal(t, "v1", rs.Columns[0])
}

func TestWithMOE(t *testing.T) {
	rs := New([]string{"b2", "a1"})
	require.NoError(t, rs.Append("g1", []Value{Int(20), Null()}))
	require.NoError(t, rs.Append("g2", []Value{Int(0), Int(7)}))

	moe := rs.WithMOE()

	assert.Equal(t, []string{"geoid", "a1", "a1_moe", "b2", "b2_moe"}, moe.Header())
	require.Equal(t, 2, moe.Len())

	assert.Equal(t, "g1", moe.Rows[0].GeoID)
	assert.Equal(t, []Value{Null(), Null(), Int(20), Null()}, moe.Rows[0].Values)
	assert.Equal(t, []Value{Int(7), Null(), Int(0), Null()}, moe.Rows[1].Values)
}

func TestWithMOEHollow(t *testing.T) {
	moe := New([]string{"v1"}).WithMOE()

	assert.Equal(t, []string{"geoid", "v1", "v1_moe"}, moe.Header())
	assert.Equal(t, 0, moe.Len())
}
