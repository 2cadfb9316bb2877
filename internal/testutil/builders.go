package testutil

import (
	"fmt"

	"github.com/kyleking/d3-pipeline/internal/catalog"
	"github.com/kyleking/d3-pipeline/internal/rowset"
)

// TableOption is a functional option for configuring test tables
type TableOption func(*catalog.Table)

// WithThreshold sets the suppression threshold
func WithThreshold(n int) TableOption {
	return func(t *catalog.Table) {
		t.SuppressionThreshold = catalog.Threshold(n)
	}
}

// WithoutThreshold clears the suppression threshold
func WithoutThreshold() TableOption {
	return func(t *catalog.Table) {
		t.SuppressionThreshold = nil
	}
}

// NewTestTable creates a table recipe with sensible defaults
func NewTestTable(name string, opts ...TableOption) catalog.Table {
	t := catalog.Table{
		Name:                 name,
		Category:             TestCategory,
		Description:          TestDescription,
		DescriptionSimple:    TestDescriptionSimple,
		Universe:             TestUniverse,
		SubjectArea:          TestSubjectArea,
		SuppressionThreshold: catalog.Threshold(TestThreshold),
	}

	for _, opt := range opts {
		opt(&t)
	}

	return t
}

// NewTestVariables builds a total at depth 0 followed by n breakdowns at
// depth 1, named <table>001 onwards.
func NewTestVariables(table string, breakdowns int) []catalog.Variable {
	total := table + "001"
	vars := []catalog.Variable{{
		Name:                  total,
		TableName:             table,
		Indentation:           0,
		AggregationExpression: "COUNT(*)",
		Description:           "Total",
	}}

	for i := 2; i <= breakdowns+1; i++ {
		vars = append(vars, catalog.Variable{
			Name:                  fmt.Sprintf("%s%03d", table, i),
			TableName:             table,
			Indentation:           1,
			ParentName:            total,
			AggregationExpression: fmt.Sprintf("COUNT(*) FILTER(WHERE category = %d)", i),
			Description:           fmt.Sprintf("Category %d", i),
		})
	}

	return vars
}

// NewTestEdition creates an edition pointing at a source relation
func NewTestEdition(table, edition string) catalog.Edition {
	return catalog.Edition{
		TableName:      table,
		Edition:        edition,
		RawTableDB:     TestSourceDB,
		RawTableSchema: TestSourceSchema,
		RawTableName:   table + "_" + edition,
		TimeFrame:      catalog.TimeFramePresent,
	}
}

// NewTestRowSet builds a RowSet from geoid-to-values rows in the given order
func NewTestRowSet(columns []string, geoids []string, values [][]int64) *rowset.RowSet {
	rs := rowset.New(columns)

	for i, geoid := range geoids {
		row := make([]rowset.Value, len(values[i]))
		for j, n := range values[i] {
			row[j] = rowset.Int(n)
		}

		if err := rs.Append(geoid, row); err != nil {
			panic(err)
		}
	}

	return rs
}
