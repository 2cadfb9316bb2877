package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/d3-pipeline/internal/catalog"
	"github.com/kyleking/d3-pipeline/internal/errors"
	"github.com/kyleking/d3-pipeline/internal/storage"
)

func childcare() (catalog.Table, []catalog.Variable) {
	table := catalog.Table{
		Name:                 "b01980",
		Description:          "Licensed childcare providers and capacity",
		SuppressionThreshold: catalog.Threshold(6),
	}

	vars := []catalog.Variable{
		{Name: "b01980001", Indentation: 0, AggregationExpression: "COUNT(*)", Description: "Total"},
		{Name: "b01980002", Indentation: 1, ParentName: "b01980001",
			AggregationExpression: "COUNT(*) FILTER(WHERE license_type like 'Licensed Centers')", Description: "Centers"},
	}

	return table, vars
}

func TestRunQuery(t *testing.T) {
	store, cleanup := storage.NewTestDB(t)
	defer cleanup()

	table, vars := childcare()
	storage.SeedTable(t, store.DB(), table, vars,
		catalog.Edition{Edition: "2022", RawTableDB: "edw", RawTableSchema: "mdhhs", RawTableName: "childcare_2022"},
		catalog.Edition{Edition: "2023", RawTableDB: "edw", RawTableSchema: "mdhhs", RawTableName: "childcare_2023"},
	)

	tests := []struct {
		name     string
		table    string
		edition  string
		wantErr  errors.ErrorType
		contains []string
	}{
		{
			name:  "latest edition",
			table: "b01980",
			contains: []string{
				"mdhhs.childcare_2023 aa",
				"COALESCE(match_geoms.b01980001, 0) b01980001",
				"COUNT(*) FILTER(WHERE license_type like 'Licensed Centers') AS b01980002",
				"shp.blockgeom2geoids20 bb on st_intersects(aa.geom, bb.geom)",
			},
		},
		{
			name:     "explicit edition",
			table:    "b01980",
			edition:  "2022",
			contains: []string{"mdhhs.childcare_2022 aa"},
		},
		{
			name:    "unknown table",
			table:   "b09999",
			wantErr: errors.ErrTypeNotFound,
		},
		{
			name:    "unknown edition",
			table:   "b01980",
			edition: "2019",
			wantErr: errors.ErrTypeMetadata,
		},
		{
			name:    "empty table",
			wantErr: errors.ErrTypeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := runQueryWithStore(context.Background(), &buf, testConfig(), tt.table, tt.edition, store)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, tt.wantErr), "got %v", err)

				return
			}

			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(buf.String(), "SELECT\n"))

			for _, expected := range tt.contains {
				assert.Contains(t, buf.String(), expected)
			}
		})
	}
}
