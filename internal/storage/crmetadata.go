package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"

	"github.com/kyleking/d3-pipeline/internal/catalog"
	"github.com/kyleking/d3-pipeline/internal/errors"
)

// CRTable is a row of census.census_table_metadata
type CRTable struct {
	TableID             string
	TableTitle          string
	SimpleTableTitle    string
	SubjectArea         string
	Universe            string
	DenominatorColumnID string
	Topics              []string
}

// CRColumn is a row of census.census_column_metadata
type CRColumn struct {
	LineNumber     int
	Indent         int
	TableID        string
	ColumnID       string
	ColumnTitle    string
	ParentColumnID string
}

// CRTabulation is a row of census_tabulation_metadata
type CRTabulation struct {
	TabulationCode   string
	TableTitle       string
	SimpleTableTitle string
	SubjectArea      string
	Universe         string
	Topics           []string
	Weight           int
	TablesInOneYr    []string
	TablesInThreeYr  []string
	TablesInFiveYr   []string
}

// NewCRTable translates a table recipe header
func NewCRTable(t catalog.Table) CRTable {
	return CRTable{
		TableID:             strings.ToUpper(t.Name),
		TableTitle:          t.Description,
		SimpleTableTitle:    t.DescriptionSimple,
		SubjectArea:         t.SubjectArea,
		Universe:            t.Universe,
		DenominatorColumnID: t.Name + "001",
		Topics:              t.TopicList(),
	}
}

// NewCRColumns translates variables, numbering lines from 1 in the given order
func NewCRColumns(variables []catalog.Variable) []CRColumn {
	columns := make([]CRColumn, len(variables))

	for i, v := range variables {
		columns[i] = CRColumn{
			LineNumber:     i + 1,
			Indent:         v.Indentation,
			TableID:        strings.ToUpper(v.TableName),
			ColumnID:       strings.ToUpper(v.Name),
			ColumnTitle:    v.Description,
			ParentColumnID: v.ParentName,
		}
	}

	return columns
}

// NewCRTabulation translates a table into its tabulation entry. The code is
// the table name without its leading letter.
func NewCRTabulation(t catalog.Table) CRTabulation {
	code := t.Name
	if len(code) > 0 {
		code = code[1:]
	}

	return CRTabulation{
		TabulationCode:   code,
		TableTitle:       t.Description,
		SimpleTableTitle: t.DescriptionSimple,
		SubjectArea:      t.SubjectArea,
		Universe:         t.Universe,
		Topics:           t.TopicList(),
		Weight:           0,
		TablesInOneYr:    []string{},
		TablesInThreeYr:  []string{},
		TablesInFiveYr:   []string{strings.ToUpper(t.Name)},
	}
}

const (
	insertCRTableSQL = `
		INSERT INTO census.census_table_metadata (
			table_id, table_title, simple_table_title, subject_area, universe,
			denominator_column_id, topics
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (table_id) DO NOTHING`

	insertCRColumnSQL = `
		INSERT INTO census.census_column_metadata (
			line_number, indent, table_id, column_id, column_title, parent_column_id
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (column_id) DO NOTHING`

	insertCRTabulationSQL = `
		INSERT INTO census_tabulation_metadata (
			tabulation_code, table_title, simple_table_title, subject_area, universe,
			topics, weight, tables_in_one_yr, tables_in_three_yr, tables_in_five_yr
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tabulation_code) DO NOTHING`
)

// CRPublisher inserts Census Reporter metadata on the destination database.
// Existing rows are left as they are.
type CRPublisher struct {
	db *sql.DB
}

// NewCRPublisher wraps an open destination connection
func NewCRPublisher(db *sql.DB) *CRPublisher {
	return &CRPublisher{db: db}
}

// Publish writes the table, column and tabulation entries in one transaction
func (p *CRPublisher) Publish(ctx context.Context, table catalog.Table, variables []catalog.Variable) error {
	crTable := NewCRTable(table)
	crColumns := NewCRColumns(variables)
	crTabulation := NewCRTabulation(table)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to begin metadata transaction")
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, insertCRTableSQL,
		crTable.TableID, crTable.TableTitle, crTable.SimpleTableTitle, crTable.SubjectArea,
		crTable.Universe, crTable.DenominatorColumnID, pq.Array(crTable.Topics))
	if err != nil {
		return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to publish table metadata for %s", crTable.TableID)
	}

	for _, c := range crColumns {
		_, err = tx.ExecContext(ctx, insertCRColumnSQL,
			c.LineNumber, c.Indent, c.TableID, c.ColumnID, c.ColumnTitle, nullString(c.ParentColumnID))
		if err != nil {
			return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to publish column metadata for %s", c.ColumnID)
		}
	}

	_, err = tx.ExecContext(ctx, insertCRTabulationSQL,
		crTabulation.TabulationCode, crTabulation.TableTitle, crTabulation.SimpleTableTitle,
		crTabulation.SubjectArea, crTabulation.Universe, pq.Array(crTabulation.Topics), crTabulation.Weight,
		pq.Array(crTabulation.TablesInOneYr), pq.Array(crTabulation.TablesInThreeYr), pq.Array(crTabulation.TablesInFiveYr))
	if err != nil {
		return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to publish tabulation metadata for %s", crTabulation.TabulationCode)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to commit metadata")
	}

	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}

	return s
}
