package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/kyleking/d3-pipeline/internal/errors"
	"github.com/kyleking/d3-pipeline/internal/rowset"
)

const (
	defaultBatchSize = 500

	// maxBindParams is the most placeholders Postgres accepts in one statement
	maxBindParams = 65535
)

// SQLDeliverer writes RowSets to the destination database
type SQLDeliverer struct {
	db        *sql.DB
	batchSize int
}

// NewSQLDeliverer wraps an open destination connection
func NewSQLDeliverer(db *sql.DB, batchSize int) *SQLDeliverer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &SQLDeliverer{db: db, batchSize: batchSize}
}

// DB exposes the destination connection, shared with the metadata publisher
func (d *SQLDeliverer) DB() *sql.DB {
	return d.db
}

// Deliver replaces schema.table with rs in one transaction. A failure
// leaves any previous table untouched.
func (d *SQLDeliverer) Deliver(ctx context.Context, schema, table string, rs *rowset.RowSet) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDelivery, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	qualified := pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)

	statements := []string{
		"CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(schema),
		"DROP TABLE IF EXISTS " + qualified,
		createTableSQL(qualified, rs.Columns),
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, errors.ErrTypeDelivery, "failed to replace %s.%s", schema, table)
		}
	}

	batch := rowsPerStatement(d.batchSize, len(rs.Header()))

	for lo := 0; lo < len(rs.Rows); lo += batch {
		hi := min(lo+batch, len(rs.Rows))

		stmt, args := insertSQL(qualified, rs, rs.Rows[lo:hi])
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return errors.Wrapf(err, errors.ErrTypeDelivery, "failed to insert rows %d-%d into %s.%s", lo, hi, schema, table)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, errors.ErrTypeDelivery, "failed to commit %s.%s", schema, table)
	}

	return nil
}

// rowsPerStatement caps batchSize so one INSERT stays within maxBindParams
func rowsPerStatement(batchSize, columns int) int {
	if columns <= 0 {
		return max(batchSize, 1)
	}

	return max(min(batchSize, maxBindParams/columns), 1)
}

func createTableSQL(qualified string, columns []string) string {
	defs := make([]string, 0, len(columns)+1)
	defs = append(defs, pq.QuoteIdentifier(rowset.GeoIDColumn)+" TEXT")

	for _, c := range columns {
		defs = append(defs, pq.QuoteIdentifier(c)+" BIGINT")
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", qualified, strings.Join(defs, ", "))
}

func insertSQL(qualified string, rs *rowset.RowSet, rows []rowset.Row) (string, []interface{}) {
	header := rs.Header()

	quoted := make([]string, len(header))
	for i, c := range header {
		quoted[i] = pq.QuoteIdentifier(c)
	}

	args := make([]interface{}, 0, len(rows)*len(header))
	tuples := make([]string, len(rows))
	placeholders := make([]string, len(header))

	for r, row := range rows {
		for i := range header {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+i+1)
		}

		tuples[r] = "(" + strings.Join(placeholders, ", ") + ")"

		args = append(args, row.GeoID)
		for _, v := range row.Values {
			if v.Valid {
				args = append(args, v.Int)
			} else {
				args = append(args, nil)
			}
		}
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", qualified, strings.Join(quoted, ", "), strings.Join(tuples, ", "))

	return stmt, args
}
