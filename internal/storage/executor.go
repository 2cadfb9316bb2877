package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/kyleking/d3-pipeline/internal/config"
	"github.com/kyleking/d3-pipeline/internal/errors"
	"github.com/kyleking/d3-pipeline/internal/rowset"
)

// SQLExecutor runs aggregation statements and collects the RowSet
type SQLExecutor struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLExecutor wraps an open source connection
func NewSQLExecutor(db *sql.DB, timeout time.Duration) *SQLExecutor {
	return &SQLExecutor{db: db, timeout: timeout}
}

// Aggregate executes query and expects geoid followed by one numeric column
// per entry in columns. Errors are returned as-is without retry.
func (e *SQLExecutor) Aggregate(ctx context.Context, query string, columns []string) (*rowset.RowSet, error) {
	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeExecution, "aggregation query failed")
	}

	defer rows.Close()

	got, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeExecution, "failed to read result columns")
	}

	if len(got) != len(columns)+1 {
		return nil, errors.Newf(errors.ErrTypeExecution,
			"aggregation returned %d columns, expected %d", len(got), len(columns)+1)
	}

	rs := rowset.New(columns)
	seen := make(map[string]struct{})

	var (
		geoid sql.NullString
		raw   = make([]interface{}, len(columns))
		dest  = make([]interface{}, len(columns)+1)
	)

	dest[0] = &geoid
	for i := range raw {
		dest[i+1] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeExecution, "failed to scan aggregation row")
		}

		if !geoid.Valid {
			return nil, errors.New(errors.ErrTypeExecution, "aggregation returned a row without a geoid")
		}

		if _, dup := seen[geoid.String]; dup {
			return nil, errors.Newf(errors.ErrTypeExecution, "geoid %s returned more than once", geoid.String).
				WithSuggestion("check that each geoid belongs to exactly one shape in the geography lookup")
		}

		seen[geoid.String] = struct{}{}

		values := make([]rowset.Value, len(columns))
		for i, v := range raw {
			values[i], err = toValue(v)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrTypeExecution, "column %s for geoid %s", columns[i], geoid.String)
			}
		}

		if err := rs.Append(geoid.String, values); err != nil {
			return nil, err
		}
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeExecution, "aggregation query failed")
	}

	return rs, nil
}

// Close closes the source connection
func (e *SQLExecutor) Close() error {
	return e.db.Close()
}

// toValue integer-casts the driver's representation of a numeric cell.
// Postgres numeric arrives as text and DuckDB HUGEINT as *big.Int.
func toValue(v interface{}) (rowset.Value, error) {
	switch n := v.(type) {
	case nil:
		return rowset.Null(), nil
	case int64:
		return rowset.Int(n), nil
	case int32:
		return rowset.Int(int64(n)), nil
	case int:
		return rowset.Int(int64(n)), nil
	case uint64:
		if n > math.MaxInt64 {
			return rowset.Value{}, fmt.Errorf("value %d overflows int64", n)
		}

		return rowset.Int(int64(n)), nil
	case float64:
		return rowset.Int(int64(n)), nil
	case float32:
		return rowset.Int(int64(n)), nil
	case *big.Int:
		if !n.IsInt64() {
			return rowset.Value{}, fmt.Errorf("value %s overflows int64", n)
		}

		return rowset.Int(n.Int64()), nil
	case []byte:
		return parseNumber(string(n))
	case string:
		return parseNumber(n)
	default:
		return rowset.Value{}, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func parseNumber(s string) (rowset.Value, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return rowset.Int(i), nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return rowset.Value{}, fmt.Errorf("value %q is not numeric", s)
	}

	return rowset.Int(int64(f)), nil
}

// SQLSourceOpener opens source databases with the configured credentials
type SQLSourceOpener struct {
	cfg config.DatabaseConfig
}

// NewSQLSourceOpener creates an opener for the source connection settings
func NewSQLSourceOpener(cfg config.DatabaseConfig) *SQLSourceOpener {
	return &SQLSourceOpener{cfg: cfg}
}

// OpenSource connects to dbname and returns an executor that owns the connection
func (o *SQLSourceOpener) OpenSource(ctx context.Context, dbname string) (Aggregator, error) {
	db, err := Open(ctx, o.cfg, dbname)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to open source database %s", dbname)
	}

	return NewSQLExecutor(db, o.cfg.Timeout()), nil
}
