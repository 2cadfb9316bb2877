// Package suppression mutes small counts in an aggregated RowSet, along
// with every value at the same depth or deeper from which a muted count
// could be reconstructed.
package suppression

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/kyleking/d3-pipeline/internal/catalog"
	"github.com/kyleking/d3-pipeline/internal/errors"
	"github.com/kyleking/d3-pipeline/internal/rowset"
)

// Rows per task when fanning out. Small row sets run on the caller's goroutine.
const chunkSize = 512

// Stats summarises what happened to each row
type Stats struct {
	Rows      int
	Unchanged int
	Partial   int
	Full      int
}

// Engine applies suppression row by row, optionally in parallel
type Engine struct {
	workers int
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithWorkers bounds the number of goroutines. Zero uses GOMAXPROCS and
// one forces serial evaluation.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		e.workers = n
	}
}

// NewEngine creates an Engine
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}

	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}

	return e
}

// Suppress is Engine.Suppress with a serial engine and no stats
func Suppress(rs *rowset.RowSet, cat *catalog.Catalog, threshold int) (*rowset.RowSet, error) {
	out, _, err := NewEngine(WithWorkers(1)).Suppress(context.Background(), rs, cat, threshold)
	return out, err
}

// Suppress returns a new RowSet with the same geoids in the same order.
// The input is not modified. A pivot missing from the catalog fails the
// whole call so that unsuppressed data is never returned.
func (e *Engine) Suppress(ctx context.Context, rs *rowset.RowSet, cat *catalog.Catalog, threshold int) (*rowset.RowSet, Stats, error) {
	if threshold <= 0 {
		return nil, Stats{}, errors.Newf(errors.ErrTypeValidation, "suppression threshold must be positive, got %d", threshold)
	}

	if cat == nil {
		return nil, Stats{}, errors.New(errors.ErrTypeCatalog, "suppression requires variable metadata")
	}

	out := rowset.New(rs.Columns)
	out.Rows = make([]rowset.Row, len(rs.Rows))
	kinds := make([]Pivot, len(rs.Rows))

	process := func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			row := rs.Rows[i]
			p := FindPivot(rs.Columns, row.Values, threshold)

			muted, err := MuteRow(row, rs.Columns, cat, p)
			if err != nil {
				return err
			}

			out.Rows[i] = muted
			kinds[i] = p
		}

		return nil
	}

	if e.workers == 1 || len(rs.Rows) <= chunkSize {
		if err := process(0, len(rs.Rows)); err != nil {
			return nil, Stats{}, err
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers)

		for lo := 0; lo < len(rs.Rows); lo += chunkSize {
			hi := min(lo+chunkSize, len(rs.Rows))

			if gctx.Err() != nil {
				break
			}

			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}

				return process(lo, hi)
			})
		}

		if err := g.Wait(); err != nil {
			return nil, Stats{}, err
		}

		if err := ctx.Err(); err != nil {
			return nil, Stats{}, errors.Wrap(err, errors.ErrTypeExecution, "suppression cancelled")
		}
	}

	return out, summarise(kinds), nil
}

func summarise(kinds []Pivot) Stats {
	stats := Stats{Rows: len(kinds)}

	for _, k := range kinds {
		switch k.(type) {
		case AllAbove:
			stats.Unchanged++
		case AllBelow:
			stats.Full++
		case RightOn:
			stats.Partial++
		}
	}

	return stats
}
