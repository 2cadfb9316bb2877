// Package assembler drives a single table build: resolve the recipe, pick
// the source rows, apply the suppression policy, then deliver the base and
// MOE tables and publish metadata.
package assembler

import (
	"context"
	"time"

	"github.com/kyleking/d3-pipeline/internal/catalog"
	"github.com/kyleking/d3-pipeline/internal/compose"
	"github.com/kyleking/d3-pipeline/internal/errors"
	"github.com/kyleking/d3-pipeline/internal/logging"
	"github.com/kyleking/d3-pipeline/internal/rowset"
	"github.com/kyleking/d3-pipeline/internal/storage"
	"github.com/kyleking/d3-pipeline/internal/suppression"
)

// DefaultSchema receives tables when no destination schema is requested
const DefaultSchema = "d3_present"

// Stage names a step of the build, reported through the stage hook
type Stage string

const (
	StageMetadata  Stage = "Reading metadata"
	StageAggregate Stage = "Aggregating"
	StageSuppress  Stage = "Suppressing"
	StageDeliver   Stage = "Delivering"
	StagePublish   Stage = "Publishing metadata"
)

// Request describes one build
type Request struct {
	Table             string
	Mode              SourceMode
	DestinationSchema string
	// NoUpdate reads metadata and publishes it without touching data
	NoUpdate bool
	// DryRun computes the result without delivering or publishing
	DryRun bool
}

// Result holds everything the build computed. It is returned alongside a
// delivery error so callers can still inspect the output.
type Result struct {
	Table     catalog.Table
	Edition   *catalog.Edition
	Catalog   *catalog.Catalog
	Schema    string
	Policy    SuppressionPolicy
	Query     string
	Raw       *rowset.RowSet
	Base      *rowset.RowSet
	MOE       *rowset.RowSet
	Stats     suppression.Stats
	Delivered bool
	Published bool
	// MetadataErr is set when publishing failed; the build still succeeds
	MetadataErr error
	Duration    time.Duration
}

// Assembler wires the build collaborators together
type Assembler struct {
	metadata      storage.MetadataStore
	sources       storage.SourceOpener
	deliverer     storage.Deliverer
	publisher     storage.MetadataPublisher
	composer      *compose.Composer
	engine        *suppression.Engine
	logger        *logging.Logger
	defaultSchema string
	onStage       func(Stage)
}

// Option configures an Assembler
type Option func(*Assembler)

// WithDeliverer sets the destination
func WithDeliverer(d storage.Deliverer) Option {
	return func(a *Assembler) {
		a.deliverer = d
	}
}

// WithPublisher enables metadata publishing after delivery
func WithPublisher(p storage.MetadataPublisher) Option {
	return func(a *Assembler) {
		a.publisher = p
	}
}

// WithComposer overrides the query composer
func WithComposer(c *compose.Composer) Option {
	return func(a *Assembler) {
		a.composer = c
	}
}

// WithEngine overrides the suppression engine
func WithEngine(e *suppression.Engine) Option {
	return func(a *Assembler) {
		a.engine = e
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(a *Assembler) {
		a.logger = l
	}
}

// WithDefaultSchema changes the schema used when a request names none
func WithDefaultSchema(schema string) Option {
	return func(a *Assembler) {
		if schema != "" {
			a.defaultSchema = schema
		}
	}
}

// WithStageHook is called as each stage starts
func WithStageHook(fn func(Stage)) Option {
	return func(a *Assembler) {
		a.onStage = fn
	}
}

// New creates an Assembler reading recipes from metadata and rows from sources
func New(metadata storage.MetadataStore, sources storage.SourceOpener, opts ...Option) *Assembler {
	a := &Assembler{
		metadata:      metadata,
		sources:       sources,
		composer:      compose.New(),
		engine:        suppression.NewEngine(),
		logger:        logging.GetLogger(),
		defaultSchema: DefaultSchema,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *Assembler) stage(s Stage) {
	a.logger.Debug(string(s))

	if a.onStage != nil {
		a.onStage(s)
	}
}

// Run performs the build described by req
func (a *Assembler) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if req.Mode == nil {
		req.Mode = Live("")
	}

	log := a.logger.WithFields(map[string]interface{}{
		"table": req.Table,
		"mode":  req.Mode.String(),
	})

	schema, err := a.resolveSchema(req)
	if err != nil {
		return nil, err
	}

	a.stage(StageMetadata)

	table, err := a.metadata.GetTable(ctx, req.Table)
	if err != nil {
		return nil, err
	}

	vars, err := a.metadata.GetVariables(ctx, table.Name)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.New(table.Name, vars)
	if err != nil {
		return nil, err
	}

	for _, warning := range cat.Validate() {
		log.Warnf("variable metadata: %s", warning)
	}

	result := &Result{
		Table:   *table,
		Catalog: cat,
		Schema:  schema,
		Policy:  ResolvePolicy(req.Mode, *table),
	}

	if live, ok := req.Mode.(LiveSource); ok {
		result.Edition, err = a.resolveEdition(ctx, table.Name, live.Edition)
		if err != nil {
			return nil, err
		}

		log = log.WithField("edition", result.Edition.Edition)
	}

	if req.NoUpdate {
		log.Info("Skipping data update")
		a.publish(ctx, log, result)
		result.Duration = time.Since(start)

		return result, nil
	}

	if err := a.assemble(ctx, log, req.Mode, result); err != nil {
		return nil, err
	}

	if req.DryRun {
		result.Duration = time.Since(start)
		return result, nil
	}

	if err := a.deliver(ctx, log, result); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	a.publish(ctx, log, result)
	result.Duration = time.Since(start)

	log.WithFields(map[string]interface{}{
		"schema":   schema,
		"rows":     result.Base.Len(),
		"duration": result.Duration.String(),
	}).Info("Table built")

	return result, nil
}

// Compose resolves the recipe and returns the aggregation statement
// without running it.
func (a *Assembler) Compose(ctx context.Context, tableName, edition string) (string, error) {
	table, err := a.metadata.GetTable(ctx, tableName)
	if err != nil {
		return "", err
	}

	vars, err := a.metadata.GetVariables(ctx, table.Name)
	if err != nil {
		return "", err
	}

	cat, err := catalog.New(table.Name, vars)
	if err != nil {
		return "", err
	}

	ed, err := a.resolveEdition(ctx, table.Name, edition)
	if err != nil {
		return "", err
	}

	return a.composer.Compose(ed.SourceRelation(), cat.Variables()), nil
}

func (a *Assembler) resolveSchema(req Request) (string, error) {
	if req.DestinationSchema != "" {
		return req.DestinationSchema, nil
	}

	if _, hollow := req.Mode.(HollowSource); hollow && !req.DryRun {
		return "", errors.NewConfigError("hollow tables require a destination schema", "destination-schema")
	}

	return a.defaultSchema, nil
}

func (a *Assembler) resolveEdition(ctx context.Context, table, edition string) (*catalog.Edition, error) {
	var (
		ed  *catalog.Edition
		err error
	)

	if edition == "" {
		ed, err = a.metadata.GetLatestEdition(ctx, table)
	} else {
		ed, err = a.metadata.GetEdition(ctx, table, edition)
	}

	if err != nil {
		return nil, err
	}

	if !ed.HasSource() {
		return nil, errors.NewEditionError(table, ed.Edition, "has no source database or schema")
	}

	return ed, nil
}

// assemble fills Raw, Base, MOE and Stats
func (a *Assembler) assemble(ctx context.Context, log *logging.Logger, mode SourceMode, result *Result) error {
	switch m := mode.(type) {
	case HollowSource:
		result.Raw = rowset.New(result.Catalog.Names())
	case LiveSource:
		raw, query, err := a.aggregate(ctx, result.Edition, result.Catalog)
		if err != nil {
			return err
		}

		result.Raw = raw
		result.Query = query
	default:
		return errors.Newf(errors.ErrTypeInternal, "unknown source mode %s", m)
	}

	switch p := result.Policy.(type) {
	case ThresholdPolicy:
		a.stage(StageSuppress)

		base, stats, err := a.engine.Suppress(ctx, result.Raw, result.Catalog, p.N)
		if err != nil {
			return err
		}

		result.Base = base
		result.Stats = stats

		log.WithFields(map[string]interface{}{
			"threshold": p.N,
			"unchanged": stats.Unchanged,
			"partial":   stats.Partial,
			"full":      stats.Full,
		}).Info("Suppression applied")
	default:
		result.Base = result.Raw.Clone()
		result.Stats = suppression.Stats{Rows: result.Base.Len(), Unchanged: result.Base.Len()}
	}

	result.MOE = result.Base.WithMOE()

	return nil
}

func (a *Assembler) aggregate(ctx context.Context, ed *catalog.Edition, cat *catalog.Catalog) (*rowset.RowSet, string, error) {
	a.stage(StageAggregate)

	query := a.composer.Compose(ed.SourceRelation(), cat.Variables())

	agg, err := a.sources.OpenSource(ctx, ed.RawTableDB)
	if err != nil {
		return nil, query, err
	}
	defer agg.Close()

	raw, err := agg.Aggregate(ctx, query, cat.Names())
	if err != nil {
		return nil, query, err
	}

	return raw, query, nil
}

func (a *Assembler) deliver(ctx context.Context, log *logging.Logger, result *Result) error {
	if a.deliverer == nil {
		return errors.New(errors.ErrTypeConfig, "no destination configured")
	}

	a.stage(StageDeliver)

	name := result.Table.Name

	if err := a.deliverer.Deliver(ctx, result.Schema, name, result.Base); err != nil {
		return errors.Wrapf(err, errors.ErrTypeDelivery, "failed to deliver %s.%s", result.Schema, name)
	}

	moe := name + rowset.MOESuffix
	if err := a.deliverer.Deliver(ctx, result.Schema, moe, result.MOE); err != nil {
		return errors.Wrapf(err, errors.ErrTypeDelivery, "failed to deliver %s.%s", result.Schema, moe)
	}

	result.Delivered = true

	log.WithField("schema", result.Schema).Debug("Delivered base and MOE tables")

	return nil
}

func (a *Assembler) publish(ctx context.Context, log *logging.Logger, result *Result) {
	if a.publisher == nil {
		return
	}

	a.stage(StagePublish)

	if err := a.publisher.Publish(ctx, result.Table, result.Catalog.Variables()); err != nil {
		log.WithError(err).Warn("Failed to publish table metadata")
		result.MetadataErr = err

		return
	}

	result.Published = true
}
