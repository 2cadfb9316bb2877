package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/kyleking/d3-pipeline/internal/catalog"
	"github.com/kyleking/d3-pipeline/internal/errors"
	"github.com/kyleking/d3-pipeline/internal/rowset"
	"github.com/kyleking/d3-pipeline/internal/storage"
)

// MockMetadataStore implements storage.MetadataStore over in-memory maps
type MockMetadataStore struct {
	mu sync.RWMutex

	tables    map[string]catalog.Table
	variables map[string][]catalog.Variable
	editions  map[string][]catalog.Edition
	errors    map[string]error
	calls     map[string]int
}

// MetadataOption is a functional option for configuring MockMetadataStore
type MetadataOption func(*MockMetadataStore)

// WithTable registers a table with its variables and editions
func WithTable(table catalog.Table, variables []catalog.Variable, editions ...catalog.Edition) MetadataOption {
	return func(m *MockMetadataStore) {
		m.tables[table.Name] = table
		m.variables[table.Name] = variables
		m.editions[table.Name] = editions
	}
}

// WithMetadataError makes the named method fail
func WithMetadataError(method string, err error) MetadataOption {
	return func(m *MockMetadataStore) {
		m.errors[method] = err
	}
}

// NewMockMetadataStore creates a new mock store with the given options
func NewMockMetadataStore(opts ...MetadataOption) *MockMetadataStore {
	m := &MockMetadataStore{
		tables:    make(map[string]catalog.Table),
		variables: make(map[string][]catalog.Variable),
		editions:  make(map[string][]catalog.Edition),
		errors:    make(map[string]error),
		calls:     make(map[string]int),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *MockMetadataStore) record(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[method]++

	return m.errors[method]
}

// GetTable returns the registered table
func (m *MockMetadataStore) GetTable(_ context.Context, name string) (*catalog.Table, error) {
	if err := m.record("GetTable"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[name]
	if !ok {
		return nil, errors.Newf(errors.ErrTypeNotFound, "table %s not found in d3_table_metadata", name)
	}

	return &t, nil
}

// GetVariables returns the registered variables
func (m *MockMetadataStore) GetVariables(_ context.Context, table string) ([]catalog.Variable, error) {
	if err := m.record("GetVariables"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.variables[table], nil
}

// GetEdition returns a registered edition by name
func (m *MockMetadataStore) GetEdition(_ context.Context, table, edition string) (*catalog.Edition, error) {
	if err := m.record("GetEdition"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.editions[table] {
		if e.Edition == edition {
			return &e, nil
		}
	}

	return nil, errors.NewEditionError(table, edition, "is not a valid edition")
}

// GetLatestEdition returns the registered edition that sorts last
func (m *MockMetadataStore) GetLatestEdition(_ context.Context, table string) (*catalog.Edition, error) {
	if err := m.record("GetLatestEdition"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *catalog.Edition

	for _, e := range m.editions[table] {
		if latest == nil || e.Edition > latest.Edition {
			latest = &e
		}
	}

	if latest == nil {
		return nil, errors.Newf(errors.ErrTypeMetadata, "'%s' has no editions available", table)
	}

	return latest, nil
}

// Close is a no-op
func (m *MockMetadataStore) Close() error {
	return nil
}

// CallCount returns how many times a method was called
func (m *MockMetadataStore) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.calls[method]
}

// MockSourceOpener implements storage.SourceOpener and storage.Aggregator.
// Aggregate returns the configured RowSet regardless of the query.
type MockSourceOpener struct {
	mu sync.Mutex

	Result   *rowset.RowSet
	OpenErr  error
	QueryErr error
	Opened   []string
	Queries  []string
	Closed   int
}

// OpenSource records the database name
func (m *MockSourceOpener) OpenSource(_ context.Context, dbname string) (storage.Aggregator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.OpenErr != nil {
		return nil, m.OpenErr
	}

	m.Opened = append(m.Opened, dbname)

	return m, nil
}

// Aggregate records the query and returns the configured result
func (m *MockSourceOpener) Aggregate(_ context.Context, query string, columns []string) (*rowset.RowSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Queries = append(m.Queries, query)

	if m.QueryErr != nil {
		return nil, m.QueryErr
	}

	if m.Result == nil {
		return rowset.New(columns), nil
	}

	return m.Result.Clone(), nil
}

// Close counts closes
func (m *MockSourceOpener) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed++

	return nil
}

// MockDeliverer implements storage.Deliverer and records every table
type MockDeliverer struct {
	mu sync.Mutex

	Tables map[string]*rowset.RowSet
	Err    error
}

// NewMockDeliverer creates an empty deliverer
func NewMockDeliverer() *MockDeliverer {
	return &MockDeliverer{Tables: make(map[string]*rowset.RowSet)}
}

// Deliver stores a copy of rs under schema.table
func (m *MockDeliverer) Deliver(_ context.Context, schema, table string, rs *rowset.RowSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}

	m.Tables[fmt.Sprintf("%s.%s", schema, table)] = rs.Clone()

	return nil
}

// Get returns a delivered table
func (m *MockDeliverer) Get(qualified string) (*rowset.RowSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, ok := m.Tables[qualified]

	return rs, ok
}

// MockPublisher implements storage.MetadataPublisher
type MockPublisher struct {
	mu sync.Mutex

	Published []string
	Err       error
}

// Publish records the table name
func (m *MockPublisher) Publish(_ context.Context, table catalog.Table, _ []catalog.Variable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}

	m.Published = append(m.Published, table.Name)

	return nil
}

var (
	_ storage.MetadataStore     = (*MockMetadataStore)(nil)
	_ storage.SourceOpener      = (*MockSourceOpener)(nil)
	_ storage.Aggregator        = (*MockSourceOpener)(nil)
	_ storage.Deliverer         = (*MockDeliverer)(nil)
	_ storage.MetadataPublisher = (*MockPublisher)(nil)
)
