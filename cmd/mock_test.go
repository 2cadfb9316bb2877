package cmd

import (
	"github.com/kyleking/d3-pipeline/internal/catalog"
	"github.com/kyleking/d3-pipeline/internal/config"
	"github.com/kyleking/d3-pipeline/internal/testutil"
)

// mockDeps wires testutil fakes into pipelineDeps and keeps handles on
// them for assertions.
type mockDeps struct {
	*pipelineDeps
	metadata  *testutil.MockMetadataStore
	sources   *testutil.MockSourceOpener
	deliverer *testutil.MockDeliverer
	publisher *testutil.MockPublisher
}

func newMockDeps(table catalog.Table, editions ...catalog.Edition) *mockDeps {
	m := &mockDeps{
		metadata: testutil.NewMockMetadataStore(
			testutil.WithTable(table, testutil.NewTestVariables(table.Name, 3), editions...)),
		sources: &testutil.MockSourceOpener{
			Result: testutil.NewTestRowSet(
				[]string{table.Name + "001", table.Name + "002", table.Name + "003", table.Name + "004"},
				[]string{"26163", "26125"},
				[][]int64{
					{120, 40, 40, 40},
					{7, 3, 2, 2},
				}),
		},
		deliverer: testutil.NewMockDeliverer(),
		publisher: &testutil.MockPublisher{},
	}

	m.pipelineDeps = &pipelineDeps{
		metadata:  m.metadata,
		sources:   m.sources,
		deliverer: m.deliverer,
		publisher: m.publisher,
	}

	return m
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Suppression.Workers = 1

	return cfg
}
