package assembler

import (
	"fmt"

	"github.com/kyleking/d3-pipeline/internal/catalog"
)

// SourceMode selects where the base rows come from
type SourceMode interface {
	fmt.Stringer
	sourceMode()
}

// HollowSource produces the table shape with zero rows
type HollowSource struct{}

// LiveSource aggregates an edition. An empty Edition means the latest.
type LiveSource struct {
	Edition string
}

func (HollowSource) sourceMode() {}
func (LiveSource) sourceMode()   {}

func (HollowSource) String() string { return "hollow" }

func (s LiveSource) String() string {
	if s.Edition == "" {
		return "live(latest)"
	}

	return fmt.Sprintf("live(%s)", s.Edition)
}

// Hollow returns the hollow source mode
func Hollow() SourceMode {
	return HollowSource{}
}

// Live returns a live source mode for edition
func Live(edition string) SourceMode {
	return LiveSource{Edition: edition}
}

// SuppressionPolicy is resolved once per run from the table recipe
type SuppressionPolicy interface {
	fmt.Stringer
	suppressionPolicy()
}

// NoSuppression passes aggregated rows through untouched
type NoSuppression struct{}

// ThresholdPolicy mutes values strictly below N
type ThresholdPolicy struct {
	N int
}

func (NoSuppression) suppressionPolicy()   {}
func (ThresholdPolicy) suppressionPolicy() {}

func (NoSuppression) String() string { return "none" }

func (p ThresholdPolicy) String() string { return fmt.Sprintf("threshold(%d)", p.N) }

// PolicyFor reads the table's declared threshold
func PolicyFor(table catalog.Table) SuppressionPolicy {
	if n, ok := table.Threshold(); ok {
		return ThresholdPolicy{N: n}
	}

	return NoSuppression{}
}

// ResolvePolicy picks the suppression policy for one run. A hollow table
// has no rows, so it always passes through.
func ResolvePolicy(mode SourceMode, table catalog.Table) SuppressionPolicy {
	if _, ok := mode.(HollowSource); ok {
		return NoSuppression{}
	}

	return PolicyFor(table)
}
