// Package compose builds the aggregation statement for a subject table.
//
// The statement aggregates a source relation to geoids through a spatial
// join with the geography lookup, then right-joins the result against every
// geoid in the lookup so that geoids without source rows still appear with
// zero in each column.
package compose

import (
	"fmt"
	"strings"

	"github.com/kyleking/d3-pipeline/internal/catalog"
	"github.com/kyleking/d3-pipeline/internal/rowset"
)

const (
	DefaultLookupRelation   = "shp.blockgeom2geoids20"
	DefaultGeometryColumn   = "geom"
	DefaultGeoIDArrayColumn = "geoids"
)

// Composer assembles statement text. The zero value is not usable; use New.
type Composer struct {
	lookup     string
	geometry   string
	geoidArray string
}

// Option configures a Composer
type Option func(*Composer)

// WithLookupRelation sets the geography-to-geoid lookup relation
func WithLookupRelation(relation string) Option {
	return func(c *Composer) {
		if relation != "" {
			c.lookup = relation
		}
	}
}

// WithGeometryColumn sets the geometry column shared by the source and lookup
func WithGeometryColumn(column string) Option {
	return func(c *Composer) {
		if column != "" {
			c.geometry = column
		}
	}
}

// WithGeoIDArrayColumn sets the lookup column holding each shape's geoids
func WithGeoIDArrayColumn(column string) Option {
	return func(c *Composer) {
		if column != "" {
			c.geoidArray = column
		}
	}
}

// New returns a Composer using the default lookup unless overridden
func New(opts ...Option) *Composer {
	c := &Composer{
		lookup:     DefaultLookupRelation,
		geometry:   DefaultGeometryColumn,
		geoidArray: DefaultGeoIDArrayColumn,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Compose renders the statement with the default lookup relation
func Compose(source string, variables []catalog.Variable) string {
	return New().Compose(source, variables)
}

// Columns returns the output column order: geoid, then each variable in
// the order given.
func Columns(variables []catalog.Variable) []string {
	cols := make([]string, 0, len(variables)+1)
	cols = append(cols, rowset.GeoIDColumn)

	for _, v := range variables {
		cols = append(cols, v.Name)
	}

	return cols
}

// OuterSelect renders the outer projection, defaulting every variable to 0
func (c *Composer) OuterSelect(variables []catalog.Variable) string {
	lines := make([]string, 0, len(variables)+1)
	lines = append(lines, "\tall_geoms."+rowset.GeoIDColumn)

	for _, v := range variables {
		lines = append(lines, fmt.Sprintf("\tCOALESCE(match_geoms.%s, 0) %s", v.Name, v.Name))
	}

	return strings.Join(lines, ",\n")
}

// InnerSelect renders one aggregate per variable. Expressions are copied
// verbatim; they come from curated metadata and are not escaped.
func (c *Composer) InnerSelect(variables []catalog.Variable) string {
	lines := make([]string, len(variables))

	for i, v := range variables {
		lines[i] = fmt.Sprintf("\t%s AS %s", v.AggregationExpression, v.Name)
	}

	return strings.Join(lines, ",\n")
}

// Compose renders the full aggregation statement for source
func (c *Composer) Compose(source string, variables []catalog.Variable) string {
	var b strings.Builder

	b.WriteString("SELECT\n")
	b.WriteString(indent(c.OuterSelect(variables), 1))
	b.WriteString("\nFROM\n")
	b.WriteString("\t(\n")

	unnest := fmt.Sprintf("\t\tSELECT unnest(%s) %s", c.geoidArray, rowset.GeoIDColumn)
	if len(variables) > 0 {
		b.WriteString(unnest + ",\n")
		b.WriteString(indent(c.InnerSelect(variables), 2))
		b.WriteString("\n")
	} else {
		b.WriteString(unnest + "\n")
	}

	b.WriteString("\t\tFROM\n")
	fmt.Fprintf(&b, "\t\t\t%s aa\n", source)
	b.WriteString("\t\t\t\tINNER JOIN\n")
	fmt.Fprintf(&b, "\t\t\t%s bb on st_intersects(aa.%s, bb.%s)\n", c.lookup, c.geometry, c.geometry)
	fmt.Fprintf(&b, "\t\tGROUP BY %s\n", rowset.GeoIDColumn)
	b.WriteString("\t) match_geoms\n")
	b.WriteString("\t\tRIGHT JOIN (\n")
	fmt.Fprintf(&b, "\t\t\tSELECT unnest(%s) %s FROM %s\n", c.geoidArray, rowset.GeoIDColumn, c.lookup)
	fmt.Fprintf(&b, "\t\t\tGROUP BY %s\n", rowset.GeoIDColumn)
	fmt.Fprintf(&b, "\t\t) all_geoms on all_geoms.%s = match_geoms.%s\n", rowset.GeoIDColumn, rowset.GeoIDColumn)

	return b.String()
}

func indent(s string, depth int) string {
	prefix := strings.Repeat("\t", depth)
	lines := strings.Split(s, "\n")

	for i, line := range lines {
		lines[i] = prefix + line
	}

	return strings.Join(lines, "\n")
}
