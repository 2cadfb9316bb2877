// Package catalog holds the read-only variable metadata for one subject
// table: the variable list, each variable's indentation depth and the
// aggregation expression used to compute it.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kyleking/d3-pipeline/internal/errors"
)

// Variable describes one output column of a subject table
type Variable struct {
	Name                  string
	TableName             string
	Indentation           int
	ParentName            string
	AggregationExpression string
	Description           string
	Documentation         string
}

// Catalog is an ordered, name-sorted set of variables for a single table.
// It is a value object: once built it is never modified.
type Catalog struct {
	table     string
	variables []Variable
	index     map[string]int
}

// New builds a catalog from the given variables. Names are normalised to
// lower case and the result is sorted by name.
func New(table string, variables []Variable) (*Catalog, error) {
	if len(variables) == 0 {
		return nil, errors.Newf(errors.ErrTypeCatalog, "table %s has no variables", table).
			WithSuggestion("add rows to d3_variable_metadata for this table")
	}

	vars := make([]Variable, len(variables))
	copy(vars, variables)

	index := make(map[string]int, len(vars))

	for i := range vars {
		name := strings.ToLower(strings.TrimSpace(vars[i].Name))
		if name == "" {
			return nil, errors.Newf(errors.ErrTypeCatalog, "table %s has a variable with an empty name", table)
		}

		if vars[i].Indentation < 0 {
			return nil, errors.Newf(errors.ErrTypeCatalog,
				"variable %s has negative indentation %d", name, vars[i].Indentation)
		}

		if _, dup := index[name]; dup {
			return nil, errors.Newf(errors.ErrTypeCatalog, "duplicate variable %s in table %s", name, table)
		}

		vars[i].Name = name
		vars[i].ParentName = strings.ToLower(strings.TrimSpace(vars[i].ParentName))
		index[name] = i
	}

	sort.SliceStable(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })

	for i := range vars {
		index[vars[i].Name] = i
	}

	return &Catalog{
		table:     table,
		variables: vars,
		index:     index,
	}, nil
}

// MustNew is New for fixtures known to be valid
func MustNew(table string, variables []Variable) *Catalog {
	c, err := New(table, variables)
	if err != nil {
		panic(err)
	}

	return c
}

// Table returns the subject table name
func (c *Catalog) Table() string {
	return c.table
}

// Len returns the number of variables
func (c *Catalog) Len() int {
	return len(c.variables)
}

// Variables returns a copy of the ordered variable list
func (c *Catalog) Variables() []Variable {
	out := make([]Variable, len(c.variables))
	copy(out, c.variables)

	return out
}

// Names returns the variable names in catalog order
func (c *Catalog) Names() []string {
	names := make([]string, len(c.variables))
	for i, v := range c.variables {
		names[i] = v.Name
	}

	return names
}

// Lookup finds a variable by name, ignoring case
func (c *Catalog) Lookup(name string) (Variable, bool) {
	i, ok := c.index[strings.ToLower(name)]
	if !ok {
		return Variable{}, false
	}

	return c.variables[i], true
}

// Indentation returns the depth of the named variable
func (c *Catalog) Indentation(name string) (int, bool) {
	v, ok := c.Lookup(name)
	if !ok {
		return 0, false
	}

	return v.Indentation, true
}

// AtOrBelow returns the names of every variable whose indentation is at
// least depth, in catalog order. This is a flat cut across the whole
// listing, not a walk of one subtree.
func (c *Catalog) AtOrBelow(depth int) []string {
	var names []string

	for _, v := range c.variables {
		if v.Indentation >= depth {
			names = append(names, v.Name)
		}
	}

	return names
}

// Validate reports hierarchy inconsistencies that do not stop a run:
// a root with a parent, a missing parent, or a parent that is not exactly
// one level shallower.
func (c *Catalog) Validate() []string {
	var warnings []string

	for _, v := range c.variables {
		if v.Indentation == 0 {
			if v.ParentName != "" {
				warnings = append(warnings, fmt.Sprintf("%s: top-level variable has parent %s", v.Name, v.ParentName))
			}

			continue
		}

		if v.ParentName == "" {
			warnings = append(warnings, fmt.Sprintf("%s: indentation %d but no parent", v.Name, v.Indentation))
			continue
		}

		parent, ok := c.Lookup(v.ParentName)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s: parent %s not in table", v.Name, v.ParentName))
			continue
		}

		if parent.Indentation != v.Indentation-1 {
			warnings = append(warnings, fmt.Sprintf("%s: parent %s has indentation %d, expected %d",
				v.Name, parent.Name, parent.Indentation, v.Indentation-1))
		}
	}

	return warnings
}
