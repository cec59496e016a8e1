// Package catalog builds the typed, ordered Column Catalog the grammar
// builder and transformer consume (spec §4.1, component C1).
package catalog

import (
	"fmt"
	"regexp"

	"github.com/juiceinc/recipe/sql"
)

// validColumnName matches spec §3: "Column names must match [A-Za-z0-9_]+".
var validColumnName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Column is a named, typed handle into a backing selectable.
type Column struct {
	Datatype  sql.Datatype
	Name      string
	Namespace string // "" when this column has no namespace
	SQLACol   interface{}
	Idx       int // assigned by AssignIndexes, stable within one (datatype) bucket
}

// RuleName is this column's grammar terminal name, spec §3: "{datatype}_{idx}".
func (c Column) RuleName() string {
	return fmt.Sprintf("%s_%d", c.Datatype, c.Idx)
}

// FieldName is the user-facing name a formula references this column by.
func (c Column) FieldName() string {
	if c.Namespace != "" {
		return c.Namespace + "." + c.Name
	}
	return c.Name
}

func isUsableName(name string) bool {
	return validColumnName.MatchString(name)
}
