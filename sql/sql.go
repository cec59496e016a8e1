// Package sql defines the small set of contracts the core consumes from its
// collaborators (spec §6): a Selectable, a Session, and a Cache, plus the
// closed Datatype set every sub-expression carries (spec §3).
package sql

import "fmt"

// Datatype is the closed set of scalar types a compiled expression can have.
type Datatype string

const (
	Str      Datatype = "str"
	Num      Datatype = "num"
	Bool     Datatype = "bool"
	Date     Datatype = "date"
	Datetime Datatype = "datetime"
	Unusable Datatype = "unusable"
)

func (d Datatype) String() string { return string(d) }

// Valid reports whether d is one of the known scalar datatypes (Unusable is
// "known but not supported", so it is valid as a value, just not usable in
// an expression).
func (d Datatype) Valid() bool {
	switch d {
	case Str, Num, Bool, Date, Datetime, Unusable:
		return true
	default:
		return false
	}
}

// Row is one result row, keyed by output field name. Field order is not
// part of the map. Session.Execute reports the column order alongside its
// rows; Recipe.All returns the rows only, without that order.
type Row map[string]interface{}

// Selectable is the contract the core consumes for anything it can select
// columns from: a table, a subquery, or a previously assembled Recipe
// exposing the columns of its outer SELECT (spec §3 Column Catalog).
type Selectable interface {
	// Name is the selectable's alias/table name, used to build namespaced
	// field names and as the default single-source identity.
	Name() string
	// Columns returns every column exposed by this selectable along with
	// its backend storage type name (e.g. "varchar", "int", "timestamp").
	Columns() []SelectableColumn
}

// SelectableColumn is one raw column as reported by a Selectable, before
// the catalog maps its storage type to a Datatype.
type SelectableColumn struct {
	Name        string
	StorageType string
	// SQLACol is an opaque backend reference (e.g. a column expression in
	// whatever query-builder the Session uses) the core round-trips back
	// to the Session unexamined.
	SQLACol interface{}
}

// Session is the relational-algebra execution collaborator the core
// hands an assembled query to (spec §6). Implementations own connection
// management, statement execution, and row materialization; the core
// never reaches inside.
type Session interface {
	// Drivername reports the backend dialect, e.g. "postgresql+psycopg2",
	// "sqlite", "bigquery", "mssql", "redshift+psycopg2" (spec §4.5).
	Drivername() string
	// Execute runs the given rendered SQL with positional args and returns
	// materialized rows plus the column order they were selected in.
	Execute(query string, args []interface{}) (rows []Row, columns []string, err error)
}

// Cache is the two-method contract the core consumes for both the parse
// tree cache (spec §4.3) and the shelf cache (spec §4.7). Any error from
// Get or Set must be swallowed by the caller; the core never fails a build
// because the cache misbehaved.
type Cache interface {
	Get(key string) (value interface{}, ok bool, err error)
	Set(key string, value interface{}) error
}

// NoopCache implements Cache by never storing anything. It lets the whole
// core run without any process-wide state, per spec §9 "Global caches".
type NoopCache struct{}

func (NoopCache) Get(string) (interface{}, bool, error) { return nil, false, nil }
func (NoopCache) Set(string, interface{}) error         { return nil }

// SafeGet calls c.Get and swallows any error, returning (nil, false) on
// failure so a misbehaving cache never blocks a build (spec §4.3).
func SafeGet(c Cache, key string) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	v, ok, err := c.Get(key)
	if err != nil {
		return nil, false
	}
	return v, ok
}

// SafeSet calls c.Set and swallows any error.
func SafeSet(c Cache, key string, value interface{}) {
	if c == nil {
		return
	}
	_ = c.Set(key, value)
}

func (d Datatype) GoString() string { return fmt.Sprintf("sql.Datatype(%q)", string(d)) }
