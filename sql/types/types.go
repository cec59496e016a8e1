// Package types maps backend storage type names to the core's closed
// Datatype set (spec §4.1).
package types

import (
	"strings"

	"github.com/juiceinc/recipe/sql"
)

// FromStorageType maps a backend column storage type name (as reported by
// sql.SelectableColumn.StorageType) to a sql.Datatype, per spec §4.1:
//
//	string-typed      -> str
//	integer or decimal -> num
//	boolean            -> bool
//	date-only          -> date
//	timestamp          -> datetime
//	anything else      -> unusable
func FromStorageType(storageType string) sql.Datatype {
	t := strings.ToLower(strings.TrimSpace(storageType))
	// Strip size/precision annotations, e.g. "varchar(255)", "decimal(10,2)".
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(t)

	switch {
	case containsAny(t, "char", "text", "string", "uuid", "enum"):
		return sql.Str
	case containsAny(t, "int", "serial", "decimal", "numeric", "float", "double", "real", "money"):
		return sql.Num
	case containsAny(t, "bool"):
		return sql.Bool
	case t == "date":
		return sql.Date
	case containsAny(t, "timestamp", "datetime"):
		return sql.Datetime
	default:
		return sql.Unusable
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
