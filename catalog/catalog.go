package catalog

import (
	"fmt"
	"sort"

	"github.com/juiceinc/recipe/sql"
	"github.com/juiceinc/recipe/sql/types"
)

// ColCollection is an ordered list of Columns over one or more selectables,
// spec §4.1's "deterministic ColCollection".
type ColCollection struct {
	columns []Column
	// byFieldName indexes columns by their user-facing field name, the
	// lookup the validator/transformer use to resolve an identifier.
	byFieldName map[string]Column
	// byRuleName indexes columns by grammar terminal name.
	byRuleName map[string]Column
}

// Extra is an additional selectable folded into a catalog build, always
// carrying the namespace required to disambiguate equally named columns
// (spec §4.1: "Catalogs can be extended by another selectable with a
// required namespace").
type Extra struct {
	Selectable sql.Selectable
	Namespace  string
}

// Build introspects sel (and any extras) and produces a catalog whose
// indexes are deterministic given the same set of columns (spec §4.1,
// invariant 1 in spec §8).
func Build(sel sql.Selectable, extras ...Extra) (*ColCollection, error) {
	var cols []Column

	cols = append(cols, columnsFromSelectable(sel, "")...)
	for _, ex := range extras {
		if ex.Namespace == "" {
			return nil, fmt.Errorf("catalog: extra selectable %q requires a namespace", ex.Selectable.Name())
		}
		cols = append(cols, columnsFromSelectable(ex.Selectable, ex.Namespace)...)
	}

	cc := &ColCollection{columns: cols}
	cc.AssignIndexes()
	return cc, nil
}

func columnsFromSelectable(sel sql.Selectable, namespace string) []Column {
	var out []Column
	for _, raw := range sel.Columns() {
		if !isUsableName(raw.Name) {
			// Columns whose names do not match are silently omitted. Columns of
			// an unsupported storage type are kept as Unusable, so a field that
			// references one gets an unusable-column diagnostic.
			continue
		}
		dt := types.FromStorageType(raw.StorageType)
		out = append(out, Column{
			Datatype:  dt,
			Name:      raw.Name,
			Namespace: namespace,
			SQLACol:   raw.SQLACol,
		})
	}
	return out
}

// ConstantsBuilder builds a one-row selectable whose columns are the
// evaluated expressions of the constants carrying a parenthesized
// expression value. The core has no way to run such an expression itself
// (it would need to reach the session), so construction is delegated to
// the caller per spec §4.1.
type ConstantsBuilder interface {
	BuildConstantSelectable(exprs map[string]string) (sql.Selectable, error)
}

// WithConstants folds a map of {name: scalar-or-expression} into cc under
// the "constants" namespace (spec §4.1). A value is treated as an
// expression when it is a string containing both "(" and ")"; evaluating
// those requires builder to be non-nil.
func WithConstants(cc *ColCollection, constants map[string]interface{}, builder ConstantsBuilder) (*ColCollection, error) {
	var plain []Column
	exprNames := map[string]string{}

	names := make([]string, 0, len(constants))
	for name := range constants {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := constants[name]
		if s, ok := value.(string); ok && isExpression(s) {
			exprNames[name] = s
			continue
		}
		if !isUsableName(name) {
			continue
		}
		plain = append(plain, Column{
			Datatype:  datatypeOfScalar(value),
			Name:      name,
			Namespace: "constants",
			SQLACol:   value,
		})
	}

	if len(exprNames) > 0 {
		if builder == nil {
			return nil, fmt.Errorf("catalog: constants %v are expressions but no ConstantsBuilder was supplied", keysOf(exprNames))
		}
		exprSel, err := builder.BuildConstantSelectable(exprNames)
		if err != nil {
			return nil, err
		}
		plain = append(plain, columnsFromSelectable(exprSel, "constants")...)
	}

	merged := append(append([]Column{}, cc.columns...), plain...)
	out := &ColCollection{columns: merged}
	out.AssignIndexes()
	return out, nil
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func isExpression(s string) bool {
	hasOpen, hasClose := false, false
	for _, r := range s {
		if r == '(' {
			hasOpen = true
		}
		if r == ')' {
			hasClose = true
		}
	}
	return hasOpen && hasClose
}

func datatypeOfScalar(v interface{}) sql.Datatype {
	switch v.(type) {
	case string:
		return sql.Str
	case bool:
		return sql.Bool
	case int, int32, int64, float32, float64:
		return sql.Num
	default:
		return sql.Unusable
	}
}

// AssignIndexes sorts columns by (datatype, name) ascending and resets Idx
// per datatype, per spec §4.1. It is idempotent and must be re-run whenever
// the column set changes, since the grammar hash depends on it.
func (cc *ColCollection) AssignIndexes() {
	sort.SliceStable(cc.columns, func(i, j int) bool {
		a, b := cc.columns[i], cc.columns[j]
		if a.Datatype != b.Datatype {
			return a.Datatype < b.Datatype
		}
		return a.Name < b.Name
	})

	counters := map[sql.Datatype]int{}
	for i := range cc.columns {
		dt := cc.columns[i].Datatype
		cc.columns[i].Idx = counters[dt]
		counters[dt]++
	}

	cc.byFieldName = make(map[string]Column, len(cc.columns))
	cc.byRuleName = make(map[string]Column, len(cc.columns))
	for _, c := range cc.columns {
		cc.byFieldName[c.FieldName()] = c
		cc.byRuleName[c.RuleName()] = c
	}
}

// Columns returns the catalog's columns in their assigned, deterministic order.
func (cc *ColCollection) Columns() []Column { return cc.columns }

// ByFieldName looks up a column by its user-facing field name
// ("namespace.name" or "name").
func (cc *ColCollection) ByFieldName(name string) (Column, bool) {
	c, ok := cc.byFieldName[name]
	return c, ok
}

// ByRuleName looks up a column by its grammar terminal name ("num_3").
func (cc *ColCollection) ByRuleName(name string) (Column, bool) {
	c, ok := cc.byRuleName[name]
	return c, ok
}

// OfDatatype returns every column of the given datatype, in index order.
func (cc *ColCollection) OfDatatype(dt sql.Datatype) []Column {
	var out []Column
	for _, c := range cc.columns {
		if c.Datatype == dt {
			out = append(out, c)
		}
	}
	return out
}
