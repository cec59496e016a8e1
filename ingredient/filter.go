package ingredient

import (
	"fmt"
	"sort"

	"github.com/juiceinc/recipe/dateutil"
	"github.com/juiceinc/recipe/expression"
	"github.com/juiceinc/recipe/sql"
)

// BuildFilter builds a boolean expression for value against this
// ingredient's filter column (targetRole when given, otherwise its first
// column: the "id" role if the Dimension has one, else "value"), choosing a scalar or vector comparison by the shape of value
// (spec §4.6's build_filter, used by the AutomaticFilters extension).
// A Metric's BuildFilter returns a Having ingredient rather than a raw
// expression, since a Metric's column is an aggregate
// (original_source/recipe/ingredients.py's Metric.build_filter).
func (ing *Ingredient) BuildFilter(value interface{}, operator, targetRole string) (*Ingredient, error) {
	expr, err := ing.FilterExpression(value, operator, targetRole)
	if err != nil {
		return nil, err
	}
	if ing.Kind == KindMetric {
		return NewHaving(expr), nil
	}
	return NewFilter(expr), nil
}

// FilterExpression is BuildFilter's raw expression, exposed so callers
// that need to combine several ingredients' filter conditions (the
// Paginate extension's multi-column search, for one) can compose them
// before wrapping the result in a Filter/Having ingredient.
func (ing *Ingredient) FilterExpression(value interface{}, operator, targetRole string) (expression.Expression, error) {
	col, dt, err := ing.filterColumn(targetRole)
	if err != nil {
		return nil, err
	}
	if values, isVector := asSlice(value); isVector {
		return ing.buildVectorFilter(col, dt, values, operator)
	}
	return ing.buildScalarFilter(col, dt, value, operator)
}

func (ing *Ingredient) filterColumn(targetRole string) (expression.Expression, sql.Datatype, error) {
	if targetRole != "" {
		if col, ok := ing.Roles[targetRole]; ok {
			return col, ing.DatatypeByRole[targetRole], nil
		}
	}
	cols := ing.columns()
	if len(cols) == 0 {
		return nil, "", fmt.Errorf("ingredient %s has no column to filter against", ing.ID)
	}
	return cols[0], ing.Datatype, nil
}

func asSlice(value interface{}) ([]interface{}, bool) {
	switch v := value.(type) {
	case []interface{}:
		return v, true
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(v))
		for i, f := range v {
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

// coerceFilterValue parses a date/datetime scalar passed as a string
// through C5's date primitives before it is inserted into a Literal
// (spec §4.6: "Date/datetime values are parsed via C5's date primitives
// before being inserted").
func coerceFilterValue(dt sql.Datatype, value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	switch dt {
	case sql.Date:
		d, err := dateutil.ParseDate(s)
		if err != nil {
			return nil, err
		}
		return d.Time(), nil
	case sql.Datetime:
		t, err := dateutil.ParseDatetime(s)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return value, nil
}

// castColumnForValue wraps col in a cast to string when value is a
// string being compared against a non-str column (spec §4.6: "Strings
// compared to non-str columns cause the column to be cast to string"),
// returning the (possibly wrapped) column and the datatype the literal
// should carry.
func castColumnForValue(col expression.Expression, dt sql.Datatype, value interface{}) (expression.Expression, sql.Datatype) {
	if dt == sql.Str {
		return col, dt
	}
	if _, ok := value.(string); !ok {
		return col, dt
	}
	return &expression.Cast{DT: sql.Str, Expr: col, Type: "TEXT"}, sql.Str
}

func (ing *Ingredient) buildScalarFilter(col expression.Expression, dt sql.Datatype, value interface{}, operator string) (expression.Expression, error) {
	if operator == "" {
		operator = "eq"
	}
	if operator == "quickselect" {
		name, _ := value.(string)
		for _, qs := range ing.QuickSelects {
			if qs.Name == name {
				return qs.Condition, nil
			}
		}
		return nil, fmt.Errorf("quickselect %v was not found in ingredient %s", value, ing.ID)
	}

	if value != nil {
		v, err := coerceFilterValue(dt, value)
		if err != nil {
			return nil, err
		}
		value = v
	}
	litDT := dt
	if value != nil {
		col, litDT = castColumnForValue(col, dt, value)
	}
	lit := &expression.Literal{DT: litDT, Value: value}

	switch operator {
	case "eq":
		if value == nil {
			return &expression.IsNull{Expr: col}, nil
		}
		return &expression.Binary{DT: sql.Bool, Op: "=", LHS: col, RHS: lit}, nil
	case "ne":
		return &expression.Binary{DT: sql.Bool, Op: "!=", LHS: col, RHS: lit}, nil
	case "lt":
		return &expression.Binary{DT: sql.Bool, Op: "<", LHS: col, RHS: lit}, nil
	case "lte":
		return &expression.Binary{DT: sql.Bool, Op: "<=", LHS: col, RHS: lit}, nil
	case "gt":
		return &expression.Binary{DT: sql.Bool, Op: ">", LHS: col, RHS: lit}, nil
	case "gte":
		return &expression.Binary{DT: sql.Bool, Op: ">=", LHS: col, RHS: lit}, nil
	case "is":
		return &expression.IsNull{Expr: col}, nil
	case "isnot":
		return &expression.IsNull{Expr: col, Not: true}, nil
	case "like":
		return &expression.Binary{DT: sql.Bool, Op: "LIKE", LHS: col, RHS: lit}, nil
	case "ilike":
		return &expression.Binary{DT: sql.Bool, Op: "ILIKE", LHS: col, RHS: lit}, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", operator)
	}
}

func (ing *Ingredient) buildVectorFilter(col expression.Expression, dt sql.Datatype, values []interface{}, operator string) (expression.Expression, error) {
	if operator == "" {
		operator = "in"
	}

	if operator == "quickselect" {
		var conds []expression.Expression
		for _, v := range values {
			name, _ := v.(string)
			found := false
			for _, qs := range ing.QuickSelects {
				if qs.Name == name {
					conds = append(conds, qs.Condition)
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("quickselect %v was not found in ingredient %s", values, ing.ID)
			}
		}
		return orAll(conds), nil
	}

	if operator == "between" {
		if len(values) != 2 {
			return nil, fmt.Errorf("between requires exactly a lower and upper bound")
		}
		lo, err := coerceFilterValue(dt, values[0])
		if err != nil {
			return nil, err
		}
		hi, err := coerceFilterValue(dt, values[1])
		if err != nil {
			return nil, err
		}
		betweenCol, litDT := col, dt
		if _, ok := lo.(string); ok && dt != sql.Str {
			betweenCol, litDT = castColumnForValue(col, dt, lo)
		} else if _, ok := hi.(string); ok && dt != sql.Str {
			betweenCol, litDT = castColumnForValue(col, dt, hi)
		}
		return &expression.Between{
			Expr: betweenCol,
			Low:  &expression.Literal{DT: litDT, Value: lo},
			High: &expression.Literal{DT: litDT, Value: hi},
		}, nil
	}

	hasNil, rest := splitNil(values)
	for i, v := range rest {
		cv, err := coerceFilterValue(dt, v)
		if err != nil {
			return nil, err
		}
		rest[i] = cv
	}
	sortScalars(rest)

	// Empty value list: spec §8 boundary behavior — "Empty value list
	// produces WHERE 1!=1" (and its NOT IN mirror is vacuously true).
	if len(rest) == 0 && !hasNil {
		switch operator {
		case "in":
			return &expression.Raw{DT: sql.Bool, Text: "1!=1"}, nil
		case "notin":
			return &expression.Raw{DT: sql.Bool, Text: "1=1"}, nil
		}
	}

	itemsCol, litDT := col, dt
	for _, v := range rest {
		if _, ok := v.(string); ok && dt != sql.Str {
			itemsCol, litDT = castColumnForValue(col, dt, v)
			break
		}
	}
	items := make([]expression.Expression, len(rest))
	for i, v := range rest {
		items[i] = &expression.Literal{DT: litDT, Value: v}
	}
	col = itemsCol

	switch operator {
	case "in":
		inExpr := &expression.InList{Expr: col, Items: items}
		if !hasNil {
			return inExpr, nil
		}
		if len(rest) == 0 {
			return &expression.IsNull{Expr: col}, nil
		}
		return &expression.Binary{DT: sql.Bool, Op: "OR", LHS: &expression.IsNull{Expr: col}, RHS: inExpr}, nil
	case "notin":
		notInExpr := &expression.InList{Expr: col, Items: items, Not: true}
		if !hasNil {
			return notInExpr, nil
		}
		if len(rest) == 0 {
			return &expression.IsNull{Expr: col, Not: true}, nil
		}
		return &expression.Binary{DT: sql.Bool, Op: "AND", LHS: &expression.IsNull{Expr: col, Not: true}, RHS: notInExpr}, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", operator)
	}
}

func splitNil(values []interface{}) (bool, []interface{}) {
	hasNil := false
	var rest []interface{}
	for _, v := range values {
		if v == nil {
			hasNil = true
			continue
		}
		rest = append(rest, v)
	}
	return hasNil, rest
}

// sortScalars sorts comparable scalar values so generated SQL is
// deterministic for caching (original_source/recipe/ingredients.py's
// "Sort to generate deterministic query sql for caching").
func sortScalars(values []interface{}) {
	sort.SliceStable(values, func(i, j int) bool {
		return fmt.Sprint(values[i]) < fmt.Sprint(values[j])
	})
}

func orAll(exprs []expression.Expression) expression.Expression {
	if len(exprs) == 0 {
		return &expression.Literal{DT: sql.Bool, Value: false}
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = &expression.Binary{DT: sql.Bool, Op: "OR", LHS: out, RHS: e}
	}
	return out
}
