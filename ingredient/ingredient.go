// Package ingredient builds the five closed ingredient variants —
// Dimension, Metric, Filter, Having, and the error-carrying Invalid —
// that a Shelf holds and a Recipe assembles into a query (spec §4.6,
// component C6).
package ingredient

import (
	"fmt"
	"sort"

	"github.com/juiceinc/recipe/expression"
	"github.com/juiceinc/recipe/rerrors"
	"github.com/juiceinc/recipe/sql"
)

// Kind is the closed set of ingredient variants spec §4.6 names.
type Kind int

const (
	KindDimension Kind = iota
	KindMetric
	KindFilter
	KindHaving
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindDimension:
		return "Dimension"
	case KindMetric:
		return "Metric"
	case KindFilter:
		return "Filter"
	case KindHaving:
		return "Having"
	default:
		return "Invalid"
	}
}

// Formatter post-processes a raw scalar value read back from a result row.
type Formatter func(interface{}) interface{}

// QuickSelect is a named, pre-built filter condition an ingredient can be
// asked for by name through the "quickselect" operator.
type QuickSelect struct {
	Name      string
	Condition expression.Expression
}

// LabeledColumn pairs a rendered select-list label with its expression,
// mirroring query_columns' "expr.label(id+suffix)" behavior.
type LabeledColumn struct {
	Label string
	Expr  expression.Expression
}

// Ingredient is the single concrete type backing all five variants;
// Kind plus the constructor used to build it determines its shape,
// the same way spec §4.6 describes one closed set of behaviors rather
// than an open class hierarchy.
type Ingredient struct {
	ID   string
	Kind Kind

	Roles    map[string]expression.Expression
	RoleKeys []string // columns/roles in display order, "value" or "id" first

	DatatypeByRole map[string]sql.Datatype
	Datatype       sql.Datatype

	Filters []expression.Expression
	Havings []expression.Expression

	Formatters     []Formatter
	QuickSelects   []QuickSelect
	ColumnSuffixes []string

	Ordering        string // "asc" or "desc"
	GroupByStrategy string // "labels" or "direct"

	Lookup           map[string]interface{}
	LookupDefault    interface{}
	HasLookupDefault bool

	Meta map[string]interface{}

	// Error is set only on KindInvalid ingredients (spec §4.6's
	// "configuration problems become a usable, inert ingredient rather
	// than a build-time panic").
	Error error
}

// Option configures an Ingredient at construction time.
type Option func(*Ingredient)

func WithID(id string) Option { return func(i *Ingredient) { i.ID = id } }

func WithFormatters(f ...Formatter) Option {
	return func(i *Ingredient) { i.Formatters = append(i.Formatters, f...) }
}

func WithQuickSelects(qs ...QuickSelect) Option {
	return func(i *Ingredient) { i.QuickSelects = qs }
}

func WithColumnSuffixes(s ...string) Option {
	return func(i *Ingredient) { i.ColumnSuffixes = s }
}

func WithOrdering(order string) Option {
	return func(i *Ingredient) { i.Ordering = order }
}

func WithGroupByStrategy(strategy string) Option {
	return func(i *Ingredient) { i.GroupByStrategy = strategy }
}

func WithMeta(key string, value interface{}) Option {
	return func(i *Ingredient) {
		if i.Meta == nil {
			i.Meta = map[string]interface{}{}
		}
		i.Meta[key] = value
	}
}

func newBase(kind Kind, opts []Option) *Ingredient {
	ing := &Ingredient{
		Kind:            kind,
		Roles:           map[string]expression.Expression{},
		DatatypeByRole:  map[string]sql.Datatype{},
		Ordering:        "asc",
		GroupByStrategy: "labels",
	}
	for _, o := range opts {
		o(ing)
	}
	return ing
}

// NewFilter builds a boolean Filter ingredient from expr (spec §4.6).
func NewFilter(expr expression.Expression, opts ...Option) *Ingredient {
	ing := newBase(KindFilter, opts)
	ing.Filters = []expression.Expression{expr}
	ing.Datatype = sql.Bool
	ing.Roles["value"] = expr
	return ing
}

// NewHaving builds a boolean Having ingredient from expr, used against
// aggregated columns (spec §4.6).
func NewHaving(expr expression.Expression, opts ...Option) *Ingredient {
	ing := newBase(KindHaving, opts)
	ing.Havings = []expression.Expression{expr}
	ing.Datatype = sql.Bool
	ing.Roles["value"] = expr
	return ing
}

// NewInvalidIngredient wraps a build-time error in a usable, inert
// ingredient so a bad shelf entry doesn't abort the whole shelf load
// (spec §4.6 / §4.7).
func NewInvalidIngredient(err error, opts ...Option) *Ingredient {
	ing := newBase(KindInvalid, opts)
	ing.Error = err
	ing.Datatype = sql.Unusable
	return ing
}

// DimOption configures role expressions and lookup behavior on a Dimension.
type DimOption func(roles map[string]expression.Expression, ing *Ingredient)

// WithRole attaches expr under the given role name, becoming a
// "{id}_{role}" column (spec §4.6, Dimension additional roles). "id" and
// "order_by" are the two roles with special column placement; "raw" is
// reserved.
func WithRole(role string, expr expression.Expression) DimOption {
	return func(roles map[string]expression.Expression, ing *Ingredient) {
		roles[role] = expr
	}
}

// WithLookup maps each output value through lookup, falling back to
// def when no entry matches (or to the original value if WithLookup's
// def is never set — see WithLookupDefault).
func WithLookup(lookup map[string]interface{}) DimOption {
	return func(_ map[string]expression.Expression, ing *Ingredient) {
		ing.Lookup = lookup
		ing.Formatters = append([]Formatter{lookupFormatter(ing)}, ing.Formatters...)
	}
}

// WithLookupDefault sets the fallback value WithLookup uses for a value
// with no entry in the lookup table.
func WithLookupDefault(def interface{}) DimOption {
	return func(_ map[string]expression.Expression, ing *Ingredient) {
		ing.LookupDefault = def
		ing.HasLookupDefault = true
	}
}

func lookupFormatter(ing *Ingredient) Formatter {
	return func(v interface{}) interface{} {
		if mapped, ok := ing.Lookup[fmt.Sprint(v)]; ok {
			return mapped
		}
		if ing.HasLookupDefault {
			return ing.LookupDefault
		}
		return v
	}
}

// NewDimension builds a Dimension over valueExpr, optionally attaching
// "id"/"order_by"/arbitrary extra roles via DimOption (spec §4.6).
// Role order follows original_source/recipe/ingredients.py: id first,
// value second, remaining roles alphabetically with order_by forced last.
func NewDimension(valueExpr expression.Expression, opts []Option, dimOpts ...DimOption) (*Ingredient, error) {
	ing := newBase(KindDimension, opts)
	roles := map[string]expression.Expression{"value": valueExpr}
	for _, d := range dimOpts {
		d(roles, ing)
	}
	if _, reserved := roles["raw"]; reserved {
		return nil, rerrors.BadIngredient.New("raw is a reserved role in dimensions")
	}
	ing.Roles = roles
	ing.Datatype = valueExpr.Datatype()
	for role, expr := range roles {
		ing.DatatypeByRole[role] = expr.Datatype()
	}

	var keys []string
	if _, ok := roles["id"]; ok {
		keys = append(keys, "id")
	}
	keys = append(keys, "value")
	var rest []string
	for role := range roles {
		if role == "id" || role == "value" || role == "order_by" {
			continue
		}
		rest = append(rest, role)
	}
	sort.Strings(rest)
	keys = append(keys, rest...)
	if _, ok := roles["order_by"]; ok {
		keys = append(keys, "order_by")
	}
	ing.RoleKeys = keys
	return ing, nil
}

// NewIDValueDimension is the supplemented convenience constructor from
// original_source/recipe/ingredients.py's IdValueDimension: a Dimension
// with a separate id role, expressed in two positional arguments instead
// of WithRole("id", ...).
func NewIDValueDimension(idExpr, valueExpr expression.Expression, opts []Option, dimOpts ...DimOption) (*Ingredient, error) {
	all := append([]DimOption{WithRole("id", idExpr)}, dimOpts...)
	return NewDimension(valueExpr, opts, all...)
}

// NewLookupDimension is the supplemented convenience constructor from
// original_source/recipe/ingredients.py's LookupDimension.
func NewLookupDimension(valueExpr expression.Expression, lookup map[string]interface{}, opts []Option, dimOpts ...DimOption) (*Ingredient, error) {
	all := append([]DimOption{WithLookup(lookup)}, dimOpts...)
	return NewDimension(valueExpr, opts, all...)
}

// NewMetric builds an aggregate Metric from expr (spec §4.6).
func NewMetric(expr expression.Expression, opts ...Option) *Ingredient {
	ing := newBase(KindMetric, opts)
	ing.Roles["value"] = expr
	ing.Datatype = expr.Datatype()
	return ing
}

// NewDivideMetric is the supplemented convenience constructor from
// original_source/recipe/ingredients.py's DivideMetric: numerator/
// denominator wrapped in the same guarded division transform.Lower
// applies to a parsed "/" operator, so a formula-authored metric and
// one built directly from Go expressions behave identically.
func NewDivideMetric(numerator, denominator expression.Expression, opts ...Option) *Ingredient {
	guard := &expression.Binary{DT: sql.Bool, Op: "OR",
		LHS: &expression.IsNull{Expr: denominator},
		RHS: &expression.Binary{DT: sql.Bool, Op: "=", LHS: denominator, RHS: &expression.Literal{DT: sql.Num, Value: 0.0}},
	}
	expr := &expression.Case{
		DT: sql.Num,
		Whens: []expression.WhenThen{
			{When: guard, Then: &expression.Literal{DT: sql.Num, Value: nil}},
		},
		Else: &expression.Binary{DT: sql.Num, Op: "/", LHS: numerator, RHS: denominator},
	}
	return NewMetric(expr, opts...)
}

// NewWeightedAverageMetric is the supplemented convenience constructor
// from original_source/recipe/ingredients.py's WtdAvgMetric:
// sum(expr*weight)/sum(weight).
func NewWeightedAverageMetric(expr, weightExpr expression.Expression, opts ...Option) *Ingredient {
	numerator := &expression.Func{DT: sql.Num, Name: "sum", Args: []expression.Expression{
		&expression.Binary{DT: sql.Num, Op: "*", LHS: expr, RHS: weightExpr},
	}}
	denominator := &expression.Func{DT: sql.Num, Name: "sum", Args: []expression.Expression{weightExpr}}
	return NewDivideMetric(numerator, denominator, opts...)
}

// MakeColumnSuffixes returns the per-column label suffixes appended to
// ID when building the select list (spec §4.6).
func (ing *Ingredient) MakeColumnSuffixes() ([]string, error) {
	if ing.ColumnSuffixes != nil {
		return ing.ColumnSuffixes, nil
	}
	switch ing.Kind {
	case KindDimension:
		out := make([]string, len(ing.RoleKeys))
		valueSuffix := ""
		if len(ing.Formatters) > 0 {
			valueSuffix = "_raw"
		}
		for i, role := range ing.RoleKeys {
			if role == "value" {
				out[i] = valueSuffix
			} else {
				out[i] = "_" + role
			}
		}
		return out, nil
	default:
		n := len(ing.columns())
		if n == 0 {
			return nil, nil
		}
		if n == 1 {
			if len(ing.Formatters) > 0 {
				return []string{"_raw"}, nil
			}
			return []string{""}, nil
		}
		return nil, rerrors.BadIngredient.New("column_suffixes must be supplied if there is more than one column")
	}
}

// columns returns this ingredient's select-list expressions in role order.
func (ing *Ingredient) columns() []expression.Expression {
	if ing.Kind == KindDimension {
		out := make([]expression.Expression, len(ing.RoleKeys))
		for i, role := range ing.RoleKeys {
			out[i] = ing.Roles[role]
		}
		return out
	}
	if v, ok := ing.Roles["value"]; ok {
		return []expression.Expression{v}
	}
	return nil
}

// QueryColumns yields this ingredient's labeled select-list entries.
func (ing *Ingredient) QueryColumns() ([]LabeledColumn, error) {
	suffixes, err := ing.MakeColumnSuffixes()
	if err != nil {
		return nil, err
	}
	cols := ing.columns()
	out := make([]LabeledColumn, len(cols))
	for i, c := range cols {
		out[i] = LabeledColumn{Label: ing.ID + suffixes[i], Expr: c}
	}
	return out, nil
}

// GroupByColumn is one GROUP BY entry: either the select-list label
// (Direct false, the default) or the underlying expression rendered in
// full (Direct true) — spec §4.6's GroupByStrategy.
type GroupByColumn struct {
	LabeledColumn
	Direct bool
}

// GroupByColumns returns the group-by entries for a Dimension, honoring
// GroupByStrategy ("labels" reuses the select-list label text, "direct"
// reuses the column expression itself — spec §4.6).
func (ing *Ingredient) GroupByColumns() ([]GroupByColumn, error) {
	if ing.Kind != KindDimension {
		return nil, nil
	}
	cols, err := ing.QueryColumns()
	if err != nil {
		return nil, err
	}
	direct := ing.GroupByStrategy == "direct"
	out := make([]GroupByColumn, len(cols))
	for i, c := range cols {
		out[i] = GroupByColumn{LabeledColumn: c, Direct: direct}
	}
	return out, nil
}

// OrderByColumns yields this ingredient's columns in reverse order (spec
// §4.6's "Dimension column ordering" edge case). It attaches no sort
// direction; callers read Ordering for that.
func (ing *Ingredient) OrderByColumns() ([]LabeledColumn, error) {
	cols, err := ing.QueryColumns()
	if err != nil {
		return nil, err
	}
	out := make([]LabeledColumn, len(cols))
	for i, c := range cols {
		out[len(cols)-1-i] = c
	}
	return out, nil
}

// IDProp is the result-row property name build_filter/the cauldron use to
// recover this Dimension's raw id value (spec §4.6).
func (ing *Ingredient) IDProp() string {
	if ing.Kind != KindDimension {
		return ing.ID
	}
	for _, role := range ing.RoleKeys {
		if role == "id" {
			return ing.ID + "_id"
		}
	}
	if len(ing.Formatters) > 0 {
		return ing.ID + "_raw"
	}
	return ing.ID
}

// Extra is one (field name, row accessor) pair this ingredient adds on
// top of its own query columns — e.g. the formatted value of a lookup
// Dimension, or its underlying raw id (spec §4.6 cauldron_extras).
type Extra struct {
	Name string
	Get  func(raw sql.Row) interface{}
}

// CauldronExtras yields this ingredient's row-level extras.
func (ing *Ingredient) CauldronExtras() []Extra {
	var out []Extra
	if len(ing.Formatters) > 0 {
		rawProp := ing.ID + "_raw"
		out = append(out, Extra{Name: ing.ID, Get: func(row sql.Row) interface{} {
			v := row[rawProp]
			for _, f := range ing.Formatters {
				v = f(v)
			}
			return v
		}})
	}
	if ing.Kind == KindDimension {
		idProp := ing.IDProp()
		out = append(out, Extra{Name: ing.ID + "_id", Get: func(row sql.Row) interface{} {
			return row[idProp]
		}})
	}
	return out
}
