package extension

import (
	"sort"
	"strings"

	"github.com/juiceinc/recipe/expression"
	"github.com/juiceinc/recipe/ingredient"
	"github.com/juiceinc/recipe/recipe"
	"github.com/juiceinc/recipe/shelf"
	"github.com/juiceinc/recipe/sql"
)

// AutomaticFilters turns a {dimension_id: value} (or
// {dimension_id__operator: value}) map into Filter ingredients added to
// a recipe automatically, the way a web handler would turn query-string
// parameters straight into recipe filters (spec §4.9,
// original_source/recipe/extensions.py's AutomaticFilters). A key may
// name several dimensions separated by commas
// (`dim1,dim2[__operator]`); the same value/operator is applied to
// each named dimension and the results ORed together, so a row
// matches when any of the compound key's dimensions does.
type AutomaticFilters struct {
	base

	apply      bool
	strict     bool
	filters    map[string]interface{}
	includeIDs map[string]bool
	excludeIDs map[string]bool
}

// NewAutomaticFilters builds an AutomaticFilters extension, applying
// filters by default and rejecting unknown keys (strict) by default.
func NewAutomaticFilters() *AutomaticFilters {
	return &AutomaticFilters{apply: true, strict: true}
}

// SetFilters sets the {dimension_id[__operator]: value} map this
// extension turns into recipe filters.
func (a *AutomaticFilters) SetFilters(filters map[string]interface{}) *AutomaticFilters {
	a.filters = filters
	a.markDirty()
	return a
}

// Apply toggles whether automatic filters are applied at all.
func (a *AutomaticFilters) Apply(v bool) *AutomaticFilters {
	a.apply = v
	a.markDirty()
	return a
}

// Strict toggles whether a key naming a dimension absent from the
// shelf is rejected with BadRecipe (true, the default) or silently
// ignored, producing the same SQL as if the key had never been
// supplied (false).
func (a *AutomaticFilters) Strict(v bool) *AutomaticFilters {
	a.strict = v
	a.markDirty()
	return a
}

// IncludeKeys restricts automatic filtering to this allow-list of
// dimension ids; any key in SetFilters not named here is ignored.
func (a *AutomaticFilters) IncludeKeys(ids ...string) *AutomaticFilters {
	a.includeIDs = toSet(ids)
	a.markDirty()
	return a
}

// ExcludeKeys is a deny-list of dimension ids to skip when applying
// automatic filters.
func (a *AutomaticFilters) ExcludeKeys(ids ...string) *AutomaticFilters {
	a.excludeIDs = toSet(ids)
	a.markDirty()
	return a
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

// AddIngredients builds one Filter ingredient per automatic-filter
// entry and adds it to the recipe (spec §4.9).
func (a *AutomaticFilters) AddIngredients(r *recipe.Recipe) error {
	if !a.apply || len(a.filters) == 0 {
		return nil
	}

	keys := make([]string, 0, len(a.filters))
	for k := range a.filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		dimPart, operator := key, ""
		if idx := strings.Index(key, "__"); idx >= 0 {
			dimPart, operator = key[:idx], key[idx+2:]
		}

		var disjuncts []expression.Expression
		for _, dim := range strings.Split(dimPart, ",") {
			if a.includeIDs != nil && !a.includeIDs[dim] {
				continue
			}
			if a.excludeIDs != nil && a.excludeIDs[dim] {
				continue
			}

			ing, err := shelf.Find(r.Shelf(), dim, ingredient.KindDimension)
			if err != nil {
				if a.strict {
					return err
				}
				continue
			}
			expr, err := filterExpressionForOperator(ing, a.filters[key], operator)
			if err != nil {
				return err
			}
			disjuncts = append(disjuncts, expr)
		}

		if len(disjuncts) == 0 {
			continue
		}
		r.Filters(ingredient.NewFilter(orAll(disjuncts)))
	}
	return nil
}

// filterExpressionForOperator extends ingredient.FilterExpression's
// §4.6 operator set with the two named-filter operators spec §4.9 adds
// for automatic filters: "or" ORs together the quickselects named in
// value, and "not" does the same and wraps the result in NOT.
func filterExpressionForOperator(ing *ingredient.Ingredient, value interface{}, operator string) (expression.Expression, error) {
	switch operator {
	case "or":
		return ing.FilterExpression(value, "quickselect", "")
	case "not":
		expr, err := ing.FilterExpression(value, "quickselect", "")
		if err != nil {
			return nil, err
		}
		return &expression.Unary{DT: sql.Bool, Op: "NOT", Operand: expr}, nil
	default:
		return ing.FilterExpression(value, operator, "")
	}
}

// orAll ORs together a compound key's per-dimension filter expressions.
func orAll(exprs []expression.Expression) expression.Expression {
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = &expression.Binary{DT: sql.Bool, Op: "OR", LHS: out, RHS: e}
	}
	return out
}
