package extension

import (
	"fmt"

	"github.com/juiceinc/recipe/expression"
	"github.com/juiceinc/recipe/ingredient"
	"github.com/juiceinc/recipe/recipe"
	"github.com/juiceinc/recipe/rerrors"
)

type compareSpec struct {
	other  *recipe.Recipe
	suffix string
}

// CompareRecipe outer-joins a second recipe's rendered query into the
// base recipe, hoisting its metrics (suffixed, aggregated with
// meta.summary_aggregation, else summaryAggregationFor's heuristic, else
// avg) for side-by-side
// comparison against the base recipe's own metrics, grounded on
// original_source/recipe/extensions.py's CompareRecipe and the same
// subquery-wrap-and-join approach BlendRecipe/SummarizeOver use.
type CompareRecipe struct {
	base
	compares []compareSpec
}

func NewCompareRecipe() *CompareRecipe { return &CompareRecipe{} }

// Compare attaches other as a comparison recipe; its metrics are
// hoisted onto the base recipe with id+suffix, joined on every
// dimension id of other; each of those dimensions must also be on the
// base recipe, or the query fails.
func (c *CompareRecipe) Compare(other *recipe.Recipe, suffix string) *CompareRecipe {
	if suffix == "" {
		suffix = "_compare"
	}
	c.compares = append(c.compares, compareSpec{other: other, suffix: suffix})
	c.markDirty()
	return c
}

func (c *CompareRecipe) ModifyPostqueryParts(r *recipe.Recipe, parts *recipe.QueryParts) (*recipe.QueryParts, error) {
	for i, spec := range c.compares {
		compareSQL, compareArgs, err := spec.other.Query()
		if err != nil {
			return nil, err
		}

		var conditions []string
		for _, dim := range spec.other.DimensionIDs() {
			baseDim, err := findDimension(r.CauldronIngredients(), dim)
			if err != nil {
				return nil, fmt.Errorf("compare: %s dimension in comparison recipe must exist in base recipe: %w", dim, err)
			}
			compareDim, err := findDimension(spec.other.CauldronIngredients(), dim)
			if err != nil {
				return nil, err
			}
			baseSQL, _ := joinExpr(baseDim).SQL(r.Drivername())
			conditions = append(conditions, fmt.Sprintf("%s = compare_%d.%s", baseSQL, i, compareDim.IDProp()))
		}
		if len(conditions) == 0 {
			return nil, rerrors.BadRecipe.New("compare recipe shares no dimensions with the base recipe")
		}

		joinCondition := conditions[0]
		for _, cond := range conditions[1:] {
			joinCondition += " AND " + cond
		}

		alias := fmt.Sprintf("compare_%d", i)
		parts.SourceArgs = append(parts.SourceArgs, compareArgs...)
		r.SelectFrom(recipe.RawSource(fmt.Sprintf("%s LEFT JOIN (%s) AS %s ON %s",
			r.SourceName(), compareSQL, alias, joinCondition)))

		for _, ing := range spec.other.CauldronIngredients() {
			if ing.Kind != ingredient.KindMetric {
				continue
			}
			aggName, err := summaryAggregationFor(ing)
			if err != nil {
				aggName = "avg"
			}
			cols, err := ing.QueryColumns()
			if err != nil {
				return nil, err
			}
			for _, col := range cols {
				dt := col.Expr.Datatype()
				parts.Columns = append(parts.Columns, ingredient.LabeledColumn{
					Label: ing.ID + spec.suffix,
					Expr: &expression.Func{DT: dt, Name: aggName, Args: []expression.Expression{
						&expression.Raw{DT: dt, Text: alias + "." + col.Label},
					}},
				})
			}
		}
	}
	return parts, nil
}
