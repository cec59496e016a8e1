package extension

import (
	"fmt"
	"strings"

	"github.com/juiceinc/recipe/expression"
	"github.com/juiceinc/recipe/ingredient"
	"github.com/juiceinc/recipe/recipe"
	"github.com/juiceinc/recipe/rerrors"
)

// SummarizeOver collapses a recipe's query into a subquery and
// re-aggregates its metrics over every dimension but the one named,
// the "resummarize a detail recipe, dropping one dimension" reshaping
// original_source/recipe/extensions.py's SummarizeOver builds with a
// SQLAlchemy subquery. Here the subquery is the recipe's own rendered
// SQL text, wrapped and attached as the Recipe's new source.
type SummarizeOver struct {
	base
	dimension string
}

func NewSummarizeOver() *SummarizeOver { return &SummarizeOver{} }

// Over sets the dimension id to collapse away; it must be one of the
// recipe's own dimensions.
func (s *SummarizeOver) Over(dimensionID string) *SummarizeOver {
	s.dimension = dimensionID
	s.markDirty()
	return s
}

func (s *SummarizeOver) ModifyPostqueryParts(r *recipe.Recipe, parts *recipe.QueryParts) (*recipe.QueryParts, error) {
	if s.dimension == "" {
		return parts, nil
	}

	var summarized *ingredient.Ingredient
	byLabel := map[string]*ingredient.Ingredient{}
	for _, ing := range r.CauldronIngredients() {
		if ing.Kind == ingredient.KindDimension && ing.ID == s.dimension {
			summarized = ing
		}
		cols, err := ing.QueryColumns()
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			byLabel[c.Label] = ing
		}
	}
	if summarized == nil {
		return nil, rerrors.BadRecipe.New(fmt.Sprintf("%s is not a dimension on this recipe", s.dimension))
	}

	removedCols, err := summarized.QueryColumns()
	if err != nil {
		return nil, err
	}
	removed := map[string]bool{}
	for _, c := range removedCols {
		removed[c.Label] = true
	}

	innerSQL, innerArgs := recipe.RenderParts(r.Drivername(), r.SourceName(), parts)

	keptDims := map[string]bool{}
	outer := &recipe.QueryParts{SourceArgs: innerArgs}
	for _, g := range parts.GroupBys {
		if removed[g.Label] {
			continue
		}
		keptDims[g.Label] = true
		ref := ingredient.LabeledColumn{Label: g.Label, Expr: &expression.Raw{DT: g.Expr.Datatype(), Text: g.Label}}
		outer.Columns = append(outer.Columns, ref)
		outer.GroupBys = append(outer.GroupBys, ingredient.GroupByColumn{LabeledColumn: ref})
	}

	for _, c := range parts.Columns {
		if removed[c.Label] || keptDims[c.Label] {
			continue
		}
		owner := byLabel[c.Label]
		aggName, err := summaryAggregationFor(owner)
		if err != nil {
			return nil, err
		}
		dt := c.Expr.Datatype()
		outer.Columns = append(outer.Columns, ingredient.LabeledColumn{
			Label: c.Label,
			Expr: &expression.Func{DT: dt, Name: aggName, Args: []expression.Expression{
				&expression.Raw{DT: dt, Text: c.Label},
			}},
		})
	}

	for _, o := range parts.OrderBys {
		if removed[o.Label] {
			continue
		}
		outer.OrderBys = append(outer.OrderBys, recipe.OrderByColumn{
			Label: o.Label,
			Expr:  &expression.Raw{DT: o.Expr.Datatype(), Text: o.Label},
			Desc:  o.Desc,
		})
	}

	r.SelectFrom(recipe.RawSource(fmt.Sprintf("(%s) AS summarize_over", innerSQL)))
	return outer, nil
}

// summaryAggregationFor picks the aggregation a metric's column is
// re-summed with: an explicit meta.summary_aggregation override, else
// the heuristic original_source/recipe/extensions.py's SummarizeOver
// uses (avg stays avg; count and sum both become sum; anything else
// needs the override).
func summaryAggregationFor(ing *ingredient.Ingredient) (string, error) {
	if ing != nil {
		if v, ok := ing.Meta["summary_aggregation"]; ok {
			if name, ok := v.(string); ok && name != "" {
				return name, nil
			}
		}
	}
	if ing != nil {
		switch e := ing.Roles["value"].(type) {
		case *expression.Func:
			switch strings.ToLower(e.Name) {
			case "avg":
				return "avg", nil
			case "count", "sum":
				return "sum", nil
			}
		case *expression.Raw:
			if strings.HasPrefix(strings.ToLower(e.Text), "count(") {
				return "sum", nil
			}
		}
	}
	id := "unknown"
	if ing != nil {
		id = ing.ID
	}
	return "", rerrors.BadRecipe.New(fmt.Sprintf("provide a summary_aggregation for metric %s", id))
}
