package extension

import (
	"fmt"
	"strconv"

	"github.com/juiceinc/recipe/expression"
	"github.com/juiceinc/recipe/ingredient"
	"github.com/juiceinc/recipe/recipe"
	"github.com/juiceinc/recipe/rerrors"
)

type blendSpec struct {
	other             *recipe.Recipe
	outer             bool
	joinBase, joinOth string
}

// BlendRecipe joins a second recipe's rendered query into the base
// recipe as a subquery, hoisting its metrics and its non-join
// dimensions, the same reshaping
// original_source/recipe/extensions.py's BlendRecipe does with
// SQLAlchemy's .subquery()/.join()/.outerjoin(), grounded here on the
// same subquery-wrap-and-join approach SummarizeOver uses.
type BlendRecipe struct {
	base
	blends []blendSpec
}

func NewBlendRecipe() *BlendRecipe { return &BlendRecipe{} }

// Blend inner-joins other into the base recipe, matching joinBase (a
// dimension id on the base recipe) against joinOther (a dimension id
// on other).
func (b *BlendRecipe) Blend(other *recipe.Recipe, joinBase, joinOther string) *BlendRecipe {
	b.blends = append(b.blends, blendSpec{other: other, joinBase: joinBase, joinOth: joinOther})
	b.markDirty()
	return b
}

// FullBlend is Blend's outer-join variant: rows from the base recipe
// survive even when other has no matching row.
func (b *BlendRecipe) FullBlend(other *recipe.Recipe, joinBase, joinOther string) *BlendRecipe {
	b.blends = append(b.blends, blendSpec{other: other, outer: true, joinBase: joinBase, joinOth: joinOther})
	b.markDirty()
	return b
}

func (b *BlendRecipe) ModifyPostqueryParts(r *recipe.Recipe, parts *recipe.QueryParts) (*recipe.QueryParts, error) {
	for i, spec := range b.blends {
		blendSQL, blendArgs, err := spec.other.Query()
		if err != nil {
			return nil, err
		}

		baseDim, err := findDimension(r.CauldronIngredients(), spec.joinBase)
		if err != nil {
			return nil, fmt.Errorf("blend: base recipe: %w", err)
		}
		blendDim, err := findDimension(spec.other.CauldronIngredients(), spec.joinOth)
		if err != nil {
			return nil, fmt.Errorf("blend: blend recipe: %w", err)
		}

		alias := "blend_" + strconv.Itoa(i)
		baseJoinSQL, _ := joinExpr(baseDim).SQL(r.Drivername())
		joinCondition := fmt.Sprintf("%s = %s.%s", baseJoinSQL, alias, blendDim.IDProp())

		joinKeyword := "JOIN"
		if spec.outer {
			joinKeyword = "LEFT JOIN"
		}
		parts.SourceArgs = append(parts.SourceArgs, blendArgs...)
		r.SelectFrom(recipe.RawSource(fmt.Sprintf("%s %s (%s) AS %s ON %s",
			r.SourceName(), joinKeyword, blendSQL, alias, joinCondition)))

		for _, ing := range spec.other.CauldronIngredients() {
			isMetric := ing.Kind == ingredient.KindMetric
			isHoistableDim := ing.Kind == ingredient.KindDimension && ing.ID != spec.joinOth
			if !isMetric && !isHoistableDim {
				continue
			}
			cols, err := ing.QueryColumns()
			if err != nil {
				return nil, err
			}
			for _, c := range cols {
				col := ingredient.LabeledColumn{
					Label: c.Label,
					Expr:  &expression.Raw{DT: c.Expr.Datatype(), Text: alias + "." + c.Label},
				}
				parts.Columns = append(parts.Columns, col)
				if ing.Kind == ingredient.KindDimension {
					parts.GroupBys = append(parts.GroupBys, ingredient.GroupByColumn{LabeledColumn: col})
				}
			}
		}
	}
	return parts, nil
}

// findDimension locates a Dimension ingredient by id among ings,
// failing the way original_source/recipe/extensions.py's blend/compare
// join-column lookups do when the requested dimension doesn't exist.
func findDimension(ings []*ingredient.Ingredient, id string) (*ingredient.Ingredient, error) {
	for _, ing := range ings {
		if ing.Kind == ingredient.KindDimension && ing.ID == id {
			return ing, nil
		}
	}
	return nil, rerrors.BadRecipe.New(fmt.Sprintf("%s is not a dimension on this recipe", id))
}

// joinExpr is the column a Dimension is joined on: its id role when one
// exists (the unformatted/raw identity column), else its value role.
func joinExpr(ing *ingredient.Ingredient) expression.Expression {
	if e, ok := ing.Roles["id"]; ok {
		return e
	}
	return ing.Roles["value"]
}
