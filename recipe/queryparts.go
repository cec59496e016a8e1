package recipe

import (
	"github.com/juiceinc/recipe/ingredient"
	"github.com/juiceinc/recipe/shelf"
)

// QueryParts is the recipe-level view of a brewed query, the same shape
// a Shelf hands back plus the order-by list a Recipe layers on top
// (spec §4.8's eight-step pipeline operates on this value, rewriting it
// at each Extension hook).
type QueryParts struct {
	Columns  []ingredient.LabeledColumn
	GroupBys []ingredient.GroupByColumn
	Filters  []shelf.Expr
	Havings  []shelf.Expr
	OrderBys []OrderByColumn

	// SourceArgs are bound args embedded in the FROM-clause text itself
	// (a subquery an extension — SummarizeOver, BlendRecipe,
	// CompareRecipe — wrapped and attached via Recipe.SelectFrom). They
	// are spliced into the rendered query's arg list immediately after
	// the FROM clause, matching their "?" placeholders' position in the
	// final SQL text.
	SourceArgs []interface{}
}

// OrderByColumn is one ORDER BY entry, carrying the direction the
// contributing ingredient (or a "-"-prefixed reference to it) requested.
type OrderByColumn struct {
	Label string
	Expr  interface {
		SQL(driver string) (string, []interface{})
	}
	Desc bool
}
