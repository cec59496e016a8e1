// Package shelf holds a named, ordered collection of ingredients and
// assembles them into the raw column/group-by/filter/having parts a
// Recipe needs (spec §4.7, component C7).
package shelf

import (
	"sort"

	"github.com/juiceinc/recipe/ingredient"
	"github.com/juiceinc/recipe/rerrors"
	"github.com/juiceinc/recipe/sql"
)

// Shelf is an ordered, named collection of ingredients. The zero value
// is not usable; construct with New.
type Shelf struct {
	ingredients map[string]*ingredient.Ingredient
	order       []string // insertion order, per spec §4.7 "ingredient_order"
	anonymize   bool
	TableName   string
	Cache       sql.Cache
}

// New builds an empty Shelf over the selectable named table.
func New(table string) *Shelf {
	return &Shelf{
		ingredients: map[string]*ingredient.Ingredient{},
		TableName:   table,
		Cache:       sql.NoopCache{},
	}
}

// SetAnonymize toggles the anonymize flag every ingredient this shelf
// hands out is stamped with (spec §4.9 Anonymize extension).
func (s *Shelf) SetAnonymize(v bool) { s.anonymize = v }

// Use adds ing to the shelf under id, tracking insertion order
// (original_source/recipe/shelf.py's Shelf.use). A later Use with the
// same id overwrites the ingredient but keeps its original order
// position, matching the Python dict-assignment semantics this mirrors.
func (s *Shelf) Use(id string, ing *ingredient.Ingredient) {
	ing.ID = id
	if _, exists := s.ingredients[id]; !exists {
		s.order = append(s.order, id)
	}
	s.ingredients[id] = ing
}

// Get returns the ingredient stored under id.
func (s *Shelf) Get(id string) (*ingredient.Ingredient, bool) {
	ing, ok := s.ingredients[id]
	return ing, ok
}

// Ingredients returns every ingredient on the shelf sorted by
// (Kind, ID) — Dimension, then Metric, then Filter, then Having, then
// Invalid, each alphabetically by id (spec §4.7, mirrors
// original_source/recipe/shelf.py's Ingredient.__lt__).
func (s *Shelf) Ingredients() []*ingredient.Ingredient {
	out := make([]*ingredient.Ingredient, 0, len(s.ingredients))
	for _, ing := range s.ingredients {
		out = append(out, ing)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.ID < b.ID
	})
	return out
}

// DimensionIDs returns the Dimension ids on this shelf ordered by the
// position they were first Use'd in, per spec §4.7.
func (s *Shelf) DimensionIDs() []string { return s.idsByKind(ingredient.KindDimension) }

// MetricIDs returns the Metric ids on this shelf ordered by the position
// they were first Use'd in, per spec §4.7.
func (s *Shelf) MetricIDs() []string { return s.idsByKind(ingredient.KindMetric) }

func (s *Shelf) idsByKind(kind ingredient.Kind) []string {
	var ids []string
	for id, ing := range s.ingredients {
		if ing.Kind == kind {
			ids = append(ids, id)
		}
	}
	sort.SliceStable(ids, func(i, j int) bool {
		return s.orderIndex(ids[i]) < s.orderIndex(ids[j])
	})
	return ids
}

// orderIndex returns the position id was Use'd in, or 9999 if it was
// never explicitly Use'd (e.g. added by a loader that bypasses Use) —
// spec §4.7's "bucket default-label/ordering-9999" edge case.
func (s *Shelf) orderIndex(id string) int {
	for i, used := range s.order {
		if used == id {
			return i
		}
	}
	return 9999
}

// Find resolves obj — either an ingredient id (optionally "-"-prefixed
// to request descending ordering) or an already-built ingredient — to
// an ingredient of the given kind (spec §4.7's shelf-relative lookup,
// used throughout recipe assembly for order_by/filter-by-name).
func Find(s *Shelf, obj interface{}, kind ingredient.Kind) (*ingredient.Ingredient, error) {
	switch v := obj.(type) {
	case *ingredient.Ingredient:
		if v.Kind != kind {
			return nil, rerrors.BadRecipe.New(v.ID + " is not a " + kind.String())
		}
		return v, nil
	case string:
		id := v
		descending := false
		if len(id) > 0 && id[0] == '-' {
			descending = true
			id = id[1:]
		}
		ing, ok := s.Get(id)
		if !ok {
			return nil, rerrors.BadRecipe.New(id + " doesn't exist on the shelf")
		}
		if ing.Kind != kind {
			return nil, rerrors.BadRecipe.New(id + " is not a " + kind.String())
		}
		if descending {
			ing.Ordering = "desc"
		}
		return ing, nil
	default:
		return nil, rerrors.BadRecipe.New("not a valid ingredient reference")
	}
}

// FindAny resolves obj against any of kinds, trying each in order — used
// where a reference may be more than one ingredient variant (order_by
// accepts Dimension or Metric; filters() accepts Filter or Having),
// mirroring original_source/recipe/shelf.py's Shelf.find(kind=(...)).
func FindAny(s *Shelf, obj interface{}, kinds ...ingredient.Kind) (*ingredient.Ingredient, error) {
	var lastErr error
	for _, kind := range kinds {
		ing, err := Find(s, obj, kind)
		if err == nil {
			return ing, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// QueryParts is the raw set of select/group-by/filter/having pieces a
// shelf's ingredients contribute to a query, before the Recipe Assembler
// dedupes and orders them into a final statement (spec §4.7
// brew_query_parts, renamed to avoid the cooking metaphor).
type QueryParts struct {
	Columns  []ingredient.LabeledColumn
	GroupBys []ingredient.GroupByColumn
	Filters  []Expr
	Havings  []Expr
}

// Expr pairs a rendered boolean expression with a stable identity key
// used for deduplication (two ingredients contributing the identical
// filter should only apply it once).
type Expr struct {
	Key  string
	Expr interface{ SQL(driver string) (string, []interface{}) }
}

// QueryParts collects every ingredient's contribution, in shelf order,
// deduplicating filters/havings by their rendered SQL (spec §4.7: the
// Python implementation uses a set() of SQLAlchemy clauses for this;
// here two filters are "the same" when they render identically).
func (s *Shelf) QueryParts(driver string) (QueryParts, error) {
	var parts QueryParts
	seenFilter := map[string]bool{}
	seenHaving := map[string]bool{}

	for _, ing := range s.Ingredients() {
		cols, err := ing.QueryColumns()
		if err != nil {
			return QueryParts{}, err
		}
		parts.Columns = append(parts.Columns, cols...)

		gbs, err := ing.GroupByColumns()
		if err != nil {
			return QueryParts{}, err
		}
		parts.GroupBys = append(parts.GroupBys, gbs...)

		for _, f := range ing.Filters {
			key, _ := f.SQL(driver)
			if seenFilter[key] {
				continue
			}
			seenFilter[key] = true
			parts.Filters = append(parts.Filters, Expr{Key: key, Expr: f})
		}
		for _, h := range ing.Havings {
			key, _ := h.SQL(driver)
			if seenHaving[key] {
				continue
			}
			seenHaving[key] = true
			parts.Havings = append(parts.Havings, Expr{Key: key, Expr: h})
		}
	}
	return parts, nil
}

// Enchant adds every Dimension/Metric ingredient's cauldron extras
// (formatted values, raw ids) to each result row (spec §4.7 enchant).
func (s *Shelf) Enchant(rows []sql.Row) []sql.Row {
	var extras []ingredient.Extra
	for _, ing := range s.ingredients {
		if ing.Kind != ingredient.KindDimension && ing.Kind != ingredient.KindMetric {
			continue
		}
		extras = append(extras, ing.CauldronExtras()...)
	}
	if len(extras) == 0 {
		return rows
	}
	out := make([]sql.Row, len(rows))
	for i, row := range rows {
		merged := sql.Row{}
		for k, v := range row {
			merged[k] = v
		}
		for _, e := range extras {
			merged[e.Name] = e.Get(row)
		}
		out[i] = merged
	}
	return out
}
