// Package recipe assembles a shelf's ingredients into one executable
// query: the builder and query-assembly pipeline of spec §4.8, component
// C8. A Recipe is a short-lived, single-use value — build it, read its
// rows, discard it — and is not safe for concurrent use (spec §5).
package recipe

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	uuid "github.com/satori/go.uuid"

	"github.com/juiceinc/recipe/ingredient"
	"github.com/juiceinc/recipe/rerrors"
	"github.com/juiceinc/recipe/shelf"
	"github.com/juiceinc/recipe/sql"
)

// Extension hooks into recipe assembly (spec §4.8 step 1/3/5/7). An
// extension's AddIngredients may call back into the Recipe's own
// builder methods (e.g. AutomaticFilters calling r.Filters(...)); the
// Modify* hooks rewrite the parts already brewed from the cauldron.
// Dirty/ClearDirty let an extension participate in the Recipe's own
// dirty-tracking (spec §4.8/§5: "the recipe is dirty if it is flagged
// dirty or any extension is").
type Extension interface {
	AddIngredients(r *Recipe) error
	ModifyRecipeParts(r *Recipe, parts *QueryParts) (*QueryParts, error)
	ModifyPrequeryParts(r *Recipe, parts *QueryParts) (*QueryParts, error)
	ModifyPostqueryParts(r *Recipe, parts *QueryParts) (*QueryParts, error)
	Dirty() bool
	ClearDirty()
}

// Recipe builds and runs one query against a shelf (spec §4.8).
type Recipe struct {
	ID string

	shelf      *shelf.Shelf
	cauldron   *shelf.Shelf
	orderBys   []*ingredient.Ingredient
	extensions []Extension

	selectFrom sql.Selectable
	sources    map[string]bool

	session    sql.Session
	cache      sql.Cache
	logger     logrus.FieldLogger
	drivername string

	limitN  int
	offsetN int

	dirty    bool
	allDirty bool
	cachedSQL  string
	cachedArgs []interface{}
	cachedRows []sql.Row

	stats Stats

	err error
}

// Option configures a Recipe at construction time.
type Option func(*Recipe)

func WithSession(s sql.Session) Option { return func(r *Recipe) { r.session = s } }
func WithCache(c sql.Cache) Option     { return func(r *Recipe) { r.cache = c } }
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Recipe) { r.logger = l }
}
func WithDrivername(d string) Option { return func(r *Recipe) { r.drivername = d } }
func WithExtension(ext Extension) Option {
	return func(r *Recipe) { r.extensions = append(r.extensions, ext) }
}

// New builds a Recipe reading ingredients from s (spec §4.8). The
// shelf's table becomes the default select_from unless SelectFrom is
// called explicitly.
func New(s *shelf.Shelf, opts ...Option) *Recipe {
	r := &Recipe{
		ID:       newCorrelationID(),
		shelf:    s,
		cauldron: shelf.New(""),
		sources:  map[string]bool{},
		cache:    sql.NoopCache{},
		logger:   logrus.StandardLogger(),
		dirty:    true,
		allDirty: true,
	}
	if s != nil {
		r.sources[s.TableName] = true
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// newCorrelationID mints the short id every Recipe is tagged with in
// logs and trace spans, so concurrent recipes stay distinguishable
// (spec §5: "recipes are cheap/short-lived", SPEC_FULL's uuid wiring
// note). A generation failure falls back to the nil UUID rather than
// panicking — the id is a diagnostic aid, not a correctness dependency.
func newCorrelationID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "00000000"
	}
	return id.String()[:8]
}

func (r *Recipe) fail(err error) *Recipe {
	if r.err == nil {
		r.err = err
	}
	return r
}

func (r *Recipe) markDirty() {
	r.dirty = true
	r.allDirty = true
	r.cachedSQL = ""
}

// Metrics adds Metric ingredients (by id or *ingredient.Ingredient) to
// the query's select list (spec §4.8).
func (r *Recipe) Metrics(ids ...interface{}) *Recipe {
	for _, id := range ids {
		ing, err := shelf.Find(r.shelf, id, ingredient.KindMetric)
		if err != nil {
			return r.fail(err)
		}
		r.cauldron.Use(ing.ID, ing)
	}
	r.markDirty()
	return r
}

// Dimensions adds Dimension ingredients to the select list and group-by
// (spec §4.8).
func (r *Recipe) Dimensions(ids ...interface{}) *Recipe {
	for _, id := range ids {
		ing, err := shelf.Find(r.shelf, id, ingredient.KindDimension)
		if err != nil {
			return r.fail(err)
		}
		r.cauldron.Use(ing.ID, ing)
	}
	r.markDirty()
	return r
}

// Filters adds Filter or Having ingredients to the query's WHERE/HAVING
// clause. Calling Filters more than once is additive (spec §4.8).
func (r *Recipe) Filters(ids ...interface{}) *Recipe {
	for _, id := range ids {
		ing, err := shelf.FindAny(r.shelf, id, ingredient.KindFilter, ingredient.KindHaving)
		if err != nil {
			return r.fail(err)
		}
		r.cauldron.Use(uniqueFilterKey(ing), ing)
	}
	r.markDirty()
	return r
}

func uniqueFilterKey(ing *ingredient.Ingredient) string {
	if ing.ID != "" {
		return ing.ID
	}
	return fmt.Sprintf("%s_%p", ing.Kind, ing)
}

// OrderBy sets the order-by list, replacing any previous one — ids may
// be prefixed with "-" for descending (spec §4.8).
func (r *Recipe) OrderBy(ids ...interface{}) *Recipe {
	r.orderBys = nil
	for _, id := range ids {
		ing, err := shelf.FindAny(r.shelf, id, ingredient.KindDimension, ingredient.KindMetric)
		if err != nil {
			return r.fail(err)
		}
		r.orderBys = append(r.orderBys, ing)
	}
	r.markDirty()
	return r
}

// SelectFrom overrides the query's source selectable, bypassing the
// single-source invariant (spec §4.8 step 6).
func (r *Recipe) SelectFrom(sel sql.Selectable) *Recipe {
	r.selectFrom = sel
	r.markDirty()
	return r
}

// Session attaches the execution collaborator used by All/TotalCount.
func (r *Recipe) Session(s sql.Session) *Recipe {
	r.session = s
	r.markDirty()
	return r
}

// Limit caps the number of rows returned; 0 means unlimited.
func (r *Recipe) Limit(n int) *Recipe {
	if r.limitN != n {
		r.limitN = n
		r.markDirty()
	}
	return r
}

// Offset skips n rows before returning results.
func (r *Recipe) Offset(n int) *Recipe {
	if r.offsetN != n {
		r.offsetN = n
		r.markDirty()
	}
	return r
}

// addSource registers an additional source table name for the
// single-source invariant check (spec §4.8 step 6). It is unexported and
// nothing calls it, so r.sources holds at most the shelf's own table.
func (r *Recipe) addSource(name string) {
	if name != "" {
		r.sources[name] = true
	}
}

// IsDirty reports whether the recipe (or any of its extensions) needs
// its query rebuilt (spec §4.8/§5).
func (r *Recipe) IsDirty() bool {
	if r.dirty {
		return true
	}
	for _, ext := range r.extensions {
		if ext.Dirty() {
			return true
		}
	}
	return false
}

func (r *Recipe) clearDirty() {
	r.dirty = false
	for _, ext := range r.extensions {
		ext.ClearDirty()
	}
}

// MetricIDs returns the metric ids added to this recipe's cauldron, in
// the order they were added.
func (r *Recipe) MetricIDs() []string { return r.cauldron.MetricIDs() }

// DimensionIDs returns the dimension ids added to this recipe's
// cauldron, in the order they were added.
func (r *Recipe) DimensionIDs() []string { return r.cauldron.DimensionIDs() }

// Shelf returns the shelf this recipe reads ingredients from, for
// extensions that need to resolve their own ids against it.
func (r *Recipe) Shelf() *shelf.Shelf { return r.shelf }

// Cache returns the parse/tree cache attached via WithCache, for
// extensions that compile their own ad hoc field text (e.g. a
// text-driven automatic filter) and want the same memoization the core
// pipeline gets.
func (r *Recipe) Cache() sql.Cache { return r.cache }

// CauldronIngredients returns every ingredient currently added to this
// recipe, in shelf order, for extensions (Anonymize, BlendRecipe) that
// need to inspect or mutate them directly.
func (r *Recipe) CauldronIngredients() []*ingredient.Ingredient {
	return r.cauldron.Ingredients()
}

// Drivername returns the SQL dialect this recipe renders for, for
// extensions that render their own SQL fragments (SummarizeOver,
// BlendRecipe, CompareRecipe wrapping a subquery).
func (r *Recipe) Drivername() string { return r.drivername }

// SourceName returns the FROM-clause text this recipe currently
// renders against, for extensions that wrap it in a subquery or join.
func (r *Recipe) SourceName() string { return r.sourceName() }

// Query assembles the SQL text and bound args this recipe currently
// describes, following spec §4.8's eight-step pipeline. A cached,
// not-dirty recipe returns the same text without re-walking ingredients
// (spec §8 invariant 2's sibling invariant for the recipe layer).
func (r *Recipe) Query() (string, []interface{}, error) {
	if r.err != nil {
		return "", nil, r.err
	}
	if !r.IsDirty() && r.cachedSQL != "" {
		return r.cachedSQL, r.cachedArgs, nil
	}

	parts, err := r.assembleParts()
	if err != nil {
		return "", nil, err
	}

	sqlText, args := renderSelect(r.drivername, r.sourceName(), parts, r.limitN, r.offsetN)

	r.cachedSQL, r.cachedArgs = sqlText, args
	r.clearDirty()
	return sqlText, args, nil
}

// assembleParts runs the eight-step pipeline's non-rendering half: adding
// extension ingredients, brewing the cauldron, and letting extensions
// rewrite the result, up through the single-source invariant check
// (spec §4.8 steps 1-7). Query and TotalCount both build on top of it,
// rendering it with different limit/offset.
func (r *Recipe) assembleParts() (*QueryParts, error) {
	if len(r.cauldron.Ingredients()) == 0 {
		return nil, rerrors.BadRecipe.New("no ingredients have been added to this recipe")
	}

	// Step 1: let extensions contribute ingredients (e.g. AutomaticFilters).
	for _, ext := range r.extensions {
		if err := ext.AddIngredients(r); err != nil {
			return nil, err
		}
	}
	if r.err != nil {
		return nil, r.err
	}

	// Step 2: brew parts from the cauldron.
	shelfParts, err := r.cauldron.QueryParts(r.drivername)
	if err != nil {
		return nil, err
	}
	parts := &QueryParts{
		Columns:  shelfParts.Columns,
		GroupBys: shelfParts.GroupBys,
		Filters:  shelfParts.Filters,
		Havings:  shelfParts.Havings,
		OrderBys: r.prepareOrderBys(),
	}

	// Step 3: let extensions rewrite the brewed parts.
	for _, ext := range r.extensions {
		parts, err = ext.ModifyRecipeParts(r, parts)
		if err != nil {
			return nil, err
		}
	}

	// Step 5: let extensions adjust the parts before the single-source
	// check.
	for _, ext := range r.extensions {
		parts, err = ext.ModifyPrequeryParts(r, parts)
		if err != nil {
			return nil, err
		}
	}

	// Step 6: single-source invariant.
	if r.selectFrom == nil && len(r.sources) > 1 {
		return nil, rerrors.BadRecipe.New(
			"recipes must use ingredients that all come from the same table")
	}

	for _, ext := range r.extensions {
		parts, err = ext.ModifyPostqueryParts(r, parts)
		if err != nil {
			return nil, err
		}
	}

	return parts, nil
}

func (r *Recipe) sourceName() string {
	if r.selectFrom != nil {
		return r.selectFrom.Name()
	}
	if r.shelf != nil {
		return r.shelf.TableName
	}
	return ""
}

func (r *Recipe) prepareOrderBys() []OrderByColumn {
	var out []OrderByColumn
	seen := map[string]bool{}
	for _, ing := range r.orderBys {
		cols, _ := ing.OrderByColumns()
		for _, c := range cols {
			key := c.Label
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, OrderByColumn{Label: c.Label, Expr: c.Expr, Desc: ing.Ordering == "desc"})
		}
	}
	return out
}

// All executes the query and returns its (possibly enchanted and
// cached) rows, opening a tracing span around the one I/O boundary the
// core has (spec §5, SPEC_FULL ambient stack).
func (r *Recipe) All(ctx context.Context) ([]sql.Row, error) {
	if !r.IsDirty() && !r.allDirty {
		r.stats.set(len(r.cachedRows), 0, 0, true)
		return r.cachedRows, nil
	}

	sqlText, args, err := r.Query()
	if err != nil {
		return nil, err
	}
	if r.session == nil {
		return nil, rerrors.BadRecipe.New("recipe has no session attached")
	}

	span, _ := opentracing.StartSpanFromContext(ctx, "recipe.all")
	span.SetTag("recipe.id", r.ID)
	span.SetTag("recipe.driver", r.drivername)
	defer span.Finish()

	fetchStart := time.Now()
	rows, _, err := r.session.Execute(sqlText, args)
	if err != nil {
		return nil, rerrors.CastSessionError(err)
	}
	fetchEnd := time.Now()
	span.SetTag("recipe.rows", len(rows))

	rows = r.cauldron.Enchant(rows)
	enchantEnd := time.Now()

	r.logger.WithFields(logrus.Fields{
		"recipe_id": r.ID,
		"rows":      len(rows),
		"dbtime":    fetchEnd.Sub(fetchStart),
	}).Debug("recipe.all fetched rows")

	r.cachedRows = rows
	r.allDirty = false
	r.stats.set(len(rows), fetchEnd.Sub(fetchStart), enchantEnd.Sub(fetchEnd), false)
	return rows, nil
}

// One returns the first row, or nil if the result set is empty.
func (r *Recipe) One(ctx context.Context) (sql.Row, error) {
	rows, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// TotalCount returns the number of rows this recipe would return with
// no LIMIT applied (spec §8 invariant 7). It re-assembles the query's
// parts rather than reusing the cached, possibly limited Query() text,
// so a Paginate'd recipe still reports the unlimited total.
func (r *Recipe) TotalCount(ctx context.Context) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.session == nil {
		return 0, rerrors.BadRecipe.New("recipe has no session attached")
	}

	parts, err := r.assembleParts()
	if err != nil {
		return 0, err
	}
	sqlText, args := renderSelect(r.drivername, r.sourceName(), parts, 0, 0)

	span, _ := opentracing.StartSpanFromContext(ctx, "recipe.total_count")
	span.SetTag("recipe.id", r.ID)
	defer span.Finish()

	countSQL := fmt.Sprintf("SELECT count(*) AS count FROM (%s) AS count_query", sqlText)
	rows, _, err := r.session.Execute(countSQL, args)
	if err != nil {
		return 0, rerrors.CastSessionError(err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	switch v := rows[0]["count"].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("recipe: unexpected count result type %T", v)
	}
}

// Stats returns the statistics of the last All call. Before All has run
// it returns the zero Stats, whose Ready reports false; no error is
// raised.
func (r *Recipe) Stats() Stats { return r.stats }
