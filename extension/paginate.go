package extension

import (
	"context"
	"fmt"
	"math"

	"github.com/juiceinc/recipe/expression"
	"github.com/juiceinc/recipe/ingredient"
	"github.com/juiceinc/recipe/recipe"
	"github.com/juiceinc/recipe/rerrors"
	"github.com/juiceinc/recipe/shelf"
	"github.com/juiceinc/recipe/sql"
)

// Pagination is the page bookkeeping validated_pagination() exposes
// once a total row count has been derived (spec §4.9).
type Pagination struct {
	RequestedPage int
	Page          int
	PageSize      int
	TotalItems    int
}

// clampPage validates a requested page against a known total, the way
// original_source/recipe/extensions.py's Paginate.modify_postquery_parts
// does with divmod(total_count, limit).
func clampPage(requested, pageSize, total int) (page, totalPages int) {
	if pageSize <= 0 {
		return requested, 0
	}
	totalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	if totalPages < 1 {
		totalPages = 1
	}
	page = requested
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	return page, totalPages
}

// paginateCore holds the page/size/search state Paginate,
// PaginateInline, and PaginateCountOver share; the three variants
// spec §4.9 names differ only in how they derive the total row count
// used to validate the requested page.
type paginateCore struct {
	base

	page       int
	pageSize   int
	searchKeys []string
	query      string

	validated *Pagination
}

func newPaginateCore() paginateCore { return paginateCore{page: 1} }

func (p *paginateCore) setPage(n int) {
	if n < 1 {
		n = 1
	}
	p.page = n
	p.markDirty()
}

func (p *paginateCore) setPageSize(n int) {
	p.pageSize = n
	p.markDirty()
}

func (p *paginateCore) setSearchKeys(ids []string) {
	p.searchKeys = ids
	p.markDirty()
}

func (p *paginateCore) setSearch(q string) {
	p.query = q
	p.markDirty()
}

// ValidatedPagination returns the page bookkeeping computed the last
// time this extension derived a total row count, failing the way
// original_source/recipe/extensions.py's validated_pagination does
// when called before the recipe has run.
func (p *paginateCore) ValidatedPagination() (Pagination, error) {
	if p.validated == nil {
		return Pagination{}, rerrors.BadRecipe.New("validated_pagination can only be accessed after the recipe has run")
	}
	return *p.validated, nil
}

// addSearchFilter builds the pagination_q/pagination_search_keys OR
// filter, if any, and adds it to the recipe (spec §4.9).
func (p *paginateCore) addSearchFilter(r *recipe.Recipe) error {
	if p.query == "" || len(p.searchKeys) == 0 {
		return nil
	}

	var combined expression.Expression
	for _, key := range p.searchKeys {
		ing, err := shelf.Find(r.Shelf(), key, ingredient.KindDimension)
		if err != nil {
			return err
		}
		expr, err := ing.FilterExpression(p.query, "ilike", "")
		if err != nil {
			return err
		}
		if combined == nil {
			combined = expr
			continue
		}
		combined = &expression.Binary{DT: sql.Bool, Op: "OR", LHS: combined, RHS: expr}
	}
	if combined == nil {
		return nil
	}
	r.Filters(ingredient.NewFilter(combined))
	return nil
}

// resolveFromColumn reads a total row count an inline variant embedded
// as column in its own result rows, and clamps the requested page
// against it. If rows is empty (the requested offset ran past every
// matching row) the total can't be recovered from this result set —
// totalItems is reported as -1 and the validated page is left at the
// request, a known limitation of deriving the count from the same
// limited query rather than a second one (see Paginate).
func (p *paginateCore) resolveFromColumn(rows []sql.Row, column string) Pagination {
	total := -1
	if len(rows) > 0 {
		switch v := rows[0][column].(type) {
		case int:
			total = v
		case int64:
			total = int(v)
		case float64:
			total = int(v)
		}
	}

	page := p.page
	if total >= 0 {
		page, _ = clampPage(p.page, p.pageSize, total)
	}
	pagination := Pagination{RequestedPage: p.page, Page: page, PageSize: p.pageSize, TotalItems: total}
	p.validated = &pagination
	return pagination
}

// Paginate turns a page/page-size request into a recipe's Limit/Offset
// — the "second query" variant spec §4.9 names, grounded on
// original_source/recipe/extensions.py's Paginate. By itself it does
// not clamp the requested page; call Validate first to derive the
// total row count with a second COUNT query (Recipe.TotalCount) and
// clamp the requested page to [1, ceil(total/size)] before Query/All
// ever renders the limited query.
//
// Validate is a separate, caller-invoked step rather than something
// ModifyPostqueryParts does automatically: Recipe.TotalCount performs
// real I/O and re-assembles the recipe's query parts from scratch, and
// Query/assembleParts are otherwise pure, I/O-free builders (the only
// I/O boundary is All/TotalCount themselves) — calling TotalCount from
// inside this extension's own ModifyPostqueryParts would make every
// Query() call on a Paginate'd recipe silently require a session and
// perform a database round trip, and would reenter assembleParts (and
// this extension's own hook) while already inside it.
type Paginate struct {
	paginateCore
}

// NewPaginate builds a Paginate extension defaulting to page 1 with no
// page size limit (unlimited, pagination disabled).
func NewPaginate() *Paginate { return &Paginate{paginateCore: newPaginateCore()} }

// Page sets the 1-indexed page number requested.
func (p *Paginate) Page(n int) *Paginate { p.setPage(n); return p }

// PageSize sets how many rows each page holds; zero means unlimited.
func (p *Paginate) PageSize(n int) *Paginate { p.setPageSize(n); return p }

// SearchKeys names the dimension ids an incoming search query is ORed
// across.
func (p *Paginate) SearchKeys(ids ...string) *Paginate { p.setSearchKeys(ids); return p }

// Search sets the free-text query matched with ilike against
// SearchKeys' dimensions.
func (p *Paginate) Search(q string) *Paginate { p.setSearch(q); return p }

// ValidatedPagination returns the page bookkeeping Validate last
// computed, failing if Validate hasn't been called yet.
func (p *Paginate) ValidatedPagination() (Pagination, error) { return p.paginateCore.ValidatedPagination() }

func (p *Paginate) AddIngredients(r *recipe.Recipe) error { return p.addSearchFilter(r) }

// ModifyRecipeParts applies the (possibly Validate-clamped) page and
// page size as a Limit/Offset on the recipe itself.
func (p *Paginate) ModifyRecipeParts(r *recipe.Recipe, parts *recipe.QueryParts) (*recipe.QueryParts, error) {
	if p.pageSize > 0 {
		r.Limit(p.pageSize)
		r.Offset(p.pageSize * (p.page - 1))
	}
	return parts, nil
}

// Validate derives r's total row count (spec §8 invariant 7's
// unlimited count, via Recipe.TotalCount) and clamps the requested
// page to [1, ceil(total/size)], so the next Query/All call renders
// the clamped page instead of whatever was requested. It performs a
// real COUNT query and must be called before Query/All, not from
// within an extension hook.
func (p *Paginate) Validate(ctx context.Context, r *recipe.Recipe) error {
	if p.pageSize <= 0 {
		return nil
	}

	total, err := r.TotalCount(ctx)
	if err != nil {
		return err
	}

	page, _ := clampPage(p.page, p.pageSize, total)
	validated := Pagination{RequestedPage: p.page, Page: page, PageSize: p.pageSize, TotalItems: total}
	p.validated = &validated

	p.setPage(page)
	return nil
}

// PaginateInline is Paginate's "add the count to the same SELECT"
// variant: instead of a second COUNT query, it adds a scalar subquery
// column that counts the recipe's own (pre-limit) rows, so the total
// rides along in every returned row. It cannot clamp the requested
// page before running the query — the total isn't known until the
// query returns — so callers that need proactive clamping for
// out-of-range pages should use Paginate instead.
type PaginateInline struct {
	paginateCore
}

// NewPaginateInline builds a PaginateInline extension defaulting to
// page 1 with no page size limit.
func NewPaginateInline() *PaginateInline { return &PaginateInline{paginateCore: newPaginateCore()} }

func (p *PaginateInline) Page(n int) *PaginateInline     { p.setPage(n); return p }
func (p *PaginateInline) PageSize(n int) *PaginateInline { p.setPageSize(n); return p }

func (p *PaginateInline) SearchKeys(ids ...string) *PaginateInline {
	p.setSearchKeys(ids)
	return p
}

func (p *PaginateInline) Search(q string) *PaginateInline { p.setSearch(q); return p }

func (p *PaginateInline) AddIngredients(r *recipe.Recipe) error { return p.addSearchFilter(r) }

// Resolve reads the embedded total off rows (a recipe's All() result)
// and returns the validated pagination, also caching it for
// ValidatedPagination.
func (p *PaginateInline) Resolve(rows []sql.Row) Pagination {
	return p.resolveFromColumn(rows, "pagination_total")
}

// ValidatedPagination returns the page bookkeeping Resolve last
// computed, failing if Resolve hasn't been called yet.
func (p *PaginateInline) ValidatedPagination() (Pagination, error) {
	return p.paginateCore.ValidatedPagination()
}

func (p *PaginateInline) ModifyPostqueryParts(r *recipe.Recipe, parts *recipe.QueryParts) (*recipe.QueryParts, error) {
	if p.pageSize <= 0 {
		return parts, nil
	}

	innerSQL, innerArgs := recipe.RenderParts(r.Drivername(), r.SourceName(), parts)
	parts.Columns = append(parts.Columns, ingredient.LabeledColumn{
		Label: "pagination_total",
		Expr: &expression.Raw{
			DT:   sql.Num,
			Text: fmt.Sprintf("(SELECT COUNT(*) FROM (%s) AS pagination_count)", innerSQL),
			Args: innerArgs,
		},
	})

	r.Limit(p.pageSize)
	r.Offset(p.pageSize * (p.page - 1))
	return parts, nil
}

// PaginateCountOver is Paginate's `COUNT(*) OVER ()` variant: the same
// idea as PaginateInline, but the total rides along as a window
// function over the recipe's own result set instead of a scalar
// COUNT subquery — one pass over the rows instead of two.
type PaginateCountOver struct {
	paginateCore
}

// NewPaginateCountOver builds a PaginateCountOver extension defaulting
// to page 1 with no page size limit.
func NewPaginateCountOver() *PaginateCountOver {
	return &PaginateCountOver{paginateCore: newPaginateCore()}
}

func (p *PaginateCountOver) Page(n int) *PaginateCountOver     { p.setPage(n); return p }
func (p *PaginateCountOver) PageSize(n int) *PaginateCountOver { p.setPageSize(n); return p }

func (p *PaginateCountOver) SearchKeys(ids ...string) *PaginateCountOver {
	p.setSearchKeys(ids)
	return p
}

func (p *PaginateCountOver) Search(q string) *PaginateCountOver { p.setSearch(q); return p }

func (p *PaginateCountOver) AddIngredients(r *recipe.Recipe) error { return p.addSearchFilter(r) }

// Resolve reads the embedded total off rows (a recipe's All() result)
// and returns the validated pagination, also caching it for
// ValidatedPagination.
func (p *PaginateCountOver) Resolve(rows []sql.Row) Pagination {
	return p.resolveFromColumn(rows, "pagination_total")
}

// ValidatedPagination returns the page bookkeeping Resolve last
// computed, failing if Resolve hasn't been called yet.
func (p *PaginateCountOver) ValidatedPagination() (Pagination, error) {
	return p.paginateCore.ValidatedPagination()
}

func (p *PaginateCountOver) ModifyPostqueryParts(r *recipe.Recipe, parts *recipe.QueryParts) (*recipe.QueryParts, error) {
	if p.pageSize <= 0 {
		return parts, nil
	}

	parts.Columns = append(parts.Columns, ingredient.LabeledColumn{
		Label: "pagination_total",
		Expr:  &expression.Raw{DT: sql.Num, Text: "COUNT(*) OVER ()"},
	})

	r.Limit(p.pageSize)
	r.Offset(p.pageSize * (p.page - 1))
	return parts, nil
}
