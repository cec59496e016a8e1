package recipe

import (
	"strconv"
	"strings"

	"github.com/juiceinc/recipe/transform"
)

// RenderParts renders parts as a standalone, unlimited SELECT, for an
// extension (SummarizeOver, BlendRecipe, CompareRecipe) that needs a
// recipe's current query as subquery text to wrap or join against
// rather than execute directly.
func RenderParts(driver, sourceName string, parts *QueryParts) (string, []interface{}) {
	return renderSelect(driver, sourceName, parts, 0, 0)
}

// renderSelect assembles the final SELECT text and its positional args
// from parts, following the column/group-by/filter/having/order-by/
// limit-offset shape every driver shares (spec §4.8 step 8), with
// mssql's OFFSET/FETCH syntax substituted for LIMIT/OFFSET per the
// driver table (spec §4.5).
func renderSelect(driver, sourceName string, parts *QueryParts, limit, offset int) (string, []interface{}) {
	var b strings.Builder
	var args []interface{}

	b.WriteString("SELECT ")
	for i, c := range parts.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		sqltext, a := c.Expr.SQL(driver)
		args = append(args, a...)
		b.WriteString(sqltext)
		b.WriteString(" AS ")
		b.WriteString(c.Label)
	}

	b.WriteString(" FROM ")
	b.WriteString(sourceName)
	args = append(args, parts.SourceArgs...)

	if len(parts.Filters) > 0 {
		b.WriteString(" WHERE ")
		for i, f := range parts.Filters {
			if i > 0 {
				b.WriteString(" AND ")
			}
			sqltext, a := f.Expr.SQL(driver)
			args = append(args, a...)
			b.WriteString(sqltext)
		}
	}

	if len(parts.GroupBys) > 0 {
		b.WriteString(" GROUP BY ")
		for i, g := range parts.GroupBys {
			if i > 0 {
				b.WriteString(", ")
			}
			if g.Direct {
				sqltext, a := g.Expr.SQL(driver)
				args = append(args, a...)
				b.WriteString(sqltext)
			} else {
				b.WriteString(g.Label)
			}
		}
	}

	if len(parts.Havings) > 0 {
		b.WriteString(" HAVING ")
		for i, h := range parts.Havings {
			if i > 0 {
				b.WriteString(" AND ")
			}
			sqltext, a := h.Expr.SQL(driver)
			args = append(args, a...)
			b.WriteString(sqltext)
		}
	}

	hasOrderBy := len(parts.OrderBys) > 0
	if hasOrderBy {
		b.WriteString(" ORDER BY ")
		for i, o := range parts.OrderBys {
			if i > 0 {
				b.WriteString(", ")
			}
			sqltext, a := o.Expr.SQL(driver)
			args = append(args, a...)
			b.WriteString(sqltext)
			if o.Desc {
				b.WriteString(" DESC")
			}
		}
	}

	if limit == 0 && offset == 0 {
		return b.String(), args
	}

	if driver == transform.DriverMSSQL {
		if !hasOrderBy {
			b.WriteString(" ORDER BY (SELECT NULL)")
		}
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(offset))
		b.WriteString(" ROWS")
		if limit > 0 {
			b.WriteString(" FETCH NEXT ")
			b.WriteString(strconv.Itoa(limit))
			b.WriteString(" ROWS ONLY")
		}
		return b.String(), args
	}

	if limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(limit))
	}
	if offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(offset))
	}
	return b.String(), args
}
