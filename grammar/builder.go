// Package grammar produces the PEG-shaped grammar text described in spec
// §4.2 and hashes it for cache-keying (spec §4.2, §8 invariant 1).
//
// The parser (package parser) does not literally interpret this grammar
// text the way a generated PEG/Earley parser would; it is a hand-written
// recursive-descent parser parameterized by the same ColCollection. The
// grammar text still exists because it is the cache key's other half and
// because it documents, byte for byte, which terminals and precedence
// rules a given catalog makes available — see DESIGN.md for the rationale.
package grammar

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/juiceinc/recipe/catalog"
	"github.com/juiceinc/recipe/sql"
)

// Build renders the grammar text for cc, per spec §4.2.
func Build(cc *catalog.ColCollection) string {
	var b strings.Builder

	b.WriteString("// column terminals\n")
	for _, c := range sortedColumns(cc) {
		fmt.Fprintf(&b, "%s: \"[\" /%si/ \"]\" | /%si/\n", c.RuleName(), escapeRegex(c.FieldName()), escapeRegex(c.FieldName()))
	}

	b.WriteString("\n// datatype unions\n")
	for _, dt := range []sql.Datatype{sql.Str, sql.Num, sql.Bool, sql.Date, sql.Datetime} {
		names := ruleNamesOfDatatype(cc, dt)
		fmt.Fprintf(&b, "%s_expr: %s\n", dt, strings.Join(append(names, literalAndOpRulesFor(dt)...), " | "))
	}

	b.WriteString("\n// operators\n")
	b.WriteString("num_add: num_expr \"+\" num_expr\n")
	b.WriteString("num_sub: num_expr \"-\" num_expr\n")
	b.WriteString("num_mul: num_expr \"*\" num_expr\n")
	b.WriteString("num_div: num_expr \"/\" num_expr\n")
	b.WriteString("string_add: str_expr \"+\" str_expr\n")

	b.WriteString("\n// boolean algebra\n")
	b.WriteString("not_boolean: \"not\" bool_expr\n")
	b.WriteString("and_boolean: bool_expr \"and\" bool_expr\n")
	b.WriteString("or_boolean: bool_expr \"or\" bool_expr\n")
	for _, comp := range []string{"=", "!=", "<>", "<", "<=", ">", ">=", "is", "is not"} {
		fmt.Fprintf(&b, "bool_expr: expr %q expr\n", comp)
	}
	b.WriteString("vector_expr: expr (\"in\" | \"not in\") \"(\" list \")\"\n")
	b.WriteString("between_expr: expr \"between\" expr \"and\" expr\n")
	b.WriteString("like_expr: str_expr (\"like\" | \"ilike\") ESCAPED_STRING\n")
	b.WriteString("intelligent_date_expr: expr \"is\" offset units\n")

	b.WriteString("\n// date/datetime intrinsics\n")
	b.WriteString("date_fn: \"date(\" ESCAPED_STRING \")\"\n")
	b.WriteString("datetime_fn: \"datetime(\" ESCAPED_STRING \")\"\n")
	b.WriteString("date_ymd_fn: \"date(\" NUMBER \",\" NUMBER \",\" NUMBER \")\"\n")
	for _, unit := range []string{"day", "week", "month", "quarter", "year"} {
		fmt.Fprintf(&b, "%s_conv: %q \"(\" expr \")\"\n", unit, unit)
	}
	b.WriteString("age_conv: \"age(\" expr \")\"\n")

	b.WriteString("\n// aggregations\n")
	for _, agg := range []string{"sum", "min", "max", "avg", "count", "count_distinct", "median"} {
		fmt.Fprintf(&b, "%s_aggr: %q \"(\" expr \")\"\n", agg, agg)
	}
	for _, p := range percentileLevels {
		fmt.Fprintf(&b, "percentile%d_aggr: \"percentile%d(\" expr \")\"\n", p, p)
	}
	b.WriteString("count_star_aggr: \"count(*)\"\n")

	b.WriteString("\n// if\n")
	b.WriteString("if_statement: \"if(\" (bool_expr \",\" expr \",\")+ expr? \")\"\n")

	b.WriteString("\n// error-catching rules\n")
	for _, name := range []string{
		"error_math", "error_aggr", "error_between_expr", "error_vector_expr",
		"error_if_statement", "error_not_nonboolean", "unknown_col", "unusable_col",
	} {
		fmt.Fprintf(&b, "%s: expr -> never\n", name)
	}

	return b.String()
}

var percentileLevels = []int{1, 5, 10, 25, 50, 75, 90, 95, 99}

func sortedColumns(cc *catalog.ColCollection) []catalog.Column {
	cols := append([]catalog.Column{}, cc.Columns()...)
	sort.SliceStable(cols, func(i, j int) bool {
		if cols[i].Datatype != cols[j].Datatype {
			return cols[i].Datatype < cols[j].Datatype
		}
		return cols[i].Idx < cols[j].Idx
	})
	return cols
}

func ruleNamesOfDatatype(cc *catalog.ColCollection, dt sql.Datatype) []string {
	var out []string
	for _, c := range cc.OfDatatype(dt) {
		out = append(out, c.RuleName())
	}
	return out
}

func literalAndOpRulesFor(dt sql.Datatype) []string {
	switch dt {
	case sql.Str:
		return []string{"ESCAPED_STRING", "string_add", "string_cast", "if_statement", "coalesce"}
	case sql.Num:
		return []string{"NUMBER", "num_add", "num_sub", "num_mul", "num_div", "sum_aggr",
			"min_aggr", "max_aggr", "avg_aggr", "count_aggr", "count_distinct_aggr",
			"median_aggr", "age_conv", "if_statement", "coalesce"}
	case sql.Bool:
		return []string{"TRUE", "FALSE", "not_boolean", "and_boolean", "or_boolean",
			"bool_expr", "vector_expr", "between_expr", "like_expr", "intelligent_date_expr"}
	case sql.Date:
		return []string{"date_fn", "date_ymd_fn", "day_conv", "week_conv", "month_conv",
			"quarter_conv", "year_conv", "if_statement", "coalesce"}
	case sql.Datetime:
		return []string{"datetime_fn", "if_statement", "coalesce"}
	default:
		return nil
	}
}

func escapeRegex(s string) string {
	r := strings.NewReplacer(".", `\.`, "(", `\(`, ")", `\)`)
	return r.Replace(s)
}

// Hash is the SHA-1 hex digest of text, spec §4.2: "The grammar hash is the
// SHA-1 of the grammar text and is used as a cache key".
func Hash(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
