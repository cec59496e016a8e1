// Package validator walks a parsed syntax tree once and collects
// human-readable diagnostics (spec §4.4, component C4).
package validator

import (
	"fmt"

	"github.com/juiceinc/recipe/parser"
	"github.com/juiceinc/recipe/rerrors"
	"github.com/juiceinc/recipe/sql"
)

// Options configures validation, mirroring the flags that are also part
// of the parse-tree cache key (spec §4.3).
type Options struct {
	ForbidAggregation  bool
	Drivername         string
	AllowedPercentiles map[int]bool
}

// Result is what the validator hands to the transformer.
type Result struct {
	Diagnostics      []rerrors.Diagnostic
	FoundAggregation bool
	LastDatatype     sql.Datatype
}

var defaultAllowedPercentiles = map[int]bool{
	1: true, 5: true, 10: true, 25: true, 50: true, 75: true, 90: true, 95: true, 99: true,
}

// Validate walks tree once and returns a Result. Its only change to tree
// is setting each IF node's Datatype to the type its value branches
// share; the transformer (package transform) does its own pass to lower
// it.
func Validate(tree *parser.Node, sourceText string, opts Options) Result {
	v := &walker{sourceText: sourceText, opts: opts}
	if v.opts.AllowedPercentiles == nil {
		v.opts.AllowedPercentiles = defaultAllowedPercentiles
	}
	v.walk(tree)
	return Result{
		Diagnostics:      v.diags,
		FoundAggregation: v.foundAggregation,
		LastDatatype:     tree.Datatype,
	}
}

type walker struct {
	sourceText       string
	opts             Options
	diags            []rerrors.Diagnostic
	foundAggregation bool
}

func (v *walker) report(offset int, message string) {
	v.diags = append(v.diags, rerrors.Diagnostic{
		Message: message,
		Offset:  offset,
		Snippet: rerrors.Snippet(v.sourceText, offset, 40),
	})
}

var mathVerb = map[string]string{
	"+": "added together", "-": "subtracted", "*": "multiplied together", "/": "divided",
}

func (v *walker) walk(n *parser.Node) {
	if n == nil {
		return
	}
	for _, c := range n.Children {
		v.walk(c)
	}

	switch n.Kind {
	case parser.KindErrorUnknownCol:
		v.report(n.Offset, fmt.Sprintf("%s is not a valid column name", n.Text))

	case parser.KindErrorUnusableCol:
		v.report(n.Offset, fmt.Sprintf("%s has a column type that is recognized but not supported", n.Text))

	case parser.KindErrorMath:
		lhs, rhs := n.Children[0], n.Children[1]
		v.report(n.Offset, fmt.Sprintf("%s and %s can not be %s", lhs.Datatype, rhs.Datatype, mathVerb[n.Text]))

	case parser.KindErrorAggr:
		v.report(n.Offset, fmt.Sprintf("A %s can not be aggregated using %s.", n.Children[0].Datatype, n.Text))

	case parser.KindErrorBetween:
		v.report(n.Offset, "BETWEEN requires a lower bound AND an upper bound")

	case parser.KindErrorVector:
		v.report(n.Offset, "LIKE/ILIKE requires a string pattern on the right-hand side")

	case parser.KindErrorIf:
		v.report(n.Offset, "IF requires at least a condition and a value")

	case parser.KindErrorNotNonBoolean:
		v.report(n.Offset, fmt.Sprintf("NOT requires a boolean expression, got %s", n.Children[0].Datatype))

	case parser.KindAggr:
		v.foundAggregation = true
		if v.opts.ForbidAggregation {
			v.report(n.Offset, fmt.Sprintf("%s can not be used here: aggregations are not allowed in this context", n.Text))
		}
		if lvl, ok := percentileLevel(n.Text); ok {
			if !v.opts.AllowedPercentiles[lvl] {
				v.report(n.Offset, fmt.Sprintf("percentile values of %d is not supported.", lvl))
			}
			if v.opts.Drivername == "sqlite" {
				v.report(n.Offset, "Percentile is not supported on sqlite")
			}
		}
		if n.Text == "median" && v.opts.Drivername == "sqlite" {
			v.report(n.Offset, "median is not supported on sqlite")
		}

	case parser.KindAgeConv:
		if v.opts.Drivername == "sqlite" {
			v.report(n.Offset, "Age is not supported on sqlite")
		}

	case parser.KindCompare:
		v.checkCompare(n)

	case parser.KindBetween:
		v.checkBetween(n)

	case parser.KindIf:
		v.checkIf(n)
	}
}

func percentileLevel(name string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(name, "percentile%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

func coercible(a, b sql.Datatype) bool {
	if a == b {
		return true
	}
	// date<->datetime, and date/datetime vs string (coerced in C5).
	dateLike := func(dt sql.Datatype) bool { return dt == sql.Date || dt == sql.Datetime }
	if dateLike(a) && dateLike(b) {
		return true
	}
	if (dateLike(a) && b == sql.Str) || (dateLike(b) && a == sql.Str) {
		return true
	}
	return false
}

func (v *walker) checkCompare(n *parser.Node) {
	lhs, rhs := n.Children[0], n.Children[1]
	if n.Text == "is" || n.Text == "isnot" {
		if rhs.Kind == parser.KindLiteralNull {
			return
		}
	}
	if !coercible(lhs.Datatype, rhs.Datatype) {
		v.report(n.Offset, fmt.Sprintf("%s and %s can not be compared", lhs.Datatype, rhs.Datatype))
	}
}

func (v *walker) checkBetween(n *parser.Node) {
	col, low, high := n.Children[0], n.Children[1], n.Children[2]
	if !coercible(col.Datatype, low.Datatype) || !coercible(col.Datatype, high.Datatype) {
		v.report(n.Offset, fmt.Sprintf("BETWEEN bounds of type %s/%s do not match column type %s", low.Datatype, high.Datatype, col.Datatype))
	}
}

func (v *walker) checkIf(n *parser.Node) {
	args := n.Children
	var valueType sql.Datatype
	haveType := false
	for i, a := range args {
		isCondition := i%2 == 0 && i != len(args)-1
		if isCondition {
			if a.Datatype != sql.Bool {
				v.report(a.Offset, fmt.Sprintf("IF condition %d must be boolean, got %s", i/2+1, a.Datatype))
			}
			continue
		}
		if !haveType {
			valueType = a.Datatype
			haveType = true
			continue
		}
		if a.Datatype != valueType {
			v.report(a.Offset, fmt.Sprintf("IF branches must all share one datatype: expected %s, got %s", valueType, a.Datatype))
		}
	}
	if haveType {
		n.Datatype = valueType
	}
}
