// Package transform lowers a validated syntax tree (package parser) into
// a driver-specific relational-expression tree (package expression),
// component C5 of spec §4.5. Lowering assumes the tree has already
// passed package validator; it does not re-derive datatypes and treats
// any KindErrorX node it still encounters as a programmer error.
package transform

import (
	"fmt"
	"time"

	"github.com/juiceinc/recipe/dateutil"
	"github.com/juiceinc/recipe/expression"
	"github.com/juiceinc/recipe/parser"
	"github.com/juiceinc/recipe/rerrors"
	"github.com/juiceinc/recipe/sql"
)

// Options configures how a tree is lowered.
type Options struct {
	Drivername string
}

// Lower converts n into a backend expression. fieldText is the original
// source text, used only to build a GrammarError with a caret snippet
// when lowering fails.
func Lower(n *parser.Node, fieldText string, opts Options) (expression.Expression, error) {
	e, err := lower(n, fieldText, opts)
	if err != nil {
		return nil, rerrors.NewGrammarError(fieldText, []rerrors.Diagnostic{
			{Message: err.Error(), Offset: n.Offset, Snippet: rerrors.Snippet(fieldText, n.Offset, 1)},
		})
	}
	return e, nil
}

func lower(n *parser.Node, fieldText string, opts Options) (expression.Expression, error) {
	switch n.Kind {
	case parser.KindLiteralString:
		return &expression.Literal{DT: sql.Str, Value: n.Value}, nil
	case parser.KindLiteralNumber:
		return &expression.Literal{DT: sql.Num, Value: n.Value}, nil
	case parser.KindLiteralBool:
		return &expression.Literal{DT: sql.Bool, Value: n.Value}, nil
	case parser.KindLiteralNull:
		return &expression.Literal{DT: sql.Unusable, Value: nil}, nil
	case parser.KindStar:
		return &expression.Raw{DT: sql.Num, Text: "*"}, nil
	case parser.KindColumn:
		return &expression.Column{DT: n.Column.Datatype, Name: n.Column.FieldName(), SQLACol: n.Column.SQLACol}, nil

	case parser.KindAdd:
		return lowerBinary(n, fieldText, opts, "+")
	case parser.KindSub:
		return lowerBinary(n, fieldText, opts, "-")
	case parser.KindMul:
		return lowerBinary(n, fieldText, opts, "*")
	case parser.KindDiv:
		return lowerDiv(n, fieldText, opts)
	case parser.KindStringConcat:
		return lowerConcat(n, fieldText, opts)

	case parser.KindAnd:
		return lowerBinary(n, fieldText, opts, "AND")
	case parser.KindOr:
		return lowerBinary(n, fieldText, opts, "OR")
	case parser.KindNot:
		operand, err := lower(n.Children[0], fieldText, opts)
		if err != nil {
			return nil, err
		}
		return &expression.Unary{DT: sql.Bool, Op: "NOT", Operand: operand}, nil

	case parser.KindCompare:
		return lowerCompare(n, fieldText, opts)
	case parser.KindBetween:
		return lowerBetween(n, fieldText, opts)
	case parser.KindVector:
		return lowerVector(n, fieldText, opts)
	case parser.KindLike:
		return lowerLike(n, fieldText, opts)
	case parser.KindIntelligentDate:
		return lowerIntelligentDate(n)

	case parser.KindDateFn:
		d, err := dateutil.ParseDate(n.Value.(string))
		if err != nil {
			return nil, err
		}
		return &expression.Literal{DT: sql.Date, Value: d.Time()}, nil
	case parser.KindDatetimeFn:
		t, err := dateutil.ParseDatetime(n.Value.(string))
		if err != nil {
			return nil, err
		}
		return &expression.Literal{DT: sql.Datetime, Value: t}, nil
	case parser.KindDateYMDFn:
		return lowerDateYMD(n, fieldText, opts)
	case parser.KindDateConv:
		return lowerDateConv(n, fieldText, opts)
	case parser.KindAgeConv:
		return lowerAgeConv(n, fieldText, opts)
	case parser.KindStringCast:
		child, err := lower(n.Children[0], fieldText, opts)
		if err != nil {
			return nil, err
		}
		return &expression.Cast{DT: sql.Str, Expr: child, Type: stringCastType(opts.Drivername)}, nil
	case parser.KindIntCast:
		child, err := lower(n.Children[0], fieldText, opts)
		if err != nil {
			return nil, err
		}
		return &expression.Cast{DT: sql.Num, Expr: child, Type: intCastType(opts.Drivername)}, nil
	case parser.KindCoalesce:
		a, err := lower(n.Children[0], fieldText, opts)
		if err != nil {
			return nil, err
		}
		b, err := lower(n.Children[1], fieldText, opts)
		if err != nil {
			return nil, err
		}
		return &expression.Func{DT: n.Datatype, Name: "COALESCE", Args: []expression.Expression{a, b}}, nil

	case parser.KindAggr:
		return lowerAggr(n, fieldText, opts)
	case parser.KindIf:
		return lowerIf(n, fieldText, opts)
	}

	return nil, fmt.Errorf("internal: unvalidated node kind %d reached the transformer", n.Kind)
}

func lowerChildren(n *parser.Node, fieldText string, opts Options) ([]expression.Expression, error) {
	out := make([]expression.Expression, len(n.Children))
	for i, c := range n.Children {
		e, err := lower(c, fieldText, opts)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func lowerBinary(n *parser.Node, fieldText string, opts Options, op string) (expression.Expression, error) {
	kids, err := lowerChildren(n, fieldText, opts)
	if err != nil {
		return nil, err
	}
	return &expression.Binary{DT: n.Datatype, Op: op, LHS: kids[0], RHS: kids[1]}, nil
}

// lowerDiv implements spec §4.5 safe division: dividing by the literal 1
// is identity, dividing by the literal 0 is a compile-time GrammarError,
// and every other division is wrapped so a runtime zero (or NULL)
// divisor yields NULL instead of a database error
// (original_source/recipe/schemas/transformers.py's safe_divide).
func lowerDiv(n *parser.Node, fieldText string, opts Options) (expression.Expression, error) {
	lhsNode, rhsNode := n.Children[0], n.Children[1]
	if rhsNode.Kind == parser.KindLiteralNumber {
		switch v := rhsNode.Value.(float64); v {
		case 1:
			return lower(lhsNode, fieldText, opts)
		case 0:
			return nil, fmt.Errorf("can't divide by the literal 0")
		}
	}
	lhs, err := lower(lhsNode, fieldText, opts)
	if err != nil {
		return nil, err
	}
	rhs, err := lower(rhsNode, fieldText, opts)
	if err != nil {
		return nil, err
	}
	guard := &expression.Binary{DT: sql.Bool, Op: "OR",
		LHS: &expression.IsNull{Expr: rhs},
		RHS: &expression.Binary{DT: sql.Bool, Op: "=", LHS: rhs, RHS: &expression.Literal{DT: sql.Num, Value: 0.0}},
	}
	return &expression.Case{
		DT: sql.Num,
		Whens: []expression.WhenThen{
			{When: guard, Then: &expression.Literal{DT: sql.Num, Value: nil}},
		},
		Else: &expression.Binary{DT: sql.Num, Op: "/", LHS: lhs, RHS: rhs},
	}, nil
}

func lowerConcat(n *parser.Node, fieldText string, opts Options) (expression.Expression, error) {
	kids, err := lowerChildren(n, fieldText, opts)
	if err != nil {
		return nil, err
	}
	if opts.Drivername == DriverMSSQL {
		return &expression.Binary{DT: sql.Str, Op: "+", LHS: kids[0], RHS: kids[1]}, nil
	}
	if opts.Drivername == DriverBigQuery {
		return &expression.Func{DT: sql.Str, Name: "CONCAT", Args: kids}, nil
	}
	return &expression.Binary{DT: sql.Str, Op: "||", LHS: kids[0], RHS: kids[1]}, nil
}

var compareOps = map[string]string{
	"=": "=", "!=": "!=", "<>": "<>", "<": "<", "<=": "<=", ">": ">", ">=": ">=",
}

func lowerCompare(n *parser.Node, fieldText string, opts Options) (expression.Expression, error) {
	lhs, err := lower(n.Children[0], fieldText, opts)
	if err != nil {
		return nil, err
	}
	rhs, err := lower(n.Children[1], fieldText, opts)
	if err != nil {
		return nil, err
	}
	if op, ok := compareOps[n.Text]; ok {
		return &expression.Binary{DT: sql.Bool, Op: op, LHS: lhs, RHS: rhs}, nil
	}
	// "is" / "isnot" against a null literal lower to IS [NOT] NULL; against
	// anything else they behave like "="/"!=".
	if n.Children[1].Kind == parser.KindLiteralNull {
		return &expression.IsNull{Expr: lhs, Not: n.Text == "isnot"}, nil
	}
	op := "="
	if n.Text == "isnot" {
		op = "!="
	}
	return &expression.Binary{DT: sql.Bool, Op: op, LHS: lhs, RHS: rhs}, nil
}

func lowerBetween(n *parser.Node, fieldText string, opts Options) (expression.Expression, error) {
	kids, err := lowerChildren(n, fieldText, opts)
	if err != nil {
		return nil, err
	}
	return &expression.Between{Expr: kids[0], Low: kids[1], High: kids[2]}, nil
}

func lowerVector(n *parser.Node, fieldText string, opts Options) (expression.Expression, error) {
	kids, err := lowerChildren(n, fieldText, opts)
	if err != nil {
		return nil, err
	}
	return &expression.InList{Expr: kids[0], Items: kids[1:], Not: n.Text == "notin"}, nil
}

func lowerLike(n *parser.Node, fieldText string, opts Options) (expression.Expression, error) {
	kids, err := lowerChildren(n, fieldText, opts)
	if err != nil {
		return nil, err
	}
	op := "LIKE"
	if n.Text == "ilike" {
		switch opts.Drivername {
		case DriverPostgres, DriverRedshift:
			op = "ILIKE"
		default:
			// No native ILIKE: fold both sides to lowercase (mirrors the
			// Python implementation's portable ilike fallback).
			return &expression.Binary{DT: sql.Bool, Op: "LIKE",
				LHS: &expression.Func{DT: sql.Str, Name: "LOWER", Args: []expression.Expression{kids[0]}},
				RHS: &expression.Func{DT: sql.Str, Name: "LOWER", Args: []expression.Expression{kids[1]}},
			}, nil
		}
	}
	return &expression.Binary{DT: sql.Bool, Op: op, LHS: kids[0], RHS: kids[1]}, nil
}

// lowerIntelligentDate lowers `col IS {offset} {unit}` (spec §4.5) into a
// BETWEEN against the window calc_date_range produces, anchored to
// time.Now() at the moment of lowering; there is no way to supply a
// different "today".
func lowerIntelligentDate(n *parser.Node) (expression.Expression, error) {
	col, err := lower(n.Children[0], "", Options{})
	if err != nil {
		return nil, err
	}
	parts := splitOffsetUnit(n.Text)
	start, end, err := dateutil.CalcDateRange(parts[0], parts[1], time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &expression.Between{
		Expr: col,
		Low:  &expression.Literal{DT: sql.Date, Value: start},
		High: &expression.Literal{DT: sql.Date, Value: end},
	}, nil
}

func splitOffsetUnit(text string) [2]string {
	for i := 0; i < len(text); i++ {
		if text[i] == ' ' {
			return [2]string{text[:i], text[i+1:]}
		}
	}
	return [2]string{text, ""}
}

func lowerDateYMD(n *parser.Node, fieldText string, opts Options) (expression.Expression, error) {
	kids, err := lowerChildren(n, fieldText, opts)
	if err != nil {
		return nil, err
	}
	return &expression.Func{DT: sql.Date, Name: "make_date", Args: kids}, nil
}

func lowerDateConv(n *parser.Node, fieldText string, opts Options) (expression.Expression, error) {
	unit := n.Text
	if (unit == "week" || unit == "quarter") && !supportsWeekQuarter(opts.Drivername) {
		return nil, fmt.Errorf("%s truncation is not supported on %s", unit, opts.Drivername)
	}
	child, err := lower(n.Children[0], fieldText, opts)
	if err != nil {
		return nil, err
	}
	return truncExprFor(opts.Drivername, unit, child), nil
}

func lowerAgeConv(n *parser.Node, fieldText string, opts Options) (expression.Expression, error) {
	if !supportsAge(opts.Drivername) {
		return nil, fmt.Errorf("age() is not supported on %s", opts.Drivername)
	}
	child, err := lower(n.Children[0], fieldText, opts)
	if err != nil {
		return nil, err
	}
	return ageExprFor(opts.Drivername, child), nil
}

func stringCastType(driver string) string {
	switch driver {
	case DriverMSSQL:
		return "VARCHAR(255)"
	case DriverBigQuery:
		return "STRING"
	default:
		return "TEXT"
	}
}

func intCastType(driver string) string {
	switch driver {
	case DriverMSSQL:
		return "INT"
	case DriverBigQuery:
		return "INT64"
	default:
		return "INTEGER"
	}
}

func lowerAggr(n *parser.Node, fieldText string, opts Options) (expression.Expression, error) {
	name := n.Text
	if name == "count" && len(n.Children) == 1 && n.Children[0].Kind == parser.KindStar {
		return &expression.Raw{DT: sql.Num, Text: "count(*)"}, nil
	}
	child, err := lower(n.Children[0], fieldText, opts)
	if err != nil {
		return nil, err
	}
	if p, ok := percentileNumber(name); ok {
		return percentileFuncFor(opts.Drivername, p, child)
	}
	if name == "median" {
		return medianFuncFor(opts.Drivername, child)
	}
	if name == "count_distinct" {
		return &expression.Func{DT: sql.Num, Name: "count", Args: []expression.Expression{
			&expression.Distinct{Operand: child},
		}}, nil
	}
	return &expression.Func{DT: n.Datatype, Name: name, Args: []expression.Expression{child}}, nil
}

func percentileNumber(name string) (int, bool) {
	const prefix = "percentile"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return 0, false
	}
	n := 0
	for _, c := range name[len(prefix):] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// lowerIf lowers if(cond1, then1, cond2, then2, ..., [else]) (spec §4.5)
// into a CASE expression, in source order.
func lowerIf(n *parser.Node, fieldText string, opts Options) (expression.Expression, error) {
	kids, err := lowerChildren(n, fieldText, opts)
	if err != nil {
		return nil, err
	}
	var whens []expression.WhenThen
	i := 0
	for ; i+1 < len(kids); i += 2 {
		whens = append(whens, expression.WhenThen{When: kids[i], Then: kids[i+1]})
	}
	var elseExpr expression.Expression
	if i < len(kids) {
		elseExpr = kids[i]
	}
	return &expression.Case{DT: n.Datatype, Whens: whens, Else: elseExpr}, nil
}
