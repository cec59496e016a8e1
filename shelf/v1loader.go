package shelf

import (
	"fmt"
	"strconv"

	"gopkg.in/src-d/go-vitess.v0/go/vt/sqlparser"

	"github.com/juiceinc/recipe/catalog"
	"github.com/juiceinc/recipe/expression"
	"github.com/juiceinc/recipe/sql"
)

// ParseV1Expression parses a raw SQL scalar expression (the "value" key
// of a v1/"structured" shelf config entry — spec §4.7, Open Question
// decision 1) using the vitess SQL parser, then maps the resulting AST
// into expression.Expression. No string concatenation or interpretation
// of the expression ever happens outside this AST walk.
//
// vitess has no standalone "parse one expression" entry point, so the
// text is wrapped as a single-column SELECT and the parsed tree is torn
// back down to its one expression — the standard trick for reusing a
// statement parser as an expression parser.
func ParseV1Expression(exprText string, cc ColumnResolver) (expression.Expression, error) {
	stmt, err := sqlparser.Parse("select " + exprText + " from dual")
	if err != nil {
		return nil, fmt.Errorf("could not parse expression %q: %w", exprText, err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok || len(sel.SelectExprs) != 1 {
		return nil, fmt.Errorf("expression %q is not a single scalar expression", exprText)
	}
	aliased, ok := sel.SelectExprs[0].(*sqlparser.AliasedExpr)
	if !ok {
		return nil, fmt.Errorf("expression %q is not a single scalar expression", exprText)
	}
	return vitessExprToExpression(aliased.Expr, cc)
}

// ColumnResolver looks a bare column name up against a catalog; package
// catalog's *ColCollection satisfies this directly.
type ColumnResolver interface {
	ByFieldName(name string) (catalog.Column, bool)
}

func vitessExprToExpression(e sqlparser.Expr, cc ColumnResolver) (expression.Expression, error) {
	switch v := e.(type) {
	case *sqlparser.ParenExpr:
		return vitessExprToExpression(v.Expr, cc)

	case *sqlparser.ColName:
		name := v.Name.String()
		if cc != nil {
			if col, ok := cc.ByFieldName(name); ok {
				return &expression.Column{DT: col.Datatype, Name: name, SQLACol: col.SQLACol}, nil
			}
		}
		return nil, fmt.Errorf("unknown column %q", name)

	case *sqlparser.SQLVal:
		return vitessLiteral(v)

	case *sqlparser.NullVal:
		return &expression.Literal{DT: sql.Unusable, Value: nil}, nil

	case *sqlparser.AndExpr, *sqlparser.OrExpr:
		return vitessBoolExpr(v, cc)

	case *sqlparser.NotExpr:
		operand, err := vitessExprToExpression(v.Expr, cc)
		if err != nil {
			return nil, err
		}
		return &expression.Unary{DT: sql.Bool, Op: "NOT", Operand: operand}, nil

	case *sqlparser.ComparisonExpr:
		left, err := vitessExprToExpression(v.Left, cc)
		if err != nil {
			return nil, err
		}
		right, err := vitessExprToExpression(v.Right, cc)
		if err != nil {
			return nil, err
		}
		return &expression.Binary{DT: sql.Bool, Op: comparisonOp(v.Operator), LHS: left, RHS: right}, nil

	case *sqlparser.BinaryExpr:
		left, err := vitessExprToExpression(v.Left, cc)
		if err != nil {
			return nil, err
		}
		right, err := vitessExprToExpression(v.Right, cc)
		if err != nil {
			return nil, err
		}
		return &expression.Binary{DT: sql.Num, Op: binaryOp(v.Operator), LHS: left, RHS: right}, nil

	case *sqlparser.FuncExpr:
		name := v.Name.Lowered()
		args := make([]expression.Expression, 0, len(v.Exprs))
		for _, se := range v.Exprs {
			aliased, ok := se.(*sqlparser.AliasedExpr)
			if !ok {
				continue // *sqlparser.StarExpr: count(*) has no sub-expressions to lower
			}
			arg, err := vitessExprToExpression(aliased.Expr, cc)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		return &expression.Func{DT: sql.Num, Name: name, Args: args}, nil

	default:
		return nil, fmt.Errorf("unsupported expression node %T in v1 config", e)
	}
}

func vitessBoolExpr(e sqlparser.Expr, cc ColumnResolver) (expression.Expression, error) {
	switch v := e.(type) {
	case *sqlparser.AndExpr:
		left, err := vitessExprToExpression(v.Left, cc)
		if err != nil {
			return nil, err
		}
		right, err := vitessExprToExpression(v.Right, cc)
		if err != nil {
			return nil, err
		}
		return &expression.Binary{DT: sql.Bool, Op: "AND", LHS: left, RHS: right}, nil
	case *sqlparser.OrExpr:
		left, err := vitessExprToExpression(v.Left, cc)
		if err != nil {
			return nil, err
		}
		right, err := vitessExprToExpression(v.Right, cc)
		if err != nil {
			return nil, err
		}
		return &expression.Binary{DT: sql.Bool, Op: "OR", LHS: left, RHS: right}, nil
	}
	return nil, fmt.Errorf("unsupported boolean expression node %T", e)
}

func vitessLiteral(v *sqlparser.SQLVal) (expression.Expression, error) {
	switch v.Type {
	case sqlparser.StrVal:
		return &expression.Literal{DT: sql.Str, Value: string(v.Val)}, nil
	case sqlparser.IntVal:
		n, err := strconv.ParseFloat(string(v.Val), 64)
		if err != nil {
			return nil, err
		}
		return &expression.Literal{DT: sql.Num, Value: n}, nil
	case sqlparser.FloatVal:
		n, err := strconv.ParseFloat(string(v.Val), 64)
		if err != nil {
			return nil, err
		}
		return &expression.Literal{DT: sql.Num, Value: n}, nil
	default:
		return nil, fmt.Errorf("unsupported literal type %v", v.Type)
	}
}

func comparisonOp(op string) string {
	switch op {
	case sqlparser.EqualStr:
		return "="
	case sqlparser.LessThanStr:
		return "<"
	case sqlparser.GreaterThanStr:
		return ">"
	case sqlparser.LessEqualStr:
		return "<="
	case sqlparser.GreaterEqualStr:
		return ">="
	case sqlparser.NotEqualStr:
		return "!="
	default:
		return op
	}
}

func binaryOp(op string) string {
	switch op {
	case sqlparser.PlusStr:
		return "+"
	case sqlparser.MinusStr:
		return "-"
	case sqlparser.MultStr:
		return "*"
	case sqlparser.DivStr:
		return "/"
	default:
		return op
	}
}
