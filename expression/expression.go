// Package expression holds the backend relational-expression tree the
// transformer (package transform) lowers a syntax tree into (spec §4.5,
// component C5). Every node renders itself to driver-specific SQL text
// plus bound parameters; nodes never reach back into the transformer.
package expression

import (
	"fmt"
	"strings"

	"github.com/juiceinc/recipe/sql"
)

// Expression is one node of the lowered relational-expression tree.
type Expression interface {
	// SQL renders this node for driver, returning SQL text with "?"
	// placeholders and the positional args to bind against them.
	SQL(driver string) (string, []interface{})
	Datatype() sql.Datatype
}

// Column renders a catalog column's opaque SQLACol reference.
type Column struct {
	DT      sql.Datatype
	Name    string
	SQLACol interface{}
}

func (c *Column) Datatype() sql.Datatype { return c.DT }
func (c *Column) SQL(string) (string, []interface{}) {
	return renderColumnRef(c.SQLACol, c.Name), nil
}

func renderColumnRef(sqlaCol interface{}, fallbackName string) string {
	switch v := sqlaCol.(type) {
	case string:
		if v != "" {
			return v
		}
	case fmt.Stringer:
		return v.String()
	}
	return fallbackName
}

// Literal is a bound scalar value.
type Literal struct {
	DT    sql.Datatype
	Value interface{}
}

func (l *Literal) Datatype() sql.Datatype { return l.DT }
func (l *Literal) SQL(string) (string, []interface{}) {
	if l.Value == nil {
		return "NULL", nil
	}
	return "?", []interface{}{l.Value}
}

// Raw is a pre-rendered, driver-final SQL fragment (used for the few
// constructs — count(*), the error-catching sentinel — that have no
// useful sub-expression structure).
type Raw struct {
	DT   sql.Datatype
	Text string
	Args []interface{}
}

func (r *Raw) Datatype() sql.Datatype { return r.DT }
func (r *Raw) SQL(string) (string, []interface{}) { return r.Text, r.Args }

// Templated renders a driver-specific SQL template that repeats a single
// child expression's rendered text one or more times (the postgres/
// bigquery age functions and bigquery's approx_quantiles both need the
// same column reference to appear more than once in the final SQL).
// Template uses %s once per repetition of Child's rendered SQL.
type Templated struct {
	DT       sql.Datatype
	Template string
	Child    Expression
	Repeat   int
}

func (t *Templated) Datatype() sql.Datatype { return t.DT }
func (t *Templated) SQL(driver string) (string, []interface{}) {
	cs, ca := t.Child.SQL(driver)
	rep := t.Repeat
	if rep == 0 {
		rep = 1
	}
	fillers := make([]interface{}, rep)
	var args []interface{}
	for i := 0; i < rep; i++ {
		fillers[i] = cs
		args = append(args, ca...)
	}
	return fmt.Sprintf(t.Template, fillers...), args
}

// Binary renders "(lhs op rhs)".
type Binary struct {
	DT       sql.Datatype
	Op       string
	LHS, RHS Expression
}

func (b *Binary) Datatype() sql.Datatype { return b.DT }
func (b *Binary) SQL(driver string) (string, []interface{}) {
	ls, la := b.LHS.SQL(driver)
	rs, ra := b.RHS.SQL(driver)
	return fmt.Sprintf("(%s %s %s)", ls, b.Op, rs), append(la, ra...)
}

// Unary renders "op(operand)" or "op operand" depending on Prefix/Paren.
type Unary struct {
	DT      sql.Datatype
	Op      string
	Operand Expression
	AsFunc  bool // true: "OP(operand)"; false: "OP operand"
}

func (u *Unary) Datatype() sql.Datatype { return u.DT }
func (u *Unary) SQL(driver string) (string, []interface{}) {
	os, oa := u.Operand.SQL(driver)
	if u.AsFunc {
		return fmt.Sprintf("%s(%s)", u.Op, os), oa
	}
	return fmt.Sprintf("(%s %s)", u.Op, os), oa
}

// Distinct renders "DISTINCT operand", for use as a Func argument
// (count(DISTINCT x)).
type Distinct struct {
	Operand Expression
}

func (d *Distinct) Datatype() sql.Datatype { return d.Operand.Datatype() }
func (d *Distinct) SQL(driver string) (string, []interface{}) {
	s, a := d.Operand.SQL(driver)
	return "DISTINCT " + s, a
}

// Func renders "name(args...)".
type Func struct {
	DT   sql.Datatype
	Name string
	Args []Expression
}

func (f *Func) Datatype() sql.Datatype { return f.DT }
func (f *Func) SQL(driver string) (string, []interface{}) {
	parts := make([]string, len(f.Args))
	var args []interface{}
	for i, a := range f.Args {
		s, ar := a.SQL(driver)
		parts[i] = s
		args = append(args, ar...)
	}
	return fmt.Sprintf("%s(%s)", f.Name, strings.Join(parts, ", ")), args
}

// Between renders "expr BETWEEN low AND high".
type Between struct {
	Expr, Low, High Expression
}

func (b *Between) Datatype() sql.Datatype { return sql.Bool }
func (b *Between) SQL(driver string) (string, []interface{}) {
	es, ea := b.Expr.SQL(driver)
	ls, la := b.Low.SQL(driver)
	hs, ha := b.High.SQL(driver)
	args := append(append(ea, la...), ha...)
	return fmt.Sprintf("%s BETWEEN %s AND %s", es, ls, hs), args
}

// InList renders "expr IN (items...)" or "expr NOT IN (items...)".
type InList struct {
	Expr  Expression
	Items []Expression
	Not   bool
}

func (l *InList) Datatype() sql.Datatype { return sql.Bool }
func (l *InList) SQL(driver string) (string, []interface{}) {
	es, ea := l.Expr.SQL(driver)
	parts := make([]string, len(l.Items))
	var args []interface{}
	for i, it := range l.Items {
		s, a := it.SQL(driver)
		parts[i] = s
		args = append(args, a...)
	}
	op := "IN"
	if l.Not {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", es, op, strings.Join(parts, ", ")), append(ea, args...)
}

// Case renders a CASE WHEN cond THEN then ... ELSE else END expression.
type Case struct {
	DT    sql.Datatype
	Whens []WhenThen
	Else  Expression // may be nil
}

type WhenThen struct {
	When, Then Expression
}

func (c *Case) Datatype() sql.Datatype { return c.DT }
func (c *Case) SQL(driver string) (string, []interface{}) {
	var b strings.Builder
	var args []interface{}
	b.WriteString("CASE")
	for _, wt := range c.Whens {
		ws, wa := wt.When.SQL(driver)
		ts, ta := wt.Then.SQL(driver)
		fmt.Fprintf(&b, " WHEN %s THEN %s", ws, ts)
		args = append(args, wa...)
		args = append(args, ta...)
	}
	if c.Else != nil {
		es, ea := c.Else.SQL(driver)
		fmt.Fprintf(&b, " ELSE %s", es)
		args = append(args, ea...)
	} else {
		b.WriteString(" ELSE NULL")
	}
	b.WriteString(" END")
	return b.String(), args
}

// IsNull renders "expr IS [NOT] NULL".
type IsNull struct {
	Expr Expression
	Not  bool
}

func (n *IsNull) Datatype() sql.Datatype { return sql.Bool }
func (n *IsNull) SQL(driver string) (string, []interface{}) {
	es, ea := n.Expr.SQL(driver)
	if n.Not {
		return es + " IS NOT NULL", ea
	}
	return es + " IS NULL", ea
}

// Cast renders "CAST(expr AS type)".
type Cast struct {
	DT   sql.Datatype
	Expr Expression
	Type string
}

func (c *Cast) Datatype() sql.Datatype { return c.DT }
func (c *Cast) SQL(driver string) (string, []interface{}) {
	es, ea := c.Expr.SQL(driver)
	return fmt.Sprintf("CAST(%s AS %s)", es, c.Type), ea
}
