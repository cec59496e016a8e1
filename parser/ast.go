// Package parser compiles field text into a syntax tree over a column
// catalog (spec §4.3, component C3), memoizing both the parser itself
// (per grammar hash) and parsed trees (in an injected cache).
package parser

import (
	"github.com/juiceinc/recipe/catalog"
	"github.com/juiceinc/recipe/sql"
)

// Kind tags every node produced by the parser.
type Kind int

const (
	KindLiteralString Kind = iota
	KindLiteralNumber
	KindLiteralBool
	KindLiteralNull
	KindColumn
	KindStar // the "*" in count(*)

	KindAdd
	KindSub
	KindMul
	KindDiv
	KindStringConcat

	KindAnd
	KindOr
	KindNot
	KindCompare // Text holds the operator: "=", "!=", "<>", "<", "<=", ">", ">=", "is", "isnot"
	KindBetween
	KindVector // Text is "in" or "notin"
	KindLike   // Text is "like" or "ilike"
	KindIntelligentDate

	KindDateFn     // date("...")
	KindDateYMDFn  // date(y, m, d)
	KindDatetimeFn // datetime("...")
	KindDateConv   // Text is the unit: day/week/month/quarter/year
	KindAgeConv
	KindStringCast
	KindIntCast
	KindCoalesce

	KindAggr // Text is the aggregation name: sum/min/max/avg/count/count_distinct/median/percentileN
	KindIf

	KindErrorUnknownCol
	KindErrorUnusableCol
	KindErrorMath
	KindErrorAggr
	KindErrorBetween
	KindErrorVector
	KindErrorIf
	KindErrorNotNonBoolean
)

// Node is one syntax-tree node. The parser assigns a provisional Datatype
// to every node purely from grammar shape (spec §4.2: "rules partition
// every sub-expression by datatype"); the validator (package validator)
// confirms/refines it and raises diagnostics when it cannot.
type Node struct {
	Kind     Kind
	Datatype sql.Datatype
	Offset   int
	Text     string
	Children []*Node
	Column   *catalog.Column
	Value    interface{} // resolved literal value for KindLiteral*
}

func newNode(kind Kind, dt sql.Datatype, offset int, children ...*Node) *Node {
	return &Node{Kind: kind, Datatype: dt, Offset: offset, Children: children}
}

// WrapAggregate wraps n in a KindAggr node named name, for callers (the
// shelf loader's enforce_aggregation handling) that must force a bare
// numeric field into an aggregation after validation already ran (spec
// §8 invariant 3: "wraps the result in sum(...) if and only if
// last_datatype == num"). name is normally "sum".
func WrapAggregate(n *Node, name string) *Node {
	wrapped := newNode(KindAggr, n.Datatype, n.Offset, n)
	wrapped.Text = name
	return wrapped
}
