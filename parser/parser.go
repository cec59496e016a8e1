package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/juiceinc/recipe/catalog"
	"github.com/juiceinc/recipe/sql"
)

// Parser parses field text against one ColCollection. Parsers are memoized
// per grammar hash in a process-wide map (see cache.go) because they hold
// no per-parse state and are cheap to share across goroutines; they are
// not serializable, so that map is kept separate from the tree cache.
type Parser struct {
	cc *catalog.ColCollection
}

// New builds a Parser bound to cc. Callers normally go through GetParser,
// which memoizes by grammar hash.
func New(cc *catalog.ColCollection) *Parser {
	return &Parser{cc: cc}
}

type parseState struct {
	toks []token
	pos  int
	src  string
}

func (p *parseState) peek() token  { return p.toks[p.pos] }
func (p *parseState) next() token  { t := p.toks[p.pos]; p.pos++; return t }
func (p *parseState) atEOF() bool  { return p.peek().kind == tokEOF }
func (p *parseState) textEq(s string) bool {
	return strings.EqualFold(p.peek().text, s)
}

// Parse compiles text into a syntax tree. Parse itself never rejects an
// expression for type reasons; that is the validator's job. It does
// reject outright syntax errors (unbalanced parens, trailing garbage) by
// returning an error.
func (p *Parser) Parse(text string) (*Node, error) {
	st := &parseState{toks: lex(text), src: text}
	node, err := p.parseOr(st)
	if err != nil {
		return nil, err
	}
	if !st.atEOF() {
		return nil, fmt.Errorf("unexpected trailing input at offset %d", st.peek().pos)
	}
	return node, nil
}

func (p *Parser) parseOr(st *parseState) (*Node, error) {
	left, err := p.parseAnd(st)
	if err != nil {
		return nil, err
	}
	for st.textEq("or") {
		off := st.next().pos
		right, err := p.parseAnd(st)
		if err != nil {
			return nil, err
		}
		left = newNode(KindOr, sql.Bool, off, left, right)
	}
	return left, nil
}

func (p *Parser) parseAnd(st *parseState) (*Node, error) {
	left, err := p.parseNot(st)
	if err != nil {
		return nil, err
	}
	for st.textEq("and") {
		off := st.next().pos
		right, err := p.parseNot(st)
		if err != nil {
			return nil, err
		}
		left = newNode(KindAnd, sql.Bool, off, left, right)
	}
	return left, nil
}

func (p *Parser) parseNot(st *parseState) (*Node, error) {
	if st.textEq("not") {
		off := st.next().pos
		operand, err := p.parseNot(st)
		if err != nil {
			return nil, err
		}
		if operand.Datatype != sql.Bool {
			n := newNode(KindErrorNotNonBoolean, sql.Unusable, off, operand)
			return n, nil
		}
		return newNode(KindNot, sql.Bool, off, operand), nil
	}
	return p.parseComparison(st)
}

var scalarComparators = map[string]string{
	"=": "=", "!=": "!=", "<>": "<>", "<": "<", "<=": "<=", ">": ">", ">=": ">=",
}

var offsetWords = map[string]bool{
	"prior": true, "previous": true, "last": true, "current": true, "this": true, "next": true,
}
var unitWords = map[string]bool{
	"ytd": true, "year": true, "qtr": true, "month": true, "mtd": true, "day": true,
}

func (p *Parser) parseComparison(st *parseState) (*Node, error) {
	left, err := p.parseAdditive(st)
	if err != nil {
		return nil, err
	}

	switch {
	case scalarComparators[st.peek().text] != "":
		op := st.next().text
		right, err := p.parseAdditive(st)
		if err != nil {
			return nil, err
		}
		return newNode(KindCompare, sql.Bool, left.Offset, left, right).withText(op), nil

	case st.textEq("is"):
		off := st.next().pos
		op := "is"
		if st.textEq("not") {
			st.next()
			op = "isnot"
		}
		// Intelligent date: IS {offset} {unit}
		if offsetWords[strings.ToLower(st.peek().text)] {
			offsetTok := st.next()
			if !unitWords[strings.ToLower(st.peek().text)] {
				return nil, fmt.Errorf("expected a date unit after %q at offset %d", offsetTok.text, st.peek().pos)
			}
			unitTok := st.next()
			n := newNode(KindIntelligentDate, sql.Bool, off, left)
			n.Text = strings.ToLower(offsetTok.text) + " " + strings.ToLower(unitTok.text)
			return n, nil
		}
		right, err := p.parseAdditive(st)
		if err != nil {
			return nil, err
		}
		return newNode(KindCompare, sql.Bool, off, left, right).withText(op), nil

	case st.textEq("between"):
		off := st.next().pos
		low, err := p.parseAdditive(st)
		if err != nil {
			return nil, err
		}
		if !st.textEq("and") {
			return newNode(KindErrorBetween, sql.Unusable, off, left, low), nil
		}
		st.next()
		high, err := p.parseAdditive(st)
		if err != nil {
			return nil, err
		}
		return newNode(KindBetween, sql.Bool, off, left, low, high), nil

	case st.textEq("in"), st.textEq("not") && peekAheadIsIn(st):
		neg := false
		off := st.peek().pos
		if st.textEq("not") {
			st.next()
			neg = true
		}
		st.next() // "in"
		if st.peek().text != "(" {
			return nil, fmt.Errorf("expected ( after IN at offset %d", st.peek().pos)
		}
		st.next()
		var list []*Node
		for {
			item, err := p.parseAdditive(st)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
			if st.peek().text == "," {
				st.next()
				continue
			}
			break
		}
		if st.peek().text != ")" {
			return nil, fmt.Errorf("expected ) to close IN list at offset %d", st.peek().pos)
		}
		st.next()
		kind := "in"
		if neg {
			kind = "notin"
		}
		n := newNode(KindVector, sql.Bool, off, append([]*Node{left}, list...)...)
		n.Text = kind
		return n, nil

	case st.textEq("like"), st.textEq("ilike"):
		kind := strings.ToLower(st.next().text)
		right, err := p.parseAdditive(st)
		if err != nil {
			return nil, err
		}
		if right.Kind != KindLiteralString {
			return newNode(KindErrorVector, sql.Unusable, left.Offset, left, right), nil
		}
		n := newNode(KindLike, sql.Bool, left.Offset, left, right)
		n.Text = kind
		return n, nil
	}

	return left, nil
}

func peekAheadIsIn(st *parseState) bool {
	if st.pos+1 >= len(st.toks) {
		return false
	}
	return strings.EqualFold(st.toks[st.pos+1].text, "in")
}

func (n *Node) withText(t string) *Node {
	n.Text = t
	return n
}

func (p *Parser) parseAdditive(st *parseState) (*Node, error) {
	left, err := p.parseMultiplicative(st)
	if err != nil {
		return nil, err
	}
	for st.peek().text == "+" || st.peek().text == "-" {
		op := st.next().text
		right, err := p.parseMultiplicative(st)
		if err != nil {
			return nil, err
		}
		if op == "+" {
			if left.Datatype == sql.Str || right.Datatype == sql.Str {
				left = newNode(KindStringConcat, sql.Str, left.Offset, left, right)
			} else if isNumericCompatible(left.Datatype) && isNumericCompatible(right.Datatype) {
				left = newNode(KindAdd, sql.Num, left.Offset, left, right)
			} else {
				left = newNode(KindErrorMath, sql.Unusable, left.Offset, left, right).withText("+")
			}
		} else {
			if isNumericCompatible(left.Datatype) && isNumericCompatible(right.Datatype) {
				left = newNode(KindSub, sql.Num, left.Offset, left, right)
			} else {
				left = newNode(KindErrorMath, sql.Unusable, left.Offset, left, right).withText("-")
			}
		}
	}
	return left, nil
}

func isNumericCompatible(dt sql.Datatype) bool {
	return dt == sql.Num || dt == sql.Unusable
}

func (p *Parser) parseMultiplicative(st *parseState) (*Node, error) {
	left, err := p.parsePrimary(st)
	if err != nil {
		return nil, err
	}
	for st.peek().text == "*" || st.peek().text == "/" {
		op := st.next().text
		right, err := p.parsePrimary(st)
		if err != nil {
			return nil, err
		}
		if !isNumericCompatible(left.Datatype) || !isNumericCompatible(right.Datatype) {
			left = newNode(KindErrorMath, sql.Unusable, left.Offset, left, right).withText(op)
			continue
		}
		if op == "*" {
			left = newNode(KindMul, sql.Num, left.Offset, left, right)
		} else {
			left = newNode(KindDiv, sql.Num, left.Offset, left, right)
		}
	}
	return left, nil
}

var aggregationNames = map[string]bool{
	"sum": true, "min": true, "max": true, "avg": true, "count_distinct": true, "median": true,
}

func isPercentileName(name string) (int, bool) {
	if !strings.HasPrefix(name, "percentile") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, "percentile"))
	if err != nil {
		return 0, false
	}
	return n, true
}

var truncUnits = map[string]bool{"day": true, "week": true, "month": true, "quarter": true, "year": true}

func (p *Parser) parsePrimary(st *parseState) (*Node, error) {
	tok := st.peek()

	switch {
	case tok.kind == tokNumber:
		st.next()
		v, _ := strconv.ParseFloat(tok.text, 64)
		n := newNode(KindLiteralNumber, sql.Num, tok.pos)
		n.Value = v
		n.Text = tok.text
		return n, nil

	case tok.kind == tokString:
		st.next()
		n := newNode(KindLiteralString, sql.Str, tok.pos)
		n.Value = tok.text
		return n, nil

	case tok.text == "(":
		st.next()
		inner, err := p.parseOr(st)
		if err != nil {
			return nil, err
		}
		if st.peek().text != ")" {
			return nil, fmt.Errorf("expected ) at offset %d", st.peek().pos)
		}
		st.next()
		return inner, nil

	case tok.kind == tokIdent:
		lower := strings.ToLower(tok.text)

		switch lower {
		case "true":
			st.next()
			n := newNode(KindLiteralBool, sql.Bool, tok.pos)
			n.Value = true
			return n, nil
		case "false":
			st.next()
			n := newNode(KindLiteralBool, sql.Bool, tok.pos)
			n.Value = false
			return n, nil
		case "null":
			st.next()
			return newNode(KindLiteralNull, sql.Unusable, tok.pos), nil
		case "count":
			st.next()
			if err := p.expectPunct(st, "("); err != nil {
				return nil, err
			}
			if st.peek().text == "*" {
				st.next()
				if err := p.expectPunct(st, ")"); err != nil {
					return nil, err
				}
				n := newNode(KindAggr, sql.Num, tok.pos)
				n.Text = "count"
				n.Children = []*Node{{Kind: KindStar, Datatype: sql.Num}}
				return n, nil
			}
			return p.finishAggr(st, tok.pos, "count")
		case "count_distinct", "sum", "min", "max", "avg", "median":
			st.next()
			if err := p.expectPunct(st, "("); err != nil {
				return nil, err
			}
			return p.finishAggr(st, tok.pos, lower)
		case "if":
			st.next()
			return p.finishIf(st, tok.pos)
		case "coalesce":
			st.next()
			if err := p.expectPunct(st, "("); err != nil {
				return nil, err
			}
			a, err := p.parseOr(st)
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(st, ","); err != nil {
				return nil, err
			}
			b, err := p.parseOr(st)
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(st, ")"); err != nil {
				return nil, err
			}
			return newNode(KindCoalesce, a.Datatype, tok.pos, a, b), nil
		case "date":
			st.next()
			if err := p.expectPunct(st, "("); err != nil {
				return nil, err
			}
			if st.peek().kind == tokString {
				s := st.next()
				if err := p.expectPunct(st, ")"); err != nil {
					return nil, err
				}
				n := newNode(KindDateFn, sql.Date, tok.pos)
				n.Value = s.text
				return n, nil
			}
			y, err := p.parseAdditive(st)
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(st, ","); err != nil {
				return nil, err
			}
			m, err := p.parseAdditive(st)
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(st, ","); err != nil {
				return nil, err
			}
			d, err := p.parseAdditive(st)
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(st, ")"); err != nil {
				return nil, err
			}
			return newNode(KindDateYMDFn, sql.Date, tok.pos, y, m, d), nil
		case "datetime":
			st.next()
			if err := p.expectPunct(st, "("); err != nil {
				return nil, err
			}
			s := st.next()
			if err := p.expectPunct(st, ")"); err != nil {
				return nil, err
			}
			n := newNode(KindDatetimeFn, sql.Datetime, tok.pos)
			n.Value = s.text
			return n, nil
		case "age":
			// A bare "age" not followed by "(" is a column reference.
			if !st.lookaheadIsCall() {
				break
			}
			st.next()
			if err := p.expectPunct(st, "("); err != nil {
				return nil, err
			}
			arg, err := p.parseOr(st)
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(st, ")"); err != nil {
				return nil, err
			}
			return newNode(KindAgeConv, sql.Num, tok.pos, arg), nil
		case "string":
			st.next()
			if err := p.expectPunct(st, "("); err != nil {
				return nil, err
			}
			arg, err := p.parseOr(st)
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(st, ")"); err != nil {
				return nil, err
			}
			return newNode(KindStringCast, sql.Str, tok.pos, arg), nil
		case "int":
			st.next()
			if err := p.expectPunct(st, "("); err != nil {
				return nil, err
			}
			arg, err := p.parseOr(st)
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(st, ")"); err != nil {
				return nil, err
			}
			return newNode(KindIntCast, sql.Num, tok.pos, arg), nil
		}

		if truncUnits[lower] && st.lookaheadIsCall() {
			st.next()
			if err := p.expectPunct(st, "("); err != nil {
				return nil, err
			}
			arg, err := p.parseOr(st)
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(st, ")"); err != nil {
				return nil, err
			}
			n := newNode(KindDateConv, sql.Date, tok.pos, arg)
			n.Text = lower
			return n, nil
		}

		if n, ok := isPercentileName(lower); ok {
			st.next()
			if err := p.expectPunct(st, "("); err != nil {
				return nil, err
			}
			arg, err := p.parseOr(st)
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(st, ")"); err != nil {
				return nil, err
			}
			node := newNode(KindAggr, sql.Num, tok.pos, arg)
			node.Text = fmt.Sprintf("percentile%d", n)
			return node, nil
		}

		// Otherwise this identifier must resolve to a catalog column.
		st.next()
		if col, ok := p.cc.ByFieldName(tok.text); ok {
			dt := col.Datatype
			if dt == sql.Unusable {
				n := newNode(KindErrorUnusableCol, sql.Unusable, tok.pos)
				n.Text = tok.text
				return n, nil
			}
			n := newNode(KindColumn, dt, tok.pos)
			n.Text = tok.text
			cc := col
			n.Column = &cc
			return n, nil
		}
		n := newNode(KindErrorUnknownCol, sql.Unusable, tok.pos)
		n.Text = tok.text
		return n, nil
	}

	return nil, fmt.Errorf("unexpected token %q at offset %d", tok.text, tok.pos)
}

func (p *Parser) finishAggr(st *parseState, offset int, name string) (*Node, error) {
	arg, err := p.parseOr(st)
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(st, ")"); err != nil {
		return nil, err
	}
	dt := sql.Num
	if name == "median" {
		dt = arg.Datatype
	}
	if arg.Datatype == sql.Unusable {
		n := newNode(KindErrorAggr, sql.Unusable, offset, arg)
		n.Text = name
		return n, nil
	}
	n := newNode(KindAggr, dt, offset, arg)
	n.Text = name
	return n, nil
}

func (p *Parser) finishIf(st *parseState, offset int) (*Node, error) {
	if err := p.expectPunct(st, "("); err != nil {
		return nil, err
	}
	var args []*Node
	for {
		a, err := p.parseOr(st)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if st.peek().text == "," {
			st.next()
			continue
		}
		break
	}
	if err := p.expectPunct(st, ")"); err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return newNode(KindErrorIf, sql.Unusable, offset, args...), nil
	}
	n := newNode(KindIf, sql.Unusable, offset, args...)
	return n, nil
}

// expectPunct consumes the next token if it equals text, otherwise it
// reports a syntax error (spec §4.3: unbalanced parens and missing
// call-opening punctuation are outright syntax errors, not validator
// diagnostics).
func (p *Parser) expectPunct(st *parseState, text string) error {
	if st.peek().text != text {
		return fmt.Errorf("expected %q at offset %d, found %q", text, st.peek().pos, st.peek().text)
	}
	st.next()
	return nil
}

func (st *parseState) lookaheadIsCall() bool {
	return st.pos+1 < len(st.toks) && st.toks[st.pos+1].text == "("
}
