package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juiceinc/recipe/catalog"
	"github.com/juiceinc/recipe/sql"
)

type fakeSelectable struct {
	name string
	cols []sql.SelectableColumn
}

func (f fakeSelectable) Name() string                    { return f.name }
func (f fakeSelectable) Columns() []sql.SelectableColumn { return f.cols }

func testCatalog(t *testing.T) *catalog.ColCollection {
	t.Helper()
	sel := fakeSelectable{name: "census", cols: []sql.SelectableColumn{
		{Name: "pop2000", StorageType: "int", SQLACol: "census.pop2000"},
		{Name: "state", StorageType: "varchar", SQLACol: "census.state"},
	}}
	cc, err := catalog.Build(sel)
	require.NoError(t, err)
	return cc
}

func TestParseValidExpressionStillParses(t *testing.T) {
	p := New(testCatalog(t))
	_, err := p.Parse("sum(pop2000)")
	require.NoError(t, err)
}

// A missing closing paren is an outright syntax error (spec §4.3), not
// something the parser should silently tolerate.
func TestParseMissingClosingParenIsError(t *testing.T) {
	p := New(testCatalog(t))
	_, err := p.Parse("sum(pop2000")
	assert.Error(t, err)
}

// A missing call-opening paren is likewise a syntax error, not a
// no-op the parser skips over.
func TestParseMissingOpeningParenIsError(t *testing.T) {
	p := New(testCatalog(t))
	_, err := p.Parse("sum pop2000)")
	assert.Error(t, err)
}

func TestParseUnbalancedGroupingParenIsError(t *testing.T) {
	p := New(testCatalog(t))
	_, err := p.Parse("(pop2000 + 1")
	assert.Error(t, err)
}

func TestParseIfMissingParensIsError(t *testing.T) {
	p := New(testCatalog(t))
	_, err := p.Parse(`if(state = "CA", "west", "other"`)
	assert.Error(t, err)
}
