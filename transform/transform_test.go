package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juiceinc/recipe/catalog"
	"github.com/juiceinc/recipe/parser"
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
		{Name: "pop2008", StorageType: "int", SQLACol: "census.pop2008"},
		{Name: "state", StorageType: "varchar", SQLACol: "census.state"},
		{Name: "birth_date", StorageType: "date", SQLACol: "census.birth_date"},
	}}
	cc, err := catalog.Build(sel)
	require.NoError(t, err)
	return cc
}

func lowerText(t *testing.T, text string, opts Options) (string, []interface{}) {
	t.Helper()
	cc := testCatalog(t)
	p := parser.New(cc)
	tree, err := p.Parse(text)
	require.NoError(t, err, text)
	e, err := Lower(tree, text, opts)
	require.NoError(t, err, text)
	return e.SQL(opts.Drivername)
}

func TestLowerSafeDivisionIdentity(t *testing.T) {
	sqltext, args := lowerText(t, "pop2008/1", Options{Drivername: DriverSQLite})
	assert.Equal(t, "census.pop2008", sqltext)
	assert.Empty(t, args)
}

func TestLowerSafeDivisionByZeroLiteralErrors(t *testing.T) {
	cc := testCatalog(t)
	p := parser.New(cc)
	tree, err := p.Parse("pop2008/0")
	require.NoError(t, err)
	_, err = Lower(tree, "pop2008/0", Options{Drivername: DriverSQLite})
	assert.Error(t, err)
}

func TestLowerSafeDivisionWrapsInCase(t *testing.T) {
	sqltext, _ := lowerText(t, "pop2008/pop2000", Options{Drivername: DriverSQLite})
	assert.Contains(t, sqltext, "CASE")
	assert.Contains(t, sqltext, "census.pop2008 / census.pop2000")
}

func TestLowerConcatIsDriverSpecific(t *testing.T) {
	sqltext, _ := lowerText(t, `state + "!"`, Options{Drivername: DriverSQLite})
	assert.Contains(t, sqltext, "||")

	sqltext, _ = lowerText(t, `state + "!"`, Options{Drivername: DriverMSSQL})
	assert.Contains(t, sqltext, "+")

	sqltext, _ = lowerText(t, `state + "!"`, Options{Drivername: DriverBigQuery})
	assert.Contains(t, sqltext, "CONCAT")
}

func TestLowerAggregationSum(t *testing.T) {
	sqltext, _ := lowerText(t, "sum(pop2008)", Options{Drivername: DriverSQLite})
	assert.Equal(t, "sum(census.pop2008)", sqltext)
}

func TestLowerCountDistinct(t *testing.T) {
	sqltext, _ := lowerText(t, "count_distinct(state)", Options{Drivername: DriverSQLite})
	assert.Equal(t, "count(DISTINCT census.state)", sqltext)
}

func TestLowerPercentileBigquery(t *testing.T) {
	sqltext, _ := lowerText(t, "percentile75(pop2008)", Options{Drivername: DriverBigQuery})
	assert.Equal(t, "approx_quantiles(census.pop2008, 4)[OFFSET(3)]", sqltext)
}

func TestLowerPercentileMSSQLRejected(t *testing.T) {
	cc := testCatalog(t)
	p := parser.New(cc)
	tree, err := p.Parse("percentile75(pop2008)")
	require.NoError(t, err)
	_, err = Lower(tree, "percentile75(pop2008)", Options{Drivername: DriverMSSQL})
	assert.Error(t, err)
}

func TestLowerWeekTruncRejectedOnMSSQL(t *testing.T) {
	cc := testCatalog(t)
	p := parser.New(cc)
	tree, err := p.Parse("week(birth_date)")
	require.NoError(t, err)
	_, err = Lower(tree, "week(birth_date)", Options{Drivername: DriverMSSQL})
	assert.Error(t, err)
}

func TestLowerAgeBigquery(t *testing.T) {
	sqltext, _ := lowerText(t, "age(birth_date)", Options{Drivername: DriverBigQuery})
	assert.Contains(t, sqltext, "DATE_DIFF(CURRENT_DATE,")
	assert.Contains(t, sqltext, "census.birth_date")
}

func TestLowerIfChain(t *testing.T) {
	sqltext, _ := lowerText(t, `if(state = "CA", "west", "other")`, Options{Drivername: DriverSQLite})
	assert.Contains(t, sqltext, "CASE WHEN")
	assert.Contains(t, sqltext, "ELSE")
}
