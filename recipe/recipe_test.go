package recipe

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juiceinc/recipe/catalog"
	"github.com/juiceinc/recipe/shelf"
	"github.com/juiceinc/recipe/sql"
)

type fakeSelectable struct {
	name string
	cols []sql.SelectableColumn
}

func (f fakeSelectable) Name() string                    { return f.name }
func (f fakeSelectable) Columns() []sql.SelectableColumn { return f.cols }

func censusShelf(t *testing.T) *shelf.Shelf {
	t.Helper()
	sel := fakeSelectable{name: "census", cols: []sql.SelectableColumn{
		{Name: "pop2000", StorageType: "int", SQLACol: "census.pop2000"},
		{Name: "pop2008", StorageType: "int", SQLACol: "census.pop2008"},
		{Name: "state", StorageType: "varchar", SQLACol: "census.state"},
		{Name: "sex", StorageType: "varchar", SQLACol: "census.sex"},
	}}
	cc, err := catalog.Build(sel)
	require.NoError(t, err)

	cfgs := map[string]shelf.EntryConfig{
		"state":   {Kind: "Dimension", Field: "state"},
		"sex":     {Kind: "Dimension", Field: "sex"},
		"pop2000": {Kind: "Metric", Field: "sum(pop2000)"},
		"pop2008": {Kind: "Metric", Field: "sum(pop2008)"},
		"ca_only": {Kind: "Filter", Field: `state = "CA"`},
		"small":   {Kind: "Having", Field: "sum(pop2000) < 1000000"},
	}
	ids := []string{"state", "sex", "pop2000", "pop2008", "ca_only", "small"}
	s, _, err := shelf.LoadV2("census", cc, ids, cfgs, "sqlite", nil)
	require.NoError(t, err)
	return s
}

type fakeSession struct {
	rows    []sql.Row
	columns []string
	gotSQL  string
	gotArgs []interface{}
	err     error
}

func (f *fakeSession) Drivername() string { return "sqlite" }

func (f *fakeSession) Execute(query string, args []interface{}) ([]sql.Row, []string, error) {
	f.gotSQL = query
	f.gotArgs = args
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.rows, f.columns, nil
}

func TestRecipeBuildsSelectWithGroupBy(t *testing.T) {
	s := censusShelf(t)
	r := New(s, WithDrivername("sqlite"))
	r.Dimensions("state").Metrics("pop2000")

	sqlText, _, err := r.Query()
	require.NoError(t, err)
	assert.Contains(t, sqlText, "SELECT")
	assert.Contains(t, sqlText, "AS state")
	assert.Contains(t, sqlText, "AS pop2000")
	assert.Contains(t, sqlText, "FROM census")
	assert.Contains(t, sqlText, "GROUP BY state")
}

func TestRecipeFiltersAndHaving(t *testing.T) {
	s := censusShelf(t)
	r := New(s, WithDrivername("sqlite"))
	r.Dimensions("state").Metrics("pop2000").Filters("ca_only", "small")

	sqlText, args, err := r.Query()
	require.NoError(t, err)
	assert.Contains(t, sqlText, "WHERE")
	assert.Contains(t, sqlText, "state = ?")
	assert.Contains(t, args, "CA")
	assert.Contains(t, sqlText, "HAVING")
	assert.Contains(t, sqlText, "sum(")
}

func TestRecipeOrderByDescending(t *testing.T) {
	s := censusShelf(t)
	r := New(s, WithDrivername("sqlite"))
	r.Dimensions("state").Metrics("pop2000").OrderBy("-pop2000")

	sqlText, _, err := r.Query()
	require.NoError(t, err)
	idx := strings.Index(sqlText, "ORDER BY")
	require.GreaterOrEqual(t, idx, 0)
	assert.Contains(t, sqlText[idx:], "DESC")
}

func TestRecipeLimitOffsetSQLite(t *testing.T) {
	s := censusShelf(t)
	r := New(s, WithDrivername("sqlite"))
	r.Dimensions("state").Metrics("pop2000").Limit(10).Offset(5)

	sqlText, _, err := r.Query()
	require.NoError(t, err)
	assert.Contains(t, sqlText, "LIMIT 10")
	assert.Contains(t, sqlText, "OFFSET 5")
}

func TestRecipeLimitOffsetMSSQL(t *testing.T) {
	s := censusShelf(t)
	r := New(s, WithDrivername("mssql"))
	r.Dimensions("state").Metrics("pop2000").Limit(10).Offset(5)

	sqlText, _, err := r.Query()
	require.NoError(t, err)
	assert.Contains(t, sqlText, "OFFSET 5 ROWS")
	assert.Contains(t, sqlText, "FETCH NEXT 10 ROWS ONLY")
	assert.Contains(t, sqlText, "ORDER BY (SELECT NULL)")
}

func TestRecipeNoIngredientsIsBadRecipe(t *testing.T) {
	s := censusShelf(t)
	r := New(s, WithDrivername("sqlite"))

	_, _, err := r.Query()
	require.Error(t, err)
}

func TestRecipeUnknownIngredientFailsLazily(t *testing.T) {
	s := censusShelf(t)
	r := New(s, WithDrivername("sqlite"))
	r.Metrics("does_not_exist").Dimensions("state")

	_, _, err := r.Query()
	require.Error(t, err)
}

func TestRecipeQueryIsCachedUntilDirty(t *testing.T) {
	s := censusShelf(t)
	r := New(s, WithDrivername("sqlite"))
	r.Dimensions("state").Metrics("pop2000")

	first, _, err := r.Query()
	require.NoError(t, err)
	second, _, err := r.Query()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	r.Limit(5)
	third, _, err := r.Query()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestRecipeAllExecutesAndCachesRows(t *testing.T) {
	s := censusShelf(t)
	sess := &fakeSession{rows: []sql.Row{{"state": "CA", "pop2000_raw": 100}}}
	r := New(s, WithDrivername("sqlite"), WithSession(sess))
	r.Dimensions("state").Metrics("pop2000")

	rows, err := r.All(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, r.Stats().FromCache())
	assert.Equal(t, 1, r.Stats().Rows())

	rows2, err := r.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rows, rows2)
	assert.True(t, r.Stats().FromCache())
}

func TestRecipeAllWithoutSessionFails(t *testing.T) {
	s := censusShelf(t)
	r := New(s, WithDrivername("sqlite"))
	r.Dimensions("state").Metrics("pop2000")

	_, err := r.All(context.Background())
	require.Error(t, err)
}

func TestRecipeTotalCountIgnoresLimit(t *testing.T) {
	s := censusShelf(t)
	sess := &fakeSession{rows: []sql.Row{{"count": 42}}}
	r := New(s, WithDrivername("sqlite"), WithSession(sess))
	r.Dimensions("state").Metrics("pop2000").Limit(1)

	n, err := r.TotalCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.NotContains(t, sess.gotSQL, "LIMIT 1)")
}

func TestRecipeSelectFromOverridesSource(t *testing.T) {
	s := censusShelf(t)
	r := New(s, WithDrivername("sqlite"))
	other := fakeSelectable{name: "census_2010"}
	r.Dimensions("state").Metrics("pop2000").SelectFrom(other)

	sqlText, _, err := r.Query()
	require.NoError(t, err)
	assert.Contains(t, sqlText, "FROM census_2010")
}
