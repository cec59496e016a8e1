package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juiceinc/recipe/catalog"
	"github.com/juiceinc/recipe/recipe"
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
		{Name: "state", StorageType: "varchar", SQLACol: "census.state"},
		{Name: "sex", StorageType: "varchar", SQLACol: "census.sex"},
	}}
	cc, err := catalog.Build(sel)
	require.NoError(t, err)

	cfgs := map[string]shelf.EntryConfig{
		"state":   {Kind: "Dimension", Field: "state"},
		"sex":     {Kind: "Dimension", Field: "sex"},
		"pop2000": {Kind: "Metric", Field: "sum(pop2000)"},
	}
	ids := []string{"state", "sex", "pop2000"}
	s, _, err := shelf.LoadV2("census", cc, ids, cfgs, "sqlite", nil)
	require.NoError(t, err)
	return s
}

func TestAutomaticFiltersAddsEqualityFilter(t *testing.T) {
	s := censusShelf(t)
	af := NewAutomaticFilters().SetFilters(map[string]interface{}{"state": "CA"})
	r := recipe.New(s, recipe.WithDrivername("sqlite"), recipe.WithExtension(af))
	r.Dimensions("state").Metrics("pop2000")

	sqlText, args, err := r.Query()
	require.NoError(t, err)
	assert.Contains(t, sqlText, "WHERE")
	assert.Contains(t, sqlText, "state = ?")
	assert.Contains(t, args, "CA")
}

func TestAutomaticFiltersHonorsOperatorSuffix(t *testing.T) {
	s := censusShelf(t)
	af := NewAutomaticFilters().SetFilters(map[string]interface{}{"state__ne": "CA"})
	r := recipe.New(s, recipe.WithDrivername("sqlite"), recipe.WithExtension(af))
	r.Dimensions("state").Metrics("pop2000")

	sqlText, _, err := r.Query()
	require.NoError(t, err)
	assert.Contains(t, sqlText, "state != ?")
}

func censusShelfWithQuickSelects(t *testing.T) *shelf.Shelf {
	t.Helper()
	sel := fakeSelectable{name: "census", cols: []sql.SelectableColumn{
		{Name: "pop2000", StorageType: "int", SQLACol: "census.pop2000"},
		{Name: "state", StorageType: "varchar", SQLACol: "census.state"},
	}}
	cc, err := catalog.Build(sel)
	require.NoError(t, err)

	cfgs := map[string]shelf.EntryConfig{
		"state": {Kind: "Dimension", Field: "state", QuickSelects: map[string]string{
			"west": `state = "CA"`,
			"east": `state = "NY"`,
		}},
		"pop2000": {Kind: "Metric", Field: "sum(pop2000)"},
	}
	ids := []string{"state", "pop2000"}
	s, _, err := shelf.LoadV2("census", cc, ids, cfgs, "sqlite", nil)
	require.NoError(t, err)
	return s
}

func TestAutomaticFiltersOrCombinesQuickSelects(t *testing.T) {
	s := censusShelfWithQuickSelects(t)
	af := NewAutomaticFilters().SetFilters(map[string]interface{}{
		"state__or": []interface{}{"west", "east"},
	})
	r := recipe.New(s, recipe.WithDrivername("sqlite"), recipe.WithExtension(af))
	r.Dimensions("state").Metrics("pop2000")

	sqlText, _, err := r.Query()
	require.NoError(t, err)
	assert.Contains(t, sqlText, `state = ?`)
	assert.Contains(t, sqlText, " OR ")
	assert.NotContains(t, sqlText, "NOT")
}

func TestAutomaticFiltersNotWrapsQuickSelect(t *testing.T) {
	s := censusShelfWithQuickSelects(t)
	af := NewAutomaticFilters().SetFilters(map[string]interface{}{
		"state__not": "west",
	})
	r := recipe.New(s, recipe.WithDrivername("sqlite"), recipe.WithExtension(af))
	r.Dimensions("state").Metrics("pop2000")

	sqlText, _, err := r.Query()
	require.NoError(t, err)
	assert.Contains(t, sqlText, "NOT")
	assert.Contains(t, sqlText, `state = ?`)
}

func TestAutomaticFiltersExcludeKeys(t *testing.T) {
	s := censusShelf(t)
	af := NewAutomaticFilters().
		SetFilters(map[string]interface{}{"state": "CA", "sex": "F"}).
		ExcludeKeys("sex")
	r := recipe.New(s, recipe.WithDrivername("sqlite"), recipe.WithExtension(af))
	r.Dimensions("state").Metrics("pop2000")

	sqlText, _, err := r.Query()
	require.NoError(t, err)
	assert.Contains(t, sqlText, "state = ?")
	assert.NotContains(t, sqlText, "sex =")
}

func TestAutomaticFiltersNotAppliedWhenDisabled(t *testing.T) {
	s := censusShelf(t)
	af := NewAutomaticFilters().SetFilters(map[string]interface{}{"state": "CA"}).Apply(false)
	r := recipe.New(s, recipe.WithDrivername("sqlite"), recipe.WithExtension(af))
	r.Dimensions("state").Metrics("pop2000")

	sqlText, _, err := r.Query()
	require.NoError(t, err)
	assert.NotContains(t, sqlText, "WHERE")
}

func TestPaginateSetsLimitAndOffset(t *testing.T) {
	s := censusShelf(t)
	pg := NewPaginate().Page(3).PageSize(10)
	r := recipe.New(s, recipe.WithDrivername("sqlite"), recipe.WithExtension(pg))
	r.Dimensions("state").Metrics("pop2000")

	sqlText, _, err := r.Query()
	require.NoError(t, err)
	assert.Contains(t, sqlText, "LIMIT 10")
	assert.Contains(t, sqlText, "OFFSET 20")
}

func TestPaginateSearchOrsAcrossKeys(t *testing.T) {
	s := censusShelf(t)
	pg := NewPaginate().SearchKeys("state", "sex").Search("al")
	r := recipe.New(s, recipe.WithDrivername("sqlite"), recipe.WithExtension(pg))
	r.Dimensions("state").Metrics("pop2000")

	sqlText, args, err := r.Query()
	require.NoError(t, err)
	assert.Contains(t, sqlText, "WHERE")
	assert.Contains(t, sqlText, "ILIKE")
	assert.Contains(t, sqlText, "OR")
	assert.Contains(t, args, "al")
}

func TestAnonymizeAddsFormatterOnlyWhenEnabled(t *testing.T) {
	s := censusShelf(t)
	ing, ok := s.Get("state")
	require.True(t, ok)
	ing.Meta = map[string]interface{}{"anonymizer": true}

	an := NewAnonymize().Enable(true)
	r := recipe.New(s, recipe.WithDrivername("sqlite"), recipe.WithExtension(an))
	r.Dimensions("state").Metrics("pop2000")

	_, _, err := r.Query()
	require.NoError(t, err)

	found, ok := s.Get("state")
	require.True(t, ok)
	require.NotEmpty(t, found.Formatters)
	masked := found.Formatters[len(found.Formatters)-1]("CA")
	assert.NotEqual(t, "CA", masked)
}

func TestAnonymizeDisabledAddsNoFormatter(t *testing.T) {
	s := censusShelf(t)
	ing, ok := s.Get("state")
	require.True(t, ok)
	ing.Meta = map[string]interface{}{"anonymizer": true}
	baseline := len(ing.Formatters)

	an := NewAnonymize()
	r := recipe.New(s, recipe.WithDrivername("sqlite"), recipe.WithExtension(an))
	r.Dimensions("state").Metrics("pop2000")

	_, _, err := r.Query()
	require.NoError(t, err)

	found, _ := s.Get("state")
	assert.Len(t, found.Formatters, baseline)
}
