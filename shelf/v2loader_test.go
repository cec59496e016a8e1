package shelf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juiceinc/recipe/catalog"
	"github.com/juiceinc/recipe/ingredient"
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
		{Name: "sex", StorageType: "varchar", SQLACol: "census.sex"},
		{Name: "age", StorageType: "int", SQLACol: "census.age"},
	}}
	cc, err := catalog.Build(sel)
	require.NoError(t, err)
	return cc
}

func TestLoadV2DimensionAndMetric(t *testing.T) {
	cc := testCatalog(t)
	cfgs := map[string]EntryConfig{
		"state": {Kind: "Dimension", Field: "state"},
		"pop":   {Kind: "Metric", Field: "sum(pop2000)"},
	}
	s, cacheKey, err := LoadV2("census", cc, []string{"state", "pop"}, cfgs, "sqlite", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, cacheKey)

	dim, ok := s.Get("state")
	require.True(t, ok)
	assert.Equal(t, ingredient.KindDimension, dim.Kind)

	metric, ok := s.Get("pop")
	require.True(t, ok)
	sqltext, _ := metric.Roles["value"].SQL("sqlite")
	assert.Contains(t, sqltext, "sum(")
}

func TestLoadV2MetricEnforcesAggregation(t *testing.T) {
	cc := testCatalog(t)
	cfgs := map[string]EntryConfig{
		"pop": {Kind: "Metric", Field: "pop2000"},
	}
	s, _, err := LoadV2("census", cc, []string{"pop"}, cfgs, "sqlite", nil)
	require.NoError(t, err)

	metric, ok := s.Get("pop")
	require.True(t, ok)
	require.Equal(t, ingredient.KindMetric, metric.Kind)
	sqltext, _ := metric.Roles["value"].SQL("sqlite")
	assert.Contains(t, sqltext, "sum(")
}

func TestLoadV2InvalidFieldBecomesInvalidIngredient(t *testing.T) {
	cc := testCatalog(t)
	cfgs := map[string]EntryConfig{
		"bad": {Kind: "Metric", Field: "pop2000 +++ state"},
	}
	s, _, err := LoadV2("census", cc, []string{"bad"}, cfgs, "sqlite", nil)
	require.NoError(t, err)

	ing, ok := s.Get("bad")
	require.True(t, ok)
	assert.Equal(t, ingredient.KindInvalid, ing.Kind)
	assert.Error(t, ing.Error)
}

func TestLoadV2Buckets(t *testing.T) {
	cc := testCatalog(t)
	cfgs := map[string]EntryConfig{
		"agegroup": {
			Kind: "Dimension",
			Buckets: []BucketConfig{
				{Condition: "age < 2", Label: "babies"},
				{Condition: "age < 13", Label: "children"},
				{Condition: "age < 20", Label: "teens"},
			},
			BucketsDefaultLabel: "oldsters",
		},
	}
	s, _, err := LoadV2("census", cc, []string{"agegroup"}, cfgs, "sqlite", nil)
	require.NoError(t, err)

	dim, ok := s.Get("agegroup")
	require.True(t, ok)
	require.NoError(t, dim.Error)

	valSQL, valArgs := dim.Roles["value"].SQL("sqlite")
	assert.Contains(t, valSQL, "CASE")
	assert.Contains(t, valArgs, "oldsters")

	_, orderArgs := dim.Roles["order_by"].SQL("sqlite")
	assert.Contains(t, orderArgs, 9999.0)
}

func TestLoadV2BareLiteralFieldIsInvalid(t *testing.T) {
	cc := testCatalog(t)
	cfgs := map[string]EntryConfig{
		"constant": {Kind: "Dimension", Field: `"hello"`},
	}
	s, _, err := LoadV2("census", cc, []string{"constant"}, cfgs, "sqlite", nil)
	require.NoError(t, err)

	ing, ok := s.Get("constant")
	require.True(t, ok)
	assert.Equal(t, ingredient.KindInvalid, ing.Kind)
	assert.Error(t, ing.Error)
}

func TestLoadV2PreservesInsertionOrder(t *testing.T) {
	cc := testCatalog(t)
	cfgs := map[string]EntryConfig{
		"b": {Kind: "Dimension", Field: "state"},
		"a": {Kind: "Dimension", Field: "sex"},
	}
	s, _, err := LoadV2("census", cc, []string{"b", "a"}, cfgs, "sqlite", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, s.DimensionIDs())
}
