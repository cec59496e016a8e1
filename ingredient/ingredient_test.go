package ingredient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juiceinc/recipe/expression"
	"github.com/juiceinc/recipe/sql"
)

func col(name string, dt sql.Datatype) expression.Expression {
	return &expression.Column{DT: dt, Name: name, SQLACol: name}
}

func TestDimensionColumnOrdering(t *testing.T) {
	dim, err := NewDimension(col("name", sql.Str), []Option{WithID("hospital")},
		WithRole("id", col("id", sql.Num)),
		WithRole("order_by", col("rank", sql.Num)),
		WithRole("latitude", col("lat", sql.Num)),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "value", "latitude", "order_by"}, dim.RoleKeys)

	cols, err := dim.QueryColumns()
	require.NoError(t, err)
	require.Len(t, cols, 4)
	assert.Equal(t, "hospital_id", cols[0].Label)
	assert.Equal(t, "hospital", cols[1].Label)
	assert.Equal(t, "hospital_latitude", cols[2].Label)
	assert.Equal(t, "hospital_order_by", cols[3].Label)
}

func TestDimensionIDProp(t *testing.T) {
	withID, err := NewDimension(col("name", sql.Str), []Option{WithID("hospital")}, WithRole("id", col("id", sql.Num)))
	require.NoError(t, err)
	assert.Equal(t, "hospital_id", withID.IDProp())

	noID, err := NewDimension(col("name", sql.Str), []Option{WithID("hospital")})
	require.NoError(t, err)
	assert.Equal(t, "hospital", noID.IDProp())
}

func TestLookupDimensionFormatter(t *testing.T) {
	dim, err := NewLookupDimension(col("state", sql.Str), map[string]interface{}{"CA": "California"},
		[]Option{WithID("st")})
	require.NoError(t, err)
	require.Len(t, dim.Formatters, 1)
	assert.Equal(t, "California", dim.Formatters[0]("CA"))
	assert.Equal(t, "TX", dim.Formatters[0]("TX"))
}

func TestBuildFilterScalarEq(t *testing.T) {
	f := NewMetric(col("pop", sql.Num), WithID("pop"))
	having, err := f.BuildFilter("CA", "eq", "")
	require.NoError(t, err)
	assert.Equal(t, KindHaving, having.Kind)
}

func TestBuildFilterVectorInWithNull(t *testing.T) {
	dim, err := NewDimension(col("state", sql.Str), []Option{WithID("st")})
	require.NoError(t, err)
	filt, err := dim.BuildFilter([]interface{}{"CA", nil, "TX"}, "in", "")
	require.NoError(t, err)
	assert.Equal(t, KindFilter, filt.Kind)
	sqltext, _ := filt.Filters[0].SQL("sqlite")
	assert.Contains(t, sqltext, "IS NULL")
	assert.Contains(t, sqltext, "IN")
}

func TestBuildFilterQuickselect(t *testing.T) {
	dim, err := NewDimension(col("state", sql.Str), []Option{
		WithID("st"),
		WithQuickSelects(QuickSelect{Name: "west", Condition: &expression.Binary{DT: sql.Bool, Op: "=", LHS: col("state", sql.Str), RHS: &expression.Literal{DT: sql.Str, Value: "CA"}}}),
	})
	require.NoError(t, err)
	filt, err := dim.BuildFilter("west", "quickselect", "")
	require.NoError(t, err)
	sqltext, _ := filt.Filters[0].SQL("sqlite")
	assert.Contains(t, sqltext, "state")
}

func TestBuildFilterParsesDateLiteral(t *testing.T) {
	dim, err := NewDimension(col("dt", sql.Date), []Option{WithID("dt")})
	require.NoError(t, err)
	filt, err := dim.BuildFilter("2020-06-15", "eq", "")
	require.NoError(t, err)
	sqltext, args := filt.Filters[0].SQL("sqlite")
	assert.Contains(t, sqltext, "=")
	require.Len(t, args, 1)
	_, isTime := args[0].(time.Time)
	assert.True(t, isTime, "expected the date string to be parsed into a time.Time, got %T", args[0])
}

func TestBuildFilterCastsNonStrColumnForStringValue(t *testing.T) {
	dim, err := NewDimension(col("age", sql.Num), []Option{WithID("age")})
	require.NoError(t, err)
	filt, err := dim.BuildFilter("5", "eq", "")
	require.NoError(t, err)
	sqltext, _ := filt.Filters[0].SQL("sqlite")
	assert.Contains(t, sqltext, "CAST(")
}

func TestBuildFilterEmptyInListIsAlwaysFalse(t *testing.T) {
	dim, err := NewDimension(col("state", sql.Str), []Option{WithID("st")})
	require.NoError(t, err)
	filt, err := dim.BuildFilter([]interface{}{}, "in", "")
	require.NoError(t, err)
	sqltext, _ := filt.Filters[0].SQL("sqlite")
	assert.Equal(t, "1!=1", sqltext)
}

func TestBuildFilterEmptyNotInListIsAlwaysTrue(t *testing.T) {
	dim, err := NewDimension(col("state", sql.Str), []Option{WithID("st")})
	require.NoError(t, err)
	filt, err := dim.BuildFilter([]interface{}{}, "notin", "")
	require.NoError(t, err)
	sqltext, _ := filt.Filters[0].SQL("sqlite")
	assert.Equal(t, "1=1", sqltext)
}

func TestDivideMetricGuardsZero(t *testing.T) {
	m := NewDivideMetric(col("wins", sql.Num), col("games", sql.Num), WithID("pct"))
	sqltext, _ := m.Roles["value"].SQL("sqlite")
	assert.Contains(t, sqltext, "CASE")
}
