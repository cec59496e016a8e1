package configyaml

import (
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

const censusYAML = `
state:
    kind: Dimension
    field: state
sex:
    kind: Dimension
    field: sex
pop2000:
    kind: Metric
    field: sum(pop2000)
    format: comma
department_lookup:
    kind: Dimension
    field: sex
    lookup:
        M: Male
        F: Female
    lookup_default: Unknown
ca_only:
    kind: Filter
    field: state = "CA"
`

func TestParsePreservesDocumentOrder(t *testing.T) {
	ids, cfgs, err := Parse([]byte(censusYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"state", "sex", "pop2000", "department_lookup", "ca_only"}, ids)
	assert.Equal(t, "Dimension", cfgs["state"].Kind)
	assert.Equal(t, "state", cfgs["state"].Field)
}

func TestParseBuildsLookupAndDefault(t *testing.T) {
	_, cfgs, err := Parse([]byte(censusYAML))
	require.NoError(t, err)

	cfg := cfgs["department_lookup"]
	require.Equal(t, "Male", cfg.Lookup["M"])
	require.Equal(t, "Female", cfg.Lookup["F"])
	assert.True(t, cfg.HasLookupDefault)
	assert.Equal(t, "Unknown", cfg.LookupDefault)
}

func TestParseAppliesNamedFormatter(t *testing.T) {
	_, cfgs, err := Parse([]byte(censusYAML))
	require.NoError(t, err)

	cfg := cfgs["pop2000"]
	require.Len(t, cfg.Formatters, 1)
	assert.Equal(t, "5,000,001", cfg.Formatters[0](5000001.0))
}

func TestParseRejectsNonStringKind(t *testing.T) {
	_, _, err := Parse([]byte("bad:\n    kind: 12\n    field: x\n"))
	require.Error(t, err)
}

func TestParsedConfigFeedsShelfLoadV2(t *testing.T) {
	ids, cfgs, err := Parse([]byte(censusYAML))
	require.NoError(t, err)

	sel := fakeSelectable{name: "census", cols: []sql.SelectableColumn{
		{Name: "pop2000", StorageType: "int", SQLACol: "census.pop2000"},
		{Name: "state", StorageType: "varchar", SQLACol: "census.state"},
		{Name: "sex", StorageType: "varchar", SQLACol: "census.sex"},
	}}
	cc, err := catalog.Build(sel)
	require.NoError(t, err)

	s, _, err := shelf.LoadV2("census", cc, ids, cfgs, "sqlite", nil)
	require.NoError(t, err)

	ing, ok := s.Get("state")
	require.True(t, ok)
	assert.Equal(t, "state", ing.ID)
}
