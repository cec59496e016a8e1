// recipedemo wires configyaml, catalog, shelf, recipe, extension and
// inmemcache together over the census table used throughout this
// module's tests, and prints the compiled SQL for a few recipes built
// against it.
//
// Run it with:
//
//	go run ./cmd/recipedemo
//
// The "database" here is a fakeSession stub that returns a fixed set
// of rows no matter what SQL it receives — there is no real SQL
// driver wired into this demo, only the query-assembly pipeline. Its
// purpose is to show the pieces fitting together, not to execute
// anything.
package main

import (
	"context"
	"fmt"

	"github.com/juiceinc/recipe/cache/inmemcache"
	"github.com/juiceinc/recipe/catalog"
	"github.com/juiceinc/recipe/configyaml"
	"github.com/juiceinc/recipe/extension"
	"github.com/juiceinc/recipe/recipe"
	"github.com/juiceinc/recipe/shelf"
	"github.com/juiceinc/recipe/sql"
)

// censusIngredients is the ingredients file for a census table with
// columns state, sex, age, pop2000, pop2008 — the worked example
// carried through this module's end-to-end tests.
const censusIngredients = `
state:
    kind: Dimension
    field: state
sex:
    kind: Dimension
    field: sex
age_group:
    kind: Dimension
    field: age
    buckets:
      - condition: "age < 2"
        label: infant
      - condition: "age < 13"
        label: child
      - condition: "age < 20"
        label: teenager
    buckets_default_label: adult
pop2000:
    kind: Metric
    field: sum(pop2000)
    format: comma
pop2008:
    kind: Metric
    field: sum(pop2008)
    format: comma
ca_only:
    kind: Filter
    field: 'state = "CA"'
`

type census struct {
	name string
	cols []sql.SelectableColumn
}

func (c census) Name() string                    { return c.name }
func (c census) Columns() []sql.SelectableColumn { return c.cols }

// fakeSession stands in for a real database driver: it records the
// SQL and args it was given and always answers with the same two
// canned rows, so All() has something to print.
type fakeSession struct {
	drivername string
	lastSQL    string
	lastArgs   []interface{}
}

func (f *fakeSession) Drivername() string { return f.drivername }

func (f *fakeSession) Execute(query string, args []interface{}) ([]sql.Row, []string, error) {
	f.lastSQL, f.lastArgs = query, args
	return []sql.Row{
		{"state": "Tennessee", "pop2000": 5685230},
		{"state": "Vermont", "pop2008": 621760},
	}, []string{"state", "pop2000", "pop2008"}, nil
}

func buildShelf() (*shelf.Shelf, error) {
	sel := census{name: "census", cols: []sql.SelectableColumn{
		{Name: "state", StorageType: "varchar", SQLACol: "census.state"},
		{Name: "sex", StorageType: "varchar", SQLACol: "census.sex"},
		{Name: "age", StorageType: "int", SQLACol: "census.age"},
		{Name: "pop2000", StorageType: "int", SQLACol: "census.pop2000"},
		{Name: "pop2008", StorageType: "int", SQLACol: "census.pop2008"},
	}}
	cc, err := catalog.Build(sel)
	if err != nil {
		return nil, fmt.Errorf("building catalog: %w", err)
	}

	ids, cfgs, err := configyaml.Parse([]byte(censusIngredients))
	if err != nil {
		return nil, fmt.Errorf("parsing ingredients: %w", err)
	}

	s, _, err := shelf.LoadV2("census", cc, ids, cfgs, "sqlite", inmemcache.New())
	if err != nil {
		return nil, fmt.Errorf("loading shelf: %w", err)
	}
	return s, nil
}

func main() {
	s, err := buildShelf()
	if err != nil {
		panic(err)
	}
	sess := &fakeSession{drivername: "sqlite"}

	fmt.Println("-- basic recipe: state, pop2000/pop2008 totals ordered by state --")
	basic := recipe.New(s, recipe.WithDrivername("sqlite"), recipe.WithSession(sess)).
		Dimensions("state").
		Metrics("pop2000", "pop2008").
		Filters("ca_only").
		OrderBy("state")
	printQuery(basic)

	fmt.Println()
	fmt.Println("-- bucketed recipe: population by age_group --")
	bucketed := recipe.New(s, recipe.WithDrivername("sqlite"), recipe.WithSession(sess)).
		Dimensions("age_group").
		Metrics("pop2000")
	printQuery(bucketed)

	fmt.Println()
	fmt.Println("-- automatic filters + pagination over state/sex --")
	paginated := recipe.New(s,
		recipe.WithDrivername("sqlite"),
		recipe.WithSession(sess),
		recipe.WithExtension(extension.NewAutomaticFilters().SetFilters(map[string]interface{}{
			"state": []string{"CA", "TN", "VT"},
		})),
		recipe.WithExtension(extension.NewPaginate().PageSize(10).Page(5).
			SearchKeys("state", "sex").Search("T%")),
	).
		Dimensions("state", "sex").
		Metrics("pop2000")
	printQuery(paginated)

	rows, err := basic.All(context.Background())
	if err != nil {
		panic(err)
	}
	fmt.Println()
	fmt.Println("-- rows returned by the fake session for the basic recipe --")
	for _, row := range rows {
		fmt.Printf("%+v\n", row)
	}
}

func printQuery(r *recipe.Recipe) {
	q, args, err := r.Query()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(q)
	fmt.Println("args:", args)
}
