package transform

import (
	"fmt"

	"github.com/juiceinc/recipe/expression"
	"github.com/juiceinc/recipe/sql"
)

// Driver name constants, matching sqlalchemy-style drivername strings
// (spec §4.5 driver table). Any drivername not named here falls through
// to the "default" behavior of each dispatch function below.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgresql+psycopg2"
	DriverRedshift = "redshift+psycopg2"
	DriverBigQuery = "bigquery"
	DriverMSSQL    = "mssql"
)

// truncExprFor renders unit-truncation of fld for driver (spec §4.5).
// mssql has no native date_trunc for week/quarter; callers must check
// supportsWeekQuarter first and raise a GrammarError rather than call
// this for those units (original_source/recipe/schemas/transformers.py's
// mssql developer note, carried into transform.go).
func truncExprFor(driver, unit string, fld expression.Expression) expression.Expression {
	if driver == DriverBigQuery {
		return &expression.Templated{
			DT:       sql.Datetime,
			Template: "date_trunc(%s, " + unit + ")",
			Child:    fld,
		}
	}
	return &expression.Func{DT: sql.Datetime, Name: "date_trunc", Args: []expression.Expression{
		&expression.Literal{DT: sql.Str, Value: unit}, fld,
	}}
}

// ageExprFor renders an age-in-years calculation for fld (spec §4.5
// age(...)). postgresql/redshift and bigquery each need a bespoke
// expression carried verbatim from
// original_source/recipe/schemas/engine_support.py's postgres_age/
// bq_age; sqlite has no native equivalent and uses a portable
// julianday expression; mssql has none and must be rejected by the
// caller before reaching here (see supportsAge).
func ageExprFor(driver string, fld expression.Expression) expression.Expression {
	switch driver {
	case DriverPostgres, DriverRedshift:
		return &expression.Templated{
			DT: sql.Num,
			Template: "(DATEDIFF('YEAR', %s, CURRENT_DATE) - " +
				"CASE WHEN extract('month' from CURRENT_DATE) + extract('day' from CURRENT_DATE)/100.0 " +
				"< extract('month' from %s) + extract('day' from %s)/100.0 THEN 1 ELSE 0 END)",
			Child:  fld,
			Repeat: 3,
		}
	case DriverBigQuery:
		return &expression.Templated{
			DT: sql.Num,
			Template: "(DATE_DIFF(CURRENT_DATE, %s, YEAR) - " +
				"IF(EXTRACT(MONTH FROM CURRENT_DATE) + EXTRACT(DAY FROM CURRENT_DATE)/100.0 " +
				"< EXTRACT(MONTH FROM %s) + EXTRACT(DAY FROM %s)/100.0, 1, 0))",
			Child:  fld,
			Repeat: 3,
		}
	default: // sqlite and anything else not carrying its own age()
		return &expression.Templated{
			DT:       sql.Num,
			Template: "CAST((julianday('now') - julianday(%s)) / 365.25 AS INTEGER)",
			Child:    fld,
		}
	}
}

// bqPercentileOffsets carries engine_support.py's bq_percentileN family
// verbatim: divisor/offset pairs for bigquery's
// approx_quantiles(fld, divisor)[OFFSET(offset)].
var bqPercentileOffsets = map[int][2]int{
	1:  {100, 1},
	5:  {20, 1},
	10: {10, 1},
	25: {4, 1},
	50: {2, 1}, // median
	75: {4, 3},
	90: {10, 9},
	95: {20, 19},
	99: {100, 99},
}

// percentileFuncFor renders a percentileN aggregation of fld for driver.
func percentileFuncFor(driver string, n int, fld expression.Expression) (expression.Expression, error) {
	switch driver {
	case DriverMSSQL:
		return nil, fmt.Errorf("percentile%d is not supported on mssql", n)
	case DriverBigQuery:
		pair, ok := bqPercentileOffsets[n]
		if !ok {
			return nil, fmt.Errorf("percentile%d is not supported", n)
		}
		return &expression.Templated{
			DT:       sql.Num,
			Template: fmt.Sprintf("approx_quantiles(%%s, %d)[OFFSET(%d)]", pair[0], pair[1]),
			Child:    fld,
		}, nil
	default:
		frac := float64(n) / 100.0
		return &expression.Templated{
			DT:       sql.Num,
			Template: fmt.Sprintf("percentile_cont(%g) within group (order by %%s)", frac),
			Child:    fld,
		}, nil
	}
}

// medianFuncFor renders the median aggregation of fld for driver.
func medianFuncFor(driver string, fld expression.Expression) (expression.Expression, error) {
	if driver == DriverMSSQL {
		return nil, fmt.Errorf("median is not supported on mssql")
	}
	if driver == DriverBigQuery {
		return percentileFuncFor(driver, 50, fld)
	}
	return &expression.Func{DT: sql.Num, Name: "median", Args: []expression.Expression{fld}}, nil
}

// supportsWeekQuarter reports whether driver implements date_trunc for
// week/quarter. mssql lacks both (spec §4.5 driver table).
func supportsWeekQuarter(driver string) bool {
	return driver != DriverMSSQL
}

// supportsAge reports whether driver implements age(...). mssql lacks it.
func supportsAge(driver string) bool {
	return driver != DriverMSSQL
}
