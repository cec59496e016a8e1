package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestCalcDateRange(t *testing.T) {
	type tc struct {
		offset, unit   string
		today          time.Time
		start, end     time.Time
	}

	cases := []tc{
		{"this", "year", d(2020, 12, 31), d(2020, 1, 1), d(2020, 12, 31)},
		{"current", "year", d(2020, 12, 31), d(2020, 1, 1), d(2020, 12, 31)},
		{"prior", "year", d(2020, 12, 31), d(2019, 1, 1), d(2019, 12, 31)},
		{"previous", "year", d(2020, 12, 31), d(2019, 1, 1), d(2019, 12, 31)},
		{"last", "year", d(2020, 12, 31), d(2019, 1, 1), d(2019, 12, 31)},
		{"next", "year", d(2020, 12, 31), d(2021, 1, 1), d(2021, 12, 31)},
		{"this", "year", d(2020, 6, 8), d(2020, 1, 1), d(2020, 12, 31)},

		{"this", "ytd", d(2020, 12, 31), d(2020, 1, 1), d(2020, 12, 31)},
		{"prior", "ytd", d(2020, 12, 31), d(2019, 1, 1), d(2019, 12, 31)},
		{"next", "ytd", d(2020, 12, 31), d(2021, 1, 1), d(2021, 12, 31)},
		{"this", "ytd", d(2020, 6, 8), d(2020, 1, 1), d(2020, 6, 8)},
		{"prior", "ytd", d(2020, 6, 8), d(2019, 1, 1), d(2019, 6, 8)},
		{"next", "ytd", d(2020, 6, 8), d(2021, 1, 1), d(2021, 6, 8)},
		{"this", "ytd", d(2020, 1, 1), d(2020, 1, 1), d(2020, 1, 1)},

		{"this", "qtr", d(2020, 12, 31), d(2020, 10, 1), d(2020, 12, 31)},
		{"this", "qtr", d(2020, 10, 1), d(2020, 10, 1), d(2020, 12, 31)},
		{"this", "qtr", d(2020, 9, 30), d(2020, 7, 1), d(2020, 9, 30)},
		{"this", "qtr", d(2020, 6, 8), d(2020, 4, 1), d(2020, 6, 30)},
		{"this", "qtr", d(2020, 4, 1), d(2020, 4, 1), d(2020, 6, 30)},
		{"this", "qtr", d(2020, 3, 31), d(2020, 1, 1), d(2020, 3, 31)},
		{"this", "qtr", d(2020, 1, 1), d(2020, 1, 1), d(2020, 3, 31)},
		{"next", "qtr", d(2020, 1, 1), d(2020, 4, 1), d(2020, 6, 30)},
		{"previous", "qtr", d(2020, 1, 1), d(2019, 10, 1), d(2019, 12, 31)},
		{"prior", "qtr", d(2020, 3, 31), d(2019, 10, 1), d(2019, 12, 31)},
		{"next", "qtr", d(2020, 3, 31), d(2020, 4, 1), d(2020, 6, 30)},
		{"next", "qtr", d(2020, 2, 29), d(2020, 4, 1), d(2020, 6, 30)},

		{"this", "month", d(2020, 12, 31), d(2020, 12, 1), d(2020, 12, 31)},
		{"this", "month", d(2020, 10, 31), d(2020, 10, 1), d(2020, 10, 31)},
		{"this", "month", d(2020, 2, 2), d(2020, 2, 1), d(2020, 2, 29)},
		{"this", "month", d(2019, 2, 2), d(2019, 2, 1), d(2019, 2, 28)},
		{"next", "month", d(2019, 2, 2), d(2019, 3, 1), d(2019, 3, 31)},
		{"prior", "month", d(2019, 2, 2), d(2019, 1, 1), d(2019, 1, 31)},

		{"this", "mtd", d(2020, 12, 31), d(2020, 12, 1), d(2020, 12, 31)},
		{"prior", "mtd", d(2020, 12, 31), d(2020, 11, 1), d(2020, 11, 30)},
		{"next", "mtd", d(2020, 12, 31), d(2021, 1, 1), d(2021, 1, 31)},
		{"this", "mtd", d(2020, 6, 8), d(2020, 6, 1), d(2020, 6, 8)},
		{"prior", "mtd", d(2020, 6, 8), d(2020, 5, 1), d(2020, 5, 8)},
		{"next", "mtd", d(2020, 6, 8), d(2020, 7, 1), d(2020, 7, 8)},
		{"this", "mtd", d(2020, 1, 1), d(2020, 1, 1), d(2020, 1, 1)},
		{"prior", "mtd", d(2020, 3, 30), d(2020, 2, 1), d(2020, 2, 29)},
		{"next", "mtd", d(2020, 6, 30), d(2020, 7, 1), d(2020, 7, 30)},

		{"this", "day", d(2020, 12, 31), d(2020, 12, 31), d(2020, 12, 31)},
		{"next", "day", d(2020, 12, 31), d(2021, 1, 1), d(2021, 1, 1)},
		{"prior", "day", d(2020, 12, 31), d(2020, 12, 30), d(2020, 12, 30)},
	}

	for _, c := range cases {
		start, end, err := CalcDateRange(c.offset, c.unit, c.today)
		require.NoError(t, err, "%s %s %v", c.offset, c.unit, c.today)
		assert.True(t, c.start.Equal(start), "%s %s %v: start got %v want %v", c.offset, c.unit, c.today, start, c.start)
		assert.True(t, c.end.Equal(end), "%s %s %v: end got %v want %v", c.offset, c.unit, c.today, end, c.end)
	}
}

func TestCalcDateRangeBadInputs(t *testing.T) {
	_, _, err := CalcDateRange("THISs", "day", d(2020, 12, 31))
	assert.Error(t, err)

	_, _, err = CalcDateRange("flugelhorn", "day", d(2020, 12, 31))
	assert.Error(t, err)

	_, _, err = CalcDateRange("current", "domino", d(2020, 12, 31))
	assert.Error(t, err)
}
