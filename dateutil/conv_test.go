package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConvertToEndDatetime(t *testing.T) {
	got := ConvertToEndDatetime(DateOnly(d(2020, 1, 1)))
	want := time.Date(2020, 1, 1, 23, 59, 59, 999999000, time.UTC)
	assert.Equal(t, want, got)
}

func TestConvertToEODDatetime(t *testing.T) {
	midnight := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	got := ConvertToEODDatetime(midnight)
	want := time.Date(2020, 1, 1, 23, 59, 59, 999999000, time.UTC)
	assert.Equal(t, want, got)

	withTime := time.Date(2020, 1, 1, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, withTime, ConvertToEODDatetime(withTime))
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2020-01-15")
	assert.NoError(t, err)
	assert.Equal(t, 2020, got.Year())

	_, err = ParseDate("not a date at all")
	assert.Error(t, err)
}
