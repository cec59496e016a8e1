package inmemcache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juiceinc/recipe/sql"
)

func TestCacheGetMissReturnsFalse(t *testing.T) {
	c := New()
	_, ok, err := c.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheSetThenGetRoundTrips(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("k", 42))

	v, ok, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestCacheSetNilTombstoneHitsWithNilValue(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("k", "v"))
	require.NoError(t, c.Set("k", nil))

	v, ok, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestCacheLenAndClear(t *testing.T) {
	c := New()
	c.Set("a", 1)
	c.Set("b", 2)
	assert.Equal(t, 2, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set("k", i)
			c.Get("k")
		}(i)
	}
	wg.Wait()
}

func TestCacheSatisfiesSQLCacheContract(t *testing.T) {
	var _ sql.Cache = (*Cache)(nil)
}
