package boltcache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juiceinc/recipe/catalog"
	"github.com/juiceinc/recipe/parser"
	"github.com/juiceinc/recipe/sql"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.bolt")
	c, err := Open(path, "trees")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestBoltCacheRoundTripsParserNode(t *testing.T) {
	c := openTestCache(t)

	node := &parser.Node{
		Kind:     parser.KindColumn,
		Datatype: sql.Num,
		Text:     "pop2000",
		Column:   &catalog.Column{Name: "pop2000", Datatype: sql.Num, SQLACol: "census.pop2000"},
	}

	err := c.Set("tree:abc", node)
	require.NoError(t, err)

	v, ok, err := c.Get("tree:abc")
	require.NoError(t, err)
	require.True(t, ok)

	got, isNode := v.(*parser.Node)
	require.True(t, isNode)
	assert.Equal(t, node.Text, got.Text)
	assert.Equal(t, node.Datatype, got.Datatype)
	assert.Equal(t, node.Column.Name, got.Column.Name)
}

func TestBoltCacheMissReturnsFalse(t *testing.T) {
	c := openTestCache(t)

	_, ok, err := c.Get("nothing-here")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoltCacheTombstoneHitsButTypeAssertsFalse(t *testing.T) {
	c := openTestCache(t)
	require.NoError(t, c.Set("tree:evicted", &parser.Node{Text: "x"}))
	require.NoError(t, c.Set("tree:evicted", nil))

	v, ok, err := c.Get("tree:evicted")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, v)

	_, isNode := v.(*parser.Node)
	assert.False(t, isNode)
}

func TestBoltCacheSatisfiesSQLCacheContract(t *testing.T) {
	var _ sql.Cache = (*Cache)(nil)
}
