package parser

import (
	"fmt"
	"sync"

	"github.com/juiceinc/recipe/catalog"
	"github.com/juiceinc/recipe/sql"
)

// parserCache is the process-wide, read-mostly map of grammar hash to
// Parser described in spec §5 ("Shared resources... Parser cache is
// process-wide and read-mostly"). sync.Map gives us the concurrent-map
// discipline spec §5 calls for without a caller-visible lock.
var parserCache sync.Map // grammarHash string -> *Parser

// GetParser returns the memoized Parser for grammarHash, building and
// storing one bound to cc if none exists yet. Two goroutines racing to
// build the same grammar hash may both construct a Parser; only one wins
// the store, which spec §5 calls out as acceptable.
func GetParser(grammarHash string, cc *catalog.ColCollection) *Parser {
	if v, ok := parserCache.Load(grammarHash); ok {
		return v.(*Parser)
	}
	p := New(cc)
	actual, _ := parserCache.LoadOrStore(grammarHash, p)
	return actual.(*Parser)
}

// Flags are the remaining components of the tree-cache key (spec §4.3):
// (grammar-hash, field-text, forbid_aggregation, enforce_aggregation,
// date-conversion-name, datetime-conversion-name).
type Flags struct {
	ForbidAggregation    bool
	EnforceAggregation   bool
	DateConversion       string
	DatetimeConversion   string
}

// CacheKey renders the short ASCII string the Cache contract (spec §6)
// expects.
func CacheKey(grammarHash, fieldText string, f Flags) string {
	return fmt.Sprintf("tree:%s:%x:%v:%v:%s:%s", grammarHash, fieldText, f.ForbidAggregation, f.EnforceAggregation, f.DateConversion, f.DatetimeConversion)
}

// ParseCached parses fieldText against cc, consulting cache first. If a
// cached tree is found it is returned as-is (a hit means "the second
// compile consults only the cache", spec §8 invariant 2). On a miss, the
// tree is parsed, stored, and returned. Any cache error is swallowed, per
// the Cache contract.
func ParseCached(cache sql.Cache, grammarHash, fieldText string, f Flags, cc *catalog.ColCollection) (*Node, bool, error) {
	key := CacheKey(grammarHash, fieldText, f)
	if v, ok := sql.SafeGet(cache, key); ok {
		if n, ok := v.(*Node); ok {
			return n, true, nil
		}
	}

	p := GetParser(grammarHash, cc)
	tree, err := p.Parse(fieldText)
	if err != nil {
		return nil, false, err
	}
	sql.SafeSet(cache, key, tree)
	return tree, false, nil
}

// Evict removes a stale cached tree, spec §4.3: "If a cached tree fails to
// lower... the entry is evicted and the tree is rebuilt from source."
func Evict(cache sql.Cache, grammarHash, fieldText string, f Flags) {
	// The Cache contract (spec §6) only requires Get/Set; there is no
	// Delete. We emulate eviction by overwriting the slot with a tombstone
	// that ParseCached's type assertion rejects, forcing a rebuild.
	key := CacheKey(grammarHash, fieldText, f)
	sql.SafeSet(cache, key, nil)
}
