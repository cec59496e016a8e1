// Package boltcache implements the two-method sql.Cache contract (spec
// §6) over a BoltDB-backed key/value file, giving the parse-tree cache
// (spec §4.3) a process-durable backend — across restarts, not just
// across requests within one process — instead of the default
// in-memory one.
package boltcache

import (
	"bytes"
	"encoding/gob"

	"github.com/boltdb/bolt"

	"github.com/juiceinc/recipe/catalog"
	"github.com/juiceinc/recipe/parser"
)

func init() {
	gob.Register(&parser.Node{})
	gob.Register(&catalog.Column{})
	gob.Register("")
	gob.Register(float64(0))
	gob.Register(true)
	gob.Register(0)
}

// tombstone marks a key that parser.Evict overwrote to force a rebuild
// (spec §4.3: "the entry is evicted"); the Cache contract has no Delete
// method, so an evicted key is a stored nil rather than an absent one.
var tombstone = []byte{0}

// envelope carries a cached value through gob as a named interface
// field — gob only records a concrete type's registered name when that
// type is assigned to a field declared as an interface, so a bare
// top-level Encode/Decode of an interface{} value can't round-trip on
// its own.
type envelope struct {
	V interface{}
}

// Cache is a sql.Cache backed by a single BoltDB bucket. Every value
// passed to Set must be a concrete type registered with gob in this
// package's init — in practice, the only values this module ever
// caches are *parser.Node trees, already registered above.
type Cache struct {
	db     *bolt.DB
	bucket []byte
}

// Open opens (creating if necessary) a BoltDB file at path and ensures
// bucket exists, ready to serve requests as a sql.Cache.
func Open(path, bucket string) (*Cache, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	b := []byte(bucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(b)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db, bucket: b}, nil
}

// Close releases the underlying BoltDB file handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get implements sql.Cache.
func (c *Cache) Get(key string) (interface{}, bool, error) {
	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(c.bucket).Get([]byte(key))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	if bytes.Equal(raw, tombstone) {
		return nil, true, nil
	}

	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&env); err != nil {
		return nil, false, err
	}
	return env.V, true, nil
}

// Set implements sql.Cache. A nil value is stored as a tombstone.
func (c *Cache) Set(key string, value interface{}) error {
	var raw []byte
	if value == nil {
		raw = tombstone
	} else {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(envelope{V: value}); err != nil {
			return err
		}
		raw = buf.Bytes()
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(c.bucket).Put([]byte(key), raw)
	})
}
