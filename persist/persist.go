// Package persist keeps reduced transition systems and term sets in a badger database, keyed
// by a digest of their input and the options that produced them.
package persist

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/mitchellh/hashstructure/v2"

	"github.com/pmonson711/mCRL2/aterm"
	"github.com/pmonson711/mCRL2/lts"
)

var ErrNotFound = errors.New("not found")

type Cache struct {
	db *badger.DB
}

// Open opens the cache at path. An empty path gives a cache held in memory.
func Open(path string) (*Cache, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Key derives a cache key from any hashable description of an entry.
func Key(parts ...interface{}) (string, error) {
	h, err := hashstructure.Hash(parts, hashstructure.FormatV2, nil)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h), nil
}

func termsKey(key string) []byte {
	return []byte(fmt.Sprintf("terms-%s", key))
}

func ltsKey(key string) []byte {
	return []byte(fmt.Sprintf("lts-%s", key))
}

func (c *Cache) put(key []byte, value []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (c *Cache) get(key []byte) ([]byte, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return value, err
}

// PutTerms stores roots, which stay owned by the caller.
func (c *Cache) PutTerms(key string, store *aterm.Store, roots ...aterm.Term) error {
	var buf bytes.Buffer
	if err := aterm.WriteBinary(&buf, store, roots...); err != nil {
		return err
	}
	return c.put(termsKey(key), buf.Bytes())
}

// GetTerms rebuilds stored terms in store and returns owned references to them.
func (c *Cache) GetTerms(key string, store *aterm.Store) ([]aterm.Term, error) {
	value, err := c.get(termsKey(key))
	if err != nil {
		return nil, err
	}
	return aterm.ReadBinary(bytes.NewReader(value), store)
}

func (c *Cache) PutLTS(key string, l *lts.LTS) error {
	var buf bytes.Buffer
	if err := lts.WriteBinary(&buf, l); err != nil {
		return err
	}
	return c.put(ltsKey(key), buf.Bytes())
}

// GetLTS rebuilds a stored LTS with its labels in store.
func (c *Cache) GetLTS(key string, store *aterm.Store) (*lts.LTS, error) {
	value, err := c.get(ltsKey(key))
	if err != nil {
		return nil, err
	}
	return lts.ReadBinary(bytes.NewReader(value), store)
}
