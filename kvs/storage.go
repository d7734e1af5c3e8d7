// Package kvs binds the engine to its ordered key-value store. The
// production deployment plugs an external storage engine behind the Storage
// interface; the bundled implementation runs on goleveldb, with an
// in-memory backend for tests and an on-disk backend for durable runs.
package kvs

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Iterator walks keys in byte order within a half-open or closed range.
type Iterator interface {
	// Next advances and reports whether a pair is available.
	Next() bool
	// Key returns the current key. Valid until the next call to Next.
	Key() []byte
	// Value returns the current value. Valid until the next call to Next.
	Value() []byte
	// Error returns the first failure observed while iterating.
	Error() error
	// Release frees the iterator. Every acquired iterator must be released.
	Release()
}

// Storage is the ordered store the operators read and write.
type Storage interface {
	// Get reads one key, reporting presence.
	Get(key []byte) ([]byte, bool, error)
	// Put stores one pair.
	Put(key, value []byte) error
	// Delete removes one key. Deleting an absent key is not an error.
	Delete(key []byte) error
	// Scan opens an iterator over [lower, upper] honoring the per-endpoint
	// inclusive flags. A nil endpoint leaves that side unbounded.
	Scan(lower []byte, lowerInclusive bool, upper []byte, upperInclusive bool) (Iterator, error)
	// NewTransaction starts a transaction over the current state.
	NewTransaction() (*Transaction, error)
	// Close releases the store.
	Close() error
}

// DB is the goleveldb-backed Storage.
type DB struct {
	db *leveldb.DB
}

// Open opens (creating as needed) an on-disk store.
func Open(path string) (*DB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening kvs at %s", path)
	}
	return &DB{db: db}, nil
}

// OpenMemory opens a store backed by process memory, used by tests and by
// the scan/exchange benchmarks.
func OpenMemory() (*DB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening in-memory kvs")
	}
	return &DB{db: db}, nil
}

// Get implements Storage.
func (d *DB) Get(key []byte) ([]byte, bool, error) {
	v, err := d.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "kvs get")
	}
	return v, true, nil
}

// Put implements Storage.
func (d *DB) Put(key, value []byte) error {
	return errors.Wrap(d.db.Put(key, value, nil), "kvs put")
}

// Delete implements Storage.
func (d *DB) Delete(key []byte) error {
	return errors.Wrap(d.db.Delete(key, nil), "kvs delete")
}

// Scan implements Storage. The underlying iterator is half-open, so the
// endpoints are adjusted by appending a zero byte where the flags require:
// an exclusive lower bound starts just after the key, an inclusive upper
// bound ends just after it.
func (d *DB) Scan(lower []byte, lowerInclusive bool, upper []byte, upperInclusive bool) (Iterator, error) {
	r, err := rangeOf(lower, lowerInclusive, upper, upperInclusive)
	if err != nil {
		return nil, err
	}
	return &ldbIterator{it: d.db.NewIterator(r, nil)}, nil
}

func rangeOf(lower []byte, lowerInclusive bool, upper []byte, upperInclusive bool) (*util.Range, error) {
	r := &util.Range{}
	if lower != nil {
		r.Start = lower
		if !lowerInclusive {
			r.Start = successor(lower)
		}
	}
	if upper != nil {
		r.Limit = upper
		if upperInclusive {
			r.Limit = successor(upper)
		}
	}
	return r, nil
}

// successor returns the immediate byte-order successor of key.
func successor(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	return out
}

// Close implements Storage.
func (d *DB) Close() error {
	return errors.Wrap(d.db.Close(), "closing kvs")
}

type ldbIterator struct {
	it interface {
		Next() bool
		Key() []byte
		Value() []byte
		Error() error
		Release()
	}
}

func (i *ldbIterator) Next() bool    { return i.it.Next() }
func (i *ldbIterator) Key() []byte   { return i.it.Key() }
func (i *ldbIterator) Value() []byte { return i.it.Value() }
func (i *ldbIterator) Error() error  { return i.it.Error() }
func (i *ldbIterator) Release()      { i.it.Release() }
