package kvs

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

// Transaction batches writes over a snapshot of the store. Reads see the
// snapshot plus the transaction's own writes. A transaction is not safe for
// concurrent use; goroutines sharing one must go through a Strand.
type Transaction struct {
	db       *DB
	snap     *leveldb.Snapshot
	batch    *leveldb.Batch
	writes   map[string][]byte // nil value marks a delete
	finished bool
}

// NewTransaction implements Storage.
func (d *DB) NewTransaction() (*Transaction, error) {
	snap, err := d.db.GetSnapshot()
	if err != nil {
		return nil, errors.Wrap(err, "acquiring kvs snapshot")
	}
	return &Transaction{
		db:     d,
		snap:   snap,
		batch:  new(leveldb.Batch),
		writes: make(map[string][]byte),
	}, nil
}

// Get reads through the transaction's own writes first, then the snapshot.
func (t *Transaction) Get(key []byte) ([]byte, bool, error) {
	if v, ok := t.writes[string(key)]; ok {
		if v == nil {
			return nil, false, nil
		}
		return v, true, nil
	}
	v, err := t.snap.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "transaction get")
	}
	return v, true, nil
}

// Put records a write.
func (t *Transaction) Put(key, value []byte) error {
	cp := append([]byte(nil), value...)
	t.writes[string(key)] = cp
	t.batch.Put(key, cp)
	return nil
}

// Delete records a removal.
func (t *Transaction) Delete(key []byte) error {
	t.writes[string(key)] = nil
	t.batch.Delete(key)
	return nil
}

// Scan iterates the snapshot. The transaction's own uncommitted writes are
// not merged into range scans; the operators delete and insert through
// point operations before scanning again.
func (t *Transaction) Scan(lower []byte, lowerInclusive bool, upper []byte, upperInclusive bool) (Iterator, error) {
	r, err := rangeOf(lower, lowerInclusive, upper, upperInclusive)
	if err != nil {
		return nil, err
	}
	return &ldbIterator{it: t.snap.NewIterator(r, nil)}, nil
}

// Commit applies the batched writes atomically and releases the snapshot.
func (t *Transaction) Commit() error {
	if t.finished {
		return errors.New("transaction already finished")
	}
	t.finished = true
	defer t.snap.Release()
	return errors.Wrap(t.db.db.Write(t.batch, nil), "committing transaction")
}

// Rollback drops the batched writes and releases the snapshot.
func (t *Transaction) Rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true
	t.snap.Release()
	return nil
}

// Strand serializes operations of goroutines sharing one transaction.
// Transactions are otherwise single-owner; a strand is the only sanctioned
// way to share one.
type Strand struct {
	mu sync.Mutex
	tx *Transaction
}

// NewStrand wraps a transaction.
func NewStrand(tx *Transaction) *Strand {
	return &Strand{tx: tx}
}

// Do runs fn with exclusive access to the transaction.
func (s *Strand) Do(fn func(tx *Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.tx)
}
