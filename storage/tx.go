package storage

import (
	"bytes"
	"errors"
	"sort"
)

// ErrTxClosed is returned when a committed or discarded transaction is used.
var ErrTxClosed = errors.New("storage: transaction closed")

type pendingWrite struct {
	value []byte
	del   bool
}

// Tx buffers writes on top of a Database. Reads observe the buffered writes
// first, and Commit flushes everything through a single atomic batch. A
// discarded transaction leaves the database untouched.
//
// Tx is not safe for concurrent use; callers serialise access per operation.
type Tx struct {
	db      Database
	pending map[string]pendingWrite
	closed  bool
}

// NewTx opens a transaction over db.
func NewTx(db Database) *Tx {
	return &Tx{db: db, pending: make(map[string]pendingWrite)}
}

func (tx *Tx) Get(key []byte) ([]byte, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	if w, ok := tx.pending[string(key)]; ok {
		if w.del {
			return nil, ErrNotFound
		}
		return append([]byte(nil), w.value...), nil
	}
	return tx.db.Get(key)
}

func (tx *Tx) Has(key []byte) (bool, error) {
	if tx.closed {
		return false, ErrTxClosed
	}
	if w, ok := tx.pending[string(key)]; ok {
		return !w.del, nil
	}
	return tx.db.Has(key)
}

func (tx *Tx) Put(key, value []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.pending[string(key)] = pendingWrite{value: append([]byte(nil), value...)}
	return nil
}

func (tx *Tx) Delete(key []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.pending[string(key)] = pendingWrite{del: true}
	return nil
}

// Iterate merges the committed keys under prefix with the pending writes.
func (tx *Tx) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	if tx.closed {
		return ErrTxClosed
	}
	merged := make(map[string][]byte)
	err := tx.db.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	})
	if err != nil {
		return err
	}
	for k, w := range tx.pending {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if w.del {
			delete(merged, k)
			continue
		}
		merged[k] = w.value
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn([]byte(k), append([]byte(nil), merged[k]...)) {
			return nil
		}
	}
	return nil
}

// Size reports the number of buffered writes.
func (tx *Tx) Size() int { return len(tx.pending) }

// Commit flushes the buffered writes atomically and closes the transaction.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	if len(tx.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tx.pending))
	for k := range tx.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := new(Batch)
	for _, k := range keys {
		w := tx.pending[k]
		if w.del {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), w.value)
	}
	tx.pending = nil
	return tx.db.Write(batch)
}

// Discard drops every buffered write.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.pending = nil
}
