package kvstore

import (
	"fmt"

	"go.etcd.io/bbolt"
)

// Table is an ordered keyspace within a transaction. Values returned by Get
// and by cursors point into the store's memory map and are only valid until
// the transaction finishes; callers that retain data must copy it.
type Table struct {
	txn    *Txn
	bucket *bbolt.Bucket
}

// Get returns the value stored under key, or ErrNotFound.
func (tbl *Table) Get(key []byte) ([]byte, error) {
	if tbl.txn.done {
		return nil, ErrTxnDone
	}
	v := tbl.bucket.Get(key)
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

// Put stores value under key, replacing any existing entry.
// The key size is validated before the mutation.
func (tbl *Table) Put(key, value []byte) error {
	switch {
	case tbl.txn.done:
		return ErrTxnDone
	case !tbl.txn.writable:
		return ErrTxnReadOnly
	}
	if err := CheckKeySize(key); err != nil {
		return err
	}
	if err := tbl.bucket.Put(key, value); err != nil {
		return fmt.Errorf("kvstore: put: %w", err)
	}
	return nil
}

// Delete removes the entry under key. Deleting an absent key is a no-op.
func (tbl *Table) Delete(key []byte) error {
	switch {
	case tbl.txn.done:
		return ErrTxnDone
	case !tbl.txn.writable:
		return ErrTxnReadOnly
	}
	if err := tbl.bucket.Delete(key); err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}
	return nil
}

// Count returns the number of entries in the table.
func (tbl *Table) Count() (int, error) {
	if tbl.txn.done {
		return 0, ErrTxnDone
	}
	return tbl.bucket.Stats().KeyN, nil
}

// Cursor returns an ordered cursor over the table. The cursor is positioned
// before the first entry; call one of its seek methods first.
func (tbl *Table) Cursor() *Cursor {
	return &Cursor{txn: tbl.txn, c: tbl.bucket.Cursor()}
}
