package kvstore

import (
	"bytes"
	"fmt"

	"go.etcd.io/bbolt"
)

// Txn is an explicit transaction over a Store.
//
// A write transaction holds the store's single writer slot until Commit or
// Abort; a read transaction is a snapshot and never blocks writers. Once a
// transaction is finished every further call on it (and on any Table or
// Cursor obtained from it) fails with ErrTxnDone.
type Txn struct {
	tx       *bbolt.Tx
	writable bool
	done     bool
}

// Writable reports whether the transaction permits mutation.
func (t *Txn) Writable() bool { return t.writable }

// Commit makes all writes durable and finishes the transaction.
// Committing a read-only transaction simply releases its snapshot.
func (t *Txn) Commit() error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true
	if !t.writable {
		return t.tx.Rollback()
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("kvstore: commit: %w", err)
	}
	return nil
}

// Abort discards all writes made within the transaction and finishes it.
func (t *Txn) Abort() error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("kvstore: abort: %w", err)
	}
	return nil
}

// OnCommit registers fn to run after the transaction commits successfully.
// Callbacks never run for an aborted (or read-only) transaction, which makes
// them the right home for side effects that must track committed state.
func (t *Txn) OnCommit(fn func()) {
	if t.done || !t.writable {
		return
	}
	t.tx.OnCommit(fn)
}

// Table returns a handle to the named table within this transaction.
// The handle is only valid until the transaction finishes.
func (t *Txn) Table(name string) (*Table, error) {
	if t.done {
		return nil, ErrTxnDone
	}
	if bytes.Equal([]byte(name), metaTable) {
		return nil, fmt.Errorf("%w: %s", ErrNoTable, name)
	}
	b := t.tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTable, name)
	}
	return &Table{txn: t, bucket: b}, nil
}

// Truncate drops and recreates the named table, removing every entry in one
// operation. Requires a write transaction.
func (t *Txn) Truncate(name string) error {
	switch {
	case t.done:
		return ErrTxnDone
	case !t.writable:
		return ErrTxnReadOnly
	}
	if bytes.Equal([]byte(name), metaTable) {
		return fmt.Errorf("%w: %s", ErrNoTable, name)
	}
	if err := t.tx.DeleteBucket([]byte(name)); err != nil {
		return fmt.Errorf("%w: %s", ErrNoTable, name)
	}
	if _, err := t.tx.CreateBucket([]byte(name)); err != nil {
		return fmt.Errorf("kvstore: recreate table %s: %w", name, err)
	}
	return nil
}

// Size returns the store size in bytes as seen by this transaction.
func (t *Txn) Size() (int64, error) {
	if t.done {
		return 0, ErrTxnDone
	}
	return t.tx.Size(), nil
}
