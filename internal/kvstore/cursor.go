package kvstore

import "go.etcd.io/bbolt"

// Cursor walks a table in key order. All methods return a nil key when the
// cursor has moved past either end of the table.
//
// A cursor is bound to the transaction it was created in. If the table is
// mutated while iterating, the cursor must be repositioned with Seek before
// stepping further.
type Cursor struct {
	txn *Txn
	c   *bbolt.Cursor
}

// First positions the cursor at the lowest key.
func (c *Cursor) First() (key, value []byte) {
	if c.txn.done {
		return nil, nil
	}
	return c.c.First()
}

// Last positions the cursor at the highest key.
func (c *Cursor) Last() (key, value []byte) {
	if c.txn.done {
		return nil, nil
	}
	return c.c.Last()
}

// Seek positions the cursor at the first key ≥ target.
func (c *Cursor) Seek(target []byte) (key, value []byte) {
	if c.txn.done {
		return nil, nil
	}
	return c.c.Seek(target)
}

// Next steps to the following key.
func (c *Cursor) Next() (key, value []byte) {
	if c.txn.done {
		return nil, nil
	}
	return c.c.Next()
}

// Prev steps to the preceding key.
func (c *Cursor) Prev() (key, value []byte) {
	if c.txn.done {
		return nil, nil
	}
	return c.c.Prev()
}
