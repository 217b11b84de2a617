package kvstore

import "errors"

// ErrNotFound is returned when a key does not exist in a table.
var ErrNotFound = errors.New("kvstore: key not found")

// ErrKeySizeExceeded is returned when an encoded key is larger than
// MaxKeySize. It is always raised before any mutation takes place.
var ErrKeySizeExceeded = errors.New("kvstore: key exceeds maximum encoded size")

// ErrTxnDone is returned when an operation is attempted on a transaction
// that has already been committed or aborted.
var ErrTxnDone = errors.New("kvstore: transaction already committed or aborted")

// ErrTxnReadOnly is returned when a mutating call is made inside a read-only
// transaction.
var ErrTxnReadOnly = errors.New("kvstore: mutation inside read-only transaction")

// ErrPathInUse is returned by Open when another Store handle is already open
// for the same filesystem path in this process. The existing handle must be
// closed first; opening never silently invalidates prior users.
var ErrPathInUse = errors.New("kvstore: store already open for this path")

// ErrNoTable is returned when a named table does not exist in the store.
var ErrNoTable = errors.New("kvstore: no such table")
