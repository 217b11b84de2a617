// Package kvstore wraps bbolt behind the transactional key-value surface the
// queue engine is written against: a directory-backed store, named ordered
// keyspaces ("tables"), explicit read/write transactions with snapshot
// isolation, and ordered cursors.
//
// bbolt supplies the concurrency discipline — read transactions observe a
// stable snapshot and never block writers, and write transactions are
// serialized by the database itself — so callers layered on top of this
// package need no locking of their own.
//
// Open handles are tracked in a process-wide registry keyed by absolute path.
// Opening a path that already has a live handle fails with ErrPathInUse;
// a stale handle is never silently invalidated out from under its users.
package kvstore

import (
	"crypto/rand"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.etcd.io/bbolt"
)

// metaTable holds store-level records (identity, format markers).
// It is always present and is not visible through Txn.Table.
var metaTable = []byte("__meta__")

var storeIDKey = []byte("store_id")

// ─── open-handle registry ─────────────────────────────────────────────────────

var (
	openMu     sync.Mutex
	openStores = map[string]*Store{}
)

// ─── Store ────────────────────────────────────────────────────────────────────

// Store is a single-file bbolt database exposing named tables.
// A Store is safe for concurrent use; transaction serialization is handled
// by bbolt.
type Store struct {
	path string
	db   *bbolt.DB
	id   string
}

// Open opens (or creates) the store at path and ensures the named tables
// exist. Returns ErrPathInUse if this process already holds an open handle
// for the same path.
func Open(path string, tables ...string) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("kvstore: resolve %s: %w", path, err)
	}

	openMu.Lock()
	defer openMu.Unlock()
	if _, busy := openStores[abs]; busy {
		return nil, fmt.Errorf("%w: %s", ErrPathInUse, abs)
	}

	db, err := bbolt.Open(abs, 0o640, &bbolt.Options{Timeout: 0})
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", abs, err)
	}

	s := &Store{path: abs, db: db}
	if err := db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaTable)
		if err != nil {
			return err
		}
		if s.id, err = loadOrGenerateID(meta); err != nil {
			return err
		}
		for _, name := range tables {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create table %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kvstore: init %s: %w", abs, err)
	}

	openStores[abs] = s
	return s, nil
}

// Close releases the bbolt handle and frees the path for reopening.
// Close is idempotent.
func (s *Store) Close() error {
	openMu.Lock()
	if openStores[s.path] == s {
		delete(openStores, s.path)
	}
	openMu.Unlock()
	return s.db.Close()
}

// Path returns the absolute path of the backing file.
func (s *Store) Path() string { return s.path }

// ID returns the store's stable ULID, generated on first open and persisted
// in the meta table.
func (s *Store) ID() string { return s.id }

// Begin starts a transaction. Write transactions serialize against other
// writers; read transactions are immutable snapshots as of Begin.
// The caller must finish the transaction with Commit or Abort.
func (s *Store) Begin(writable bool) (*Txn, error) {
	tx, err := s.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("kvstore: begin: %w", err)
	}
	return &Txn{tx: tx, writable: writable}, nil
}

// Update runs fn inside a write transaction, committing on success and
// aborting (discarding all writes) if fn returns an error.
func (s *Store) Update(fn func(*Txn) error) error {
	txn, err := s.Begin(true)
	if err != nil {
		return err
	}
	if err := fn(txn); err != nil {
		_ = txn.Abort()
		return err
	}
	return txn.Commit()
}

// View runs fn inside a read-only snapshot transaction.
func (s *Store) View(fn func(*Txn) error) error {
	txn, err := s.Begin(false)
	if err != nil {
		return err
	}
	defer func() { _ = txn.Abort() }()
	return fn(txn)
}

// ─── store identity ───────────────────────────────────────────────────────────

// monoEntropy is shared across ID generations so ULIDs created within the
// same millisecond remain lexicographically ordered.
var (
	monoMu      sync.Mutex
	monoEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

func loadOrGenerateID(meta *bbolt.Bucket) (string, error) {
	if v := meta.Get(storeIDKey); v != nil {
		id, err := ulid.ParseStrict(string(v))
		if err != nil {
			return "", fmt.Errorf("persisted store id %q is invalid: %w", v, err)
		}
		return id.String(), nil
	}

	monoMu.Lock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), monoEntropy)
	monoMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("generate store id: %w", err)
	}
	if err := meta.Put(storeIDKey, []byte(id.String())); err != nil {
		return "", fmt.Errorf("persist store id: %w", err)
	}
	return id.String(), nil
}
