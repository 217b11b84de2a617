package queue

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arthurmilliken/duraq/internal/kvstore"
)

// ErrEmptyDedupKey is returned by Send when dedup is enabled and both the
// dedup key and the body are empty, leaving nothing to index.
var ErrEmptyDedupKey = errors.New("queue: dedup requires a non-empty dedup key or body")

// Engine orchestrates every queue operation as one atomic transaction
// against the message keyspace and (when dedup is enabled) the dedup index.
//
// The engine adds no locking of its own: the store serializes write
// transactions, so each mutating operation is atomic with respect to all
// others. Methods without a Txn suffix open, commit, and on failure abort
// their own write transaction; the Txn variants run inside a caller-owned
// transaction and never finish it.
type Engine struct {
	store *kvstore.Store
	opts  Options

	// now is the wall clock; overridden in tests.
	now func() time.Time

	counters counters

	sweeper sweeper
}

// counters are process-lifetime operation tallies, reported by Stats.
// Increments are registered as commit callbacks, so an operation performed
// inside a caller-owned transaction that is later aborted leaves no trace.
type counters struct {
	sends        atomic.Int64
	duplicates   atomic.Int64
	receives     atomic.Int64
	acks         atomic.Int64
	deadlettered atomic.Int64
	redriven     atomic.Int64
	swept        atomic.Int64
}

// NewEngine builds an Engine over an open store, creating the queue tables
// if they do not exist yet.
func NewEngine(store *kvstore.Store, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{store: store, opts: opts, now: time.Now}
	return e, nil
}

// Options returns the engine's effective (default-filled) options.
func (e *Engine) Options() Options { return e.opts }

// update runs fn in a fresh write transaction, committing on success and
// aborting before the error propagates otherwise.
func (e *Engine) update(fn func(*kvstore.Txn) error) error {
	txn, err := e.store.Begin(true)
	if err != nil {
		return err
	}
	if err := fn(txn); err != nil {
		_ = txn.Abort()
		return err
	}
	return txn.Commit()
}

func (e *Engine) nowMs() int64 { return e.now().UnixMilli() }

// ─── send ─────────────────────────────────────────────────────────────────────

// Send enqueues a new message and reports whether it was stored. When dedup
// is enabled and the dedup key (dedupKey, falling back to body) already has
// an outstanding send, nothing is written and Send returns false — a normal
// outcome, not an error.
func (e *Engine) Send(body []byte, dedupKey string) (bool, error) {
	var stored bool
	err := e.update(func(txn *kvstore.Txn) error {
		var err error
		stored, err = e.SendTxn(txn, body, dedupKey)
		return err
	})
	return stored, err
}

// SendTxn is Send running inside a caller-owned write transaction.
func (e *Engine) SendTxn(txn *kvstore.Txn, body []byte, dedupKey string) (bool, error) {
	m := &Message{
		Enqueued: e.nowMs(),
		Body:     body,
		DedupKey: dedupKey,
	}

	// The dedup key is size-capped before any write even when the index is
	// disabled: it is persisted inside the record, so an oversized key must
	// never reach the encoder.
	key := m.dedupKey()
	if e.opts.Dedup {
		if len(key) == 0 {
			return false, ErrEmptyDedupKey
		}
		if err := kvstore.CheckKeySize(key); err != nil {
			return false, err
		}
	} else if m.DedupKey != "" {
		if err := kvstore.CheckKeySize([]byte(m.DedupKey)); err != nil {
			return false, err
		}
	}

	ms, err := openMessages(txn)
	if err != nil {
		return false, err
	}

	var dd *dedupIndex
	if e.opts.Dedup {
		if dd, err = openDedup(txn); err != nil {
			return false, err
		}
		dup, err := dd.exists(key)
		if err != nil {
			return false, err
		}
		if dup {
			txn.OnCommit(func() { e.counters.duplicates.Add(1) })
			return false, nil
		}
	}

	seq, err := openSequence(txn)
	if err != nil {
		return false, err
	}
	if m.ID, err = seq.next(ms); err != nil {
		return false, err
	}
	if err := ms.put(m); err != nil {
		return false, err
	}
	if dd != nil {
		if err := dd.put(key, m.Enqueued); err != nil {
			return false, err
		}
	}
	txn.OnCommit(func() { e.counters.sends.Add(1) })
	return true, nil
}

// ─── receive ──────────────────────────────────────────────────────────────────

// leaseState classifies a live message against the visibility window.
//
//	available ──────────────► (selectable)
//	leased ─────────────────► (skip; lease still running)
//	expired, tries left ────► (selectable again)
//	expired, tries spent ───► (migrate to dead-letter partition)
type leaseState uint8

const (
	stateAvailable leaseState = iota
	stateLeased
	stateExpired
)

func (e *Engine) leaseStateOf(m *Message, nowMs int64) leaseState {
	if m.Received == 0 {
		return stateAvailable
	}
	if nowMs-m.Received <= e.opts.visibilityTimeout().Milliseconds() {
		return stateLeased
	}
	return stateExpired
}

// Receive returns the next eligible live message under a fresh lease, or
// (nil, nil) when nothing is currently deliverable.
//
// The live partition is scanned in ascending id order. Messages whose lease
// has expired after their final permitted delivery are migrated to the
// dead-letter partition as they are encountered; those migrations are
// committed even when the scan ends without a deliverable message.
//
// With RequireAck disabled the selected message (and its dedup entry) is
// deleted in the same transaction that delivers it.
func (e *Engine) Receive() (*Message, error) {
	var m *Message
	err := e.update(func(txn *kvstore.Txn) error {
		var err error
		m, err = e.ReceiveTxn(txn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ReceiveTxn is Receive running inside a caller-owned write transaction.
func (e *Engine) ReceiveTxn(txn *kvstore.Txn) (*Message, error) {
	ms, err := openMessages(txn)
	if err != nil {
		return nil, err
	}
	nowMs := e.nowMs()

	c := ms.tbl.Cursor()
	k, v := c.Seek(kvstore.Int64Key(1))
	for k != nil {
		id, ok := kvstore.DecodeInt64Key(k)
		if !ok || id < 1 {
			break
		}
		m, err := decodeMessage(id, v)
		if err != nil {
			return nil, err
		}

		switch e.leaseStateOf(m, nowMs) {
		case stateLeased:
			k, v = c.Next()
			continue

		case stateExpired:
			if int(m.NumReceives) >= e.opts.MaxReceives {
				if err := ms.moveToDead(m); err != nil {
					return nil, err
				}
				txn.OnCommit(func() { e.counters.deadlettered.Add(1) })
				// The table changed under the cursor; reposition past id.
				k, v = c.Seek(kvstore.Int64Key(id + 1))
				continue
			}
			// Lease expired with attempts remaining: deliver again.

		case stateAvailable:
		}

		return e.deliver(txn, ms, m, nowMs)
	}
	return nil, nil
}

// deliver stamps the lease fields on m and persists the delivery according
// to the ack contract.
func (e *Engine) deliver(txn *kvstore.Txn, ms *messageStore, m *Message, nowMs int64) (*Message, error) {
	m.NumReceives++
	m.Received = nowMs

	if e.opts.RequireAck {
		if err := ms.put(m); err != nil {
			return nil, err
		}
	} else {
		if err := ms.delete(m.ID); err != nil {
			return nil, err
		}
		if e.opts.Dedup {
			dd, err := openDedup(txn)
			if err != nil {
				return nil, err
			}
			if err := dd.delete(m.dedupKey()); err != nil {
				return nil, err
			}
		}
	}
	txn.OnCommit(func() { e.counters.receives.Add(1) })
	return m, nil
}

// ─── ack ──────────────────────────────────────────────────────────────────────

// Ack permanently removes a delivered message and its dedup entry.
//
// Ack is idempotent: acknowledging a message whose id is no longer stored
// (already acked, purged, or dead-lettered away) performs no mutation and
// returns nil.
func (e *Engine) Ack(m *Message) error {
	return e.update(func(txn *kvstore.Txn) error {
		return e.AckTxn(txn, m)
	})
}

// AckTxn is Ack running inside a caller-owned write transaction.
func (e *Engine) AckTxn(txn *kvstore.Txn, m *Message) error {
	if m == nil || m.ID <= 0 {
		return fmt.Errorf("queue: ack requires a live message id, got %d", idOf(m))
	}
	ms, err := openMessages(txn)
	if err != nil {
		return err
	}
	stored, err := ms.get(m.ID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := ms.delete(m.ID); err != nil {
		return err
	}
	if e.opts.Dedup {
		dd, err := openDedup(txn)
		if err != nil {
			return err
		}
		// Use the stored record's key: the caller's copy may be stale.
		if err := dd.delete(stored.dedupKey()); err != nil {
			return err
		}
	}
	txn.OnCommit(func() { e.counters.acks.Add(1) })
	return nil
}

func idOf(m *Message) int64 {
	if m == nil {
		return 0
	}
	return m.ID
}
