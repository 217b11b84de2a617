// Package duraq is an embedded, durable, at-least-once message queue.
//
// A Queue is backed by a single bbolt file and delivers SQS-style semantics
// without a server: monotonic message ids, a visibility-timeout lease on
// every delivery, a bounded retry budget with a dead-letter partition, and
// optional duplicate suppression — all applied atomically through the
// store's transactions.
//
// # Quick start
//
//	q, err := duraq.Open("orders.db", duraq.DefaultOptions())
//	if err != nil { ... }
//	defer q.Close()
//
//	ok, err := q.Send([]byte(`{"order":42}`), "")
//
//	msg, err := q.Receive()
//	if msg != nil {
//	    process(msg.Body)
//	    err = q.Ack(msg)
//	}
//
// Send returning false means the message was suppressed as a duplicate;
// Receive returning nil means nothing is currently deliverable. Neither is
// an error.
package duraq

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/arthurmilliken/duraq/internal/kvstore"
	"github.com/arthurmilliken/duraq/internal/queue"
)

// Re-export the core types so callers never import internal packages.
// Type aliases (=) mean duraq.Message IS queue.Message — no conversion.
type (
	Message = queue.Message
	Options = queue.Options
	Stats   = queue.Stats
)

// Sentinel errors surfaced by queue operations.
var (
	ErrKeySizeExceeded = kvstore.ErrKeySizeExceeded
	ErrTxnDone         = kvstore.ErrTxnDone
	ErrTxnReadOnly     = kvstore.ErrTxnReadOnly
	ErrPathInUse       = kvstore.ErrPathInUse
	ErrInvalidName     = queue.ErrInvalidName
	ErrEmptyDedupKey   = queue.ErrEmptyDedupKey
)

// DefaultOptions returns the production defaults.
func DefaultOptions() Options { return queue.DefaultOptions() }

// Queue owns one store handle and the engine over it.
type Queue struct {
	store *kvstore.Store
	eng   *queue.Engine
}

// Open opens (or creates) the queue's store at path. The path must not
// already be open in this process; Open fails with ErrPathInUse rather than
// invalidating the existing handle.
func Open(path string, opts Options) (*Queue, error) {
	store, err := kvstore.Open(path, queue.Tables()...)
	if err != nil {
		return nil, err
	}
	eng, err := queue.NewEngine(store, opts)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("duraq: open %s: %w", path, err)
	}
	return &Queue{store: store, eng: eng}, nil
}

// Close stops the background sweeper (if running) and releases the store.
func (q *Queue) Close() error {
	q.eng.StopSweeper()
	return q.store.Close()
}

// Send enqueues body. With dedup enabled, a repeat of an outstanding dedup
// key (dedupKey, or body when empty) is suppressed and Send returns false.
func (q *Queue) Send(body []byte, dedupKey string) (bool, error) {
	return q.eng.Send(body, dedupKey)
}

// Receive returns the next deliverable message under a fresh lease, or nil
// when nothing is currently eligible.
func (q *Queue) Receive() (*Message, error) { return q.eng.Receive() }

// Ack permanently removes a delivered message. Acking an id that is no
// longer stored is a no-op.
func (q *Queue) Ack(m *Message) error { return q.eng.Ack(m) }

// ReceiveDeadletter inspects the oldest dead-lettered message without
// mutating anything. Returns nil when the dead-letter partition is empty.
func (q *Queue) ReceiveDeadletter() (*Message, error) { return q.eng.ReceiveDeadletter() }

// ListDeadletters returns up to limit dead letters in original enqueue order.
func (q *Queue) ListDeadletters(limit int) ([]*Message, error) {
	return q.eng.ListDeadletters(limit)
}

// RedriveDeadletter moves a dead letter back into the live queue under a
// fresh id with its delivery history reset.
func (q *Queue) RedriveDeadletter(id int64) (*Message, error) {
	return q.eng.RedriveDeadletter(id)
}

// Purge removes every live message and clears the dedup index.
func (q *Queue) Purge() (int, error) { return q.eng.Purge() }

// PurgeDeadletter removes every dead-lettered message.
func (q *Queue) PurgeDeadletter() (int, error) { return q.eng.PurgeDeadletter() }

// SweepDeadMessages removes entries older than the retention window.
func (q *Queue) SweepDeadMessages() (int, error) { return q.eng.SweepDeadMessages() }

// StartSweeper runs SweepDeadMessages periodically in the background.
func (q *Queue) StartSweeper(interval time.Duration, logger *slog.Logger) {
	q.eng.StartSweeper(interval, logger)
}

// StopSweeper halts the background sweeper.
func (q *Queue) StopSweeper() { q.eng.StopSweeper() }

// Stats reports partition counts, operation tallies, and store size figures.
func (q *Queue) Stats() (Stats, error) { return q.eng.Stats() }
