package queue

import (
	"fmt"

	"github.com/arthurmilliken/duraq/internal/kvstore"
)

// deadletter.go — inspection and redrive of the dead-letter partition.
//
// Dead letters keep their full record (enqueued, received, numReceives) and
// are stored under the negation of their original id, so the partition reads
// back in original enqueue order by walking negated keys toward -∞.

// ReceiveDeadletter returns the oldest dead-lettered message, or (nil, nil)
// when the partition is empty. Unlike Receive it runs on a read snapshot and
// mutates nothing: no lease is taken, no fields change, and the entry stays
// stored until it is redriven, purged, or swept.
func (e *Engine) ReceiveDeadletter() (*Message, error) {
	var m *Message
	err := e.store.View(func(txn *kvstore.Txn) error {
		ms, err := openMessages(txn)
		if err != nil {
			return err
		}
		m, err = ms.firstDead()
		if isNotFound(err) {
			m = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListDeadletters returns up to limit dead-lettered messages in original
// enqueue order. limit <= 0 lists the whole partition.
func (e *Engine) ListDeadletters(limit int) ([]*Message, error) {
	var out []*Message
	err := e.store.View(func(txn *kvstore.Txn) error {
		ms, err := openMessages(txn)
		if err != nil {
			return err
		}
		return ms.scanDead(func(m *Message) (bool, error) {
			out = append(out, m)
			return limit <= 0 || len(out) < limit, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RedriveDeadletter moves one dead letter back into the live partition under
// a fresh id (the current live sequence continues; the old positive id is
// never reused). The delivery history is reset: numReceives and received
// return to zero while enqueued is preserved.
//
// id may be given as the original positive id or as the negated stored key.
func (e *Engine) RedriveDeadletter(id int64) (*Message, error) {
	if id == 0 {
		return nil, fmt.Errorf("queue: redrive: %w", kvstore.ErrNotFound)
	}
	deadID := id
	if deadID > 0 {
		deadID = -deadID
	}

	var m *Message
	err := e.update(func(txn *kvstore.Txn) error {
		ms, err := openMessages(txn)
		if err != nil {
			return err
		}
		m, err = ms.get(deadID)
		if err != nil {
			return fmt.Errorf("queue: redrive %d: %w", id, err)
		}
		if err := ms.delete(deadID); err != nil {
			return err
		}
		seq, err := openSequence(txn)
		if err != nil {
			return err
		}
		if m.ID, err = seq.next(ms); err != nil {
			return err
		}
		m.NumReceives = 0
		m.Received = 0
		if err := ms.put(m); err != nil {
			return err
		}
		txn.OnCommit(func() { e.counters.redriven.Add(1) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
