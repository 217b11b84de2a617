package queue

import (
	"errors"
	"fmt"

	"github.com/arthurmilliken/duraq/internal/kvstore"
)

// Table names within the backing store. Tables returns them so callers can
// pass the full set to kvstore.Open.
const (
	msgTable   = "messages"
	dedupTable = "dedup"
	metaTable  = "queue_meta"
)

// Tables lists the keyspaces the queue engine requires.
func Tables() []string { return []string{msgTable, dedupTable, metaTable} }

// messageStore provides typed access to the message keyspace within one
// transaction. The zero id is never assigned, so the negation of a live id
// is always a distinct dead-letter key.
type messageStore struct {
	tbl *kvstore.Table
}

func openMessages(txn *kvstore.Txn) (*messageStore, error) {
	tbl, err := txn.Table(msgTable)
	if err != nil {
		return nil, err
	}
	return &messageStore{tbl: tbl}, nil
}

func (s *messageStore) get(id int64) (*Message, error) {
	v, err := s.tbl.Get(kvstore.Int64Key(id))
	if err != nil {
		return nil, err
	}
	return decodeMessage(id, v)
}

func (s *messageStore) put(m *Message) error {
	return s.tbl.Put(kvstore.Int64Key(m.ID), encodeMessage(m))
}

func (s *messageStore) delete(id int64) error {
	return s.tbl.Delete(kvstore.Int64Key(id))
}

// lastLiveID returns the highest live id, or ok=false if the live partition
// is empty. The highest key overall is the highest live id whenever any live
// message exists, because dead-letter keys are all negative.
func (s *messageStore) lastLiveID() (int64, bool) {
	c := s.tbl.Cursor()
	k, _ := c.Last()
	id, ok := kvstore.DecodeInt64Key(k)
	return id, ok && id >= 1
}

// firstDead returns the oldest dead-lettered message, i.e. the one with the
// lowest original id. In the negated key space that is the entry closest to
// zero, found by seeking to key 0 and stepping backward once.
func (s *messageStore) firstDead() (*Message, error) {
	c := s.tbl.Cursor()
	k, v := c.Seek(kvstore.Int64Key(0))
	if k == nil {
		k, v = c.Last()
	} else {
		k, v = c.Prev()
	}
	id, ok := kvstore.DecodeInt64Key(k)
	if !ok || id >= 0 {
		return nil, kvstore.ErrNotFound
	}
	return decodeMessage(id, v)
}

// scanDead walks the dead-letter partition in original enqueue order
// (lowest original id first) until fn returns false or an error.
func (s *messageStore) scanDead(fn func(m *Message) (bool, error)) error {
	c := s.tbl.Cursor()
	k, v := c.Seek(kvstore.Int64Key(0))
	if k == nil {
		k, v = c.Last()
	} else {
		k, v = c.Prev()
	}
	for k != nil {
		id, ok := kvstore.DecodeInt64Key(k)
		if !ok || id >= 0 {
			return nil
		}
		m, err := decodeMessage(id, v)
		if err != nil {
			return err
		}
		cont, err := fn(m)
		if err != nil || !cont {
			return err
		}
		k, v = c.Prev()
	}
	return nil
}

// highestAssignedID derives the largest id ever handed out that is still
// observable in the store: the highest live id, or the original id of the
// newest dead letter (the most negative stored key), whichever is larger.
// Used only to recover the sequence when its record is missing.
func (s *messageStore) highestAssignedID() int64 {
	var high int64
	if last, ok := s.lastLiveID(); ok {
		high = last
	}
	c := s.tbl.Cursor()
	if k, _ := c.First(); k != nil {
		if id, ok := kvstore.DecodeInt64Key(k); ok && id < 0 && -id > high {
			high = -id
		}
	}
	return high
}

// moveToDead re-inserts m under the negation of its id and removes the live
// record, preserving every other field.
func (s *messageStore) moveToDead(m *Message) error {
	if m.ID <= 0 {
		return fmt.Errorf("queue: message %d is not live", m.ID)
	}
	if err := s.delete(m.ID); err != nil {
		return err
	}
	dead := m.Clone()
	dead.ID = -m.ID
	return s.put(dead)
}

// isNotFound reports whether err is the store's missing-key error.
func isNotFound(err error) bool {
	return errors.Is(err, kvstore.ErrNotFound)
}

// sequence is the queue's persistent id allocator. Keeping the last assigned
// id in its own record (rather than deriving it from lastLiveID) guarantees
// ids are never reused after deletion: a fully drained queue must not hand
// out an id whose negation is still occupied by a dead letter, and an acked
// id must stay dead forever.
type sequence struct {
	tbl *kvstore.Table
}

var seqKey = []byte("last_id")

func openSequence(txn *kvstore.Txn) (*sequence, error) {
	tbl, err := txn.Table(metaTable)
	if err != nil {
		return nil, err
	}
	return &sequence{tbl: tbl}, nil
}

// next allocates and persists the following id. When the sequence record is
// absent (first use, or a store written before the record existed) it is
// recovered from the highest id observable in the message store.
func (s *sequence) next(ms *messageStore) (int64, error) {
	var last int64
	v, err := s.tbl.Get(seqKey)
	switch {
	case isNotFound(err):
		last = ms.highestAssignedID()
	case err != nil:
		return 0, err
	default:
		id, ok := kvstore.DecodeInt64Key(v)
		if !ok {
			return 0, fmt.Errorf("queue: malformed sequence record")
		}
		last = id
	}
	id := last + 1
	if err := s.tbl.Put(seqKey, kvstore.Int64Key(id)); err != nil {
		return 0, err
	}
	return id, nil
}
