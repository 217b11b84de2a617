// Package queue implements an embedded at-least-once message queue on top of
// the kvstore transaction facade.
//
// All queue state lives in a single ordered keyspace keyed by a signed 64-bit
// message id: live messages occupy [1, ∞), dead-lettered messages are stored
// under the negation of their original id in (-∞, -1]. Because the key
// encoding is order-preserving, one cursor seek deterministically lands at
// the start of either partition and a scan never crosses into the other one
// by accident.
//
// Delivery follows the SQS visibility-timeout model: a received message is
// leased for a fixed window; if it is not acknowledged before the lease
// expires it becomes deliverable again, and once it has exhausted its
// delivery budget it is migrated to the dead-letter partition.
package queue

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrBadRecord is returned when a stored message fails to decode.
var ErrBadRecord = errors.New("queue: malformed message record")

// Message is one queue entry. Callers only ever observe copies; the engine
// owns every stored record.
type Message struct {
	// ID is the message's key in the store: positive while live, negated
	// once dead-lettered. Live ids are assigned monotonically and are never
	// reused, so insertion order and id order coincide (gaps permitted).
	ID int64 `json:"id"`

	// Enqueued is the creation timestamp in UTC milliseconds. Never mutated.
	Enqueued int64 `json:"enqueued"`

	// Received is the timestamp of the most recent delivery in UTC
	// milliseconds. Zero means the message has never been delivered.
	Received int64 `json:"received"`

	// NumReceives counts deliveries. Monotonically non-decreasing.
	NumReceives uint32 `json:"num_receives"`

	// Body is the opaque payload. Producers own the encoding.
	Body []byte `json:"body"`

	// DedupKey is the optional logical identity used for duplicate
	// suppression. When empty the body serves as the key.
	DedupKey string `json:"dedup_key,omitempty"`
}

// dedupKey returns the bytes used as this message's dedup index key.
func (m *Message) dedupKey() []byte {
	if m.DedupKey != "" {
		return []byte(m.DedupKey)
	}
	return m.Body
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	c.Body = append([]byte(nil), m.Body...)
	return &c
}

// ─── record encoding ──────────────────────────────────────────────────────────
//
// Messages are persisted as a compact versioned binary record:
//
//	[version    : 1 byte          ]
//	[enqueued   : 8 bytes, int64  ]
//	[received   : 8 bytes, int64  ]
//	[numRecv    : 4 bytes, uint32 ]
//	[dedupLen   : 2 bytes, uint16 ]
//	[dedupKey   : dedupLen bytes  ]
//	[body       : remaining bytes ]
//
// The id is not stored in the value — it is the record's key. A version bump
// is required for any layout change; old versions must remain decodable.

const recordVersion = 1

const recordHeaderLen = 1 + 8 + 8 + 4 + 2

func encodeMessage(m *Message) []byte {
	buf := make([]byte, recordHeaderLen+len(m.DedupKey)+len(m.Body))
	buf[0] = recordVersion
	binary.BigEndian.PutUint64(buf[1:9], uint64(m.Enqueued))
	binary.BigEndian.PutUint64(buf[9:17], uint64(m.Received))
	binary.BigEndian.PutUint32(buf[17:21], m.NumReceives)
	binary.BigEndian.PutUint16(buf[21:23], uint16(len(m.DedupKey)))
	n := copy(buf[recordHeaderLen:], m.DedupKey)
	copy(buf[recordHeaderLen+n:], m.Body)
	return buf
}

// decodeMessage parses a stored record. id is the record's store key.
// The returned message owns its memory; it does not alias val.
func decodeMessage(id int64, val []byte) (*Message, error) {
	if len(val) < recordHeaderLen {
		return nil, fmt.Errorf("%w: truncated (%d bytes)", ErrBadRecord, len(val))
	}
	if val[0] != recordVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadRecord, val[0])
	}
	dedupLen := int(binary.BigEndian.Uint16(val[21:23]))
	if recordHeaderLen+dedupLen > len(val) {
		return nil, fmt.Errorf("%w: dedup key overruns record", ErrBadRecord)
	}
	m := &Message{
		ID:          id,
		Enqueued:    int64(binary.BigEndian.Uint64(val[1:9])),
		Received:    int64(binary.BigEndian.Uint64(val[9:17])),
		NumReceives: binary.BigEndian.Uint32(val[17:21]),
		DedupKey:    string(val[recordHeaderLen : recordHeaderLen+dedupLen]),
		Body:        append([]byte(nil), val[recordHeaderLen+dedupLen:]...),
	}
	return m, nil
}
