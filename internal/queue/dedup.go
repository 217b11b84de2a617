package queue

import (
	"encoding/binary"

	"github.com/arthurmilliken/duraq/internal/kvstore"
)

// dedupIndex maps a dedup key to the enqueue timestamp (UTC ms) of its
// outstanding send. Entries never expire on their own; the engine removes
// them on ack, auto-ack receive, purge, and retention sweep.
type dedupIndex struct {
	tbl *kvstore.Table
}

func openDedup(txn *kvstore.Txn) (*dedupIndex, error) {
	tbl, err := txn.Table(dedupTable)
	if err != nil {
		return nil, err
	}
	return &dedupIndex{tbl: tbl}, nil
}

func (d *dedupIndex) exists(key []byte) (bool, error) {
	_, err := d.tbl.Get(key)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *dedupIndex) put(key []byte, enqueuedMs int64) error {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], uint64(enqueuedMs))
	return d.tbl.Put(key, v[:])
}

func (d *dedupIndex) delete(key []byte) error {
	return d.tbl.Delete(key)
}
