package queue

import "github.com/arthurmilliken/duraq/internal/kvstore"

// Stats is a point-in-time report over the queue and its backing store.
// Partition counts come from one read snapshot; the operation tallies are
// process-lifetime counters and reset when the engine is recreated.
type Stats struct {
	// Live is the number of messages in the live partition.
	Live int `json:"live"`

	// Deadletter is the number of messages in the dead-letter partition.
	Deadletter int `json:"deadletter"`

	// DedupEntries is the number of outstanding dedup index entries.
	DedupEntries int `json:"dedup_entries"`

	// Operation tallies since the engine was created.
	Sends                int64 `json:"sends"`
	DuplicatesSuppressed int64 `json:"duplicates_suppressed"`
	Receives             int64 `json:"receives"`
	Acks                 int64 `json:"acks"`
	Deadlettered         int64 `json:"deadlettered"`
	Redriven             int64 `json:"redriven"`
	Swept                int64 `json:"swept"`

	// Physical store figures.
	StoreID   string `json:"store_id"`
	PageSize  int    `json:"page_size"`
	PageCount int    `json:"page_count"`
	SizeBytes int64  `json:"size_bytes"`
}

// Stats gathers current statistics. The partition split is computed by
// scanning keys; entry totals per table come from the store.
func (e *Engine) Stats() (Stats, error) {
	st := Stats{
		Sends:                e.counters.sends.Load(),
		DuplicatesSuppressed: e.counters.duplicates.Load(),
		Receives:             e.counters.receives.Load(),
		Acks:                 e.counters.acks.Load(),
		Deadlettered:         e.counters.deadlettered.Load(),
		Redriven:             e.counters.redriven.Load(),
		Swept:                e.counters.swept.Load(),
	}

	err := e.store.View(func(txn *kvstore.Txn) error {
		ms, err := openMessages(txn)
		if err != nil {
			return err
		}
		total, err := ms.tbl.Count()
		if err != nil {
			return err
		}
		live, err := collectIDs(ms, func(id int64) bool { return id >= 1 })
		if err != nil {
			return err
		}
		st.Live = len(live)
		st.Deadletter = total - len(live)

		dd, err := openDedup(txn)
		if err != nil {
			return err
		}
		if st.DedupEntries, err = dd.tbl.Count(); err != nil {
			return err
		}

		size, err := txn.Size()
		if err != nil {
			return err
		}
		st.SizeBytes = size
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	storeStats, err := e.store.Stats()
	if err != nil {
		return Stats{}, err
	}
	st.StoreID = storeStats.StoreID
	st.PageSize = storeStats.PageSize
	if st.PageSize > 0 {
		st.PageCount = int(st.SizeBytes / int64(st.PageSize))
	}
	return st, nil
}
