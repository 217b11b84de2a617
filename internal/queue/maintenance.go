package queue

import (
	"log/slog"
	"sync"
	"time"

	"github.com/arthurmilliken/duraq/internal/kvstore"
)

// maintenance.go — bulk purge, retention sweep, and the background sweeper.

// sweepBatchSize bounds how many entries a single sweep transaction deletes,
// keeping the writer slot from being held across an unbounded scan.
const sweepBatchSize = 1024

// ─── purge ────────────────────────────────────────────────────────────────────

// Purge deletes every live message and clears the dedup index in one
// transaction. Dead letters are untouched. Returns the number of messages
// removed. An aborted purge leaves the prior state fully intact.
func (e *Engine) Purge() (int, error) {
	purged := 0
	err := e.update(func(txn *kvstore.Txn) error {
		ms, err := openMessages(txn)
		if err != nil {
			return err
		}
		ids, err := collectIDs(ms, func(id int64) bool { return id >= 1 })
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := ms.delete(id); err != nil {
				return err
			}
		}
		purged = len(ids)
		return txn.Truncate(dedupTable)
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

// PurgeDeadletter deletes every dead-lettered message, along with each one's
// dedup entry (a purged dead letter is no longer an outstanding send).
// Returns the number of messages removed.
func (e *Engine) PurgeDeadletter() (int, error) {
	purged := 0
	err := e.update(func(txn *kvstore.Txn) error {
		ms, err := openMessages(txn)
		if err != nil {
			return err
		}
		var dd *dedupIndex
		if e.opts.Dedup {
			if dd, err = openDedup(txn); err != nil {
				return err
			}
		}

		var doomed []*Message
		if err := ms.scanDead(func(m *Message) (bool, error) {
			doomed = append(doomed, m)
			return true, nil
		}); err != nil {
			return err
		}
		for _, m := range doomed {
			if err := ms.delete(m.ID); err != nil {
				return err
			}
			if dd != nil {
				if err := dd.delete(m.dedupKey()); err != nil {
					return err
				}
			}
		}
		purged = len(doomed)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

// ─── retention sweep ──────────────────────────────────────────────────────────

// SweepDeadMessages deletes dead letters whose last activity is older than
// MaxRetentionHours, together with their dedup entries. With SweepLive set it
// also removes live messages that aged out without ever being delivered.
//
// The sweep runs as a series of bounded write transactions so it never holds
// the writer slot across an unbounded scan; each committed batch stays
// deleted even if a later batch fails. Returns the total entries removed.
func (e *Engine) SweepDeadMessages() (int, error) {
	cutoff := e.nowMs() - e.opts.maxRetention().Milliseconds()
	total := 0
	for {
		n, err := e.sweepBatch(cutoff)
		total += n
		if err != nil {
			return total, err
		}
		if n < sweepBatchSize {
			return total, nil
		}
	}
}

// sweepBatch removes up to sweepBatchSize expired entries in one transaction.
func (e *Engine) sweepBatch(cutoff int64) (int, error) {
	swept := 0
	err := e.update(func(txn *kvstore.Txn) error {
		ms, err := openMessages(txn)
		if err != nil {
			return err
		}
		var dd *dedupIndex
		if e.opts.Dedup {
			if dd, err = openDedup(txn); err != nil {
				return err
			}
		}

		var doomed []*Message
		collect := func(m *Message) (bool, error) {
			if lastActivity(m) <= cutoff {
				doomed = append(doomed, m)
			}
			return len(doomed) < sweepBatchSize, nil
		}
		if err := ms.scanDead(collect); err != nil {
			return err
		}
		if e.opts.SweepLive && len(doomed) < sweepBatchSize {
			if err := scanStaleLive(ms, cutoff, collect); err != nil {
				return err
			}
		}

		for _, m := range doomed {
			if err := ms.delete(m.ID); err != nil {
				return err
			}
			if dd != nil {
				if err := dd.delete(m.dedupKey()); err != nil {
					return err
				}
			}
		}
		swept = len(doomed)
		n := int64(swept)
		txn.OnCommit(func() { e.counters.swept.Add(n) })
		return nil
	})
	return swept, err
}

// lastActivity is the timestamp a record is aged by: its most recent
// delivery, or the enqueue time if it was never delivered.
func lastActivity(m *Message) int64 {
	if m.Received > 0 {
		return m.Received
	}
	return m.Enqueued
}

// scanStaleLive walks live messages that were never delivered, in id order.
// Leased and retry-pending messages (received > 0) are left for the
// receive-path state machine to resolve.
func scanStaleLive(ms *messageStore, cutoff int64, fn func(*Message) (bool, error)) error {
	c := ms.tbl.Cursor()
	for k, v := c.Seek(kvstore.Int64Key(1)); k != nil; k, v = c.Next() {
		id, ok := kvstore.DecodeInt64Key(k)
		if !ok || id < 1 {
			return nil
		}
		m, err := decodeMessage(id, v)
		if err != nil {
			return err
		}
		if m.Received != 0 || m.Enqueued > cutoff {
			continue
		}
		cont, err := fn(m)
		if err != nil || !cont {
			return err
		}
	}
	return nil
}

// collectIDs gathers every message id matching keep.
func collectIDs(ms *messageStore, keep func(int64) bool) ([]int64, error) {
	var ids []int64
	c := ms.tbl.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		id, ok := kvstore.DecodeInt64Key(k)
		if !ok {
			continue
		}
		if keep(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ─── background sweeper ───────────────────────────────────────────────────────

type sweeper struct {
	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// StartSweeper runs SweepDeadMessages every interval on a background
// goroutine until StopSweeper is called. logger may be nil. Calling
// StartSweeper while a sweeper is already running is a no-op.
func (e *Engine) StartSweeper(interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	e.sweeper.mu.Lock()
	defer e.sweeper.mu.Unlock()
	if e.sweeper.stop != nil {
		return
	}
	stop := make(chan struct{})
	e.sweeper.stop = stop
	e.sweeper.wg.Add(1)
	go e.sweepLoop(stop, interval, logger)
}

// StopSweeper stops the background sweeper and waits for it to exit.
func (e *Engine) StopSweeper() {
	e.sweeper.mu.Lock()
	stop := e.sweeper.stop
	e.sweeper.stop = nil
	e.sweeper.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	e.sweeper.wg.Wait()
}

func (e *Engine) sweepLoop(stop <-chan struct{}, interval time.Duration, logger *slog.Logger) {
	defer e.sweeper.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := e.SweepDeadMessages()
			if logger == nil {
				continue
			}
			if err != nil {
				logger.Error("retention sweep failed", "queue", e.opts.Name, "err", err)
			} else if n > 0 {
				logger.Info("retention sweep", "queue", e.opts.Name, "removed", n)
			}
		}
	}
}
