package queue_test

import (
	"testing"
	"time"

	"github.com/arthurmilliken/duraq/internal/queue"
)

func TestEngine_PurgeClearsLiveAndDedup(t *testing.T) {
	opts := queue.DefaultOptions()
	opts.Dedup = true
	opts.VisibilityTimeoutSecs = 1
	opts.MaxReceives = 1
	eng := openEngine(t, opts)
	clk := installClock(t, eng)

	forceDeadletter(t, eng, clk, "dead")
	mustSend(t, eng, "live-1", "")
	mustSend(t, eng, "live-2", "")

	n, err := eng.Purge()
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 2 {
		t.Errorf("purged: want 2, got %d", n)
	}

	st, err := eng.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Live != 0 {
		t.Errorf("Live after purge: want 0, got %d", st.Live)
	}
	if st.DedupEntries != 0 {
		t.Errorf("DedupEntries after purge: want 0, got %d", st.DedupEntries)
	}
	// Dead letters are untouched by a live purge.
	if st.Deadletter != 1 {
		t.Errorf("Deadletter after purge: want 1, got %d", st.Deadletter)
	}

	// The cleared index accepts previously-outstanding keys again.
	mustSend(t, eng, "live-1", "")
}

func TestEngine_PurgeDeadletter(t *testing.T) {
	opts := queue.DefaultOptions()
	opts.Dedup = true
	opts.VisibilityTimeoutSecs = 1
	opts.MaxReceives = 1
	eng := openEngine(t, opts)
	clk := installClock(t, eng)

	forceDeadletter(t, eng, clk, "dead-1")
	forceDeadletter(t, eng, clk, "dead-2")
	mustSend(t, eng, "live", "")

	n, err := eng.PurgeDeadletter()
	if err != nil {
		t.Fatalf("PurgeDeadletter: %v", err)
	}
	if n != 2 {
		t.Errorf("purged: want 2, got %d", n)
	}

	st, err := eng.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Deadletter != 0 {
		t.Errorf("Deadletter: want 0, got %d", st.Deadletter)
	}
	if st.Live != 1 {
		t.Errorf("Live: want 1, got %d", st.Live)
	}
	// A purged dead letter is no longer an outstanding send; its dedup keys
	// are released while the live message's entry survives.
	if st.DedupEntries != 1 {
		t.Errorf("DedupEntries: want 1, got %d", st.DedupEntries)
	}
	mustSend(t, eng, "dead-1", "")
}

func TestEngine_SweepDeadMessages(t *testing.T) {
	opts := queue.DefaultOptions()
	opts.Dedup = true
	opts.VisibilityTimeoutSecs = 1
	opts.MaxReceives = 1
	opts.MaxRetentionHours = 1
	eng := openEngine(t, opts)
	clk := installClock(t, eng)

	forceDeadletter(t, eng, clk, "old")

	// Age the dead letter past retention, then add a fresh one.
	clk.advance(2 * time.Hour)
	forceDeadletter(t, eng, clk, "fresh")

	n, err := eng.SweepDeadMessages()
	if err != nil {
		t.Fatalf("SweepDeadMessages: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept: want 1, got %d", n)
	}

	dls, err := eng.ListDeadletters(0)
	if err != nil {
		t.Fatalf("ListDeadletters: %v", err)
	}
	if len(dls) != 1 || string(dls[0].Body) != "fresh" {
		t.Fatalf("surviving dead letters: %+v", dls)
	}

	// The swept message's dedup key was released with it.
	mustSend(t, eng, "old", "")
}

func TestEngine_SweepLiveMessages(t *testing.T) {
	opts := queue.DefaultOptions()
	opts.MaxRetentionHours = 1
	opts.SweepLive = true
	eng := openEngine(t, opts)
	clk := installClock(t, eng)

	mustSend(t, eng, "stale", "")
	clk.advance(2 * time.Hour)
	mustSend(t, eng, "recent", "")
	// A delivered (leased or retry-pending) message is never swept, however
	// old: the receive path owns its fate.
	leased := mustReceive(t, eng) // delivers "stale"... see assertion below
	if string(leased.Body) != "stale" {
		t.Fatalf("expected stale to deliver first, got %s", leased.Body)
	}

	n, err := eng.SweepDeadMessages()
	if err != nil {
		t.Fatalf("SweepDeadMessages: %v", err)
	}
	if n != 0 {
		t.Fatalf("swept: want 0 (stale is leased, recent is young), got %d", n)
	}

	// Ack the leased one, add a fresh stale never-delivered message.
	if err := eng.Ack(leased); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	mustSend(t, eng, "never-delivered", "")
	clk.advance(2 * time.Hour)

	n, err = eng.SweepDeadMessages()
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("swept: want 2 (recent and never-delivered aged out), got %d", n)
	}

	st, _ := eng.Stats()
	if st.Live != 0 {
		t.Errorf("Live after sweep: want 0, got %d", st.Live)
	}
}

func TestEngine_SweepKeepsLiveByDefault(t *testing.T) {
	opts := queue.DefaultOptions()
	opts.MaxRetentionHours = 1
	eng := openEngine(t, opts)
	clk := installClock(t, eng)

	mustSend(t, eng, "old-but-live", "")
	clk.advance(48 * time.Hour)

	n, err := eng.SweepDeadMessages()
	if err != nil {
		t.Fatalf("SweepDeadMessages: %v", err)
	}
	if n != 0 {
		t.Errorf("swept: want 0 with SweepLive off, got %d", n)
	}
	if m := mustReceive(t, eng); string(m.Body) != "old-but-live" {
		t.Errorf("message lost by sweep: got %s", m.Body)
	}
}

func TestEngine_SweeperStartStop(t *testing.T) {
	eng := openEngine(t, queue.DefaultOptions())

	eng.StartSweeper(10*time.Millisecond, nil)
	eng.StartSweeper(10*time.Millisecond, nil) // second start is a no-op
	time.Sleep(30 * time.Millisecond)
	eng.StopSweeper()
	eng.StopSweeper() // idempotent
}
