package duraq_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/arthurmilliken/duraq"
)

func TestQueue_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.db")

	q, err := duraq.Open(path, duraq.DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	stored, err := q.Send([]byte(`{"order":42}`), "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !stored {
		t.Fatal("Send: want stored")
	}

	m, err := q.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if m == nil || !bytes.Equal(m.Body, []byte(`{"order":42}`)) {
		t.Fatalf("Receive: got %+v", m)
	}
	if err := q.Ack(m); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	m, err = q.Receive()
	if err != nil {
		t.Fatalf("Receive after Ack: %v", err)
	}
	if m != nil {
		t.Fatalf("Receive after Ack: want empty queue, got %+v", m)
	}
}

func TestOpen_PathInUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.db")

	q, err := duraq.Open(path, duraq.DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	if _, err := duraq.Open(path, duraq.DefaultOptions()); !errors.Is(err, duraq.ErrPathInUse) {
		t.Fatalf("second Open: want ErrPathInUse, got %v", err)
	}
}

func TestOpen_RejectsBadOptions(t *testing.T) {
	opts := duraq.DefaultOptions()
	opts.Name = "Bad Name!"

	path := filepath.Join(t.TempDir(), "q.db")
	if _, err := duraq.Open(path, opts); !errors.Is(err, duraq.ErrInvalidName) {
		t.Fatalf("Open: want ErrInvalidName, got %v", err)
	}

	// The failed open released the path.
	q, err := duraq.Open(path, duraq.DefaultOptions())
	if err != nil {
		t.Fatalf("reopen after failed Open: %v", err)
	}
	_ = q.Close()
}

func TestQueue_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.db")

	q, err := duraq.Open(path, duraq.DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := q.Send([]byte("persist me"), ""); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	q, err = duraq.Open(path, duraq.DefaultOptions())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	m, err := q.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if m == nil || string(m.Body) != "persist me" {
		t.Fatalf("message lost across reopen: %+v", m)
	}
}
