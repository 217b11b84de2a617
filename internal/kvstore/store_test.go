package kvstore_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/arthurmilliken/duraq/internal/kvstore"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

func openStore(t *testing.T, tables ...string) *kvstore.Store {
	t.Helper()
	s, err := kvstore.Open(filepath.Join(t.TempDir(), "test.db"), tables...)
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// ─── Store tests ─────────────────────────────────────────────────────────────

func TestOpen_PathInUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busy.db")

	s1, err := kvstore.Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}

	if _, err := kvstore.Open(path); !errors.Is(err, kvstore.ErrPathInUse) {
		t.Fatalf("second Open: want ErrPathInUse, got %v", err)
	}

	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s2, err := kvstore.Open(path)
	if err != nil {
		t.Fatalf("Open after Close: %v", err)
	}
	_ = s2.Close()
}

func TestStore_IdentityPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.db")

	s, err := kvstore.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id := s.ID()
	if len(id) != 26 {
		t.Fatalf("ID: want 26-char ULID, got %q", id)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = kvstore.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if s.ID() != id {
		t.Errorf("ID after reopen: want %s, got %s", id, s.ID())
	}
}

func TestTxn_Lifecycle(t *testing.T) {
	s := openStore(t, "tbl")

	txn, err := s.Begin(true)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	tbl, err := txn.Table("tbl")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if err := tbl.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Every call after Commit must fail with ErrTxnDone.
	if err := txn.Commit(); !errors.Is(err, kvstore.ErrTxnDone) {
		t.Errorf("double Commit: want ErrTxnDone, got %v", err)
	}
	if err := txn.Abort(); !errors.Is(err, kvstore.ErrTxnDone) {
		t.Errorf("Abort after Commit: want ErrTxnDone, got %v", err)
	}
	if _, err := txn.Table("tbl"); !errors.Is(err, kvstore.ErrTxnDone) {
		t.Errorf("Table after Commit: want ErrTxnDone, got %v", err)
	}
	if err := tbl.Put([]byte("k2"), []byte("v")); !errors.Is(err, kvstore.ErrTxnDone) {
		t.Errorf("Put after Commit: want ErrTxnDone, got %v", err)
	}
}

func TestTxn_AbortDiscardsWrites(t *testing.T) {
	s := openStore(t, "tbl")

	txn, err := s.Begin(true)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	tbl, _ := txn.Table("tbl")
	if err := tbl.Put([]byte("gone"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := txn.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	err = s.View(func(txn *kvstore.Txn) error {
		tbl, err := txn.Table("tbl")
		if err != nil {
			return err
		}
		if _, err := tbl.Get([]byte("gone")); !errors.Is(err, kvstore.ErrNotFound) {
			t.Errorf("Get after Abort: want ErrNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestTxn_OnCommit(t *testing.T) {
	s := openStore(t, "tbl")

	fired := 0

	txn, err := s.Begin(true)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	txn.OnCommit(func() { fired++ })
	if err := txn.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if fired != 0 {
		t.Errorf("callback fired on abort: %d", fired)
	}

	txn, err = s.Begin(true)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	txn.OnCommit(func() { fired++ })
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if fired != 1 {
		t.Errorf("callback after commit: want 1 firing, got %d", fired)
	}
}

func TestTxn_ReadOnlyViolation(t *testing.T) {
	s := openStore(t, "tbl")

	err := s.View(func(txn *kvstore.Txn) error {
		tbl, err := txn.Table("tbl")
		if err != nil {
			return err
		}
		if err := tbl.Put([]byte("k"), []byte("v")); !errors.Is(err, kvstore.ErrTxnReadOnly) {
			t.Errorf("Put in View: want ErrTxnReadOnly, got %v", err)
		}
		if err := tbl.Delete([]byte("k")); !errors.Is(err, kvstore.ErrTxnReadOnly) {
			t.Errorf("Delete in View: want ErrTxnReadOnly, got %v", err)
		}
		if err := txn.Truncate("tbl"); !errors.Is(err, kvstore.ErrTxnReadOnly) {
			t.Errorf("Truncate in View: want ErrTxnReadOnly, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	s := openStore(t, "tbl")

	boom := errors.New("boom")
	err := s.Update(func(txn *kvstore.Txn) error {
		tbl, err := txn.Table("tbl")
		if err != nil {
			return err
		}
		if err := tbl.Put([]byte("k"), []byte("v")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update: want boom, got %v", err)
	}

	_ = s.View(func(txn *kvstore.Txn) error {
		tbl, _ := txn.Table("tbl")
		if _, err := tbl.Get([]byte("k")); !errors.Is(err, kvstore.ErrNotFound) {
			t.Errorf("write survived rollback: %v", err)
		}
		return nil
	})
}

func TestTable_CRUDAndMissingTable(t *testing.T) {
	s := openStore(t, "tbl")

	err := s.Update(func(txn *kvstore.Txn) error {
		if _, err := txn.Table("nope"); !errors.Is(err, kvstore.ErrNoTable) {
			t.Errorf("Table(nope): want ErrNoTable, got %v", err)
		}
		tbl, err := txn.Table("tbl")
		if err != nil {
			return err
		}
		if err := tbl.Put([]byte("a"), []byte("1")); err != nil {
			return err
		}
		v, err := tbl.Get([]byte("a"))
		if err != nil {
			return err
		}
		if string(v) != "1" {
			t.Errorf("Get: want 1, got %s", v)
		}
		if err := tbl.Delete([]byte("a")); err != nil {
			return err
		}
		if _, err := tbl.Get([]byte("a")); !errors.Is(err, kvstore.ErrNotFound) {
			t.Errorf("Get after Delete: want ErrNotFound, got %v", err)
		}
		// Deleting an absent key is a no-op.
		return tbl.Delete([]byte("a"))
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestTable_KeySizeCeiling(t *testing.T) {
	s := openStore(t, "tbl")

	err := s.Update(func(txn *kvstore.Txn) error {
		tbl, err := txn.Table("tbl")
		if err != nil {
			return err
		}
		if err := tbl.Put(make([]byte, kvstore.MaxKeySize), []byte("v")); err != nil {
			t.Errorf("Put 511-byte key: %v", err)
		}
		if err := tbl.Put(make([]byte, kvstore.MaxKeySize+1), []byte("v")); !errors.Is(err, kvstore.ErrKeySizeExceeded) {
			t.Errorf("Put 512-byte key: want ErrKeySizeExceeded, got %v", err)
		}
		if err := tbl.Put(nil, []byte("v")); !errors.Is(err, kvstore.ErrKeySizeExceeded) {
			t.Errorf("Put empty key: want ErrKeySizeExceeded, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestTxn_Truncate(t *testing.T) {
	s := openStore(t, "tbl")

	err := s.Update(func(txn *kvstore.Txn) error {
		tbl, _ := txn.Table("tbl")
		for _, k := range []string{"a", "b", "c"} {
			if err := tbl.Put([]byte(k), []byte("v")); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = s.Update(func(txn *kvstore.Txn) error {
		if err := txn.Truncate("tbl"); err != nil {
			return err
		}
		tbl, err := txn.Table("tbl")
		if err != nil {
			return err
		}
		n, err := tbl.Count()
		if err != nil {
			return err
		}
		if n != 0 {
			t.Errorf("Count after Truncate: want 0, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Truncate: %v", err)
	}
}

func TestStore_Stats(t *testing.T) {
	s := openStore(t, "tbl")

	err := s.Update(func(txn *kvstore.Txn) error {
		tbl, _ := txn.Table("tbl")
		for _, k := range []string{"a", "b", "c"} {
			if err := tbl.Put([]byte(k), []byte("v")); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	st, err := s.Stats("tbl")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.StoreID != s.ID() {
		t.Errorf("StoreID: want %s, got %s", s.ID(), st.StoreID)
	}
	if st.PageSize <= 0 {
		t.Errorf("PageSize: want > 0, got %d", st.PageSize)
	}
	if st.SizeBytes <= 0 {
		t.Errorf("SizeBytes: want > 0, got %d", st.SizeBytes)
	}
	if st.PageCount != int(st.SizeBytes/int64(st.PageSize)) {
		t.Errorf("PageCount: want %d, got %d", st.SizeBytes/int64(st.PageSize), st.PageCount)
	}
	if st.TableEntries["tbl"] != 3 {
		t.Errorf("TableEntries: want 3, got %d", st.TableEntries["tbl"])
	}
}
