package kvstore

// Stats reports physical storage figures for a store, taken from a single
// read snapshot so the numbers are mutually consistent.
type Stats struct {
	// StoreID is the store's persistent ULID.
	StoreID string

	// PageSize is the size of one database page in bytes.
	PageSize int

	// PageCount is the number of pages the store occupies, derived from the
	// total size. Includes freelist and meta pages.
	PageCount int

	// SizeBytes is the total on-disk size of the store.
	SizeBytes int64

	// TableEntries maps each requested table name to its entry count.
	TableEntries map[string]int
}

// Stats gathers storage statistics for the named tables.
func (s *Store) Stats(tables ...string) (Stats, error) {
	st := Stats{
		StoreID:      s.id,
		PageSize:     s.db.Info().PageSize,
		TableEntries: make(map[string]int, len(tables)),
	}
	err := s.View(func(txn *Txn) error {
		size, err := txn.Size()
		if err != nil {
			return err
		}
		st.SizeBytes = size
		if st.PageSize > 0 {
			st.PageCount = int(size / int64(st.PageSize))
		}
		for _, name := range tables {
			tbl, err := txn.Table(name)
			if err != nil {
				return err
			}
			n, err := tbl.Count()
			if err != nil {
				return err
			}
			st.TableEntries[name] = n
		}
		return nil
	})
	return st, err
}
