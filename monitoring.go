package tabledb

type TableStats struct {
	Rows       int
	OpenTxns   int
	Commits    uint64
	Rollbacks  uint64
	SavedBytes int64 // size reported by the last successful persist
}

func (t *Table) Stats() TableStats {
	t.mu.RLock()
	rows := len(t.committed)
	t.mu.RUnlock()

	t.txnsLock.Lock()
	txns := len(t.txns)
	t.txnsLock.Unlock()

	return TableStats{
		Rows:       rows,
		OpenTxns:   txns,
		Commits:    t.commits.Load(),
		Rollbacks:  t.rollbacks.Load(),
		SavedBytes: t.savedBytes.Load(),
	}
}
