package tabledb

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// Tx is the staged write lane of one caller over a Table. Reads see the
// table's committed rows overlaid with this Tx's own staged puts and deletes
// and nothing staged by any other Tx.
//
// A Tx belongs to a single caller and must not be used concurrently. It can
// be reused after Commit or Rollback; Close releases it.
type Tx struct {
	tbl     *Table
	puts    map[string]Row
	deletes map[string]struct{}
	closed  bool

	startTime time.Time
	stack     string
}

// Begin starts a new transaction. The table tracks it until Close.
func (t *Table) Begin() (*Tx, error) {
	if t.closed.Load() {
		return nil, t.closedErr()
	}
	tx := &Tx{
		tbl:       t,
		puts:      make(map[string]Row),
		deletes:   make(map[string]struct{}),
		startTime: time.Now(),
	}
	if t.opt.Verbose {
		tx.stack = string(debug.Stack())
	}
	t.addTx(tx)
	return tx, nil
}

func (tx *Tx) Table() *Table {
	return tx.tbl
}

// checkOpen fails if the Tx or its table is closed. A closed table has
// already dropped every staged lane, so the lane is discarded here too.
func (tx *Tx) checkOpen() error {
	if tx.closed {
		return tableErrf(tx.tbl.name, "", ErrIllegalState, "transaction is closed")
	}
	if tx.tbl.closed.Load() {
		tx.clear()
		return tx.tbl.closedErr()
	}
	return nil
}

func (tx *Tx) clear() {
	clear(tx.puts)
	clear(tx.deletes)
}

// Get returns the row stored under key as seen by this Tx.
func (tx *Tx) Get(key string) (Row, bool, error) {
	if err := tx.tbl.checkKey(key); err != nil {
		return Row{}, false, err
	}
	if err := tx.checkOpen(); err != nil {
		return Row{}, false, err
	}
	if row, ok := tx.puts[key]; ok {
		return row.Clone(), true, nil
	}
	if _, ok := tx.deletes[key]; ok {
		return Row{}, false, nil
	}
	row, ok := tx.tbl.committedRow(key)
	return row, ok, nil
}

// Put stages row under key and returns the row it replaces, as seen by this
// Tx. The row must fit the table's schema.
func (tx *Tx) Put(key string, row Row) (Row, bool, error) {
	if err := tx.tbl.checkKey(key); err != nil {
		return Row{}, false, err
	}
	if err := tx.checkOpen(); err != nil {
		return Row{}, false, err
	}
	if err := tx.tbl.schema.Validate(row); err != nil {
		return Row{}, false, tableErrf(tx.tbl.name, key, err, "")
	}
	row = row.rebind(tx.tbl.schema)

	old, inCommitted := tx.tbl.committedRow(key)
	if _, deleted := tx.deletes[key]; inCommitted && !deleted {
		tx.deletes[key] = struct{}{}
		tx.puts[key] = row
		return old, true, nil
	}
	prev, ok := tx.puts[key]
	tx.puts[key] = row
	return prev, ok, nil
}

// Remove stages the removal of key and returns the row it removes, as seen
// by this Tx.
func (tx *Tx) Remove(key string) (Row, bool, error) {
	if err := tx.tbl.checkKey(key); err != nil {
		return Row{}, false, err
	}
	if err := tx.checkOpen(); err != nil {
		return Row{}, false, err
	}
	old, inCommitted := tx.tbl.committedRow(key)
	if _, deleted := tx.deletes[key]; inCommitted && !deleted {
		tx.deletes[key] = struct{}{}
		delete(tx.puts, key)
		return old, true, nil
	}
	prev, ok := tx.puts[key]
	delete(tx.puts, key)
	return prev, ok, nil
}

// Size returns the number of rows this Tx sees. It first reconciles the lane
// with the current committed rows: deletes of keys that are no longer
// committed are dropped, puts equal to the committed row are dropped, and
// puts that change a committed row are marked as replacing it.
func (tx *Tx) Size() (int, error) {
	if err := tx.checkOpen(); err != nil {
		return 0, err
	}
	t := tx.tbl
	t.mu.RLock()
	defer t.mu.RUnlock()

	for k := range tx.deletes {
		if _, ok := t.committed[k]; !ok {
			delete(tx.deletes, k)
		}
	}
	for k, row := range tx.puts {
		cur, ok := t.committed[k]
		if !ok {
			continue
		}
		if cur.Equal(row) {
			delete(tx.puts, k)
			delete(tx.deletes, k)
		} else {
			tx.deletes[k] = struct{}{}
		}
	}
	return len(t.committed) + len(tx.puts) - len(tx.deletes), nil
}

// ChangesCount returns the number of rows Commit would change. A put that
// replaces a committed row counts once, and a put that restores the
// committed row does not count.
func (tx *Tx) ChangesCount() (int, error) {
	if err := tx.checkOpen(); err != nil {
		return 0, err
	}
	tx.tbl.mu.RLock()
	defer tx.tbl.mu.RUnlock()
	return tx.changesCount_locked(), nil
}

func (tx *Tx) changesCount_locked() int {
	n := len(tx.puts) + len(tx.deletes)
	for k, row := range tx.puts {
		if _, ok := tx.deletes[k]; !ok {
			continue
		}
		n--
		if cur, ok := tx.tbl.committed[k]; ok && cur.Equal(row) {
			n--
		}
	}
	return n
}

// Commit applies the staged deletes and then the staged puts to the
// committed rows, persists the result and clears the lane. It returns the
// number of changed rows.
//
// If persisting fails, the committed rows in memory already include the
// changes and are not reverted; the error wraps ErrIO.
func (tx *Tx) Commit() (int, error) {
	if err := tx.checkOpen(); err != nil {
		return 0, err
	}
	t := tx.tbl
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		tx.clear()
		return 0, t.closedErr()
	}

	n := tx.changesCount_locked()
	var rec *ChangeRecord
	if t.chlog != nil {
		rec = newChangeRecord(time.Now(), tx.changes())
	}
	for k := range tx.deletes {
		delete(t.committed, k)
	}
	for k, row := range tx.puts {
		t.committed[k] = row
	}
	tx.clear()
	t.commits.Add(1)

	if err := t.persist_locked(); err != nil {
		return n, err
	}
	if rec != nil {
		if err := t.appendChangeLog(rec); err != nil {
			return n, err
		}
	}
	if t.opt.Verbose {
		t.logger.LogAttrs(context.Background(), slog.LevelDebug, "tabledb: commit", slog.String("table", t.name), slog.Int("changes", n), slog.Int("rows", len(t.committed)))
	}
	return n, nil
}

// Rollback discards the lane and returns the number of changes it held.
func (tx *Tx) Rollback() (int, error) {
	if err := tx.checkOpen(); err != nil {
		return 0, err
	}
	tx.tbl.mu.RLock()
	n := tx.changesCount_locked()
	tx.tbl.mu.RUnlock()
	tx.clear()
	tx.tbl.rollbacks.Add(1)
	return n, nil
}

// Close discards the lane and stops tracking the Tx. Closing twice is a
// no-op.
func (tx *Tx) Close() {
	if tx.closed {
		return
	}
	tx.closed = true
	tx.clear()
	tx.tbl.removeTx(tx)
}
