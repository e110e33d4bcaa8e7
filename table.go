package tabledb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/andreyvit/tabledb/changelog"
)

// Table is a named, schema-typed key→row collection backed by a directory.
// Writes go through a Tx; the committed rows are shared by all of them.
//
// A closed Table fails every operation with ErrIllegalState.
type Table struct {
	name   string
	dir    string
	schema Schema
	opt    *Options
	logger *slog.Logger
	kind   StorageKind
	store  storage
	chlog  *changelog.Log

	// mu guards committed and the durable write of Commit.
	mu        sync.RWMutex
	committed map[string]Row
	closed    atomic.Bool

	txns     []*Tx
	txnsLock sync.Mutex

	commits    atomic.Uint64
	rollbacks  atomic.Uint64
	savedBytes atomic.Int64
}

// openTable loads the table stored in dir. Storage is picked by the files
// present; a directory with no row file yet uses opt.Storage.
func openTable(dir string, opt *Options) (*Table, error) {
	name := filepath.Base(dir)
	schema, err := readSchemaFile(filepath.Join(dir, schemaFileName))
	if err != nil {
		return nil, tableErrf(name, "", err, "cannot load schema")
	}

	kind := opt.Storage
	if fileExists(filepath.Join(dir, boltFileName)) {
		kind = BoltStorage
	} else if fileExists(filepath.Join(dir, containerFileName)) {
		kind = FileStorage
	}
	store, err := openStorage(kind, dir, opt)
	if err != nil {
		return nil, tableErrf(name, "", err, "cannot open %v storage", kind)
	}

	t := &Table{
		name:      name,
		dir:       dir,
		schema:    schema,
		opt:       opt,
		logger:    opt.Logger,
		kind:      kind,
		store:     store,
		committed: make(map[string]Row),
	}
	if err := t.load(); err != nil {
		store.Close()
		return nil, err
	}
	if opt.ChangeLog {
		t.chlog, err = changelog.Open(dir, t.changeLogOptions())
		if err != nil {
			store.Close()
			return nil, tableErrf(name, "", ioErr(err), "cannot open change log")
		}
	}
	return t, nil
}

// createTableDir lays out a new, empty table in dir.
func createTableDir(dir string, schema Schema, opt *Options) error {
	if err := os.Mkdir(dir, 0o777); err != nil && !errors.Is(err, fs.ErrExist) {
		return ioErr(err)
	}
	for _, fn := range storageFileNames {
		if err := os.Remove(filepath.Join(dir, fn)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ioErr(err)
		}
	}
	return writeSchemaFile(filepath.Join(dir, schemaFileName), schema, opt.NoSync)
}

func (t *Table) load() error {
	raw, err := t.store.Load()
	if err != nil {
		return tableErrf(t.name, "", err, "cannot load rows")
	}
	for k, text := range raw {
		row, err := DecodeRow(t.schema, text)
		if err != nil {
			return tableErrf(t.name, k, err, "cannot decode row")
		}
		t.committed[k] = row
	}
	return nil
}

func (t *Table) persist_locked() error {
	raw := make(map[string]string, len(t.committed))
	for k, row := range t.committed {
		text, err := EncodeRow(t.schema, row)
		if err != nil {
			return tableErrf(t.name, k, err, "cannot encode row")
		}
		raw[k] = text
	}
	n, err := t.store.Save(raw)
	if err != nil {
		t.logger.LogAttrs(context.Background(), slog.LevelError, "tabledb: persisting commit failed", slog.String("table", t.name), slog.String("dir", t.dir), slog.Any("err", err))
		return tableErrf(t.name, "", err, "commit not persisted")
	}
	t.savedBytes.Store(n)
	return nil
}

func (t *Table) committedRow(key string) (Row, bool) {
	t.mu.RLock()
	row, ok := t.committed[key]
	t.mu.RUnlock()
	if !ok {
		return Row{}, false
	}
	return row.Clone(), true
}

func (t *Table) Name() string {
	return t.name
}

func (t *Table) Dir() string {
	return t.dir
}

func (t *Table) Schema() Schema {
	return t.schema
}

func (t *Table) ColumnCount() int {
	return t.schema.Len()
}

// ColumnType returns the type of column i, failing with ErrOutOfRange for
// an index outside of the schema.
func (t *Table) ColumnType(i int) (ColumnType, error) {
	if i < 0 || i >= t.schema.Len() {
		return invalidType, tableErrf(t.name, "", ErrOutOfRange, "column %d not in [0, %d)", i, t.schema.Len())
	}
	return t.schema.Type(i), nil
}

func (t *Table) StorageKind() StorageKind {
	return t.kind
}

func (t *Table) IsClosed() bool {
	return t.closed.Load()
}

func (t *Table) String() string {
	return t.name + t.schema.String()
}

func (t *Table) closedErr() error {
	return tableErrf(t.name, "", ErrIllegalState, "table is closed")
}

func (t *Table) checkKey(key string) error {
	if err := validateKey(key); err != nil {
		return tableErrf(t.name, key, err, "")
	}
	return nil
}

// validateKey accepts non-empty UTF-8 keys without whitespace or NUL bytes.
func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty key", ErrInvalid)
	}
	if len(key) > maxContainerKeyLen {
		return fmt.Errorf("%w: key longer than %d bytes", ErrInvalid, maxContainerKeyLen)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: key is not valid UTF-8", ErrInvalid)
	}
	if strings.IndexFunc(key, func(r rune) bool { return r == 0 || unicode.IsSpace(r) }) >= 0 {
		return fmt.Errorf("%w: key contains whitespace or NUL", ErrInvalid)
	}
	return nil
}

// Close drops every staged lane and closes the table. Closing twice is a
// no-op. Tx handles still held fail with ErrIllegalState from now on.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.txnsLock.Lock()
	dropped := len(t.txns)
	t.txns = nil
	t.txnsLock.Unlock()

	err := t.store.Close()
	if t.chlog != nil {
		err = errors.Join(err, ioErr(t.chlog.Close()))
	}
	t.logger.LogAttrs(context.Background(), slog.LevelDebug, "tabledb: table closed", slog.String("table", t.name), slog.Int("txns", dropped))
	return err
}

func (t *Table) addTx(tx *Tx) {
	t.txnsLock.Lock()
	defer t.txnsLock.Unlock()
	t.txns = append(t.txns, tx)
}

func (t *Table) removeTx(tx *Tx) {
	t.txnsLock.Lock()
	defer t.txnsLock.Unlock()

	found := slices.Index(t.txns, tx)
	if found < 0 {
		return // table closed in the meantime
	}
	n := len(t.txns)
	t.txns[found] = t.txns[n-1]
	t.txns[n-1] = nil
	t.txns = t.txns[:n-1]
}

// DescribeOpenTxns lists the transactions that have not been closed yet,
// oldest first. With Options.Verbose, it includes the stack that began each
// one that has been open for a while.
func (t *Table) DescribeOpenTxns() string {
	t.txnsLock.Lock()
	txns := slices.Clone(t.txns)
	t.txnsLock.Unlock()

	if len(txns) == 0 {
		return "NO OPEN TRANSACTIONS"
	}

	slices.SortFunc(txns, func(a, b *Tx) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN TRANSACTIONS ON %s:\n", len(txns), t.name)
	for _, tx := range txns {
		ms := now.Sub(tx.startTime).Milliseconds()
		if ms < 100 || tx.stack == "" {
			fmt.Fprintf(&buf, "\n---\nopen for %d ms\n", ms)
		} else {
			fmt.Fprintf(&buf, "\n---\nopen for %d ms:\n%s", ms, tx.stack)
		}
	}
	return buf.String()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
