package tabledb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

type Options struct {
	Logger  *slog.Logger
	Verbose bool

	// NoSync skips fdatasync after writes. Meant for tests.
	NoSync bool

	// Storage is used for tables created from now on; existing tables keep
	// the storage they were created with.
	Storage StorageKind

	// ChangeLog records every commit in per-table change log segments.
	ChangeLog bool

	// LockDir takes an exclusive lock on the root directory for the life of
	// the Registry, failing if another process holds it.
	LockDir bool
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

const lockFileName = ".lock"

var tableNameRe = regexp.MustCompile(`^[A-Za-zА-Яа-я0-9]+$`)

// ValidateTableName accepts one or more Latin or Cyrillic letters and digits.
func ValidateTableName(name string) error {
	if !tableNameRe.MatchString(name) {
		return fmt.Errorf("%w: invalid table name %q", ErrInvalid, name)
	}
	return nil
}

// Registry manages the tables stored in the subdirectories of one root
// directory.
type Registry struct {
	dir    string
	opt    Options
	logger *slog.Logger
	lock   *flock.Flock

	mu     sync.RWMutex
	tables map[string]*Table
	closed bool
}

// OpenRegistry opens every table under dir, creating dir if it does not
// exist.
func OpenRegistry(dir string, opt Options) (*Registry, error) {
	opt.setDefaults()
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: empty directory path", ErrInvalid)
	}

	fi, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return nil, ioErr(err)
		}
	} else if err != nil {
		return nil, ioErr(err)
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalid, dir)
	}

	reg := &Registry{
		dir:    dir,
		opt:    opt,
		logger: opt.Logger,
		tables: make(map[string]*Table),
	}

	if opt.LockDir {
		reg.lock = flock.New(filepath.Join(dir, lockFileName))
		locked, err := reg.lock.TryLock()
		if err != nil {
			return nil, ioErr(err)
		}
		if !locked {
			return nil, fmt.Errorf("%w: %s is locked by another process", ErrIllegalState, dir)
		}
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		reg.unlock()
		return nil, ioErr(err)
	}
	for _, ent := range ents {
		if !ent.IsDir() {
			continue
		}
		name := ent.Name()
		if ValidateTableName(name) != nil {
			reg.logger.LogAttrs(context.Background(), slog.LevelWarn, "tabledb: skipping directory with invalid table name", slog.String("dir", dir), slog.String("name", name))
			continue
		}
		t, err := openTable(filepath.Join(dir, name), &reg.opt)
		if err != nil {
			reg.Close()
			return nil, err
		}
		reg.tables[name] = t
	}
	reg.logger.LogAttrs(context.Background(), slog.LevelInfo, "tabledb: registry opened", slog.String("dir", dir), slog.Int("tables", len(reg.tables)))
	return reg, nil
}

func (reg *Registry) Dir() string {
	return reg.dir
}

func (reg *Registry) String() string {
	return "Registry[" + reg.dir + "]"
}

func (reg *Registry) closedErr() error {
	return fmt.Errorf("%w: registry %s is closed", ErrIllegalState, reg.dir)
}

// Table returns the named table, or nil if there is no such table. A table
// that has been closed is reopened from disk.
func (reg *Registry) Table(name string) (*Table, error) {
	if err := ValidateTableName(name); err != nil {
		return nil, err
	}

	reg.mu.RLock()
	if reg.closed {
		reg.mu.RUnlock()
		return nil, reg.closedErr()
	}
	t := reg.tables[name]
	reg.mu.RUnlock()
	if t == nil || !t.IsClosed() {
		return t, nil
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.closed {
		return nil, reg.closedErr()
	}
	return reg.reopen_locked(name)
}

func (reg *Registry) reopen_locked(name string) (*Table, error) {
	t := reg.tables[name]
	if t == nil || !t.IsClosed() {
		return t, nil
	}
	dir := filepath.Join(reg.dir, name)
	if !fileExists(dir) {
		delete(reg.tables, name)
		return nil, nil
	}
	t, err := openTable(dir, &reg.opt)
	if err != nil {
		return nil, err
	}
	reg.tables[name] = t
	reg.logger.LogAttrs(context.Background(), slog.LevelInfo, "tabledb: table reopened", slog.String("table", name))
	return t, nil
}

// CreateTable creates an empty table. It returns nil if a table with this
// name already exists. A closed table still on disk is reopened instead: its
// rows are kept and schema is only compared with the one on disk, never
// written, failing with ErrInvalid if they differ.
func (reg *Registry) CreateTable(name string, schema Schema) (*Table, error) {
	if err := ValidateTableName(name); err != nil {
		return nil, err
	}
	if schema.IsZero() {
		return nil, fmt.Errorf("%w: schema must have at least one column", ErrInvalid)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.closed {
		return nil, reg.closedErr()
	}

	if t := reg.tables[name]; t != nil {
		if !t.IsClosed() {
			return nil, nil
		}
		t, err := reg.reopen_locked(name)
		if err != nil {
			return nil, err
		}
		if t != nil {
			if !t.Schema().Equal(schema) {
				return nil, tableErrf(name, "", ErrInvalid, "exists with schema %v, wanted %v", t.Schema(), schema)
			}
			return t, nil
		}
	}

	dir := filepath.Join(reg.dir, name)
	if err := createTableDir(dir, schema, &reg.opt); err != nil {
		return nil, tableErrf(name, "", err, "cannot create")
	}
	t, err := openTable(dir, &reg.opt)
	if err != nil {
		return nil, err
	}
	reg.tables[name] = t
	reg.logger.LogAttrs(context.Background(), slog.LevelInfo, "tabledb: table created", slog.String("table", name), slog.String("schema", schema.String()), slog.String("storage", t.kind.String()))
	return t, nil
}

// RemoveTable closes the named table and deletes its directory. Handles to
// the table fail with ErrIllegalState afterwards.
func (reg *Registry) RemoveTable(name string) error {
	if err := ValidateTableName(name); err != nil {
		return err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.closed {
		return reg.closedErr()
	}
	t := reg.tables[name]
	if t == nil {
		return tableErrf(name, "", ErrIllegalState, "no such table")
	}

	closeErr := t.Close()
	delete(reg.tables, name)
	if err := os.RemoveAll(t.dir); err != nil {
		reg.logger.LogAttrs(context.Background(), slog.LevelError, "tabledb: removing table directory failed", slog.String("table", name), slog.Any("err", err))
		return tableErrf(name, "", ioErr(err), "cannot remove")
	}
	reg.logger.LogAttrs(context.Background(), slog.LevelInfo, "tabledb: table removed", slog.String("table", name))
	if closeErr != nil {
		return tableErrf(name, "", closeErr, "removed, but closing failed")
	}
	return nil
}

// TableNames returns the names of all known tables in sorted order.
func (reg *Registry) TableNames() ([]string, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if reg.closed {
		return nil, reg.closedErr()
	}
	return slices.Sorted(maps.Keys(reg.tables)), nil
}

func (reg *Registry) checkTable(t *Table) error {
	reg.mu.RLock()
	closed := reg.closed
	reg.mu.RUnlock()
	if closed {
		return reg.closedErr()
	}
	if t == nil {
		return fmt.Errorf("%w: nil table", ErrInvalid)
	}
	return nil
}

// Serialize returns the text encoding of row according to t's schema.
func (reg *Registry) Serialize(t *Table, row Row) (string, error) {
	if err := reg.checkTable(t); err != nil {
		return "", err
	}
	return EncodeRow(t.schema, row)
}

// Deserialize parses a row of t from its text encoding.
func (reg *Registry) Deserialize(t *Table, text string) (Row, error) {
	if err := reg.checkTable(t); err != nil {
		return Row{}, err
	}
	return DecodeRow(t.schema, text)
}

// NewRow creates a row for t holding values in its leading columns.
func (reg *Registry) NewRow(t *Table, values ...Value) (Row, error) {
	if err := reg.checkTable(t); err != nil {
		return Row{}, err
	}
	return t.schema.NewRow(values...)
}

// Close closes every table and releases the directory lock. Closing twice is
// a no-op.
func (reg *Registry) Close() error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.closed {
		return nil
	}
	reg.closed = true

	var errs []error
	for _, t := range reg.tables {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	reg.unlock()
	reg.logger.LogAttrs(context.Background(), slog.LevelInfo, "tabledb: registry closed", slog.String("dir", reg.dir))
	return errors.Join(errs...)
}

func (reg *Registry) unlock() {
	if reg.lock != nil {
		reg.lock.Unlock()
	}
}
