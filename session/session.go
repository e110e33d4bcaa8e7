// Package session keeps the state of an interactive client of a Registry:
// the current table and the client's transaction on it.
package session

import (
	"errors"
	"fmt"

	"github.com/andreyvit/tabledb"
)

var (
	// ErrNoTable is returned by row operations when no table is in use.
	ErrNoTable = errors.New("no table")

	// ErrNoSuchTable is returned when the named table does not exist.
	ErrNoSuchTable = errors.New("not exists")
)

// UnsavedChangesError prevents switching away from a table with staged
// changes.
type UnsavedChangesError struct {
	Changes int
}

func (e *UnsavedChangesError) Error() string {
	return fmt.Sprintf("%d unsaved changes", e.Changes)
}

// State is not safe for concurrent use; each client gets its own.
type State struct {
	reg *tabledb.Registry
	tbl *tabledb.Table
	tx  *tabledb.Tx
}

func New(reg *tabledb.Registry) *State {
	return &State{reg: reg}
}

func (s *State) Registry() *tabledb.Registry {
	return s.reg
}

func (s *State) TableExists(name string) (bool, error) {
	tbl, err := s.reg.Table(name)
	return tbl != nil, err
}

// CreateTable creates a table from schema tokens like "int" and "String".
// It returns false if the table already exists.
func (s *State) CreateTable(name string, tokens []string) (bool, error) {
	schema, err := tabledb.ParseSchema(tokens)
	if err != nil {
		return false, err
	}
	tbl, err := s.reg.CreateTable(name, schema)
	return tbl != nil, err
}

// RemoveTable drops the named table; if it is the current one, no table is
// current afterwards.
func (s *State) RemoveTable(name string) error {
	exists, err := s.TableExists(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s %w", name, ErrNoSuchTable)
	}
	if s.tbl != nil && s.tbl.Name() == name {
		s.Reset()
	}
	return s.reg.RemoveTable(name)
}

// Use makes the named table current. It refuses to leave a table that has
// staged changes.
func (s *State) Use(name string) error {
	tbl, err := s.reg.Table(name)
	if err != nil {
		return err
	}
	if tbl == nil {
		return fmt.Errorf("%s %w", name, ErrNoSuchTable)
	}
	if tbl == s.tbl {
		return nil
	}
	if s.tx != nil {
		n, err := s.tx.ChangesCount()
		if err == nil && n > 0 {
			return &UnsavedChangesError{n}
		}
	}
	tx, err := tbl.Begin()
	if err != nil {
		return err
	}
	s.Reset()
	s.tbl, s.tx = tbl, tx
	return nil
}

// Reset discards the transaction on the current table, if any.
func (s *State) Reset() {
	if s.tx != nil {
		s.tx.Close()
	}
	s.tbl, s.tx = nil, nil
}

// CurrentTable returns the name of the current table, or "".
func (s *State) CurrentTable() string {
	if s.tbl == nil {
		return ""
	}
	return s.tbl.Name()
}

func (s *State) current() (*tabledb.Tx, error) {
	if s.tx == nil {
		return nil, ErrNoTable
	}
	return s.tx, nil
}

func (s *State) text(row tabledb.Row, ok bool, err error) (string, bool, error) {
	if err != nil || !ok {
		return "", false, err
	}
	text, err := s.reg.Serialize(s.tbl, row)
	return text, err == nil, err
}

// Get returns the text encoding of the row stored under key.
func (s *State) Get(key string) (string, bool, error) {
	tx, err := s.current()
	if err != nil {
		return "", false, err
	}
	return s.text(tx.Get(key))
}

// Put stages a row given in its text encoding and returns the text of the
// row it replaces.
func (s *State) Put(key, value string) (string, bool, error) {
	tx, err := s.current()
	if err != nil {
		return "", false, err
	}
	row, err := s.reg.Deserialize(s.tbl, value)
	if err != nil {
		return "", false, err
	}
	return s.text(tx.Put(key, row))
}

func (s *State) Remove(key string) (string, bool, error) {
	tx, err := s.current()
	if err != nil {
		return "", false, err
	}
	return s.text(tx.Remove(key))
}

func (s *State) Commit() (int, error) {
	tx, err := s.current()
	if err != nil {
		return 0, err
	}
	return tx.Commit()
}

func (s *State) Rollback() (int, error) {
	tx, err := s.current()
	if err != nil {
		return 0, err
	}
	return tx.Rollback()
}

func (s *State) Size() (int, error) {
	tx, err := s.current()
	if err != nil {
		return 0, err
	}
	return tx.Size()
}

func (s *State) ChangesCount() (int, error) {
	tx, err := s.current()
	if err != nil {
		return 0, err
	}
	return tx.ChangesCount()
}

// Dump renders the committed rows of the current table.
func (s *State) Dump() (string, error) {
	if s.tbl == nil {
		return "", ErrNoTable
	}
	return s.tbl.Dump(tabledb.DumpAll), nil
}
