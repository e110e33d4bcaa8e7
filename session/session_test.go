package session_test

import (
	"errors"
	"testing"

	"github.com/andreyvit/tabledb"
	"github.com/andreyvit/tabledb/session"
)

func setup(t testing.TB) *session.State {
	t.Helper()
	reg, err := tabledb.OpenRegistry(t.TempDir(), tabledb.Options{NoSync: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })
	return session.New(reg)
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func TestState_NoTable(t *testing.T) {
	s := setup(t)
	if s.CurrentTable() != "" {
		t.Fatalf("CurrentTable = %q, wanted none", s.CurrentTable())
	}
	if _, _, err := s.Get("k"); !errors.Is(err, session.ErrNoTable) {
		t.Errorf("Get err = %v, wanted ErrNoTable", err)
	}
	if _, _, err := s.Put("k", "<row/>"); !errors.Is(err, session.ErrNoTable) {
		t.Errorf("Put err = %v, wanted ErrNoTable", err)
	}
	if _, err := s.Commit(); !errors.Is(err, session.ErrNoTable) {
		t.Errorf("Commit err = %v, wanted ErrNoTable", err)
	}
	if _, err := s.Size(); !errors.Is(err, session.ErrNoTable) {
		t.Errorf("Size err = %v, wanted ErrNoTable", err)
	}
	if err := s.Use("missing"); !errors.Is(err, session.ErrNoSuchTable) {
		t.Errorf("Use err = %v, wanted ErrNoSuchTable", err)
	}
	if err := s.RemoveTable("missing"); !errors.Is(err, session.ErrNoSuchTable) {
		t.Errorf("RemoveTable err = %v, wanted ErrNoSuchTable", err)
	}
}

func TestState_Workflow(t *testing.T) {
	s := setup(t)
	if !must(s.CreateTable("t", []string{"int", "String"})) {
		t.Fatalf("CreateTable = false, wanted true")
	}
	if must(s.CreateTable("t", []string{"int"})) {
		t.Fatalf("CreateTable(existing) = true, wanted false")
	}
	if !must(s.TableExists("t")) {
		t.Fatalf("TableExists = false")
	}
	if _, err := s.CreateTable("u", []string{"integer"}); !errors.Is(err, tabledb.ErrInvalid) {
		t.Errorf("CreateTable(bad type) err = %v, wanted ErrInvalid", err)
	}

	if err := s.Use("t"); err != nil {
		t.Fatal(err)
	}
	if s.CurrentTable() != "t" {
		t.Fatalf("CurrentTable = %q, wanted t", s.CurrentTable())
	}

	const v1 = "<row><col>1</col><col>a</col></row>"
	const v2 = "<row><col>2</col><null/></row>"
	old, ok, err := s.Put("k", v1)
	if err != nil || ok {
		t.Fatalf("Put = %q, %v, %v, wanted new", old, ok, err)
	}
	old, ok, err = s.Put("k", v2)
	if err != nil || !ok || old != v1 {
		t.Fatalf("Put = %q, %v, %v, wanted overwrite of %q", old, ok, err, v1)
	}
	if _, _, err := s.Put("k2", "<row><col>x</col><null/></row>"); !errors.Is(err, tabledb.ErrColumnFormat) {
		t.Errorf("Put(bad row) err = %v, wanted ErrColumnFormat", err)
	}
	if _, _, err := s.Put("k2", "<row>"); !errors.Is(err, tabledb.ErrDataFormat) {
		t.Errorf("Put(bad xml) err = %v, wanted ErrDataFormat", err)
	}

	if n := must(s.ChangesCount()); n != 1 {
		t.Errorf("ChangesCount = %d, wanted 1", n)
	}
	if n := must(s.Commit()); n != 1 {
		t.Errorf("Commit = %d, wanted 1", n)
	}
	val, ok, err := s.Get("k")
	if err != nil || !ok || val != v2 {
		t.Errorf("Get = %q, %v, %v, wanted %q", val, ok, err, v2)
	}
	val, ok, err = s.Remove("k")
	if err != nil || !ok || val != v2 {
		t.Errorf("Remove = %q, %v, %v, wanted %q", val, ok, err, v2)
	}
	if n := must(s.Size()); n != 0 {
		t.Errorf("Size = %d, wanted 0", n)
	}
	if n := must(s.Rollback()); n != 1 {
		t.Errorf("Rollback = %d, wanted 1", n)
	}
	if n := must(s.Size()); n != 1 {
		t.Errorf("Size = %d, wanted 1", n)
	}
}

func TestState_UseWithUnsavedChanges(t *testing.T) {
	s := setup(t)
	must(s.CreateTable("a", []string{"int"}))
	must(s.CreateTable("b", []string{"int"}))
	if err := s.Use("a"); err != nil {
		t.Fatal(err)
	}
	must2(s.Put("k", "<row><col>1</col></row>"))
	must2(s.Put("j", "<row><col>2</col></row>"))

	var uce *session.UnsavedChangesError
	err := s.Use("b")
	if !errors.As(err, &uce) || uce.Changes != 2 || err.Error() != "2 unsaved changes" {
		t.Fatalf("Use err = %v, wanted 2 unsaved changes", err)
	}
	if s.CurrentTable() != "a" {
		t.Fatalf("CurrentTable = %q, wanted a", s.CurrentTable())
	}
	if err := s.Use("a"); err != nil {
		t.Errorf("Use(current) err = %v, wanted nil", err)
	}

	must(s.Commit())
	if err := s.Use("b"); err != nil {
		t.Fatal(err)
	}
	if s.CurrentTable() != "b" {
		t.Fatalf("CurrentTable = %q, wanted b", s.CurrentTable())
	}
}

func TestState_DropCurrent(t *testing.T) {
	s := setup(t)
	must(s.CreateTable("a", []string{"int"}))
	if err := s.Use("a"); err != nil {
		t.Fatal(err)
	}
	must2(s.Put("k", "<row><col>1</col></row>"))
	if err := s.RemoveTable("a"); err != nil {
		t.Fatal(err)
	}
	if s.CurrentTable() != "" {
		t.Errorf("CurrentTable = %q after drop, wanted none", s.CurrentTable())
	}
	if must(s.TableExists("a")) {
		t.Errorf("TableExists = true after drop")
	}
}

func must2[T1, T2 any](v1 T1, v2 T2, err error) (T1, T2) {
	if err != nil {
		panic(err)
	}
	return v1, v2
}
