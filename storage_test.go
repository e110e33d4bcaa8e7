package tabledb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func useBolt(o *Options) { o.Storage = BoltStorage }

func TestBoltStorage_Table(t *testing.T) {
	dir := t.TempDir()
	reg := setupIn(t, dir, useBolt)
	tbl := must(reg.CreateTable("t", kvSchema))
	if tbl.StorageKind() != BoltStorage {
		t.Fatalf("StorageKind = %v, wanted bolt", tbl.StorageKind())
	}

	tx := begin(t, tbl)
	must2(tx.Put("a", kvRow(1, "x")))
	must2(tx.Put("b", kvRow(2, "y")))
	must(tx.Commit())
	must2(tx.Remove("a"))
	must(tx.Commit())
	ensureNoErr(t, reg.Close())

	if _, err := os.Stat(filepath.Join(dir, "t", boltFileName)); err != nil {
		t.Fatalf("%s missing: %v", boltFileName, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "t", containerFileName)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("%s exists for a bolt table: %v", containerFileName, err)
	}

	// storage is detected from the files, not from the options
	reg = setupIn(t, dir)
	tbl = must(reg.Table("t"))
	if tbl.StorageKind() != BoltStorage {
		t.Fatalf("reopened StorageKind = %v, wanted bolt", tbl.StorageKind())
	}
	tx = begin(t, tbl)
	intEq(t, "Size", must(tx.Size()), nil, 1)
	row, ok := must2(tx.Get("b"))
	rowEq(t, row, ok, kvRow(2, "y"), true)
}

func TestBoltStorage_SaveReplaces(t *testing.T) {
	s := must(openBoltStorage(filepath.Join(t.TempDir(), boltFileName), &Options{NoSync: true}))
	defer s.Close()

	deepEqual(t, must(s.Load()), map[string]string{})
	must(s.Save(map[string]string{"a": "1", "b": "2"}))
	must(s.Save(map[string]string{"b": "3"}))
	deepEqual(t, must(s.Load()), map[string]string{"b": "3"})
}

func TestFileStorage_Detected(t *testing.T) {
	dir := t.TempDir()
	reg := setupIn(t, dir)
	tbl := must(reg.CreateTable("t", kvSchema))
	tx := begin(t, tbl)
	must2(tx.Put("k", kvRow(1, "v")))
	must(tx.Commit())
	ensureNoErr(t, reg.Close())

	raw := must(os.ReadFile(filepath.Join(dir, "t", containerFileName)))
	deepEqual(t, must(decodeContainer(raw)), map[string]string{"k": "<row><col>1</col><col>v</col></row>"})

	reg = setupIn(t, dir, useBolt)
	if kind := must(reg.Table("t")).StorageKind(); kind != FileStorage {
		t.Fatalf("StorageKind = %v, wanted file", kind)
	}
}

func TestParseStorageKind(t *testing.T) {
	for _, k := range []StorageKind{FileStorage, BoltStorage} {
		if a, ok := ParseStorageKind(k.String()); !ok || a != k {
			t.Errorf("ParseStorageKind(%q) = %v, %v", k, a, ok)
		}
	}
	if _, ok := ParseStorageKind("badger"); ok {
		t.Errorf("ParseStorageKind(badger) succeeded")
	}
}

type failingStorage struct {
	storage
	err error
}

func (s *failingStorage) Save(rows map[string]string) (int64, error) {
	return 0, s.err
}

func TestTx_CommitPersistFailure(t *testing.T) {
	tbl := setupTable(t)
	tbl.store = &failingStorage{tbl.store, ioErr(errors.New("disk full"))}

	tx := begin(t, tbl)
	must2(tx.Put("k", kvRow(1, "")))
	n, err := tx.Commit()
	if n != 1 || !errors.Is(err, ErrIO) {
		t.Fatalf("Commit = %d, %v, wanted 1, ErrIO", n, err)
	}

	// the in-memory state keeps the commit
	intEq(t, "ChangesCount", must(tx.ChangesCount()), nil, 0)
	row, ok := must2(begin(t, tbl).Get("k"))
	rowEq(t, row, ok, kvRow(1, ""), true)
}

func TestRegistry_CorruptContainer(t *testing.T) {
	dir := t.TempDir()
	reg := setupIn(t, dir)
	must(reg.CreateTable("t", kvSchema))
	ensureNoErr(t, reg.Close())

	ensureNoErr(t, os.WriteFile(filepath.Join(dir, "t", containerFileName), []byte("garbage"), 0o666))
	_, err := OpenRegistry(dir, testOptions)
	isErr(t, err, ErrDataFormat)

	ensureNoErr(t, os.WriteFile(filepath.Join(dir, "t", containerFileName), must(encodeContainer(map[string]string{"k": "<row><col>x</col><null/></row>"})), 0o666))
	_, err = OpenRegistry(dir, testOptions)
	isErr(t, err, ErrColumnFormat)
}
