package tabledb

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func withChangeLog(o *Options) { o.ChangeLog = true }

func TestChangeRecord_Encoding(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := newChangeRecord(now, []Change{
		{Op: OpDelete, Key: "a"},
		{Op: OpPut, Key: "b", Row: kvRow(1, "x")},
	})
	a := must(decodeChangeRecord(encodeChangeRecord(nil, rec)))
	if !a.Time.Equal(now) {
		t.Errorf("Time = %v, wanted %v", a.Time, now)
	}
	deepEqual(t, a.Deleted, []string{"a"})
	deepEqual(t, a.Put, map[string]string{"b": "<row><col>1</col><col>x</col></row>"})

	if _, err := decodeChangeRecord([]byte{0xc1}); err == nil {
		t.Errorf("decodeChangeRecord(garbage) succeeded")
	}
}

func TestTable_ChangeLog(t *testing.T) {
	dir := t.TempDir()
	reg := setupIn(t, dir, withChangeLog)
	tbl := must(reg.CreateTable("t", kvSchema))

	tx := begin(t, tbl)
	must2(tx.Put("a", kvRow(1, "")))
	must2(tx.Put("b", kvRow(2, "")))
	must(tx.Commit())
	must2(tx.Remove("a"))
	must2(tx.Put("b", kvRow(3, "")))
	must(tx.Commit())
	must(tx.Commit()) // nothing to record

	recs := must(tbl.ChangeLog())
	if len(recs) != 2 {
		t.Fatalf("len(ChangeLog) = %d, wanted 2", len(recs))
	}
	deepEqual(t, recs[0].Put, map[string]string{
		"a": "<row><col>1</col><col></col></row>",
		"b": "<row><col>2</col><col></col></row>",
	})
	if len(recs[0].Deleted) != 0 {
		t.Errorf("recs[0].Deleted = %v, wanted none", recs[0].Deleted)
	}
	deepEqual(t, recs[1].Deleted, []string{"a"})
	deepEqual(t, recs[1].Put, map[string]string{"b": "<row><col>3</col><col></col></row>"})

	ents := must(os.ReadDir(filepath.Join(dir, "t")))
	var logs int
	for _, ent := range ents {
		if strings.HasPrefix(ent.Name(), "changes-") && strings.HasSuffix(ent.Name(), ".log") {
			logs++
		}
	}
	if logs != 1 {
		t.Errorf("change log segments = %d, wanted 1", logs)
	}

	// records survive a reopen, and new commits go to a new segment
	ensureNoErr(t, reg.Close())
	reg = setupIn(t, dir, withChangeLog)
	tbl = must(reg.Table("t"))
	tx = begin(t, tbl)
	must2(tx.Remove("b"))
	must(tx.Commit())
	recs = must(tbl.ChangeLog())
	if len(recs) != 3 {
		t.Fatalf("len(ChangeLog) after reopen = %d, wanted 3", len(recs))
	}
	deepEqual(t, recs[2].Deleted, []string{"b"})
}

func TestTable_ChangeLogDisabled(t *testing.T) {
	tbl := setupTable(t)
	tx := begin(t, tbl)
	must2(tx.Put("a", kvRow(1, "")))
	must(tx.Commit())
	if recs := must(tbl.ChangeLog()); len(recs) != 0 {
		t.Errorf("ChangeLog = %v, wanted none", recs)
	}
}
