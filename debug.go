package tabledb

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

type DumpFlags uint64

const (
	DumpTableHeaders = DumpFlags(1 << iota)
	DumpRows
	DumpStats

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the committed rows of the table, ordered by key, for
// debugging and for the shell's dump command.
func (t *Table) Dump(f DumpFlags) string {
	var buf strings.Builder
	s := t.Stats()

	if f.Contains(DumpTableHeaders) {
		fmt.Fprintln(&buf, dumpSep1)
		fmt.Fprintf(&buf, "%s %v (%d rows)\n", t.name, t.schema, s.Rows)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(&buf, "%s.stats: storage = %v, open_txns = %d, commits = %d, rollbacks = %d, saved_bytes = %d\n", t.name, t.kind, s.OpenTxns, s.Commits, s.Rollbacks, s.SavedBytes)
	}
	if f.Contains(DumpRows) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(&buf, dumpSep2)
		}
		t.mu.RLock()
		keys := slices.Sorted(maps.Keys(t.committed))
		for i, k := range keys {
			fmt.Fprintf(&buf, "%s.%d: %s = %v\n", t.name, i+1, k, t.committed[k])
		}
		t.mu.RUnlock()
	}
	return buf.String()
}
