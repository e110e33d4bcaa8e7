package tabledb

import (
	"fmt"
	"slices"
	"strings"
)

type Op int

const (
	OpNone   Op = 0
	OpPut    Op = 1
	OpDelete Op = 2
)

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}

// Change is one staged write of a transaction, as it would be applied by
// Commit. A put of a key that already exists replaces the committed row.
type Change struct {
	Op  Op
	Key string
	Row Row // zero for OpDelete
}

func (chg Change) String() string {
	if chg.Op == OpPut {
		return fmt.Sprintf("%v %q %v", chg.Op, chg.Key, chg.Row)
	}
	return fmt.Sprintf("%v %q", chg.Op, chg.Key)
}

// Changes lists the staged writes of tx ordered by key. A key both deleted
// and put is reported once, as a put.
func (tx *Tx) Changes() ([]Change, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	return tx.changes(), nil
}

func (tx *Tx) changes() []Change {
	result := make([]Change, 0, len(tx.puts)+len(tx.deletes))
	for k := range tx.deletes {
		if _, ok := tx.puts[k]; !ok {
			result = append(result, Change{Op: OpDelete, Key: k})
		}
	}
	for k, row := range tx.puts {
		result = append(result, Change{Op: OpPut, Key: k, Row: row.Clone()})
	}
	slices.SortFunc(result, func(a, b Change) int {
		return strings.Compare(a.Key, b.Key)
	})
	return result
}
