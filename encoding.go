package tabledb

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/tabledb/changelog"
)

// ChangeRecord is what the change log keeps for one commit. Rows are stored
// in their text encoding so that the log stays readable without the schema.
type ChangeRecord struct {
	Time    time.Time         `msgpack:"t"`
	Deleted []string          `msgpack:"d,omitempty"`
	Put     map[string]string `msgpack:"p,omitempty"`
}

func newChangeRecord(now time.Time, changes []Change) *ChangeRecord {
	rec := &ChangeRecord{Time: now}
	for _, chg := range changes {
		switch chg.Op {
		case OpDelete:
			rec.Deleted = append(rec.Deleted, chg.Key)
		case OpPut:
			if rec.Put == nil {
				rec.Put = make(map[string]string)
			}
			// staged rows have passed Schema.Validate, so encoding cannot fail
			rec.Put[chg.Key] = must(EncodeRow(chg.Row.Schema(), chg.Row))
		}
	}
	return rec
}

func (rec *ChangeRecord) IsEmpty() bool {
	return len(rec.Deleted) == 0 && len(rec.Put) == 0
}

func encodeChangeRecord(buf []byte, rec *ChangeRecord) []byte {
	bb := bytesBuilder{buf}
	enc := msgpack.GetEncoder()
	enc.Reset(&bb)
	enc.SetSortMapKeys(true)
	err := enc.Encode(rec)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("failed to encode change record using MsgPack: %w", err))
	}
	return bb.Buf
}

func decodeChangeRecord(data []byte) (*ChangeRecord, error) {
	var r bytes.Reader
	r.Reset(data)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	var rec ChangeRecord
	err := dec.Decode(&rec)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, dataErrf(data, 0, err, "failed to decode change record")
	}
	return &rec, nil
}

func (t *Table) changeLogOptions() changelog.Options {
	return changelog.Options{
		Logger: t.logger,
		NoSync: t.opt.NoSync,
	}
}

func (t *Table) appendChangeLog(rec *ChangeRecord) error {
	if rec.IsEmpty() {
		return nil
	}
	if err := t.chlog.Append(encodeChangeRecord(nil, rec)); err != nil {
		t.logger.LogAttrs(context.Background(), slog.LevelError, "tabledb: appending to change log failed", slog.String("table", t.name), slog.Any("err", err))
		return tableErrf(t.name, "", ioErr(err), "change not logged")
	}
	return nil
}

// ChangeLog reads back every intact record of the table's change log, oldest
// first. It is empty unless the table has been opened with Options.ChangeLog.
func (t *Table) ChangeLog() ([]*ChangeRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed.Load() {
		return nil, t.closedErr()
	}

	raw, err := changelog.ReadAll(t.dir, t.changeLogOptions())
	if err != nil {
		return nil, tableErrf(t.name, "", ioErr(err), "cannot read change log")
	}
	result := make([]*ChangeRecord, 0, len(raw))
	for _, r := range raw {
		rec, err := decodeChangeRecord(r.Data)
		if err != nil {
			return nil, tableErrf(t.name, "", err, "segment %d", r.Segment)
		}
		result = append(result, rec)
	}
	return result, nil
}
