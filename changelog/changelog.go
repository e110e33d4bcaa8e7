// Package changelog keeps append-only, checksummed segment files with one
// record per committed table transaction.
//
// A log lives in a single directory. Segments are named
// <prefix><ordinal:012d>-<timestamp><suffix> (the prefix and suffix come from
// Options.FileName), so lexical order equals write order. Every Open starts a
// fresh segment on the first Append instead of appending to the previous one,
// so a torn tail left by a crash is never extended.
//
// File format:
//
//   - segment = header record*
//   - header = magic:64 version:8 pad:24 ordinal:32 timestamp:32 pad:32 checksum:64 (little-endian, 32 bytes)
//   - record = size:uvarint tsDelta:uvarint data:size checksum:64
//
// The record checksum is xxhash64 over the size, tsDelta and data bytes. A
// reader stops at the first record that is truncated or fails its checksum.
package changelog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/tabledb/mmap"
)

var (
	ErrUnsupportedVersion = errors.New("unsupported changelog version")
	ErrClosed             = errors.New("changelog is closed")
	errCorruptedHeader    = errors.New("corrupted changelog segment header")
)

type Options struct {
	FileName    string // e.g. "changes-*.log"
	MaxFileSize int64  // start a new segment after this size
	Now         func() time.Time
	Logger      *slog.Logger
	NoSync      bool
}

const DefaultMaxFileSize = 1024 * 1024

const (
	magic          = 0x474f4c48434c4254 // "TBLCHLOG" as little-endian uint64
	version0 uint8 = 0

	headerSize   = 32
	checksumSize = 8
	timestampFmt = "20060102T150405"
)

func (o *Options) setDefaults() {
	if o.FileName == "" {
		o.FileName = "changes-*.log"
	}
	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Log appends records to the segments of one directory. Safe for concurrent use.
type Log struct {
	dir    string
	prefix string
	suffix string
	opt    Options

	mu     sync.Mutex
	closed bool
	seg    uint32
	w      *segmentWriter
}

// Record is one entry read back from a log.
type Record struct {
	Segment uint32
	Time    time.Time
	Data    []byte
}

// Open prepares a log in dir, which must exist. Nothing is written until the
// first Append.
func Open(dir string, o Options) (*Log, error) {
	o.setDefaults()
	prefix, suffix, _ := strings.Cut(o.FileName, "*")
	l := &Log{
		dir:    dir,
		prefix: prefix,
		suffix: suffix,
		opt:    o,
	}

	names, err := l.segmentNames()
	if err != nil {
		return nil, err
	}
	if n := len(names); n > 0 {
		seg, _, err := parseSegmentName(strings.TrimSuffix(strings.TrimPrefix(names[n-1], prefix), suffix))
		if err != nil {
			return nil, err
		}
		l.seg = seg
	}
	return l, nil
}

func (l *Log) String() string {
	return l.dir
}

// Append writes data as a single record, syncing it to disk unless
// Options.NoSync is set.
func (l *Log) Append(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	now := l.now()
	if l.w != nil && l.w.size >= l.opt.MaxFileSize {
		l.finishSegment_locked()
	}
	if l.w == nil {
		l.seg++
		w, err := l.startSegment(l.seg, now)
		if err != nil {
			return l.fail(err)
		}
		l.w = w
	}
	if err := l.w.writeRecord(now, data); err != nil {
		return l.fail(err)
	}
	if !l.opt.NoSync {
		if err := mmap.Fdatasync(l.w.f); err != nil {
			return l.fail(err)
		}
	}
	return nil
}

// Rotate makes the next Append start a new segment.
func (l *Log) Rotate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finishSegment_locked()
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.finishSegment_locked()
}

func (l *Log) finishSegment_locked() error {
	if l.w == nil {
		return nil
	}
	err := l.w.f.Close()
	l.w = nil
	return err
}

func (l *Log) fail(err error) error {
	l.opt.Logger.LogAttrs(context.Background(), slog.LevelError, "changelog: write failed", slog.String("dir", l.dir), slog.Any("err", err))
	l.finishSegment_locked()
	return err
}

func (l *Log) now() uint32 {
	v := l.opt.Now().Unix()
	if v < 0 || uint64(v)&0xFFFF_FFFF_0000_0000 != 0 {
		panic("time travel disallowed")
	}
	return uint32(v)
}

func (l *Log) segmentNames() ([]string, error) {
	ents, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, ent := range ents {
		if !ent.Type().IsRegular() {
			continue
		}
		name := ent.Name()
		if strings.HasPrefix(name, l.prefix) && strings.HasSuffix(name, l.suffix) && len(name) > len(l.prefix)+len(l.suffix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// ReadAll returns every intact record in dir, oldest first. Segments with a
// damaged header are skipped; within a segment, reading stops at the first
// damaged record.
func ReadAll(dir string, o Options) ([]Record, error) {
	l, err := Open(dir, o)
	if err != nil {
		return nil, err
	}
	names, err := l.segmentNames()
	if err != nil {
		return nil, err
	}

	var result []Record
	for _, name := range names {
		recs, err := l.readSegment(name)
		if errors.Is(err, errCorruptedHeader) {
			l.opt.Logger.LogAttrs(context.Background(), slog.LevelWarn, "changelog: skipping segment with corrupted header", slog.String("dir", dir), slog.String("file", name))
			continue
		} else if err != nil {
			return nil, err
		}
		result = append(result, recs...)
	}
	return result, nil
}

func (l *Log) readSegment(name string) ([]Record, error) {
	m, err := mmap.Open(filepath.Join(l.dir, name))
	if err != nil {
		return nil, err
	}
	defer m.Close()
	data := m.Bytes()

	h, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	var recs []Record
	off := headerSize
	for off < len(data) {
		start := off
		size, n := binary.Uvarint(data[off:])
		if n <= 0 {
			break
		}
		off += n
		tsDelta, n := binary.Uvarint(data[off:])
		if n <= 0 {
			break
		}
		off += n
		if size > uint64(len(data)-off) || len(data)-off-int(size) < checksumSize {
			break
		}
		end := off + int(size)
		sum := binary.LittleEndian.Uint64(data[end:])
		if xxhash.Sum64(data[start:end]) != sum {
			break
		}
		recs = append(recs, Record{
			Segment: h.ordinal,
			Time:    time.Unix(int64(h.timestamp)+int64(tsDelta), 0).UTC(),
			Data:    slices.Clone(data[off:end]),
		})
		off = end + checksumSize
	}
	if off < len(data) {
		l.opt.Logger.LogAttrs(context.Background(), slog.LevelWarn, "changelog: ignoring damaged tail", slog.String("dir", l.dir), slog.String("file", name), slog.Int("off", off), slog.Int("size", len(data)))
	}
	return recs, nil
}

type segmentHeader struct {
	ordinal   uint32
	timestamp uint32
}

func appendHeader(b []byte, h segmentHeader) []byte {
	start := len(b)
	b = binary.LittleEndian.AppendUint64(b, magic)
	b = append(b, version0, 0, 0, 0)
	b = binary.LittleEndian.AppendUint32(b, h.ordinal)
	b = binary.LittleEndian.AppendUint32(b, h.timestamp)
	b = binary.LittleEndian.AppendUint32(b, 0)
	return binary.LittleEndian.AppendUint64(b, xxhash.Sum64(b[start:]))
}

func decodeHeader(data []byte) (segmentHeader, error) {
	if len(data) < headerSize {
		return segmentHeader{}, errCorruptedHeader
	}
	if binary.LittleEndian.Uint64(data) != magic {
		return segmentHeader{}, errCorruptedHeader
	}
	if xxhash.Sum64(data[:headerSize-checksumSize]) != binary.LittleEndian.Uint64(data[headerSize-checksumSize:]) {
		return segmentHeader{}, errCorruptedHeader
	}
	if data[8] > version0 {
		return segmentHeader{}, ErrUnsupportedVersion
	}
	return segmentHeader{
		ordinal:   binary.LittleEndian.Uint32(data[12:]),
		timestamp: binary.LittleEndian.Uint32(data[16:]),
	}, nil
}

type segmentWriter struct {
	f    *os.File
	ts   uint32
	size int64
	buf  []byte
}

func (l *Log) startSegment(seg, ts uint32) (*segmentWriter, error) {
	name := formatSegmentName(l.prefix, l.suffix, seg, ts)
	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, err
	}

	hdr := appendHeader(make([]byte, 0, headerSize), segmentHeader{ordinal: seg, timestamp: ts})
	if _, err := f.Write(hdr); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &segmentWriter{f: f, ts: ts, size: headerSize}, nil
}

func (sw *segmentWriter) writeRecord(ts uint32, data []byte) error {
	var tsDelta uint32
	if ts > sw.ts {
		tsDelta = ts - sw.ts
	}

	b := sw.buf[:0]
	b = binary.AppendUvarint(b, uint64(len(data)))
	b = binary.AppendUvarint(b, uint64(tsDelta))
	b = append(b, data...)
	b = binary.LittleEndian.AppendUint64(b, xxhash.Sum64(b))
	sw.buf = b

	n, err := sw.f.Write(b)
	sw.size += int64(n)
	return err
}

func formatSegmentName(prefix, suffix string, seg, ts uint32) string {
	t := time.Unix(int64(ts), 0).UTC()
	return fmt.Sprintf("%s%012d-%s%s", prefix, seg, t.Format(timestampFmt), suffix)
}

func parseSegmentName(name string) (seg, ts uint32, err error) {
	segStr, tsStr, ok := strings.Cut(name, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid segment file name %q", name)
	}
	v, err := strconv.ParseUint(segStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid segment file name %q (invalid segment number)", name)
	}
	t, err := time.ParseInLocation(timestampFmt, tsStr, time.UTC)
	if err != nil {
		return uint32(v), 0, fmt.Errorf("invalid segment file name %q (invalid timestamp)", name)
	}
	return uint32(v), uint32(t.Unix()), nil
}
