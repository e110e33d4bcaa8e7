package tabledb

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"slices"

	"github.com/andreyvit/tabledb/mmap"
)

// containerFileName holds the committed rows of a table in container format.
const containerFileName = "table.dat"

// maxContainerKeyLen bounds how far a reader scans for a key terminator.
const maxContainerKeyLen = 1024 * 1024

// Container format, for a key→string map:
//
//	index region: (key 0x00 offset:int32be)*, one entry per key
//	value region: the raw value bytes, in index order
//
// Each offset is the absolute file position of the entry's value. The index
// length is not stored: the value region starts right after the index, so
// the first entry's offset marks where the index ends. The last value runs
// to the end of the file. An empty file is an empty map.
//
// Keys are written in sorted order so that equal maps produce equal files.
func encodeContainer(m map[string]string) ([]byte, error) {
	keys := slices.Sorted(maps.Keys(m))

	indexLen, total := 0, 0
	for _, k := range keys {
		if k == "" {
			return nil, fmt.Errorf("%w: empty key", ErrInvalid)
		}
		indexLen += len(k) + 5
	}
	total = indexLen
	for _, k := range keys {
		total += len(m[k])
	}
	if !fitsInt32(total) {
		return nil, fmt.Errorf("%w: container of %d bytes exceeds the 2 GiB offset range", ErrInvalid, total)
	}

	bb := bytesBuilder{make([]byte, 0, total)}
	off := indexLen
	for _, k := range keys {
		bb.AppendCString(k)
		bb.AppendInt32BE(int32(off))
		off += len(m[k])
	}
	for _, k := range keys {
		bb.AppendString(m[k])
	}
	return bb.Buf, nil
}

func decodeContainer(data []byte) (map[string]string, error) {
	m := make(map[string]string)
	if len(data) == 0 {
		return m, nil
	}

	d := makeByteDecoder(data)
	key, off, err := readContainerEntry(&d)
	if err != nil {
		return nil, err
	}
	first := off
	if first < d.Off() || first > len(data) {
		return nil, dataErrf(data, 0, nil, "first value offset %d outside of [%d, %d]", first, d.Off(), len(data))
	}

	add := func(key []byte, start, end int) error {
		k := string(key)
		if _, dup := m[k]; dup {
			return dataErrf(data, d.Off(), nil, "duplicate key %q", k)
		}
		m[k] = string(data[start:end])
		return nil
	}

	for d.Off() != first {
		if d.Off() > first {
			return nil, dataErrf(data, d.Off(), nil, "index runs past the value region at %d", first)
		}
		nextKey, nextOff, err := readContainerEntry(&d)
		if err != nil {
			return nil, err
		}
		if nextOff < off || nextOff > len(data) {
			return nil, dataErrf(data, d.Off()-4, nil, "value offset %d outside of [%d, %d]", nextOff, off, len(data))
		}
		if err := add(key, off, nextOff); err != nil {
			return nil, err
		}
		key, off = nextKey, nextOff
	}
	if err := add(key, off, len(data)); err != nil {
		return nil, err
	}
	return m, nil
}

func readContainerEntry(d *byteDecoder) ([]byte, int, error) {
	key, err := d.CString(maxContainerKeyLen)
	if err != nil {
		return nil, 0, err
	}
	if err := validateKey(string(key)); err != nil {
		return nil, 0, dataErrf(d.Orig, d.Off(), err, "invalid key")
	}
	off, err := d.Int32BE()
	if err != nil {
		return nil, 0, err
	}
	if off < 0 {
		return nil, 0, dataErrf(d.Orig, d.Off()-4, nil, "negative value offset %d", off)
	}
	return key, int(off), nil
}

// readContainerFile loads a container file; a missing file is an empty map.
func readContainerFile(path string) (map[string]string, error) {
	m, err := mmap.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	} else if err != nil {
		return nil, ioErr(err)
	}
	defer m.Close()
	return decodeContainer(m.Bytes())
}

func writeContainerFile(path string, data map[string]string, noSync bool) (int, error) {
	b, err := encodeContainer(data)
	if err != nil {
		return 0, err
	}
	return len(b), ioErr(mmap.WriteFile(path, b, 0o644, noSync))
}
