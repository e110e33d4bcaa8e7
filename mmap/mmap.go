// Package mmap maps table container files into memory for decoding, and
// flushes rewritten files to stable storage.
package mmap

import (
	"fmt"
	"math"
	"os"
)

// MaxSize is the largest file Open agrees to map. Container offsets are
// signed 32-bit integers, so nothing larger can be a valid container.
const MaxSize = math.MaxInt32

// Mapping is a read-only view of a file's contents.
type Mapping struct {
	data   []byte
	mapped bool
}

// Open maps the whole file at path read-only. An empty file yields an empty
// Mapping without touching the OS mapping facilities.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size == 0 {
		return &Mapping{}, nil
	}
	if size > MaxSize {
		return nil, &os.PathError{Op: "mmap", Path: path, Err: fmt.Errorf("file too large to map (%d bytes)", size)}
	}

	b, err := mmap(f, int(size))
	if err != nil {
		return nil, &os.PathError{Op: "mmap", Path: path, Err: err}
	}
	return &Mapping{data: b, mapped: true}, nil
}

// Bytes returns the mapped contents. The slice is invalid after Close.
func (m *Mapping) Bytes() []byte {
	return m.data
}

func (m *Mapping) Len() int {
	return len(m.data)
}

// Close unmaps the file. Safe to call more than once.
func (m *Mapping) Close() error {
	if !m.mapped {
		m.data = nil
		return nil
	}
	m.mapped = false
	b := m.data
	m.data = nil
	return munmap(b)
}

// WriteFile replaces the contents of the file at path with data, then
// flushes it with Fdatasync unless noSync is set.
//
// The file is truncated before writing, so a failure part way through leaves
// a short file behind.
func WriteFile(path string, data []byte, perm os.FileMode, noSync bool) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err == nil && !noSync {
		err = Fdatasync(f)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
