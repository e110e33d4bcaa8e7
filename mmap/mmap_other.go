//go:build !unix && !windows

package mmap

import (
	"io"
	"os"
)

// Platforms without mmap get a heap copy of the file.
func mmap(f *os.File, size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := io.ReadFull(f, b); err != nil {
		return nil, err
	}
	return b, nil
}

func munmap(b []byte) error {
	return nil
}
