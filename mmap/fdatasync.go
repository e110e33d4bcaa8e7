package mmap

import "os"

// Fdatasync flushes the data written to f without forcing a metadata update
// where the OS allows that.
//
// An error here is not recoverable: many file systems mark the dirty pages
// clean after a failed flush, so the caller cannot know what actually reached
// the disk.
func Fdatasync(f *os.File) error {
	return fdatasync(f)
}
