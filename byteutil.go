package tabledb

import (
	"bytes"
	"encoding/binary"
	"math"
)

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

type bytesBuilder struct {
	Buf []byte
}

func (bb *bytesBuilder) Grow(n int) (off int) {
	off = len(bb.Buf)
	bb.Buf = ensureCapacity(bb.Buf, off+n)[:off+n]
	return off
}

func (bb *bytesBuilder) AppendString(s string) {
	off := bb.Grow(len(s))
	copy(bb.Buf[off:], s)
}

// AppendCString appends s followed by a 0x00 terminator.
func (bb *bytesBuilder) AppendCString(s string) {
	off := bb.Grow(len(s) + 1)
	copy(bb.Buf[off:], s)
	bb.Buf[off+len(s)] = 0
}

func (bb *bytesBuilder) AppendInt32BE(v int32) {
	off := bb.Grow(4)
	binary.BigEndian.PutUint32(bb.Buf[off:], uint32(v))
}

type byteDecoder struct {
	Orig []byte
	Buf  []byte
}

func makeByteDecoder(buf []byte) byteDecoder {
	return byteDecoder{buf, buf}
}

func (d *byteDecoder) Off() int {
	return len(d.Orig) - len(d.Buf)
}

func (d *byteDecoder) Raw(n int) ([]byte, error) {
	if len(d.Buf) < n {
		return nil, dataErrf(d.Orig, d.Off(), nil, "not enough data: %d bytes remaining, %d wanted", len(d.Buf), n)
	}
	v := d.Buf[:n]
	d.Buf = d.Buf[n:]
	return v, nil
}

// CString reads bytes up to a 0x00 terminator and consumes the terminator.
// The string must be non-empty and at most maxLen bytes long.
func (d *byteDecoder) CString(maxLen int) ([]byte, error) {
	limit := min(len(d.Buf), maxLen+1)
	i := bytes.IndexByte(d.Buf[:limit], 0)
	if i < 0 {
		if limit > maxLen {
			return nil, dataErrf(d.Orig, d.Off(), nil, "string longer than %d bytes", maxLen)
		}
		return nil, dataErrf(d.Orig, d.Off(), nil, "unterminated string")
	}
	if i == 0 {
		return nil, dataErrf(d.Orig, d.Off(), nil, "empty string")
	}
	v := d.Buf[:i]
	d.Buf = d.Buf[i+1:]
	return v, nil
}

func (d *byteDecoder) Int32BE() (int32, error) {
	b, err := d.Raw(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func fitsInt32(n int) bool {
	return n >= 0 && n <= math.MaxInt32
}

// Write implements io.Writer, so that encoders can append to the builder.
func (bb *bytesBuilder) Write(p []byte) (int, error) {
	off := bb.Grow(len(p))
	copy(bb.Buf[off:], p)
	return len(p), nil
}
