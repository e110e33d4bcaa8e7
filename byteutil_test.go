package tabledb

import (
	"bytes"
	"errors"
	"testing"
)

func TestBytesBuilder_Basics(t *testing.T) {
	var bb bytesBuilder
	bb.AppendCString("ab")
	bb.AppendInt32BE(0x01020304)
	bb.AppendString("xyz")
	_, _ = bb.Write([]byte{9, 8})

	want := []byte{'a', 'b', 0, 1, 2, 3, 4, 'x', 'y', 'z', 9, 8}
	if !bytes.Equal(bb.Buf, want) {
		t.Fatalf("bb.Buf = %x, wanted %x", bb.Buf, want)
	}
}

func TestEnsureCapacity(t *testing.T) {
	buf := []byte{1, 2}
	buf = ensureCapacity(buf, 100)
	if cap(buf) < 100 {
		t.Fatalf("cap = %d, wanted >= 100", cap(buf))
	}
	if !bytes.Equal(buf, []byte{1, 2}) {
		t.Fatalf("buf = %x, wanted 0102", buf)
	}
}

func TestByteDecoder(t *testing.T) {
	d := makeByteDecoder([]byte{'k', 0, 0xFF, 0xFF, 0xFF, 0xFE, 'x'})
	key, err := d.CString(10)
	if err != nil || string(key) != "k" {
		t.Fatalf("CString = %q, %v, wanted \"k\", nil", key, err)
	}
	n, err := d.Int32BE()
	if err != nil || n != -2 {
		t.Fatalf("Int32BE = %d, %v, wanted -2, nil", n, err)
	}
	if d.Off() != 6 {
		t.Fatalf("Off = %d, wanted 6", d.Off())
	}
	_, err = d.Int32BE()
	if !errors.Is(err, ErrDataFormat) {
		t.Fatalf("Int32BE past end: err = %v, wanted ErrDataFormat", err)
	}
}

func TestByteDecoder_CStringErrors(t *testing.T) {
	tests := []struct {
		data   string
		maxLen int
		msg    string
	}{
		{"abc", 10, "unterminated"},
		{"\x00abc", 10, "empty string"},
		{"abcdef\x00", 3, "longer than 3 bytes"},
	}
	for _, tt := range tests {
		d := makeByteDecoder([]byte(tt.data))
		_, err := d.CString(tt.maxLen)
		if err == nil || !errors.Is(err, ErrDataFormat) {
			t.Errorf("CString(%q) err = %v, wanted ErrDataFormat", tt.data, err)
		} else if !bytes.Contains([]byte(err.Error()), []byte(tt.msg)) {
			t.Errorf("CString(%q) err = %v, wanted to contain %q", tt.data, err, tt.msg)
		}
	}
}
