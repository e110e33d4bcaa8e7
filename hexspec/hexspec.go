// Package hexspec builds and compares byte strings in tests.
//
// Expand accepts whitespace-separated elements:
//
//   - hex digits, optionally grouped with '_' ("00_00_00_0b")
//   - 'text for raw ASCII/UTF-8 bytes ("'bb")
//   - #123 for a uvarint
//   - elem*N to repeat an element N times
//   - elem/comment, where the comment is ignored
//
// Byte strings cannot contain whitespace in the 'text form; use hex for that.
package hexspec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"testing"
)

func Expand(specs ...string) []byte {
	var b []byte
	for _, spec := range specs {
		for _, elem := range strings.Fields(spec) {
			base, _, _ := strings.Cut(elem, "/")
			if base == "" {
				continue
			}

			base, repStr, _ := strings.Cut(base, "*")
			rep := 1
			if repStr != "" {
				var err error
				rep, err = strconv.Atoi(repStr)
				if err != nil {
					panic(fmt.Sprintf("invalid repeat count %q in element %q", repStr, elem))
				}
			}

			chunk, err := appendHexDecoding(nil, base)
			if err != nil {
				panic(fmt.Errorf("%w in element %q", err, elem))
			}
			for range rep {
				b = append(b, chunk...)
			}
		}
	}
	return b
}

func appendHexDecoding(data []byte, hex string) ([]byte, error) {
	const none byte = 0xFF

	if decimal, ok := strings.CutPrefix(hex, "#"); ok {
		v, err := strconv.ParseUint(decimal, 10, 64)
		if err != nil {
			return nil, err
		}
		return binary.AppendUvarint(data, v), nil
	} else if text, ok := strings.CutPrefix(hex, "'"); ok {
		return append(data, text...), nil
	}

	prev := none
	for _, b := range []byte(hex) {
		var half byte
		switch b {
		case '_':
			if prev != none {
				data = append(data, prev)
				prev = none
			}
			continue
		case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			half = b - '0'
		case 'a', 'b', 'c', 'd', 'e', 'f':
			half = b - 'a' + 10
		case 'A', 'B', 'C', 'D', 'E', 'F':
			half = b - 'A' + 10
		default:
			return nil, fmt.Errorf("invalid char '%c'", b)
		}
		if prev == none {
			prev = half
		} else {
			data = append(data, prev<<4|half)
			prev = none
		}
	}
	if prev != none {
		data = append(data, prev)
	}
	return data, nil
}

// HexDump formats b 8 bytes per line, marking the byte at highlightOff
// (pass -1 for no marker).
func HexDump(b []byte, highlightOff int) string {
	var buf strings.Builder
	var off int
	n := len(b)
	for {
		fmt.Fprintf(&buf, "%08x", off)
		if off >= n {
			buf.WriteByte('\n')
			break
		}
		buf.WriteByte(' ')
		for i := range 8 {
			if off+i >= n {
				buf.WriteString("   ")
				continue
			}
			if highlightOff >= 0 && off+i == highlightOff {
				buf.WriteByte('>')
			} else {
				buf.WriteByte(' ')
			}
			fmt.Fprintf(&buf, "%02x", b[off+i])
		}
		buf.WriteString("  |")
		for i := range 8 {
			if off+i < n {
				v := b[off+i]
				if v >= 32 && v <= 126 {
					buf.WriteByte(v)
				} else {
					buf.WriteByte('.')
				}
			}
		}
		off += 8
		buf.WriteString("|\n")
		if off >= n {
			break
		}
	}
	return buf.String()
}

// BytesEq reports a hex dump of both sides and the first differing offset
// when a and e differ.
func BytesEq(t testing.TB, a, e []byte) bool {
	if bytes.Equal(a, e) {
		return true
	}
	off := min(len(a), len(e))
	for i := range off {
		if a[i] != e[i] {
			off = i
			break
		}
	}
	t.Helper()
	t.Errorf("** got:\n%v\nwanted:\n%v\nfirst difference offset: 0x%x (%d)", HexDump(a, off), HexDump(e, off), off, off)
	return false
}
