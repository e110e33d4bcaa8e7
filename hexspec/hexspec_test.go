package hexspec

import (
	"bytes"
	"strings"
	"testing"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		spec string
		want []byte
	}{
		{"", nil},
		{"'a 00 00_00_00_0b", []byte{'a', 0, 0, 0, 0, 0x0b}},
		{"ff*3/pad", []byte{0xff, 0xff, 0xff}},
		{"#300", []byte{0xac, 0x02}},
		{"'ключ", []byte("ключ")},
		{"1_2", []byte{1, 2}},
	}
	for _, tt := range tests {
		if got := Expand(tt.spec); !bytes.Equal(got, tt.want) {
			t.Errorf("Expand(%q) = %x, wanted %x", tt.spec, got, tt.want)
		}
	}
}

func TestExpand_PanicsOnGarbage(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	Expand("zz")
}

func TestHexDump(t *testing.T) {
	s := HexDump([]byte("abcdefghij"), 9)
	if !strings.Contains(s, "|abcdefgh|") || !strings.Contains(s, ">6a") {
		t.Fatalf("HexDump = %q, wanted ASCII column and highlight", s)
	}
}
