package tabledb

import (
	"errors"
	"testing"
)

func TestMust(t *testing.T) {
	if v := must(42, nil); v != 42 {
		t.Fatalf("must = %d, wanted 42", v)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	must(0, errors.New("boom"))
}

func TestHexstr(t *testing.T) {
	if got := hexstr(nil); got != "<nil>" {
		t.Fatalf("hexstr(nil) = %q, wanted <nil>", got)
	}
	if got := hexstr([]byte{}); got != "<empty>" {
		t.Fatalf("hexstr(empty) = %q, wanted <empty>", got)
	}
	if got := hexstr([]byte{0xAB, 0x01}); got != "ab01" {
		t.Fatalf("hexstr = %q, wanted ab01", got)
	}
}
