package tabledb

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestDataError_ErrorAndUnwrap(t *testing.T) {
	t.Run("small data", func(t *testing.T) {
		inner := errors.New("inner")
		err := dataErrf([]byte{0xAA, 0xBB}, 1, inner, "oops")
		var de *DataError
		if !errors.As(err, &de) {
			t.Fatalf("err = %T, wanted *DataError", err)
		}
		if !errors.Is(err, inner) {
			t.Fatalf("errors.Is(err, inner) = false, wanted true")
		}
		if !errors.Is(err, ErrDataFormat) {
			t.Fatalf("errors.Is(err, ErrDataFormat) = false, wanted true")
		}
		s := err.Error()
		if !strings.Contains(s, "oops") || !strings.Contains(s, "inner") || !strings.Contains(s, "(2)") {
			t.Fatalf("err.Error() = %q, wanted message with oops/inner/(2)", s)
		}
	})

	t.Run("large data includes prefix+suffix", func(t *testing.T) {
		data := make([]byte, 200)
		for i := range data {
			data[i] = byte(i)
		}
		err := dataErrf(data, 0, nil, "oops")
		s := err.Error()
		if !strings.Contains(s, "(200)") || !strings.Contains(s, "...") {
			t.Fatalf("err.Error() = %q, wanted message with (200) and ...", s)
		}
	})
}

func TestTableError_ErrorAndUnwrap(t *testing.T) {
	err := tableErrf("users", "k", ErrInvalid, "oops %d", 1)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("errors.Is(err, ErrInvalid) = false, wanted true")
	}
	s := err.Error()
	if !strings.Contains(s, "users") || !strings.Contains(s, "\"k\"") || !strings.Contains(s, "oops 1") || !strings.Contains(s, "invalid argument") {
		t.Fatalf("err.Error() = %q, wanted table/key/msg/inner", s)
	}

	s = (&TableError{Table: "T", Err: ErrIllegalState}).Error()
	if s != "T: illegal state" {
		t.Fatalf("TableError.Error() = %q, wanted %q", s, "T: illegal state")
	}
}

func TestIOErr(t *testing.T) {
	if ioErr(nil) != nil {
		t.Fatalf("ioErr(nil) != nil")
	}
	pe := &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}
	err := ioErr(pe)
	if !errors.Is(err, ErrIO) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("ioErr = %v, wanted both ErrIO and fs.ErrNotExist", err)
	}
	if again := ioErr(err); again != err {
		t.Fatalf("ioErr(ioErr(e)) = %v, wanted unchanged", again)
	}
}
