package tabledb

import (
	"errors"
	"math"
	"testing"
)

func TestRowCodec_RoundTrip(t *testing.T) {
	s := MustSchema(AllColumnTypes...)
	rows := []Row{
		must(s.NewRow(Int32Value(-1), Int64Value(math.MaxInt64), ByteValue(7), Float32Value(2.5), Float64Value(-0.125), StringValue("<a href=\"x\">&amp;</a>"), BoolValue(true))),
		must(s.NewRow()),
		must(s.NewRow(Null, Null, Null, Null, Null, StringValue(""), BoolValue(false))),
		must(s.NewRow(Null, Null, Null, Null, Null, StringValue("  padded\ttext  "))),
	}
	for _, row := range rows {
		text, err := EncodeRow(s, row)
		if err != nil {
			t.Fatalf("EncodeRow(%v) failed: %v", row, err)
		}
		a, err := DecodeRow(s, text)
		if err != nil {
			t.Fatalf("DecodeRow(%q) failed: %v", text, err)
		}
		if !a.Equal(row) {
			t.Errorf("** got %v, wanted %v (text %q)", a, row, text)
		}
	}
}

func TestEncodeRow(t *testing.T) {
	s := MustSchema(Int32, String, Bool)
	text := must(EncodeRow(s, must(s.NewRow(Int32Value(5), StringValue("a<b")))))
	if e := "<row><col>5</col><col>a&lt;b</col><null/></row>"; text != e {
		t.Errorf("EncodeRow = %q, wanted %q", text, e)
	}

	_, err := EncodeRow(s, must(MustSchema(Int32).NewRow()))
	if !errors.Is(err, ErrColumnFormat) {
		t.Errorf("EncodeRow(narrow row) err = %v, wanted ErrColumnFormat", err)
	}
}

func TestEncodeRow_UnencodableStrings(t *testing.T) {
	s := MustSchema(String)
	for _, str := range []string{"a\x01b", "a\xffb", "\x1f", "\uFFFF"} {
		_, err := EncodeRow(s, Row{schema: s, vals: []Value{StringValue(str)}})
		if !errors.Is(err, ErrColumnFormat) {
			t.Errorf("EncodeRow(%q) err = %v, wanted ErrColumnFormat", str, err)
		}
		if _, err := s.NewRow(StringValue(str)); !errors.Is(err, ErrColumnFormat) {
			t.Errorf("NewRow(%q) err = %v, wanted ErrColumnFormat", str, err)
		}
		if s.Fits(0, StringValue(str)) {
			t.Errorf("Fits(%q) = true, wanted false", str)
		}
	}

	for _, str := range []string{"a\tb\r\n", "\uFFFD", "😀"} {
		row := must(s.NewRow(StringValue(str)))
		a := must(DecodeRow(s, must(EncodeRow(s, row))))
		if !a.Equal(row) {
			t.Errorf("** got %v, wanted %v", a, row)
		}
	}
}

func TestDecodeRow_Lenient(t *testing.T) {
	s := MustSchema(Int32, String)
	e := must(s.NewRow(Int32Value(5)))
	for _, text := range []string{
		"<row><col>5</col><null/></row>",
		"<row>\n  <col>5</col>\n  <null/>\n</row>\n",
		"<row><col>5</col><col><null/></col></row>",
		"<row><col>5</col><null></null></row>",
	} {
		a, err := DecodeRow(s, text)
		if err != nil {
			t.Errorf("DecodeRow(%q) failed: %v", text, err)
		} else if !a.Equal(e) {
			t.Errorf("DecodeRow(%q) = %v, wanted %v", text, a, e)
		}
	}
}

func TestDecodeRow_Errors(t *testing.T) {
	s := MustSchema(Int32, String)
	tests := []struct {
		text string
		kind error
	}{
		{"", ErrDataFormat},
		{"<row>", ErrDataFormat},
		{"<row><col>5</col><null/>", ErrDataFormat},
		{"<rows><col>5</col><null/></rows>", ErrDataFormat},
		{"<row><col>5</col><null/></row><row/>", ErrDataFormat},
		{"<row><col>5</col><null/></row>junk", ErrDataFormat},
		{"<row>x<col>5</col><null/></row>", ErrDataFormat},
		{"<row><col a=\"1\">5</col><null/></row>", ErrDataFormat},
		{"<row><value>5</value><null/></row>", ErrDataFormat},
		{"<row><col>5<b/></col><null/></row>", ErrDataFormat},
		{"<row><col>5</col><null/><null/></row>", ErrColumnFormat},
		{"<row><col>5</col></row>", ErrColumnFormat},
		{"<row><col>five</col><null/></row>", ErrColumnFormat},
	}
	for _, tt := range tests {
		a, err := DecodeRow(s, tt.text)
		if !errors.Is(err, tt.kind) {
			t.Errorf("DecodeRow(%q) = %v, %v, wanted %v", tt.text, a, err, tt.kind)
		}
	}
}
