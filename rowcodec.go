package tabledb

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Row text encoding:
//
//	<row><col>5</col><null/><col>text</col></row>
//
// One element per column in schema order: <col> holding the canonical text
// of the value, or <null/> for an absent value. <col><null/></col> is also
// read as absent. Whitespace between elements is ignored; everything else
// outside of the expected structure is an error.
const (
	rowElem  = "row"
	colElem  = "col"
	nullElem = "null"
)

// EncodeRow returns the text encoding of row, which must fit s.
func EncodeRow(s Schema, row Row) (string, error) {
	if err := s.Validate(row); err != nil {
		return "", err
	}
	var buf strings.Builder
	buf.WriteString("<row>")
	for _, v := range row.vals {
		if v.IsNull() {
			buf.WriteString("<null/>")
			continue
		}
		buf.WriteString("<col>")
		xml.EscapeText(&buf, []byte(v.Text()))
		buf.WriteString("</col>")
	}
	buf.WriteString("</row>")
	return buf.String(), nil
}

// DecodeRow parses the text encoding of a row of schema s.
func DecodeRow(s Schema, text string) (Row, error) {
	rd := rowDecoder{
		d:    xml.NewDecoder(strings.NewReader(text)),
		text: text,
	}
	rd.d.Strict = true

	if err := rd.expectStart(rowElem); err != nil {
		return Row{}, err
	}

	row := Row{schema: s, vals: make([]Value, s.Len())}
	col := 0
	for {
		tok, err := rd.next()
		if err != nil {
			return Row{}, err
		}

		switch tok := tok.(type) {
		case xml.EndElement:
			if tok.Name.Local != rowElem {
				return Row{}, rd.errf(nil, "unexpected </%s>", tok.Name.Local)
			}
			if col != s.Len() {
				return Row{}, fmt.Errorf("%w: row has %d columns, schema %v has %d", ErrColumnFormat, col, s, s.Len())
			}
			if err := rd.expectEOF(); err != nil {
				return Row{}, err
			}
			return row, nil

		case xml.StartElement:
			if err := rd.checkPlain(tok); err != nil {
				return Row{}, err
			}
			if col >= s.Len() {
				return Row{}, fmt.Errorf("%w: row has more than %d columns of schema %v", ErrColumnFormat, s.Len(), s)
			}
			switch tok.Name.Local {
			case nullElem:
				if err := rd.expectEnd(nullElem); err != nil {
					return Row{}, err
				}
			case colElem:
				v, err := rd.readCol(s.Type(col))
				if err != nil {
					return Row{}, fmt.Errorf("column %d: %w", col, err)
				}
				row.vals[col] = v
			default:
				return Row{}, rd.errf(nil, "unexpected <%s>", tok.Name.Local)
			}
			col++

		default:
			return Row{}, rd.errf(nil, "unexpected %T", tok)
		}
	}
}

type rowDecoder struct {
	d    *xml.Decoder
	text string
}

func (rd *rowDecoder) errf(err error, format string, args ...any) error {
	return dataErrf([]byte(rd.text), int(rd.d.InputOffset()), err, "invalid row: "+format, args...)
}

// rawToken returns the next token, turning io.EOF into a premature end error.
func (rd *rowDecoder) rawToken() (xml.Token, error) {
	tok, err := rd.d.Token()
	if err == io.EOF {
		return nil, rd.errf(nil, "premature end")
	} else if err != nil {
		return nil, rd.errf(err, "malformed XML")
	}
	return tok, nil
}

// next returns the next token that is not inter-element whitespace.
func (rd *rowDecoder) next() (xml.Token, error) {
	for {
		tok, err := rd.rawToken()
		if err != nil {
			return nil, err
		}
		if cd, ok := tok.(xml.CharData); ok {
			if isBlank(cd) {
				continue
			}
			return nil, rd.errf(nil, "unexpected text %q", string(cd))
		}
		return tok, nil
	}
}

func (rd *rowDecoder) checkPlain(se xml.StartElement) error {
	if se.Name.Space != "" || len(se.Attr) != 0 {
		return rd.errf(nil, "unexpected attributes or namespace on <%s>", se.Name.Local)
	}
	return nil
}

func (rd *rowDecoder) expectStart(name string) error {
	tok, err := rd.next()
	if err != nil {
		return err
	}
	se, ok := tok.(xml.StartElement)
	if !ok || se.Name.Local != name {
		return rd.errf(nil, "expected <%s>", name)
	}
	return rd.checkPlain(se)
}

func (rd *rowDecoder) expectEnd(name string) error {
	tok, err := rd.next()
	if err != nil {
		return err
	}
	if ee, ok := tok.(xml.EndElement); !ok || ee.Name.Local != name {
		return rd.errf(nil, "expected </%s>", name)
	}
	return nil
}

func (rd *rowDecoder) expectEOF() error {
	for {
		tok, err := rd.d.Token()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return rd.errf(err, "malformed XML")
		}
		if cd, ok := tok.(xml.CharData); ok && isBlank(cd) {
			continue
		}
		return rd.errf(nil, "trailing content after </%s>", rowElem)
	}
}

// readCol reads the contents of a <col> element up to and including </col>.
func (rd *rowDecoder) readCol(t ColumnType) (Value, error) {
	var text []byte
	for {
		tok, err := rd.rawToken()
		if err != nil {
			return Null, err
		}
		switch tok := tok.(type) {
		case xml.CharData:
			text = append(text, tok...)
		case xml.EndElement:
			return ParseValue(t, string(text))
		case xml.StartElement:
			if tok.Name.Local != nullElem || !isBlank(text) {
				return Null, rd.errf(nil, "unexpected <%s> inside <%s>", tok.Name.Local, colElem)
			}
			if err := rd.checkPlain(tok); err != nil {
				return Null, err
			}
			if err := rd.expectEnd(nullElem); err != nil {
				return Null, err
			}
			if err := rd.expectEnd(colElem); err != nil {
				return Null, err
			}
			return Null, nil
		default:
			return Null, rd.errf(nil, "unexpected %T inside <%s>", tok, colElem)
		}
	}
}

func isBlank(b []byte) bool {
	return strings.TrimSpace(string(b)) == ""
}

// isRowText reports whether s is valid UTF-8 made only of characters XML
// text can hold, so that EncodeRow writes it without substitution.
func isRowText(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
		case r < 0x20, r == 0xFFFE, r == 0xFFFF:
			return false
		}
	}
	return true
}
