package tabledb

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/andreyvit/tabledb/mmap"
)

// schemaFileName holds the column types of a table, one token per column.
const schemaFileName = "signature.tsv"

// Schema is the ordered, immutable list of column types of a table.
type Schema struct {
	types []ColumnType
}

// NewSchema builds a Schema from one or more valid column types.
func NewSchema(types ...ColumnType) (Schema, error) {
	if len(types) == 0 {
		return Schema{}, fmt.Errorf("%w: schema must have at least one column", ErrInvalid)
	}
	for i, t := range types {
		if !t.IsValid() {
			return Schema{}, fmt.Errorf("%w: column %d has invalid type %v", ErrInvalid, i, t)
		}
	}
	return Schema{slices.Clone(types)}, nil
}

// MustSchema is NewSchema for static schemas; it panics on error.
func MustSchema(types ...ColumnType) Schema {
	return must(NewSchema(types...))
}

// ParseSchema builds a Schema from type tokens such as "int" or "String".
func ParseSchema(tokens []string) (Schema, error) {
	types := make([]ColumnType, 0, len(tokens))
	for _, tok := range tokens {
		t, ok := ParseColumnType(tok)
		if !ok {
			return Schema{}, fmt.Errorf("%w: unknown column type %q", ErrInvalid, tok)
		}
		types = append(types, t)
	}
	return NewSchema(types...)
}

func (s Schema) Len() int {
	return len(s.types)
}

func (s Schema) IsZero() bool {
	return len(s.types) == 0
}

// Type returns the type of column i; it panics if i is out of range.
func (s Schema) Type(i int) ColumnType {
	return s.types[i]
}

func (s Schema) Types() []ColumnType {
	return slices.Clone(s.types)
}

func (s Schema) Tokens() []string {
	tokens := make([]string, len(s.types))
	for i, t := range s.types {
		tokens[i] = t.Token()
	}
	return tokens
}

func (s Schema) Equal(o Schema) bool {
	return slices.Equal(s.types, o.types)
}

func (s Schema) String() string {
	return "(" + strings.Join(s.Tokens(), " ") + ")"
}

// Fits reports whether v can be stored in column i.
func (s Schema) Fits(i int, v Value) bool {
	return s.checkValue(i, v) == nil
}

// checkValue accepts an absent value or one of the column's type. Strings
// must also survive the row text encoding unchanged.
func (s Schema) checkValue(i int, v Value) error {
	if v.IsNull() {
		return nil
	}
	if v.Type() != s.types[i] {
		return fmt.Errorf("%w: column %d is %v, got %v value %v", ErrColumnFormat, i, s.types[i], v.Type(), v)
	}
	if str, ok := v.Str(); ok && !isRowText(str) {
		return fmt.Errorf("%w: column %d: string %q is not valid UTF-8 or holds characters the row text cannot carry", ErrColumnFormat, i, str)
	}
	return nil
}

// Validate checks that row has exactly one slot per column and that every
// present value has its column's type. Strings must be valid UTF-8 made of
// characters allowed in XML text.
func (s Schema) Validate(row Row) error {
	if row.Len() != len(s.types) {
		return fmt.Errorf("%w: row has %d columns, schema %v has %d", ErrColumnFormat, row.Len(), s, len(s.types))
	}
	for i, v := range row.vals {
		if err := s.checkValue(i, v); err != nil {
			return err
		}
	}
	return nil
}

func readSchemaFile(path string) (Schema, error) {
	m, err := mmap.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Schema{}, dataErrf(nil, 0, err, "%s is missing", schemaFileName)
	} else if err != nil {
		return Schema{}, ioErr(err)
	}
	defer m.Close()
	return decodeSchema(m.Bytes())
}

func decodeSchema(data []byte) (Schema, error) {
	tokens := strings.Fields(string(data))
	if len(tokens) == 0 {
		return Schema{}, dataErrf(data, 0, nil, "%s is empty", schemaFileName)
	}
	types := make([]ColumnType, len(tokens))
	for i, tok := range tokens {
		t, ok := ParseColumnType(tok)
		if !ok {
			return Schema{}, dataErrf(data, 0, nil, "%s: unknown column type %q", schemaFileName, tok)
		}
		types[i] = t
	}
	return Schema{types}, nil
}

// encodeSchema writes each token followed by a single space.
func encodeSchema(s Schema) []byte {
	var buf []byte
	for _, t := range s.types {
		buf = append(buf, t.Token()...)
		buf = append(buf, ' ')
	}
	return buf
}

func writeSchemaFile(path string, s Schema, noSync bool) error {
	return ioErr(mmap.WriteFile(path, encodeSchema(s), 0o644, noSync))
}

// Row is a fixed-width tuple of values, one slot per column of the schema it
// was created for. The zero Row has no columns.
type Row struct {
	schema Schema
	vals   []Value
}

// NewRow creates a row for s with every column Null, then fills the leading
// columns from values.
func (s Schema) NewRow(values ...Value) (Row, error) {
	if len(values) > len(s.types) {
		return Row{}, fmt.Errorf("%w: %d values for %d columns", ErrOutOfRange, len(values), len(s.types))
	}
	row := Row{schema: s, vals: make([]Value, len(s.types))}
	for i, v := range values {
		if err := row.Set(i, v); err != nil {
			return Row{}, err
		}
	}
	return row, nil
}

func (r Row) Schema() Schema {
	return r.schema
}

func (r Row) Len() int {
	return len(r.vals)
}

func (r Row) checkIndex(i int) error {
	if i < 0 || i >= len(r.vals) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, len(r.vals))
	}
	return nil
}

func (r Row) Get(i int) (Value, error) {
	if err := r.checkIndex(i); err != nil {
		return Null, err
	}
	return r.vals[i], nil
}

// Set stores v in column i, which must be in range and accept v's type.
func (r Row) Set(i int, v Value) error {
	if err := r.checkIndex(i); err != nil {
		return err
	}
	if err := r.schema.checkValue(i, v); err != nil {
		return err
	}
	r.vals[i] = v
	return nil
}

func (r Row) Values() []Value {
	return slices.Clone(r.vals)
}

func (r Row) Clone() Row {
	return Row{r.schema, slices.Clone(r.vals)}
}

// Equal reports whether both rows have the same column types and values.
func (r Row) Equal(o Row) bool {
	return r.schema.Equal(o.schema) && slices.Equal(r.vals, o.vals)
}

func (r Row) String() string {
	var buf strings.Builder
	buf.WriteByte('[')
	for i, v := range r.vals {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(v.String())
	}
	buf.WriteByte(']')
	return buf.String()
}

func (r Row) rebind(s Schema) Row {
	return Row{s, slices.Clone(r.vals)}
}
