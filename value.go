package tabledb

import (
	"fmt"
	"math"
	"strconv"
)

// ColumnType is the closed set of column types a Schema can use.
type ColumnType uint8

const (
	invalidType ColumnType = iota
	Int32
	Int64
	Byte
	Float32
	Float64
	String
	Bool
)

var columnTypeTokens = [...]string{
	Int32:   "int",
	Int64:   "long",
	Byte:    "byte",
	Float32: "float",
	Float64: "double",
	String:  "String",
	Bool:    "boolean",
}

// AllColumnTypes lists every valid ColumnType in declaration order.
var AllColumnTypes = []ColumnType{Int32, Int64, Byte, Float32, Float64, String, Bool}

// ParseColumnType maps a schema file token to its ColumnType.
func ParseColumnType(token string) (ColumnType, bool) {
	for _, t := range AllColumnTypes {
		if columnTypeTokens[t] == token {
			return t, true
		}
	}
	return invalidType, false
}

func (t ColumnType) IsValid() bool {
	return t >= Int32 && t <= Bool
}

// Token returns the schema file token of t.
func (t ColumnType) Token() string {
	if !t.IsValid() {
		panic(fmt.Errorf("invalid column type %d", t))
	}
	return columnTypeTokens[t]
}

func (t ColumnType) String() string {
	if !t.IsValid() {
		return fmt.Sprintf("ColumnType(%d)", t)
	}
	return columnTypeTokens[t]
}

// Value is a single typed cell. The zero Value is Null, the absent marker;
// it fits a column of any type.
//
// Numbers and bools live in bits (floats as their IEEE 754 bits), strings
// in str.
type Value struct {
	typ  ColumnType
	bits uint64
	str  string
}

var Null Value

func Int32Value(v int32) Value     { return Value{typ: Int32, bits: uint64(int64(v))} }
func Int64Value(v int64) Value     { return Value{typ: Int64, bits: uint64(v)} }
func ByteValue(v int8) Value       { return Value{typ: Byte, bits: uint64(int64(v))} }
func Float32Value(v float32) Value { return Value{typ: Float32, bits: uint64(math.Float32bits(v))} }
func Float64Value(v float64) Value { return Value{typ: Float64, bits: math.Float64bits(v)} }
func StringValue(v string) Value   { return Value{typ: String, str: v} }

func BoolValue(v bool) Value {
	if v {
		return Value{typ: Bool, bits: 1}
	}
	return Value{typ: Bool}
}

// Type returns the column type of v, or 0 (an invalid type) for Null.
func (v Value) Type() ColumnType {
	return v.typ
}

func (v Value) IsNull() bool {
	return v.typ == invalidType
}

func (v Value) Int32() (int32, bool) {
	return int32(int64(v.bits)), v.typ == Int32
}

func (v Value) Int64() (int64, bool) {
	return int64(v.bits), v.typ == Int64
}

// Byte returns the value of a Byte column. Bytes are signed, like the
// 8-bit integers they are.
func (v Value) Byte() (int8, bool) {
	return int8(int64(v.bits)), v.typ == Byte
}

func (v Value) Float32() (float32, bool) {
	return math.Float32frombits(uint32(v.bits)), v.typ == Float32
}

func (v Value) Float64() (float64, bool) {
	return math.Float64frombits(v.bits), v.typ == Float64
}

func (v Value) Str() (string, bool) {
	return v.str, v.typ == String
}

func (v Value) Bool() (bool, bool) {
	return v.bits != 0, v.typ == Bool
}

// Equal compares type and contents. Floats compare by bits, so NaN equals
// an identical NaN and 0 differs from -0.
func (v Value) Equal(o Value) bool {
	return v == o
}

// Text returns the canonical text form of v, the same one used inside
// serialized rows. Null has no text form and returns "".
func (v Value) Text() string {
	switch v.typ {
	case invalidType:
		return ""
	case Int32, Int64, Byte:
		return strconv.FormatInt(int64(v.bits), 10)
	case Float32:
		f, _ := v.Float32()
		return strconv.FormatFloat(float64(f), 'g', -1, 32)
	case Float64:
		f, _ := v.Float64()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case String:
		return v.str
	case Bool:
		return strconv.FormatBool(v.bits != 0)
	default:
		panic("unreachable")
	}
}

func (v Value) String() string {
	if v.IsNull() {
		return "null"
	}
	if v.typ == String {
		return strconv.Quote(v.str)
	}
	return v.Text()
}

// ParseValue parses the canonical text form of a value of type t.
func ParseValue(t ColumnType, s string) (Value, error) {
	switch t {
	case Int32:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return Null, columnFormatErr(t, s, err)
		}
		return Int32Value(int32(n)), nil
	case Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Null, columnFormatErr(t, s, err)
		}
		return Int64Value(n), nil
	case Byte:
		n, err := strconv.ParseInt(s, 10, 8)
		if err != nil {
			return Null, columnFormatErr(t, s, err)
		}
		return ByteValue(int8(n)), nil
	case Float32:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Null, columnFormatErr(t, s, err)
		}
		return Float32Value(float32(f)), nil
	case Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Null, columnFormatErr(t, s, err)
		}
		return Float64Value(f), nil
	case String:
		return StringValue(s), nil
	case Bool:
		switch s {
		case "true":
			return BoolValue(true), nil
		case "false":
			return BoolValue(false), nil
		default:
			return Null, columnFormatErr(t, s, nil)
		}
	default:
		return Null, fmt.Errorf("%w: invalid column type %d", ErrInvalid, t)
	}
}

func columnFormatErr(t ColumnType, s string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %q is not a valid %v: %w", ErrColumnFormat, s, t, err)
	}
	return fmt.Errorf("%w: %q is not a valid %v", ErrColumnFormat, s, t)
}
