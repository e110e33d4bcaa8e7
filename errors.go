package tabledb

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Errors returned by this package are classified with errors.Is
// against these.
var (
	// ErrInvalid reports a bad key, table name, schema or argument. Nothing
	// was changed.
	ErrInvalid = errors.New("invalid argument")

	// ErrColumnFormat reports a value or row that does not match a schema.
	ErrColumnFormat = errors.New("column format mismatch")

	// ErrOutOfRange reports a column index outside of a row.
	ErrOutOfRange = errors.New("column index out of range")

	// ErrIllegalState reports an operation on a closed or removed table,
	// registry or factory.
	ErrIllegalState = errors.New("illegal state")

	// ErrDataFormat reports malformed schema, container or row bytes.
	ErrDataFormat = errors.New("invalid data format")

	// ErrIO reports a file system failure.
	ErrIO = errors.New("i/o error")
)

// DataError describes malformed persisted bytes or row text.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Is(target error) bool {
	return target == ErrDataFormat
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	var msg string
	if e.Err != nil {
		msg = fmt.Sprintf("%s at %d: %v", e.Msg, e.Off, e.Err)
	} else {
		msg = fmt.Sprintf("%s at %d", e.Msg, e.Off)
	}
	if n <= prefixLen+suffixLen {
		return fmt.Sprintf("%s: (%d) %x", msg, n, e.Data)
	}
	return fmt.Sprintf("%s: (%d) %x...%x", msg, n, e.Data[:prefixLen], e.Data[n-suffixLen:])
}

// TableError attaches a table name and, optionally, a key to an error.
type TableError struct {
	Table string
	Key   string
	Msg   string
	Err   error
}

func tableErrf(table, key string, err error, format string, args ...any) error {
	return &TableError{table, key, fmt.Sprintf(format, args...), err}
}

func (e *TableError) Unwrap() error {
	return e.Err
}

func (e *TableError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Table)
	if e.Key != "" {
		buf.WriteByte('/')
		fmt.Fprintf(&buf, "%q", e.Key)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// ioErr marks err as ErrIO while keeping the underlying error reachable.
func ioErr(err error) error {
	if err == nil || errors.Is(err, ErrIO) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}
