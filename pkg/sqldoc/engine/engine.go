// Package engine defines the embedded-database capability sqldoc drives and
// provides SQLite implementations of it.
//
// The interface mirrors SQLite's native statement lifecycle: open a
// connection in a given [Mode], prepare a statement, reset it, bind
// parameters by 1-based position, step through rows reading typed columns,
// then finalize and close. Two implementations are available:
//
//   - [SQLite3]: github.com/mattn/go-sqlite3 (cgo, default)
//   - [Modernc]: modernc.org/sqlite/lib (pure Go, C API driven directly)
//
// Column values are reported by storage class. Neither implementation
// converts values by declared column type.
//
// Use [ByName] to select one from configuration.
package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Mode selects how a connection is opened.
type Mode int

const (
	// ReadOnly opens an existing file without write access.
	ReadOnly Mode = iota + 1
	// ReadWrite opens an existing file for reading and writing.
	ReadWrite
	// ReadWriteCreate opens for reading and writing, creating the file if absent.
	ReadWriteCreate
)

// String returns the SQLite URI mode name ("ro", "rw", "rwc").
func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "ro"
	case ReadWrite:
		return "rw"
	case ReadWriteCreate:
		return "rwc"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// StorageClass is the dynamic type SQLite reports for a column value.
type StorageClass int

const (
	// Unknown is reported for values the engine cannot classify.
	Unknown StorageClass = iota
	Integer
	Float
	Text
	Blob
	Null
)

func (c StorageClass) String() string {
	switch c {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Text:
		return "text"
	case Blob:
		return "blob"
	case Null:
		return "null"
	default:
		return "unknown"
	}
}

// Engine opens connections to database files.
//
// Implementations must be safe for concurrent use; the connections they
// return need not be.
type Engine interface {
	// Name identifies the implementation (for example "sqlite3").
	Name() string

	// Open establishes a connection to the file at path.
	Open(ctx context.Context, path string, mode Mode) (Conn, error)
}

// Conn is a single native connection.
type Conn interface {
	// Prepare compiles the first statement in query.
	//
	// A nil [Stmt] with an error means no handle was produced. A non-nil
	// [Stmt] with an error means a handle exists but the engine reported a
	// failure; the caller must still finalize it. A nil [Stmt] and nil error
	// means query holds no statement (empty, or only comments).
	Prepare(ctx context.Context, query string) (Stmt, error)

	// Close releases the connection.
	Close() error
}

// Cursor exposes the columns of the current row of a stepped statement.
// Column indexes are 0-based.
type Cursor interface {
	ColumnCount() int
	ColumnName(i int) string
	ColumnType(i int) StorageClass
	ColumnInt64(i int) int64
	ColumnDouble(i int) float64
	// ColumnText returns the UTF-8 bytes of a text value.
	ColumnText(i int) []byte
	// ColumnBlob returns a copy of the raw bytes of a blob value.
	ColumnBlob(i int) []byte
}

// Stmt is a prepared statement.
type Stmt interface {
	Cursor

	// Reset rewinds the statement so it can be stepped from the start.
	// Bindings are kept.
	Reset() error

	// ParamCount returns the number of placeholders, or -1 when the engine
	// cannot tell before execution.
	ParamCount() int

	BindInt64(index int, v int64) error
	BindDouble(index int, v float64) error
	BindText(index int, v string) error

	// Step advances to the next row. It returns true when a row is available
	// and false once the statement has completed.
	Step(ctx context.Context) (bool, error)

	// Finalize releases the statement. Safe to call more than once.
	Finalize() error
}

// Primary SQLite result codes used by this package.
const (
	CodeError    = 1
	CodeNoMem    = 7
	CodeReadOnly = 8
	CodeCantOpen = 14
	CodeMisuse   = 21
	CodeRange    = 25
)

// Error is a failure reported by the engine.
type Error struct {
	// Op is the lifecycle step that failed ("open", "prepare", "bind", ...).
	Op string

	// Code is the primary SQLite result code, or 0 when the driver does not
	// expose one.
	Code int

	// ExtendedCode is the extended result code when available.
	ExtendedCode int

	// Message is the engine's diagnostic text, verbatim.
	Message string

	// Err is the driver error, if any.
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	if e.Op == "" {
		return e.Message
	}

	return e.Op + ": " + e.Message
}

// Unwrap returns the driver error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// Default is the engine name used when none is configured.
const Default = "sqlite3"

var constructors = map[string]func() Engine{
	"sqlite3": SQLite3,
	"modernc": Modernc,
}

// ByName returns the engine registered under name. An empty name selects
// [Default].
func ByName(name string) (Engine, error) {
	if strings.TrimSpace(name) == "" {
		name = Default
	}

	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown engine %q (available: %s)", name, strings.Join(Names(), ", "))
	}

	return ctor(), nil
}

// Names lists the available engine names, sorted.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
