package sqldoc

import (
	"errors"
	"strings"

	"github.com/calvinalkan/sqldoc/pkg/sqldoc/engine"
)

// Error kinds. Every error returned by the public API matches exactly one
// of these with [errors.Is].
var (
	// ErrNotFound indicates the database path does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidFile indicates the path exists but is not a database file,
	// or its size could not be determined.
	ErrInvalidFile = errors.New("invalid database file")

	// ErrFailedToOpen indicates the engine could not open a connection.
	ErrFailedToOpen = errors.New("failed to open database")

	// ErrStatement indicates the engine produced no statement handle.
	ErrStatement = errors.New("statement error")

	// ErrEngine indicates a failure status from a prepared statement
	// (prepare, reset or step).
	ErrEngine = errors.New("engine error")

	// ErrBinding indicates a parameter could not be bound.
	ErrBinding = errors.New("binding error")

	// ErrDecode indicates a result could not be decoded.
	ErrDecode = errors.New("decode failure")
)

// Error is the uniform error type returned by sqldoc.
//
// The message reads kind first, then the engine's diagnostic and the cause,
// then the database path:
//
//	engine error: step: attempt to write a readonly database (db_path=/data/app.db)
//
// Use [errors.Is] with the Err* kinds and [errors.As] for the fields:
//
//	var dErr *sqldoc.Error
//	if errors.As(err, &dErr) {
//	    log.Printf("%s failed: %s", dErr.Path, dErr.Message)
//	}
type Error struct {
	// Kind is one of the Err* sentinels.
	Kind error

	// Path is the canonical database path, when known.
	Path string

	// Message is the engine's diagnostic text, verbatim, when available.
	Message string

	// Err is the underlying cause (for example *engine.Error or *os.PathError).
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder

	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}

	detail := e.Message
	if e.Err != nil {
		detail = e.Err.Error()

		// Engine errors already carry the message.
		if e.Message != "" && !strings.Contains(detail, e.Message) {
			detail = e.Message + ": " + detail
		}
	}

	if detail != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}

		b.WriteString(detail)
	}

	if e.Path != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}

		b.WriteString("(db_path=" + e.Path + ")")
	}

	return b.String()
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return e != nil && e.Kind != nil && target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// newError builds an *Error of the given kind. When cause is an engine
// error its diagnostic becomes the message.
func newError(kind error, path string, cause error) *Error {
	out := &Error{Kind: kind, Path: path, Err: cause}

	var engErr *engine.Error
	if errors.As(cause, &engErr) {
		out.Message = engErr.Message
	}

	return out
}

// errorf builds an *Error with a message and no cause.
func errorf(kind error, path string, message string) *Error {
	return &Error{Kind: kind, Path: path, Message: message}
}
