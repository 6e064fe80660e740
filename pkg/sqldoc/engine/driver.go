package engine

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// driverEngine adapts a database/sql/driver implementation of SQLite to
// [Engine]. Connections are opened directly through the driver, bypassing
// database/sql pooling, so each [Conn] is exactly one native connection.
type driverEngine struct {
	name string
	open func(dsn string) (driver.Conn, error)

	// classify extracts result codes from a driver error.
	classify func(err error) (code int, extended int, ok bool)

	// rawRows, when set, is called on every result set before the first
	// Next to stop the driver from converting values by declared type.
	rawRows func(rows driver.Rows)
}

func (e *driverEngine) Name() string {
	return e.name
}

func (e *driverEngine) Open(ctx context.Context, path string, mode Mode) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "open", Message: err.Error(), Err: err}
	}

	if path == "" {
		return nil, &Error{Op: "open", Code: CodeCantOpen, Message: "path is empty"}
	}

	switch mode {
	case ReadOnly, ReadWrite, ReadWriteCreate:
	default:
		return nil, &Error{Op: "open", Code: CodeMisuse, Message: "invalid open mode " + mode.String()}
	}

	conn, err := e.open(fileURI(path, mode))
	if err != nil {
		return nil, e.wrap("open", err)
	}

	return &driverConn{engine: e, conn: conn}, nil
}

// wrap converts a driver error into *Error, keeping codes when the driver
// exposes them.
func (e *driverEngine) wrap(op string, err error) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	out := &Error{Op: op, Message: err.Error(), Err: err}

	if e.classify != nil {
		if code, extended, ok := e.classify(err); ok {
			out.Code = code
			out.ExtendedCode = extended
		}
	}

	return out
}

// fileURI builds a SQLite URI filename. Only the characters SQLite treats
// specially in the path component are escaped.
func fileURI(path string, mode Mode) string {
	escaped := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(path)

	return "file:" + escaped + "?mode=" + mode.String()
}

type driverConn struct {
	engine *driverEngine
	conn   driver.Conn
}

func (c *driverConn) Prepare(ctx context.Context, query string) (Stmt, error) {
	if !hasStatement(query) {
		return nil, nil
	}

	var (
		stmt driver.Stmt
		err  error
	)

	if pc, ok := c.conn.(driver.ConnPrepareContext); ok {
		stmt, err = pc.PrepareContext(ctx, query)
	} else {
		stmt, err = c.conn.Prepare(query)
	}

	if err != nil {
		if stmt != nil {
			_ = stmt.Close()
		}

		return nil, c.engine.wrap("prepare", err)
	}

	return &driverStmt{engine: c.engine, stmt: stmt}, nil
}

// hasStatement reports whether query holds anything besides whitespace,
// semicolons and comments. SQLite compiles such text to no statement.
func hasStatement(query string) bool {
	for i := 0; i < len(query); i++ {
		switch {
		case strings.ContainsRune(" \t\n\r\f\v;", rune(query[i])):
		case strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				return false
			}

			i += end
		case strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return false
			}

			i += end + 3
		default:
			return true
		}
	}

	return false
}

func (c *driverConn) Close() error {
	err := c.conn.Close()
	if err != nil {
		return c.engine.wrap("close", err)
	}

	return nil
}

type driverStmt struct {
	engine *driverEngine
	stmt   driver.Stmt
	args   []driver.NamedValue

	rows      driver.Rows
	cols      []string
	row       []driver.Value
	done      bool
	finalized bool
}

func (s *driverStmt) Reset() error {
	if s.finalized {
		return &Error{Op: "reset", Code: CodeMisuse, Message: "statement is finalized"}
	}

	err := s.closeRows()
	if err != nil {
		return s.engine.wrap("reset", err)
	}

	return nil
}

func (s *driverStmt) ParamCount() int {
	return s.stmt.NumInput()
}

func (s *driverStmt) BindInt64(index int, v int64) error {
	return s.bind(index, v)
}

func (s *driverStmt) BindDouble(index int, v float64) error {
	return s.bind(index, v)
}

func (s *driverStmt) BindText(index int, v string) error {
	return s.bind(index, v)
}

func (s *driverStmt) bind(index int, v driver.Value) error {
	if s.finalized || s.rows != nil {
		return &Error{Op: "bind", Code: CodeMisuse, Message: "bad parameter or other API misuse"}
	}

	if n := s.stmt.NumInput(); index < 1 || (n >= 0 && index > n) {
		return &Error{Op: "bind", Code: CodeRange, Message: "column index out of range"}
	}

	for i := range s.args {
		if s.args[i].Ordinal == index {
			s.args[i].Value = v

			return nil
		}
	}

	s.args = append(s.args, driver.NamedValue{Ordinal: index, Value: v})

	return nil
}

func (s *driverStmt) Step(ctx context.Context) (bool, error) {
	if s.finalized {
		return false, &Error{Op: "step", Code: CodeMisuse, Message: "statement is finalized"}
	}

	if s.rows == nil {
		rows, err := s.query(ctx)
		if err != nil {
			return false, s.engine.wrap("step", err)
		}

		if s.engine.rawRows != nil {
			s.engine.rawRows(rows)
		}

		s.rows = rows
		s.cols = rows.Columns()
		s.row = make([]driver.Value, len(s.cols))
		s.done = false
	}

	if s.done {
		return false, nil
	}

	err := s.rows.Next(s.row)
	if errors.Is(err, io.EOF) {
		s.done = true

		return false, nil
	}

	if err != nil {
		return false, s.engine.wrap("step", err)
	}

	return true, nil
}

func (s *driverStmt) query(ctx context.Context) (driver.Rows, error) {
	slices.SortFunc(s.args, func(a, b driver.NamedValue) int { return a.Ordinal - b.Ordinal })

	if qc, ok := s.stmt.(driver.StmtQueryContext); ok {
		return qc.QueryContext(ctx, s.args)
	}

	values := make([]driver.Value, len(s.args))
	for i, arg := range s.args {
		values[i] = arg.Value
	}

	//nolint:staticcheck // fallback for drivers without StmtQueryContext
	return s.stmt.Query(values)
}

func (s *driverStmt) closeRows() error {
	if s.rows == nil {
		return nil
	}

	err := s.rows.Close()
	s.rows = nil
	s.cols = nil
	s.row = nil
	s.done = false

	return err
}

func (s *driverStmt) Finalize() error {
	if s.finalized {
		return nil
	}

	s.finalized = true

	rowsErr := s.closeRows()
	stmtErr := s.stmt.Close()

	err := errors.Join(rowsErr, stmtErr)
	if err != nil {
		return s.engine.wrap("finalize", err)
	}

	return nil
}

func (s *driverStmt) ColumnCount() int {
	return len(s.cols)
}

func (s *driverStmt) ColumnName(i int) string {
	if i < 0 || i >= len(s.cols) {
		return ""
	}

	return s.cols[i]
}

func (s *driverStmt) value(i int) driver.Value {
	if i < 0 || i >= len(s.row) {
		return nil
	}

	return s.row[i]
}

// ColumnType derives the storage class from the Go type the driver produced.
func (s *driverStmt) ColumnType(i int) StorageClass {
	if i < 0 || i >= len(s.cols) {
		return Unknown
	}

	switch s.row[i].(type) {
	case nil:
		return Null
	case int64:
		return Integer
	case float64:
		return Float
	case string:
		return Text
	case []byte:
		return Blob
	default:
		return Unknown
	}
}

func (s *driverStmt) ColumnInt64(i int) int64 {
	switch v := s.value(i).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func (s *driverStmt) ColumnDouble(i int) float64 {
	switch v := s.value(i).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func (s *driverStmt) ColumnText(i int) []byte {
	switch v := s.value(i).(type) {
	case string:
		return []byte(v)
	case []byte:
		return slices.Clone(v)
	case int64, float64:
		return fmt.Append(nil, v)
	default:
		return nil
	}
}

func (s *driverStmt) ColumnBlob(i int) []byte {
	switch v := s.value(i).(type) {
	case []byte:
		return slices.Clone(v)
	case string:
		return []byte(v)
	default:
		return nil
	}
}

var (
	_ Engine = (*driverEngine)(nil)
	_ Conn   = (*driverConn)(nil)
	_ Stmt   = (*driverStmt)(nil)
)
