package engine

import (
	"context"
	"slices"
	"sync"
	"unsafe"

	"modernc.org/libc"
	"modernc.org/libc/sys/types"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Modernc returns an [Engine] backed by modernc.org/sqlite, a cgo-free
// translation of SQLite.
//
// It drives the translated C API directly instead of the database/sql
// driver, so column values are read with their storage class and bytes
// exactly as stored, whatever the declared column type.
func Modernc() Engine {
	return moderncEngine{}
}

type moderncEngine struct{}

func (moderncEngine) Name() string {
	return "modernc"
}

func (moderncEngine) Open(ctx context.Context, path string, mode Mode) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "open", Message: err.Error(), Err: err}
	}

	if path == "" {
		return nil, &Error{Op: "open", Code: CodeCantOpen, Message: "path is empty"}
	}

	flags := int32(sqlite3lib.SQLITE_OPEN_FULLMUTEX)

	switch mode {
	case ReadOnly:
		flags |= sqlite3lib.SQLITE_OPEN_READONLY
	case ReadWrite:
		flags |= sqlite3lib.SQLITE_OPEN_READWRITE
	case ReadWriteCreate:
		flags |= sqlite3lib.SQLITE_OPEN_READWRITE | sqlite3lib.SQLITE_OPEN_CREATE
	default:
		return nil, &Error{Op: "open", Code: CodeMisuse, Message: "invalid open mode " + mode.String()}
	}

	c := &moderncConn{tls: libc.NewTLS()}

	rc, err := c.open(path, flags)
	if err != nil {
		_ = c.Close()

		return nil, err
	}

	if rc != sqlite3lib.SQLITE_OK {
		openErr := c.errorFor("open", rc)
		_ = c.Close()

		return nil, openErr
	}

	sqlite3lib.Xsqlite3_extended_result_codes(c.tls, c.db, 1)

	return c, nil
}

// moderncConn is one sqlite3* handle with its own libc thread state.
type moderncConn struct {
	// mu guards db and tls against a context interrupt racing Close.
	mu  sync.Mutex
	db  uintptr
	tls *libc.TLS
}

// open calls sqlite3_open_v2. SQLite hands out a handle even when the open
// fails; it is stored so the caller can read the message and close it.
func (c *moderncConn) open(path string, flags int32) (int32, error) {
	name, err := libc.CString(path)
	if err != nil {
		return 0, &Error{Op: "open", Code: CodeNoMem, Message: err.Error(), Err: err}
	}
	defer c.free(name)

	ppDB, err := c.malloc(int(unsafe.Sizeof(uintptr(0))))
	if err != nil {
		return 0, err
	}
	defer c.free(ppDB)

	*(*uintptr)(unsafe.Pointer(ppDB)) = 0

	rc := sqlite3lib.Xsqlite3_open_v2(c.tls, name, ppDB, flags, 0)
	c.db = *(*uintptr)(unsafe.Pointer(ppDB))

	return rc, nil
}

func (c *moderncConn) malloc(n int) (uintptr, error) {
	p := libc.Xmalloc(c.tls, types.Size_t(n))
	if p == 0 {
		return 0, &Error{Op: "malloc", Code: CodeNoMem, Message: "out of memory"}
	}

	return p, nil
}

func (c *moderncConn) free(p uintptr) {
	if p != 0 {
		libc.Xfree(c.tls, p)
	}
}

// errorFor builds an *Error from a result code and the handle's message.
func (c *moderncConn) errorFor(op string, rc int32) *Error {
	out := &Error{Op: op, Code: int(rc & 0xff), ExtendedCode: int(rc)}

	if c.db != 0 {
		out.ExtendedCode = int(sqlite3lib.Xsqlite3_extended_errcode(c.tls, c.db))
		out.Message = libc.GoString(sqlite3lib.Xsqlite3_errmsg(c.tls, c.db))
	}

	if out.Message == "" {
		out.Message = libc.GoString(sqlite3lib.Xsqlite3_errstr(c.tls, rc))
	}

	return out
}

func (c *moderncConn) interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != 0 {
		sqlite3lib.Xsqlite3_interrupt(c.tls, c.db)
	}
}

func (c *moderncConn) Prepare(ctx context.Context, query string) (Stmt, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "prepare", Message: err.Error(), Err: err}
	}

	if c.db == 0 {
		return nil, &Error{Op: "prepare", Code: CodeMisuse, Message: "connection is closed"}
	}

	sql, err := libc.CString(query)
	if err != nil {
		return nil, &Error{Op: "prepare", Code: CodeNoMem, Message: err.Error(), Err: err}
	}
	defer c.free(sql)

	ppStmt, err := c.malloc(int(unsafe.Sizeof(uintptr(0))))
	if err != nil {
		return nil, err
	}
	defer c.free(ppStmt)

	*(*uintptr)(unsafe.Pointer(ppStmt)) = 0

	rc := sqlite3lib.Xsqlite3_prepare_v2(c.tls, c.db, sql, -1, ppStmt, 0)
	handle := *(*uintptr)(unsafe.Pointer(ppStmt))

	if rc != sqlite3lib.SQLITE_OK {
		prepErr := c.errorFor("prepare", rc)
		if handle == 0 {
			return nil, prepErr
		}

		return &moderncStmt{conn: c, handle: handle}, prepErr
	}

	// Empty or comment-only text compiles to no statement.
	if handle == 0 {
		return nil, nil
	}

	return &moderncStmt{conn: c, handle: handle}, nil
}

func (c *moderncConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tls == nil {
		return nil
	}

	if c.db != 0 {
		rc := sqlite3lib.Xsqlite3_close_v2(c.tls, c.db)
		if rc != sqlite3lib.SQLITE_OK {
			return c.errorFor("close", rc)
		}

		c.db = 0
	}

	c.tls.Close()
	c.tls = nil

	return nil
}

type moderncStmt struct {
	conn   *moderncConn
	handle uintptr

	hasRow bool
	done   bool

	// stepFailed suppresses the repeat of a step error from Finalize.
	stepFailed bool
}

func (s *moderncStmt) tls() *libc.TLS {
	return s.conn.tls
}

func (s *moderncStmt) Reset() error {
	if s.handle == 0 {
		return &Error{Op: "reset", Code: CodeMisuse, Message: "statement is finalized"}
	}

	s.hasRow, s.done = false, false

	rc := sqlite3lib.Xsqlite3_reset(s.tls(), s.handle)
	if rc != sqlite3lib.SQLITE_OK && !s.stepFailed {
		return s.conn.errorFor("reset", rc)
	}

	s.stepFailed = false

	return nil
}

func (s *moderncStmt) ParamCount() int {
	if s.handle == 0 {
		return 0
	}

	return int(sqlite3lib.Xsqlite3_bind_parameter_count(s.tls(), s.handle))
}

func (s *moderncStmt) bindResult(rc int32) error {
	if rc != sqlite3lib.SQLITE_OK {
		return s.conn.errorFor("bind", rc)
	}

	return nil
}

func (s *moderncStmt) BindInt64(index int, v int64) error {
	if s.handle == 0 {
		return &Error{Op: "bind", Code: CodeMisuse, Message: "statement is finalized"}
	}

	return s.bindResult(sqlite3lib.Xsqlite3_bind_int64(s.tls(), s.handle, int32(index), v))
}

func (s *moderncStmt) BindDouble(index int, v float64) error {
	if s.handle == 0 {
		return &Error{Op: "bind", Code: CodeMisuse, Message: "statement is finalized"}
	}

	return s.bindResult(sqlite3lib.Xsqlite3_bind_double(s.tls(), s.handle, int32(index), v))
}

// transient tells SQLite to copy bound text before the call returns.
var transient = ^uintptr(0)

func (s *moderncStmt) BindText(index int, v string) error {
	if s.handle == 0 {
		return &Error{Op: "bind", Code: CodeMisuse, Message: "statement is finalized"}
	}

	p, err := libc.CString(v)
	if err != nil {
		return &Error{Op: "bind", Code: CodeNoMem, Message: err.Error(), Err: err}
	}
	defer s.conn.free(p)

	return s.bindResult(sqlite3lib.Xsqlite3_bind_text(s.tls(), s.handle, int32(index), p, int32(len(v)), transient))
}

func (s *moderncStmt) Step(ctx context.Context) (bool, error) {
	if s.handle == 0 {
		return false, &Error{Op: "step", Code: CodeMisuse, Message: "statement is finalized"}
	}

	if s.done {
		return false, nil
	}

	if err := ctx.Err(); err != nil {
		return false, &Error{Op: "step", Message: err.Error(), Err: err}
	}

	stop := context.AfterFunc(ctx, s.conn.interrupt)
	rc := sqlite3lib.Xsqlite3_step(s.tls(), s.handle)
	stop()

	switch rc {
	case sqlite3lib.SQLITE_ROW:
		s.hasRow = true

		return true, nil
	case sqlite3lib.SQLITE_DONE:
		s.hasRow, s.done = false, true

		return false, nil
	}

	s.hasRow = false
	s.stepFailed = true

	stepErr := s.conn.errorFor("step", rc)
	if rc&0xff == sqlite3lib.SQLITE_INTERRUPT && ctx.Err() != nil {
		stepErr.Err = ctx.Err()
	}

	return false, stepErr
}

func (s *moderncStmt) Finalize() error {
	if s.handle == 0 {
		return nil
	}

	rc := sqlite3lib.Xsqlite3_finalize(s.tls(), s.handle)
	s.handle = 0
	s.hasRow = false

	// Finalize repeats the code of a failed step; that error was already
	// returned by Step.
	if rc != sqlite3lib.SQLITE_OK && !s.stepFailed {
		return s.conn.errorFor("finalize", rc)
	}

	return nil
}

func (s *moderncStmt) ColumnCount() int {
	if s.handle == 0 {
		return 0
	}

	return int(sqlite3lib.Xsqlite3_column_count(s.tls(), s.handle))
}

func (s *moderncStmt) validColumn(i int) bool {
	return s.handle != 0 && i >= 0 && i < s.ColumnCount()
}

func (s *moderncStmt) ColumnName(i int) string {
	if !s.validColumn(i) {
		return ""
	}

	return libc.GoString(sqlite3lib.Xsqlite3_column_name(s.tls(), s.handle, int32(i)))
}

func (s *moderncStmt) ColumnType(i int) StorageClass {
	if !s.hasRow || !s.validColumn(i) {
		return Unknown
	}

	switch sqlite3lib.Xsqlite3_column_type(s.tls(), s.handle, int32(i)) {
	case sqlite3lib.SQLITE_INTEGER:
		return Integer
	case sqlite3lib.SQLITE_FLOAT:
		return Float
	case sqlite3lib.SQLITE_TEXT:
		return Text
	case sqlite3lib.SQLITE_BLOB:
		return Blob
	case sqlite3lib.SQLITE_NULL:
		return Null
	default:
		return Unknown
	}
}

func (s *moderncStmt) ColumnInt64(i int) int64 {
	if !s.hasRow || !s.validColumn(i) {
		return 0
	}

	return sqlite3lib.Xsqlite3_column_int64(s.tls(), s.handle, int32(i))
}

func (s *moderncStmt) ColumnDouble(i int) float64 {
	if !s.hasRow || !s.validColumn(i) {
		return 0
	}

	return sqlite3lib.Xsqlite3_column_double(s.tls(), s.handle, int32(i))
}

// columnBytes copies n bytes at p. The pointer is only valid until the next
// step, so the result never aliases engine memory.
func columnBytes(p uintptr, n int32) []byte {
	if p == 0 || n <= 0 {
		return []byte{}
	}

	return slices.Clone(libc.GoBytes(p, int(n)))
}

func (s *moderncStmt) ColumnText(i int) []byte {
	if !s.hasRow || !s.validColumn(i) {
		return nil
	}

	p := sqlite3lib.Xsqlite3_column_text(s.tls(), s.handle, int32(i))
	n := sqlite3lib.Xsqlite3_column_bytes(s.tls(), s.handle, int32(i))

	return columnBytes(p, n)
}

func (s *moderncStmt) ColumnBlob(i int) []byte {
	if !s.hasRow || !s.validColumn(i) {
		return nil
	}

	p := sqlite3lib.Xsqlite3_column_blob(s.tls(), s.handle, int32(i))
	n := sqlite3lib.Xsqlite3_column_bytes(s.tls(), s.handle, int32(i))

	return columnBytes(p, n)
}

var (
	_ Engine = moderncEngine{}
	_ Conn   = (*moderncConn)(nil)
	_ Stmt   = (*moderncStmt)(nil)
)
