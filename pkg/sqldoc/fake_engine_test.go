package sqldoc_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calvinalkan/sqldoc/pkg/sqldoc/engine"
)

// -----------------------------------------------------------------------------
// fakeEngine: scripted engine.Engine that records the lifecycle calls it sees
// -----------------------------------------------------------------------------

type fakeColumn struct {
	name  string
	class engine.StorageClass
	i     int64
	f     float64
	text  string
	blob  []byte
}

type fakeEngine struct {
	// Scripted behavior. Set before use.
	openErr       error
	prepareErr    error
	prepareHandle bool // return a handle together with prepareErr
	noStatement   bool // compile to no statement, without error
	resetErr      error
	bindErr       error
	stepErr       error
	finalizeErr   error
	closeErr      error
	paramCount    int
	rows          [][]fakeColumn
	stepDelay     time.Duration
	onOpen        func(mode engine.Mode)

	mu        sync.Mutex
	opens     []engine.Mode
	closes    int
	prepared  int
	finalized int
	bound     map[int]any

	active    atomic.Int32
	maxActive atomic.Int32
}

var _ engine.Engine = (*fakeEngine)(nil)

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Open(_ context.Context, _ string, mode engine.Mode) (engine.Conn, error) {
	if e.onOpen != nil {
		e.onOpen(mode)
	}

	e.mu.Lock()
	e.opens = append(e.opens, mode)
	e.mu.Unlock()

	if e.openErr != nil {
		return nil, e.openErr
	}

	n := e.active.Add(1)
	for {
		prev := e.maxActive.Load()
		if n <= prev || e.maxActive.CompareAndSwap(prev, n) {
			break
		}
	}

	return &fakeConn{engine: e}, nil
}

// balanced reports whether every opened connection was closed and every
// prepared statement finalized.
func (e *fakeEngine) balanced() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	opened := len(e.opens)
	if e.openErr != nil {
		opened = 0
	}

	return opened == e.closes && e.prepared == e.finalized
}

func (e *fakeEngine) counts() (opens, closes, prepared, finalized int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.opens), e.closes, e.prepared, e.finalized
}

type fakeConn struct {
	engine *fakeEngine
	closed bool
}

func (c *fakeConn) Prepare(_ context.Context, _ string) (engine.Stmt, error) {
	e := c.engine

	if e.prepareErr != nil && !e.prepareHandle {
		return nil, e.prepareErr
	}

	if e.noStatement {
		return nil, nil
	}

	e.mu.Lock()
	e.prepared++
	e.mu.Unlock()

	return &fakeStmt{engine: e, row: -1}, e.prepareErr
}

func (c *fakeConn) Close() error {
	if c.closed {
		return nil
	}

	c.closed = true

	e := c.engine
	e.active.Add(-1)

	e.mu.Lock()
	e.closes++
	e.mu.Unlock()

	return e.closeErr
}

type fakeStmt struct {
	engine    *fakeEngine
	row       int
	finalized bool
}

func (s *fakeStmt) Reset() error {
	s.row = -1

	return s.engine.resetErr
}

func (s *fakeStmt) ParamCount() int { return s.engine.paramCount }

func (s *fakeStmt) BindInt64(index int, v int64) error   { return s.bind(index, v) }
func (s *fakeStmt) BindDouble(index int, v float64) error { return s.bind(index, v) }
func (s *fakeStmt) BindText(index int, v string) error    { return s.bind(index, v) }

func (s *fakeStmt) bind(index int, v any) error {
	e := s.engine

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.bound == nil {
		e.bound = make(map[int]any)
	}

	e.bound[index] = v

	return e.bindErr
}

func (s *fakeStmt) Step(ctx context.Context) (bool, error) {
	e := s.engine

	if e.stepDelay > 0 {
		select {
		case <-time.After(e.stepDelay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	if e.stepErr != nil {
		return false, e.stepErr
	}

	s.row++

	return s.row < len(e.rows), nil
}

func (s *fakeStmt) Finalize() error {
	if s.finalized {
		return nil
	}

	s.finalized = true

	e := s.engine

	e.mu.Lock()
	e.finalized++
	e.mu.Unlock()

	return e.finalizeErr
}

func (s *fakeStmt) cur() []fakeColumn { return s.engine.rows[s.row] }

func (s *fakeStmt) ColumnCount() int                     { return len(s.cur()) }
func (s *fakeStmt) ColumnName(i int) string              { return s.cur()[i].name }
func (s *fakeStmt) ColumnType(i int) engine.StorageClass { return s.cur()[i].class }
func (s *fakeStmt) ColumnInt64(i int) int64              { return s.cur()[i].i }
func (s *fakeStmt) ColumnDouble(i int) float64           { return s.cur()[i].f }
func (s *fakeStmt) ColumnText(i int) []byte              { return []byte(s.cur()[i].text) }
func (s *fakeStmt) ColumnBlob(i int) []byte              { return s.cur()[i].blob }

// fakeCursor is a single-row engine.Cursor.
type fakeCursor []fakeColumn

func (c fakeCursor) ColumnCount() int                     { return len(c) }
func (c fakeCursor) ColumnName(i int) string              { return c[i].name }
func (c fakeCursor) ColumnType(i int) engine.StorageClass { return c[i].class }
func (c fakeCursor) ColumnInt64(i int) int64              { return c[i].i }
func (c fakeCursor) ColumnDouble(i int) float64           { return c[i].f }
func (c fakeCursor) ColumnText(i int) []byte              { return []byte(c[i].text) }
func (c fakeCursor) ColumnBlob(i int) []byte              { return c[i].blob }
