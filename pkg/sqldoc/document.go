package sqldoc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/calvinalkan/sqldoc/pkg/fs"
	"github.com/calvinalkan/sqldoc/pkg/sqldoc/engine"
)

// Document owns access to one database file.
//
// A Document holds no connection. Every [Document.Execute] opens its own
// connection, runs one statement and closes it. Calls on the same Document
// run one at a time in arrival order; calls on different Documents run in
// parallel.
//
// Documents are safe for concurrent use. Use a [Manager] to get exactly one
// Document per path.
type Document struct {
	path   string
	opts   Options
	locker *fs.Locker

	// slot serializes Execute: a send acquires, a receive releases.
	slot chan struct{}
}

// OpenDocument returns a Document for an existing file at path.
//
// The file must be empty or start with the SQLite header; anything else,
// including a missing file, fails with [ErrInvalidFile]. No connection is
// opened.
func OpenDocument(ctx context.Context, path string, opts Options) (*Document, error) {
	doc, err := newDocument(path, opts)
	if err != nil {
		return nil, err
	}

	unlock, err := doc.lockFile(ctx, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = validateFile(doc.opts.FS, doc.path)
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// CreateDocument returns a Document for path, creating an empty database
// file when none exists.
//
// If a file already exists it is validated like [OpenDocument]: a valid
// file is opened, an invalid one fails with [ErrInvalidFile] and is left
// untouched. Creation fails with [ErrFailedToOpen] when the engine cannot
// create the file (for example when the parent directory is missing).
func CreateDocument(ctx context.Context, path string, opts Options) (*Document, error) {
	doc, err := newDocument(path, opts)
	if err != nil {
		return nil, err
	}

	unlock, err := doc.lockFile(ctx, true)
	if err != nil {
		return nil, err
	}
	defer unlock()

	exists, err := doc.opts.FS.Exists(doc.path)
	if err != nil {
		return nil, newError(ErrInvalidFile, doc.path, err)
	}

	if exists {
		err = validateFile(doc.opts.FS, doc.path)
		if err != nil {
			return nil, err
		}

		return doc, nil
	}

	conn, err := doc.opts.Engine.Open(ctx, doc.path, engine.ReadWriteCreate)
	if err != nil {
		return nil, newError(ErrFailedToOpen, doc.path, err)
	}

	err = conn.Close()
	if err != nil {
		return nil, newError(ErrFailedToOpen, doc.path, err)
	}

	doc.opts.Logger.Debug("created database", slog.String("db_path", doc.path))

	return doc, nil
}

func newDocument(path string, opts Options) (*Document, error) {
	canonical, err := canonicalPath(path)
	if err != nil {
		return nil, newError(ErrInvalidFile, path, err)
	}

	opts = opts.withDefaults()

	doc := &Document{
		path: canonical,
		opts: opts,
		slot: make(chan struct{}, 1),
	}

	if opts.LockFiles {
		doc.locker = fs.NewLocker(opts.FS)
	}

	return doc, nil
}

// canonicalPath returns the absolute, cleaned form of path.
func canonicalPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is empty")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	return abs, nil
}

// Path returns the canonical absolute path of the database file.
func (d *Document) Path() string {
	return d.path
}

// Execute runs q and returns the decoded rows in the order the engine
// produced them. Zero rows yield an empty, non-nil slice.
//
// A read-only q uses a read-only connection, so a statement that writes
// fails with [ErrEngine]. Execute never creates the database file.
//
// ctx bounds the wait for earlier calls on this Document and is passed to
// the engine. Errors are *[Error] values matching one of the Err* kinds.
func (d *Document) Execute(ctx context.Context, q Query) ([]Record, error) {
	err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer d.release()

	unlock, err := d.lockFile(ctx, q.Mutable())
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()

	records, err := d.execute(ctx, q)

	attrs := []slog.Attr{
		slog.String("db_path", d.path),
		slog.Bool("mutable", q.Mutable()),
		slog.Int("rows", len(records)),
		slog.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	d.opts.Logger.LogAttrs(ctx, slog.LevelDebug, "query", attrs...)

	return records, err
}

func (d *Document) execute(ctx context.Context, q Query) (records []Record, err error) {
	mode := engine.ReadOnly
	if q.Mutable() {
		mode = engine.ReadWrite
	}

	conn, err := d.opts.Engine.Open(ctx, d.path, mode)
	if err != nil {
		return nil, newError(ErrFailedToOpen, d.path, err)
	}

	defer func() {
		closeErr := conn.Close()
		if closeErr != nil && err == nil {
			records, err = nil, newError(ErrEngine, d.path, closeErr)
		}
	}()

	stmt, err := conn.Prepare(ctx, q.SQL())
	if err != nil {
		if stmt == nil {
			return nil, newError(ErrStatement, d.path, err)
		}

		_ = stmt.Finalize()

		return nil, newError(ErrEngine, d.path, err)
	}

	if stmt == nil {
		return nil, errorf(ErrStatement, d.path, "no statement in SQL text")
	}

	defer func() {
		finErr := stmt.Finalize()
		if finErr != nil && err == nil {
			records, err = nil, newError(ErrEngine, d.path, finErr)
		}
	}()

	err = stmt.Reset()
	if err != nil {
		return nil, newError(ErrEngine, d.path, err)
	}

	if q.HasParams() {
		err = d.bind(stmt, q.params)
		if err != nil {
			return nil, err
		}
	}

	decode := DecodeOptions{Strict: d.opts.StrictDecode, Logger: d.opts.Logger}
	records = make([]Record, 0)

	for {
		row, stepErr := stmt.Step(ctx)
		if stepErr != nil {
			return nil, newError(ErrEngine, d.path, stepErr)
		}

		if !row {
			break
		}

		rec, decErr := DecodeRecord(stmt, decode)
		if decErr != nil {
			var dErr *Error
			if errors.As(decErr, &dErr) {
				dErr.Path = d.path
			}

			return nil, decErr
		}

		records = append(records, rec)
	}

	return records, nil
}

// bind binds params by 1-based position, stopping at the first failure.
func (d *Document) bind(stmt engine.Stmt, params []Value) error {
	if n := stmt.ParamCount(); n >= 0 && n != len(params) {
		return errorf(ErrBinding, d.path, fmt.Sprintf("statement expects %d parameters, got %d", n, len(params)))
	}

	for i, p := range params {
		index := i + 1

		var err error

		switch p.Kind() {
		case KindInteger:
			err = stmt.BindInt64(index, p.Int64())
		case KindFloat:
			err = stmt.BindDouble(index, p.Float64())
		case KindText:
			err = stmt.BindText(index, p.Str())
		default:
			return errorf(ErrBinding, d.path, fmt.Sprintf("parameter %d: cannot bind %s value", index, p.Kind()))
		}

		if err != nil {
			return newError(ErrBinding, d.path, fmt.Errorf("parameter %d: %w", index, err))
		}
	}

	return nil
}

func (d *Document) acquire(ctx context.Context) error {
	select {
	case d.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return newError(ErrFailedToOpen, d.path, fmt.Errorf("waiting for document: %w", context.Cause(ctx)))
	}
}

func (d *Document) release() {
	<-d.slot
}

// lockFile takes the cross-process lock when enabled. The returned func
// releases it and is never nil.
func (d *Document) lockFile(ctx context.Context, exclusive bool) (func(), error) {
	if d.locker == nil {
		return func() {}, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, d.opts.LockTimeout)
	defer cancel()

	lockPath := d.path + ".lock"

	var (
		lock *fs.Lock
		err  error
	)

	if exclusive {
		lock, err = d.locker.LockContext(lockCtx, lockPath)
	} else {
		lock, err = d.locker.RLockContext(lockCtx, lockPath)
	}

	if err != nil {
		return nil, newError(ErrFailedToOpen, d.path, fmt.Errorf("lock %s: %w", lockPath, err))
	}

	return func() {
		closeErr := lock.Close()
		if closeErr != nil {
			d.opts.Logger.Warn("releasing lock file", slog.String("lock_path", lockPath), slog.String("error", closeErr.Error()))
		}
	}, nil
}
