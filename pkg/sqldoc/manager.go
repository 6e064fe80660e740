package sqldoc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Manager maps database paths to Documents.
//
// For one Manager, every call with the same path (after making it absolute
// and cleaning it) returns the same *Document, whether it went through
// [Manager.Document] or [Manager.NewDocument]. Resolution of one path is
// atomic: concurrent callers never construct two Documents for it. Different
// paths resolve in parallel.
//
// Documents are never evicted, so a long-lived Manager grows with the
// number of distinct paths it has seen. Failed resolutions are not cached.
type Manager struct {
	opts Options

	mu      sync.Mutex
	docs    map[string]*Document
	pending map[string]*resolution
}

// resolution is an in-flight construction for one path.
type resolution struct {
	ready  chan struct{}
	create bool
	doc    *Document
	err    error
}

// NewManager returns an empty Manager whose Documents use opts.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:    opts.withDefaults(),
		docs:    make(map[string]*Document),
		pending: make(map[string]*resolution),
	}
}

// Document returns the Document for an existing file at path.
//
// Fails with [ErrNotFound] when nothing exists at path and with
// [ErrInvalidFile] when the file is not a database.
func (m *Manager) Document(ctx context.Context, path string) (*Document, error) {
	return m.resolve(ctx, path, false)
}

// NewDocument returns the Document for path, creating an empty database
// file when none exists. An existing file is opened as by
// [Manager.Document]; an existing invalid file fails with [ErrInvalidFile]
// and is not overwritten.
func (m *Manager) NewDocument(ctx context.Context, path string) (*Document, error) {
	return m.resolve(ctx, path, true)
}

// Len returns the number of cached Documents.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.docs)
}

func (m *Manager) resolve(ctx context.Context, path string, create bool) (*Document, error) {
	canonical, err := canonicalPath(path)
	if err != nil {
		return nil, newError(ErrNotFound, path, err)
	}

	for {
		m.mu.Lock()

		if doc, ok := m.docs[canonical]; ok {
			m.mu.Unlock()

			return doc, nil
		}

		if res, ok := m.pending[canonical]; ok {
			m.mu.Unlock()

			select {
			case <-res.ready:
			case <-ctx.Done():
				return nil, newError(ErrFailedToOpen, canonical, fmt.Errorf("waiting for document: %w", context.Cause(ctx)))
			}

			if res.err == nil {
				return res.doc, nil
			}

			// The same request would fail the same way. A different one (or a
			// construction cut short by its caller's context) is retried.
			if res.create == create && !isContextErr(res.err) {
				return nil, res.err
			}

			continue
		}

		res := &resolution{ready: make(chan struct{}), create: create}
		m.pending[canonical] = res
		m.mu.Unlock()

		doc, err := m.construct(ctx, canonical, create)

		m.mu.Lock()
		delete(m.pending, canonical)

		if err == nil {
			m.docs[canonical] = doc
		}

		res.doc, res.err = doc, err
		close(res.ready)
		m.mu.Unlock()

		return doc, err
	}
}

func (m *Manager) construct(ctx context.Context, path string, create bool) (*Document, error) {
	if create {
		return CreateDocument(ctx, path, m.opts)
	}

	exists, err := m.opts.FS.Exists(path)
	if err != nil {
		return nil, newError(ErrInvalidFile, path, err)
	}

	if !exists {
		return nil, errorf(ErrNotFound, path, "no such file")
	}

	doc, err := OpenDocument(ctx, path, m.opts)
	if err != nil {
		return nil, err
	}

	m.opts.Logger.Debug("opened document", slog.String("db_path", path))

	return doc, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

var defaultManager = sync.OnceValue(func() *Manager {
	return NewManager(Options{})
})

// DefaultManager returns the process-wide Manager used by [Open] and
// [Create]. It uses the zero [Options].
func DefaultManager() *Manager {
	return defaultManager()
}

// Open returns the Document for an existing file from [DefaultManager].
func Open(ctx context.Context, path string) (*Document, error) {
	return DefaultManager().Document(ctx, path)
}

// Create returns the Document for path from [DefaultManager], creating the
// file when missing.
func Create(ctx context.Context, path string) (*Document, error) {
	return DefaultManager().NewDocument(ctx, path)
}
