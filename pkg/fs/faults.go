package fs

import (
	"errors"
	iofs "io/fs"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// Fault operations accepted by [Faults.Fail].
const (
	OpOpen     = "open"
	OpOpenFile = "openfile"
	OpStat     = "stat"
	OpExists   = "exists"
	OpMkdirAll = "mkdir"
	OpRead     = "read"
	OpFstat    = "fstat"
)

// Faults wraps an [FS] and fails chosen operations with OS-style errors.
//
// Injected errors are *os.PathError values carrying a syscall.Errno, so
// errors.Is(err, os.ErrPermission) and friends behave as with real
// failures. [IsInjected] tells them apart from real OS errors.
//
// Faults is safe for concurrent use.
type Faults struct {
	fs FS

	mu      sync.Mutex
	rules   map[faultKey]syscall.Errno
	partial bool

	injected atomic.Int64
}

type faultKey struct {
	op   string
	path string
}

// NewFaults wraps fs. Panics if fs is nil.
func NewFaults(fs FS) *Faults {
	if fs == nil {
		panic("fs is nil")
	}

	return &Faults{fs: fs, rules: make(map[faultKey]syscall.Errno)}
}

// Fail makes op on path fail with errno. An empty path matches every path.
// Rules stay until [Faults.Clear].
func (f *Faults) Fail(op, path string, errno syscall.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rules[faultKey{op: op, path: path}] = errno
}

// SetPartialReads makes every read return at most one byte, like a slow
// pipe. Callers that loop until they have enough data are unaffected.
func (f *Faults) SetPartialReads(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.partial = on
}

// Clear removes all rules and disables partial reads.
func (f *Faults) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	clear(f.rules)
	f.partial = false
}

// Injected returns how many errors have been injected so far.
func (f *Faults) Injected() int64 {
	return f.injected.Load()
}

func (f *Faults) check(op, path string) error {
	f.mu.Lock()

	errno, ok := f.rules[faultKey{op: op, path: path}]
	if !ok {
		errno, ok = f.rules[faultKey{op: op}]
	}

	f.mu.Unlock()

	if !ok {
		return nil
	}

	f.injected.Add(1)

	return injectedPathError(op, path, errno)
}

func (f *Faults) partialReads() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.partial
}

func (f *Faults) Open(path string) (File, error) {
	if err := f.check(OpOpen, path); err != nil {
		return nil, err
	}

	file, err := f.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return &faultyFile{File: file, faults: f, path: path}, nil
}

func (f *Faults) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := f.check(OpOpenFile, path); err != nil {
		return nil, err
	}

	file, err := f.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &faultyFile{File: file, faults: f, path: path}, nil
}

func (f *Faults) Stat(path string) (os.FileInfo, error) {
	if err := f.check(OpStat, path); err != nil {
		return nil, err
	}

	return f.fs.Stat(path)
}

func (f *Faults) Exists(path string) (bool, error) {
	if err := f.check(OpExists, path); err != nil {
		return false, err
	}

	return f.fs.Exists(path)
}

func (f *Faults) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check(OpMkdirAll, path); err != nil {
		return err
	}

	return f.fs.MkdirAll(path, perm)
}

type faultyFile struct {
	File

	faults *Faults
	path   string
}

func (ff *faultyFile) Read(p []byte) (int, error) {
	if err := ff.faults.check(OpRead, ff.path); err != nil {
		return 0, err
	}

	if len(p) > 1 && ff.faults.partialReads() {
		return ff.File.Read(p[:1])
	}

	return ff.File.Read(p)
}

func (ff *faultyFile) Stat() (os.FileInfo, error) {
	if err := ff.faults.check(OpFstat, ff.path); err != nil {
		return nil, err
	}

	return ff.File.Stat()
}

// IsInjected reports whether err (or any wrapped error) was injected by
// [Faults]. Returns false if err is nil.
func IsInjected(err error) bool {
	var pathErr *iofs.PathError
	if !errors.As(err, &pathErr) {
		return false
	}

	_, ok := injectedPathErrors.Load(pathErr)

	return ok
}

var injectedPathErrors sync.Map // map[*fs.PathError]struct{}

func injectedPathError(op, path string, errno syscall.Errno) error {
	pe := &iofs.PathError{Op: op, Path: path, Err: errno}
	injectedPathErrors.Store(pe, struct{}{})

	return pe
}

var (
	_ FS   = (*Faults)(nil)
	_ File = (*faultyFile)(nil)
)
