package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrWouldBlock is returned when a lock cannot be acquired without waiting.
	//
	// Returned by [Locker.TryLock] when the lock is held elsewhere, and by the
	// context-bound methods when the context ends before the lock is acquired.
	ErrWouldBlock = errors.New("lock would block")

	// errInodeMismatch means the lock file was replaced between open and flock.
	// Callers retry.
	errInodeMismatch = errors.New("inode mismatch")
)

// Locker provides advisory file locking using flock(2).
//
// flock applies to an inode, not a pathname, so all cooperating processes
// must lock the same stable lock file (sqldoc uses "<db path>.lock"). Do not
// replace or unlink the lock file while locks may be held.
//
// Exclusive locks open the file with O_RDWR; shared locks with O_RDONLY.
//
// This implementation is Unix-only. Locker is safe for concurrent use as long
// as the underlying [FS] is.
type Locker struct {
	fs    FS
	flock func(fd int, how int) error
}

// NewLocker creates a Locker that uses the given filesystem for file operations.
// Panics if fs is nil.
func NewLocker(fs FS) *Locker {
	if fs == nil {
		panic("fs is nil")
	}

	return &Locker{
		fs:    fs,
		flock: unix.Flock,
	}
}

// Lock represents a held file lock. Call [Lock.Close] to release it.
type Lock struct {
	mu    sync.Mutex
	file  File
	flock func(fd int, how int) error
}

// Close releases the lock and closes the underlying file descriptor.
//
// Idempotent: subsequent calls return nil. If both unlocking and closing
// fail, the returned error wraps both.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	unlockErr := flockRetryEINTR(lk.flock, int(lk.file.Fd()), unix.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("closing lock fd: %w", closeErr)
	}

	return errors.Join(unlockErr, closeErr)
}

// LockContext acquires an exclusive lock on path, polling until ctx ends.
//
// The lock file and its parent directories are created when missing.
// Returns an error satisfying errors.Is(err, [ErrWouldBlock]) when ctx ends
// first.
func (l *Locker) LockContext(ctx context.Context, path string) (*Lock, error) {
	return l.lockPolling(ctx, path, unix.LOCK_EX, false)
}

// RLockContext acquires a shared lock on path, polling until ctx ends.
//
// Multiple holders may share the lock; it excludes exclusive holders.
// See [Locker.LockContext].
func (l *Locker) RLockContext(ctx context.Context, path string) (*Lock, error) {
	return l.lockPolling(ctx, path, unix.LOCK_SH, false)
}

// TryLock attempts to acquire an exclusive lock without waiting.
func (l *Locker) TryLock(path string) (*Lock, error) {
	return l.lockPolling(context.Background(), path, unix.LOCK_EX, true)
}

const (
	lockFilePerm   = 0o600
	lockDirPerm    = 0o755
	minLockBackoff = time.Millisecond
	maxLockBackoff = 25 * time.Millisecond
)

func (l *Locker) lockPolling(ctx context.Context, path string, how int, once bool) (*Lock, error) {
	openFlag := os.O_RDWR
	if how == unix.LOCK_SH {
		openFlag = os.O_RDONLY
	}

	backoff := minLockBackoff

	for {
		file, err := l.openLockFile(path, openFlag)
		if err != nil {
			return nil, fmt.Errorf("opening lockfile: %w", err)
		}

		err = l.acquire(file, path, how)
		if err == nil {
			return &Lock{file: file, flock: l.flock}, nil
		}

		_ = file.Close()

		if !errors.Is(err, ErrWouldBlock) && !errors.Is(err, errInodeMismatch) {
			return nil, err
		}

		if once {
			return nil, ErrWouldBlock
		}

		timer := time.NewTimer(backoff)

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, fmt.Errorf("%w: %w", ErrWouldBlock, ctx.Err())
		case <-timer.C:
		}

		backoff = min(backoff*2, maxLockBackoff)
	}
}

// acquire flocks file without blocking and verifies the inode still matches
// path. On failure the file is unlocked but not closed.
func (l *Locker) acquire(file File, path string, how int) error {
	fd := int(file.Fd())

	err := flockRetryEINTR(l.flock, fd, how|unix.LOCK_NB)
	if err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return ErrWouldBlock
		}

		return fmt.Errorf("flock: %w", err)
	}

	match, err := l.inodeMatchesPath(path, file)
	if err != nil || !match {
		_ = flockRetryEINTR(l.flock, fd, unix.LOCK_UN)

		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("verifying inode match: %w", err)
		}

		return errInodeMismatch
	}

	return nil
}

func (l *Locker) openLockFile(path string, flag int) (File, error) {
	f, err := l.fs.OpenFile(path, flag|os.O_CREATE, lockFilePerm)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return f, err
	}

	err = l.fs.MkdirAll(filepath.Dir(path), lockDirPerm)
	if err != nil {
		return nil, err
	}

	return l.fs.OpenFile(path, flag|os.O_CREATE, lockFilePerm)
}

// inodeMatchesPath reports whether the locked descriptor still refers to the
// file currently at path. flock locks inodes; a path replaced between open
// and flock would otherwise leave two holders on different inodes.
func (l *Locker) inodeMatchesPath(path string, f File) (bool, error) {
	openInfo, err := f.Stat()
	if err != nil {
		return false, err
	}

	openSys, ok := openInfo.Sys().(*syscall.Stat_t)
	if !ok || openSys == nil {
		return false, fmt.Errorf("file.Stat Sys=%T, want *syscall.Stat_t", openInfo.Sys())
	}

	pathInfo, err := l.fs.Stat(path)
	if err != nil {
		return false, err
	}

	pathSys, ok := pathInfo.Sys().(*syscall.Stat_t)
	if !ok || pathSys == nil {
		return false, fmt.Errorf("fs.Stat Sys=%T, want *syscall.Stat_t", pathInfo.Sys())
	}

	return openSys.Dev == pathSys.Dev && openSys.Ino == pathSys.Ino, nil
}

// flockRetryEINTR wraps flock, retrying when a signal interrupts the call.
func flockRetryEINTR(flock func(fd int, how int) error, fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
