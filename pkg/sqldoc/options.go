package sqldoc

import (
	"io"
	"log/slog"
	"time"

	"github.com/calvinalkan/sqldoc/pkg/fs"
	"github.com/calvinalkan/sqldoc/pkg/sqldoc/engine"
)

// Options configures a [Manager] and the Documents it constructs.
//
// The zero value is usable: every field has a default.
type Options struct {
	// Engine opens native connections. Default: engine.SQLite3().
	Engine engine.Engine

	// FS is used for existence checks, format validation and lock files.
	// Default: fs.NewReal().
	FS fs.FS

	// Logger receives a debug record per query and warnings for skipped
	// columns. Default: discards everything.
	Logger *slog.Logger

	// StrictDecode fails a query with [ErrDecode] when a column cannot be
	// decoded, instead of skipping the column.
	StrictDecode bool

	// LockFiles makes every query hold a flock on "<path>.lock": shared for
	// read-only queries, exclusive for mutable queries and creation.
	// Use it when several processes access the same files.
	LockFiles bool

	// LockTimeout is the max wait for a lock file. Default: 10s.
	LockTimeout time.Duration
}

const defaultLockTimeout = 10 * time.Second

// withDefaults returns a copy of o with every unset field filled.
func (o Options) withDefaults() Options {
	if o.Engine == nil {
		o.Engine = engine.SQLite3()
	}

	if o.FS == nil {
		o.FS = fs.NewReal()
	}

	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if o.LockTimeout <= 0 {
		o.LockTimeout = defaultLockTimeout
	}

	return o
}
