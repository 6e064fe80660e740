package sqldoc

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/calvinalkan/sqldoc/pkg/sqldoc/engine"
)

// Record is one decoded result row, keyed by column name.
//
// SQL NULL omits the key, so a missing key means either the column was not
// selected or its value was NULL. Column order is not preserved.
type Record map[string]Value

// DecodeOptions controls [DecodeRecord].
type DecodeOptions struct {
	// Strict fails with [ErrDecode] instead of skipping columns whose name
	// is not valid UTF-8, whose text is not valid UTF-8, or whose storage
	// class is unknown.
	Strict bool

	// Logger receives a warning per skipped column. Nil disables logging.
	Logger *slog.Logger
}

// DecodeRecord decodes the current row of cur.
//
// Integers decode as int64, floats as float64, text as string and blobs as
// standard base64 text. NULL columns are omitted. Values follow the storage
// class of the stored value, not the declared column type, so an integer in
// a DATETIME column stays an integer.
//
// Integers keep their full 64-bit range. They are deliberately not read
// through a 32-bit column accessor, which would truncate values outside
// the int32 range.
func DecodeRecord(cur engine.Cursor, opts DecodeOptions) (Record, error) {
	n := cur.ColumnCount()
	rec := make(Record, n)

	for i := range n {
		name := cur.ColumnName(i)
		if !utf8.ValidString(name) {
			if opts.Strict {
				return nil, errorf(ErrDecode, "", fmt.Sprintf("column %d: name is not valid UTF-8", i))
			}

			warnSkipped(opts.Logger, i, name, "name is not valid UTF-8")

			continue
		}

		switch class := cur.ColumnType(i); class {
		case engine.Integer:
			rec[name] = Int(cur.ColumnInt64(i))
		case engine.Float:
			rec[name] = Float(cur.ColumnDouble(i))
		case engine.Text:
			text := cur.ColumnText(i)
			if opts.Strict && !utf8.Valid(text) {
				return nil, errorf(ErrDecode, "", fmt.Sprintf("column %q: text is not valid UTF-8", name))
			}

			rec[name] = Text(string(text))
		case engine.Blob:
			rec[name] = blobValue(base64.StdEncoding.EncodeToString(cur.ColumnBlob(i)))
		case engine.Null:
		default:
			if opts.Strict {
				return nil, errorf(ErrDecode, "", fmt.Sprintf("column %q: unknown storage class %s", name, class))
			}

			warnSkipped(opts.Logger, i, name, "unknown storage class")
		}
	}

	return rec, nil
}

func warnSkipped(logger *slog.Logger, index int, name string, reason string) {
	if logger == nil {
		return
	}

	logger.Warn("skipping column",
		slog.Int("index", index),
		slog.String("column", name),
		slog.String("reason", reason),
	)
}
