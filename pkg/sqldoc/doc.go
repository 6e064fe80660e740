// Package sqldoc provides typed, serialized access to SQLite database files.
//
// A [Document] owns one file. Queries are described by an immutable [Query]
// and return rows as [Record] maps of [Value] scalars:
//
//	m := sqldoc.NewManager(sqldoc.Options{})
//
//	doc, err := m.NewDocument(ctx, "app.db")
//	if err != nil {
//	    return err
//	}
//
//	_, err = doc.Execute(ctx, sqldoc.NewMutableQuery(
//	    "CREATE TABLE IF NOT EXISTS t (a integer PRIMARY KEY, b text NOT NULL)"))
//
//	rows, err := doc.Execute(ctx, sqldoc.NewQuery("SELECT ? AS x", sqldoc.Int(42)))
//	// rows == []sqldoc.Record{{"x": sqldoc.Int(42)}}
//
// # Files
//
// A file is accepted when it is empty or starts with the SQLite header.
// The check runs before any connection is opened, so the engine never
// touches a file that is not a database. Only [CreateDocument] (and
// [Manager.NewDocument]) create files.
//
// # Connections
//
// Every [Document.Execute] opens a fresh connection, read-only unless the
// query is mutable, and closes it before returning. Calls on one Document
// are serialized; calls on different Documents run in parallel. With
// [Options.LockFiles] a flock on "<path>.lock" also serializes writers
// across processes.
//
// # Records
//
// Integers decode as int64, floats as float64, text as string and blobs as
// standard base64 text. NULL columns are left out of the Record, so a
// missing key may mean NULL.
//
// # Errors
//
// Every error is an *[Error] whose kind matches one of [ErrNotFound],
// [ErrInvalidFile], [ErrFailedToOpen], [ErrStatement], [ErrEngine],
// [ErrBinding] or [ErrDecode] with [errors.Is].
package sqldoc
