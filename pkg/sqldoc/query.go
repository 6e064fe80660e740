package sqldoc

import "slices"

// Query describes one statement to execute against a [Document].
//
// Query is immutable: build it with [NewQuery] or [NewMutableQuery].
//
// Mutable is an intent flag, not a write detector. A read-only Query is
// executed on a read-only connection, so a statement that writes fails with
// [ErrEngine] instead of modifying the file.
type Query struct {
	sql     string
	mutable bool
	params  []Value
}

// NewQuery returns a read-only Query. Params are bound by 1-based position;
// with no params the binding step is skipped.
func NewQuery(sql string, params ...Value) Query {
	return Query{sql: sql, params: slices.Clone(params)}
}

// NewMutableQuery returns a Query executed on a read-write connection.
func NewMutableQuery(sql string, params ...Value) Query {
	q := NewQuery(sql, params...)
	q.mutable = true

	return q
}

// SQL returns the statement text.
func (q Query) SQL() string {
	return q.sql
}

// Mutable reports whether the statement may write.
func (q Query) Mutable() bool {
	return q.mutable
}

// Params returns a copy of the positional parameters (nil when none).
func (q Query) Params() []Value {
	return slices.Clone(q.params)
}

// HasParams reports whether the Query carries parameters.
func (q Query) HasParams() bool {
	return len(q.params) > 0
}
