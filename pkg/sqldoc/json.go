package sqldoc

import (
	"context"
	"encoding/json"
	"fmt"
)

// MarshalRecordsJSON encodes records as a JSON array of objects indented
// with two spaces. Object keys are sorted. A nil slice encodes as [].
func MarshalRecordsJSON(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}

	return data, nil
}

// ExecuteJSON runs q like [Document.Execute] and returns the rows as
// pretty-printed JSON.
func (d *Document) ExecuteJSON(ctx context.Context, q Query) ([]byte, error) {
	records, err := d.Execute(ctx, q)
	if err != nil {
		return nil, err
	}

	data, err := MarshalRecordsJSON(records)
	if err != nil {
		return nil, newError(ErrDecode, d.path, err)
	}

	return data, nil
}

// QueryInto runs q and decodes every row into a T through its JSON form,
// so T's json tags name the columns:
//
//	type user struct {
//	    ID   int64  `json:"id"`
//	    Name string `json:"name"`
//	}
//
//	users, err := sqldoc.QueryInto[user](ctx, doc, sqldoc.NewQuery("SELECT id, name FROM users"))
//
// Blob columns decode as base64 strings (or into []byte fields). A column
// that does not fit its field fails with [ErrDecode].
func QueryInto[T any](ctx context.Context, d *Document, q Query) ([]T, error) {
	records, err := d.Execute(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(records))

	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, newError(ErrDecode, d.path, fmt.Errorf("row %d: %w", i, err))
		}

		var v T

		err = json.Unmarshal(data, &v)
		if err != nil {
			return nil, newError(ErrDecode, d.path, fmt.Errorf("row %d: %w", i, err))
		}

		out = append(out, v)
	}

	return out, nil
}
