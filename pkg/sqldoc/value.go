package sqldoc

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the scalar held by a [Value].
type Kind uint8

const (
	// KindInvalid is the zero Kind. It is never bound or decoded.
	KindInvalid Kind = iota
	KindInteger
	KindFloat
	KindText
	// KindBlob holds base64 text. Blobs are produced by decoding only and
	// cannot be bound as parameters.
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	default:
		return "invalid"
	}
}

// Value is a scalar exchanged with the database: a query parameter or a
// decoded column. The zero Value is invalid.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// Int returns an integer Value.
func Int(v int64) Value {
	return Value{kind: KindInteger, i: v}
}

// Float returns a floating point Value.
func Float(v float64) Value {
	return Value{kind: KindFloat, f: v}
}

// Text returns a text Value.
func Text(v string) Value {
	return Value{kind: KindText, s: v}
}

// blobValue returns a blob Value holding already base64-encoded text.
func blobValue(encoded string) Value {
	return Value{kind: KindBlob, s: encoded}
}

// ValueOf converts a Go scalar into a Value.
//
// Accepts signed and unsigned integers (unsigned values above
// math.MaxInt64 are rejected), float32, float64, string and Value itself.
// Any other type fails with [ErrBinding].
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		if x.kind == KindInvalid {
			return Value{}, errorf(ErrBinding, "", "invalid value")
		}

		return x, nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return uintValue(uint64(x))
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return uintValue(x)
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return Text(x), nil
	default:
		return Value{}, errorf(ErrBinding, "", fmt.Sprintf("unsupported parameter type %T", v))
	}
}

func uintValue(v uint64) (Value, error) {
	if v > math.MaxInt64 {
		return Value{}, errorf(ErrBinding, "", fmt.Sprintf("unsigned value %d overflows int64", v))
	}

	return Int(int64(v)), nil
}

// ParseValue infers a Value from text: an integer if it parses as one,
// then a float, otherwise text. A "text:" prefix forces text.
func ParseValue(s string) Value {
	if rest, ok := strings.CutPrefix(s, "text:"); ok {
		return Text(rest)
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i)
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return Float(f)
	}

	return Text(s)
}

// Kind returns the kind of scalar held.
func (v Value) Kind() Kind {
	return v.kind
}

// Int64 returns the integer, or 0 for other kinds.
func (v Value) Int64() int64 {
	return v.i
}

// Float64 returns the float, or 0 for other kinds.
func (v Value) Float64() float64 {
	return v.f
}

// Str returns the text, or the base64 text of a blob. Other kinds return "".
func (v Value) Str() string {
	return v.s
}

// Any returns the value as int64, float64 or string; nil when invalid.
func (v Value) Any() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindText, KindBlob:
		return v.s
	default:
		return nil
	}
}

// String formats the value for display.
func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText, KindBlob:
		return v.s
	default:
		return "<invalid>"
	}
}

// MarshalJSON encodes integers and floats as JSON numbers, text and blobs
// as JSON strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInteger:
		return strconv.AppendInt(nil, v.i, 10), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("sqldoc: cannot encode float %v as JSON", v.f)
		}

		return json.Marshal(v.f)
	case KindText, KindBlob:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

// MarshalYAML encodes the value as its plain scalar.
func (v Value) MarshalYAML() (any, error) {
	return v.Any(), nil
}
