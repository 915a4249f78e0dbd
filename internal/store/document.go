package store

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// Document is the field map of a stored record. Unknown fields are carried
// through untouched.
type Document map[string]interface{}

// Snapshot is a document together with its id inside a collection.
type Snapshot struct {
	ID   string
	Path string
	Data Document
}

// Update is a partial document for UpdateDoc. Values may be plain values or
// one of the field sentinels (Increment, ArrayAppend, ArrayRemove, DeleteField).
type Update map[string]interface{}

// FieldOp is an atomic field-level operation applied by UpdateDoc.
type FieldOp interface {
	apply(current interface{}, exists bool) (interface{}, bool, error)
}

type incrementOp struct{ n int64 }

type arrayAppendOp struct{ values []interface{} }

type arrayRemoveOp struct{ values []interface{} }

type deleteFieldOp struct{}

// Increment adds n to a numeric field. A missing field counts as zero.
func Increment(n int64) FieldOp { return incrementOp{n: n} }

// ArrayAppend appends each value that is not already present in the array.
func ArrayAppend(values ...interface{}) FieldOp { return arrayAppendOp{values: values} }

// ArrayRemove removes every element equal to one of values.
func ArrayRemove(values ...interface{}) FieldOp { return arrayRemoveOp{values: values} }

// DeleteField removes the field from the document.
func DeleteField() FieldOp { return deleteFieldOp{} }

func (op incrementOp) apply(current interface{}, exists bool) (interface{}, bool, error) {
	if !exists || current == nil {
		return op.n, true, nil
	}
	n, ok := ToInt64(current)
	if !ok {
		return nil, false, fmt.Errorf("cannot increment non-integer value %T", current)
	}
	return n + op.n, true, nil
}

func (op arrayAppendOp) apply(current interface{}, exists bool) (interface{}, bool, error) {
	arr, err := asArray(current, exists)
	if err != nil {
		return nil, false, err
	}
	for _, v := range op.values {
		v = normalizeValue(v)
		if !containsValue(arr, v) {
			arr = append(arr, v)
		}
	}
	return arr, true, nil
}

func (op arrayRemoveOp) apply(current interface{}, exists bool) (interface{}, bool, error) {
	arr, err := asArray(current, exists)
	if err != nil {
		return nil, false, err
	}
	out := make([]interface{}, 0, len(arr))
	for _, el := range arr {
		if !containsValue(op.values, el) {
			out = append(out, el)
		}
	}
	return out, true, nil
}

func (deleteFieldOp) apply(interface{}, bool) (interface{}, bool, error) {
	return nil, false, nil
}

func asArray(current interface{}, exists bool) ([]interface{}, error) {
	if !exists || current == nil {
		return []interface{}{}, nil
	}
	arr, ok := current.([]interface{})
	if !ok {
		return nil, fmt.Errorf("field is %T, not an array", current)
	}
	return append([]interface{}{}, arr...), nil
}

// ApplyUpdate merges upd into doc in place.
func ApplyUpdate(doc Document, upd Update) error {
	for field, v := range upd {
		if field == "" {
			return fmt.Errorf("empty field name")
		}
		op, ok := v.(FieldOp)
		if !ok {
			doc[field] = normalizeValue(v)
			continue
		}
		current, exists := doc[field]
		next, keep, err := op.apply(current, exists)
		if err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}
		if keep {
			doc[field] = next
		} else {
			delete(doc, field)
		}
	}
	return nil
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return normalizeValue(map[string]interface{}(d)).(map[string]interface{})
}

// Decode copies the document into v using its json tags.
func (d Document) Decode(v interface{}) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Int64 returns an integer field, or 0 when absent or not numeric.
func (d Document) Int64(field string) int64 {
	n, _ := ToInt64(d[field])
	return n
}

// String returns a string field, or "" when absent.
func (d Document) String(field string) string {
	s, _ := d[field].(string)
	return s
}

// Array returns an array field, or nil when absent.
func (d Document) Array(field string) []interface{} {
	arr, _ := d[field].([]interface{})
	return arr
}

// Time returns a timestamp field stored either as time.Time or RFC 3339 text.
func (d Document) Time(field string) (time.Time, bool) {
	return toTime(d[field])
}

// ToInt64 converts the numeric representations produced by the adapters.
func ToInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

// normalizeValue deep-copies v into the representation adapters store:
// maps become map[string]interface{}, slices []interface{}, integers int64 and
// timestamps UTC without a monotonic reading.
func normalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case Document:
		return normalizeValue(map[string]interface{}(x))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, el := range x {
			out[k] = normalizeValue(el)
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(x))
		for k, el := range x {
			out[k] = el
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, el := range x {
			out[i] = normalizeValue(el)
		}
		return out
	case []string:
		out := make([]interface{}, len(x))
		for i, el := range x {
			out[i] = el
		}
		return out
	case []Document:
		out := make([]interface{}, len(x))
		for i, el := range x {
			out[i] = normalizeValue(el)
		}
		return out
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case time.Time:
		return x.UTC()
	}
	return v
}

func containsValue(arr []interface{}, v interface{}) bool {
	for _, el := range arr {
		if valuesEqual(el, v) {
			return true
		}
	}
	return false
}

// valuesEqual compares stored values, treating numbers by value and
// timestamps by instant regardless of how an adapter represents them.
func valuesEqual(a, b interface{}) bool {
	if fa, ok := toFloat64(a); ok {
		fb, ok := toFloat64(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := toTime(b)
		return ok && ta.Equal(tb)
	}
	if tb, ok := b.(time.Time); ok {
		ta, ok := toTime(a)
		return ok && ta.Equal(tb)
	}
	switch x := a.(type) {
	case map[string]interface{}:
		y, ok := b.(map[string]interface{})
		if !ok || len(x) != len(y) {
			return false
		}
		for k, el := range x {
			other, ok := y[k]
			if !ok || !valuesEqual(el, other) {
				return false
			}
		}
		return true
	case []interface{}:
		y, ok := b.([]interface{})
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valuesEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// CompareValues orders two field values for ListDocs ordering.
func CompareValues(a, b interface{}) int {
	if fa, ok := toFloat64(a); ok {
		if fb, ok := toFloat64(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := toTime(a); ok {
		if tb, ok := toTime(b); ok {
			return ta.Compare(tb)
		}
	}
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Join builds a slash separated store path.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// SplitDocPath returns the parent collection and document id of path.
func SplitDocPath(path string) (collection, id string, err error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return "", "", NewError(CodeInvalid, "path", path, fmt.Errorf("not a document path"))
	}
	for _, s := range segments {
		if s == "" {
			return "", "", NewError(CodeInvalid, "path", path, fmt.Errorf("empty path segment"))
		}
	}
	return strings.Join(segments[:len(segments)-1], "/"), segments[len(segments)-1], nil
}

// ValidateCollectionPath checks that path names a collection.
func ValidateCollectionPath(path string) error {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments)%2 != 1 {
		return NewError(CodeInvalid, "path", path, fmt.Errorf("not a collection path"))
	}
	for _, s := range segments {
		if s == "" {
			return NewError(CodeInvalid, "path", path, fmt.Errorf("empty path segment"))
		}
	}
	return nil
}
