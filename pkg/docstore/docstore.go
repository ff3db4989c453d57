// Package docstore is the narrow document database surface the visit
// repository depends on: hierarchical collections addressed by slash
// separated paths, point writes, partial field updates and live queries
// with equality filters.
package docstore

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound    = errors.New("docstore: document not found")
	ErrInvalidPath = errors.New("docstore: invalid path")
)

// Document is a stored record plus the key it lives under.
type Document interface {
	ID() string
	Data() map[string]any
}

// SnapshotFunc receives the complete matching set every time it changes.
type SnapshotFunc func(docs []Document)

// ErrorFunc receives a terminal listener error. No snapshot follows it.
type ErrorFunc func(err error)

// Registration detaches a listener. Remove is safe to call more than once.
type Registration interface {
	Remove()
}

type Query interface {
	// WhereEqual narrows the query; multiple filters are AND-combined.
	WhereEqual(field string, value any) Query
	// Listen delivers an initial snapshot, then one per change, until Remove
	// is called or onError fires. Callbacks may run on any goroutine.
	Listen(onSnapshot SnapshotFunc, onError ErrorFunc) (Registration, error)
	// Documents performs a one-shot read of the matching set.
	Documents(ctx context.Context) ([]Document, error)
}

// FieldUpdate sets Path to Value; a nil Value stores null.
type FieldUpdate struct {
	Path  string
	Value any
}

type DocumentRef interface {
	ID() string
	// Set overwrites the whole document, creating it when absent.
	Set(ctx context.Context, data map[string]any) error
	// Update changes only the named fields and fails when the document is absent.
	Update(ctx context.Context, updates []FieldUpdate) error
	Get(ctx context.Context) (Document, error)
	Delete(ctx context.Context) error
}

type Store interface {
	Collection(path string) Query
	Doc(path string) DocumentRef
	Ping(ctx context.Context) error
	Close() error
}

// Filter is a single equality constraint.
type Filter struct {
	Field string
	Value any
}

// Matches reports whether data satisfies every filter.
func Matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Field]
		if !ok || !ValuesEqual(v, f.Value) {
			return false
		}
	}
	return true
}

// ValuesEqual compares scalars the way the hosted store does: numbers by
// value regardless of width, everything else by identity.
func ValuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func toFloat(v any) (float64, bool) {
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
	}
	return 0, false
}

// SplitDocPath splits "a/b/c/d" into collection "a/b/c" and id "d".
func SplitDocPath(path string) (collection, id string, err error) {
	segments := strings.Split(path, "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return "", "", ErrInvalidPath
	}
	idx := strings.LastIndex(path, "/")
	return path[:idx], path[idx+1:], nil
}

// StaticDocument is a Document backed by an owned map.
type StaticDocument struct {
	DocID   string
	Payload map[string]any
}

func (d StaticDocument) ID() string           { return d.DocID }
func (d StaticDocument) Data() map[string]any { return d.Payload }
