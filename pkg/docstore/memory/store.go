// Package memory is an in-process docstore used by tests and local runs.
// Listener callbacks are delivered synchronously on the writing goroutine.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fieldpath/visittracker/pkg/docstore"
)

type Store struct {
	mu          sync.Mutex
	dispatchMu  sync.Mutex
	collections map[string]map[string]map[string]any
	listeners   map[uint64]*listener
	nextID      uint64
	writeErr    error
}

type listener struct {
	id         uint64
	collection string
	filters    []docstore.Filter
	onSnapshot docstore.SnapshotFunc
	onError    docstore.ErrorFunc
	failed     bool
}

var _ docstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		collections: map[string]map[string]map[string]any{},
		listeners:   map[uint64]*listener{},
	}
}

func (s *Store) Collection(path string) docstore.Query {
	return &query{store: s, collection: path}
}

func (s *Store) Doc(path string) docstore.DocumentRef {
	collection, id, err := docstore.SplitDocPath(path)
	return &docRef{store: s, collection: collection, id: id, pathErr: err}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error {
	s.mu.Lock()
	s.listeners = map[uint64]*listener{}
	s.mu.Unlock()
	return nil
}

// ListenerCount reports listeners that have not been removed.
func (s *Store) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// FailWrites makes every subsequent Set, Update and Delete return err until
// it is called again with nil.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

// EmitError fails every live listener on collection. Failed listeners stay
// registered until removed but receive nothing further.
func (s *Store) EmitError(collection string, err error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	var targets []*listener
	for _, l := range s.listeners {
		if l.collection == collection && !l.failed {
			l.failed = true
			targets = append(targets, l)
		}
	}
	s.mu.Unlock()

	for _, l := range targets {
		l.onError(err)
	}
}

func (s *Store) write(collection, id string, fn func(docs map[string]map[string]any) error) error {
	s.mu.Lock()
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return err
	}
	docs, ok := s.collections[collection]
	if !ok {
		docs = map[string]map[string]any{}
		s.collections[collection] = docs
	}
	if err := fn(docs); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

type delivery struct {
	l    *listener
	docs []docstore.Document
}

func (s *Store) notify(collection string) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	var pending []delivery
	for _, l := range s.listeners {
		if l.collection != collection || l.failed {
			continue
		}
		pending = append(pending, delivery{l: l, docs: s.snapshotLocked(collection, l.filters)})
	}
	s.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].l.id < pending[j].l.id })
	for _, d := range pending {
		if s.active(d.l.id) {
			d.l.onSnapshot(d.docs)
		}
	}
}

func (s *Store) active(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.listeners[id]
	return ok
}

func (s *Store) snapshotLocked(collection string, filters []docstore.Filter) []docstore.Document {
	docs := s.collections[collection]
	ids := make([]string, 0, len(docs))
	for id, data := range docs {
		if docstore.Matches(data, filters) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]docstore.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, docstore.StaticDocument{DocID: id, Payload: cloneMap(docs[id])})
	}
	return out
}

func (s *Store) listen(collection string, filters []docstore.Filter, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) *registration {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	s.nextID++
	l := &listener{
		id:         s.nextID,
		collection: collection,
		filters:    filters,
		onSnapshot: onSnapshot,
		onError:    onError,
	}
	s.listeners[l.id] = l
	initial := s.snapshotLocked(collection, filters)
	s.mu.Unlock()

	onSnapshot(initial)
	return &registration{store: s, id: l.id}
}

type registration struct {
	store *Store
	id    uint64
	once  sync.Once
}

func (r *registration) Remove() {
	r.once.Do(func() {
		r.store.mu.Lock()
		delete(r.store.listeners, r.id)
		r.store.mu.Unlock()
	})
}

type query struct {
	store      *Store
	collection string
	filters    []docstore.Filter
}

func (q *query) WhereEqual(field string, value any) docstore.Query {
	filters := make([]docstore.Filter, len(q.filters), len(q.filters)+1)
	copy(filters, q.filters)
	return &query{
		store:      q.store,
		collection: q.collection,
		filters:    append(filters, docstore.Filter{Field: field, Value: value}),
	}
}

func (q *query) Listen(onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) (docstore.Registration, error) {
	return q.store.listen(q.collection, q.filters, onSnapshot, onError), nil
}

func (q *query) Documents(ctx context.Context) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	return q.store.snapshotLocked(q.collection, q.filters), nil
}

type docRef struct {
	store      *Store
	collection string
	id         string
	pathErr    error
}

func (d *docRef) ID() string { return d.id }

func (d *docRef) Set(ctx context.Context, data map[string]any) error {
	if d.pathErr != nil {
		return d.pathErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.store.write(d.collection, d.id, func(docs map[string]map[string]any) error {
		docs[d.id] = cloneMap(data)
		return nil
	})
}

func (d *docRef) Update(ctx context.Context, updates []docstore.FieldUpdate) error {
	if d.pathErr != nil {
		return d.pathErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.store.write(d.collection, d.id, func(docs map[string]map[string]any) error {
		current, ok := docs[d.id]
		if !ok {
			return docstore.ErrNotFound
		}
		next := cloneMap(current)
		for _, u := range updates {
			next[u.Path] = cloneValue(u.Value)
		}
		docs[d.id] = next
		return nil
	})
}

func (d *docRef) Get(ctx context.Context) (docstore.Document, error) {
	if d.pathErr != nil {
		return nil, d.pathErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	data, ok := d.store.collections[d.collection][d.id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return docstore.StaticDocument{DocID: d.id, Payload: cloneMap(data)}, nil
}

func (d *docRef) Delete(ctx context.Context) error {
	if d.pathErr != nil {
		return d.pathErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.store.write(d.collection, d.id, func(docs map[string]map[string]any) error {
		delete(docs, d.id)
		return nil
	})
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return v
}
