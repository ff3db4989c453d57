// Package redisstore keeps documents as redis hashes. Each field holds the
// JSON encoding of its value, each collection keeps a set of member ids and
// every write publishes the changed id on the collection's change channel.
package redisstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/fieldpath/visittracker/pkg/docstore"
	"github.com/fieldpath/visittracker/pkg/logger"
	pkgredis "github.com/fieldpath/visittracker/pkg/redis"
)

// existsField marks a hash as a live document even when every other field is null.
const existsField = "__doc"

var errSubscriptionClosed = errors.New("redisstore: change subscription closed")

// updateScript applies a partial update only when the document exists.
// KEYS: doc hash, change channel. ARGV: id, then (field, value) pairs.
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
for i = 2, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('PUBLISH', KEYS[2], ARGV[1])
return 1
`)

type Store struct {
	client *pkgredis.Client
	logg   *logger.Logger
}

var _ docstore.Store = (*Store)(nil)

func New(client *pkgredis.Client, logg *logger.Logger) *Store {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Store{client: client, logg: logg}
}

func (s *Store) Collection(path string) docstore.Query {
	return &query{store: s, collection: path}
}

func (s *Store) Doc(path string) docstore.DocumentRef {
	collection, id, err := docstore.SplitDocPath(path)
	return &docRef{store: s, path: path, collection: collection, id: id, pathErr: err}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) rdb() redis.UniversalClient {
	return s.client.Raw()
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

// Documents reads every member of the collection and applies the filters
// client side. Results are ordered by id. A member whose fields do not
// decode is logged and left out; only redis failures fail the read.
func (q *query) Documents(ctx context.Context) ([]docstore.Document, error) {
	rdb := q.store.rdb()
	ids, err := rdb.SMembers(ctx, q.store.client.IndexKey(q.collection)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	if len(ids) > 0 {
		_, err = rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, id := range ids {
				cmds[i] = pipe.HGetAll(ctx, q.store.client.DocKey(q.collection+"/"+id))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	docs := make([]docstore.Document, 0, len(ids))
	for i, id := range ids {
		raw := cmds[i].Val()
		if len(raw) == 0 {
			continue
		}
		data, err := decodeFields(raw)
		if err != nil {
			q.store.logg.Warn(q.store.logg.WithFields(ctx, map[string]any{
				"collection": q.collection,
				"doc_id":     id,
				"error":      err.Error(),
			}), "redisstore.document_skipped")
			continue
		}
		if docstore.Matches(data, q.filters) {
			docs = append(docs, docstore.StaticDocument{DocID: id, Payload: data})
		}
	}
	return docs, nil
}

// Listen subscribes to the collection's change channel before reading the
// initial snapshot so no write between the two is missed. Bursts of change
// messages collapse into a single re-read.
func (q *query) Listen(onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) (docstore.Registration, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := q.store.rdb().Subscribe(ctx, q.store.client.ChangeChannel(q.collection))
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		_ = sub.Close()
		return nil, err
	}

	reg := &registration{cancel: cancel, sub: sub, done: make(chan struct{})}
	changes := sub.Channel()

	deliver := func() bool {
		docs, err := q.Documents(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			onError(err)
			return false
		}
		if ctx.Err() != nil {
			return false
		}
		onSnapshot(docs)
		return true
	}

	go func() {
		defer close(reg.done)
		if !deliver() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					if ctx.Err() == nil {
						onError(errSubscriptionClosed)
					}
					return
				}
			drain:
				for {
					select {
					case _, ok := <-changes:
						if !ok {
							break drain
						}
					default:
						break drain
					}
				}
				if !deliver() {
					return
				}
			}
		}
	}()

	q.store.logg.Debug(q.store.logg.WithField(context.Background(), "collection", q.collection), "redisstore.listen.started")
	return reg, nil
}

type registration struct {
	once   sync.Once
	cancel context.CancelFunc
	sub    *redis.PubSub
	done   chan struct{}
}

func (r *registration) Remove() {
	r.once.Do(func() {
		r.cancel()
		_ = r.sub.Close()
	})
}

type docRef struct {
	store      *Store
	path       string
	collection string
	id         string
	pathErr    error
}

func (d *docRef) ID() string { return d.id }

func (d *docRef) Set(ctx context.Context, data map[string]any) error {
	if d.pathErr != nil {
		return d.pathErr
	}
	args, err := encodeFields(data)
	if err != nil {
		return err
	}
	key := d.store.client.DocKey(d.path)
	_, err = d.store.rdb().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, args...)
		pipe.SAdd(ctx, d.store.client.IndexKey(d.collection), d.id)
		pipe.Publish(ctx, d.store.client.ChangeChannel(d.collection), d.id)
		return nil
	})
	return err
}

func (d *docRef) Update(ctx context.Context, updates []docstore.FieldUpdate) error {
	if d.pathErr != nil {
		return d.pathErr
	}
	argv := []any{d.id}
	for _, u := range updates {
		if u.Path == "" || u.Path == existsField {
			return fmt.Errorf("redisstore: invalid field path %q", u.Path)
		}
		encoded, err := json.Marshal(u.Value)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", u.Path, err)
		}
		argv = append(argv, u.Path, string(encoded))
	}
	keys := []string{d.store.client.DocKey(d.path), d.store.client.ChangeChannel(d.collection)}
	applied, err := updateScript.Run(ctx, d.store.rdb(), keys, argv...).Int()
	if err != nil {
		return err
	}
	if applied == 0 {
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, d.path)
	}
	return nil
}

func (d *docRef) Get(ctx context.Context) (docstore.Document, error) {
	if d.pathErr != nil {
		return nil, d.pathErr
	}
	raw, err := d.store.rdb().HGetAll(ctx, d.store.client.DocKey(d.path)).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, d.path)
	}
	data, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}
	return docstore.StaticDocument{DocID: d.id, Payload: data}, nil
}

func (d *docRef) Delete(ctx context.Context) error {
	if d.pathErr != nil {
		return d.pathErr
	}
	_, err := d.store.rdb().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, d.store.client.DocKey(d.path))
		pipe.SRem(ctx, d.store.client.IndexKey(d.collection), d.id)
		pipe.Publish(ctx, d.store.client.ChangeChannel(d.collection), d.id)
		return nil
	})
	return err
}

func encodeFields(data map[string]any) ([]any, error) {
	args := make([]any, 0, len(data)*2+2)
	args = append(args, existsField, "1")
	for field, value := range data {
		if field == existsField {
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", field, err)
		}
		args = append(args, field, string(encoded))
	}
	return args, nil
}

func decodeFields(raw map[string]string) (map[string]any, error) {
	data := make(map[string]any, len(raw))
	for field, encoded := range raw {
		if field == existsField {
			continue
		}
		value, err := decodeValue(encoded)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		data[field] = value
	}
	return data, nil
}

// decodeValue restores integers as int64 and other numbers as float64 so
// readers see the same shapes the hosted store returns.
func decodeValue(encoded string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(encoded)))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return normalizeNumbers(value), nil
}

func normalizeNumbers(value any) any {
	switch v := value.(type) {
	case json.Number:
		if !strings.ContainsAny(v.String(), ".eE") {
			if n, err := v.Int64(); err == nil {
				return n
			}
		}
		f, _ := v.Float64()
		return f
	case []any:
		for i := range v {
			v[i] = normalizeNumbers(v[i])
		}
		return v
	case map[string]any:
		for k := range v {
			v[k] = normalizeNumbers(v[k])
		}
		return v
	}
	return value
}
