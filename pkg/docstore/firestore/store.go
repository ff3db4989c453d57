// Package firestore adapts a Cloud Firestore client to the docstore port.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fieldpath/visittracker/pkg/config"
	"github.com/fieldpath/visittracker/pkg/docstore"
	"github.com/fieldpath/visittracker/pkg/logger"
)

var errProjectIDRequired = errors.New("gcp project id is required")

type Store struct {
	client *firestore.Client
	logg   *logger.Logger
}

var _ docstore.Store = (*Store)(nil)

// New creates a Firestore client for the configured project and database.
func New(ctx context.Context, gcp config.GCPConfig, logg *logger.Logger) (*Store, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	client, err := firestore.NewClientWithDatabase(ctx, gcp.ProjectID, databaseID(gcp), gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "firestore_database", databaseID(gcp)), "firestore client initialized")
	}
	return &Store{client: client, logg: logg}, nil
}

// NewFromClient wraps an existing client, e.g. one pointed at the emulator.
func NewFromClient(client *firestore.Client, logg *logger.Logger) *Store {
	return &Store{client: client, logg: logg}
}

func databaseID(gcp config.GCPConfig) string {
	if db := strings.TrimSpace(gcp.FirestoreDatabase); db != "" {
		return db
	}
	return firestore.DefaultDatabaseID
}

func (s *Store) Collection(path string) docstore.Query {
	col := s.client.Collection(path)
	if col == nil {
		return &query{store: s, path: path, err: fmt.Errorf("%w: %q", docstore.ErrInvalidPath, path)}
	}
	return &query{store: s, path: path, q: col.Query}
}

func (s *Store) Doc(path string) docstore.DocumentRef {
	ref := s.client.Doc(path)
	if ref == nil {
		return &docRef{path: path, err: fmt.Errorf("%w: %q", docstore.ErrInvalidPath, path)}
	}
	return &docRef{path: path, ref: ref}
}

// Ping issues a single bounded read against the tenants collection.
func (s *Store) Ping(ctx context.Context) error {
	iter := s.client.Collection("tenants").Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

type query struct {
	store *Store
	path  string
	q     firestore.Query
	err   error
}

func (q *query) WhereEqual(field string, value any) docstore.Query {
	if q.err != nil {
		return q
	}
	return &query{
		store: q.store,
		path:  q.path,
		q:     q.q.WhereEntity(firestore.PropertyFilter{Path: field, Operator: "==", Value: value}),
	}
}

func (q *query) Documents(ctx context.Context) ([]docstore.Document, error) {
	if q.err != nil {
		return nil, q.err
	}
	snaps, err := q.q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return toDocuments(snaps), nil
}

// Listen drives a snapshot iterator on its own goroutine. Remove cancels the
// iterator's context and stops it; a cancellation observed afterwards is not
// reported as an error.
func (q *query) Listen(onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) (docstore.Registration, error) {
	if q.err != nil {
		return nil, q.err
	}

	ctx, cancel := context.WithCancel(context.Background())
	it := q.q.Snapshots(ctx)
	reg := &registration{cancel: cancel, it: it, done: make(chan struct{})}

	go func() {
		defer close(reg.done)
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				onError(err)
				return
			}
			snaps, err := snap.Documents.GetAll()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				onError(err)
				return
			}
			if ctx.Err() != nil {
				return
			}
			onSnapshot(toDocuments(snaps))
		}
	}()

	if q.store.logg != nil {
		q.store.logg.Debug(q.store.logg.WithField(context.Background(), "collection", q.path), "firestore.listen.started")
	}
	return reg, nil
}

type registration struct {
	once   sync.Once
	cancel context.CancelFunc
	it     *firestore.QuerySnapshotIterator
	done   chan struct{}
}

func (r *registration) Remove() {
	r.once.Do(func() {
		r.cancel()
		r.it.Stop()
	})
}

type docRef struct {
	path string
	ref  *firestore.DocumentRef
	err  error
}

func (d *docRef) ID() string {
	if d.ref == nil {
		return ""
	}
	return d.ref.ID
}

func (d *docRef) Set(ctx context.Context, data map[string]any) error {
	if d.err != nil {
		return d.err
	}
	_, err := d.ref.Set(ctx, data)
	return err
}

func (d *docRef) Update(ctx context.Context, updates []docstore.FieldUpdate) error {
	if d.err != nil {
		return d.err
	}
	fsUpdates := make([]firestore.Update, 0, len(updates))
	for _, u := range updates {
		fsUpdates = append(fsUpdates, firestore.Update{Path: u.Path, Value: u.Value})
	}
	_, err := d.ref.Update(ctx, fsUpdates)
	return notFound(err)
}

func (d *docRef) Get(ctx context.Context) (docstore.Document, error) {
	if d.err != nil {
		return nil, d.err
	}
	snap, err := d.ref.Get(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return docstore.StaticDocument{DocID: snap.Ref.ID, Payload: snap.Data()}, nil
}

func (d *docRef) Delete(ctx context.Context) error {
	if d.err != nil {
		return d.err
	}
	_, err := d.ref.Delete(ctx)
	return err
}

// notFound keeps the gRPC status in the chain while letting callers match
// docstore.ErrNotFound.
func notFound(err error) error {
	if err != nil && status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %w", docstore.ErrNotFound, err)
	}
	return err
}

func toDocuments(snaps []*firestore.DocumentSnapshot) []docstore.Document {
	docs := make([]docstore.Document, 0, len(snaps))
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		docs = append(docs, docstore.StaticDocument{DocID: snap.Ref.ID, Payload: snap.Data()})
	}
	return docs
}
