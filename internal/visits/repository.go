package visits

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/fieldpath/visittracker/pkg/docstore"
	"github.com/fieldpath/visittracker/pkg/enums"
	pkgerrors "github.com/fieldpath/visittracker/pkg/errors"
	"github.com/fieldpath/visittracker/pkg/logger"
	"github.com/fieldpath/visittracker/pkg/metrics"
	"github.com/fieldpath/visittracker/pkg/models"
	"github.com/fieldpath/visittracker/pkg/paths"
)

// Repository is the tenant-scoped visit sync layer over the document store.
type Repository interface {
	// StreamVisits yields the complete matching visit list each time it
	// changes. Nothing is registered until the sequence is ranged over, and
	// the registration is released when ranging stops or ctx ends. A store
	// error is yielded once and ends the sequence.
	StreamVisits(ctx context.Context, tenantID string, filter StreamFilter) iter.Seq2[[]models.VisitCard, error]
	CreateVisit(ctx context.Context, visit models.VisitCard) error
	UpdateVisit(ctx context.Context, visit models.VisitCard) error
	// ApproveVisit stamps updatedAt with approvedAt, or the current time when
	// approvedAt is zero.
	ApproveVisit(ctx context.Context, visitID, tenantID, managerID string, comment *string, approvedAt time.Time) error
	GetVisit(ctx context.Context, tenantID, visitID string) (models.VisitCard, error)
}

// StreamFilter narrows a stream by exact match; empty fields do not filter.
type StreamFilter struct {
	RouteID    string
	SalesRepID string
}

type repositoryImpl struct {
	store   docstore.Store
	logg    *logger.Logger
	metrics *metrics.VisitMetrics
	clock   func() time.Time
}

// NewRepository returns a visit repository bound to the provided store.
func NewRepository(store docstore.Store, logg *logger.Logger, m *metrics.VisitMetrics) Repository {
	if logg == nil {
		logg = logger.Nop()
	}
	return &repositoryImpl{store: store, logg: logg, metrics: m, clock: time.Now}
}

func (r *repositoryImpl) StreamVisits(ctx context.Context, tenantID string, filter StreamFilter) iter.Seq2[[]models.VisitCard, error] {
	return func(yield func([]models.VisitCard, error) bool) {
		if tenantID == "" {
			yield(nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required"))
			return
		}

		query := r.store.Collection(paths.VisitsCollection(tenantID))
		if filter.RouteID != "" {
			query = query.WhereEqual(FieldRouteID, filter.RouteID)
		}
		if filter.SalesRepID != "" {
			query = query.WhereEqual(FieldSalesRepID, filter.SalesRepID)
		}

		logCtx := r.logg.WithStreamFilter(r.logg.WithTenantID(ctx, tenantID), filter.RouteID, filter.SalesRepID)

		sub := newSubscription()
		reg, err := query.Listen(sub.onSnapshot, sub.onError)
		if err != nil {
			r.logg.Error(logCtx, "visits.stream.listen_failed", err)
			yield(nil, err)
			return
		}
		r.metrics.ListenerStarted()
		defer func() {
			sub.close()
			reg.Remove()
			r.metrics.ListenerStopped()
		}()

		for {
			docs, ok, err := sub.take()
			if ok {
				visits := r.decodeSnapshot(logCtx, tenantID, docs)
				r.metrics.IncSnapshot()
				if !yield(visits, nil) {
					return
				}
				continue
			}
			if err != nil {
				r.metrics.IncStreamError()
				r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "visits.stream.terminated")
				yield(nil, err)
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-sub.signal:
			}
		}
	}
}

func (r *repositoryImpl) decodeSnapshot(ctx context.Context, tenantID string, docs []docstore.Document) []models.VisitCard {
	visits := make([]models.VisitCard, 0, len(docs))
	dropped := 0
	for _, doc := range docs {
		visit, err := DecodeVisit(doc.ID(), tenantID, doc.Data())
		if err != nil {
			dropped++
			r.logg.Warn(r.logg.WithFields(r.logg.WithVisitID(ctx, doc.ID()), map[string]any{"error": err.Error()}), "visits.stream.decode_dropped")
			continue
		}
		visits = append(visits, visit)
	}
	r.metrics.AddDecodeDrops(dropped)
	return visits
}

func (r *repositoryImpl) CreateVisit(ctx context.Context, visit models.VisitCard) error {
	return r.put(ctx, visit)
}

// UpdateVisit is a full overwrite with no existence or status precondition.
func (r *repositoryImpl) UpdateVisit(ctx context.Context, visit models.VisitCard) error {
	return r.put(ctx, visit)
}

func (r *repositoryImpl) put(ctx context.Context, visit models.VisitCard) error {
	if err := requireIDs(visit.TenantID, visit.ID); err != nil {
		return err
	}
	return r.store.Doc(paths.VisitDoc(visit.TenantID, visit.ID)).Set(ctx, RecordFromVisit(visit).Fields())
}

// ApproveVisit touches only status, managerComment, approvedBy and updatedAt.
func (r *repositoryImpl) ApproveVisit(ctx context.Context, visitID, tenantID, managerID string, comment *string, approvedAt time.Time) error {
	if err := requireIDs(tenantID, visitID); err != nil {
		return err
	}
	if approvedAt.IsZero() {
		approvedAt = r.clock()
	}
	return r.store.Doc(paths.VisitDoc(tenantID, visitID)).Update(ctx, []docstore.FieldUpdate{
		{Path: FieldStatus, Value: enums.VisitStatusApproved.String()},
		{Path: FieldManagerComment, Value: nullable(comment)},
		{Path: FieldApprovedBy, Value: managerID},
		{Path: FieldUpdatedAt, Value: ToEpochMillis(approvedAt)},
	})
}

func (r *repositoryImpl) GetVisit(ctx context.Context, tenantID, visitID string) (models.VisitCard, error) {
	if err := requireIDs(tenantID, visitID); err != nil {
		return models.VisitCard{}, err
	}
	doc, err := r.store.Doc(paths.VisitDoc(tenantID, visitID)).Get(ctx)
	if err != nil {
		return models.VisitCard{}, err
	}
	return DecodeVisit(doc.ID(), tenantID, doc.Data())
}

func requireIDs(tenantID, visitID string) error {
	if tenantID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	if visitID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "visit id required")
	}
	return nil
}

// subscription bridges store callbacks, which may run on any goroutine, to
// the ranging goroutine. Only the latest unconsumed snapshot is kept; an
// error is kept until taken and nothing is accepted after it.
type subscription struct {
	mu         sync.Mutex
	pending    []docstore.Document
	hasPending bool
	err        error
	closed     bool
	signal     chan struct{}
}

func newSubscription() *subscription {
	return &subscription{signal: make(chan struct{}, 1)}
}

func (s *subscription) onSnapshot(docs []docstore.Document) {
	s.mu.Lock()
	if s.closed || s.err != nil {
		s.mu.Unlock()
		return
	}
	s.pending = docs
	s.hasPending = true
	s.mu.Unlock()
	s.notify()
}

func (s *subscription) onError(err error) {
	s.mu.Lock()
	if s.closed || s.err != nil {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.mu.Unlock()
	s.notify()
}

func (s *subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// take returns the pending snapshot first, then the terminal error.
func (s *subscription) take() ([]docstore.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasPending {
		docs := s.pending
		s.pending = nil
		s.hasPending = false
		return docs, true, nil
	}
	return nil, false, s.err
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.pending = nil
	s.hasPending = false
	s.mu.Unlock()
}
