package visits

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/fieldpath/visittracker/pkg/docstore"
	"github.com/fieldpath/visittracker/pkg/enums"
	pkgerrors "github.com/fieldpath/visittracker/pkg/errors"
	"github.com/fieldpath/visittracker/pkg/logger"
	"github.com/fieldpath/visittracker/pkg/metrics"
	"github.com/fieldpath/visittracker/pkg/models"
	"github.com/fieldpath/visittracker/pkg/validation"
)

const EventVisitApproved = "visit.approved"

// EventPublisher fans visit events out to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, tenantID string, data any) (string, error)
}

// Service defines the visit operations exposed over HTTP.
type Service interface {
	Stream(ctx context.Context, tenantID string, filter StreamFilter) iter.Seq2[[]models.VisitCard, error]
	// Snapshot returns the first snapshot of a stream and releases it.
	Snapshot(ctx context.Context, tenantID string, filter StreamFilter) ([]models.VisitCard, error)
	Get(ctx context.Context, tenantID, visitID string) (*models.VisitCard, error)
	Create(ctx context.Context, tenantID string, input CreateVisitInput) (*models.VisitCard, error)
	Update(ctx context.Context, tenantID, visitID string, visit models.VisitCard) (*models.VisitCard, error)
	Approve(ctx context.Context, tenantID, visitID string, input ApproveVisitInput) error
}

// CreateVisitInput is what a sales rep submits for a new visit.
type CreateVisitInput struct {
	RouteID      string            `json:"routeId" validate:"required"`
	SalesRepID   string            `json:"salesRepId" validate:"required"`
	CustomerID   string            `json:"customerId" validate:"required"`
	CustomerName string            `json:"customerName" validate:"required,max=200"`
	GeoPoint     models.GeoPoint   `json:"geoPoint"`
	Summary      string            `json:"summary" validate:"max=500"`
	Notes        string            `json:"notes" validate:"max=4000"`
	ImageURL     *string           `json:"imageUrl,omitempty" validate:"omitempty,url"`
	Status       enums.VisitStatus `json:"status,omitempty" validate:"omitempty,oneof=Draft PendingReview"`
}

type ApproveVisitInput struct {
	ManagerID string  `json:"managerId" validate:"required"`
	Comment   *string `json:"managerComment,omitempty" validate:"omitempty,max=2000"`
}

// VisitApprovedEvent is the payload of EventVisitApproved.
type VisitApprovedEvent struct {
	VisitID        string    `json:"visitId"`
	ManagerID      string    `json:"managerId"`
	ManagerComment *string   `json:"managerComment,omitempty"`
	ApprovedAt     time.Time `json:"approvedAt"`
}

type ServiceParams struct {
	Repository Repository
	Logger     *logger.Logger
	Metrics    *metrics.VisitMetrics
	Publisher  EventPublisher
}

type service struct {
	repo      Repository
	logg      *logger.Logger
	metrics   *metrics.VisitMetrics
	publisher EventPublisher
	clock     func() time.Time
	newID     func() string
}

// NewService wires visit dependencies. Publisher is optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "visits repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      params.Repository,
		logg:      logg,
		metrics:   params.Metrics,
		publisher: params.Publisher,
		clock:     time.Now,
		newID:     func() string { return uuid.NewString() },
	}, nil
}

func (s *service) Stream(ctx context.Context, tenantID string, filter StreamFilter) iter.Seq2[[]models.VisitCard, error] {
	return func(yield func([]models.VisitCard, error) bool) {
		for visits, err := range s.repo.StreamVisits(ctx, tenantID, filter) {
			if err != nil {
				yield(nil, docstore.Classify(err, "stream visits"))
				return
			}
			if !yield(visits, nil) {
				return
			}
		}
	}
}

func (s *service) Snapshot(ctx context.Context, tenantID string, filter StreamFilter) ([]models.VisitCard, error) {
	for visits, err := range s.Stream(ctx, tenantID, filter) {
		return visits, err
	}
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stream visits")
	}
	return []models.VisitCard{}, nil
}

func (s *service) Get(ctx context.Context, tenantID, visitID string) (*models.VisitCard, error) {
	visit, err := s.repo.GetVisit(ctx, tenantID, visitID)
	if err != nil {
		return nil, docstore.Classify(err, "get visit")
	}
	return &visit, nil
}

func (s *service) Create(ctx context.Context, tenantID string, input CreateVisitInput) (*models.VisitCard, error) {
	if tenantID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = enums.VisitStatusDraft
	}
	now := s.now()
	visit := models.VisitCard{
		ID:           s.newID(),
		TenantID:     tenantID,
		RouteID:      input.RouteID,
		SalesRepID:   input.SalesRepID,
		CustomerID:   input.CustomerID,
		CustomerName: input.CustomerName,
		GeoPoint:     input.GeoPoint,
		GeoHash:      input.GeoPoint.GeoHash(models.DefaultGeoHashPrecision),
		Summary:      input.Summary,
		Notes:        input.Notes,
		ImageURL:     input.ImageURL,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreateVisit(ctx, visit); err != nil {
		err = docstore.Classify(err, "create visit")
		s.metrics.IncWrite("create", string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	s.metrics.IncWrite("create", "ok")
	s.logg.Info(s.logg.WithVisitID(s.logg.WithTenantID(ctx, tenantID), visit.ID), "visits.created")
	return &visit, nil
}

// Update overwrites the stored visit. Tenant and id come from the path;
// updatedAt is refreshed and createdAt must be the value set at creation,
// since the write replaces the whole document. Terminal visits are not
// protected.
func (s *service) Update(ctx context.Context, tenantID, visitID string, visit models.VisitCard) (*models.VisitCard, error) {
	if visit.TenantID != "" && visit.TenantID != tenantID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id cannot change")
	}
	if visit.ID != "" && visit.ID != visitID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "visit id does not match path")
	}
	if visit.CreatedAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"createdAt": "is required"})
	}
	visit.TenantID = tenantID
	visit.ID = visitID
	visit.UpdatedAt = s.now()
	if visit.GeoHash == "" {
		visit.GeoHash = visit.GeoPoint.GeoHash(models.DefaultGeoHashPrecision)
	}
	if err := validation.Struct(visit); err != nil {
		return nil, err
	}
	if !visit.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"status": "is invalid"})
	}

	if err := s.repo.UpdateVisit(ctx, visit); err != nil {
		err = docstore.Classify(err, "update visit")
		s.metrics.IncWrite("update", string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	s.metrics.IncWrite("update", "ok")
	return &visit, nil
}

// Approve marks the visit Approved and then publishes EventVisitApproved.
// A publish failure is logged and does not fail the approval.
func (s *service) Approve(ctx context.Context, tenantID, visitID string, input ApproveVisitInput) error {
	if err := validation.Struct(input); err != nil {
		return err
	}
	approvedAt := s.now()
	if err := s.repo.ApproveVisit(ctx, visitID, tenantID, input.ManagerID, input.Comment, approvedAt); err != nil {
		err = docstore.Classify(err, "approve visit")
		s.metrics.IncWrite("approve", string(pkgerrors.CodeOf(err)))
		return err
	}
	s.metrics.IncWrite("approve", "ok")

	logCtx := s.logg.WithUserID(s.logg.WithVisitID(s.logg.WithTenantID(ctx, tenantID), visitID), input.ManagerID)
	s.logg.Info(logCtx, "visits.approved")

	if s.publisher == nil {
		return nil
	}
	event := VisitApprovedEvent{
		VisitID:        visitID,
		ManagerID:      input.ManagerID,
		ManagerComment: input.Comment,
		ApprovedAt:     approvedAt,
	}
	if _, err := s.publisher.Publish(ctx, EventVisitApproved, tenantID, event); err != nil {
		s.logg.Error(logCtx, "visits.approved.publish_failed", err)
	}
	return nil
}

func (s *service) now() time.Time {
	return s.clock().UTC().Truncate(time.Millisecond)
}
