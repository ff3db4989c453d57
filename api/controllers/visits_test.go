package controllers

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldpath/visittracker/api/middleware"
	"github.com/fieldpath/visittracker/internal/visits"
	"github.com/fieldpath/visittracker/pkg/enums"
	pkgerrors "github.com/fieldpath/visittracker/pkg/errors"
	"github.com/fieldpath/visittracker/pkg/logger"
	"github.com/fieldpath/visittracker/pkg/models"
)

type testVisitsService struct {
	streamFn   func(ctx context.Context, tenantID string, filter visits.StreamFilter) iter.Seq2[[]models.VisitCard, error]
	snapshotFn func(ctx context.Context, tenantID string, filter visits.StreamFilter) ([]models.VisitCard, error)
	getFn      func(ctx context.Context, tenantID, visitID string) (*models.VisitCard, error)
	createFn   func(ctx context.Context, tenantID string, input visits.CreateVisitInput) (*models.VisitCard, error)
	updateFn   func(ctx context.Context, tenantID, visitID string, visit models.VisitCard) (*models.VisitCard, error)
	approveFn  func(ctx context.Context, tenantID, visitID string, input visits.ApproveVisitInput) error
}

func (s *testVisitsService) Stream(ctx context.Context, tenantID string, filter visits.StreamFilter) iter.Seq2[[]models.VisitCard, error] {
	return s.streamFn(ctx, tenantID, filter)
}

func (s *testVisitsService) Snapshot(ctx context.Context, tenantID string, filter visits.StreamFilter) ([]models.VisitCard, error) {
	return s.snapshotFn(ctx, tenantID, filter)
}

func (s *testVisitsService) Get(ctx context.Context, tenantID, visitID string) (*models.VisitCard, error) {
	return s.getFn(ctx, tenantID, visitID)
}

func (s *testVisitsService) Create(ctx context.Context, tenantID string, input visits.CreateVisitInput) (*models.VisitCard, error) {
	return s.createFn(ctx, tenantID, input)
}

func (s *testVisitsService) Update(ctx context.Context, tenantID, visitID string, visit models.VisitCard) (*models.VisitCard, error) {
	return s.updateFn(ctx, tenantID, visitID, visit)
}

func (s *testVisitsService) Approve(ctx context.Context, tenantID, visitID string, input visits.ApproveVisitInput) error {
	return s.approveFn(ctx, tenantID, visitID, input)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func testVisit(id string) models.VisitCard {
	return models.VisitCard{
		ID:           id,
		TenantID:     "t1",
		RouteID:      "r1",
		SalesRepID:   "s1",
		CustomerID:   "c1",
		CustomerName: "Corner Market",
		GeoPoint:     models.GeoPoint{Latitude: 37.422, Longitude: -122.084},
		GeoHash:      "9q9hv",
		Status:       enums.VisitStatusDraft,
		CreatedAt:    time.Date(2026, 3, 14, 9, 30, 0, 123e6, time.UTC),
		UpdatedAt:    time.Date(2026, 3, 14, 9, 30, 0, 123e6, time.UTC),
	}
}

func scopedRequest(method, target, body string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	routeCtx := chi.NewRouteContext()
	for k, v := range params {
		routeCtx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	ctx = middleware.WithTenantID(ctx, "t1")
	return req.WithContext(ctx)
}

func TestVisitFeedWritesBareArray(t *testing.T) {
	svc := &testVisitsService{
		snapshotFn: func(ctx context.Context, tenantID string, filter visits.StreamFilter) ([]models.VisitCard, error) {
			if tenantID != "t1" || filter.RouteID != "r1" || filter.SalesRepID != "" {
				t.Fatalf("unexpected scope %s %+v", tenantID, filter)
			}
			return []models.VisitCard{testVisit("v1")}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/visits?tenantId=t1&routeId=r1", nil)
	resp := httptest.NewRecorder()
	VisitFeed(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var records []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &records); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0]["id"] != "v1" || records[0]["createdAt"] != float64(1773480600123) {
		t.Fatalf("unexpected record %v", records[0])
	}
	if _, ok := records[0]["managerComment"]; !ok {
		t.Fatal("expected explicit null managerComment")
	}
}

func TestVisitFeedEmptyIsArray(t *testing.T) {
	svc := &testVisitsService{
		snapshotFn: func(context.Context, string, visits.StreamFilter) ([]models.VisitCard, error) {
			return []models.VisitCard{}, nil
		},
	}

	resp := httptest.NewRecorder()
	VisitFeed(svc, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/visits?tenantId=t1", nil))

	if body := strings.TrimSpace(resp.Body.String()); body != "[]" {
		t.Fatalf("expected empty array, got %s", body)
	}
}

func TestVisitFeedRequiresTenant(t *testing.T) {
	resp := httptest.NewRecorder()
	VisitFeed(&testVisitsService{}, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/visits", nil))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestVisitCreateReturnsCreated(t *testing.T) {
	svc := &testVisitsService{
		createFn: func(ctx context.Context, tenantID string, input visits.CreateVisitInput) (*models.VisitCard, error) {
			if tenantID != "t1" || input.CustomerName != "Corner Market" {
				t.Fatalf("unexpected input %s %+v", tenantID, input)
			}
			v := testVisit("generated")
			return &v, nil
		},
	}
	body := `{"routeId":"r1","salesRepId":"s1","customerId":"c1","customerName":"Corner Market","geoPoint":{"latitude":37.4,"longitude":-122.1}}`

	resp := httptest.NewRecorder()
	VisitCreate(svc, testLogger())(resp, scopedRequest(http.MethodPost, "/api/v1/tenants/t1/visits", body, nil))

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data models.VisitCard `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.ID != "generated" {
		t.Fatalf("unexpected id %s", envelope.Data.ID)
	}
}

func TestVisitCreateRejectsInvalidBody(t *testing.T) {
	svc := &testVisitsService{
		createFn: func(context.Context, string, visits.CreateVisitInput) (*models.VisitCard, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	resp := httptest.NewRecorder()
	VisitCreate(svc, testLogger())(resp, scopedRequest(http.MethodPost, "/", `{"routeId":"r1"}`, nil))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestVisitUpdateUsesPathIdentity(t *testing.T) {
	svc := &testVisitsService{
		updateFn: func(ctx context.Context, tenantID, visitID string, visit models.VisitCard) (*models.VisitCard, error) {
			if tenantID != "t1" || visitID != "v7" {
				t.Fatalf("unexpected identity %s/%s", tenantID, visitID)
			}
			if visit.Status != enums.VisitStatusPendingReview {
				t.Fatalf("unexpected status %s", visit.Status)
			}
			visit.ID, visit.TenantID = visitID, tenantID
			return &visit, nil
		},
	}
	body := `{"routeId":"r1","customerName":"Corner Market","status":"PendingReview"}`

	resp := httptest.NewRecorder()
	VisitUpdate(svc, testLogger())(resp, scopedRequest(http.MethodPut, "/", body, map[string]string{VisitIDParam: "v7"}))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
}

func TestVisitApproveMapsNotFound(t *testing.T) {
	svc := &testVisitsService{
		approveFn: func(ctx context.Context, tenantID, visitID string, input visits.ApproveVisitInput) error {
			if input.ManagerID != "m1" || input.Comment == nil || *input.Comment != "nice" {
				t.Fatalf("unexpected input %+v", input)
			}
			return pkgerrors.New(pkgerrors.CodeNotFound, "approve visit: not found")
		},
	}

	resp := httptest.NewRecorder()
	req := scopedRequest(http.MethodPost, "/", `{"managerId":"m1","managerComment":"nice"}`, map[string]string{VisitIDParam: "v404"})
	VisitApprove(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestVisitListEnvelope(t *testing.T) {
	svc := &testVisitsService{
		snapshotFn: func(ctx context.Context, tenantID string, filter visits.StreamFilter) ([]models.VisitCard, error) {
			if filter.SalesRepID != "s1" {
				t.Fatalf("unexpected filter %+v", filter)
			}
			return []models.VisitCard{testVisit("v1"), testVisit("v2")}, nil
		},
	}

	resp := httptest.NewRecorder()
	VisitList(svc, testLogger())(resp, scopedRequest(http.MethodGet, "/?salesRepId=s1", "", nil))

	var envelope struct {
		Data []models.VisitCard `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(envelope.Data) != 2 {
		t.Fatalf("expected two visits, got %d", len(envelope.Data))
	}
}
