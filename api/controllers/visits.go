package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldpath/visittracker/api/middleware"
	"github.com/fieldpath/visittracker/api/responses"
	"github.com/fieldpath/visittracker/api/validators"
	"github.com/fieldpath/visittracker/internal/visits"
	"github.com/fieldpath/visittracker/pkg/logger"
	"github.com/fieldpath/visittracker/pkg/models"
)

const VisitIDParam = "visitId"

// VisitFeed serves GET /visits: a bare JSON array of transfer records from
// the current snapshot.
func VisitFeed(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, err := validators.RequiredQueryID(r, "tenantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		filter, err := streamFilter(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		list, err := svc.Snapshot(ctx, tenantID, filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteRaw(w, http.StatusOK, transferRecords(list))
	}
}

func VisitList(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		filter, err := streamFilter(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		list, err := svc.Snapshot(ctx, middleware.TenantIDFromContext(ctx), filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func VisitGet(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		visit, err := svc.Get(ctx, middleware.TenantIDFromContext(ctx), chi.URLParam(r, VisitIDParam))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, visit)
	}
}

func VisitCreate(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var input visits.CreateVisitInput
		if err := validators.DecodeJSONBody(w, r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		visit, err := svc.Create(ctx, middleware.TenantIDFromContext(ctx), input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, visit)
	}
}

func VisitUpdate(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var visit models.VisitCard
		if err := validators.DecodeJSON(w, r, &visit); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		updated, err := svc.Update(ctx, middleware.TenantIDFromContext(ctx), chi.URLParam(r, VisitIDParam), visit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

func VisitApprove(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var input visits.ApproveVisitInput
		if err := validators.DecodeJSONBody(w, r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		visitID := chi.URLParam(r, VisitIDParam)
		if err := svc.Approve(ctx, middleware.TenantIDFromContext(ctx), visitID, input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"id": visitID, "status": "Approved"})
	}
}

func streamFilter(r *http.Request) (visits.StreamFilter, error) {
	routeID, err := validators.QueryID(r, "routeId")
	if err != nil {
		return visits.StreamFilter{}, err
	}
	salesRepID, err := validators.QueryID(r, "salesRepId")
	if err != nil {
		return visits.StreamFilter{}, err
	}
	return visits.StreamFilter{RouteID: routeID, SalesRepID: salesRepID}, nil
}

func transferRecords(list []models.VisitCard) []visits.TransferRecord {
	out := make([]visits.TransferRecord, 0, len(list))
	for _, v := range list {
		out = append(out, visits.TransferRecord{ID: v.ID, Record: visits.RecordFromVisit(v)})
	}
	return out
}
