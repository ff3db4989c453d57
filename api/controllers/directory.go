package controllers

import (
	"net/http"
	"strings"

	"github.com/fieldpath/visittracker/api/middleware"
	"github.com/fieldpath/visittracker/api/responses"
	"github.com/fieldpath/visittracker/api/validators"
	"github.com/fieldpath/visittracker/internal/directory"
	"github.com/fieldpath/visittracker/pkg/enums"
	pkgerrors "github.com/fieldpath/visittracker/pkg/errors"
	"github.com/fieldpath/visittracker/pkg/logger"
)

func TenantSave(svc directory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var input directory.TenantInput
		if err := validators.DecodeJSONBody(w, r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		tenant, err := svc.SaveTenant(ctx, middleware.TenantIDFromContext(ctx), input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, tenant)
	}
}

func TenantGet(svc directory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenant, err := svc.GetTenant(ctx, middleware.TenantIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, tenant)
	}
}

func TenantDeactivate(svc directory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID := middleware.TenantIDFromContext(ctx)
		if err := svc.DeactivateTenant(ctx, tenantID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": tenantID, "isActive": false})
	}
}

func CustomerList(svc directory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		customers, err := svc.ListCustomers(ctx, middleware.TenantIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, customers)
	}
}

func CustomerSave(svc directory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var input directory.CustomerInput
		if err := validators.DecodeJSONBody(w, r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		customer, err := svc.SaveCustomer(ctx, middleware.TenantIDFromContext(ctx), input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, customer)
	}
}

func RouteList(svc directory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		routes, err := svc.ListRoutes(ctx, middleware.TenantIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, routes)
	}
}

func RouteSave(svc directory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var input directory.RouteInput
		if err := validators.DecodeJSONBody(w, r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		route, err := svc.SaveRoute(ctx, middleware.TenantIDFromContext(ctx), input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, route)
	}
}

// UserList accepts an optional ?role= filter.
func UserList(svc directory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var role enums.UserRole
		if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
			parsed, err := enums.ParseUserRole(strings.ToUpper(raw))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role").
					WithDetails(map[string]any{"field": "role"}))
				return
			}
			role = parsed
		}
		users, err := svc.ListUsers(ctx, middleware.TenantIDFromContext(ctx), role)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, users)
	}
}

func UserSave(svc directory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var input directory.UserInput
		if err := validators.DecodeJSONBody(w, r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		user, err := svc.SaveUser(ctx, middleware.TenantIDFromContext(ctx), input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, user)
	}
}
