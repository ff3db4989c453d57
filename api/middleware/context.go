package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fieldpath/visittracker/api/responses"
	pkgerrors "github.com/fieldpath/visittracker/pkg/errors"
	"github.com/fieldpath/visittracker/pkg/logger"
)

type contextKey string

const ctxTenantID contextKey = "tenant_id"

// TenantIDParam is the chi route parameter carrying the tenant.
const TenantIDParam = "tenantId"

func TenantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxTenantID).(string); ok {
		return v
	}
	return ""
}

// WithTenantID injects the tenant identifier into the context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxTenantID, tenantID)
}

// TenantScope reads {tenantId} from the route and scopes the request to it.
func TenantScope(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tenantID := strings.TrimSpace(chi.URLParam(r, TenantIDParam))
			if tenantID == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required"))
				return
			}
			ctx = WithTenantID(ctx, tenantID)
			if logg != nil {
				ctx = logg.WithTenantID(ctx, tenantID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
