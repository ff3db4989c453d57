// Package directory manages the tenant-scoped reference data visits point
// at: tenants, customers, routes and user accounts.
package directory

import (
	"context"

	"github.com/fieldpath/visittracker/pkg/docstore"
	"github.com/fieldpath/visittracker/pkg/enums"
	pkgerrors "github.com/fieldpath/visittracker/pkg/errors"
	"github.com/fieldpath/visittracker/pkg/logger"
	"github.com/fieldpath/visittracker/pkg/models"
	"github.com/fieldpath/visittracker/pkg/paths"
)

// Repository persists directory entities. Writes are full overwrites and
// nothing cascades; store errors are returned unmodified.
type Repository interface {
	SaveTenant(ctx context.Context, tenant models.Tenant) error
	GetTenant(ctx context.Context, tenantID string) (models.Tenant, error)
	DeactivateTenant(ctx context.Context, tenantID string) error
	SaveCustomer(ctx context.Context, customer models.Customer) error
	ListCustomers(ctx context.Context, tenantID string) ([]models.Customer, error)
	SaveRoute(ctx context.Context, route models.Route) error
	ListRoutes(ctx context.Context, tenantID string) ([]models.Route, error)
	SaveUser(ctx context.Context, user models.UserAccount) error
	ListUsers(ctx context.Context, tenantID string, role enums.UserRole) ([]models.UserAccount, error)
}

type repositoryImpl struct {
	store docstore.Store
	logg  *logger.Logger
}

func NewRepository(store docstore.Store, logg *logger.Logger) Repository {
	if logg == nil {
		logg = logger.Nop()
	}
	return &repositoryImpl{store: store, logg: logg}
}

func (r *repositoryImpl) SaveTenant(ctx context.Context, tenant models.Tenant) error {
	if err := requireIDs(tenant.ID); err != nil {
		return err
	}
	return r.store.Doc(paths.TenantDoc(tenant.ID)).Set(ctx, tenantFields(tenant))
}

func (r *repositoryImpl) GetTenant(ctx context.Context, tenantID string) (models.Tenant, error) {
	if err := requireIDs(tenantID); err != nil {
		return models.Tenant{}, err
	}
	doc, err := r.store.Doc(paths.TenantDoc(tenantID)).Get(ctx)
	if err != nil {
		return models.Tenant{}, err
	}
	return decodeTenant(doc.ID(), doc.Data())
}

// DeactivateTenant flips isActive off. Child data is left in place.
func (r *repositoryImpl) DeactivateTenant(ctx context.Context, tenantID string) error {
	if err := requireIDs(tenantID); err != nil {
		return err
	}
	return r.store.Doc(paths.TenantDoc(tenantID)).Update(ctx, []docstore.FieldUpdate{
		{Path: fieldIsActive, Value: false},
	})
}

func (r *repositoryImpl) SaveCustomer(ctx context.Context, customer models.Customer) error {
	if err := requireIDs(customer.TenantID, customer.ID); err != nil {
		return err
	}
	return r.store.Doc(paths.CustomerDoc(customer.TenantID, customer.ID)).Set(ctx, customerFields(customer))
}

func (r *repositoryImpl) ListCustomers(ctx context.Context, tenantID string) ([]models.Customer, error) {
	return list(ctx, r, tenantID, paths.CustomersCollection(tenantID), decodeCustomer)
}

func (r *repositoryImpl) SaveRoute(ctx context.Context, route models.Route) error {
	if err := requireIDs(route.TenantID, route.ID); err != nil {
		return err
	}
	return r.store.Doc(paths.RouteDoc(route.TenantID, route.ID)).Set(ctx, routeFields(route))
}

func (r *repositoryImpl) ListRoutes(ctx context.Context, tenantID string) ([]models.Route, error) {
	return list(ctx, r, tenantID, paths.RoutesCollection(tenantID), decodeRoute)
}

// SaveUser stores the account under the collection for its role.
func (r *repositoryImpl) SaveUser(ctx context.Context, user models.UserAccount) error {
	if err := requireIDs(user.TenantID, user.ID); err != nil {
		return err
	}
	collection, err := usersCollection(user.TenantID, user.Role)
	if err != nil {
		return err
	}
	return r.store.Doc(collection+"/"+user.ID).Set(ctx, userFields(user))
}

func (r *repositoryImpl) ListUsers(ctx context.Context, tenantID string, role enums.UserRole) ([]models.UserAccount, error) {
	collection, err := usersCollection(tenantID, role)
	if err != nil {
		return nil, err
	}
	return list(ctx, r, tenantID, collection, decodeUser)
}

// list reads a collection once. Documents that fail to decode are logged
// and skipped.
func list[T any](ctx context.Context, r *repositoryImpl, tenantID, collection string, decode func(id, tenantID string, data map[string]any) (T, error)) ([]T, error) {
	if err := requireIDs(tenantID); err != nil {
		return nil, err
	}
	docs, err := r.store.Collection(collection).Documents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := decode(doc.ID(), tenantID, doc.Data())
		if err != nil {
			r.logg.Warn(r.logg.WithFields(r.logg.WithTenantID(ctx, tenantID), map[string]any{
				"collection":  collection,
				"document_id": doc.ID(),
				"error":       err.Error(),
			}), "directory.decode_dropped")
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func usersCollection(tenantID string, role enums.UserRole) (string, error) {
	switch role {
	case enums.UserRoleAdmin:
		return paths.AdminsCollection(tenantID), nil
	case enums.UserRoleManager:
		return paths.ManagersCollection(tenantID), nil
	case enums.UserRoleSalesRep:
		return paths.SalesRepsCollection(tenantID), nil
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid user role").
		WithDetails(map[string]string{"role": "is invalid"})
}

func requireIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "id required")
		}
	}
	return nil
}
