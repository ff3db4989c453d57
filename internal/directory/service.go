package directory

import (
	"context"

	"github.com/google/uuid"

	"github.com/fieldpath/visittracker/pkg/docstore"
	"github.com/fieldpath/visittracker/pkg/enums"
	pkgerrors "github.com/fieldpath/visittracker/pkg/errors"
	"github.com/fieldpath/visittracker/pkg/logger"
	"github.com/fieldpath/visittracker/pkg/models"
	"github.com/fieldpath/visittracker/pkg/validation"
)

// Service is the admin surface over the directory. Tenant ids always come
// from the request path.
type Service interface {
	SaveTenant(ctx context.Context, tenantID string, input TenantInput) (*models.Tenant, error)
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
	DeactivateTenant(ctx context.Context, tenantID string) error
	SaveCustomer(ctx context.Context, tenantID string, input CustomerInput) (*models.Customer, error)
	ListCustomers(ctx context.Context, tenantID string) ([]models.Customer, error)
	SaveRoute(ctx context.Context, tenantID string, input RouteInput) (*models.Route, error)
	ListRoutes(ctx context.Context, tenantID string) ([]models.Route, error)
	SaveUser(ctx context.Context, tenantID string, input UserInput) (*models.UserAccount, error)
	// ListUsers returns every account when role is empty.
	ListUsers(ctx context.Context, tenantID string, role enums.UserRole) ([]models.UserAccount, error)
}

type TenantInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	IsActive *bool  `json:"isActive,omitempty"`
}

// CustomerInput creates or replaces a customer; an empty id creates one.
type CustomerInput struct {
	ID       string            `json:"id,omitempty"`
	Name     string            `json:"name" validate:"required,max=200"`
	Address  string            `json:"address" validate:"max=500"`
	GeoFence []models.GeoPoint `json:"geoFence,omitempty" validate:"omitempty,dive"`
}

type RouteInput struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name" validate:"required,max=200"`
	CustomerIDs []string `json:"customerIds"`
	ManagerIDs  []string `json:"managerIds"`
	SalesRepIDs []string `json:"salesRepIds"`
}

type UserInput struct {
	ID               string         `json:"id,omitempty"`
	Email            string         `json:"email" validate:"required,email"`
	DisplayName      string         `json:"displayName" validate:"max=200"`
	Role             enums.UserRole `json:"role" validate:"required,oneof=ADMIN MANAGER SALES_REP"`
	AssignedRouteIDs []string       `json:"assignedRouteIds"`
}

type ServiceParams struct {
	Repository Repository
	Logger     *logger.Logger
}

type service struct {
	repo  Repository
	logg  *logger.Logger
	newID func() string
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "directory repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:  params.Repository,
		logg:  logg,
		newID: func() string { return uuid.NewString() },
	}, nil
}

func (s *service) SaveTenant(ctx context.Context, tenantID string, input TenantInput) (*models.Tenant, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	tenant := models.Tenant{ID: tenantID, Name: input.Name, IsActive: true}
	if input.IsActive != nil {
		tenant.IsActive = *input.IsActive
	}
	if err := s.repo.SaveTenant(ctx, tenant); err != nil {
		return nil, docstore.Classify(err, "save tenant")
	}
	s.logg.Info(s.logg.WithTenantID(ctx, tenantID), "directory.tenant_saved")
	return &tenant, nil
}

func (s *service) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	tenant, err := s.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, docstore.Classify(err, "get tenant")
	}
	return &tenant, nil
}

func (s *service) DeactivateTenant(ctx context.Context, tenantID string) error {
	if err := s.repo.DeactivateTenant(ctx, tenantID); err != nil {
		return docstore.Classify(err, "deactivate tenant")
	}
	s.logg.Info(s.logg.WithTenantID(ctx, tenantID), "directory.tenant_deactivated")
	return nil
}

func (s *service) SaveCustomer(ctx context.Context, tenantID string, input CustomerInput) (*models.Customer, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	customer := models.Customer{
		ID:       s.idOrNew(input.ID),
		TenantID: tenantID,
		Name:     input.Name,
		Address:  input.Address,
		GeoFence: input.GeoFence,
	}
	if err := s.repo.SaveCustomer(ctx, customer); err != nil {
		return nil, docstore.Classify(err, "save customer")
	}
	return &customer, nil
}

func (s *service) ListCustomers(ctx context.Context, tenantID string) ([]models.Customer, error) {
	customers, err := s.repo.ListCustomers(ctx, tenantID)
	if err != nil {
		return nil, docstore.Classify(err, "list customers")
	}
	return customers, nil
}

func (s *service) SaveRoute(ctx context.Context, tenantID string, input RouteInput) (*models.Route, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	route := models.Route{
		ID:          s.idOrNew(input.ID),
		TenantID:    tenantID,
		Name:        input.Name,
		CustomerIDs: nonNil(input.CustomerIDs),
		ManagerIDs:  nonNil(input.ManagerIDs),
		SalesRepIDs: nonNil(input.SalesRepIDs),
	}
	if err := s.repo.SaveRoute(ctx, route); err != nil {
		return nil, docstore.Classify(err, "save route")
	}
	return &route, nil
}

func (s *service) ListRoutes(ctx context.Context, tenantID string) ([]models.Route, error) {
	routes, err := s.repo.ListRoutes(ctx, tenantID)
	if err != nil {
		return nil, docstore.Classify(err, "list routes")
	}
	return routes, nil
}

func (s *service) SaveUser(ctx context.Context, tenantID string, input UserInput) (*models.UserAccount, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	user := models.UserAccount{
		ID:               s.idOrNew(input.ID),
		TenantID:         tenantID,
		Email:            input.Email,
		DisplayName:      input.DisplayName,
		Role:             input.Role,
		AssignedRouteIDs: nonNil(input.AssignedRouteIDs),
	}
	if err := s.repo.SaveUser(ctx, user); err != nil {
		return nil, docstore.Classify(err, "save user")
	}
	s.logg.Info(s.logg.WithUserID(s.logg.WithTenantID(ctx, tenantID), user.ID), "directory.user_saved")
	return &user, nil
}

func (s *service) ListUsers(ctx context.Context, tenantID string, role enums.UserRole) ([]models.UserAccount, error) {
	roles := []enums.UserRole{role}
	if role == "" {
		roles = []enums.UserRole{enums.UserRoleAdmin, enums.UserRoleManager, enums.UserRoleSalesRep}
	}
	users := []models.UserAccount{}
	for _, r := range roles {
		batch, err := s.repo.ListUsers(ctx, tenantID, r)
		if err != nil {
			return nil, docstore.Classify(err, "list users")
		}
		users = append(users, batch...)
	}
	return users, nil
}

func (s *service) idOrNew(id string) string {
	if id != "" {
		return id
	}
	return s.newID()
}
