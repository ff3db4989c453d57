package models

import (
	"time"

	"github.com/fieldpath/visittracker/pkg/enums"
)

// VisitCard is a single field-visit report authored by a sales rep.
// CustomerName is a snapshot taken at creation and is never re-synced.
type VisitCard struct {
	ID             string            `json:"id" validate:"required"`
	TenantID       string            `json:"tenantId" validate:"required"`
	RouteID        string            `json:"routeId"`
	SalesRepID     string            `json:"salesRepId"`
	CustomerID     string            `json:"customerId"`
	CustomerName   string            `json:"customerName"`
	GeoPoint       GeoPoint          `json:"geoPoint"`
	GeoHash        string            `json:"geoHash"`
	Summary        string            `json:"summary"`
	Notes          string            `json:"notes"`
	ImageURL       *string           `json:"imageUrl,omitempty" validate:"omitempty,url"`
	Status         enums.VisitStatus `json:"status" validate:"required"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	ManagerComment *string           `json:"managerComment,omitempty"`
}
