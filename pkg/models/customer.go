package models

// Customer is a visited account. GeoFence is an ordered polygon, empty when unset.
type Customer struct {
	ID       string     `json:"id" validate:"required"`
	TenantID string     `json:"tenantId" validate:"required"`
	Name     string     `json:"name" validate:"required"`
	Address  string     `json:"address"`
	GeoFence []GeoPoint `json:"geoFence,omitempty" validate:"omitempty,dive"`
}
