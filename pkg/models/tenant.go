package models

// Tenant is the root isolation boundary; every other entity belongs to one.
type Tenant struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	IsActive bool   `json:"isActive"`
}
