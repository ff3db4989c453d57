package models

// Route groups customers for assignment. CustomerIDs order is the visit sequence.
type Route struct {
	ID          string   `json:"id" validate:"required"`
	TenantID    string   `json:"tenantId" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	CustomerIDs []string `json:"customerIds"`
	ManagerIDs  []string `json:"managerIds"`
	SalesRepIDs []string `json:"salesRepIds"`
}
