package models

import "github.com/fieldpath/visittracker/pkg/enums"

type UserAccount struct {
	ID               string         `json:"id" validate:"required"`
	TenantID         string         `json:"tenantId" validate:"required"`
	Email            string         `json:"email" validate:"required,email"`
	DisplayName      string         `json:"displayName"`
	Role             enums.UserRole `json:"role" validate:"required"`
	AssignedRouteIDs []string       `json:"assignedRouteIds"`
}
