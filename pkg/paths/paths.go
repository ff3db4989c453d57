// Package paths maps tenant and entity ids to document store paths.
// Ids are passed through verbatim; callers guarantee they are non-empty.
package paths

const (
	tenantsCollection = "tenants"

	customersSegment = "customers"
	routesSegment    = "routes"
	managersSegment  = "managers"
	salesRepsSegment = "salesReps"
	adminsSegment    = "admins"
	visitsSegment    = "visits"
)

func TenantsCollection() string {
	return tenantsCollection
}

func TenantDoc(tenantID string) string {
	return tenantsCollection + "/" + tenantID
}

func CustomersCollection(tenantID string) string {
	return tenantScoped(tenantID, customersSegment)
}

func CustomerDoc(tenantID, customerID string) string {
	return CustomersCollection(tenantID) + "/" + customerID
}

func RoutesCollection(tenantID string) string {
	return tenantScoped(tenantID, routesSegment)
}

func RouteDoc(tenantID, routeID string) string {
	return RoutesCollection(tenantID) + "/" + routeID
}

func ManagersCollection(tenantID string) string {
	return tenantScoped(tenantID, managersSegment)
}

func SalesRepsCollection(tenantID string) string {
	return tenantScoped(tenantID, salesRepsSegment)
}

func AdminsCollection(tenantID string) string {
	return tenantScoped(tenantID, adminsSegment)
}

func VisitsCollection(tenantID string) string {
	return tenantScoped(tenantID, visitsSegment)
}

func VisitDoc(tenantID, visitID string) string {
	return VisitsCollection(tenantID) + "/" + visitID
}

func tenantScoped(tenantID, segment string) string {
	return TenantDoc(tenantID) + "/" + segment
}
