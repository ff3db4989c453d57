package directory

import (
	"encoding/json"
	"fmt"

	"google.golang.org/genproto/googleapis/type/latlng"

	"github.com/fieldpath/visittracker/pkg/enums"
	pkgerrors "github.com/fieldpath/visittracker/pkg/errors"
	"github.com/fieldpath/visittracker/pkg/models"
)

// Stored field names. The entity id is the document key and is not stored.
const (
	fieldName             = "name"
	fieldIsActive         = "isActive"
	fieldTenantID         = "tenantId"
	fieldAddress          = "address"
	fieldGeoFence         = "geoFence"
	fieldCustomerIDs      = "customerIds"
	fieldManagerIDs       = "managerIds"
	fieldSalesRepIDs      = "salesRepIds"
	fieldEmail            = "email"
	fieldDisplayName      = "displayName"
	fieldRole             = "role"
	fieldAssignedRouteIDs = "assignedRouteIds"
)

func tenantFields(t models.Tenant) map[string]any {
	return map[string]any{
		fieldName:     t.Name,
		fieldIsActive: t.IsActive,
	}
}

func decodeTenant(id string, data map[string]any) (models.Tenant, error) {
	d := decoder{data: data}
	t := models.Tenant{
		ID:       id,
		Name:     d.str(fieldName),
		IsActive: d.boolean(fieldIsActive),
	}
	return t, d.err
}

// Geofence points are stored as native geo points.
func customerFields(c models.Customer) map[string]any {
	fence := make([]any, 0, len(c.GeoFence))
	for _, p := range c.GeoFence {
		fence = append(fence, p.LatLng())
	}
	return map[string]any{
		fieldTenantID: c.TenantID,
		fieldName:     c.Name,
		fieldAddress:  c.Address,
		fieldGeoFence: fence,
	}
}

func decodeCustomer(id, tenantID string, data map[string]any) (models.Customer, error) {
	d := decoder{data: data}
	c := models.Customer{
		ID:       id,
		TenantID: tenantID,
		Name:     d.str(fieldName),
		Address:  d.str(fieldAddress),
		GeoFence: d.geoPoints(fieldGeoFence),
	}
	return c, d.err
}

func routeFields(r models.Route) map[string]any {
	return map[string]any{
		fieldTenantID:    r.TenantID,
		fieldName:        r.Name,
		fieldCustomerIDs: nonNil(r.CustomerIDs),
		fieldManagerIDs:  nonNil(r.ManagerIDs),
		fieldSalesRepIDs: nonNil(r.SalesRepIDs),
	}
}

func decodeRoute(id, tenantID string, data map[string]any) (models.Route, error) {
	d := decoder{data: data}
	r := models.Route{
		ID:          id,
		TenantID:    tenantID,
		Name:        d.str(fieldName),
		CustomerIDs: d.strings(fieldCustomerIDs),
		ManagerIDs:  d.strings(fieldManagerIDs),
		SalesRepIDs: d.strings(fieldSalesRepIDs),
	}
	return r, d.err
}

func userFields(u models.UserAccount) map[string]any {
	return map[string]any{
		fieldTenantID:         u.TenantID,
		fieldEmail:            u.Email,
		fieldDisplayName:      u.DisplayName,
		fieldRole:             u.Role.String(),
		fieldAssignedRouteIDs: nonNil(u.AssignedRouteIDs),
	}
}

func decodeUser(id, tenantID string, data map[string]any) (models.UserAccount, error) {
	d := decoder{data: data}
	u := models.UserAccount{
		ID:               id,
		TenantID:         tenantID,
		Email:            d.str(fieldEmail),
		DisplayName:      d.str(fieldDisplayName),
		AssignedRouteIDs: d.strings(fieldAssignedRouteIDs),
	}
	role, err := enums.ParseUserRole(d.str(fieldRole))
	if err != nil && d.err == nil {
		d.err = pkgerrors.Wrap(pkgerrors.CodeDecode, err, "decode user account")
	}
	u.Role = role
	return u, d.err
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// decoder reads loosely typed store values and keeps the first failure.
// Missing fields decode to zero values.
type decoder struct {
	data map[string]any
	err  error
}

func (d *decoder) fail(field string, value any) {
	if d.err == nil {
		d.err = pkgerrors.New(pkgerrors.CodeDecode, fmt.Sprintf("field %s has unexpected type %T", field, value))
	}
}

func (d *decoder) str(field string) string {
	raw, ok := d.data[field]
	if !ok || raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		d.fail(field, raw)
	}
	return s
}

func (d *decoder) boolean(field string) bool {
	raw, ok := d.data[field]
	if !ok || raw == nil {
		return false
	}
	b, ok := raw.(bool)
	if !ok {
		d.fail(field, raw)
	}
	return b
}

func (d *decoder) strings(field string) []string {
	switch v := d.data[field].(type) {
	case nil:
		return []string{}
	case []string:
		return append([]string{}, v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				d.fail(field, item)
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		d.fail(field, v)
		return nil
	}
}

func (d *decoder) geoPoints(field string) []models.GeoPoint {
	var items []any
	switch v := d.data[field].(type) {
	case nil:
		return nil
	case []any:
		items = v
	case []*latlng.LatLng:
		for _, p := range v {
			items = append(items, p)
		}
	default:
		d.fail(field, v)
		return nil
	}

	points := make([]models.GeoPoint, 0, len(items))
	for _, item := range items {
		p, ok := geoPoint(item)
		if !ok {
			d.fail(field, item)
			return nil
		}
		points = append(points, p)
	}
	return points
}

func geoPoint(v any) (models.GeoPoint, bool) {
	switch p := v.(type) {
	case *latlng.LatLng:
		return models.GeoPointFromLatLng(p), true
	case map[string]any:
		lat, latOK := number(p["latitude"])
		lng, lngOK := number(p["longitude"])
		return models.GeoPoint{Latitude: lat, Longitude: lng}, latOK && lngOK
	}
	return models.GeoPoint{}, false
}

// number accepts the numeric shapes the store backends produce. An absent
// coordinate is zero; protobuf JSON omits zero values.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
