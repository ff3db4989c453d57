package visits

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/fieldpath/visittracker/pkg/enums"
	pkgerrors "github.com/fieldpath/visittracker/pkg/errors"
	"github.com/fieldpath/visittracker/pkg/models"
)

// Stored field names.
const (
	FieldTenantID       = "tenantId"
	FieldRouteID        = "routeId"
	FieldSalesRepID     = "salesRepId"
	FieldCustomerID     = "customerId"
	FieldCustomerName   = "customerName"
	FieldLatitude       = "latitude"
	FieldLongitude      = "longitude"
	FieldGeoHash        = "geoHash"
	FieldSummary        = "summary"
	FieldNotes          = "notes"
	FieldImageURL       = "imageUrl"
	FieldStatus         = "status"
	FieldManagerComment = "managerComment"
	FieldApprovedBy     = "approvedBy"
	FieldCreatedAt      = "createdAt"
	FieldUpdatedAt      = "updatedAt"
)

// Record is the flat persisted and wire shape of a visit. It carries no id;
// the enclosing document key supplies it. Timestamps are epoch milliseconds.
type Record struct {
	TenantID       string  `json:"tenantId"`
	RouteID        string  `json:"routeId"`
	SalesRepID     string  `json:"salesRepId"`
	CustomerID     string  `json:"customerId"`
	CustomerName   string  `json:"customerName"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	GeoHash        string  `json:"geoHash"`
	Summary        string  `json:"summary"`
	Notes          string  `json:"notes"`
	ImageURL       *string `json:"imageUrl"`
	Status         string  `json:"status"`
	ManagerComment *string `json:"managerComment"`
	CreatedAt      int64   `json:"createdAt"`
	UpdatedAt      int64   `json:"updatedAt"`
}

// TransferRecord is a Record plus its id, as served by GET /visits.
type TransferRecord struct {
	ID string `json:"id"`
	Record
}

func RecordFromVisit(v models.VisitCard) Record {
	return Record{
		TenantID:       v.TenantID,
		RouteID:        v.RouteID,
		SalesRepID:     v.SalesRepID,
		CustomerID:     v.CustomerID,
		CustomerName:   v.CustomerName,
		Latitude:       v.GeoPoint.Latitude,
		Longitude:      v.GeoPoint.Longitude,
		GeoHash:        v.GeoHash,
		Summary:        v.Summary,
		Notes:          v.Notes,
		ImageURL:       v.ImageURL,
		Status:         v.Status.String(),
		ManagerComment: v.ManagerComment,
		CreatedAt:      ToEpochMillis(v.CreatedAt),
		UpdatedAt:      ToEpochMillis(v.UpdatedAt),
	}
}

// ToVisit decodes the record under the given id and tenant. The tenant comes
// from the query scope rather than the stored field. An unknown or missing
// status is a CodeDecode error.
func (r Record) ToVisit(id, tenantID string) (models.VisitCard, error) {
	status, err := enums.ParseVisitStatus(r.Status)
	if err != nil {
		return models.VisitCard{}, pkgerrors.Wrap(pkgerrors.CodeDecode, err, "decoding visit status").
			WithDetails(map[string]any{"visitId": id, "status": r.Status})
	}
	return models.VisitCard{
		ID:             id,
		TenantID:       tenantID,
		RouteID:        r.RouteID,
		SalesRepID:     r.SalesRepID,
		CustomerID:     r.CustomerID,
		CustomerName:   r.CustomerName,
		GeoPoint:       models.GeoPoint{Latitude: r.Latitude, Longitude: r.Longitude},
		GeoHash:        r.GeoHash,
		Summary:        r.Summary,
		Notes:          r.Notes,
		ImageURL:       r.ImageURL,
		Status:         status,
		CreatedAt:      FromEpochMillis(r.CreatedAt),
		UpdatedAt:      FromEpochMillis(r.UpdatedAt),
		ManagerComment: r.ManagerComment,
	}, nil
}

// Fields renders the record as a store document. Optional values are
// written as explicit nulls.
func (r Record) Fields() map[string]any {
	return map[string]any{
		FieldTenantID:       r.TenantID,
		FieldRouteID:        r.RouteID,
		FieldSalesRepID:     r.SalesRepID,
		FieldCustomerID:     r.CustomerID,
		FieldCustomerName:   r.CustomerName,
		FieldLatitude:       r.Latitude,
		FieldLongitude:      r.Longitude,
		FieldGeoHash:        r.GeoHash,
		FieldSummary:        r.Summary,
		FieldNotes:          r.Notes,
		FieldImageURL:       nullable(r.ImageURL),
		FieldStatus:         r.Status,
		FieldManagerComment: nullable(r.ManagerComment),
		FieldCreatedAt:      r.CreatedAt,
		FieldUpdatedAt:      r.UpdatedAt,
	}
}

// RecordFromFields reads a store document. Absent scalar fields take their
// zero value and absent or null optionals decode to nil. A present field of
// the wrong type is a CodeDecode error.
func RecordFromFields(data map[string]any) (Record, error) {
	d := fieldDecoder{data: data}
	r := Record{
		TenantID:       d.str(FieldTenantID),
		RouteID:        d.str(FieldRouteID),
		SalesRepID:     d.str(FieldSalesRepID),
		CustomerID:     d.str(FieldCustomerID),
		CustomerName:   d.str(FieldCustomerName),
		Latitude:       d.float(FieldLatitude),
		Longitude:      d.float(FieldLongitude),
		GeoHash:        d.str(FieldGeoHash),
		Summary:        d.str(FieldSummary),
		Notes:          d.str(FieldNotes),
		ImageURL:       d.optStr(FieldImageURL),
		Status:         d.str(FieldStatus),
		ManagerComment: d.optStr(FieldManagerComment),
		CreatedAt:      d.millis(FieldCreatedAt),
		UpdatedAt:      d.millis(FieldUpdatedAt),
	}
	if d.err != nil {
		return Record{}, d.err
	}
	return r, nil
}

// DecodeVisit maps a stored document straight to a VisitCard.
func DecodeVisit(id, tenantID string, data map[string]any) (models.VisitCard, error) {
	r, err := RecordFromFields(data)
	if err != nil {
		return models.VisitCard{}, err
	}
	return r.ToVisit(id, tenantID)
}

func ToEpochMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

type fieldDecoder struct {
	data map[string]any
	err  error
}

func (d *fieldDecoder) fail(field string, value any) {
	if d.err != nil {
		return
	}
	d.err = pkgerrors.New(pkgerrors.CodeDecode, fmt.Sprintf("field %s has unexpected type %T", field, value)).
		WithDetails(map[string]any{"field": field})
}

func (d *fieldDecoder) str(field string) string {
	v, ok := d.data[field]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(field, v)
	}
	return s
}

func (d *fieldDecoder) optStr(field string) *string {
	v, ok := d.data[field]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		d.fail(field, v)
		return nil
	}
	return &s
}

func (d *fieldDecoder) float(field string) float64 {
	v, ok := d.data[field]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			d.fail(field, v)
		}
		return f
	}
	d.fail(field, v)
	return 0
}

func (d *fieldDecoder) millis(field string) int64 {
	v, ok := d.data[field]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		if n != math.Trunc(n) {
			d.fail(field, v)
		}
		return int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			d.fail(field, v)
		}
		return i
	case time.Time:
		return ToEpochMillis(n)
	}
	d.fail(field, v)
	return 0
}
