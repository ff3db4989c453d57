package models

import (
	"github.com/mmcloughlin/geohash"
	"google.golang.org/genproto/googleapis/type/latlng"
)

// DefaultGeoHashPrecision yields roughly 5km cells, enough for display.
const DefaultGeoHashPrecision uint = 5

// GeoPoint is a latitude/longitude pair in degrees.
type GeoPoint struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// GeoHash encodes the point with the given number of characters.
func (p GeoPoint) GeoHash(precision uint) string {
	if precision == 0 {
		precision = DefaultGeoHashPrecision
	}
	return geohash.EncodeWithPrecision(p.Latitude, p.Longitude, precision)
}

// LatLng converts the point into the Firestore native geo type.
func (p GeoPoint) LatLng() *latlng.LatLng {
	return &latlng.LatLng{Latitude: p.Latitude, Longitude: p.Longitude}
}

// GeoPointFromLatLng converts a Firestore native geo value; nil maps to the zero point.
func GeoPointFromLatLng(v *latlng.LatLng) GeoPoint {
	if v == nil {
		return GeoPoint{}
	}
	return GeoPoint{Latitude: v.GetLatitude(), Longitude: v.GetLongitude()}
}
