package types

import "fmt"

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks coordinate ranges.
func (g GeoPoint) Validate() error {
	if g.Lat < -90 || g.Lat > 90 {
		return fmt.Errorf("lat %v out of range", g.Lat)
	}
	if g.Lng < -180 || g.Lng > 180 {
		return fmt.Errorf("lng %v out of range", g.Lng)
	}
	return nil
}

// PointFrom returns a GeoPoint when both coordinates are present.
func PointFrom(lat, lng *float64) (GeoPoint, bool) {
	if lat == nil || lng == nil {
		return GeoPoint{}, false
	}
	return GeoPoint{Lat: *lat, Lng: *lng}, true
}
