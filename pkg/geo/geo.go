// Package geo ranks delivery candidates by great-circle distance.
package geo

import (
	"math"
	"sort"

	"github.com/medicart/medicart-api/pkg/types"
)

const earthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance between two points in kilometres.
func HaversineKM(a, b types.GeoPoint) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Candidate is anything the ranker can order.
type Candidate struct {
	ID       string
	Location *types.GeoPoint
	Rating   float64
}

// Ranked pairs a candidate index with its distance from the origin, when known.
type Ranked struct {
	Index      int
	DistanceKM *float64
}

// Ranker orders candidates relative to an optional origin.
type Ranker interface {
	Rank(origin *types.GeoPoint, candidates []Candidate) []Ranked
}

// NearestFirst sorts by distance when both points are known. Candidates
// without a location trail the located ones. Without an origin, or between
// equally distant candidates, higher rating wins and ID breaks the tie.
type NearestFirst struct{}

func (NearestFirst) Rank(origin *types.GeoPoint, candidates []Candidate) []Ranked {
	out := make([]Ranked, len(candidates))
	for i, c := range candidates {
		out[i] = Ranked{Index: i}
		if origin != nil && c.Location != nil {
			d := HaversineKM(*origin, *c.Location)
			out[i].DistanceKM = &d
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.DistanceKM != nil && b.DistanceKM == nil:
			return true
		case a.DistanceKM == nil && b.DistanceKM != nil:
			return false
		case a.DistanceKM != nil && b.DistanceKM != nil && *a.DistanceKM != *b.DistanceKM:
			return *a.DistanceKM < *b.DistanceKM
		}
		ca, cb := candidates[a.Index], candidates[b.Index]
		if ca.Rating != cb.Rating {
			return ca.Rating > cb.Rating
		}
		return ca.ID < cb.ID
	})
	return out
}
