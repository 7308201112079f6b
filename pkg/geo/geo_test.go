package geo

import (
	"math"
	"testing"

	"github.com/medicart/medicart-api/pkg/types"
)

func TestHaversineKM(t *testing.T) {
	bangalore := types.GeoPoint{Lat: 12.9716, Lng: 77.5946}
	chennai := types.GeoPoint{Lat: 13.0827, Lng: 80.2707}

	got := HaversineKM(bangalore, chennai)
	if math.Abs(got-290) > 5 {
		t.Fatalf("expected roughly 290km, got %.2f", got)
	}
	if d := HaversineKM(bangalore, bangalore); d != 0 {
		t.Fatalf("expected zero distance, got %v", d)
	}
}

func TestNearestFirstOrdersByDistance(t *testing.T) {
	origin := &types.GeoPoint{Lat: 12.97, Lng: 77.59}
	candidates := []Candidate{
		{ID: "far", Location: &types.GeoPoint{Lat: 13.5, Lng: 78.0}, Rating: 5},
		{ID: "unknown", Rating: 5},
		{ID: "near", Location: &types.GeoPoint{Lat: 12.98, Lng: 77.60}, Rating: 3},
	}

	ranked := NearestFirst{}.Rank(origin, candidates)
	order := []string{}
	for _, r := range ranked {
		order = append(order, candidates[r.Index].ID)
	}
	want := []string{"near", "far", "unknown"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v got %v", want, order)
		}
	}
	if ranked[0].DistanceKM == nil || *ranked[0].DistanceKM > 2 {
		t.Fatalf("expected nearest distance under 2km, got %v", ranked[0].DistanceKM)
	}
	if ranked[2].DistanceKM != nil {
		t.Fatalf("expected no distance for unlocated candidate")
	}
}

func TestNearestFirstFallsBackToRating(t *testing.T) {
	candidates := []Candidate{
		{ID: "b", Rating: 4.1},
		{ID: "c", Rating: 4.9},
		{ID: "a", Rating: 4.1},
	}
	ranked := NearestFirst{}.Rank(nil, candidates)
	got := []string{candidates[ranked[0].Index].ID, candidates[ranked[1].Index].ID, candidates[ranked[2].Index].ID}
	if got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("unexpected rating order %v", got)
	}
}
