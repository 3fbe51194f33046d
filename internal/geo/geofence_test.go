package geo

import (
	"math"
	"testing"
)

func TestDistanceMeters_IdenticalCoordinatesIsZero(t *testing.T) {
	if d := DistanceMeters(35.6812, 139.7671, 35.6812, 139.7671); d != 0 {
		t.Fatalf("expected zero distance, got %f", d)
	}
}

func TestDistanceMeters_OneDegreeLatitude(t *testing.T) {
	// One degree of latitude is ~111.19 km on the mean-radius sphere.
	d := DistanceMeters(0, 0, 1, 0)
	if math.Abs(d-111194.9) > 1.0 {
		t.Fatalf("expected ~111194.9m, got %f", d)
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	forward := DistanceMeters(35.6812, 139.7671, 35.6586, 139.7454)
	backward := DistanceMeters(35.6586, 139.7454, 35.6812, 139.7671)
	if math.Abs(forward-backward) > 1e-9 {
		t.Fatalf("expected symmetric distance, got %f vs %f", forward, backward)
	}
}

func TestWithinRadius_Boundary(t *testing.T) {
	// 0.000899 deg of latitude is ~99.96m, 0.000901 deg is ~100.19m.
	tests := []struct {
		name     string
		deltaLat float64
		radius   float64
		want     bool
	}{
		{name: "just inside", deltaLat: 0.000899, radius: 100, want: true},
		{name: "just outside", deltaLat: 0.000901, radius: 100, want: false},
		{name: "same point", deltaLat: 0, radius: 100, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WithinRadius(35.0, 139.0, 35.0+tt.deltaLat, 139.0, tt.radius)
			if got != tt.want {
				t.Fatalf("expected within=%t at delta %f, got %t", tt.want, tt.deltaLat, got)
			}
		})
	}
}
