package geo

import (
	"math"
	"testing"
)

func TestDistanceZero(t *testing.T) {
	if d := DistanceMeters(19.0760, 72.8777, 19.0760, 72.8777); d != 0 {
		t.Errorf("distance to self = %f, want 0", d)
	}
}

func TestDistanceKnownPair(t *testing.T) {
	// One degree of latitude is ~111.2 km on a 6371 km sphere.
	d := DistanceMeters(0, 0, 1, 0)
	if math.Abs(d-111195) > 50 {
		t.Errorf("1 degree latitude = %.0f m, want ~111195 m", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := DistanceMeters(19.0760, 72.8777, 19.0770, 72.8790)
	b := DistanceMeters(19.0770, 72.8790, 19.0760, 72.8777)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("distance not symmetric: %f vs %f", a, b)
	}
}

func TestDistanceSmallOffset(t *testing.T) {
	// ~0.0009 degrees latitude is roughly 100 m; sanity bound for the
	// radii this system works with.
	d := DistanceMeters(19.0760, 72.8777, 19.0769, 72.8777)
	if d < 90 || d > 110 {
		t.Errorf("small offset distance = %.1f m, want ~100 m", d)
	}
}
