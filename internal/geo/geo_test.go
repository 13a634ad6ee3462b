package geo

import (
	"math"
	"testing"
)

func TestHaversine(t *testing.T) {
	t.Parallel()

	if d := Haversine(38.84, -77.18, 38.84, -77.18); d != 0 {
		t.Fatalf("expected 0 for identical points, got %v", d)
	}

	// one degree of latitude is ~111.2 km on a 6371 km sphere
	d := Haversine(0, 0, 1, 0)
	if math.Abs(d-111195) > 10 {
		t.Fatalf("unexpected distance %v", d)
	}
}

func TestBoundingBox(t *testing.T) {
	t.Parallel()

	b := BoundingBox(10, 20, 111320)
	if b.MinLat != 9 || b.MaxLat != 11 || b.MinLng != 19 || b.MaxLng != 21 {
		t.Fatalf("unexpected box %+v", b)
	}

	zero := BoundingBox(38.84, -77.18, 0)
	if !zero.Contains(38.84, -77.18) {
		t.Fatalf("zero radius box must contain its center")
	}
	if zero.Contains(38.84, -77.1800001) {
		t.Fatalf("zero radius box must not contain other points")
	}
}
