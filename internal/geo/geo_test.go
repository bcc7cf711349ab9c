package geo

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestNormalizeHeading(t *testing.T) {
	cases := map[float64]float64{
		0:    0,
		359:  359,
		360:  0,
		370:  10,
		-10:  350,
		-370: 350,
	}
	for in, want := range cases {
		if got := NormalizeHeading(in); !almostEqual(got, want, 1e-9) {
			t.Errorf("NormalizeHeading(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestOppositeHeading(t *testing.T) {
	if got := OppositeHeading(90); !almostEqual(got, 270, 1e-9) {
		t.Errorf("OppositeHeading(90) = %v, want 270", got)
	}
	if got := OppositeHeading(270); !almostEqual(got, 90, 1e-9) {
		t.Errorf("OppositeHeading(270) = %v, want 90", got)
	}
}

func TestDestinationAndBearingRoundTrip(t *testing.T) {
	origin := NewPosition(0, 0, 0)
	dest := Destination(origin, 60, 90) // 60 NM due east along the equator
	if dest.Lat() < -0.01 || dest.Lat() > 0.01 {
		t.Errorf("expected destination to stay near the equator, got lat=%v", dest.Lat())
	}
	if dest.Lon() <= 0 {
		t.Errorf("expected destination east of origin, got lon=%v", dest.Lon())
	}

	br := Bearing(origin, dest)
	if !almostEqual(br, 90, 1) {
		t.Errorf("Bearing(origin, dest) = %v, want ~90", br)
	}

	dist := DistanceNM(origin, dest)
	if !almostEqual(dist, 60, 1) {
		t.Errorf("DistanceNM(origin, dest) = %v, want ~60", dist)
	}
}

func TestRectAroundInflatesAtLeastMinimum(t *testing.T) {
	p := NewPosition(10, 45, 0)
	r := RectAround(p, 100)
	if !r.Contains(p) {
		t.Fatal("rect does not contain its own center")
	}
	widthMeters := DistanceNM(NewPosition(r.TopLeft[0], r.TopLeft[1], 0), NewPosition(r.BottomRight[0], r.TopLeft[1], 0)) * metersPerNauticalMile
	if widthMeters < 199 { // ~2x the 100m radius
		t.Errorf("expected rect width >= ~200m, got %v", widthMeters)
	}
}

func TestRectExtendContainsNewPoint(t *testing.T) {
	center := NewPosition(0, 0, 0)
	r := RectAround(center, 100)
	far := NewPosition(1, 1, 0)
	r2 := r.Extend(far)
	if !r2.Contains(far) {
		t.Fatal("extended rect should contain the new point")
	}
	if !r2.Contains(center) {
		t.Fatal("extended rect should still contain the original center")
	}
}
