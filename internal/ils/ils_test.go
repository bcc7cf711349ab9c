package ils

import (
	"math"
	"testing"

	"navdbcompiler/internal/geo"
)

// Scenario 4 from spec.md §8.
func TestComputeFeatherCornerBearings(t *testing.T) {
	origin := geo.NewPosition(0, 0, 0)
	f := Compute(Params{
		Origin:      origin,
		TrueHeading: 90,
		WidthDeg:    4,
		LengthNM:    9,
	})

	leftBearing := geo.Bearing(origin, f.LeftCorner)
	rightBearing := geo.Bearing(origin, f.RightCorner)

	if math.Abs(leftBearing-268) > 0.5 {
		t.Errorf("left corner bearing = %v, want ~268", leftBearing)
	}
	if math.Abs(rightBearing-272) > 0.5 {
		t.Errorf("right corner bearing = %v, want ~272", rightBearing)
	}

	leftDist := geo.DistanceNM(origin, f.LeftCorner)
	rightDist := geo.DistanceNM(origin, f.RightCorner)
	if math.Abs(leftDist-9) > 0.1 || math.Abs(rightDist-9) > 0.1 {
		t.Errorf("corner distances = %v/%v, want ~9", leftDist, rightDist)
	}
}

func TestComputeFeatherMidpointIsEastOfCornerMidpointAlongCenterline(t *testing.T) {
	origin := geo.NewPosition(0, 0, 0)
	f := Compute(Params{
		Origin:      origin,
		TrueHeading: 90,
		WidthDeg:    4,
		LengthNM:    9,
	})

	// The midpoint is projected a shorter distance (length - width/2) than
	// the corners (length), so along the westward centerline it sits closer
	// to the origin, i.e. east of the corners.
	midDist := geo.DistanceNM(origin, f.Midpoint)
	if midDist >= 9 {
		t.Errorf("midpoint distance = %v, want < 9 (corner distance)", midDist)
	}
	if f.Midpoint.Lon() <= f.LeftCorner.Lon() {
		t.Errorf("expected midpoint east of corners: mid lon=%v, corner lon=%v", f.Midpoint.Lon(), f.LeftCorner.Lon())
	}
}
