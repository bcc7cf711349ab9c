// Package ils derives localizer feather geometry from ILS beam parameters,
// per spec.md §4.7.
package ils

import "navdbcompiler/internal/geo"

// Params describes the source ILS record feeding feather derivation.
type Params struct {
	Origin     geo.Position
	TrueHeading float64 // front course, degrees true
	WidthDeg    float64 // full angular beam width
	LengthNM    float64 // fixed feather length
}

// Feather is the geometry rendered for an ILS localizer beam: the origin,
// its two projected corners, and the midpoint along the reversed course.
type Feather struct {
	Origin       geo.Position
	LeftCorner   geo.Position
	RightCorner  geo.Position
	Midpoint     geo.Position
}

// Compute derives the feather polygon per spec.md §4.7: the reversed
// (opposed) course points away from the runway into the approach cone; the
// two corners are projected from the origin along that reversed heading at
// +/- half the beam width; the midpoint is projected along the same
// reversed heading for (length - feather_width/2), where feather_width is
// the great-circle distance between the two corners.
func Compute(p Params) Feather {
	back := geo.OppositeHeading(p.TrueHeading)
	half := p.WidthDeg / 2

	left := geo.Destination(p.Origin, p.LengthNM, geo.NormalizeHeading(back-half))
	right := geo.Destination(p.Origin, p.LengthNM, geo.NormalizeHeading(back+half))

	featherWidthNM := geo.DistanceNM(left, right)
	midDist := p.LengthNM - featherWidthNM/2
	mid := geo.Destination(p.Origin, midDist, back)

	return Feather{
		Origin:      p.Origin,
		LeftCorner:  left,
		RightCorner: right,
		Midpoint:    mid,
	}
}
