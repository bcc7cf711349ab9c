// Package airway joins ordered waypoint-sequence rows into directed airway
// segments, fragmenting named routes at discontinuities, per spec.md §4.6.
package airway

import "navdbcompiler/internal/geo"

// RouteType is the victor/jet/both classification derived from the source's
// flight-level column.
type RouteType int

const (
	RouteBoth RouteType = iota
	RouteVictor
	RouteJet
)

// RouteTypeFromFlightLevel maps the source flight-level code: H -> jet,
// L -> victor, B or blank -> both.
func RouteTypeFromFlightLevel(code string) RouteType {
	switch code {
	case "H":
		return RouteJet
	case "L":
		return RouteVictor
	default:
		return RouteBoth
	}
}

// Direction is the segment traversal restriction.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionForward
	DirectionBackward
)

// DirectionFromCode maps the source direction-restriction column: blank/space
// -> none, F -> forward, B -> backward.
func DirectionFromCode(code string) Direction {
	switch code {
	case "F":
		return DirectionForward
	case "B":
		return DirectionBackward
	default:
		return DirectionNone
	}
}

// Row is one ordered waypoint-sequence record feeding the resolver.
type Row struct {
	RouteIdentifier         string
	Sequence                int
	WaypointDescriptionCode string // second character ('E') marks end-of-route
	WaypointID              string
	FlightLevel             string
	DirectionRestriction    string
	AltitudeMin             float64
	AltitudeMax             float64
	Position                geo.Position
}

func isEndOfRoute(code string) bool {
	return len(code) >= 2 && code[1] == 'E'
}

// Segment is one directed airway fragment leg.
type Segment struct {
	Name         string
	Fragment     int
	Sequence     int
	Type         RouteType
	FromWaypoint string
	ToWaypoint   string
	Direction    Direction
	AltitudeMin  float64
	AltitudeMax  float64
	Bounds       geo.Rect
}

// Resolve scans rows in order (they must already be sorted by
// (RouteIdentifier, Sequence) by the caller) and emits directed segments per
// the state machine in spec.md §4.6. maxSegmentNM, if > 0, drops any segment
// whose endpoints are farther apart than that distance (the "borked data"
// guard — see SPEC_FULL.md §9.1 for the 800/8000 NM default policy).
func Resolve(rows []Row, maxSegmentNM float64) []Segment {
	var segments []Segment

	var previous *Row
	lastName := ""
	fragment := 1
	seq := 0

	for i := range rows {
		cur := &rows[i]
		nameChange := cur.RouteIdentifier != lastName

		if previous != nil && !nameChange && !isEndOfRoute(previous.WaypointDescriptionCode) {
			bounds := geo.RectAround(previous.Position, 0).Union(geo.RectAround(cur.Position, 0))
			segLenNM := geo.DistanceNM(previous.Position, cur.Position)
			if maxSegmentNM <= 0 || segLenNM <= maxSegmentNM {
				// seq only advances for segments actually emitted, so a
				// dropped borked-data segment doesn't leave a gap in the
				// fragment's sequence numbers for consumers that assume
				// contiguous ordering (e.g. tools/navdbkml).
				seq++
				segments = append(segments, Segment{
					Name:         cur.RouteIdentifier,
					Fragment:     fragment,
					Sequence:     seq,
					Type:         RouteTypeFromFlightLevel(cur.FlightLevel),
					FromWaypoint: previous.WaypointID,
					ToWaypoint:   cur.WaypointID,
					Direction:    DirectionFromCode(cur.DirectionRestriction),
					AltitudeMin:  cur.AltitudeMin,
					AltitudeMax:  cur.AltitudeMax,
					Bounds:       bounds,
				})
			}
		}

		if previous != nil && !nameChange && isEndOfRoute(previous.WaypointDescriptionCode) {
			fragment++
			seq = 0
		}

		if nameChange {
			fragment = 1
			seq = 0
		}

		previous = cur
		lastName = cur.RouteIdentifier
	}

	return segments
}
