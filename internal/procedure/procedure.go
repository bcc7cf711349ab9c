// Package procedure accumulates ordered procedure-leg rows into flushed
// procedure records and resolves leg fix references, per spec.md §4.10.
package procedure

import (
	"strings"

	"navdbcompiler/internal/geo"
)

// InputRow is one canonically-ordered procedure leg record, as produced by
// a source adapter. Rows must arrive sorted by
// (AirportIdentifier, Identifier, RouteType, TransitionIdentifier, Sequence).
type InputRow struct {
	AirportIdentifier    string
	Identifier           string // procedure identifier, e.g. "ILS28R"
	RouteType            string // approach, sid, star
	TransitionIdentifier string
	Sequence             int

	PathTermination string
	TurnDirection   string

	FixIdentifier string
	FixRegion     string
	FixType       string
	FixPosition   geo.Position

	RecommendedNavaidIdentifier string
	RecommendedNavaidPosition   geo.Position

	Theta          float64
	Rho            float64
	MagneticCourse float64

	AltitudeDescription string
	Altitude1           float64
	Altitude2           float64
	TransitionAltitude  float64

	SpeedLimitDescription string
	SpeedLimit            float64

	// RouteDistanceHoldingDistanceTime is the source's dual-purpose
	// column: a distance in NM, unless PathTermination starts with "H",
	// in which case it is a holding time in minutes.
	RouteDistanceHoldingDistanceTime float64
}

func isHolding(pathTermination string) bool {
	return strings.HasPrefix(strings.ToUpper(pathTermination), "H")
}

// Leg is one resolved procedure leg.
type Leg struct {
	Sequence        int
	PathTermination string
	TurnDirection   string

	FixIdentifier string
	FixPosition   geo.Position

	RecommendedNavaid string

	Theta          float64
	Rho            float64
	MagneticCourse float64

	AltitudeDescription string
	Altitude1           float64
	Altitude2           float64
	TransitionAltitude  float64

	SpeedLimitDescription string
	SpeedLimit            float64

	DistanceNM     float64
	HoldingMinutes float64
}

// Procedure is a flushed, complete procedure record for one
// (airport, identifier, transition) boundary.
type Procedure struct {
	AirportIdentifier    string
	Identifier           string
	RouteType            string
	TransitionIdentifier string
	Legs                 []Leg
}

// FixResolver resolves a leg's fix reference to a concrete position using
// the three-step preference order spec.md §4.10 requires. Synthesize must
// always succeed: it is the final, unconditional fallback.
type FixResolver interface {
	ByIdentifierRegionType(identifier, region, fixType string) (geo.Position, bool)
	NearestByIdentifier(identifier string, near geo.Position) (geo.Position, bool)
	Synthesize(identifier string, near geo.Position) geo.Position
}

// ResolveFix applies the preference order: identifier+region+type, then
// identifier+nearest-coordinate, then an unconditional synthesized
// coordinate-only waypoint.
func ResolveFix(r FixResolver, identifier, region, fixType string, near geo.Position) geo.Position {
	if p, ok := r.ByIdentifierRegionType(identifier, region, fixType); ok {
		return p
	}
	if p, ok := r.NearestByIdentifier(identifier, near); ok {
		return p
	}
	return r.Synthesize(identifier, near)
}

// Writer is the stateful per-airport accumulator described in spec.md
// §4.10: rows arrive one at a time in canonical order, and a boundary
// change in (airport, procedure identifier, transition) flushes the
// buffered legs as a completed Procedure. Callers MUST call Close after
// the final Add to flush the last procedure.
type Writer struct {
	resolver FixResolver
	emit     func(Procedure)

	open       bool
	airport    string
	identifier string
	routeType  string
	transition string
	legs       []Leg
}

// NewWriter returns a Writer that resolves leg fixes with resolver and
// passes each completed Procedure to emit.
func NewWriter(resolver FixResolver, emit func(Procedure)) *Writer {
	return &Writer{resolver: resolver, emit: emit}
}

// Add feeds one input row into the accumulator, flushing the previous
// procedure first if this row starts a new (airport, identifier,
// transition) boundary.
func (w *Writer) Add(row InputRow) {
	boundary := w.open && (row.AirportIdentifier != w.airport ||
		row.Identifier != w.identifier ||
		row.TransitionIdentifier != w.transition)
	if boundary {
		w.flush()
	}

	if !w.open {
		w.airport = row.AirportIdentifier
		w.identifier = row.Identifier
		w.routeType = row.RouteType
		w.transition = row.TransitionIdentifier
		w.open = true
	}

	fixPos := ResolveFix(w.resolver, row.FixIdentifier, row.FixRegion, row.FixType, row.FixPosition)

	leg := Leg{
		Sequence:              row.Sequence,
		PathTermination:       row.PathTermination,
		TurnDirection:         row.TurnDirection,
		FixIdentifier:         row.FixIdentifier,
		FixPosition:           fixPos,
		RecommendedNavaid:     row.RecommendedNavaidIdentifier,
		Theta:                 row.Theta,
		Rho:                   row.Rho,
		MagneticCourse:        row.MagneticCourse,
		AltitudeDescription:   row.AltitudeDescription,
		Altitude1:             row.Altitude1,
		Altitude2:             row.Altitude2,
		TransitionAltitude:    row.TransitionAltitude,
		SpeedLimitDescription: row.SpeedLimitDescription,
		SpeedLimit:            row.SpeedLimit,
	}
	if isHolding(row.PathTermination) {
		leg.HoldingMinutes = row.RouteDistanceHoldingDistanceTime
	} else {
		leg.DistanceNM = row.RouteDistanceHoldingDistanceTime
	}

	w.legs = append(w.legs, leg)
}

func (w *Writer) flush() {
	if w.open && len(w.legs) > 0 {
		w.emit(Procedure{
			AirportIdentifier:    w.airport,
			Identifier:           w.identifier,
			RouteType:            w.routeType,
			TransitionIdentifier: w.transition,
			Legs:                 w.legs,
		})
	}
	w.legs = nil
	w.open = false
}

// Close flushes any procedure still buffered. It must be called once
// after the last Add for a given source.
func (w *Writer) Close() {
	w.flush()
}
