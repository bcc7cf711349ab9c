// Package runway pairs single-ended runway records into opposing pairs and
// derives airport/runway geometry, per spec.md §4.5.
package runway

import (
	"fmt"
	"strconv"
	"strings"

	"navdbcompiler/internal/geo"
)

// End is one source record for a single runway end, before pairing.
type End struct {
	Ident                      string // e.g. "RW13L", "13L", or "09"
	MagneticBearing            float64
	TrueBearing                float64
	DisplacedThresholdFeet     float64
	ILSIdent                   string
	Closed                     bool
}

// Pair is a matched opposing pair of runway ends.
type Pair struct {
	Primary, Secondary End
	Synthesized         bool // true if Secondary was synthesized as a closed stub
}

// ParseDesignator splits a runway identifier like "RW13L", "13L", or "09"
// into its numeric heading (1-36) and side letter ('L','R','C', or 0).
func ParseDesignator(ident string) (number int, side byte, err error) {
	s := strings.ToUpper(strings.TrimSpace(ident))
	s = strings.TrimPrefix(s, "RW")
	if s == "" {
		return 0, 0, fmt.Errorf("runway: empty designator")
	}

	digits := s
	if last := s[len(s)-1]; last == 'L' || last == 'R' || last == 'C' {
		side = last
		digits = s[:len(s)-1]
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, 0, fmt.Errorf("runway: bad designator %q: %w", ident, err)
	}
	return n, side, nil
}

// OppositeDesignator computes the geometric opposite of (number, side) per
// spec.md §4.5: n -> (n+18) mod 36 (0 remapped to 36), L<->R, C/empty
// unchanged.
func OppositeDesignator(number int, side byte) (int, byte) {
	opp := (number + 18) % 36
	if opp == 0 {
		opp = 36
	}
	switch side {
	case 'L':
		side = 'R'
	case 'R':
		side = 'L'
	}
	return opp, side
}

func canonicalName(number int, side byte) string {
	if side == 0 {
		return fmt.Sprintf("%02d", number)
	}
	return fmt.Sprintf("%02d%c", number, side)
}

// Pairs matches each end in ends against its opposite, synthesizing a closed
// stub for any end with no counterpart in the input set. Ends with
// unparsable designators are skipped silently: they are reported only by
// their absence from the result, not by a log line, error or panic.
func Pairs(ends []End) []Pair {
	type parsed struct {
		end          End
		number       int
		side         byte
		consumed     bool
	}

	byName := make(map[string]*parsed, len(ends))
	order := make([]string, 0, len(ends))
	for _, e := range ends {
		n, s, err := ParseDesignator(e.Ident)
		if err != nil {
			continue
		}
		name := canonicalName(n, s)
		if _, exists := byName[name]; exists {
			continue // duplicate designator in source; keep first seen
		}
		byName[name] = &parsed{end: e, number: n, side: s}
		order = append(order, name)
	}

	var pairs []Pair
	for _, name := range order {
		p := byName[name]
		if p.consumed {
			continue
		}
		oppN, oppS := OppositeDesignator(p.number, p.side)
		oppName := canonicalName(oppN, oppS)

		if opp, ok := byName[oppName]; ok && !opp.consumed {
			p.consumed = true
			opp.consumed = true
			pairs = append(pairs, Pair{Primary: p.end, Secondary: opp.end})
			continue
		}

		p.consumed = true
		stub := p.end
		stub.Ident = oppName
		stub.DisplacedThresholdFeet = 0
		stub.ILSIdent = ""
		stub.TrueBearing = geo.OppositeHeading(p.end.TrueBearing)
		stub.Closed = true

		pairs = append(pairs, Pair{Primary: p.end, Secondary: stub, Synthesized: true})
	}

	return pairs
}

// Geometry holds the derived positional data for a single runway: its two
// computed end thresholds, center point, and length.
type Geometry struct {
	PrimaryThreshold, SecondaryThreshold geo.Position
	Center                               geo.Position
	LengthFeet                           float64
}

// ComputeGeometry derives runway end positions from the runway center,
// length and (primary) true heading: endpoint(center, length/2, heading)
// and its reciprocal, per spec.md §4.5.
func ComputeGeometry(center geo.Position, lengthFeet, trueHeadingDeg float64) Geometry {
	halfNM := geo.MetersToNM(geo.FeetToMeters(lengthFeet / 2))
	primary := geo.Destination(center, halfNM, geo.OppositeHeading(trueHeadingDeg))
	secondary := geo.Destination(center, halfNM, trueHeadingDeg)
	return Geometry{
		PrimaryThreshold:   primary,
		SecondaryThreshold: secondary,
		Center:             center,
		LengthFeet:         lengthFeet,
	}
}

// AirportRect returns the airport bounding rectangle: a >=100m square around
// the reference point, extended to contain every runway endpoint (spec.md
// invariant 5).
func AirportRect(reference geo.Position, endpoints []geo.Position) geo.Rect {
	r := geo.RectAround(reference, 100)
	for _, p := range endpoints {
		r = r.ExtendPadded(p, 100)
	}
	return r
}
