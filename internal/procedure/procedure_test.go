package procedure

import (
	"testing"

	"navdbcompiler/internal/geo"
)

// fakeResolver lets each test control exactly which preference step
// succeeds.
type fakeResolver struct {
	byIdentRegionType map[string]geo.Position
	nearest           map[string]geo.Position
}

func (f *fakeResolver) ByIdentifierRegionType(identifier, region, fixType string) (geo.Position, bool) {
	p, ok := f.byIdentRegionType[identifier+"|"+region+"|"+fixType]
	return p, ok
}

func (f *fakeResolver) NearestByIdentifier(identifier string, near geo.Position) (geo.Position, bool) {
	p, ok := f.nearest[identifier]
	return p, ok
}

func (f *fakeResolver) Synthesize(identifier string, near geo.Position) geo.Position {
	return near
}

func TestResolveFixPreferenceOrder(t *testing.T) {
	exact := geo.NewPosition(1, 1, 0)
	near := geo.NewPosition(2, 2, 0)
	requested := geo.NewPosition(3, 3, 0)

	r := &fakeResolver{
		byIdentRegionType: map[string]geo.Position{"FIXA|K1|W": exact},
		nearest:           map[string]geo.Position{"FIXA": near},
	}
	if got := ResolveFix(r, "FIXA", "K1", "W", requested); got != exact {
		t.Errorf("expected exact identifier+region+type match to win, got %+v", got)
	}

	r2 := &fakeResolver{nearest: map[string]geo.Position{"FIXA": near}}
	if got := ResolveFix(r2, "FIXA", "K1", "W", requested); got != near {
		t.Errorf("expected nearest-by-identifier fallback, got %+v", got)
	}

	r3 := &fakeResolver{}
	if got := ResolveFix(r3, "FIXA", "K1", "W", requested); got != requested {
		t.Errorf("expected unresolved fix to synthesize at the requested coordinate, got %+v", got)
	}
}

func TestWriterFlushesOnTransitionBoundary(t *testing.T) {
	var out []Procedure
	resolver := &fakeResolver{}
	w := NewWriter(resolver, func(p Procedure) { out = append(out, p) })

	w.Add(InputRow{AirportIdentifier: "KSEA", Identifier: "ILS16L", TransitionIdentifier: "T1", Sequence: 1, PathTermination: "TF"})
	w.Add(InputRow{AirportIdentifier: "KSEA", Identifier: "ILS16L", TransitionIdentifier: "T1", Sequence: 2, PathTermination: "CF"})
	w.Add(InputRow{AirportIdentifier: "KSEA", Identifier: "ILS16L", TransitionIdentifier: "T2", Sequence: 1, PathTermination: "TF"})
	w.Close()

	if len(out) != 2 {
		t.Fatalf("expected 2 flushed procedures (one per transition), got %d", len(out))
	}
	if len(out[0].Legs) != 2 {
		t.Errorf("expected first procedure to have 2 legs, got %d", len(out[0].Legs))
	}
	if len(out[1].Legs) != 1 {
		t.Errorf("expected second procedure to have 1 leg, got %d", len(out[1].Legs))
	}
}

func TestWriterFlushesOnAirportBoundary(t *testing.T) {
	var out []Procedure
	w := NewWriter(&fakeResolver{}, func(p Procedure) { out = append(out, p) })

	w.Add(InputRow{AirportIdentifier: "KSEA", Identifier: "ILS16L", Sequence: 1})
	w.Add(InputRow{AirportIdentifier: "KPDX", Identifier: "ILS10", Sequence: 1})
	w.Close()

	if len(out) != 2 {
		t.Fatalf("expected 2 flushed procedures across the airport boundary, got %d", len(out))
	}
	if out[0].AirportIdentifier != "KSEA" || out[1].AirportIdentifier != "KPDX" {
		t.Errorf("unexpected airport ordering: %q, %q", out[0].AirportIdentifier, out[1].AirportIdentifier)
	}
}

func TestWriterUnresolvedFixSynthesizesNotDropped(t *testing.T) {
	var out []Procedure
	requested := geo.NewPosition(5, 5, 0)
	w := NewWriter(&fakeResolver{}, func(p Procedure) { out = append(out, p) })

	w.Add(InputRow{
		AirportIdentifier: "KSEA", Identifier: "ILS16L", Sequence: 1,
		PathTermination: "TF", FixIdentifier: "ZZZZZ", FixPosition: requested,
	})
	w.Close()

	if len(out) != 1 || len(out[0].Legs) != 1 {
		t.Fatalf("expected the leg to survive via synthesis, got %+v", out)
	}
	if out[0].Legs[0].FixPosition != requested {
		t.Errorf("expected synthesized position to equal the requested coordinate, got %+v", out[0].Legs[0].FixPosition)
	}
}

func TestHoldingColumnInterpretedAsTime(t *testing.T) {
	var out []Procedure
	w := NewWriter(&fakeResolver{}, func(p Procedure) { out = append(out, p) })

	w.Add(InputRow{
		AirportIdentifier: "KSEA", Identifier: "HOLD1", Sequence: 1,
		PathTermination: "HM", RouteDistanceHoldingDistanceTime: 1.5,
	})
	w.Add(InputRow{
		AirportIdentifier: "KSEA", Identifier: "HOLD1", Sequence: 2,
		PathTermination: "TF", RouteDistanceHoldingDistanceTime: 12.0,
	})
	w.Close()

	if len(out) != 1 || len(out[0].Legs) != 2 {
		t.Fatalf("expected one procedure with 2 legs, got %+v", out)
	}
	if out[0].Legs[0].HoldingMinutes != 1.5 || out[0].Legs[0].DistanceNM != 0 {
		t.Errorf("expected holding leg to read the column as minutes, got %+v", out[0].Legs[0])
	}
	if out[0].Legs[1].DistanceNM != 12.0 || out[0].Legs[1].HoldingMinutes != 0 {
		t.Errorf("expected non-holding leg to read the column as NM, got %+v", out[0].Legs[1])
	}
}
