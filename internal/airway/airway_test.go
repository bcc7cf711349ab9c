package airway

import (
	"testing"

	"navdbcompiler/internal/geo"
)

func row(name string, seq int, code, wp string) Row {
	return Row{
		RouteIdentifier:         name,
		Sequence:                seq,
		WaypointDescriptionCode: code,
		WaypointID:              wp,
		Position:                geo.NewPosition(float64(seq), float64(seq), 0),
	}
}

// Scenario 3 from spec.md §8.
func TestResolveFragments(t *testing.T) {
	rows := []Row{
		row("N1", 1, "EA", "W1"),
		row("N1", 2, "EE", "W2"),
		row("N1", 3, "EA", "W3"),
		row("N1", 4, "EE", "W4"),
		row("N2", 1, "EA", "W5"),
		row("N2", 2, "EE", "W6"),
	}

	segments := Resolve(rows, 0)
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d: %+v", len(segments), segments)
	}

	want := []Segment{
		{Name: "N1", Fragment: 1, Sequence: 1, FromWaypoint: "W1", ToWaypoint: "W2"},
		{Name: "N1", Fragment: 2, Sequence: 1, FromWaypoint: "W3", ToWaypoint: "W4"},
		{Name: "N2", Fragment: 1, Sequence: 1, FromWaypoint: "W5", ToWaypoint: "W6"},
	}
	for i, w := range want {
		got := segments[i]
		if got.Name != w.Name || got.Fragment != w.Fragment || got.Sequence != w.Sequence ||
			got.FromWaypoint != w.FromWaypoint || got.ToWaypoint != w.ToWaypoint {
			t.Errorf("segment %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestResolveSingleWaypointEmitsNothing(t *testing.T) {
	rows := []Row{row("N1", 1, "EA", "W1")}
	if segments := Resolve(rows, 0); len(segments) != 0 {
		t.Errorf("expected no segments for a single waypoint, got %d", len(segments))
	}
}

func TestResolveContiguousChain(t *testing.T) {
	rows := []Row{
		row("V1", 1, "EA", "A"),
		row("V1", 2, "EA", "B"),
		row("V1", 3, "EA", "C"),
	}
	segments := Resolve(rows, 0)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	// Invariant 2: to_waypoint of seq k == from_waypoint of seq k+1.
	if segments[0].ToWaypoint != segments[1].FromWaypoint {
		t.Errorf("chain broken: %q != %q", segments[0].ToWaypoint, segments[1].FromWaypoint)
	}
}

func TestRouteTypeFromFlightLevel(t *testing.T) {
	if RouteTypeFromFlightLevel("H") != RouteJet {
		t.Error("H should map to jet")
	}
	if RouteTypeFromFlightLevel("L") != RouteVictor {
		t.Error("L should map to victor")
	}
	if RouteTypeFromFlightLevel("B") != RouteBoth {
		t.Error("B should map to both")
	}
	if RouteTypeFromFlightLevel("") != RouteBoth {
		t.Error("blank should map to both")
	}
}

func TestDirectionFromCode(t *testing.T) {
	if DirectionFromCode("F") != DirectionForward {
		t.Error("F should map to forward")
	}
	if DirectionFromCode("B") != DirectionBackward {
		t.Error("B should map to backward")
	}
	if DirectionFromCode(" ") != DirectionNone {
		t.Error("blank should map to none")
	}
}

func TestResolveDropsBorkedLongSegments(t *testing.T) {
	rows := []Row{
		{RouteIdentifier: "N1", Sequence: 1, WaypointDescriptionCode: "EA", WaypointID: "W1", Position: geo.NewPosition(0, 0, 0)},
		{RouteIdentifier: "N1", Sequence: 2, WaypointDescriptionCode: "EA", WaypointID: "W2", Position: geo.NewPosition(170, 0, 0)},
	}
	if segments := Resolve(rows, 800); len(segments) != 0 {
		t.Errorf("expected the oversized segment to be dropped, got %d", len(segments))
	}
	if segments := Resolve(rows, 0); len(segments) != 1 {
		t.Errorf("expected no drop when maxSegmentNM is disabled, got %d", len(segments))
	}
}

func TestResolveKeepsSequenceContiguousAfterADrop(t *testing.T) {
	rows := []Row{
		{RouteIdentifier: "N1", Sequence: 1, WaypointDescriptionCode: "EA", WaypointID: "W1", Position: geo.NewPosition(0, 0, 0)},
		{RouteIdentifier: "N1", Sequence: 2, WaypointDescriptionCode: "EA", WaypointID: "W2", Position: geo.NewPosition(170, 0, 0)},
		{RouteIdentifier: "N1", Sequence: 3, WaypointDescriptionCode: "EA", WaypointID: "W3", Position: geo.NewPosition(171, 0, 0)},
	}
	segments := Resolve(rows, 800)
	if len(segments) != 1 {
		t.Fatalf("expected one segment to survive the drop, got %d", len(segments))
	}
	if segments[0].Sequence != 1 {
		t.Errorf("expected the surviving segment to keep sequence 1, got %d", segments[0].Sequence)
	}
	if segments[0].FromWaypoint != "W2" || segments[0].ToWaypoint != "W3" {
		t.Errorf("unexpected segment endpoints: %+v", segments[0])
	}
}
