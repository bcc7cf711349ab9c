package metar

import (
	"strings"
	"testing"

	"navdbcompiler/internal/geo"
)

// Scenario 5 from spec.md §8.
func TestReadMergeKeepsNewerTimestamp(t *testing.T) {
	ix := New()

	if _, err := ix.Read(strings.NewReader("KAAA 011200Z 10005KT 10SM CLR 20/10 A3000"), "a.txt", false); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if _, err := ix.Read(strings.NewReader("KAAA 011300Z 10005KT 10SM CLR 21/10 A3000"), "b.txt", true); err != nil {
		t.Fatalf("second read: %v", err)
	}

	res, ok := ix.GetMetar("KAAA", geo.NewPosition(0, 0, 0))
	if !ok {
		t.Fatal("expected KAAA to resolve")
	}
	if !strings.Contains(res.Record.Body, "011300Z") {
		t.Errorf("expected the 13:00 body to win, got %q", res.Record.Body)
	}
}

// Scenario 6 from spec.md §8.
func TestGetMetarNearestStationFallback(t *testing.T) {
	ix := New()
	coords := map[string]geo.Position{
		"KAAA": geo.NewPosition(0, 0, 0),
		"KBBB": geo.NewPosition(1, 1, 0),
	}
	ix.SetFetchAirportCoords(func(ident string) (geo.Position, bool) {
		p, ok := coords[ident]
		return p, ok
	})

	if _, err := ix.Read(strings.NewReader("KAAA 011200Z 10005KT 10SM CLR 20/10 A3000\nKBBB 011200Z 10005KT 10SM CLR 20/10 A3000"), "a.txt", false); err != nil {
		t.Fatalf("read: %v", err)
	}

	requestPos := geo.NewPosition(0.1, 0.1, 0)
	res, ok := ix.GetMetar("KCCC", requestPos)
	if !ok {
		t.Fatal("expected a nearest-station fallback result")
	}
	if res.RequestedStation != "KCCC" {
		t.Errorf("expected requested identifier preserved, got %q", res.RequestedStation)
	}
	if res.RequestedPosition != requestPos {
		t.Errorf("expected requested position preserved, got %+v", res.RequestedPosition)
	}
	if res.Record.Station != "KAAA" {
		t.Errorf("expected KAAA (nearer) to win over KBBB, got %q", res.Record.Station)
	}
}

func TestReadWithoutMergeClearsExisting(t *testing.T) {
	ix := New()
	if _, err := ix.Read(strings.NewReader("KAAA 011200Z CLR"), "a.txt", false); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Read(strings.NewReader("KBBB 011200Z CLR"), "b.txt", false); err != nil {
		t.Fatal(err)
	}
	if _, ok := ix.GetMetar("KAAA", geo.NewPosition(0, 0, 0)); ok {
		t.Error("expected KAAA to have been cleared by the non-merge read")
	}
}

func TestUnresolvableStationStillDirectlyRetrievable(t *testing.T) {
	ix := New()
	ix.SetFetchAirportCoords(func(ident string) (geo.Position, bool) { return geo.Position{}, false })

	if _, err := ix.Read(strings.NewReader("KZZZ 011200Z CLR"), "a.txt", false); err != nil {
		t.Fatal(err)
	}
	res, ok := ix.GetMetar("KZZZ", geo.NewPosition(5, 5, 0))
	if !ok || res.Record.Station != "KZZZ" {
		t.Fatal("expected direct identifier lookup to succeed even when spatially unindexed")
	}
}

func TestReadJSONFormat(t *testing.T) {
	ix := New()
	body := `[{"station":"KAAA","time":"2024-01-01T12:00:00Z","body":"KAAA 011200Z CLR"}]`
	n, err := ix.Read(strings.NewReader(body), "data.json", false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 parsed record, got %d", n)
	}
	if _, ok := ix.GetMetar("KAAA", geo.NewPosition(0, 0, 0)); !ok {
		t.Fatal("expected KAAA to resolve from JSON input")
	}
}

func TestReadIdempotentOnIdenticalInput(t *testing.T) {
	input := "KAAA 011200Z CLR"
	ix1, ix2 := New(), New()
	ix1.Read(strings.NewReader(input), "a.txt", false)
	ix1.Read(strings.NewReader(input), "a.txt", false)
	ix2.Read(strings.NewReader(input), "a.txt", false)

	r1, ok1 := ix1.GetMetar("KAAA", geo.NewPosition(0, 0, 0))
	r2, ok2 := ix2.GetMetar("KAAA", geo.NewPosition(0, 0, 0))
	if ok1 != ok2 || r1.Record.Body != r2.Record.Body {
		t.Errorf("expected idempotent re-read to match single read: %+v vs %+v", r1, r2)
	}
}
