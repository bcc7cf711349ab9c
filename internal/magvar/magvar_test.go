package magvar

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/klauspost/compress/zstd"

	"navdbcompiler/internal/geo"
)

// compressGrid builds a zstd-compressed one-sample-per-line stream for a
// 2x2 grid (minLat=0,maxLat=1,minLon=0,maxLon=1,step=1) with the given
// latitude-major, longitude-minor sample order.
func compressGrid(t *testing.T, samples []float64) []byte {
	t.Helper()
	var plain bytes.Buffer
	for _, s := range samples {
		fmt.Fprintf(&plain, "%v\n", s)
	}

	var out bytes.Buffer
	zw, err := zstd.NewWriter(&out)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := zw.Write(plain.Bytes()); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}
	return out.Bytes()
}

func TestLoadGridAndLookupRoundsToNearestSample(t *testing.T) {
	// 2x2 grid: (lat=0,lon=0)=1.0 (lat=0,lon=1)=2.0 (lat=1,lon=0)=3.0 (lat=1,lon=1)=4.0
	compressed := compressGrid(t, []float64{1.0, 2.0, 3.0, 4.0})

	g, err := LoadGrid(bytes.NewReader(compressed), 0, 1, 0, 1, 1)
	if err != nil {
		t.Fatalf("LoadGrid: %v", err)
	}

	v, err := g.Lookup(geo.NewPosition(0, 0, 0))
	if err != nil || v != 1.0 {
		t.Errorf("Lookup(0,0) = %v, %v, want 1.0", v, err)
	}
	v, err = g.Lookup(geo.NewPosition(1, 1, 0))
	if err != nil || v != 4.0 {
		t.Errorf("Lookup(1,1) = %v, %v, want 4.0", v, err)
	}
	v, err = g.Lookup(geo.NewPosition(0.9, 0, 0))
	if err != nil || v != 2.0 {
		t.Errorf("Lookup(0.9,0) = %v, %v, want 2.0 (rounds to nearest)", v, err)
	}
}

func TestLookupOutsideBoundsErrors(t *testing.T) {
	compressed := compressGrid(t, []float64{1.0, 2.0, 3.0, 4.0})
	g, err := LoadGrid(bytes.NewReader(compressed), 0, 1, 0, 1, 1)
	if err != nil {
		t.Fatalf("LoadGrid: %v", err)
	}
	if _, err := g.Lookup(geo.NewPosition(5, 5, 0)); err == nil {
		t.Error("expected an out-of-bounds lookup to error")
	}
}

func TestLoadGridRejectsSampleCountMismatch(t *testing.T) {
	compressed := compressGrid(t, []float64{1.0, 2.0, 3.0})
	if _, err := LoadGrid(bytes.NewReader(compressed), 0, 1, 0, 1, 1); err == nil {
		t.Error("expected a sample-count mismatch error")
	}
}
