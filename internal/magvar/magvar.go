// Package magvar loads a regularly sampled world magnetic variation grid
// and resolves the nearest-sample declination at a position, per spec.md
// §4.8.
package magvar

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"navdbcompiler/internal/geo"
)

// Grid is a regularly sampled declination grid: one float64 per
// (latitude, longitude) cell on a uniform step, latitude-major then
// longitude within each latitude row (the convention produced by the
// published WMM grid tool's single-column sample extraction).
type Grid struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
	Step           float64

	samples    []float64
	nlat, nlon int
}

// LoadGrid reads a zstd-compressed stream of one decimal declination
// sample per line and builds a Grid over [minLat,maxLat] x
// [minLon,maxLon] at the given step. The sample count must exactly match
// the grid dimensions implied by the bounds and step.
func LoadGrid(r io.Reader, minLat, maxLat, minLon, maxLon, step float64) (*Grid, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("magvar: opening zstd stream: %w", err)
	}
	defer zr.Close()

	g := &Grid{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon, Step: step}
	g.nlat = int(1 + (maxLat-minLat)/step)
	g.nlon = int(1 + (maxLon-minLon)/step)

	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("magvar: parsing sample %q: %w", line, err)
		}
		g.samples = append(g.samples, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("magvar: reading grid: %w", err)
	}

	want := g.nlat * g.nlon
	if len(g.samples) != want {
		return nil, fmt.Errorf("magvar: found %d samples, expected %d x %d = %d", len(g.samples), g.nlat, g.nlon, want)
	}
	return g, nil
}

// Lookup returns the model's magnetic variation at p, rounding to the
// nearest sampled grid cell. Positions outside the sampled bounds return
// an error; callers are expected to leave the variation column
// unresolved in that case rather than guessing.
func (g *Grid) Lookup(p geo.Position) (float64, error) {
	lon, lat := p.Lon(), p.Lat()
	if lon < g.MinLon || lon > g.MaxLon || lat < g.MinLat || lat > g.MaxLat {
		return 0, fmt.Errorf("magvar: (%v, %v) is outside the sampled grid", lon, lat)
	}

	latIdx := int((lat-g.MinLat)/g.Step + 0.5)
	if latIdx > g.nlat-1 {
		latIdx = g.nlat - 1
	}
	lonIdx := int((lon-g.MinLon)/g.Step + 0.5)
	if lonIdx > g.nlon-1 {
		lonIdx = g.nlon - 1
	}

	return g.samples[lonIdx+g.nlon*latIdx], nil
}
