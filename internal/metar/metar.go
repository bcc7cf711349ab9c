// Package metar maintains an in-memory, spatially indexed cache of METAR
// observations parsed from three line-based source formats, per spec.md
// §4.11.
package metar

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"navdbcompiler/internal/geo"
)

// Record is one parsed METAR observation.
type Record struct {
	Station string
	Time    time.Time
	Body    string
}

// Result is the envelope returned by GetMetar: it always carries the
// caller's original request identifier and position, plus whichever
// record actually matched (which may belong to a different, nearer
// station than requested).
type Result struct {
	RequestedStation  string
	RequestedPosition geo.Position
	Record            Record
}

// FetchAirportCoords maps a station identifier to a position. Indexing
// skips identifiers the callback cannot resolve.
type FetchAirportCoords func(identifier string) (geo.Position, bool)

type indexedStation struct {
	ident string
	pos   geo.Position
}

// Index is the reader/writer-guarded METAR cache described in spec.md
// §4.11. Grounded on the teacher's internal/state.Tracker shape: an
// in-memory map behind a sync.RWMutex, plus an externally supplied
// callback for data the index itself does not own.
type Index struct {
	mu          sync.RWMutex
	records     map[string]Record
	fetchCoords FetchAirportCoords
	stations    []indexedStation
}

// New returns an empty Index.
func New() *Index {
	return &Index{records: make(map[string]Record)}
}

// SetFetchAirportCoords installs the airport-coordinate callback and
// immediately rebuilds the spatial index against the current record set.
func (ix *Index) SetFetchAirportCoords(fn FetchAirportCoords) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.fetchCoords = fn
	ix.rebuildLocked()
}

// Read parses every record in stream (format auto-detected from fileName
// and content) and merges them into the index. When merge is false, the
// existing record set is cleared first. On a duplicate station
// identifier, the record with the newer timestamp is kept. Returns the
// number of records successfully parsed from the stream.
func (ix *Index) Read(stream io.Reader, fileName string, merge bool) (int, error) {
	parsed, err := parse(stream, fileName)
	if err != nil {
		return 0, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if !merge {
		ix.records = make(map[string]Record, len(parsed))
	}

	for _, rec := range parsed {
		if existing, ok := ix.records[rec.Station]; ok && !rec.Time.After(existing.Time) {
			continue
		}
		ix.records[rec.Station] = rec
	}

	ix.rebuildLocked()
	return len(parsed), nil
}

// GetMetar returns the record for station. If station has no record, it
// returns the nearest indexed station's record instead, while the
// returned Result still reports the original requested station and
// position.
func (ix *Index) GetMetar(station string, position geo.Position) (Result, bool) {
	station = strings.ToUpper(strings.TrimSpace(station))

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if rec, ok := ix.records[station]; ok {
		return Result{RequestedStation: station, RequestedPosition: position, Record: rec}, true
	}

	nearest, ok := ix.nearestLocked(position)
	if !ok {
		return Result{}, false
	}
	return Result{RequestedStation: station, RequestedPosition: position, Record: nearest}, true
}

// rebuildLocked walks the identifier map and re-queries the coordinate
// callback for each station; this is the rebuild spec.md §4.11 calls
// cheap, since it is only ever a walk of an in-memory map. Callers must
// hold mu for writing.
func (ix *Index) rebuildLocked() {
	ix.stations = ix.stations[:0]
	if ix.fetchCoords == nil {
		return
	}
	for ident := range ix.records {
		pos, ok := ix.fetchCoords(ident)
		if !ok {
			continue
		}
		ix.stations = append(ix.stations, indexedStation{ident: ident, pos: pos})
	}
}

func (ix *Index) nearestLocked(from geo.Position) (Record, bool) {
	if len(ix.stations) == 0 {
		return Record{}, false
	}
	best := ix.stations[0]
	bestDist := geo.DistanceNM(from, best.pos)
	for _, s := range ix.stations[1:] {
		if d := geo.DistanceNM(from, s.pos); d < bestDist {
			best, bestDist = s, d
		}
	}
	return ix.records[best.ident], true
}

// parse auto-detects one of the three source formats (JSON by file
// extension, otherwise NOAA two-line vs. flat one-per-line by content)
// and returns every record it could parse. Malformed individual records
// are skipped rather than failing the whole read, per spec.md §7.
func parse(r io.Reader, fileName string) ([]Record, error) {
	if strings.HasSuffix(strings.ToLower(fileName), ".json") {
		return parseJSON(r)
	}

	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("metar: reading %s: %w", fileName, err)
	}
	if len(lines) == 0 {
		return nil, nil
	}

	if isTimestampLine(lines[0]) {
		return parseNOAA(lines), nil
	}
	return parseFlat(lines), nil
}

// isTimestampLine reports whether line looks like a bare NOAA timestamp
// line rather than a METAR body: its first token consists only of digits
// and the characters '/', ':', '-', 'T' and 'Z' (in any position).
func isTimestampLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	tok := fields[0]
	for _, r := range tok {
		if (r < '0' || r > '9') && !strings.ContainsRune("/:-TZ", r) {
			return false
		}
	}
	return true
}

func parseNOAA(lines []string) []Record {
	var out []Record
	for i := 0; i+1 < len(lines); i += 2 {
		ts, err := parseFullTimestamp(lines[i])
		if err != nil {
			continue
		}
		body := lines[i+1]
		station := stationFromBody(body)
		if station == "" {
			continue
		}
		out = append(out, Record{Station: station, Time: ts, Body: body})
	}
	return out
}

func parseFlat(lines []string) []Record {
	out := make([]Record, 0, len(lines))
	for _, line := range lines {
		station := stationFromBody(line)
		if station == "" {
			continue
		}
		ts, err := timestampFromBody(line)
		if err != nil {
			ts = time.Time{}
		}
		out = append(out, Record{Station: station, Time: ts, Body: line})
	}
	return out
}

type jsonEntry struct {
	Station string `json:"station"`
	Time    string `json:"time"`
	Body    string `json:"body"`
}

func parseJSON(r io.Reader) ([]Record, error) {
	var entries []jsonEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("metar: decoding json: %w", err)
	}
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		ts, err := time.Parse(time.RFC3339, e.Time)
		if err != nil {
			continue
		}
		out = append(out, Record{Station: strings.ToUpper(e.Station), Time: ts, Body: e.Body})
	}
	return out, nil
}

// stationFromBody extracts the leading station identifier token: 3-4
// uppercase letters/digits.
func stationFromBody(body string) string {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return ""
	}
	tok := strings.ToUpper(fields[0])
	if len(tok) < 3 || len(tok) > 4 {
		return ""
	}
	for _, r := range tok {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return ""
		}
	}
	return tok
}

// timestampFromBody reads the METAR day/hour/minute group (the second
// token, e.g. "011200Z") that follows the station identifier. Since the
// group has no year or month, it is anchored to a synthetic epoch; this
// is sufficient to order records within a single read for "keep the
// newer timestamp" comparisons.
func timestampFromBody(body string) (time.Time, error) {
	fields := strings.Fields(body)
	if len(fields) < 2 {
		return time.Time{}, fmt.Errorf("metar: no timestamp group in %q", body)
	}
	return parseZuluGroup(fields[1])
}

func parseZuluGroup(tok string) (time.Time, error) {
	tok = strings.TrimSuffix(tok, "Z")
	if len(tok) != 6 {
		return time.Time{}, fmt.Errorf("metar: bad timestamp group %q", tok)
	}
	day, err1 := strconv.Atoi(tok[0:2])
	hour, err2 := strconv.Atoi(tok[2:4])
	minute, err3 := strconv.Atoi(tok[4:6])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("metar: bad timestamp group %q", tok)
	}
	return time.Date(0, 1, day, hour, minute, 0, 0, time.UTC), nil
}

var fullTimestampLayouts = []string{
	time.RFC3339,
	"2006/01/02 15:04",
	"2006-01-02 15:04:05",
}

func parseFullTimestamp(line string) (time.Time, error) {
	for _, layout := range fullTimestampLayouts {
		if ts, err := time.Parse(layout, line); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("metar: unrecognized timestamp line %q", line)
}
