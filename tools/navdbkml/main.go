// Command navdbkml exports a compiled navigation database's airports
// and airway fragments to KML, for viewing in Google Earth or any other
// KML-aware mapping application.
package main

import (
	"database/sql"
	"encoding/xml"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// KML structures for XML marshalling, following the KML 2.2
// specification: https://developers.google.com/kml/documentation/kmlreference

// KML is the root element of a KML document.
type KML struct {
	XMLName   xml.Name `xml:"kml"`
	Namespace string   `xml:"xmlns,attr"`
	Document  Document `xml:"Document"`
}

// Document contains the document metadata and features.
type Document struct {
	Name        string      `xml:"name"`
	Description string      `xml:"description,omitempty"`
	Styles      []Style     `xml:"Style,omitempty"`
	Placemarks  []Placemark `xml:"Placemark"`
}

// Style defines the visual appearance of features.
type Style struct {
	ID         string      `xml:"id,attr"`
	IconStyle  *IconStyle  `xml:"IconStyle,omitempty"`
	LineStyle  *LineStyle  `xml:"LineStyle,omitempty"`
}

// IconStyle defines how point icons are displayed.
type IconStyle struct {
	Scale float64 `xml:"scale,omitempty"`
	Icon  Icon    `xml:"Icon"`
}

// LineStyle defines how line geometry is displayed.
type LineStyle struct {
	Color string  `xml:"color,omitempty"`
	Width float64 `xml:"width,omitempty"`
}

// Icon specifies the icon image.
type Icon struct {
	Href string `xml:"href"`
}

// Placemark represents a geographic feature with geometry and metadata.
type Placemark struct {
	Name         string        `xml:"name"`
	Description  string        `xml:"description,omitempty"`
	StyleURL     string        `xml:"styleUrl,omitempty"`
	Point        *Point        `xml:"Point,omitempty"`
	LineString   *LineString   `xml:"LineString,omitempty"`
	ExtendedData *ExtendedData `xml:"ExtendedData,omitempty"`
}

// Point represents a geographic location.
type Point struct {
	Coordinates string `xml:"coordinates"` // Format: lon,lat,altitude
}

// LineString represents a sequence of connected points.
type LineString struct {
	Coordinates string `xml:"coordinates"` // Space-separated lon,lat,altitude triples.
}

// ExtendedData holds custom data associated with a placemark.
type ExtendedData struct {
	Data []Data `xml:"Data"`
}

// Data represents a single piece of extended data.
type Data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

type airportRow struct {
	Identifier     string
	Lon, Lat       float64
	AltitudeFeet   float64
	Country        string
	RunwayCount    int
	ILSCount       int
	ApproachCount  int
}

type airwayFragment struct {
	Name     string
	Fragment int
	RouteType string
	Points   []point
}

type point struct {
	Lon, Lat float64
}

func main() {
	dbPath := flag.String("db", "", "Compiled navigation database (required)")
	output := flag.String("output", "", "Output KML file (default: stdout)")
	exportAirports := flag.Bool("airports", true, "Include airport placemarks")
	exportAirways := flag.Bool("airways", true, "Include airway-fragment lines")
	minRunways := flag.Int("min-runways", 0, "Minimum runway count to include an airport")
	showStats := flag.Bool("stats", false, "Show statistics only, don't export")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "-db is required")
		os.Exit(2)
	}

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if *showStats {
		showStatsReport(db)
		return
	}

	var airports []airportRow
	if *exportAirports {
		airports, err = queryAirports(db, *minRunways)
		if err != nil {
			fmt.Fprintf(os.Stderr, "querying airports: %v\n", err)
			os.Exit(1)
		}
	}

	var fragments []airwayFragment
	if *exportAirways {
		fragments, err = queryAirwayFragments(db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "querying airway fragments: %v\n", err)
			os.Exit(1)
		}
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Exporting %d airports and %d airway fragments to KML\n", len(airports), len(fragments))
	}

	kml := generateKML(airports, fragments)

	xmlData, err := xml.MarshalIndent(kml, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "generating KML: %v\n", err)
		os.Exit(1)
	}
	xmlOutput := xml.Header + string(xmlData)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(xmlOutput), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "writing file: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", *output)
		}
	} else {
		fmt.Println(xmlOutput)
	}
}

func queryAirports(db *sql.DB, minRunways int) ([]airportRow, error) {
	rows, err := db.Query(`
		SELECT identifier, lon, lat, altitude_feet, country, runway_count, ils_count, approach_count
		FROM airports WHERE runway_count >= ? ORDER BY identifier`, minRunways)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []airportRow
	for rows.Next() {
		var a airportRow
		if err := rows.Scan(&a.Identifier, &a.Lon, &a.Lat, &a.AltitudeFeet, &a.Country,
			&a.RunwayCount, &a.ILSCount, &a.ApproachCount); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// queryAirwayFragments builds one polyline per (name, fragment) airway
// fragment by resolving each segment's from/to waypoint identifiers
// against the waypoints table and chaining them in sequence order.
// Segments whose endpoints don't resolve to a known waypoint position
// are skipped rather than failing the whole fragment.
func queryAirwayFragments(db *sql.DB) ([]airwayFragment, error) {
	rows, err := db.Query(`
		SELECT name, fragment, route_type, sequence, from_waypoint, to_waypoint
		FROM airway_segments ORDER BY name, fragment, sequence`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type segment struct {
		name, routeType   string
		fragment, sequence int
		from, to           string
	}
	var segments []segment
	for rows.Next() {
		var s segment
		if err := rows.Scan(&s.name, &s.fragment, &s.routeType, &s.sequence, &s.from, &s.to); err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lookup := func(identifier string) (point, bool) {
		var lon, lat float64
		err := db.QueryRow(`SELECT lon, lat FROM waypoints WHERE identifier = ? LIMIT 1`, identifier).Scan(&lon, &lat)
		if err != nil {
			return point{}, false
		}
		return point{Lon: lon, Lat: lat}, true
	}

	grouped := make(map[string][]segment)
	var order []string
	for _, s := range segments {
		key := fmt.Sprintf("%s|%d", s.name, s.fragment)
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], s)
	}
	sort.Strings(order)

	var fragments []airwayFragment
	for _, key := range order {
		segs := grouped[key]
		var points []point
		for i, s := range segs {
			if i == 0 {
				if p, ok := lookup(s.from); ok {
					points = append(points, p)
				}
			}
			if p, ok := lookup(s.to); ok {
				points = append(points, p)
			}
		}
		if len(points) < 2 {
			continue
		}
		fragments = append(fragments, airwayFragment{
			Name:      segs[0].name,
			Fragment:  segs[0].fragment,
			RouteType: segs[0].routeType,
			Points:    points,
		})
	}
	return fragments, nil
}

func generateKML(airports []airportRow, fragments []airwayFragment) KML {
	var placemarks []Placemark

	for _, a := range airports {
		coords := fmt.Sprintf("%.6f,%.6f,%.0f", a.Lon, a.Lat, a.AltitudeFeet)
		description := fmt.Sprintf("Country: %s\nRunways: %d\nILS: %d\nApproaches: %d",
			a.Country, a.RunwayCount, a.ILSCount, a.ApproachCount)
		placemarks = append(placemarks, Placemark{
			Name:        a.Identifier,
			Description: description,
			StyleURL:    "#airportStyle",
			Point:       &Point{Coordinates: coords},
			ExtendedData: &ExtendedData{
				Data: []Data{
					{Name: "runway_count", Value: fmt.Sprintf("%d", a.RunwayCount)},
					{Name: "ils_count", Value: fmt.Sprintf("%d", a.ILSCount)},
					{Name: "approach_count", Value: fmt.Sprintf("%d", a.ApproachCount)},
				},
			},
		})
	}

	for _, f := range fragments {
		var coordStrs []string
		for _, p := range f.Points {
			coordStrs = append(coordStrs, fmt.Sprintf("%.6f,%.6f,0", p.Lon, p.Lat))
		}
		placemarks = append(placemarks, Placemark{
			Name:        fmt.Sprintf("%s-%d", f.Name, f.Fragment),
			Description: fmt.Sprintf("Route type: %s", f.RouteType),
			StyleURL:    "#airwayStyle",
			LineString:  &LineString{Coordinates: joinCoords(coordStrs)},
		})
	}

	return KML{
		Namespace: "http://www.opengis.net/kml/2.2",
		Document: Document{
			Name:        "Navigation Database",
			Description: fmt.Sprintf("Airports and airways exported from a compiled navigation database. Generated %s.", time.Now().Format("2006-01-02 15:04:05")),
			Styles: []Style{
				{
					ID:        "airportStyle",
					IconStyle: &IconStyle{Scale: 0.8, Icon: Icon{Href: "http://maps.google.com/mapfiles/kml/shapes/airports.png"}},
				},
				{
					ID:        "airwayStyle",
					LineStyle: &LineStyle{Color: "ff0000ff", Width: 1.5},
				},
			},
			Placemarks: placemarks,
		},
	}
}

func joinCoords(coords []string) string {
	out := ""
	for i, c := range coords {
		if i > 0 {
			out += " "
		}
		out += c
	}
	return out
}

func showStatsReport(db *sql.DB) {
	var totalAirports, totalFragments int
	_ = db.QueryRow("SELECT COUNT(*) FROM airports").Scan(&totalAirports)
	_ = db.QueryRow("SELECT COUNT(DISTINCT name || '-' || fragment) FROM airway_segments").Scan(&totalFragments)

	fmt.Println("Navigation Database KML Export Statistics")
	fmt.Println("──────────────────────────────────────────")
	fmt.Printf("Airports:         %d\n", totalAirports)
	fmt.Printf("Airway fragments: %d\n", totalFragments)

	fmt.Println("\nAirports by runway count:")
	rows, err := db.Query(`
		SELECT
			CASE
				WHEN runway_count = 0 THEN '0'
				WHEN runway_count = 1 THEN '1'
				WHEN runway_count <= 3 THEN '2-3'
				ELSE '4+'
			END as bucket,
			COUNT(*) as cnt
		FROM airports
		GROUP BY bucket
		ORDER BY MIN(runway_count)`)
	if err == nil {
		defer rows.Close()
		fmt.Printf("%-10s %10s\n", "Runways", "Count")
		for rows.Next() {
			var bucket string
			var cnt int
			_ = rows.Scan(&bucket, &cnt)
			fmt.Printf("%-10s %10d\n", bucket, cnt)
		}
	}
}
