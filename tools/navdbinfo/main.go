// Command navdbinfo reports on, validates, and maintains a compiled
// navigation database: per-table row counts, coverage statistics, an
// orphaned-procedure-leg check, and optional VACUUM/ANALYZE — the same
// checks internal/orchestrator's validation phase runs inline, but
// callable standalone against an already-compiled database.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", "", "Compiled navigation database (required)")
	format := flag.String("format", "text", "Output format: text, json")
	top := flag.Int("top", 15, "Show the top N countries by airport count")
	validate := flag.Bool("validate", false, "Check for orphaned procedure legs")
	vacuum := flag.Bool("vacuum", false, "Run VACUUM after reporting")
	analyze := flag.Bool("analyze", false, "Run ANALYZE after reporting")
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

	report := &Report{}
	report.TableCounts = tableCounts(db)
	report.CountryCounts = countryCounts(db, *top)
	report.RunwaySurfaces = runwaySurfaceCounts(db)
	report.AirportCoverage = airportCoverage(db)

	if *validate {
		report.OrphanedLegs, err = orphanedProcedureLegs(db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "checking orphaned legs: %v\n", err)
			os.Exit(1)
		}
	}

	if *format == "json" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "marshalling report: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	} else {
		printTextReport(report, *validate)
	}

	if *analyze {
		if _, err := db.Exec("ANALYZE"); err != nil {
			fmt.Fprintf(os.Stderr, "ANALYZE failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "ANALYZE complete")
	}
	if *vacuum {
		if _, err := db.Exec("VACUUM"); err != nil {
			fmt.Fprintf(os.Stderr, "VACUUM failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "VACUUM complete")
	}

	if *validate && len(report.OrphanedLegs) > 0 {
		os.Exit(1)
	}
}

// Report bundles every statistic navdbinfo collects about one database.
type Report struct {
	TableCounts     []TableCount     `json:"table_counts"`
	CountryCounts   []CountryCount   `json:"country_counts"`
	RunwaySurfaces  []SurfaceCount   `json:"runway_surfaces"`
	AirportCoverage AirportCoverage  `json:"airport_coverage"`
	OrphanedLegs    []int64          `json:"orphaned_procedure_legs,omitempty"`
}

type TableCount struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
}

type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

type SurfaceCount struct {
	Surface string `json:"surface"`
	Count   int    `json:"count"`
}

// AirportCoverage summarizes how many airports have at least one
// runway, ILS, or approach, using the rollup columns the orchestrator's
// cross-reference phase maintains.
type AirportCoverage struct {
	TotalAirports   int `json:"total_airports"`
	WithRunways     int `json:"with_runways"`
	WithILS         int `json:"with_ils"`
	WithApproaches  int `json:"with_approaches"`
}

var reportedTables = []string{
	"airports", "runways", "runway_ends", "waypoints",
	"airway_segments", "procedures", "procedure_legs", "ils",
	"route_nodes", "route_edges", "scenery_areas", "file_descriptors",
}

func tableCounts(db *sql.DB) []TableCount {
	var out []TableCount
	for _, table := range reportedTables {
		var n int
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
			continue // Table absent from this database.
		}
		out = append(out, TableCount{Table: table, Rows: n})
	}
	return out
}

func countryCounts(db *sql.DB, top int) []CountryCount {
	rows, err := db.Query(`
		SELECT country, COUNT(*) as cnt FROM airports
		WHERE country != '' GROUP BY country ORDER BY cnt DESC LIMIT ?`, top)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []CountryCount
	for rows.Next() {
		var c CountryCount
		if err := rows.Scan(&c.Country, &c.Count); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

func runwaySurfaceCounts(db *sql.DB) []SurfaceCount {
	rows, err := db.Query(`
		SELECT surface, COUNT(*) as cnt FROM runways
		GROUP BY surface ORDER BY cnt DESC`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []SurfaceCount
	for rows.Next() {
		var s SurfaceCount
		if err := rows.Scan(&s.Surface, &s.Count); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

func airportCoverage(db *sql.DB) AirportCoverage {
	var cov AirportCoverage
	_ = db.QueryRow("SELECT COUNT(*) FROM airports").Scan(&cov.TotalAirports)
	_ = db.QueryRow("SELECT COUNT(*) FROM airports WHERE runway_count > 0").Scan(&cov.WithRunways)
	_ = db.QueryRow("SELECT COUNT(*) FROM airports WHERE ils_count > 0").Scan(&cov.WithILS)
	_ = db.QueryRow("SELECT COUNT(*) FROM airports WHERE approach_count > 0").Scan(&cov.WithApproaches)
	return cov
}

// orphanedProcedureLegs returns the IDs of every procedure_legs row
// whose procedure_id does not reference an existing procedures row —
// the same check internal/orchestrator's phaseValidationFn runs inline,
// exposed here so it can be re-run against a database without
// recompiling it.
func orphanedProcedureLegs(db *sql.DB) ([]int64, error) {
	rows, err := db.Query(`
		SELECT pl.id FROM procedure_legs pl
		LEFT JOIN procedures p ON p.id = pl.procedure_id
		WHERE p.id IS NULL
		ORDER BY pl.id`)
	if err != nil {
		return nil, fmt.Errorf("querying orphaned legs: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning orphaned leg id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func printTextReport(r *Report, validated bool) {
	fmt.Println("═══════════════════════════════════════════")
	fmt.Println("           NAVIGATION DATABASE INFO")
	fmt.Println("═══════════════════════════════════════════")
	fmt.Println()

	fmt.Println("TABLE ROW COUNTS")
	fmt.Println("────────────────")
	for _, tc := range r.TableCounts {
		fmt.Printf("%-20s %10d\n", tc.Table, tc.Rows)
	}
	fmt.Println()

	fmt.Println("AIRPORT COVERAGE")
	fmt.Println("────────────────")
	cov := r.AirportCoverage
	fmt.Printf("Total airports:      %d\n", cov.TotalAirports)
	if cov.TotalAirports > 0 {
		fmt.Printf("With runways:        %d (%.1f%%)\n", cov.WithRunways, pct(cov.WithRunways, cov.TotalAirports))
		fmt.Printf("With ILS:            %d (%.1f%%)\n", cov.WithILS, pct(cov.WithILS, cov.TotalAirports))
		fmt.Printf("With approaches:     %d (%.1f%%)\n", cov.WithApproaches, pct(cov.WithApproaches, cov.TotalAirports))
	}
	fmt.Println()

	fmt.Println("TOP COUNTRIES BY AIRPORT COUNT")
	fmt.Println("──────────────────────────────")
	for _, cc := range r.CountryCounts {
		fmt.Printf("%-10s %10d\n", cc.Country, cc.Count)
	}
	fmt.Println()

	fmt.Println("RUNWAY SURFACES")
	fmt.Println("───────────────")
	for _, sc := range r.RunwaySurfaces {
		fmt.Printf("%-15s %10d\n", sc.Surface, sc.Count)
	}

	if validated {
		fmt.Println()
		fmt.Println("VALIDATION")
		fmt.Println("──────────")
		if len(r.OrphanedLegs) == 0 {
			fmt.Println("No orphaned procedure legs found.")
		} else {
			fmt.Printf("%d orphaned procedure leg(s): %v\n", len(r.OrphanedLegs), r.OrphanedLegs)
		}
	}
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
