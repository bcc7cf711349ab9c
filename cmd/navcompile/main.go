// Command navcompile builds a navigation database from a relational,
// text, or binary scenery source. See spec.md/SPEC_FULL.md for the
// full compile pipeline; this file only wires flags into an
// orchestrator.Config and reports the result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"navdbcompiler/internal/clog"
	"navdbcompiler/internal/geo"
	"navdbcompiler/internal/magvar"
	"navdbcompiler/internal/metar"
	"navdbcompiler/internal/orchestrator"
	"navdbcompiler/internal/scenery"
	"navdbcompiler/internal/statusapi"
	"navdbcompiler/internal/store"
	"navdbcompiler/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "navcompile - commands:")
	fmt.Fprintln(w, "  compile  - compile a navigation database from a source")
	fmt.Fprintln(w, "  metar    - load METAR files and answer nearest-station lookups against a compiled database")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  navcompile compile -output out.db -source text -text airports.txt [-text runways.txt ...]")
	fmt.Fprintln(w, "  navcompile compile -output out.db -source relational -rel-dsn postgres://...")
	fmt.Fprintln(w, "  navcompile compile -output out.db -source binary -scenery-config areas.json")
	fmt.Fprintln(w, "  navcompile metar -db out.db -station KAAA -lon -122.3 -lat 47.4 [-metar metar.txt ...]")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	switch strings.ToLower(os.Args[1]) {
	case "compile":
		runCompile(os.Args[2:])
	case "metar":
		runMetar(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

// stringList collects repeated occurrences of one flag into a slice.
type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

func runCompile(args []string) {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	output := fs.String("output", "", "Output sqlite database path (required)")
	sourceKind := fs.String("source", "", "Source kind: relational, text, or binary (required)")
	relDSN := fs.String("rel-dsn", "", "Postgres DSN for -source relational")
	var textFiles stringList
	fs.Var(&textFiles, "text", "Text source input file (repeatable)")
	sceneryConfig := fs.String("scenery-config", "", "JSON scenery-area descriptor for -source binary")
	magvarGrid := fs.String("magvar-grid", "", "Magnetic variation grid file (optional)")
	magvarStep := fs.Float64("magvar-step", 5, "Magnetic variation grid step, degrees")
	maxSegmentNM := fs.Float64("max-segment-nm", 800, "Maximum plausible airway segment length, nautical miles; when not given, 800 for -source binary and 8000 for relational/text (<= 0 disables the guard)")
	dedup := fs.Bool("dedup", true, "Run the deduplication phase")
	routing := fs.Bool("routing", false, "Populate the optional routing tables")
	validate := fs.Bool("validate", true, "Run the validation/vacuum phase")
	showProgress := fs.Bool("progress", true, "Print phase progress to stderr")
	chHost := fs.String("clickhouse-host", "", "ClickHouse telemetry sink host (optional)")
	chPort := fs.Int("clickhouse-port", 9000, "ClickHouse telemetry sink port")
	chDatabase := fs.String("clickhouse-database", "navcompile", "ClickHouse telemetry sink database")
	chUser := fs.String("clickhouse-user", "default", "ClickHouse telemetry sink user")
	chPassword := fs.String("clickhouse-password", "", "ClickHouse telemetry sink password")
	natsURL := fs.String("nats-url", "", "NATS URL for progress events and cancellation (optional)")
	statusPort := fs.Int("status-port", 0, "Port to serve the status/control HTTP surface on (0 disables it)")
	_ = fs.Parse(args)

	if *output == "" || *sourceKind == "" {
		fmt.Fprintln(os.Stderr, "-output and -source are required")
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx := context.Background()
	log := clog.New(nil)

	cfg := orchestrator.Config{
		OutputPath:       *output,
		MaxSegmentNM:     *maxSegmentNM,
		EnableDedup:      *dedup,
		EnableRouting:    *routing,
		EnableValidation: *validate,
		Log:              log,
	}

	switch strings.ToLower(*sourceKind) {
	case "relational":
		if *relDSN == "" {
			fmt.Fprintln(os.Stderr, "-rel-dsn is required for -source relational")
			os.Exit(2)
		}
		pool, err := pgxpool.New(ctx, *relDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "connecting to relational source: %v\n", err)
			os.Exit(1)
		}
		defer pool.Close()
		cfg.Source = orchestrator.SourceRelational
		cfg.RelPool = pool
	case "text":
		if len(textFiles) == 0 {
			fmt.Fprintln(os.Stderr, "at least one -text input is required for -source text")
			os.Exit(2)
		}
		cfg.Source = orchestrator.SourceText
		for _, path := range textFiles {
			f, err := os.Open(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "opening %s: %v\n", path, err)
				os.Exit(1)
			}
			defer f.Close()
			cfg.TextInputs = append(cfg.TextInputs, orchestrator.TextInput{Name: path, Reader: f})
		}
	case "binary":
		if *sceneryConfig == "" {
			fmt.Fprintln(os.Stderr, "-scenery-config is required for -source binary")
			os.Exit(2)
		}
		areas, err := loadSceneryConfig(*sceneryConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading scenery config: %v\n", err)
			os.Exit(1)
		}
		cfg.Source = orchestrator.SourceBinary
		cfg.SceneryAreas = areas
	default:
		fmt.Fprintf(os.Stderr, "unknown -source %q: want relational, text, or binary\n", *sourceKind)
		os.Exit(2)
	}

	segmentSet := false
	fs.Visit(func(f *flag.Flag) { segmentSet = segmentSet || f.Name == "max-segment-nm" })
	if !segmentSet && cfg.Source != orchestrator.SourceBinary {
		cfg.MaxSegmentNM = 8000
	}

	if *magvarGrid != "" {
		f, err := os.Open(*magvarGrid)
		if err != nil {
			fmt.Fprintf(os.Stderr, "opening magvar grid: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		grid, err := magvar.LoadGrid(f, -90, 90, -180, 180, *magvarStep)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading magvar grid: %v\n", err)
			os.Exit(1)
		}
		cfg.MagvarGrid = grid
	}

	var telemetryCfg telemetry.Config
	if *chHost != "" {
		telemetryCfg.ClickHouse = &telemetry.ClickHouseConfig{
			Host:     *chHost,
			Port:     *chPort,
			Database: *chDatabase,
			User:     *chUser,
			Password: *chPassword,
		}
	}
	telemetryCfg.NATSURL = *natsURL
	sink, err := telemetry.Open(ctx, runID(), telemetryCfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening telemetry sinks: %v\n", err)
		os.Exit(1)
	}
	defer sink.Close()

	state := statusapi.NewState()
	if *statusPort != 0 {
		srv := statusapi.NewServer(state, statusapi.Config{Port: *statusPort})
		go func() {
			if err := srv.Run(); err != nil {
				log.Error("status api server stopped", "error", err)
			}
		}()
	}

	cfg.Progress = func(phaseIndex, phaseCount int, name string) orchestrator.Decision {
		state.EndPhase()
		state.BeginPhase(phaseIndex, phaseCount, name)
		sink.Publish(phaseIndex, phaseCount, name)
		if *showProgress {
			fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", phaseIndex+1, phaseCount, name)
		}
		if sink.Aborted() || state.CancelRequested() {
			return orchestrator.Abort
		}
		return orchestrator.Continue
	}

	result, err := orchestrator.Run(ctx, cfg)
	state.EndPhase()
	state.Finish(result.Code.String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "compile failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "result: %s\n", result.Code)
	for table, n := range result.RowsWritten {
		fmt.Fprintf(os.Stderr, "  %-20s %d\n", table, n)
	}

	switch result.Code {
	case orchestrator.Ok:
		os.Exit(0)
	case orchestrator.Aborted:
		os.Exit(3)
	default:
		os.Exit(1)
	}
}

type sceneryAreaConfig struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Legacy     bool   `json:"legacy"`
	Path       string `json:"path"`
	Layer      int    `json:"layer"`
	AreaNumber int    `json:"area_number"`
	Enabled    bool   `json:"enabled"`
}

// loadSceneryConfig reads the hierarchical scenery descriptor spec.md
// §6 describes: active areas, their paths, layer priorities, and
// enable/disable flags. Community and add-on areas override base areas
// by layer ordering, which internal/orchestrator applies when it sorts
// cfg.SceneryAreas before walking them.
func loadSceneryConfig(path string) ([]orchestrator.BinaryArea, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []sceneryAreaConfig
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding scenery config: %w", err)
	}

	areas := make([]orchestrator.BinaryArea, 0, len(entries))
	for _, e := range entries {
		data, err := os.ReadFile(e.Path)
		if err != nil {
			return nil, fmt.Errorf("reading scenery area %q: %w", e.Name, err)
		}
		areas = append(areas, orchestrator.BinaryArea{
			Area: scenery.Area{
				Name:    e.Name,
				Version: sceneryVersion(e.Version),
				Legacy:  e.Legacy,
			},
			Path:       e.Path,
			Data:       data,
			Layer:      e.Layer,
			AreaNumber: e.AreaNumber,
			Enabled:    e.Enabled,
		})
	}
	return areas, nil
}

func sceneryVersion(s string) scenery.SchemaVersion {
	switch strings.ToLower(s) {
	case "msfs":
		return scenery.VersionMSFS
	case "msfs116":
		return scenery.VersionMSFS116
	case "msfs118":
		return scenery.VersionMSFS118
	default:
		return scenery.VersionLegacy
	}
}

// runID derives a stable identifier for one compile run's telemetry rows
// from the output path and source flags, since time.Now()-based IDs
// would collide across retries of the exact same invocation within the
// same ClickHouse partition granularity.
func runID() string {
	return strings.Join(os.Args[1:], " ")
}

func runMetar(args []string) {
	fs := flag.NewFlagSet("metar", flag.ExitOnError)
	dbPath := fs.String("db", "", "Compiled navigation database, for airport-coordinate lookups (required)")
	var metarFiles stringList
	fs.Var(&metarFiles, "metar", "METAR source file to load (repeatable)")
	station := fs.String("station", "", "Station identifier to look up (required)")
	lon := fs.Float64("lon", 0, "Requesting position longitude")
	lat := fs.Float64("lat", 0, "Requesting position latitude")
	_ = fs.Parse(args)

	if *dbPath == "" || *station == "" {
		fmt.Fprintln(os.Stderr, "-db and -station are required")
		os.Exit(2)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ix := metar.New()
	for _, path := range metarFiles {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "opening %s: %v\n", path, err)
			os.Exit(1)
		}
		n, err := ix.Read(f, path, true)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "loaded %d records from %s\n", n, path)
	}

	ix.SetFetchAirportCoords(func(identifier string) (geo.Position, bool) {
		row := st.DB().QueryRowContext(ctx, `SELECT lon, lat FROM airports WHERE identifier = ?`, identifier)
		var lon, lat float64
		if err := row.Scan(&lon, &lat); err != nil {
			return geo.Position{}, false
		}
		return geo.NewPosition(lon, lat, 0), true
	})

	result, ok := ix.GetMetar(*station, geo.NewPosition(*lon, *lat, 0))
	if !ok {
		fmt.Fprintf(os.Stderr, "no METAR coverage for %s\n", *station)
		os.Exit(1)
	}

	fmt.Printf("%s (requested %s): %s\n", result.Record.Station, result.RequestedStation, result.Record.Body)
}
