// Package orchestrator sequences the compile pipeline's phases against
// the output store, per spec.md §4.12: schema, metadata, load, indexes,
// optional dedup, airways, derived values, cross-reference, optional
// routing tables, final indexes, and optional validation. Every phase
// runs inside its own committed transaction (internal/store.WithTx);
// cooperative cancellation and the synchronous progress callback are
// checked at each phase boundary, per spec.md §5.
//
// Grounded on cmd/acars_parser/main.go's top-level Stats-plus-phase
// pattern and the teacher registry's Sort()-before-Dispatch() discipline,
// reworked here into a monotonic phase-sequence guard (see
// SPEC_FULL.md §9.1) rather than a priority sort, since the compiler's
// phases have a fixed, not data-dependent, order.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"navdbcompiler/internal/airway"
	"navdbcompiler/internal/binrec"
	"navdbcompiler/internal/clog"
	"navdbcompiler/internal/geo"
	"navdbcompiler/internal/ils"
	"navdbcompiler/internal/magvar"
	"navdbcompiler/internal/procedure"
	"navdbcompiler/internal/relsource"
	"navdbcompiler/internal/runway"
	"navdbcompiler/internal/scenery"
	"navdbcompiler/internal/store"
	"navdbcompiler/internal/tacan"
	"navdbcompiler/internal/textsource"
)

// ResultCode is the compile run's terminal outcome, per spec.md §6.
type ResultCode int

const (
	Ok ResultCode = iota
	Aborted
	BasicValidationError
	NavigraphFound
)

func (c ResultCode) String() string {
	switch c {
	case Ok:
		return "ok"
	case Aborted:
		return "aborted"
	case BasicValidationError:
		return "basic_validation_error"
	case NavigraphFound:
		return "navigraph_found"
	default:
		return "unknown"
	}
}

// Decision is returned by a ProgressFunc to continue or cooperatively
// abort the run at the next phase boundary.
type Decision int

const (
	Continue Decision = iota
	Abort
)

// ProgressFunc is called synchronously before each phase runs.
type ProgressFunc func(phaseIndex, phaseCount int, name string) Decision

// SourceKind selects which adapter feeds the load phase.
type SourceKind int

const (
	SourceRelational SourceKind = iota
	SourceText
	SourceBinary
)

// TextInput is one line-oriented input stream plus the name reported in
// log records.
type TextInput struct {
	Name   string
	Reader io.Reader
}

// BinaryArea is one decoded scenery archive's byte stream and its
// metadata, per spec.md §4.2's per-area schema-version/legacy flags and
// §4.12 phase 3's layer-ordered, active-area-filtered load.
type BinaryArea struct {
	Area       scenery.Area
	Path       string
	Data       []byte
	Layer      int
	AreaNumber int
	Enabled    bool
}

// Config holds everything one compile run needs. Exactly one of RelPool,
// TextInputs, or SceneryAreas should be populated, matching Source.
type Config struct {
	OutputPath string

	Source       SourceKind
	RelPool      *pgxpool.Pool
	TextInputs   []TextInput
	SceneryAreas []BinaryArea

	MagvarGrid *magvar.Grid

	// MaxSegmentNM drops any airway segment longer than this, the
	// "borked data" guard; <= 0 disables the guard entirely.
	MaxSegmentNM float64

	EnableDedup      bool
	EnableRouting    bool
	EnableValidation bool

	Progress  ProgressFunc
	Log       *clog.Logger
}

// Result is returned once the run reaches a terminal state.
type Result struct {
	Code        ResultCode
	RowsWritten map[string]int
}

type phase int

const (
	phaseNone phase = iota - 1
	phaseSchema
	phaseMetadata
	phaseLoad
	phasePostLoadIndexes
	phaseDedup
	phaseAirways
	phaseDerivedValues
	phaseCrossReference
	phaseRoutingTables
	phaseFinalIndexes
	phaseValidation
)

var phaseNames = map[phase]string{
	phaseSchema:           "schema",
	phaseMetadata:         "metadata",
	phaseLoad:             "load",
	phasePostLoadIndexes:  "post-load indexes",
	phaseDedup:            "deduplication",
	phaseAirways:          "airways",
	phaseDerivedValues:    "derived values",
	phaseCrossReference:   "cross-reference",
	phaseRoutingTables:    "routing tables",
	phaseFinalIndexes:     "final indexes",
	phaseValidation:       "validation",
}

// orchestrator carries the mutable state threaded across phases: the
// open store, buffered rows that one phase produces and a later one
// consumes (airway sequence rows, deferred relational procedure rows),
// and the monotonic phase-sequence guard.
type orchestrator struct {
	store *store.Store
	cfg   Config
	log   *clog.Logger

	lastPhase phase

	rowsWritten map[string]int

	pendingAirwayRows     []airway.Row
	pendingProcedureRows  []procedure.InputRow
}

// enterPhase enforces the fixed phase order structurally: SPEC_FULL.md
// §9.1 resolves the "does dedup run before cross-reference IDs are
// assigned" open question by making that ordering a property of the
// phase table itself, not caller discipline, so a future maintainer
// reordering the phase slice below gets a hard error instead of silently
// corrupting the dedup/cross-reference invariant.
func (o *orchestrator) enterPhase(p phase) error {
	if p <= o.lastPhase {
		return fmt.Errorf("orchestrator: phase %q cannot run after phase %q",
			phaseNames[p], phaseNames[o.lastPhase])
	}
	o.lastPhase = p
	return nil
}

// Run executes the full compile pipeline against cfg, returning once a
// terminal Result is reached.
func Run(ctx context.Context, cfg Config) (Result, error) {
	log := cfg.Log
	if log == nil {
		log = clog.New(nil)
	}

	st, err := store.Open(ctx, cfg.OutputPath)
	if err != nil {
		return Result{Code: BasicValidationError}, err
	}
	defer st.Close()

	o := &orchestrator{
		store:       st,
		cfg:         cfg,
		log:         log,
		lastPhase:   phaseNone,
		rowsWritten: map[string]int{},
	}

	type step struct {
		p       phase
		name    string
		fn      func(context.Context) error
		enabled bool
	}

	steps := []step{
		{phaseSchema, phaseNames[phaseSchema], o.phaseSchemaFn, true},
		{phaseMetadata, phaseNames[phaseMetadata], o.phaseMetadataFn, true},
		{phaseLoad, phaseNames[phaseLoad], o.phaseLoadFn, true},
		{phasePostLoadIndexes, phaseNames[phasePostLoadIndexes], o.phasePostLoadIndexesFn, true},
		{phaseDedup, phaseNames[phaseDedup], o.phaseDedupFn, cfg.EnableDedup},
		{phaseAirways, phaseNames[phaseAirways], o.phaseAirwaysFn, true},
		{phaseDerivedValues, phaseNames[phaseDerivedValues], o.phaseDerivedValuesFn, cfg.Source == SourceRelational},
		{phaseCrossReference, phaseNames[phaseCrossReference], o.phaseCrossReferenceFn, true},
		{phaseRoutingTables, phaseNames[phaseRoutingTables], o.phaseRoutingTablesFn, cfg.EnableRouting},
		{phaseFinalIndexes, phaseNames[phaseFinalIndexes], o.phaseFinalIndexesFn, true},
		{phaseValidation, phaseNames[phaseValidation], o.phaseValidationFn, cfg.EnableValidation},
	}

	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			log.Info("compile cancelled", "before_phase", s.name)
			return Result{Code: Aborted, RowsWritten: o.rowsWritten}, nil
		}
		if cfg.Progress != nil && cfg.Progress(i, len(steps), s.name) == Abort {
			log.Info("compile aborted by caller", "before_phase", s.name)
			return Result{Code: Aborted, RowsWritten: o.rowsWritten}, nil
		}
		if !s.enabled {
			continue
		}
		if err := o.enterPhase(s.p); err != nil {
			return Result{Code: BasicValidationError, RowsWritten: o.rowsWritten}, err
		}
		if err := s.fn(ctx); err != nil {
			log.Error("phase failed", "phase", s.name, "error", err)
			return Result{Code: BasicValidationError, RowsWritten: o.rowsWritten},
				fmt.Errorf("orchestrator: phase %s: %w", s.name, err)
		}
		log.Info("phase complete", "phase", s.name)
	}

	return Result{Code: Ok, RowsWritten: o.rowsWritten}, nil
}

// phaseSchemaFn implements spec.md §4.12 phase 1: drop then recreate
// every output table/index/view.
func (o *orchestrator) phaseSchemaFn(ctx context.Context) error {
	if err := o.store.DropAll(ctx); err != nil {
		return err
	}
	return o.store.CreateAll(ctx)
}

func schemaVersionString(v scenery.SchemaVersion) string {
	switch v {
	case scenery.VersionMSFS:
		return "msfs"
	case scenery.VersionMSFS116:
		return "msfs116"
	case scenery.VersionMSFS118:
		return "msfs118"
	default:
		return "legacy"
	}
}

// phaseMetadataFn implements spec.md §4.12 phase 2: scenery-area and
// file-descriptor rows, plus the magnetic model's sampled bounds.
func (o *orchestrator) phaseMetadataFn(ctx context.Context) error {
	return o.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, a := range o.cfg.SceneryAreas {
			enabled := 0
			if a.Enabled {
				enabled = 1
			}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO scenery_areas (name, path, layer, area_number, enabled) VALUES (?, ?, ?, ?, ?)`,
				a.Area.Name, a.Path, a.Layer, a.AreaNumber, enabled)
			if err != nil {
				return fmt.Errorf("insert scenery area %s: %w", a.Area.Name, err)
			}
			areaID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO file_descriptors (scenery_area_id, path, schema_version) VALUES (?, ?, ?)`,
				areaID, a.Path, schemaVersionString(a.Area.Version)); err != nil {
				return fmt.Errorf("insert file descriptor %s: %w", a.Path, err)
			}
		}

		if g := o.cfg.MagvarGrid; g != nil {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO magnetic_model (id, min_lat, max_lat, min_lon, max_lon, step) VALUES (1, ?, ?, ?, ?, ?)`,
				g.MinLat, g.MaxLat, g.MinLon, g.MaxLon, g.Step); err != nil {
				return fmt.Errorf("insert magnetic model: %w", err)
			}
		}
		return nil
	})
}

// phaseLoadFn implements spec.md §4.12 phase 3: delegate to the
// configured source adapter.
func (o *orchestrator) phaseLoadFn(ctx context.Context) error {
	switch o.cfg.Source {
	case SourceRelational:
		return o.loadRelational(ctx)
	case SourceText:
		return o.loadText(ctx)
	case SourceBinary:
		return o.loadBinary(ctx)
	default:
		return fmt.Errorf("unknown source kind %d", o.cfg.Source)
	}
}

// txFixResolver implements procedure.FixResolver against the in-flight
// transaction's own waypoints table, so a procedure leg can resolve
// against rows this same phase has already inserted without waiting for
// a commit. Synthesize is the unconditional fallback spec.md invariant 4
// requires: it inserts a coordinate-only waypoint the first time an
// identifier is seen and is a no-op (via ON CONFLICT DO NOTHING) on
// every later leg that references the same synthesized fix.
type txFixResolver struct {
	ctx context.Context
	tx  *sql.Tx
}

func (r *txFixResolver) ByIdentifierRegionType(identifier, region, fixType string) (geo.Position, bool) {
	var lon, lat float64
	err := r.tx.QueryRowContext(r.ctx,
		`SELECT lon, lat FROM waypoints WHERE identifier = ? AND region = ? AND type = ?`,
		identifier, region, fixType).Scan(&lon, &lat)
	if err != nil {
		return geo.Position{}, false
	}
	return geo.NewPosition(lon, lat, 0), true
}

func (r *txFixResolver) NearestByIdentifier(identifier string, near geo.Position) (geo.Position, bool) {
	rows, err := r.tx.QueryContext(r.ctx, `SELECT lon, lat FROM waypoints WHERE identifier = ?`, identifier)
	if err != nil {
		return geo.Position{}, false
	}
	defer rows.Close()

	var best geo.Position
	bestDist := math.MaxFloat64
	found := false
	for rows.Next() {
		var lon, lat float64
		if err := rows.Scan(&lon, &lat); err != nil {
			continue
		}
		p := geo.NewPosition(lon, lat, 0)
		if d := geo.DistanceNM(near, p); !found || d < bestDist {
			best, bestDist, found = p, d, true
		}
	}
	return best, found
}

func (r *txFixResolver) Synthesize(identifier string, near geo.Position) geo.Position {
	_, _ = r.tx.ExecContext(r.ctx, `
		INSERT INTO waypoints (identifier, region, type, lon, lat)
		VALUES (?, 'ZZ', 'WAYPOINT', ?, ?)
		ON CONFLICT(identifier, region, type) DO NOTHING`,
		identifier, near.Lon(), near.Lat())
	return near
}

// loadRelational streams every relational source table into the output
// store. Airway rows and procedure input rows are buffered rather than
// written here: airways resolve in the dedicated phaseAirwaysFn, and
// relational procedure emission is a named derived-value pass (spec.md
// §4.12 phase 7), deferred until magvar/TACAN/ILS have run so a
// procedure leg's recommended navaid can resolve against a fully
// enriched waypoints table.
func (o *orchestrator) loadRelational(ctx context.Context) error {
	pool := o.cfg.RelPool
	if pool == nil {
		return fmt.Errorf("relational source selected but no connection pool configured")
	}

	airportIDs := map[string]int64{}
	airportPositions := map[string]geo.Position{}

	return o.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := relsource.StreamAirports(ctx, pool, func(a relsource.AirportRow) error {
			rect := geo.RectAround(a.Position, 100)
			id, err := o.store.InsertAirport(ctx, tx, a.Identifier, a.Region, a.SourcePriority, a.Position, rect)
			if err != nil {
				return err
			}
			airportIDs[a.Identifier] = id
			airportPositions[a.Identifier] = a.Position
			o.rowsWritten["airports"]++
			return nil
		}); err != nil {
			return fmt.Errorf("loading airports: %w", err)
		}

		endsByAirport := map[string][]runway.End{}
		if err := relsource.StreamRunwayEnds(ctx, pool, func(r relsource.RunwayEndRow) error {
			endsByAirport[r.AirportIdentifier] = append(endsByAirport[r.AirportIdentifier], r.End)
			return nil
		}); err != nil {
			return fmt.Errorf("loading runway ends: %w", err)
		}
		for identifier, ends := range endsByAirport {
			if err := o.writeRunwaysForAirport(ctx, tx, identifier, airportIDs, airportPositions, ends); err != nil {
				return err
			}
		}

		if err := relsource.StreamAirwayRows(ctx, pool, func(r airway.Row) error {
			o.pendingAirwayRows = append(o.pendingAirwayRows, r)
			return nil
		}); err != nil {
			return fmt.Errorf("loading airway rows: %w", err)
		}

		for _, src := range []relsource.ProcedureSource{relsource.SourceApproaches, relsource.SourceSIDs, relsource.SourceSTARs} {
			if err := relsource.StreamProcedures(ctx, pool, src, func(row procedure.InputRow) error {
				o.pendingProcedureRows = append(o.pendingProcedureRows, row)
				return nil
			}); err != nil {
				return fmt.Errorf("reading %s: %w", src.Table, err)
			}
		}

		return nil
	})
}

// writeRunwaysForAirport pairs a relational/text airport's runway ends
// and inserts them. Since neither relsource nor textsource carries a
// physical threshold position (runway.End has none; only the binary
// scenery records do), geometry here is derived from the airport's own
// reference point and each end's true bearing, per runway.ComputeGeometry
// with length 0. The binary-source path (loadBinaryArea) uses the same
// approximation: it does not use the threshold coordinates that
// scenery.WalkRunwayEnd decodes.
func (o *orchestrator) writeRunwaysForAirport(ctx context.Context, tx *sql.Tx, identifier string,
	airportIDs map[string]int64, airportPositions map[string]geo.Position, ends []runway.End) error {
	airportID, ok := airportIDs[identifier]
	if !ok {
		o.log.Warn("runway ends reference unknown airport", "airport", identifier)
		return nil
	}
	ref := airportPositions[identifier]

	var endpoints []geo.Position
	for _, pair := range runway.Pairs(ends) {
		geom := runway.ComputeGeometry(ref, 0, pair.Primary.TrueBearing)
		if _, err := o.store.InsertRunway(ctx, tx, airportID, pair, geom, ""); err != nil {
			return fmt.Errorf("inserting runway %s/%s: %w", identifier, pair.Primary.Ident, err)
		}
		endpoints = append(endpoints, geom.PrimaryThreshold, geom.SecondaryThreshold)
		o.rowsWritten["runways"]++
	}
	if len(endpoints) > 0 {
		rect := runway.AirportRect(ref, endpoints)
		if _, err := tx.ExecContext(ctx,
			`UPDATE airports SET bounds_tl_lon=?, bounds_tl_lat=?, bounds_br_lon=?, bounds_br_lat=? WHERE id=?`,
			rect.TopLeft[0], rect.TopLeft[1], rect.BottomRight[0], rect.BottomRight[1], airportID); err != nil {
			return fmt.Errorf("updating airport bounds for %s: %w", identifier, err)
		}
	}
	return nil
}

// applyMagvarInline writes one row's magnetic_variation at insert time.
// spec.md §4.12 phase 7 runs magvar/TACAN/ILS as a dedicated phase only
// for the relational adapter, since the text and binary adapters perform
// the same derivations during load instead -- this is the text/binary
// equivalent of phaseDerivedValuesFn's ApplyPositionalTransform call,
// applied to a single already-known row rather than a whole-table scan.
func (o *orchestrator) applyMagvarInline(ctx context.Context, tx *sql.Tx, table string, id int64, pos geo.Position) {
	if o.cfg.MagvarGrid == nil {
		return
	}
	v, err := o.cfg.MagvarGrid.Lookup(pos)
	if err != nil {
		return
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET magnetic_variation = ? WHERE id = ?`, table), v, id); err != nil {
		o.log.Error("updating inline magnetic variation failed", "table", table, "id", id, "error", err)
	}
}

// applyTACANInline is the text/binary-load-time equivalent of
// applyTACANChannels, resolving one waypoint's channel as soon as its
// type and frequency are known rather than in a later table scan.
func (o *orchestrator) applyTACANInline(ctx context.Context, tx *sql.Tx, id int64, typeCode string, frequency float64) {
	ch, ok := tacan.Lookup(typeCode, decimal.NewFromFloat(frequency))
	if !ok {
		return
	}
	if _, err := tx.ExecContext(ctx, `UPDATE waypoints SET tacan_channel = ? WHERE id = ?`, ch.String(), id); err != nil {
		o.log.Error("updating inline tacan channel failed", "id", id, "error", err)
	}
}

// loadText reads every configured text input, inserting rows directly
// (text-source procedures resolve and flush inline, since
// textsource.Read owns the per-airport boundary loop and cannot be split
// across phases the way the relational adapter's raw cursors can).
// Magnetic variation and TACAN channel derivation are likewise applied
// inline per row (see applyMagvarInline/applyTACANInline) rather than in
// the relational-only phaseDerivedValuesFn pass. ILS feather geometry
// has no inline equivalent here: no adapter, including the relational
// one, populates the ils table's waypoint_id/true_heading inputs, so
// there is nothing for an inline ils.Compute call to act on yet.
func (o *orchestrator) loadText(ctx context.Context) error {
	return o.store.WithTx(ctx, func(tx *sql.Tx) error {
		airportIDs := map[string]int64{}
		airportPositions := map[string]geo.Position{}
		endsByAirport := map[string][]runway.End{}

		resolver := &txFixResolver{ctx: ctx, tx: tx}
		w := procedure.NewWriter(resolver, func(p procedure.Procedure) {
			if _, err := o.store.InsertProcedure(ctx, tx, p); err != nil {
				o.log.Error("insert procedure failed", "airport", p.AirportIdentifier, "identifier", p.Identifier, "error", err)
				return
			}
			o.rowsWritten["procedures"]++
		})

		cb := textsource.Callbacks{
			Airport: func(a relsource.AirportRow) {
				rect := geo.RectAround(a.Position, 100)
				id, err := o.store.InsertAirport(ctx, tx, a.Identifier, a.Region, a.SourcePriority, a.Position, rect)
				if err != nil {
					o.log.Error("insert airport failed", "identifier", a.Identifier, "error", err)
					return
				}
				airportIDs[a.Identifier] = id
				airportPositions[a.Identifier] = a.Position
				o.rowsWritten["airports"]++
				o.applyMagvarInline(ctx, tx, "airports", id, a.Position)
			},
			RunwayEnd: func(airportIdentifier string, end runway.End) {
				endsByAirport[airportIdentifier] = append(endsByAirport[airportIdentifier], end)
			},
			Waypoint: func(wpt textsource.Waypoint) {
				var freq sql.NullFloat64
				if wpt.HasFrequency {
					freq = sql.NullFloat64{Float64: wpt.Frequency, Valid: true}
				}
				id, err := o.store.InsertWaypoint(ctx, tx, wpt.Identifier, wpt.Region, wpt.Type, wpt.Position, freq)
				if err != nil {
					o.log.Error("insert waypoint failed", "identifier", wpt.Identifier, "error", err)
					return
				}
				o.rowsWritten["waypoints"]++
				o.applyMagvarInline(ctx, tx, "waypoints", id, wpt.Position)
				if wpt.HasFrequency {
					o.applyTACANInline(ctx, tx, id, wpt.Type, wpt.Frequency)
				}
			},
			Airway: func(a airway.Row) {
				o.pendingAirwayRows = append(o.pendingAirwayRows, a)
			},
		}

		for _, in := range o.cfg.TextInputs {
			if err := textsource.Read(in.Reader, cb, w, o.log.With("source", in.Name)); err != nil {
				return fmt.Errorf("reading %s: %w", in.Name, err)
			}
		}
		w.Close()

		for identifier, ends := range endsByAirport {
			if err := o.writeRunwaysForAirport(ctx, tx, identifier, airportIDs, airportPositions, ends); err != nil {
				return err
			}
		}
		return nil
	})
}

// loadBinary walks every configured scenery area in ascending layer
// order (lower layers load first, so later layers' same-key rows take
// priority per spec.md §4.12 phase 3: each area's airports carry its
// layer as source_priority, which phaseDedupFn keeps the highest of),
// dispatching each area's top-level tagged records. Only enabled areas
// are walked.
func (o *orchestrator) loadBinary(ctx context.Context) error {
	areas := make([]BinaryArea, 0, len(o.cfg.SceneryAreas))
	for _, a := range o.cfg.SceneryAreas {
		if a.Enabled {
			areas = append(areas, a)
		}
	}
	sort.SliceStable(areas, func(i, j int) bool { return areas[i].Layer < areas[j].Layer })

	return o.store.WithTx(ctx, func(tx *sql.Tx) error {
		resolver := &txFixResolver{ctx: ctx, tx: tx}

		for _, area := range areas {
			if err := o.loadBinaryArea(ctx, tx, area, resolver); err != nil {
				return fmt.Errorf("loading area %s: %w", area.Area.Name, err)
			}
		}
		return nil
	})
}

// loadBinaryArea walks one scenery area's tagged records, inserting rows
// directly. Magnetic variation is applied inline per airport (see
// applyMagvarInline), matching the text adapter's inline derivation
// instead of the relational-only phaseDerivedValuesFn pass. This format
// carries no navaid/waypoint records and no ILS ident per runway end
// (see WalkRunwayEnd), so there is nothing here for an inline
// tacan.Lookup or ils.Compute call to act on.
func (o *orchestrator) loadBinaryArea(ctx context.Context, tx *sql.Tx, area BinaryArea, resolver procedure.FixResolver) error {
	r := binrec.NewReader(area.Data)
	log := o.log.With("area", area.Area.Name)

	var currentAirportIdentifier string
	var currentAirportID int64
	var currentAirportPos geo.Position
	var currentEnds []runway.End

	flushRunways := func() error {
		if currentAirportIdentifier == "" || len(currentEnds) == 0 {
			currentEnds = nil
			return nil
		}
		var endpoints []geo.Position
		for _, pair := range runway.Pairs(currentEnds) {
			geom := runway.ComputeGeometry(currentAirportPos, 0, pair.Primary.TrueBearing)
			if _, err := o.store.InsertRunway(ctx, tx, currentAirportID, pair, geom, ""); err != nil {
				return fmt.Errorf("inserting runway at %s: %w", currentAirportIdentifier, err)
			}
			endpoints = append(endpoints, geom.PrimaryThreshold, geom.SecondaryThreshold)
			o.rowsWritten["runways"]++
		}
		if len(endpoints) > 0 {
			rect := runway.AirportRect(currentAirportPos, endpoints)
			if _, err := tx.ExecContext(ctx,
				`UPDATE airports SET bounds_tl_lon=?, bounds_tl_lat=?, bounds_br_lon=?, bounds_br_lat=? WHERE id=?`,
				rect.TopLeft[0], rect.TopLeft[1], rect.BottomRight[0], rect.BottomRight[1], currentAirportID); err != nil {
				return fmt.Errorf("updating airport bounds for %s: %w", currentAirportIdentifier, err)
			}
		}
		currentEnds = nil
		return nil
	}

	w := procedure.NewWriter(resolver, func(p procedure.Procedure) {
		if _, err := o.store.InsertProcedure(ctx, tx, p); err != nil {
			log.Error("insert procedure failed", "identifier", p.Identifier, "error", err)
			return
		}
		o.rowsWritten["procedures"]++
	})
	defer w.Close()

	frameEnd := r.Len()
	for r.Offset() < frameEnd {
		h, childEnd, err := r.ReadFrameHeader(frameEnd)
		if err != nil {
			return err
		}

		switch h.Tag {
		case scenery.TagAirport:
			if err := flushRunways(); err != nil {
				return err
			}
			hdr, err := scenery.WalkAirportHeader(r)
			if err != nil {
				return err
			}
			pos := geo.NewPosition(hdr.Position.Lon, hdr.Position.Lat, hdr.Position.AltitudeFeet)
			rect := geo.RectAround(pos, 100)
			id, err := o.store.InsertAirport(ctx, tx, hdr.Identifier, area.Area.Name, area.Layer, pos, rect)
			if err != nil {
				return err
			}
			currentAirportIdentifier = hdr.Identifier
			currentAirportID = id
			currentAirportPos = pos
			o.rowsWritten["airports"]++
			o.applyMagvarInline(ctx, tx, "airports", id, pos)

		case scenery.TagRunway:
			end, err := scenery.WalkRunwayEnd(r)
			if err != nil {
				return err
			}
			currentEnds = append(currentEnds, runway.End{
				Ident:       end.Ident,
				TrueBearing: end.TrueBearing,
				DisplacedThresholdFeet: end.DisplacedThresholdFeet,
			})

		case scenery.TagApproach:
			approach, legs, err := scenery.WalkApproach(r, childEnd, area.Area, currentAirportIdentifier, log)
			if err != nil {
				return err
			}
			feedApproachLegs(w, approach, legs)
			o.rowsWritten["approaches"]++

		case scenery.TagCOM, scenery.TagParking:
			// Skipped without decoding: the compiled schema has
			// no com_frequencies/parking tables, so walking these frames
			// only needs to keep the dispatch loop exhaustive.
			log.Debug("skipping unexercised record type", "tag", h.Tag)

		default:
			if area.Area.Legacy {
				log.Warn("unrecognized scenery record tag", "tag", h.Tag)
			} else {
				log.Debug("unrecognized scenery record tag", "tag", h.Tag)
			}
		}

		if err := r.Seek(childEnd); err != nil {
			return err
		}
	}

	return flushRunways()
}

// feedApproachLegs converts one decoded StagingApproach and its legs into
// procedure.InputRow records and feeds them to w. Binary scenery legs
// only carry a decoded fix identifier (no separate region/type column,
// unlike the relational/text adapters), so ByIdentifierRegionType always
// misses and resolution falls to NearestByIdentifier/Synthesize.
func feedApproachLegs(w *procedure.Writer, approach scenery.StagingApproach, legs []scenery.StagingApproachLeg) {
	identifier := fmt.Sprintf("%02d%c%s", approach.RunwayNumber, designatorLetter(approach.RunwayDesignator), approach.Suffix)
	for _, leg := range legs {
		row := procedure.InputRow{
			AirportIdentifier: approach.AirportIdentifier,
			Identifier:        identifier,
			RouteType:         "approach",
			Sequence:          leg.Sequence,
			PathTermination:   leg.PathTermination,
			FixIdentifier:     leg.FixIdentifier,
			FixPosition:       geo.NewPosition(0, 0, 0),
			MagneticCourse:    leg.Course,
			Altitude1:         leg.Altitude1,
			Altitude2:         leg.Altitude2,
		}
		if leg.Kind == scenery.LegMissed {
			row.AltitudeDescription = "missed"
		} else if leg.Kind == scenery.LegTransition {
			row.TransitionIdentifier = approach.Suffix
		}
		w.Add(row)
	}
}

func designatorLetter(b byte) byte {
	switch b {
	case 1:
		return 'L'
	case 2:
		return 'R'
	case 3:
		return 'C'
	default:
		return 0
	}
}

// phasePostLoadIndexesFn implements spec.md §4.12 phase 4: the indexes
// already exist as part of CreateAll's CREATE TABLE statements
// (SQLite creates declared indexes immediately), so this phase's only
// job is to run ANALYZE so the query planner has fresh statistics before
// the heavier derived-value and cross-reference passes run.
func (o *orchestrator) phasePostLoadIndexesFn(ctx context.Context) error {
	return o.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `ANALYZE`)
		return err
	})
}

// phaseDedupFn implements spec.md §4.12 phase 5: collapse duplicate
// airport rows sharing an identifier, keeping the one with the highest
// source_priority. Structurally, this phase can only run before
// phaseCrossReference (enforced by enterPhase's monotonic guard), since
// SPEC_FULL.md §9.1 requires deduplication to settle before any
// cross-reference pass assigns foreign keys against the surviving rows.
func (o *orchestrator) phaseDedupFn(ctx context.Context) error {
	return o.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM airports
			WHERE id NOT IN (
				SELECT id FROM (
					SELECT id, identifier, source_priority,
						ROW_NUMBER() OVER (PARTITION BY identifier ORDER BY source_priority DESC, id ASC) AS rn
					FROM airports
				) WHERE rn = 1
			)`)
		return err
	})
}

// phaseAirwaysFn implements spec.md §4.12 phase 6: resolve every
// buffered airway sequence row (gathered by the relational and text
// loaders; binary areas carry no airway records) into directed segments
// and write them.
func (o *orchestrator) phaseAirwaysFn(ctx context.Context) error {
	sort.SliceStable(o.pendingAirwayRows, func(i, j int) bool {
		a, b := o.pendingAirwayRows[i], o.pendingAirwayRows[j]
		if a.RouteIdentifier != b.RouteIdentifier {
			return a.RouteIdentifier < b.RouteIdentifier
		}
		return a.Sequence < b.Sequence
	})
	segments := airway.Resolve(o.pendingAirwayRows, o.cfg.MaxSegmentNM)

	return o.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, seg := range segments {
			if _, err := o.store.InsertAirwaySegment(ctx, tx, seg); err != nil {
				return fmt.Errorf("inserting airway segment %s/%d/%d: %w", seg.Name, seg.Fragment, seg.Sequence, err)
			}
			o.rowsWritten["airway_segments"]++
		}
		return nil
	})
}

// phaseDerivedValuesFn implements spec.md §4.12 phase 7: magnetic
// variation, TACAN channel, ILS feather geometry, and (deferred from
// loadRelational) procedure emission. Gated to the relational source
// only (see the phase table in Run) because the text and binary
// adapters apply the same magvar/TACAN derivation inline during their
// own load step instead (see applyMagvarInline/applyTACANInline,
// loadText, loadBinaryArea) -- the relational cursor's raw streaming
// reads can't resolve the fully-loaded waypoints table a procedure leg
// needs, so its own derived-value work is deferred to this dedicated
// phase rather than done inline.
func (o *orchestrator) phaseDerivedValuesFn(ctx context.Context) error {
	if o.cfg.MagvarGrid != nil {
		grid := o.cfg.MagvarGrid
		for _, table := range []string{"airports", "waypoints"} {
			_, err := o.store.ApplyPositionalTransform(ctx, table, "id", "lon", "lat", "magnetic_variation",
				func(row store.PositionalRow) (float64, bool) {
					v, err := grid.Lookup(geo.NewPosition(row.Lon, row.Lat, 0))
					if err != nil {
						return 0, false
					}
					return v, true
				})
			if err != nil {
				return fmt.Errorf("applying magnetic variation to %s: %w", table, err)
			}
		}
	}

	if err := o.applyTACANChannels(ctx); err != nil {
		return err
	}

	if err := o.applyILSGeometry(ctx); err != nil {
		return err
	}

	return o.store.WithTx(ctx, func(tx *sql.Tx) error {
		resolver := &txFixResolver{ctx: ctx, tx: tx}
		w := procedure.NewWriter(resolver, func(p procedure.Procedure) {
			if _, err := o.store.InsertProcedure(ctx, tx, p); err != nil {
				o.log.Error("insert procedure failed", "airport", p.AirportIdentifier, "identifier", p.Identifier, "error", err)
				return
			}
			o.rowsWritten["procedures"]++
		})
		for _, row := range o.pendingProcedureRows {
			w.Add(row)
		}
		w.Close()
		return nil
	})
}

// applyTACANChannels scans every waypoint whose type qualifies (per
// internal/tacan.Lookup) and writes its resolved channel designation.
func (o *orchestrator) applyTACANChannels(ctx context.Context) error {
	return o.store.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id, type, frequency FROM waypoints WHERE frequency IS NOT NULL`)
		if err != nil {
			return fmt.Errorf("selecting waypoints for TACAN pass: %w", err)
		}
		type target struct {
			id        int64
			typeCode  string
			frequency float64
		}
		var targets []target
		for rows.Next() {
			var t target
			if err := rows.Scan(&t.id, &t.typeCode, &t.frequency); err != nil {
				_ = rows.Close()
				return err
			}
			targets = append(targets, t)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		_ = rows.Close()

		for _, t := range targets {
			ch, ok := tacan.Lookup(t.typeCode, decimal.NewFromFloat(t.frequency))
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `UPDATE waypoints SET tacan_channel = ? WHERE id = ?`, ch.String(), t.id); err != nil {
				return fmt.Errorf("updating tacan channel for waypoint %d: %w", t.id, err)
			}
		}
		return nil
	})
}

// applyILSGeometry computes and writes the feather polygon for every ILS
// row already linked to a waypoint.
func (o *orchestrator) applyILSGeometry(ctx context.Context) error {
	return o.store.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT ils.id, w.lon, w.lat, ils.true_heading
			FROM ils JOIN waypoints w ON w.id = ils.waypoint_id`)
		if err != nil {
			return fmt.Errorf("selecting ILS rows: %w", err)
		}
		type target struct {
			id          int64
			lon, lat    float64
			trueHeading float64
		}
		var targets []target
		for rows.Next() {
			var t target
			if err := rows.Scan(&t.id, &t.lon, &t.lat, &t.trueHeading); err != nil {
				_ = rows.Close()
				return err
			}
			targets = append(targets, t)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		_ = rows.Close()

		const defaultWidthDeg = 4.5
		const defaultLengthNM = 18.0
		for _, t := range targets {
			feather := ils.Compute(ils.Params{
				Origin:      geo.NewPosition(t.lon, t.lat, 0),
				TrueHeading: t.trueHeading,
				WidthDeg:    defaultWidthDeg,
				LengthNM:    defaultLengthNM,
			})
			if _, err := tx.ExecContext(ctx, `
				UPDATE ils SET
					feather_origin_lon = ?, feather_origin_lat = ?,
					feather_left_lon = ?, feather_left_lat = ?,
					feather_right_lon = ?, feather_right_lat = ?,
					feather_mid_lon = ?, feather_mid_lat = ?
				WHERE id = ?`,
				feather.Origin.Lon(), feather.Origin.Lat(),
				feather.LeftCorner.Lon(), feather.LeftCorner.Lat(),
				feather.RightCorner.Lon(), feather.RightCorner.Lat(),
				feather.Midpoint.Lon(), feather.Midpoint.Lat(),
				t.id); err != nil {
				return fmt.Errorf("updating ILS feather for %d: %w", t.id, err)
			}
		}
		return nil
	})
}

// phaseCrossReferenceFn implements spec.md §4.12 phase 8: link navaid
// and airport foreign keys, assign each waypoint's region from its
// nearest navaid sharing an identifier (sorted by (identifier, id) per
// SPEC_FULL.md §9.1 for deterministic output across repeated runs), and
// roll up airport-level ILS/runway/approach counts.
func (o *orchestrator) phaseCrossReferenceFn(ctx context.Context) error {
	return o.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE waypoints SET airport_id = (
				SELECT a.id FROM airports a WHERE a.identifier = waypoints.identifier LIMIT 1
			)
			WHERE airport_id IS NULL AND EXISTS (
				SELECT 1 FROM airports a WHERE a.identifier = waypoints.identifier
			)`); err != nil {
			return fmt.Errorf("linking waypoints to airports: %w", err)
		}

		if err := o.assignNearestNavaidRegions(ctx, tx); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE runway_ends SET ils_ident = (
				SELECT w.identifier FROM waypoints w WHERE w.type = 'ILS' AND w.identifier = runway_ends.ils_ident LIMIT 1
			)
			WHERE ils_ident != ''`); err != nil {
			return fmt.Errorf("confirming ILS idents on runway ends: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE ils SET runway_end_id = (
				SELECT re.id FROM runway_ends re WHERE re.ils_ident = (
					SELECT w.identifier FROM waypoints w WHERE w.id = ils.waypoint_id
				) LIMIT 1
			)
			WHERE runway_end_id IS NULL`); err != nil {
			return fmt.Errorf("linking ILS to runway ends: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE airports SET
				runway_count = (SELECT COUNT(*) FROM runways r WHERE r.airport_id = airports.id),
				ils_count = (SELECT COUNT(*) FROM ils i JOIN runway_ends re ON re.id = i.runway_end_id
					JOIN runways r ON r.id = re.runway_id WHERE r.airport_id = airports.id),
				approach_count = (SELECT COUNT(*) FROM procedures p WHERE p.airport_id = airports.id AND p.route_type = 'approach')
			`); err != nil {
			return fmt.Errorf("rolling up airport counts: %w", err)
		}

		return nil
	})
}

// assignNearestNavaidRegions resolves each blank-region waypoint's
// region from the nearest waypoint sharing its identifier that does
// carry a region, iterating candidates ordered by (identifier, id) so
// the result is identical across repeated runs over the same input
// (spec.md's idempotence property, SPEC_FULL.md §9.1).
func (o *orchestrator) assignNearestNavaidRegions(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, identifier, lon, lat FROM waypoints WHERE region = '' ORDER BY identifier, id`)
	if err != nil {
		return fmt.Errorf("selecting regionless waypoints: %w", err)
	}
	type blank struct {
		id         int64
		identifier string
		lon, lat   float64
	}
	var blanks []blank
	for rows.Next() {
		var b blank
		if err := rows.Scan(&b.id, &b.identifier, &b.lon, &b.lat); err != nil {
			_ = rows.Close()
			return err
		}
		blanks = append(blanks, b)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_ = rows.Close()

	for _, b := range blanks {
		candRows, err := tx.QueryContext(ctx, `
			SELECT region, lon, lat FROM waypoints
			WHERE identifier = ? AND region != '' ORDER BY identifier, id`, b.identifier)
		if err != nil {
			return fmt.Errorf("selecting region candidates for %s: %w", b.identifier, err)
		}
		var bestRegion string
		bestDist := math.MaxFloat64
		found := false
		for candRows.Next() {
			var region string
			var lon, lat float64
			if err := candRows.Scan(&region, &lon, &lat); err != nil {
				_ = candRows.Close()
				return err
			}
			d := geo.DistanceNM(geo.NewPosition(b.lon, b.lat, 0), geo.NewPosition(lon, lat, 0))
			if !found || d < bestDist {
				bestRegion, bestDist, found = region, d, true
			}
		}
		_ = candRows.Close()
		if !found {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE waypoints SET region = ? WHERE id = ?`, bestRegion, b.id); err != nil {
			return fmt.Errorf("assigning region to waypoint %d: %w", b.id, err)
		}
	}
	return nil
}

// phaseRoutingTablesFn implements spec.md §4.12 phase 9 (optional):
// populate route_nodes from every VOR/NDB/VORDME/VORTAC waypoint, and
// route_edges for each airway segment whose two endpoint identifiers both
// match such a node; other segment endpoints get no node and their
// segments no edge.
func (o *orchestrator) phaseRoutingTablesFn(ctx context.Context) error {
	return o.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO route_nodes (kind, reference_id, lon, lat)
			SELECT 'navaid', id, lon, lat FROM waypoints WHERE type IN ('VOR', 'NDB', 'VORDME', 'VORTAC')`); err != nil {
			return fmt.Errorf("populating navaid route nodes: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT from_waypoint, to_waypoint FROM airway_segments`)
		if err != nil {
			return fmt.Errorf("selecting airway segments for routing: %w", err)
		}
		type edge struct{ from, to string }
		var edges []edge
		for rows.Next() {
			var e edge
			if err := rows.Scan(&e.from, &e.to); err != nil {
				_ = rows.Close()
				return err
			}
			edges = append(edges, e)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		_ = rows.Close()

		for _, e := range edges {
			var fromID, toID int64
			var fromLon, fromLat, toLon, toLat float64
			if err := tx.QueryRowContext(ctx, `
				SELECT rn.id, w.lon, w.lat FROM route_nodes rn JOIN waypoints w ON w.id = rn.reference_id
				WHERE w.identifier = ? LIMIT 1`, e.from).Scan(&fromID, &fromLon, &fromLat); err != nil {
				continue
			}
			if err := tx.QueryRowContext(ctx, `
				SELECT rn.id, w.lon, w.lat FROM route_nodes rn JOIN waypoints w ON w.id = rn.reference_id
				WHERE w.identifier = ? LIMIT 1`, e.to).Scan(&toID, &toLon, &toLat); err != nil {
				continue
			}
			dist := geo.DistanceNM(geo.NewPosition(fromLon, fromLat, 0), geo.NewPosition(toLon, toLat, 0))
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO route_edges (from_node_id, to_node_id, distance_nm) VALUES (?, ?, ?)`,
				fromID, toID, dist); err != nil {
				return fmt.Errorf("inserting route edge %s->%s: %w", e.from, e.to, err)
			}
		}
		return nil
	})
}

// phaseFinalIndexesFn implements spec.md §4.12 phase 10: a final ANALYZE
// now that every table (including the optional routing tables) is
// populated.
func (o *orchestrator) phaseFinalIndexesFn(ctx context.Context) error {
	return o.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `ANALYZE`)
		return err
	})
}

// phaseValidationFn implements spec.md §4.12 phase 11 (optional): basic
// referential sanity checks, then VACUUM to reclaim the space the
// preceding DROP/CREATE cycle and dedup pass freed.
func (o *orchestrator) phaseValidationFn(ctx context.Context) error {
	var orphanLegs int
	if err := o.store.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM procedure_legs pl
		LEFT JOIN procedures p ON p.id = pl.procedure_id
		WHERE p.id IS NULL`).Scan(&orphanLegs); err != nil {
		return fmt.Errorf("validating procedure legs: %w", err)
	}
	if orphanLegs > 0 {
		return fmt.Errorf("validation failed: %d orphaned procedure legs", orphanLegs)
	}

	if _, err := o.store.DB().ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuuming output database: %w", err)
	}
	return nil
}
