// Package relsource reads a sibling relational source database (airports,
// runways, airways, and procedure tables) as streaming cursors, per
// spec.md §4.3. Each ingest function consumes rows in canonical order and
// calls back into the shared pure domain packages (internal/airway,
// internal/runway, internal/procedure) rather than building its own
// copies of their logic.
package relsource

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"navdbcompiler/internal/airway"
	"navdbcompiler/internal/geo"
	"navdbcompiler/internal/procedure"
	"navdbcompiler/internal/runway"
)

// Config holds the connection string for the sibling source database.
type Config struct {
	ConnString string
}

// Open opens a pooled connection to the source database.
func Open(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("relsource: open: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("relsource: ping: %w", err)
	}
	return pool, nil
}

// defaultFuelAvailable is injected for tbl_airports rows because the
// source table carries no fuel-availability column; a later derived
// pass overwrites it once real data is known.
const defaultFuelAvailable = true

// AirportRow is one row read from tbl_airports, with nominal defaults
// injected for columns the source table lacks.
type AirportRow struct {
	Identifier     string
	Region         string
	SourcePriority int
	Position       geo.Position
	FuelAvailable  bool
}

// NewAirportRow builds an AirportRow from scanned column values,
// injecting the fuel-availability default. Kept separate from the
// scanning code so the mapping itself is testable without a live
// connection.
func NewAirportRow(identifier, region string, sourcePriority int, lon, lat, altitudeFeet float64) AirportRow {
	return AirportRow{
		Identifier:     identifier,
		Region:         region,
		SourcePriority: sourcePriority,
		Position:       geo.NewPosition(lon, lat, altitudeFeet),
		FuelAvailable:  defaultFuelAvailable,
	}
}

// StreamAirports walks tbl_airports in identifier order, calling emit for
// each row as it is scanned rather than materializing the full table.
func StreamAirports(ctx context.Context, pool *pgxpool.Pool, emit func(AirportRow) error) error {
	rows, err := pool.Query(ctx, `
		SELECT identifier, region, source_priority, lon, lat, altitude_feet
		FROM tbl_airports
		ORDER BY identifier`)
	if err != nil {
		return fmt.Errorf("relsource: query tbl_airports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var identifier, region string
		var sourcePriority int
		var lon, lat, alt float64
		if err := rows.Scan(&identifier, &region, &sourcePriority, &lon, &lat, &alt); err != nil {
			return fmt.Errorf("relsource: scan tbl_airports row: %w", err)
		}
		if err := emit(NewAirportRow(identifier, region, sourcePriority, lon, lat, alt)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// RunwayEndRow pairs one runway.End with the airport it belongs to, as
// read from tbl_runways (one row per physical end; internal/runway.Pairs
// does the opposite-end matching once all of one airport's ends are in
// hand).
type RunwayEndRow struct {
	AirportIdentifier string
	End               runway.End
}

// StreamRunwayEnds walks tbl_runways in (airport identifier, end
// identifier) order.
func StreamRunwayEnds(ctx context.Context, pool *pgxpool.Pool, emit func(RunwayEndRow) error) error {
	rows, err := pool.Query(ctx, `
		SELECT airport_identifier, ident, magnetic_bearing, true_bearing,
			displaced_threshold_feet, ils_ident
		FROM tbl_runways
		ORDER BY airport_identifier, ident`)
	if err != nil {
		return fmt.Errorf("relsource: query tbl_runways: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row RunwayEndRow
		var ilsIdent *string
		if err := rows.Scan(&row.AirportIdentifier, &row.End.Ident, &row.End.MagneticBearing,
			&row.End.TrueBearing, &row.End.DisplacedThresholdFeet, &ilsIdent); err != nil {
			return fmt.Errorf("relsource: scan tbl_runways row: %w", err)
		}
		if ilsIdent != nil {
			row.End.ILSIdent = *ilsIdent
		}
		if err := emit(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// NewAirwayRow builds an airway.Row from scanned column values.
func NewAirwayRow(routeIdentifier string, sequence int, waypointDescriptionCode, waypointID, flightLevel, directionRestriction string, altitudeMin, altitudeMax, lon, lat float64) airway.Row {
	return airway.Row{
		RouteIdentifier:         routeIdentifier,
		Sequence:                sequence,
		WaypointDescriptionCode: waypointDescriptionCode,
		WaypointID:              waypointID,
		FlightLevel:             flightLevel,
		DirectionRestriction:    directionRestriction,
		AltitudeMin:             altitudeMin,
		AltitudeMax:             altitudeMax,
		Position:                geo.NewPosition(lon, lat, 0),
	}
}

// StreamAirwayRows walks tbl_airways in (route identifier, sequence)
// order, the ordering internal/airway.Resolve requires of its caller.
func StreamAirwayRows(ctx context.Context, pool *pgxpool.Pool, emit func(airway.Row) error) error {
	rows, err := pool.Query(ctx, `
		SELECT route_identifier, sequence, waypoint_description_code, waypoint_id,
			flight_level, direction_restriction, altitude_min, altitude_max, lon, lat
		FROM tbl_airways
		ORDER BY route_identifier, sequence`)
	if err != nil {
		return fmt.Errorf("relsource: query tbl_airways: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var routeIdentifier, waypointDescriptionCode, waypointID, flightLevel, directionRestriction string
		var sequence int
		var altitudeMin, altitudeMax, lon, lat float64
		if err := rows.Scan(&routeIdentifier, &sequence, &waypointDescriptionCode, &waypointID,
			&flightLevel, &directionRestriction, &altitudeMin, &altitudeMax, &lon, &lat); err != nil {
			return fmt.Errorf("relsource: scan tbl_airways row: %w", err)
		}
		if err := emit(NewAirwayRow(routeIdentifier, sequence, waypointDescriptionCode, waypointID,
			flightLevel, directionRestriction, altitudeMin, altitudeMax, lon, lat)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ProcedureSource identifies one source table of procedure rows and the
// route type to stamp on every row read from it.
type ProcedureSource struct {
	Table     string
	RouteType string
}

// Source tables spec.md §4.3 names for SID/STAR/approach procedures.
var (
	SourceApproaches = ProcedureSource{Table: "tbl_iaps", RouteType: "approach"}
	SourceSIDs       = ProcedureSource{Table: "tbl_sids", RouteType: "sid"}
	SourceSTARs      = ProcedureSource{Table: "tbl_stars", RouteType: "star"}
)

// recommandedNavaidColumn preserves the source schema's misspelling
// verbatim (see SPEC_FULL.md §9.1's Open Question resolution); only this
// layer's SQL text and scanning code ever spell it this way. Everywhere
// else in the repository the field is RecommendedNavaid*.
const recommandedNavaidColumn = "recommanded_navaid"

// NewProcedureInputRow builds a procedure.InputRow from scanned column
// values. The source's dual-purpose distance/holding-time column is
// carried through unchanged; the holding-vs-distance interpretation of
// spec.md §4.3 is made later by procedure.Writer, via isHolding, when it
// reads RouteDistanceHoldingDistanceTime.
func NewProcedureInputRow(routeType, airportIdentifier, identifier, transitionIdentifier string, sequence int,
	pathTermination, turnDirection string,
	fixIdentifier, fixRegion, fixType string, fixLon, fixLat float64,
	recommendedNavaidIdentifier string, navaidLon, navaidLat float64,
	theta, rho, magneticCourse float64,
	altitudeDescription string, altitude1, altitude2, transitionAltitude float64,
	speedLimitDescription string, speedLimit float64,
	routeDistanceHoldingDistanceTime float64,
) procedure.InputRow {
	return procedure.InputRow{
		AirportIdentifier:                airportIdentifier,
		Identifier:                       identifier,
		RouteType:                        routeType,
		TransitionIdentifier:             transitionIdentifier,
		Sequence:                         sequence,
		PathTermination:                  pathTermination,
		TurnDirection:                    turnDirection,
		FixIdentifier:                    fixIdentifier,
		FixRegion:                        fixRegion,
		FixType:                          fixType,
		FixPosition:                      geo.NewPosition(fixLon, fixLat, 0),
		RecommendedNavaidIdentifier:      recommendedNavaidIdentifier,
		RecommendedNavaidPosition:        geo.NewPosition(navaidLon, navaidLat, 0),
		Theta:                            theta,
		Rho:                              rho,
		MagneticCourse:                   magneticCourse,
		AltitudeDescription:              altitudeDescription,
		Altitude1:                        altitude1,
		Altitude2:                        altitude2,
		TransitionAltitude:               transitionAltitude,
		SpeedLimitDescription:            speedLimitDescription,
		SpeedLimit:                       speedLimit,
		RouteDistanceHoldingDistanceTime: routeDistanceHoldingDistanceTime,
	}
}

// StreamProcedures walks one procedure source table in (airport
// identifier, procedure identifier, transition identifier, sequence)
// order, calling emit for each row as it is scanned. Per-airport boundary
// detection (spec.md §4.3) lives inside procedure.Writer, not here --
// this cursor's only job is to deliver rows in that canonical order;
// callers that want immediate boundary detection can feed emit straight
// into a procedure.Writer's Add method, and callers that need to defer
// resolution (e.g. until derived values are ready) can buffer the rows
// instead.
func StreamProcedures(ctx context.Context, pool *pgxpool.Pool, src ProcedureSource, emit func(procedure.InputRow) error) error {
	query := fmt.Sprintf(`
		SELECT airport_identifier, procedure_identifier, transition_identifier, sequence,
			path_termination, turn_direction,
			fix_identifier, fix_region, fix_type, fix_lon, fix_lat,
			%s, recommanded_navaid_lon, recommanded_navaid_lat,
			theta, rho, magnetic_course,
			altitude_description, altitude1, altitude2, transition_altitude,
			speed_limit_description, speed_limit,
			route_distance_holding_distance_time
		FROM %s
		ORDER BY airport_identifier, procedure_identifier, transition_identifier, sequence`,
		recommandedNavaidColumn, src.Table)

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("relsource: query %s: %w", src.Table, err)
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanProcedureRow(rows, src.RouteType)
		if err != nil {
			return fmt.Errorf("relsource: scan %s row: %w", src.Table, err)
		}
		if err := emit(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanProcedureRow(rows pgx.Rows, routeType string) (procedure.InputRow, error) {
	var airportIdentifier, identifier, transitionIdentifier string
	var sequence int
	var pathTermination, turnDirection string
	var fixIdentifier, fixRegion, fixType string
	var fixLon, fixLat float64
	var recommendedNavaid string
	var navLon, navLat float64
	var theta, rho, magneticCourse float64
	var altitudeDescription string
	var altitude1, altitude2, transitionAltitude float64
	var speedLimitDescription string
	var speedLimit float64
	var routeDistanceHoldingDistanceTime float64

	if err := rows.Scan(
		&airportIdentifier, &identifier, &transitionIdentifier, &sequence,
		&pathTermination, &turnDirection,
		&fixIdentifier, &fixRegion, &fixType, &fixLon, &fixLat,
		&recommendedNavaid, &navLon, &navLat,
		&theta, &rho, &magneticCourse,
		&altitudeDescription, &altitude1, &altitude2, &transitionAltitude,
		&speedLimitDescription, &speedLimit,
		&routeDistanceHoldingDistanceTime,
	); err != nil {
		return procedure.InputRow{}, err
	}

	return NewProcedureInputRow(routeType, airportIdentifier, identifier, transitionIdentifier, sequence,
		pathTermination, turnDirection,
		fixIdentifier, fixRegion, fixType, fixLon, fixLat,
		recommendedNavaid, navLon, navLat,
		theta, rho, magneticCourse,
		altitudeDescription, altitude1, altitude2, transitionAltitude,
		speedLimitDescription, speedLimit,
		routeDistanceHoldingDistanceTime), nil
}
