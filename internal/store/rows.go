package store

import (
	"context"
	"database/sql"
	"fmt"

	"navdbcompiler/internal/airway"
	"navdbcompiler/internal/geo"
	"navdbcompiler/internal/procedure"
	"navdbcompiler/internal/runway"
)

// InsertAirport writes one airport row and returns its assigned id.
func (s *Store) InsertAirport(ctx context.Context, tx *sql.Tx, identifier, region string, sourcePriority int, position geo.Position, rect geo.Rect) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO airports (identifier, region, source_priority, lon, lat, altitude_feet,
			bounds_tl_lon, bounds_tl_lat, bounds_br_lon, bounds_br_lat)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		identifier, region, sourcePriority, position.Lon(), position.Lat(), position.Altitude,
		rect.TopLeft[0], rect.TopLeft[1], rect.BottomRight[0], rect.BottomRight[1])
	if err != nil {
		return 0, fmt.Errorf("store: insert airport %s: %w", identifier, err)
	}
	return res.LastInsertId()
}

// InsertRunway writes a runway and its two ends (from a runway.Pair and
// derived runway.Geometry), returning the runway id.
func (s *Store) InsertRunway(ctx context.Context, tx *sql.Tx, airportID int64, pair runway.Pair, geom runway.Geometry, surface string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO runways (airport_id, length_feet, true_heading, center_lon, center_lat, surface, altitude_feet)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		airportID, geom.LengthFeet, pair.Primary.TrueBearing, geom.Center.Lon(), geom.Center.Lat(), surface, geom.Center.Altitude)
	if err != nil {
		return 0, fmt.Errorf("store: insert runway: %w", err)
	}
	runwayID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	primaryID, err := s.insertRunwayEnd(ctx, tx, runwayID, pair.Primary, geom.PrimaryThreshold)
	if err != nil {
		return 0, err
	}
	secondaryID, err := s.insertRunwayEnd(ctx, tx, runwayID, pair.Secondary, geom.SecondaryThreshold)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE runways SET primary_end_id = ?, secondary_end_id = ? WHERE id = ?`,
		primaryID, secondaryID, runwayID); err != nil {
		return 0, fmt.Errorf("store: linking runway ends: %w", err)
	}
	return runwayID, nil
}

func (s *Store) insertRunwayEnd(ctx context.Context, tx *sql.Tx, runwayID int64, end runway.End, threshold geo.Position) (int64, error) {
	closed := 0
	if end.Closed {
		closed = 1
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO runway_ends (runway_id, designator, threshold_lon, threshold_lat, true_heading,
			displaced_threshold_feet, ils_ident, is_closed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runwayID, end.Ident, threshold.Lon(), threshold.Lat(), end.TrueBearing,
		end.DisplacedThresholdFeet, end.ILSIdent, closed)
	if err != nil {
		return 0, fmt.Errorf("store: insert runway end %s: %w", end.Ident, err)
	}
	return res.LastInsertId()
}

// InsertWaypoint writes one waypoint/navaid row (the shared table backing
// Waypoint, VOR, NDB, Marker, and ILS station records).
func (s *Store) InsertWaypoint(ctx context.Context, tx *sql.Tx, identifier, region, waypointType string, position geo.Position, frequency sql.NullFloat64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO waypoints (identifier, region, type, lon, lat, frequency)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier, region, type) DO UPDATE SET lon = excluded.lon, lat = excluded.lat`,
		identifier, region, waypointType, position.Lon(), position.Lat(), frequency)
	if err != nil {
		return 0, fmt.Errorf("store: insert waypoint %s: %w", identifier, err)
	}
	_ = res
	// last_insert_rowid() is unreliable after an upsert that took the
	// UPDATE branch, so the id is always re-resolved explicitly.
	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM waypoints WHERE identifier = ? AND region = ? AND type = ?`,
		identifier, region, waypointType).Scan(&id)
	return id, err
}

// InsertAirwaySegment writes one resolved airway.Segment row.
func (s *Store) InsertAirwaySegment(ctx context.Context, tx *sql.Tx, seg airway.Segment) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO airway_segments (name, fragment, sequence, route_type, from_waypoint, to_waypoint,
			direction, minimum_altitude, maximum_altitude, bounds_tl_lon, bounds_tl_lat, bounds_br_lon, bounds_br_lat)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seg.Name, seg.Fragment, seg.Sequence, routeTypeString(seg.Type), seg.FromWaypoint, seg.ToWaypoint,
		directionString(seg.Direction), seg.AltitudeMin, seg.AltitudeMax,
		seg.Bounds.TopLeft[0], seg.Bounds.TopLeft[1], seg.Bounds.BottomRight[0], seg.Bounds.BottomRight[1])
	if err != nil {
		return 0, fmt.Errorf("store: insert airway segment %s/%d/%d: %w", seg.Name, seg.Fragment, seg.Sequence, err)
	}
	return res.LastInsertId()
}

func routeTypeString(t airway.RouteType) string {
	switch t {
	case airway.RouteVictor:
		return "victor"
	case airway.RouteJet:
		return "jet"
	default:
		return "both"
	}
}

func directionString(d airway.Direction) string {
	switch d {
	case airway.DirectionForward:
		return "forward"
	case airway.DirectionBackward:
		return "backward"
	default:
		return "none"
	}
}

// InsertProcedure writes a flushed procedure.Procedure and its legs,
// resolving airportID against the airports table by identifier (the
// procedure writer itself only knows the string identifier; spec.md
// invariant 4 requires that airport to already exist at finalization).
func (s *Store) InsertProcedure(ctx context.Context, tx *sql.Tx, p procedure.Procedure) (int64, error) {
	var airportID sql.NullInt64
	row := tx.QueryRowContext(ctx, `SELECT id FROM airports WHERE identifier = ? LIMIT 1`, p.AirportIdentifier)
	var id int64
	if err := row.Scan(&id); err == nil {
		airportID = sql.NullInt64{Int64: id, Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO procedures (airport_id, airport_identifier, route_type, identifier, transition_identifier)
		VALUES (?, ?, ?, ?, ?)`,
		airportID, p.AirportIdentifier, p.RouteType, p.Identifier, p.TransitionIdentifier)
	if err != nil {
		return 0, fmt.Errorf("store: insert procedure %s/%s: %w", p.AirportIdentifier, p.Identifier, err)
	}
	procedureID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, leg := range p.Legs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO procedure_legs (procedure_id, sequence, path_termination, turn_direction,
				fix_identifier, fix_lon, fix_lat, recommended_navaid, altitude_description,
				altitude1, altitude2, transition_altitude, speed_limit_description, speed_limit,
				distance_nm, holding_minutes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			procedureID, leg.Sequence, leg.PathTermination, leg.TurnDirection,
			leg.FixIdentifier, leg.FixPosition.Lon(), leg.FixPosition.Lat(), leg.RecommendedNavaid,
			leg.AltitudeDescription, leg.Altitude1, leg.Altitude2, leg.TransitionAltitude,
			leg.SpeedLimitDescription, leg.SpeedLimit, leg.DistanceNM, leg.HoldingMinutes); err != nil {
			return 0, fmt.Errorf("store: insert procedure leg %d of %s: %w", leg.Sequence, p.Identifier, err)
		}
	}

	return procedureID, nil
}
