package store

import (
	"context"
	"database/sql"
	"fmt"
)

// metaSchema, boundarySchema, navSchema, airportSchema and routeSchema
// split the output schema along the same lines as spec.md §4.12's phase
// 1 description (boundary, nav, airport, route, meta). Grounded on the
// teacher's internal/storage/postgres.go CreateSchema: one large
// IF-NOT-EXISTS SQL string executed per logical group, indexes declared
// alongside their table.
const metaSchema = `
CREATE TABLE IF NOT EXISTS scenery_areas (
	id              INTEGER PRIMARY KEY,
	name            TEXT NOT NULL,
	path            TEXT NOT NULL,
	layer           INTEGER NOT NULL DEFAULT 0,
	area_number     INTEGER NOT NULL DEFAULT 0,
	enabled         INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS file_descriptors (
	id              INTEGER PRIMARY KEY,
	scenery_area_id INTEGER NOT NULL REFERENCES scenery_areas(id),
	path            TEXT NOT NULL,
	schema_version  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS magnetic_model (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	min_lat         REAL NOT NULL,
	max_lat         REAL NOT NULL,
	min_lon         REAL NOT NULL,
	max_lon         REAL NOT NULL,
	step            REAL NOT NULL
);
`

const boundarySchema = `
CREATE TABLE IF NOT EXISTS airspaces (
	id                  INTEGER PRIMARY KEY,
	type                TEXT NOT NULL,
	name                TEXT NOT NULL,
	altitude_floor_feet REAL,
	altitude_ceiling_feet REAL,
	com_frequency       REAL,
	polygon_wkt         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_airspaces_type ON airspaces(type);
`

const navSchema = `
CREATE TABLE IF NOT EXISTS waypoints (
	id              INTEGER PRIMARY KEY,
	identifier      TEXT NOT NULL,
	region          TEXT NOT NULL DEFAULT '',
	type            TEXT NOT NULL,
	lon             REAL NOT NULL,
	lat             REAL NOT NULL,
	frequency       REAL,
	tacan_channel   TEXT,
	magnetic_variation REAL,
	airport_id      INTEGER REFERENCES airports(id),
	UNIQUE(identifier, region, type)
);
CREATE INDEX IF NOT EXISTS idx_waypoints_ident ON waypoints(identifier);
CREATE INDEX IF NOT EXISTS idx_waypoints_airport ON waypoints(airport_id);

CREATE TABLE IF NOT EXISTS ils (
	id                  INTEGER PRIMARY KEY,
	waypoint_id         INTEGER NOT NULL REFERENCES waypoints(id),
	runway_end_id       INTEGER REFERENCES runway_ends(id),
	true_heading        REAL NOT NULL,
	width_deg           REAL NOT NULL,
	feather_origin_lon  REAL NOT NULL,
	feather_origin_lat  REAL NOT NULL,
	feather_left_lon    REAL NOT NULL,
	feather_left_lat    REAL NOT NULL,
	feather_right_lon   REAL NOT NULL,
	feather_right_lat   REAL NOT NULL,
	feather_mid_lon     REAL NOT NULL,
	feather_mid_lat     REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS airway_segments (
	id              INTEGER PRIMARY KEY,
	name            TEXT NOT NULL,
	fragment        INTEGER NOT NULL,
	sequence        INTEGER NOT NULL,
	route_type      TEXT NOT NULL,
	from_waypoint   TEXT NOT NULL,
	to_waypoint     TEXT NOT NULL,
	direction       TEXT NOT NULL DEFAULT 'none',
	minimum_altitude REAL,
	maximum_altitude REAL,
	bounds_tl_lon   REAL NOT NULL,
	bounds_tl_lat   REAL NOT NULL,
	bounds_br_lon   REAL NOT NULL,
	bounds_br_lat   REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_airway_name_fragment ON airway_segments(name, fragment, sequence);
`

const airportSchema = `
CREATE TABLE IF NOT EXISTS airports (
	id              INTEGER PRIMARY KEY,
	identifier      TEXT NOT NULL,
	region          TEXT NOT NULL DEFAULT '',
	source_priority INTEGER NOT NULL DEFAULT 0,
	lon             REAL NOT NULL,
	lat             REAL NOT NULL,
	altitude_feet   REAL NOT NULL DEFAULT 0,
	bounds_tl_lon   REAL,
	bounds_tl_lat   REAL,
	bounds_br_lon   REAL,
	bounds_br_lat   REAL,
	country         TEXT NOT NULL DEFAULT '',
	magnetic_variation REAL,
	runway_count    INTEGER NOT NULL DEFAULT 0,
	ils_count       INTEGER NOT NULL DEFAULT 0,
	approach_count  INTEGER NOT NULL DEFAULT 0,
	rating          INTEGER NOT NULL DEFAULT 0,
	is_military     INTEGER NOT NULL DEFAULT 0,
	is_closed       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_airports_identifier ON airports(identifier);

CREATE TABLE IF NOT EXISTS runways (
	id                  INTEGER PRIMARY KEY,
	airport_id          INTEGER NOT NULL REFERENCES airports(id),
	primary_end_id      INTEGER,
	secondary_end_id    INTEGER,
	length_feet         REAL NOT NULL,
	width_feet          REAL,
	true_heading        REAL NOT NULL,
	center_lon          REAL NOT NULL,
	center_lat          REAL NOT NULL,
	surface             TEXT NOT NULL DEFAULT '',
	altitude_feet       REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runways_airport ON runways(airport_id);

CREATE TABLE IF NOT EXISTS runway_ends (
	id                      INTEGER PRIMARY KEY,
	runway_id               INTEGER REFERENCES runways(id),
	designator              TEXT NOT NULL,
	threshold_lon           REAL NOT NULL,
	threshold_lat           REAL NOT NULL,
	true_heading            REAL NOT NULL,
	displaced_threshold_feet REAL NOT NULL DEFAULT 0,
	ils_ident               TEXT NOT NULL DEFAULT '',
	is_closed               INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runway_ends_runway ON runway_ends(runway_id);

CREATE TABLE IF NOT EXISTS procedures (
	id                      INTEGER PRIMARY KEY,
	airport_id              INTEGER REFERENCES airports(id),
	airport_identifier      TEXT NOT NULL,
	route_type              TEXT NOT NULL,
	identifier              TEXT NOT NULL,
	transition_identifier   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_procedures_airport ON procedures(airport_id);

CREATE TABLE IF NOT EXISTS procedure_legs (
	id                      INTEGER PRIMARY KEY,
	procedure_id            INTEGER NOT NULL REFERENCES procedures(id),
	sequence                INTEGER NOT NULL,
	path_termination        TEXT NOT NULL,
	turn_direction          TEXT NOT NULL DEFAULT '',
	fix_identifier          TEXT NOT NULL DEFAULT '',
	fix_id                  INTEGER REFERENCES waypoints(id),
	fix_lon                 REAL,
	fix_lat                 REAL,
	recommended_navaid      TEXT NOT NULL DEFAULT '',
	altitude_description    TEXT NOT NULL DEFAULT '',
	altitude1               REAL,
	altitude2               REAL,
	transition_altitude     REAL,
	speed_limit_description TEXT NOT NULL DEFAULT '',
	speed_limit             REAL,
	distance_nm             REAL,
	holding_minutes         REAL
);
CREATE INDEX IF NOT EXISTS idx_procedure_legs_procedure ON procedure_legs(procedure_id, sequence);
`

const routeSchema = `
CREATE TABLE IF NOT EXISTS route_nodes (
	id              INTEGER PRIMARY KEY,
	kind            TEXT NOT NULL,
	reference_id    INTEGER NOT NULL,
	lon             REAL NOT NULL,
	lat             REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS route_edges (
	from_node_id    INTEGER NOT NULL REFERENCES route_nodes(id),
	to_node_id      INTEGER NOT NULL REFERENCES route_nodes(id),
	distance_nm     REAL NOT NULL,
	PRIMARY KEY (from_node_id, to_node_id)
);
`

const viewSchema = `
CREATE VIEW IF NOT EXISTS airport_runway_summary AS
SELECT a.id AS airport_id, a.identifier, COUNT(r.id) AS runway_count
FROM airports a
LEFT JOIN runways r ON r.airport_id = a.id
GROUP BY a.id, a.identifier;
`

var dropStatements = []string{
	"DROP VIEW IF EXISTS airport_runway_summary",
	"DROP TABLE IF EXISTS route_edges",
	"DROP TABLE IF EXISTS route_nodes",
	"DROP INDEX IF EXISTS idx_waypoints_ident",
	"DROP TABLE IF EXISTS ils",
	"DROP TABLE IF EXISTS waypoints",
	"DROP TABLE IF EXISTS airway_segments",
	"DROP TABLE IF EXISTS procedure_legs",
	"DROP TABLE IF EXISTS procedures",
	"DROP TABLE IF EXISTS runway_ends",
	"DROP TABLE IF EXISTS runways",
	"DROP TABLE IF EXISTS airports",
	"DROP TABLE IF EXISTS airspaces",
	"DROP TABLE IF EXISTS magnetic_model",
	"DROP TABLE IF EXISTS file_descriptors",
	"DROP TABLE IF EXISTS scenery_areas",
}

// DropAll drops every output table/view/index, in dependency order, per
// spec.md §4.12 phase 1's "drop views, routing, search, nav aids,
// airport facilities, approaches, airports, metadata" ordering.
func (s *Store) DropAll(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range dropStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("store: %s: %w", stmt, err)
			}
		}
		return nil
	})
}

// CreateAll creates every output table/index/view in the order spec.md
// §4.12 phase 1 names: boundary, nav, airport, route, meta schemas, then
// views.
func (s *Store) CreateAll(ctx context.Context) error {
	groups := []string{boundarySchema, navSchema, airportSchema, routeSchema, metaSchema, viewSchema}
	for _, g := range groups {
		if err := s.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, g)
			return err
		}); err != nil {
			return fmt.Errorf("store: creating schema: %w", err)
		}
	}
	return nil
}
