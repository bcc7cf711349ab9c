// Package textsource reads fixed-column text files line by line, per
// spec.md §4.4. Lines are dispatched by a leading key column to the
// record shape they decode as; output feeds the same domain row shapes
// internal/relsource produces, so the orchestrator's load phase treats
// both adapters identically.
package textsource

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	fixedwidth "github.com/wallaceicy06/go-fixedwidth"

	"navdbcompiler/internal/airway"
	"navdbcompiler/internal/clog"
	"navdbcompiler/internal/geo"
	"navdbcompiler/internal/procedure"
	"navdbcompiler/internal/relsource"
	"navdbcompiler/internal/runway"
)

// Leading key column values selecting which fixed-width record shape the
// rest of a line follows.
const (
	KeyAirport    = "A"
	KeyRunway     = "R"
	KeyWaypoint   = "N"
	KeyAirway     = "S"
	KeyProcHeader = "H"
	KeyProcLeg    = "L"
)

// Callbacks receives each decoded row as Read scans the file. Any field
// left nil is simply skipped for that record kind. Procedure rows are
// not delivered through a callback: they are fed directly to the
// *procedure.Writer Read is given, since per-airport/identifier/
// transition boundary flushing is the Writer's own responsibility
// (spec.md §4.3's boundary-detection behavior, shared by every adapter).
type Callbacks struct {
	Airport   func(relsource.AirportRow)
	RunwayEnd func(airportIdentifier string, end runway.End)
	Waypoint  func(Waypoint)
	Airway    func(airway.Row)
}

// Waypoint is one navaid/waypoint/marker line.
type Waypoint struct {
	Identifier   string
	Region       string
	Type         string
	Position     geo.Position
	Frequency    float64
	HasFrequency bool
}

type airportLine struct {
	Key        string `fixed:"1,1"`
	Identifier string `fixed:"2,5"`
	Region     string `fixed:"6,7"`
	Lon        string `fixed:"8,17"`
	Lat        string `fixed:"18,26"`
	AltitudeFt string `fixed:"27,32"`
}

type runwayLine struct {
	Key                    string `fixed:"1,1"`
	AirportIdentifier      string `fixed:"2,5"`
	Ident                  string `fixed:"6,9"`
	MagneticBearing        string `fixed:"10,14"`
	TrueBearing            string `fixed:"15,19"`
	DisplacedThresholdFeet string `fixed:"20,24"`
	ILSIdent               string `fixed:"25,28"`
}

type waypointLine struct {
	Key        string `fixed:"1,1"`
	Identifier string `fixed:"2,6"`
	Region     string `fixed:"7,8"`
	Type       string `fixed:"9,12"`
	Lon        string `fixed:"13,22"`
	Lat        string `fixed:"23,31"`
	Frequency  string `fixed:"32,38"`
}

type airwayLine struct {
	Key                     string `fixed:"1,1"`
	RouteIdentifier         string `fixed:"2,6"`
	Sequence                string `fixed:"7,9"`
	WaypointDescriptionCode string `fixed:"10,13"`
	WaypointID              string `fixed:"14,18"`
	FlightLevel             string `fixed:"19,19"`
	DirectionRestriction    string `fixed:"20,20"`
	AltitudeMin             string `fixed:"21,25"`
	AltitudeMax             string `fixed:"26,30"`
	Lon                     string `fixed:"31,40"`
	Lat                     string `fixed:"41,49"`
}

type procHeaderLine struct {
	Key                  string `fixed:"1,1"`
	AirportIdentifier    string `fixed:"2,5"`
	RouteType            string `fixed:"6,6"`
	Identifier           string `fixed:"7,12"`
	TransitionIdentifier string `fixed:"13,17"`
}

type procLegLine struct {
	Key                          string `fixed:"1,1"`
	Sequence                     string `fixed:"2,4"`
	PathTermination              string `fixed:"5,6"`
	TurnDirection                string `fixed:"7,7"`
	FixIdentifier                string `fixed:"8,12"`
	FixRegion                    string `fixed:"13,14"`
	FixType                      string `fixed:"15,16"`
	FixLon                       string `fixed:"17,26"`
	FixLat                       string `fixed:"27,35"`
	RecommendedNavaid            string `fixed:"36,40"`
	RecommendedNavaidLon         string `fixed:"41,50"`
	RecommendedNavaidLat         string `fixed:"51,59"`
	Theta                        string `fixed:"60,64"`
	Rho                          string `fixed:"65,69"`
	MagneticCourse               string `fixed:"70,73"`
	AltitudeDescription          string `fixed:"74,74"`
	Altitude1                    string `fixed:"75,79"`
	Altitude2                    string `fixed:"80,84"`
	TransitionAltitude           string `fixed:"85,89"`
	SpeedLimitDescription        string `fixed:"90,90"`
	SpeedLimit                   string `fixed:"91,93"`
	RouteOrHoldingDistanceOrTime string `fixed:"94,98"`
}

func trimmedFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func trimmedInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func airportRowFromLine(rec airportLine) (relsource.AirportRow, error) {
	lon, err := trimmedFloat(rec.Lon)
	if err != nil {
		return relsource.AirportRow{}, fmt.Errorf("lon: %w", err)
	}
	lat, err := trimmedFloat(rec.Lat)
	if err != nil {
		return relsource.AirportRow{}, fmt.Errorf("lat: %w", err)
	}
	alt, err := trimmedFloat(rec.AltitudeFt)
	if err != nil {
		return relsource.AirportRow{}, fmt.Errorf("altitude: %w", err)
	}
	identifier := strings.TrimSpace(rec.Identifier)
	if identifier == "" {
		return relsource.AirportRow{}, fmt.Errorf("missing identifier")
	}
	return relsource.NewAirportRow(identifier, strings.TrimSpace(rec.Region), 0, lon, lat, alt), nil
}

func runwayEndFromLine(rec runwayLine) (string, runway.End, error) {
	airportIdentifier := strings.TrimSpace(rec.AirportIdentifier)
	ident := strings.TrimSpace(rec.Ident)
	if airportIdentifier == "" || ident == "" {
		return "", runway.End{}, fmt.Errorf("missing airport identifier or runway ident")
	}
	magBearing, err := trimmedFloat(rec.MagneticBearing)
	if err != nil {
		return "", runway.End{}, fmt.Errorf("magnetic bearing: %w", err)
	}
	trueBearing, err := trimmedFloat(rec.TrueBearing)
	if err != nil {
		return "", runway.End{}, fmt.Errorf("true bearing: %w", err)
	}
	displaced, err := trimmedFloat(rec.DisplacedThresholdFeet)
	if err != nil {
		return "", runway.End{}, fmt.Errorf("displaced threshold: %w", err)
	}
	return airportIdentifier, runway.End{
		Ident:                  ident,
		MagneticBearing:        magBearing,
		TrueBearing:            trueBearing,
		DisplacedThresholdFeet: displaced,
		ILSIdent:               strings.TrimSpace(rec.ILSIdent),
	}, nil
}

func waypointFromLine(rec waypointLine) (Waypoint, error) {
	identifier := strings.TrimSpace(rec.Identifier)
	if identifier == "" {
		return Waypoint{}, fmt.Errorf("missing identifier")
	}
	lon, err := trimmedFloat(rec.Lon)
	if err != nil {
		return Waypoint{}, fmt.Errorf("lon: %w", err)
	}
	lat, err := trimmedFloat(rec.Lat)
	if err != nil {
		return Waypoint{}, fmt.Errorf("lat: %w", err)
	}
	w := Waypoint{
		Identifier: identifier,
		Region:     strings.TrimSpace(rec.Region),
		Type:       strings.TrimSpace(rec.Type),
		Position:   geo.NewPosition(lon, lat, 0),
	}
	if freqText := strings.TrimSpace(rec.Frequency); freqText != "" {
		freq, err := strconv.ParseFloat(freqText, 64)
		if err != nil {
			return Waypoint{}, fmt.Errorf("frequency: %w", err)
		}
		w.Frequency = freq
		w.HasFrequency = true
	}
	return w, nil
}

func airwayRowFromLine(rec airwayLine) (airway.Row, error) {
	routeIdentifier := strings.TrimSpace(rec.RouteIdentifier)
	if routeIdentifier == "" {
		return airway.Row{}, fmt.Errorf("missing route identifier")
	}
	sequence, err := trimmedInt(rec.Sequence)
	if err != nil {
		return airway.Row{}, fmt.Errorf("sequence: %w", err)
	}
	altMin, err := trimmedFloat(rec.AltitudeMin)
	if err != nil {
		return airway.Row{}, fmt.Errorf("altitude min: %w", err)
	}
	altMax, err := trimmedFloat(rec.AltitudeMax)
	if err != nil {
		return airway.Row{}, fmt.Errorf("altitude max: %w", err)
	}
	lon, err := trimmedFloat(rec.Lon)
	if err != nil {
		return airway.Row{}, fmt.Errorf("lon: %w", err)
	}
	lat, err := trimmedFloat(rec.Lat)
	if err != nil {
		return airway.Row{}, fmt.Errorf("lat: %w", err)
	}
	return relsource.NewAirwayRow(routeIdentifier, sequence, strings.TrimSpace(rec.WaypointDescriptionCode),
		strings.TrimSpace(rec.WaypointID), strings.TrimSpace(rec.FlightLevel),
		strings.TrimSpace(rec.DirectionRestriction), altMin, altMax, lon, lat), nil
}

func procedureInputRowFromLines(header procHeaderLine, leg procLegLine) (procedure.InputRow, error) {
	sequence, err := trimmedInt(leg.Sequence)
	if err != nil {
		return procedure.InputRow{}, fmt.Errorf("sequence: %w", err)
	}
	fixLon, err := trimmedFloat(leg.FixLon)
	if err != nil {
		return procedure.InputRow{}, fmt.Errorf("fix lon: %w", err)
	}
	fixLat, err := trimmedFloat(leg.FixLat)
	if err != nil {
		return procedure.InputRow{}, fmt.Errorf("fix lat: %w", err)
	}
	navLon, err := trimmedFloat(leg.RecommendedNavaidLon)
	if err != nil {
		return procedure.InputRow{}, fmt.Errorf("recommended navaid lon: %w", err)
	}
	navLat, err := trimmedFloat(leg.RecommendedNavaidLat)
	if err != nil {
		return procedure.InputRow{}, fmt.Errorf("recommended navaid lat: %w", err)
	}
	theta, err := trimmedFloat(leg.Theta)
	if err != nil {
		return procedure.InputRow{}, fmt.Errorf("theta: %w", err)
	}
	rho, err := trimmedFloat(leg.Rho)
	if err != nil {
		return procedure.InputRow{}, fmt.Errorf("rho: %w", err)
	}
	magneticCourse, err := trimmedFloat(leg.MagneticCourse)
	if err != nil {
		return procedure.InputRow{}, fmt.Errorf("magnetic course: %w", err)
	}
	alt1, err := trimmedFloat(leg.Altitude1)
	if err != nil {
		return procedure.InputRow{}, fmt.Errorf("altitude1: %w", err)
	}
	alt2, err := trimmedFloat(leg.Altitude2)
	if err != nil {
		return procedure.InputRow{}, fmt.Errorf("altitude2: %w", err)
	}
	transitionAlt, err := trimmedFloat(leg.TransitionAltitude)
	if err != nil {
		return procedure.InputRow{}, fmt.Errorf("transition altitude: %w", err)
	}
	speedLimit, err := trimmedFloat(leg.SpeedLimit)
	if err != nil {
		return procedure.InputRow{}, fmt.Errorf("speed limit: %w", err)
	}
	routeOrHolding, err := trimmedFloat(leg.RouteOrHoldingDistanceOrTime)
	if err != nil {
		return procedure.InputRow{}, fmt.Errorf("route/holding distance or time: %w", err)
	}

	return relsource.NewProcedureInputRow(
		routeTypeFromCode(header.RouteType),
		strings.TrimSpace(header.AirportIdentifier),
		strings.TrimSpace(header.Identifier),
		strings.TrimSpace(header.TransitionIdentifier),
		sequence,
		strings.TrimSpace(leg.PathTermination),
		strings.TrimSpace(leg.TurnDirection),
		strings.TrimSpace(leg.FixIdentifier),
		strings.TrimSpace(leg.FixRegion),
		strings.TrimSpace(leg.FixType),
		fixLon, fixLat,
		strings.TrimSpace(leg.RecommendedNavaid),
		navLon, navLat,
		theta, rho, magneticCourse,
		strings.TrimSpace(leg.AltitudeDescription), alt1, alt2, transitionAlt,
		strings.TrimSpace(leg.SpeedLimitDescription), speedLimit,
		routeOrHolding,
	), nil
}

func routeTypeFromCode(code string) string {
	switch strings.TrimSpace(strings.ToUpper(code)) {
	case "S":
		return "sid"
	case "E":
		return "star"
	default:
		return "approach"
	}
}

// Read scans r line by line, dispatching each line by its leading key
// column. Malformed lines (an unparseable mandatory field, or a leg line
// with no preceding header in scope) are skipped with a position report
// logged through log, never aborting the read. Procedure legs are fed
// directly to w; the caller must call w.Close after Read returns to
// flush the last buffered procedure.
func Read(r io.Reader, cb Callbacks, w *procedure.Writer, log *clog.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNum := 0
	var currentHeader *procHeaderLine

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		key := line[:1]

		switch key {
		case KeyAirport:
			var rec airportLine
			if err := fixedwidth.Unmarshal([]byte(line), &rec); err == nil {
				if row, err := airportRowFromLine(rec); err == nil {
					if cb.Airport != nil {
						cb.Airport(row)
					}
				} else {
					log.Warn("skipping malformed airport line", "line", lineNum, "error", err)
				}
			} else {
				log.Warn("skipping malformed airport line", "line", lineNum, "error", err)
			}
			currentHeader = nil

		case KeyRunway:
			var rec runwayLine
			if err := fixedwidth.Unmarshal([]byte(line), &rec); err == nil {
				if airportIdentifier, end, err := runwayEndFromLine(rec); err == nil {
					if cb.RunwayEnd != nil {
						cb.RunwayEnd(airportIdentifier, end)
					}
				} else {
					log.Warn("skipping malformed runway line", "line", lineNum, "error", err)
				}
			} else {
				log.Warn("skipping malformed runway line", "line", lineNum, "error", err)
			}
			currentHeader = nil

		case KeyWaypoint:
			var rec waypointLine
			if err := fixedwidth.Unmarshal([]byte(line), &rec); err == nil {
				if wpt, err := waypointFromLine(rec); err == nil {
					if cb.Waypoint != nil {
						cb.Waypoint(wpt)
					}
				} else {
					log.Warn("skipping malformed waypoint line", "line", lineNum, "error", err)
				}
			} else {
				log.Warn("skipping malformed waypoint line", "line", lineNum, "error", err)
			}
			currentHeader = nil

		case KeyAirway:
			var rec airwayLine
			if err := fixedwidth.Unmarshal([]byte(line), &rec); err == nil {
				if row, err := airwayRowFromLine(rec); err == nil {
					if cb.Airway != nil {
						cb.Airway(row)
					}
				} else {
					log.Warn("skipping malformed airway line", "line", lineNum, "error", err)
				}
			} else {
				log.Warn("skipping malformed airway line", "line", lineNum, "error", err)
			}
			currentHeader = nil

		case KeyProcHeader:
			var rec procHeaderLine
			if err := fixedwidth.Unmarshal([]byte(line), &rec); err != nil {
				log.Warn("skipping malformed procedure header line", "line", lineNum, "error", err)
				currentHeader = nil
				continue
			}
			currentHeader = &rec

		case KeyProcLeg:
			if currentHeader == nil {
				log.Warn("skipping procedure leg line with no preceding header", "line", lineNum)
				continue
			}
			var rec procLegLine
			if err := fixedwidth.Unmarshal([]byte(line), &rec); err != nil {
				log.Warn("skipping malformed procedure leg line", "line", lineNum, "error", err)
				continue
			}
			row, err := procedureInputRowFromLines(*currentHeader, rec)
			if err != nil {
				log.Warn("skipping malformed procedure leg line", "line", lineNum, "error", err)
				continue
			}
			w.Add(row)

		default:
			log.Warn("skipping line with unrecognized key", "line", lineNum, "key", key)
			currentHeader = nil
		}
	}
	return scanner.Err()
}
