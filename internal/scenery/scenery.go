// Package scenery walks proprietary binary scenery archives and decodes
// their typed, tagged framed records into staging rows, per spec.md
// §4.2. The rows are returned as Staging* values; this package writes
// nothing, and internal/orchestrator inserts them directly into the
// output tables during load (there are no staging tables).
package scenery

import (
	"navdbcompiler/internal/binrec"
	"navdbcompiler/internal/clog"
)

// SchemaVersion identifies which binary layout variant an archive uses
// for its leg records. Multiple versions coexist across real-world
// archives; the adapter branches on the outer tag value to pick the
// right layout rather than guessing from content.
type SchemaVersion int

const (
	VersionLegacy SchemaVersion = iota
	VersionMSFS
	VersionMSFS116
	VersionMSFS118
)

// Outer record tags for a single airport's enclosed sub-objects.
const (
	TagAirport  uint16 = 0x0001
	TagRunway   uint16 = 0x0002
	TagApproach uint16 = 0x0003
	TagCOM      uint16 = 0x0004
	TagParking  uint16 = 0x0005
)

// Leg-record tags, one family per schema version; an approach record's
// children are dispatched against the family matching its Area.Version.
const (
	TagLegLegacy  uint16 = 0x0010
	TagLegMSFS    uint16 = 0x0110
	TagLegMSFS116 uint16 = 0x0116
	TagLegMSFS118 uint16 = 0x0118

	TagMissedLegLegacy uint16 = 0x0011
	TagMissedLegMSFS   uint16 = 0x0111

	TagTransition uint16 = 0x0020
)

// ApproachFlags decodes the packed flags byte spec.md §6 documents: low
// nibble is the approach type, bits 4-6 are the runway designator, and
// bit 7 is the GPS-overlay flag.
type ApproachFlags struct {
	ApproachType     byte
	RunwayDesignator byte
	GPSOverlay       bool
}

// DecodeApproachFlags unpacks one flags byte.
func DecodeApproachFlags(b byte) ApproachFlags {
	return ApproachFlags{
		ApproachType:     b & 0x0F,
		RunwayDesignator: (b >> 4) & 0x07,
		GPSOverlay:       b&0x80 != 0,
	}
}

// DecodePackedFixIdent decodes a 28-bit packed fix identifier into at
// most five ICAO characters: five 5-bit groups (25 of the 28 bits),
// 0 meaning blank/terminator and 1-26 meaning 'A'-'Z'.
func DecodePackedFixIdent(code uint32) string {
	var out [5]byte
	n := 0
	for i := 0; i < 5; i++ {
		shift := uint(23 - 5*i)
		group := byte((code >> shift) & 0x1F)
		if group == 0 {
			break
		}
		if group >= 1 && group <= 26 {
			out[n] = 'A' + group - 1
			n++
		}
	}
	return string(out[:n])
}

// Area identifies one scenery area's byte stream: its schema version,
// and whether it is a legacy archive (unknown tags warn) or a
// modern-era one (unknown tags only log at debug, since the format is
// known to still be evolving).
type Area struct {
	Name    string
	Version SchemaVersion
	Legacy  bool
}

// StagingApproach is one approach header parsed from a scenery archive;
// the orchestrator turns it and its legs into a procedure row.
type StagingApproach struct {
	AirportIdentifier string
	Suffix            string
	RunwayNumber      int
	RunwayDesignator  byte
	GPSOverlay        bool
	FixIdentifier     string
	Altitude1         float64
	Altitude2         float64
	MagneticHeading   float64
}

// StagingApproachLeg is one leg, missed-approach leg, or transition leg
// enclosed by an approach record. Kind distinguishes which of the three
// it is; the logical fields are the same union regardless of which
// binary schema version produced it (spec.md's "polymorphic approach-leg
// records" design note: one logical type, one decoder per version, same
// output shape).
type StagingApproachLeg struct {
	Kind            LegKind
	Sequence        int
	PathTermination string
	FixIdentifier   string
	Course          float64
	Altitude1       float64
	Altitude2       float64
}

// LegKind distinguishes a normal leg from a missed-approach or
// transition leg within the same approach record.
type LegKind int

const (
	LegNormal LegKind = iota
	LegMissed
	LegTransition
)

// legTagsFor returns which tags this area's schema version uses for
// normal vs. missed-approach legs.
func legTagsFor(version SchemaVersion) (normal, missed uint16) {
	switch version {
	case VersionMSFS:
		return TagLegMSFS, TagMissedLegMSFS
	case VersionMSFS116:
		return TagLegMSFS116, TagMissedLegMSFS
	case VersionMSFS118:
		return TagLegMSFS118, TagMissedLegMSFS
	default:
		return TagLegLegacy, TagMissedLegLegacy
	}
}

func logUnknownTag(log *clog.Logger, area Area, tag uint16) {
	if area.Legacy {
		log.Warn("unrecognized scenery record tag", "area", area.Name, "tag", tag)
	} else {
		log.Debug("unrecognized scenery record tag", "area", area.Name, "tag", tag)
	}
}

// WalkApproach drives the caller-owned tag-dispatch loop spec.md §4.1
// requires: it reads the approach's primary header, then walks its
// direct children (legs, missed-approach legs, transitions) within the
// approach's own frame bound, version-branching the leg tag family and
// reporting any unrecognized child tag through log rather than aborting.
func WalkApproach(r *binrec.Reader, frameEnd int, area Area, airportIdentifier string, log *clog.Logger) (StagingApproach, []StagingApproachLeg, error) {
	suffix, err := r.FixedString(1)
	if err != nil {
		return StagingApproach{}, nil, err
	}
	runwayNumber, err := r.Uint8()
	if err != nil {
		return StagingApproach{}, nil, err
	}
	flagsByte, err := r.Uint8()
	if err != nil {
		return StagingApproach{}, nil, err
	}
	fixCode, err := r.Uint32()
	if err != nil {
		return StagingApproach{}, nil, err
	}
	alt1, err := r.Float32()
	if err != nil {
		return StagingApproach{}, nil, err
	}
	alt2, err := r.Float32()
	if err != nil {
		return StagingApproach{}, nil, err
	}
	heading, err := r.Float32()
	if err != nil {
		return StagingApproach{}, nil, err
	}

	flags := DecodeApproachFlags(flagsByte)
	approach := StagingApproach{
		AirportIdentifier: airportIdentifier,
		Suffix:            suffix,
		RunwayNumber:      int(runwayNumber),
		RunwayDesignator:  flags.RunwayDesignator,
		GPSOverlay:        flags.GPSOverlay,
		FixIdentifier:     DecodePackedFixIdent(fixCode),
		Altitude1:         float64(alt1),
		Altitude2:         float64(alt2),
		MagneticHeading:   float64(heading),
	}

	normalTag, missedTag := legTagsFor(area.Version)

	var legs []StagingApproachLeg
	seq := 0
	for r.Offset() < frameEnd {
		h, childEnd, err := r.ReadFrameHeader(frameEnd)
		if err != nil {
			return approach, legs, err
		}

		switch h.Tag {
		case normalTag, missedTag, TagTransition:
			leg, err := decodeLeg(r, childEnd, h.Tag, normalTag, missedTag)
			if err != nil {
				return approach, legs, err
			}
			seq++
			leg.Sequence = seq
			legs = append(legs, leg)
		default:
			logUnknownTag(log, area, h.Tag)
		}

		if err := r.Seek(childEnd); err != nil {
			return approach, legs, err
		}
	}

	return approach, legs, nil
}

func decodeLeg(r *binrec.Reader, frameEnd int, tag, normalTag, missedTag uint16) (StagingApproachLeg, error) {
	pathTermination, err := r.FixedString(2)
	if err != nil {
		return StagingApproachLeg{}, err
	}
	fixCode, err := r.Uint32()
	if err != nil {
		return StagingApproachLeg{}, err
	}
	course, err := r.Float32()
	if err != nil {
		return StagingApproachLeg{}, err
	}
	alt1, err := r.Float32()
	if err != nil {
		return StagingApproachLeg{}, err
	}
	alt2, err := r.Float32()
	if err != nil {
		return StagingApproachLeg{}, err
	}

	kind := LegTransitionKind(tag, normalTag, missedTag)
	return StagingApproachLeg{
		Kind:            kind,
		PathTermination: pathTermination,
		FixIdentifier:   DecodePackedFixIdent(fixCode),
		Course:          float64(course),
		Altitude1:       float64(alt1),
		Altitude2:       float64(alt2),
	}, nil
}

// LegTransitionKind classifies a child tag against the area's normal and
// missed-approach leg tags; anything else is a transition leg.
func LegTransitionKind(tag, normalTag, missedTag uint16) LegKind {
	switch tag {
	case normalTag:
		return LegNormal
	case missedTag:
		return LegMissed
	default:
		return LegTransition
	}
}

// StagingAirport is an airport header parsed from a TagAirport record:
// identifier and reference position, the minimum an orchestrator needs
// to seed the airports table before any of its enclosed runway or
// approach records can be linked to it.
type StagingAirport struct {
	Identifier string
	Position   struct {
		Lon, Lat, AltitudeFeet float64
	}
}

// WalkAirportHeader reads one TagAirport record's fixed header fields,
// following the same sequential-field convention WalkApproach uses.
// It does not walk the airport's children (runways, approaches, COM,
// parking); the caller owns that dispatch loop since those children are
// independently tagged siblings within the same frame, not exclusively
// nested under the airport header's own body.
func WalkAirportHeader(r *binrec.Reader) (StagingAirport, error) {
	identifier, err := r.FixedString(4)
	if err != nil {
		return StagingAirport{}, err
	}
	lon, err := r.Float32()
	if err != nil {
		return StagingAirport{}, err
	}
	lat, err := r.Float32()
	if err != nil {
		return StagingAirport{}, err
	}
	altitude, err := r.Float32()
	if err != nil {
		return StagingAirport{}, err
	}

	out := StagingAirport{Identifier: identifier}
	out.Position.Lon = float64(lon)
	out.Position.Lat = float64(lat)
	out.Position.AltitudeFeet = float64(altitude)
	return out, nil
}

// StagingRunwayEnd is one physical runway-end record parsed from a
// TagRunway record, already carrying its own threshold position (unlike
// the relational/text adapters' runway.End, which has no position field
// and relies on a separately-known airport reference point instead).
type StagingRunwayEnd struct {
	Ident                  string
	TrueBearing            float64
	ThresholdLon           float64
	ThresholdLat           float64
	DisplacedThresholdFeet float64
}

// WalkRunwayEnd reads one TagRunway record's fixed fields.
func WalkRunwayEnd(r *binrec.Reader) (StagingRunwayEnd, error) {
	ident, err := r.FixedString(3)
	if err != nil {
		return StagingRunwayEnd{}, err
	}
	trueBearing, err := r.Float32()
	if err != nil {
		return StagingRunwayEnd{}, err
	}
	lon, err := r.Float32()
	if err != nil {
		return StagingRunwayEnd{}, err
	}
	lat, err := r.Float32()
	if err != nil {
		return StagingRunwayEnd{}, err
	}
	displaced, err := r.Float32()
	if err != nil {
		return StagingRunwayEnd{}, err
	}
	return StagingRunwayEnd{
		Ident:                  ident,
		TrueBearing:            float64(trueBearing),
		ThresholdLon:           float64(lon),
		ThresholdLat:           float64(lat),
		DisplacedThresholdFeet: float64(displaced),
	}, nil
}
