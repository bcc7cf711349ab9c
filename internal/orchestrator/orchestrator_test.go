package orchestrator

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"navdbcompiler/internal/clog"
	"navdbcompiler/internal/magvar"
	"navdbcompiler/internal/store"
)

func field(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

func airportLine(identifier, region, lon, lat, alt string) string {
	return "A" + field(identifier, 4) + field(region, 2) + field(lon, 10) + field(lat, 9) + field(alt, 6)
}

func runwayLine(airportIdentifier, ident, magBearing, trueBearing, displaced, ils string) string {
	return "R" + field(airportIdentifier, 4) + field(ident, 4) + field(magBearing, 5) + field(trueBearing, 5) +
		field(displaced, 5) + field(ils, 4)
}

func waypointLine(identifier, region, wptType, lon, lat, freq string) string {
	return "N" + field(identifier, 5) + field(region, 2) + field(wptType, 4) +
		field(lon, 10) + field(lat, 9) + field(freq, 7)
}

// compressedMagvarGrid builds a zstd-compressed one-sample-per-line stream
// for a 2x2 grid (bounds 40..50 lat, -130..-120 lon, step 10) where every
// sample reads 15.0, wide enough to cover the KSEA fixture position used
// throughout this file.
func compressedMagvarGrid(t *testing.T) []byte {
	t.Helper()
	var plain bytes.Buffer
	for i := 0; i < 4; i++ {
		fmt.Fprintln(&plain, "15")
	}
	var out bytes.Buffer
	zw, err := zstd.NewWriter(&out)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := zw.Write(plain.Bytes()); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}
	return out.Bytes()
}

func TestEnterPhaseEnforcesMonotonicOrder(t *testing.T) {
	o := &orchestrator{lastPhase: phaseNone, rowsWritten: map[string]int{}}
	if err := o.enterPhase(phaseSchema); err != nil {
		t.Fatalf("entering the first phase: %v", err)
	}
	if err := o.enterPhase(phaseLoad); err != nil {
		t.Fatalf("advancing phases: %v", err)
	}
	if err := o.enterPhase(phaseMetadata); err == nil {
		t.Error("expected an error re-entering an earlier phase, got nil")
	}
	if err := o.enterPhase(phaseLoad); err == nil {
		t.Error("expected an error re-entering the same phase, got nil")
	}
}

func TestRunTextSourceEndToEnd(t *testing.T) {
	input := airportLine("KSEA", "K1", "-122.3", "47.4", "433") + "\n" +
		runwayLine("KSEA", "16L", "160", "163", "0", "") + "\n" +
		runwayLine("KSEA", "34R", "340", "343", "0", "") + "\n"

	cfg := Config{
		OutputPath: ":memory:",
		Source:     SourceText,
		TextInputs: []TextInput{{Name: "test", Reader: strings.NewReader(input)}},
	}

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Code != Ok {
		t.Fatalf("Code = %v, want Ok", result.Code)
	}
	if result.RowsWritten["airports"] != 1 {
		t.Errorf("airports written = %d, want 1", result.RowsWritten["airports"])
	}
	if result.RowsWritten["runways"] == 0 {
		t.Errorf("expected at least one runway row written")
	}
}

func TestRunAbortsCooperativelyWhenProgressReturnsAbort(t *testing.T) {
	input := airportLine("KSEA", "K1", "-122.3", "47.4", "433") + "\n"

	cfg := Config{
		OutputPath: ":memory:",
		Source:     SourceText,
		TextInputs: []TextInput{{Name: "test", Reader: strings.NewReader(input)}},
		Progress: func(phaseIndex, phaseCount int, name string) Decision {
			if phaseIndex == 1 {
				return Abort
			}
			return Continue
		},
	}

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Code != Aborted {
		t.Fatalf("Code = %v, want Aborted", result.Code)
	}
}

func TestRunAbortsWhenContextCancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{
		OutputPath: ":memory:",
		Source:     SourceText,
		Progress: func(phaseIndex, phaseCount int, name string) Decision {
			if phaseIndex == 0 {
				cancel()
			}
			return Continue
		},
	}

	result, err := Run(ctx, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Code != Aborted {
		t.Fatalf("Code = %v, want Aborted", result.Code)
	}
}

// TestLoadTextAppliesMagneticVariationAndTACANInline guards against the
// text adapter silently skipping the derived-value work that spec.md §4.12
// phase 7 promises happens "during load" for non-relational sources: it
// calls loadText directly (bypassing Run's phase table entirely) so a
// passing result can only mean the inline calls in the Airport/Waypoint
// callbacks did the work, not phaseDerivedValuesFn, which never runs for
// SourceText.
func TestLoadTextAppliesMagneticVariationAndTACANInline(t *testing.T) {
	ctx := context.Background()

	grid, err := magvar.LoadGrid(bytes.NewReader(compressedMagvarGrid(t)), 40, 50, -130, -120, 10)
	if err != nil {
		t.Fatalf("LoadGrid: %v", err)
	}

	input := airportLine("KSEA", "K1", "-122.3", "47.4", "433") + "\n" +
		waypointLine("SEA", "K1", "TC", "-122.3", "47.4", "1154") + "\n"

	st, err := store.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	if err := st.CreateAll(ctx); err != nil {
		t.Fatalf("CreateAll: %v", err)
	}

	o := &orchestrator{
		store: st,
		cfg: Config{
			Source:     SourceText,
			MagvarGrid: grid,
			TextInputs: []TextInput{{Name: "test", Reader: strings.NewReader(input)}},
		},
		log:         clog.New(nil),
		rowsWritten: map[string]int{},
	}

	if err := o.loadText(ctx); err != nil {
		t.Fatalf("loadText: %v", err)
	}

	var airportMagvar sql.NullFloat64
	if err := st.DB().QueryRowContext(ctx,
		`SELECT magnetic_variation FROM airports WHERE identifier = ?`, "KSEA").Scan(&airportMagvar); err != nil {
		t.Fatalf("querying airport row: %v", err)
	}
	if !airportMagvar.Valid {
		t.Error("expected magnetic_variation to be set inline during text load, got null")
	}

	var waypointMagvar sql.NullFloat64
	var tacanChannel sql.NullString
	if err := st.DB().QueryRowContext(ctx,
		`SELECT magnetic_variation, tacan_channel FROM waypoints WHERE identifier = ?`, "SEA").
		Scan(&waypointMagvar, &tacanChannel); err != nil {
		t.Fatalf("querying waypoint row: %v", err)
	}
	if !waypointMagvar.Valid {
		t.Error("expected waypoint magnetic_variation to be set inline during text load, got null")
	}
	if !tacanChannel.Valid || tacanChannel.String == "" {
		t.Error("expected tacan_channel to be resolved inline for an eligible navaid, got null")
	}
}

func TestResultCodeString(t *testing.T) {
	cases := map[ResultCode]string{
		Ok:                    "ok",
		Aborted:               "aborted",
		BasicValidationError:  "basic_validation_error",
		NavigraphFound:        "navigraph_found",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", int(code), got, want)
		}
	}
}
