package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"navdbcompiler/internal/scenery"
)

func TestStringListAccumulatesRepeatedFlags(t *testing.T) {
	var l stringList
	if err := l.Set("a.txt"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := l.Set("b.txt"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(l) != 2 || l[0] != "a.txt" || l[1] != "b.txt" {
		t.Errorf("unexpected list: %v", l)
	}
	if l.String() != "a.txt,b.txt" {
		t.Errorf("String() = %q", l.String())
	}
}

func TestSceneryVersionMapsRecognizedNames(t *testing.T) {
	cases := map[string]scenery.SchemaVersion{
		"msfs":    scenery.VersionMSFS,
		"MSFS116": scenery.VersionMSFS116,
		"msfs118": scenery.VersionMSFS118,
		"legacy":  scenery.VersionLegacy,
		"":        scenery.VersionLegacy,
		"bogus":   scenery.VersionLegacy,
	}
	for name, want := range cases {
		if got := sceneryVersion(name); got != want {
			t.Errorf("sceneryVersion(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestLoadSceneryConfigReadsDescriptorAndAreaBytes(t *testing.T) {
	dir := t.TempDir()
	areaPath := filepath.Join(dir, "area.bin")
	if err := os.WriteFile(areaPath, []byte{1, 2, 3, 4}, 0o644); err != nil {
		t.Fatalf("writing area file: %v", err)
	}

	descriptor := []sceneryAreaConfig{
		{Name: "base", Version: "legacy", Legacy: true, Path: areaPath, Layer: 0, AreaNumber: 1, Enabled: true},
		{Name: "addon", Version: "msfs118", Legacy: false, Path: areaPath, Layer: 10, AreaNumber: 2, Enabled: false},
	}
	descPath := filepath.Join(dir, "areas.json")
	body, err := json.Marshal(descriptor)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(descPath, body, 0o644); err != nil {
		t.Fatalf("writing descriptor: %v", err)
	}

	areas, err := loadSceneryConfig(descPath)
	if err != nil {
		t.Fatalf("loadSceneryConfig: %v", err)
	}
	if len(areas) != 2 {
		t.Fatalf("len(areas) = %d, want 2", len(areas))
	}
	if areas[0].Area.Name != "base" || !areas[0].Area.Legacy || areas[0].Area.Version != scenery.VersionLegacy {
		t.Errorf("unexpected area[0]: %+v", areas[0])
	}
	if areas[1].Area.Version != scenery.VersionMSFS118 || areas[1].Enabled {
		t.Errorf("unexpected area[1]: %+v", areas[1])
	}
	if len(areas[0].Data) != 4 {
		t.Errorf("Data length = %d, want 4", len(areas[0].Data))
	}
}
