package catalog

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuiltinLookups(t *testing.T) {
	s := Builtin()
	if s.Len() == 0 {
		t.Fatal("builtin catalog is empty")
	}

	rpm, ok := s.Lookup(FamilyOBD2, 0x0C)
	if !ok {
		t.Fatal("engine rpm not found")
	}
	if rpm.Scale != 0.25 || rpm.Unit != "rpm" {
		t.Fatalf("rpm = %+v", rpm)
	}
	if got := rpm.Physical(3200); math.Abs(got-800) > 1e-9 {
		t.Fatalf("Physical(3200) = %g, want 800", got)
	}

	coolant, ok := s.Lookup(FamilyOBD2, 0x05)
	if !ok {
		t.Fatal("coolant not found")
	}
	if got := coolant.Physical(110); got != 70 {
		t.Fatalf("Physical(110) = %g, want 70", got)
	}

	if _, ok := s.Lookup(FamilyHonda, 0x0C); ok {
		t.Fatal("honda entries must not resolve by obd2 pid")
	}
}

func TestLookupNameNormalization(t *testing.T) {
	s := Builtin()
	for _, name := range []string{"ENGINE SPEED", "engine speed", "Engine  Speed", " engine\tspeed "} {
		if _, ok := s.LookupName(FamilyHonda, name); !ok {
			t.Fatalf("LookupName(%q) failed", name)
		}
	}
	if _, ok := s.LookupName(FamilyOBD2, "ENGINE SPEED"); ok {
		t.Fatal("honda name must not resolve in obd2 family")
	}
}

func TestMergeValidation(t *testing.T) {
	cases := []struct {
		name    string
		entry   JSONEntry
		wantErr string
	}{
		{"unknown family", JSONEntry{Family: "mazda", Name: "X"}, "unknown family"},
		{"missing name", JSONEntry{Family: "obd2", PID: 0x70}, "missing name"},
		{"width", JSONEntry{Family: "obd2", Name: "X", Width: 9}, "width out of range"},
		{"decimals", JSONEntry{Family: "obd2", Name: "X", Decimals: 7}, "decimals out of range"},
		{"shadowing pid", JSONEntry{Family: "obd2", PID: 0x0C, Name: "Other RPM"}, "duplicate pid"},
		{"shadowing name", JSONEntry{Family: "honda", Name: "engine speed"}, "duplicate name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Builtin()
			err := s.Merge(JSONFile{Parameters: []JSONEntry{tc.entry}})
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestEnsureLoadedOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.json")
	overlay := `{
  "parameters": [
    {"family": "obd2", "pid": 112, "name": "Boost Pressure", "unit": "kPa", "width": 2, "scale": 0.1, "decimals": 1}
  ]
}`
	if err := os.WriteFile(path, []byte(overlay), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := EnsureLoaded(path)
	if err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	def, ok := s.Lookup(FamilyOBD2, 112)
	if !ok {
		t.Fatal("overlay entry not found")
	}
	if def.Scale != 0.1 || def.Unit != "kPa" {
		t.Fatalf("def = %+v", def)
	}
	// Builtin entries survive the merge.
	if _, ok := s.Lookup(FamilyOBD2, 0x0C); !ok {
		t.Fatal("builtin entry lost after merge")
	}
}

func TestEnsureLoadedEmptyPath(t *testing.T) {
	s, err := EnsureLoaded("  ")
	if err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	if s.Len() != Builtin().Len() {
		t.Fatal("empty path must yield the builtin catalog")
	}
}

func TestParseFamily(t *testing.T) {
	cases := map[string]Family{
		"obd2":  FamilyOBD2,
		"OBDII": FamilyOBD2,
		"honda": FamilyHonda,
	}
	for in, want := range cases {
		got, ok := ParseFamily(in)
		if !ok || got != want {
			t.Fatalf("ParseFamily(%q) = %s, %v", in, got, ok)
		}
	}
	if _, ok := ParseFamily("bmw"); ok {
		t.Fatal("ParseFamily must reject unknown families")
	}
}
