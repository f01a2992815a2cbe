package platform

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const twoCore = `
capacitance: 0.5
link_energy: 1
router_energy: 2
bandwidth:
  - [0, 4]
  - [2, 0]
cores:
  - idle_power: 0.2
    startup: 1
    levels:
      - {frequency: 1, voltage: 1}
      - {frequency: 2, voltage: 1.5}
  - idle_power: 0.1
    startup: 3
    levels:
      - {frequency: 0.5, voltage: 0.8}
      - {frequency: 1, voltage: 1}
`

func TestParse_TwoCore(t *testing.T) {
	p, err := Parse([]byte(twoCore))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.NumCores() != 2 || p.NumLevels() != 2 {
		t.Fatalf("expected 2x2 platform, got %dx%d", p.NumCores(), p.NumLevels())
	}
	if p.Frequency(0, 1) != 2 {
		t.Errorf("expected frequency 2, got %v", p.Frequency(0, 1))
	}
	if p.Voltage(1, 0) != 0.8 {
		t.Errorf("expected voltage 0.8, got %v", p.Voltage(1, 0))
	}
	if p.Bandwidth(0, 1) != 4 || p.Bandwidth(1, 0) != 2 {
		t.Errorf("unexpected bandwidth table %v", p.Band)
	}
	if p.Startup(1) != 3 || p.IdlePower(0) != 0.2 {
		t.Errorf("unexpected core tables: startup=%v idle=%v", p.Startup(1), p.IdlePower(0))
	}
	if p.ActiveScale != DefaultActiveScale {
		t.Errorf("expected default active scale %v, got %v", DefaultActiveScale, p.ActiveScale)
	}
	// Two cores on a 2-column mesh are one hop apart.
	if p.Hops(0, 1) != 1 || p.Hops(0, 0) != 0 {
		t.Errorf("unexpected hop table %v", p.HopTable)
	}
	if p.MaxFrequency(1) != 1 {
		t.Errorf("expected max frequency 1, got %v", p.MaxFrequency(1))
	}
}

func TestNormalize_MeshHops(t *testing.T) {
	p := &Platform{DefaultBandwidth: 1, MeshCols: 3}
	for i := 0; i < 6; i++ {
		p.Cores = append(p.Cores, Core{Levels: []Level{{Frequency: 1, Voltage: 1}}})
	}
	if err := p.Normalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// core 0 at (0,0), core 5 at (2,1)
	if p.Hops(0, 5) != 3 {
		t.Errorf("expected 3 hops, got %v", p.Hops(0, 5))
	}
	if p.Hops(1, 4) != 1 {
		t.Errorf("expected 1 hop, got %v", p.Hops(1, 4))
	}
}

func TestNormalize_Errors(t *testing.T) {
	tests := map[string]*Platform{
		"no cores":     {DefaultBandwidth: 1},
		"no bandwidth": {Cores: []Core{{Levels: []Level{{Frequency: 1}}}}},
		"zero freq":    {DefaultBandwidth: 1, Cores: []Core{{Levels: []Level{{Frequency: 0}}}}},
		"ragged levels": {DefaultBandwidth: 1, Cores: []Core{
			{Levels: []Level{{Frequency: 1}}},
			{Levels: []Level{{Frequency: 1}, {Frequency: 2}}},
		}},
		"bad bandwidth shape": {Band: [][]float64{{0, 1}}, Cores: []Core{{Levels: []Level{{Frequency: 1}}}}},
	}
	for name, p := range tests {
		if err := p.Normalize(); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func TestRestrict_Clamps(t *testing.T) {
	p, err := Parse([]byte(twoCore))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	log := zerolog.New(&buf)
	r, err := p.Restrict(5, 1, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.NumCores() != 2 || r.NumLevels() != 1 {
		t.Errorf("expected 2 cores and 1 level, got %d and %d", r.NumCores(), r.NumLevels())
	}
	if !strings.Contains(buf.String(), "clamping") {
		t.Errorf("expected a clamping warning, got %q", buf.String())
	}
	// Original is untouched.
	if p.NumLevels() != 2 {
		t.Errorf("restrict modified the source platform")
	}

	if _, err := p.Restrict(0, 1, log); err == nil {
		t.Error("expected error for zero cores")
	}
}

func TestRestrict_SubMatrix(t *testing.T) {
	p := Default()
	r, err := p.Restrict(3, 2, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Band) != 3 || len(r.HopTable[2]) != 3 {
		t.Fatalf("expected 3x3 tables")
	}
	if r.Hops(0, 2) != p.Hops(0, 2) {
		t.Errorf("hop distance changed: %v vs %v", r.Hops(0, 2), p.Hops(0, 2))
	}
}

func TestDefault(t *testing.T) {
	p := Default()
	if p.NumCores() != 8 || p.NumLevels() != 4 {
		t.Errorf("expected 8 cores x 4 levels, got %dx%d", p.NumCores(), p.NumLevels())
	}
	// big0 (0,0) to little3 (3,1)
	if p.Hops(0, 7) != 4 {
		t.Errorf("expected 4 hops, got %v", p.Hops(0, 7))
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platform.yaml")
	if err := os.WriteFile(path, []byte(twoCore), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.NumCores() != 2 {
		t.Errorf("expected 2 cores, got %d", p.NumCores())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
