package platform

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"
	"sigs.k8s.io/yaml"
)

const (
	// MaxCores and MaxLevels are hard caps on the platform size.
	MaxCores  = 64
	MaxLevels = 16

	// DefaultActiveScale converts C·V²·cycles from kilojoules to joules.
	DefaultActiveScale = 1e3
)

//go:embed default.yaml
var defaultYAML []byte

// Level is one DVFS operating point.
type Level struct {
	Frequency float64 `json:"frequency"`
	Voltage   float64 `json:"voltage"`
}

// Core is a processing element with its own set of DVFS levels.
type Core struct {
	Name      string  `json:"name,omitempty"`
	IdlePower float64 `json:"idle_power"`
	Startup   float64 `json:"startup"` // communication startup overhead when this core receives data
	Levels    []Level `json:"levels"`
}

// Platform holds the hardware tables consumed by the cost model.
// Call Normalize (Parse and Load do) before using the accessors.
type Platform struct {
	Cores            []Core      `json:"cores"`
	Band             [][]float64 `json:"bandwidth,omitempty"`
	DefaultBandwidth float64     `json:"default_bandwidth,omitempty"`
	HopTable         [][]float64 `json:"hops,omitempty"`
	MeshCols         int         `json:"mesh_cols,omitempty"`
	LinkEnergy       float64     `json:"link_energy"`
	RouterEnergy     float64     `json:"router_energy"`
	Capacitance      float64     `json:"capacitance"`
	ActiveScale      float64     `json:"active_scale,omitempty"`
}

// Parse decodes a YAML (or JSON) platform description and normalizes it.
func Parse(data []byte) (*Platform, error) {
	var p Platform
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing platform: %w", err)
	}
	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads a platform description from path.
func Load(path string) (*Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading platform file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Default returns the built-in 8-core, 4-level mesh platform.
func Default() *Platform {
	p, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in platform is invalid: %v", err))
	}
	return p
}

// Normalize fills derived tables and validates dimensions.
func (p *Platform) Normalize() error {
	m := len(p.Cores)
	if m == 0 {
		return fmt.Errorf("platform defines no cores")
	}
	if m > MaxCores {
		return fmt.Errorf("platform defines %d cores, maximum is %d", m, MaxCores)
	}

	h := len(p.Cores[0].Levels)
	for i, c := range p.Cores {
		if len(c.Levels) == 0 {
			return fmt.Errorf("core %d has no DVFS levels", i)
		}
		if len(c.Levels) != h {
			return fmt.Errorf("core %d has %d levels, core 0 has %d: all cores need the same level count", i, len(c.Levels), h)
		}
		if c.IdlePower < 0 || c.Startup < 0 {
			return fmt.Errorf("core %d: idle power and startup must be non-negative", i)
		}
		for l, lv := range c.Levels {
			if lv.Frequency <= 0 {
				return fmt.Errorf("core %d level %d: frequency must be positive", i, l)
			}
			if lv.Voltage < 0 {
				return fmt.Errorf("core %d level %d: voltage must be non-negative", i, l)
			}
		}
	}
	if h > MaxLevels {
		return fmt.Errorf("platform defines %d levels, maximum is %d", h, MaxLevels)
	}

	if p.ActiveScale == 0 {
		p.ActiveScale = DefaultActiveScale
	}
	if p.Capacitance < 0 || p.LinkEnergy < 0 || p.RouterEnergy < 0 {
		return fmt.Errorf("capacitance, link and router energy must be non-negative")
	}

	if p.Band == nil {
		if p.DefaultBandwidth <= 0 {
			return fmt.Errorf("either bandwidth or a positive default_bandwidth is required")
		}
		p.Band = square(m, func(a, b int) float64 { return p.DefaultBandwidth })
	}
	if err := checkSquare("bandwidth", p.Band, m); err != nil {
		return err
	}
	for a := range p.Band {
		for b, v := range p.Band[a] {
			if a != b && v <= 0 {
				return fmt.Errorf("bandwidth[%d][%d] must be positive", a, b)
			}
		}
	}

	if p.HopTable == nil {
		if p.MeshCols <= 0 {
			p.MeshCols = int(math.Ceil(math.Sqrt(float64(m))))
		}
		p.HopTable = square(m, func(a, b int) float64 {
			return float64(manhattan(p.coord(a), p.coord(b)))
		})
	}
	return checkSquare("hops", p.HopTable, m)
}

type meshCoord struct{ x, y int }

// coord places core i row-major on the mesh.
func (p *Platform) coord(i int) meshCoord {
	return meshCoord{x: i % p.MeshCols, y: i / p.MeshCols}
}

func manhattan(a, b meshCoord) int {
	dx := a.x - b.x
	if dx < 0 {
		dx = -dx
	}
	dy := a.y - b.y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

func square(m int, f func(a, b int) float64) [][]float64 {
	out := make([][]float64, m)
	for a := range out {
		out[a] = make([]float64, m)
		for b := range out[a] {
			out[a][b] = f(a, b)
		}
	}
	return out
}

func checkSquare(name string, t [][]float64, m int) error {
	if len(t) != m {
		return fmt.Errorf("%s has %d rows, want %d", name, len(t), m)
	}
	for i, row := range t {
		if len(row) != m {
			return fmt.Errorf("%s row %d has %d columns, want %d", name, i, len(row), m)
		}
	}
	return nil
}

// Restrict returns a copy limited to the first m cores and h levels per core.
// Requests beyond what the platform defines are clamped with a warning.
func (p *Platform) Restrict(m, h int, log zerolog.Logger) (*Platform, error) {
	if m <= 0 || h <= 0 {
		return nil, fmt.Errorf("core and level counts must be positive (got %d cores, %d levels)", m, h)
	}
	if m > p.NumCores() {
		log.Warn().Int("requested", m).Int("max", p.NumCores()).Msg("core count exceeds platform, clamping")
		m = p.NumCores()
	}
	if h > p.NumLevels() {
		log.Warn().Int("requested", h).Int("max", p.NumLevels()).Msg("level count exceeds platform, clamping")
		h = p.NumLevels()
	}

	out := *p
	out.Cores = make([]Core, m)
	for i := 0; i < m; i++ {
		c := p.Cores[i]
		c.Levels = append([]Level(nil), c.Levels[:h]...)
		out.Cores[i] = c
	}
	out.Band = square(m, func(a, b int) float64 { return p.Band[a][b] })
	out.HopTable = square(m, func(a, b int) float64 { return p.HopTable[a][b] })
	return &out, nil
}

// NumCores returns M.
func (p *Platform) NumCores() int { return len(p.Cores) }

// NumLevels returns H.
func (p *Platform) NumLevels() int {
	if len(p.Cores) == 0 {
		return 0
	}
	return len(p.Cores[0].Levels)
}

func (p *Platform) Frequency(core, level int) float64 { return p.Cores[core].Levels[level].Frequency }
func (p *Platform) Voltage(core, level int) float64   { return p.Cores[core].Levels[level].Voltage }
func (p *Platform) IdlePower(core int) float64        { return p.Cores[core].IdlePower }
func (p *Platform) Startup(core int) float64          { return p.Cores[core].Startup }
func (p *Platform) Bandwidth(from, to int) float64    { return p.Band[from][to] }
func (p *Platform) Hops(from, to int) float64         { return p.HopTable[from][to] }

// MaxFrequency returns the fastest frequency available on core.
func (p *Platform) MaxFrequency(core int) float64 {
	best := 0.0
	for _, lv := range p.Cores[core].Levels {
		if lv.Frequency > best {
			best = lv.Frequency
		}
	}
	return best
}
