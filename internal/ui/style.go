package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Sprint color functions for building styled strings.
var (
	Bold        = color.New(color.Bold).SprintFunc()
	Dim         = color.New(color.Faint).SprintFunc()
	Cyan        = color.New(color.FgCyan).SprintFunc()
	Green       = color.New(color.FgGreen).SprintFunc()
	Red         = color.New(color.FgRed).SprintFunc()
	Yellow      = color.New(color.FgYellow).SprintFunc()
	Magenta     = color.New(color.FgMagenta).SprintFunc()
	BoldCyan    = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen   = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed     = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow  = color.New(color.Bold, color.FgYellow).SprintFunc()
	BoldMagenta = color.New(color.Bold, color.FgMagenta).SprintFunc()
	BoldWhite   = color.New(color.Bold, color.FgWhite).SprintFunc()
)

// PrintLogo renders the colored paretoloom logo to w.
func PrintLogo(w io.Writer) {
	frame := color.New(color.FgCyan)
	points := color.New(color.FgYellow)
	curve := color.New(color.FgCyan, color.Faint)
	brand := color.New(color.Bold, color.FgMagenta)
	tag := color.New(color.Faint)

	fmt.Fprintln(w)
	frame.Fprintln(w, "   +------------------------------+")
	points.Fprintln(w, "   | E o                          |")
	curve.Fprintln(w, "   |    `o.                       |")
	points.Fprintln(w, "   |       `o..                   |")
	curve.Fprintln(w, "   |           `o...o.....o    M  |")
	frame.Fprintln(w, "   |==============================|")
	brand.Fprintln(w, "   |  P A R E T O L O O M         |")
	frame.Fprintln(w, "   +------------------------------+")
	tag.Fprintf(w, "   %s Energy-aware DAG scheduling\n", Dim("⚡"))
	fmt.Fprintln(w)
}

// palette is a set of distinct bold colors for differentiating runs and cores.
var palette = []func(a ...interface{}) string{
	BoldMagenta,
	BoldCyan,
	BoldYellow,
	BoldGreen,
	color.New(color.Bold, color.FgHiBlue).SprintFunc(),
	color.New(color.Bold, color.FgHiRed).SprintFunc(),
}

// paletteIndex hashes a key to a palette index.
func paletteIndex(key string) int {
	var h uint32
	for _, c := range key {
		h = h*31 + uint32(c)
	}
	return int(h % uint32(len(palette)))
}

// RunPrefix returns a colored [id] prefix. Each id gets a stable color
// from the palette; long ids are shortened to their first eight runes.
func RunPrefix(id string) string {
	c := palette[paletteIndex(id)]
	short := []rune(id)
	if len(short) > 8 {
		short = short[:8]
	}
	return Dim("[") + c(string(short)) + Dim("]")
}

// CoreLabel returns a colored core label, one palette entry per core index.
func CoreLabel(core int, name string) string {
	label := fmt.Sprintf("core %d", core)
	if name != "" {
		label += " " + name
	}
	return palette[core%len(palette)](label)
}

// Gap returns the relative distance of value above bound as a colored
// percentage: green within 10%, yellow within 50%, red beyond.
func Gap(value, bound float64) string {
	if bound <= 0 {
		return Dim("n/a")
	}
	gap := (value - bound) / bound
	s := fmt.Sprintf("+%.1f%%", gap*100)
	switch {
	case gap <= 0.1:
		return Green(s)
	case gap <= 0.5:
		return Yellow(s)
	default:
		return Red(s)
	}
}

// StatusIcon returns a colored status icon for compact table display.
func StatusIcon(status string) string {
	switch status {
	case "completed":
		return Green("✓")
	case "running":
		return Cyan("●")
	case "failed":
		return Red("✗")
	case "cancelled":
		return Dim("⊘")
	default:
		return Dim("◌")
	}
}
