package planner

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

const defaultTimelineTemplate = `Schedule {{.ID}}: {{.Placed}} of {{.TotalTasks}} tasks placed
makespan {{printf "%.3f" .Breakdown.Makespan}}{{if .LowerBound}} (lower bound {{printf "%.3f" .LowerBound}}){{end}}
energy {{printf "%.3f" .Energy}} = active {{printf "%.3f" .Breakdown.Active}} + static {{printf "%.3f" .Breakdown.Static}} + comm {{printf "%.3f" .Breakdown.Comm}}
{{range .Lanes}}
core {{.Core}}{{if .Name}} ({{.Name}}){{end}}: busy {{printf "%.3f" .Busy}}, utilization {{percent .Utilization}}
{{- range .Tasks}}
  task {{.TaskID}} level {{.Level}} [{{printf "%.3f" .Start}}, {{printf "%.3f" .Finish}}]{{if .IsCritical}} critical{{end}}
{{- end}}
{{end}}`

var templateFuncs = template.FuncMap{
	"percent": func(f float64) string { return fmt.Sprintf("%.1f%%", f*100) },
}

// Render writes tl through a custom template file or the default layout.
func Render(tl *Timeline, templatePath string) (string, error) {
	tmplStr := defaultTimelineTemplate
	if templatePath != "" {
		content, err := os.ReadFile(templatePath)
		if err != nil {
			return "", fmt.Errorf("read template: %w", err)
		}
		tmplStr = string(content)
	}

	tmpl, err := template.New("timeline").Funcs(templateFuncs).Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, tl); err != nil {
		return "", fmt.Errorf("render timeline: %w", err)
	}
	return buf.String(), nil
}
