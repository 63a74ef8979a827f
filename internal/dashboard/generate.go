// Package dashboard renders Grafana dashboards for the GreptimeDB tables
// written by the tracker.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"courierwatch/internal/telemetry"
)

//go:embed templates/*.json.tmpl
var templateFS embed.FS

// Tables names the GreptimeDB tables the dashboard queries.
type Tables struct {
	Alerts string
	States string
}

// DefaultTables returns the table names the tracker writes to.
func DefaultTables() Tables {
	return Tables{Alerts: telemetry.AlertTableName, States: telemetry.StateTableName}
}

// Render executes every embedded dashboard template and writes the results to
// outDir. Templates read the datasource uid with {{ env "..." }}; a missing
// variable fails the render.
func Render(outDir string, tables Tables) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}

	t, err := template.New("dashboards").Funcs(funcMap).ParseFS(templateFS, "templates/*.json.tmpl")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, tpl := range t.Templates() {
		name := tpl.Name()
		if !strings.HasSuffix(name, ".tmpl") {
			continue
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(name, ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := tpl.Execute(f, tables); err != nil {
			f.Close()
			return fmt.Errorf("render %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
