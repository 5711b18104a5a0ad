package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// Render output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

const floatDisplayPrecision = 6

// Render writes the report to w in the requested format.
func Render(w io.Writer, rep *Report, format string) error {
	switch format {
	case FormatTable:
		return renderTable(w, rep)
	case FormatJSON:
		return renderJSON(w, rep)
	case FormatYAML:
		return renderYAML(w, rep)
	default:
		return fmt.Errorf("unknown report format: %q", format)
	}
}

func renderTable(w io.Writer, rep *Report) error {
	for _, col := range rep.Columns {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetTitle(fmt.Sprintf("column %d: %s", col.Column, col.Name))
		t.AppendHeader(table.Row{"Statistic", "Value"})

		stats := make([]string, 0, len(col.Stats))
		for stat := range col.Stats {
			stats = append(stats, stat)
		}

		sort.Strings(stats)

		for _, stat := range stats {
			t.AppendRow(table.Row{stat, displayValue(col.Stats[stat])})
		}

		t.SetStyle(table.StyleLight)
		t.Render()
	}

	warn := color.New(color.FgYellow)

	for _, w2 := range rep.Warnings {
		warn.Fprintf(w, "warning: column %d (%s): %s\n", w2.Column, w2.Source, w2.Message)
	}

	return nil
}

func renderJSON(w io.Writer, rep *Report) error {
	type jsonColumn struct {
		Column int            `json:"column"`
		Name   string         `json:"name"`
		Stats  map[string]any `json:"stats"`
	}

	type jsonWarning struct {
		Column  int    `json:"column"`
		Source  string `json:"source"`
		Message string `json:"message"`
	}

	type jsonReport struct {
		Columns  []jsonColumn  `json:"columns"`
		Warnings []jsonWarning `json:"warnings,omitempty"`
	}

	out := jsonReport{}

	for _, col := range rep.Columns {
		out.Columns = append(out.Columns, jsonColumn{
			Column: col.Column,
			Name:   col.Name,
			Stats:  sanitizeStats(col.Stats),
		})
	}

	for _, warning := range rep.Warnings {
		out.Warnings = append(out.Warnings, jsonWarning{
			Column:  warning.Column,
			Source:  warning.Source,
			Message: warning.Message,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func renderYAML(w io.Writer, rep *Report) error {
	type yamlColumn struct {
		Column int            `yaml:"column"`
		Name   string         `yaml:"name"`
		Stats  map[string]any `yaml:"stats"`
	}

	type yamlWarning struct {
		Column  int    `yaml:"column"`
		Source  string `yaml:"source"`
		Message string `yaml:"message"`
	}

	type yamlReport struct {
		Columns  []yamlColumn  `yaml:"columns"`
		Warnings []yamlWarning `yaml:"warnings,omitempty"`
	}

	out := yamlReport{}

	for _, col := range rep.Columns {
		out.Columns = append(out.Columns, yamlColumn{
			Column: col.Column,
			Name:   col.Name,
			Stats:  col.Stats,
		})
	}

	for _, warning := range rep.Warnings {
		out.Warnings = append(out.Warnings, yamlWarning{
			Column:  warning.Column,
			Source:  warning.Source,
			Message: warning.Message,
		})
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()

	return enc.Encode(out)
}

// sanitizeStats replaces NaN and infinities with nil, since JSON has no
// encoding for them.
func sanitizeStats(stats map[string]any) map[string]any {
	out := make(map[string]any, len(stats))

	for stat, val := range stats {
		if f, ok := val.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			out[stat] = nil

			continue
		}

		out[stat] = val
	}

	return out
}

func displayValue(val any) string {
	switch v := val.(type) {
	case float64:
		if math.IsNaN(v) {
			return "NaN"
		}

		return fmt.Sprintf("%.*g", floatDisplayPrecision, v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
