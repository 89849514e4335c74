// Package output prints colored console reports for the CLI.
package output

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/fatih/color"

	"github.com/ritzau/pipegraph/pkg/model"
	"github.com/ritzau/pipegraph/pkg/preview"
)

var (
	bold   = color.New(color.Bold)
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

func severityColor(s model.Severity) *color.Color {
	switch s {
	case model.SeverityError:
		return red
	case model.SeverityWarning:
		return yellow
	default:
		return cyan
	}
}

var severityOrder = map[model.Severity]int{
	model.SeverityError:   0,
	model.SeverityWarning: 1,
	model.SeverityInfo:    2,
}

// PrintValidationReport prints the results grouped by severity, errors first
func PrintValidationReport(w io.Writer, path string, p model.Platform, results []model.ValidationResult) {
	bold.Fprintln(w, "Pipeline Validation Report")
	bold.Fprintln(w, "==========================")
	fmt.Fprintf(w, "Pipeline: %s\n", path)
	fmt.Fprintf(w, "Platform: %s\n", p)
	fmt.Fprintln(w)

	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, func(a, b model.ValidationResult) int {
		return severityOrder[a.Severity] - severityOrder[b.Severity]
	})

	counts := make(map[model.Severity]int)
	for _, r := range sorted {
		counts[r.Severity]++
		c := severityColor(r.Severity)
		c.Fprintf(w, "  %-7s ", strings.ToUpper(string(r.Severity)))
		fmt.Fprintf(w, "%s  %s\n", r.ID, r.Message)
		faint.Fprintf(w, "          rule: %s\n", r.Rule)
		if r.Suggestion != "" {
			fmt.Fprintf(w, "          Suggestion: %s\n", r.Suggestion)
		}
	}
	if len(sorted) > 0 {
		fmt.Fprintln(w)
	}

	summary := fmt.Sprintf("Summary: %d error(s), %d warning(s), %d info",
		counts[model.SeverityError], counts[model.SeverityWarning], counts[model.SeverityInfo])
	switch {
	case counts[model.SeverityError] > 0:
		red.Fprintln(w, summary)
	case counts[model.SeverityWarning] > 0:
		yellow.Fprintln(w, summary)
	default:
		green.Fprintln(w, summary)
		green.Fprintln(w, "✓ Pipeline is valid")
	}
}

// PrintSimulationReport prints per-node metrics in graph order
func PrintSimulationReport(w io.Writer, g *model.Graph, res *model.SimulationResult) {
	fmt.Fprintln(w)
	bold.Fprintf(w, "Simulation (%s model, %d rows)\n", res.Model, res.NominalRows)
	for _, n := range g.Nodes {
		m, ok := res.Nodes[n.ID]
		if !ok {
			continue
		}
		line := fmt.Sprintf("  %-20s %10.2fs %12d rows  memory %-6s", n.ID, m.DurationSeconds, m.RowsProcessed, m.MemoryImpact)
		if m.Cost > 0 {
			line += fmt.Sprintf("  %.4f %s", m.Cost, res.Currency)
		}
		if m.IsBottleneck {
			red.Fprintln(w, line+"  ← bottleneck")
		} else {
			fmt.Fprintln(w, line)
		}
	}

	fmt.Fprintf(w, "Total: %.2fs, peak memory %.0f MB", res.TotalSeconds, res.MemoryMB)
	if res.Currency != "" {
		fmt.Fprintf(w, ", cost %.4f %s", res.Cost, res.Currency)
	}
	fmt.Fprintln(w)
}

// PrintPreviewReport prints the sample rows of every evaluated node
func PrintPreviewReport(w io.Writer, res *preview.Result) {
	fmt.Fprintln(w)
	bold.Fprintln(w, "Preview")
	for _, id := range res.Order {
		rows := res.Samples[id]
		cyan.Fprintf(w, "  %s", id)
		faint.Fprintf(w, " (%d rows)\n", len(rows))
		for _, row := range rows {
			fmt.Fprintf(w, "    %s\n", formatRow(row))
		}
	}
}

func formatRow(row preview.Row) string {
	keys := slices.Sorted(maps.Keys(row))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, row[k]))
	}
	return strings.Join(parts, " ")
}
