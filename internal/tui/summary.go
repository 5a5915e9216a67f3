package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"image-optimizer-go/internal/engine"
	"image-optimizer-go/internal/statistics"
)

type SummaryRow struct {
	Label string
	Value string
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		labelWidth = max(labelWidth, len(row.Label))
		valueWidth = max(valueWidth, len(row.Value))
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{hline}

	for _, row := range rows {
		label := padRight(row.Label, labelWidth)
		value := padRight(row.Value, valueWidth)
		lines = append(lines, fmt.Sprintf("%s | %s", labelStyle.Render(label), valueStyle.Render(value)))
	}

	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

// SummaryRows describes a run's totals. The size row is omitted when no
// original bytes were counted.
func SummaryRows(stats *statistics.Statistics, destination string) []SummaryRow {
	rows := []SummaryRow{
		{Label: "Outcomes", Value: fmt.Sprintf("%d", stats.Outcomes)},
		{Label: "Succeeded", Value: fmt.Sprintf("%d", stats.Successes)},
		{Label: "Failed", Value: fmt.Sprintf("%d", stats.Failures)},
	}
	if stats.HasRatio() {
		rows = append(rows, SummaryRow{Label: "Reduced size", Value: stats.ReducedSizeLabel()})
	}
	if destination != "" {
		rows = append(rows, SummaryRow{Label: "Written to", Value: destination})
	}
	return rows
}

// RenderResults renders one line per outcome, coloured by how the file
// compressed. Failures show their error.
func RenderResults(outcomes []engine.Outcome) string {
	if len(outcomes) == 0 {
		return dimStyle.Render("No outcomes")
	}

	pathWidth := 0
	for _, o := range outcomes {
		pathWidth = max(pathWidth, len(o.ItemPath()))
	}

	lines := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		path := padRight(o.ItemPath(), pathWidth)
		switch v := o.(type) {
		case engine.Success:
			r := statistics.PerItemRatio(v)
			sizes := fmt.Sprintf("%s -> %s", statistics.FormatBytes(v.OriginalSize), statistics.FormatBytes(v.FinalSize))
			lines = append(lines, fmt.Sprintf("%s  %s  %s",
				labelStyle.Render(path),
				dimStyle.Render(sizes),
				ratioStyle(statistics.Classify(r)).Render(statistics.FormatRatio(r))))
		case engine.Failure:
			lines = append(lines, fmt.Sprintf("%s  %s", errorStyle.Render(path), errorStyle.Render("error: "+v.Error)))
		}
	}
	return strings.Join(lines, "\n")
}

// PrintProgress writes one line per percentage until updates is closed.
func PrintProgress(w io.Writer, updates <-chan float64) {
	for p := range updates {
		fmt.Fprintf(w, "progress: %.0f%%\n", p)
	}
}

func ratioStyle(c statistics.Class) lipgloss.Style {
	switch c {
	case statistics.Good:
		return goodStyle
	case statistics.Bad:
		return badStyle
	default:
		return dimStyle
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

var (
	valueStyle = lipgloss.NewStyle().Foreground(ColorInk).Bold(true)
	goodStyle  = lipgloss.NewStyle().Foreground(ColorSuccess)
	badStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	errorStyle = lipgloss.NewStyle().Foreground(ColorError)
)
