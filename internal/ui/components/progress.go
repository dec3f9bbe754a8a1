package components

import (
	"fmt"
	"math"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/adaptest/internal/ui/theme"
)

// MetricBar displays a [0,1] metric as a labeled horizontal bar.
type MetricBar struct {
	Label string
	Value float64
	Width int
}

// NewMetricBar creates a new metric bar.
func NewMetricBar(label string, value float64, width int) MetricBar {
	return MetricBar{
		Label: label,
		Value: value,
		Width: width,
	}
}

// View renders the bar. NaN renders as "n/a" with an empty bar.
func (b MetricBar) View() string {
	var result string

	if b.Label != "" {
		result += theme.Body.Render(fmt.Sprintf("%-9s", b.Label)) + "  "
	}

	labelWidth := lipgloss.Width(result)
	valueWidth := 7 // "  0.000"

	barWidth := b.Width - labelWidth - valueWidth
	if barWidth < 4 {
		barWidth = 4
	}

	frac := b.Value
	if math.IsNaN(frac) {
		frac = 0
	}
	filled := int(float64(barWidth) * frac)
	filled = min(max(filled, 0), barWidth)
	empty := barWidth - filled

	result += theme.BarFilled.Render(strings.Repeat(" ", filled))
	result += theme.BarEmpty.Render(strings.Repeat(" ", empty))
	result += "  " + lipgloss.PlaceHorizontal(5, lipgloss.Right, FormatMetric(b.Value))

	return result
}

// FormatMetric renders a metric with three decimals, or "n/a" for NaN.
func FormatMetric(v float64) string {
	if math.IsNaN(v) {
		return theme.Missing.Render("n/a")
	}
	return fmt.Sprintf("%.3f", v)
}
