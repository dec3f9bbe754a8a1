package components

import (
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/adaptest/internal/ui/theme"
)

// Table renders rows under a header with left-aligned, padded columns.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable creates an empty table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// Add appends a row. Missing cells render blank; extra cells are dropped.
func (t *Table) Add(cells ...string) {
	row := make([]string, len(t.Headers))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

func (t *Table) widths() []int {
	w := make([]int, len(t.Headers))
	for c, h := range t.Headers {
		w[c] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for c, cell := range row {
			w[c] = max(w[c], lipgloss.Width(cell))
		}
	}
	return w
}

// View renders the table.
func (t *Table) View() string {
	w := t.widths()
	total := 0
	for _, cw := range w {
		total += cw
	}
	total += 2 * max(len(w)-1, 0)

	var b strings.Builder
	b.WriteString(t.line(t.Headers, w, theme.TableHeader))
	b.WriteString("\n")
	b.WriteString(theme.TableRule.Render(strings.Repeat("─", total)))
	for _, row := range t.Rows {
		b.WriteString("\n")
		b.WriteString(t.line(row, w, theme.TableCell))
	}
	return b.String()
}

func (t *Table) line(cells []string, w []int, style lipgloss.Style) string {
	parts := make([]string, len(cells))
	for c, cell := range cells {
		padded := cell
		if c < len(cells)-1 {
			padded = lipgloss.PlaceHorizontal(w[c], lipgloss.Left, cell)
		}
		parts[c] = style.Render(padded)
	}
	return strings.Join(parts, "  ")
}

// Card renders a titled, bordered block of lines.
func Card(title string, lines ...string) string {
	body := theme.Title.Render(title)
	if len(lines) > 0 {
		body += "\n\n" + strings.Join(lines, "\n")
	}
	return theme.Card.Render(body)
}
