package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/theirongolddev/budgetscope/internal/model"
)

// Table represents a bordered text table for CLI output.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Widths  []int // optional column widths, auto-calculated if nil
}

// RenderTitle renders a centered title bar in a bordered box.
func RenderTitle(title string) string {
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Active.Border).
		Width(64).
		Align(lipgloss.Center).
		Padding(0, 1)

	return border.Render(titleStyle.Render(title))
}

// RenderTable renders a bordered table with headers and rows. A row holding
// the single cell "---" draws a separator. Cells may carry styling; widths are
// measured on the visible text.
func RenderTable(t Table) string {
	if len(t.Rows) == 0 && len(t.Headers) == 0 {
		return ""
	}

	numCols := len(t.Headers)
	if numCols == 0 && len(t.Rows) > 0 {
		numCols = len(t.Rows[0])
	}

	widths := make([]int, numCols)
	if t.Widths != nil {
		copy(widths, t.Widths)
	} else {
		for i, h := range t.Headers {
			widths[i] = max(widths[i], lipgloss.Width(h))
		}
		for _, row := range t.Rows {
			for i, cell := range row {
				if i < numCols {
					widths[i] = max(widths[i], lipgloss.Width(cell))
				}
			}
		}
	}

	var b strings.Builder

	if t.Title != "" {
		b.WriteString("  ")
		b.WriteString(headerStyle.Render(t.Title))
		b.WriteString("\n")
	}

	rule := func(left, mid, right string) {
		b.WriteString(borderStyle.Render(left))
		for i, w := range widths {
			b.WriteString(borderStyle.Render(strings.Repeat("─", w+2)))
			if i < numCols-1 {
				b.WriteString(borderStyle.Render(mid))
			}
		}
		b.WriteString(borderStyle.Render(right))
		b.WriteString("\n")
	}

	rule("╭", "┬", "╮")

	if len(t.Headers) > 0 {
		b.WriteString(borderStyle.Render("│"))
		for i, h := range t.Headers {
			b.WriteString(headerStyle.Render(" " + pad(h, widths[i], i == 0) + " "))
			if i < numCols-1 {
				b.WriteString(borderStyle.Render("│"))
			}
		}
		b.WriteString(borderStyle.Render("│"))
		b.WriteString("\n")
		rule("├", "┼", "┤")
	}

	for _, row := range t.Rows {
		if len(row) == 1 && row[0] == "---" {
			rule("├", "┼", "┤")
			continue
		}

		b.WriteString(borderStyle.Render("│"))
		for i := 0; i < numCols; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			// first column left-aligned, the rest are numeric
			b.WriteString(" " + valueStyle.Render(pad(cell, widths[i], i == 0)) + " ")
			if i < numCols-1 {
				b.WriteString(borderStyle.Render("│"))
			}
		}
		b.WriteString(borderStyle.Render("│"))
		b.WriteString("\n")
	}

	rule("╰", "┴", "╯")
	return b.String()
}

func pad(s string, w int, left bool) string {
	gap := w - lipgloss.Width(s)
	if gap <= 0 {
		return s
	}
	if left {
		return s + strings.Repeat(" ", gap)
	}
	return strings.Repeat(" ", gap) + s
}

// RenderProgressBar renders a simple text progress bar for a running load.
func RenderProgressBar(current, total int, width int) string {
	if total <= 0 {
		return ""
	}

	pct := float64(current) / float64(total)
	if pct > 1 {
		pct = 1
	}

	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("[%s] %s/%s",
		mutedStyle.Render(bar),
		FormatNumber(int64(current)),
		FormatNumber(int64(total)),
	)
}

// StatusColor returns the color for a spend status.
func StatusColor(s model.Status) lipgloss.Color {
	switch s {
	case model.StatusOverBudget:
		return Active.Red
	case model.StatusWarning:
		return Active.Orange
	default:
		return Active.Green
	}
}

// RenderStatus renders a colored status label. Suspicious readings are marked.
func RenderStatus(v model.ExpenseView) string {
	label := lipgloss.NewStyle().Foreground(StatusColor(v.Status)).Render(FormatStatus(v.Status))
	if v.Suspicious {
		label += errStyle.Render(" ?")
	}
	return label
}

// SpendBar renders spent/approved as a bar colored by status. Spend beyond the
// approved amount shows a full bar.
func SpendBar(spent, approved uint64, status model.Status, width int) string {
	pct := 0.0
	if approved > 0 {
		pct, _ = decimal.NewFromUint64(spent).Div(decimal.NewFromUint64(approved)).Float64()
	}
	if pct > 1 {
		pct = 1
	}

	bar := progress.New(
		progress.WithSolidFill(string(StatusColor(status))),
		progress.WithWidth(width),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(Active.TextDim)
	return bar.ViewAs(pct)
}

// RenderSparkline generates a unicode block sparkline from a series of values.
func RenderSparkline(values []uint64) string {
	if len(values) == 0 {
		return ""
	}

	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	hi := values[0]
	lo := values[0]
	for _, v := range values[1:] {
		hi = max(hi, v)
		lo = min(lo, v)
	}

	var b strings.Builder
	span := decimal.NewFromUint64(hi - lo)
	for _, v := range values {
		idx := 0
		if hi > lo {
			step := decimal.NewFromUint64(v - lo).Mul(decimal.NewFromInt(int64(len(blocks) - 1))).Div(span)
			idx = int(step.IntPart())
		}
		b.WriteRune(blocks[idx])
	}
	return b.String()
}
