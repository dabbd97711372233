package chart

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	barStyles  = []lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
)

// RenderText draws the chart as horizontal bars for a terminal. Line charts
// are drawn the same way, one row per point in order.
func RenderText(s *Spec, width int) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	if width < 20 {
		width = 20
	}

	labelW := 0
	for _, l := range xLabels(s) {
		labelW = max(labelW, len(l))
	}
	_, hi := s.Bounds()
	barMax := width - labelW - 14
	if barMax < 5 {
		barMax = 5
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(s.Title))
	b.WriteString("\n")
	for si, series := range s.Series {
		style := barStyles[si%len(barStyles)]
		if len(s.Series) > 1 {
			b.WriteString(style.Render(series.Name))
			b.WriteString("\n")
		}
		for _, p := range series.Points {
			n := 0
			if hi > 0 && p.Y > 0 {
				n = int(math.Round(p.Y / hi * float64(barMax)))
			}
			fmt.Fprintf(&b, "%s %s %s\n",
				labelStyle.Render(fmt.Sprintf("%-*s", labelW, p.X)),
				style.Render(strings.Repeat("█", n)),
				formatValue(p.Y))
		}
	}
	if s.YLabel != "" {
		b.WriteString(labelStyle.Render(s.YLabel))
		b.WriteString("\n")
	}
	return b.String(), nil
}
