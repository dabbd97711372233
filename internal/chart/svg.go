package chart

import (
	"fmt"
	"html"
	"io"
	"strings"
)

const (
	svgWidth   = 720
	svgHeight  = 420
	svgPadLeft = 80
	svgPadTop  = 50
	svgPadBot  = 70
	svgPadR    = 30
)

var palette = []string{"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd", "#8c564b"}

// RenderSVG writes the chart as a standalone SVG document.
func RenderSVG(w io.Writer, s *Spec) error {
	if err := s.Validate(); err != nil {
		return err
	}

	labels := xLabels(s)
	lo, hi := s.Bounds()
	if lo > 0 {
		lo = 0
	}
	if hi == lo {
		hi = lo + 1
	}

	plotW := float64(svgWidth - svgPadLeft - svgPadR)
	plotH := float64(svgHeight - svgPadTop - svgPadBot)
	step := plotW / float64(len(labels))
	yOf := func(v float64) float64 {
		return float64(svgPadTop) + plotH - (v-lo)/(hi-lo)*plotH
	}
	xOf := func(i int) float64 {
		return float64(svgPadLeft) + step*float64(i) + step/2
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n", svgWidth, svgHeight, svgWidth, svgHeight)
	fmt.Fprintf(&b, `<rect width="100%%" height="100%%" fill="white"/>`+"\n")
	fmt.Fprintf(&b, `<text x="%d" y="28" font-size="18" text-anchor="middle" font-family="sans-serif">%s</text>`+"\n", svgWidth/2, html.EscapeString(s.Title))

	// axes
	fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="black"/>`+"\n", svgPadLeft, svgPadTop, svgPadLeft, svgHeight-svgPadBot)
	fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="black"/>`+"\n", svgPadLeft, svgHeight-svgPadBot, svgWidth-svgPadR, svgHeight-svgPadBot)
	for i := 0; i <= 4; i++ {
		v := lo + (hi-lo)*float64(i)/4
		y := yOf(v)
		fmt.Fprintf(&b, `<text x="%d" y="%.1f" font-size="11" text-anchor="end" font-family="sans-serif">%s</text>`+"\n", svgPadLeft-6, y+4, formatValue(v))
	}
	for i, l := range labels {
		fmt.Fprintf(&b, `<text x="%.1f" y="%d" font-size="11" text-anchor="middle" font-family="sans-serif">%s</text>`+"\n", xOf(i), svgHeight-svgPadBot+16, html.EscapeString(l))
	}
	fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="13" text-anchor="middle" font-family="sans-serif">%s</text>`+"\n", svgWidth/2, svgHeight-20, html.EscapeString(s.XLabel))
	fmt.Fprintf(&b, `<text x="18" y="%d" font-size="13" text-anchor="middle" font-family="sans-serif" transform="rotate(-90 18 %d)">%s</text>`+"\n", svgHeight/2, svgHeight/2, html.EscapeString(s.YLabel))

	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	barW := step * 0.8 / float64(len(s.Series))
	for si, series := range s.Series {
		color := palette[si%len(palette)]
		switch s.Kind {
		case KindBar:
			for _, p := range series.Points {
				x := xOf(index[p.X]) - step*0.4 + barW*float64(si)
				y := yOf(p.Y)
				fmt.Fprintf(&b, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>`+"\n", x, y, barW, yOf(lo)-y, color)
			}
		case KindLine:
			pts := make([]string, 0, len(series.Points))
			for _, p := range series.Points {
				pts = append(pts, fmt.Sprintf("%.1f,%.1f", xOf(index[p.X]), yOf(p.Y)))
			}
			fmt.Fprintf(&b, `<polyline fill="none" stroke="%s" stroke-width="2" points="%s"/>`+"\n", color, strings.Join(pts, " "))
		}
	}
	b.WriteString("</svg>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// xLabels returns the distinct X labels in first-seen order.
func xLabels(s *Spec) []string {
	seen := make(map[string]bool)
	var out []string
	for _, series := range s.Series {
		for _, p := range series.Points {
			if !seen[p.X] {
				seen[p.X] = true
				out = append(out, p.X)
			}
		}
	}
	return out
}

func formatValue(v float64) string {
	switch {
	case v >= 1e6 || v <= -1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e4 || v <= -1e4:
		return fmt.Sprintf("%.0fk", v/1e3)
	}
	return fmt.Sprintf("%.0f", v)
}
