package render

import (
	"fmt"
	"html/template"
	"strings"
)

const (
	chartHeight  = 220
	chartPadding = 32
	barGap       = 24
)

// ChartSVG draws a chart as inline SVG. The y axis is fixed at 0-100 so
// charts from different runs compare visually.
func ChartSVG(c *Chart, width int) template.HTML {
	if c == nil || len(c.Bars) == 0 {
		return ""
	}
	if width < 200 {
		width = 200
	}

	plotW := width - 2*chartPadding
	plotH := chartHeight - 2*chartPadding
	barW := (plotW - barGap*(len(c.Bars)-1)) / len(c.Bars)
	if barW < 8 {
		barW = 8
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg class="chart" viewBox="0 0 %d %d" width="%d" height="%d" role="img" aria-label="%s">`,
		width, chartHeight, width, chartHeight, template.HTMLEscapeString(c.Title))

	// gridlines at 0, 50, 100
	for _, v := range []int{0, 50, 100} {
		y := chartPadding + plotH - plotH*v/100
		fmt.Fprintf(&sb, `<line x1="%d" y1="%d" x2="%d" y2="%d" class="grid"/>`, chartPadding, y, width-chartPadding, y)
		fmt.Fprintf(&sb, `<text x="%d" y="%d" class="axis">%d</text>`, 4, y+4, v)
	}

	for i, bar := range c.Bars {
		v := bar.Value
		if v < 0 {
			v = 0
		}
		if v > 100 {
			v = 100
		}
		h := int(float64(plotH) * v / 100)
		x := chartPadding + i*(barW+barGap)
		y := chartPadding + plotH - h

		fmt.Fprintf(&sb, `<rect x="%d" y="%d" width="%d" height="%d" class="bar"><title>%s: %s</title></rect>`,
			x, y, barW, h, template.HTMLEscapeString(bar.Label), formatScore(v))
		fmt.Fprintf(&sb, `<text x="%d" y="%d" class="value" text-anchor="middle">%s</text>`,
			x+barW/2, y-4, formatScore(v))
		fmt.Fprintf(&sb, `<text x="%d" y="%d" class="label" text-anchor="middle">%s</text>`,
			x+barW/2, chartHeight-chartPadding/2+4, template.HTMLEscapeString(bar.Label))
	}

	sb.WriteString(`</svg>`)
	return template.HTML(sb.String())
}
