// Package web embeds the dashboard's templates, stylesheet and help text.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"strings"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/render"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

//go:embed help.md
var helpMarkdown string

// chartWidth is the rendered width of journey charts, in pixels.
const chartWidth = 520

// Templates parses every page template with the shared helpers.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(Funcs()).ParseFS(templateFS, "templates/*.html")
}

// Funcs are the helpers available inside templates.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"chart": func(c *render.Chart) template.HTML { return render.ChartSVG(c, chartWidth) },
		"join":  strings.Join,
		"inc":   func(i int) int { return i + 1 },
	}
}

// Static returns the stylesheet directory for http.FS.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}
	return sub
}

// HelpMarkdown is the sidebar help panel source.
func HelpMarkdown() string {
	return helpMarkdown
}
