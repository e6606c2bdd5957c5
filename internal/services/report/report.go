// Package report exports a finished run for download.
//
// Supported formats:
//   - json: the four-key analysis bundle (analysis_report.json)
//   - md:   Markdown built from the rendered sections
//   - pdf:  the Markdown rendition laid out with fpdf
//
// Go Pattern: Each export format is its own function and Export switches on
// the format string. Adding a format is one case and one function.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/render"
)

// JSONFilename is the fixed name of the JSON download.
const JSONFilename = "analysis_report.json"

// Supported export formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "md"
	FormatPDF      = "pdf"
)

// Formats lists the accepted values of ?format=.
var Formats = map[string]bool{FormatJSON: true, FormatMarkdown: true, FormatPDF: true}

// File is an export ready to be written to the response.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Exporter produces report files. The zero value exports PDFs with the
// core Latin font.
type Exporter struct {
	// FontPath is an optional TTF with CJK coverage for PDF output.
	FontPath string
}

// NewExporter creates an exporter.
func NewExporter(fontPath string) *Exporter {
	return &Exporter{FontPath: fontPath}
}

// Export renders run in format. sections are the run's rendered tabs; they
// are only used by the md and pdf formats.
func (e *Exporter) Export(run *models.AnalysisRun, sections []render.DisplaySections, format string) (*File, error) {
	switch format {
	case FormatJSON:
		data, err := JSON(run.Bundle)
		if err != nil {
			return nil, err
		}
		return &File{Name: JSONFilename, ContentType: "application/json; charset=utf-8", Data: data}, nil

	case FormatMarkdown:
		md := Markdown(run, sections)
		return &File{Name: baseName(run) + ".md", ContentType: "text/markdown; charset=utf-8", Data: []byte(md)}, nil

	case FormatPDF:
		data, err := e.PDF(Markdown(run, sections), run.Filename)
		if err != nil {
			return nil, err
		}
		return &File{Name: baseName(run) + ".pdf", ContentType: "application/pdf", Data: data}, nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// JSON serializes the bundle with exactly the four kind keys, two-space
// indented. Non-ASCII text is written as-is and null results stay null.
func JSON(b models.AnalysisBundle) ([]byte, error) {
	// MarshalJSON is called directly so encoding/json does not HTML-escape
	// the model's text on the way out.
	compact, err := b.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis bundle: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to indent analysis bundle: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// baseName derives a download name from the uploaded filename.
func baseName(run *models.AnalysisRun) string {
	name := strings.TrimSuffix(run.Filename, ".pdf")
	name = strings.TrimSuffix(name, ".PDF")
	name = sanitizeFilename(name)
	if name == "" {
		name = run.ID
	}
	return name + "_analysis"
}

// sanitizeFilename removes characters that aren't safe for filenames.
// Go Pattern: Keep it simple. Replace unsafe characters with hyphens and
// trim the result; this only feeds the Content-Disposition header.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-",
		"?", "-", "\"", "-", "<", "-", ">", "-",
		"|", "-", "\n", " ", "\r", "",
	)
	name = replacer.Replace(name)

	for strings.Contains(name, "  ") {
		name = strings.ReplaceAll(name, "  ", " ")
	}
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	name = strings.TrimSpace(name)

	// Limit length without splitting a multi-byte rune.
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}
	return name
}
