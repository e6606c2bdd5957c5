package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	coreFont   = "Helvetica"
	reportFont = "report"
	bodySize   = 10.0
	lineHeight = 5.0
)

// PDF lays the Markdown report out as an A4 document. The Markdown is
// parsed with goldmark and the AST is walked straight into fpdf.
//
// The core PDF fonts only cover Latin-1, so Japanese text needs FontPath
// pointing at a TTF with CJK glyphs. Without it, unsupported characters
// are replaced with '?'.
func (e *Exporter) PDF(markdown, title string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(title, true)
	pdf.SetCreator("ad-analysis-dashboard", true)

	r := &pdfRenderer{pdf: pdf, font: coreFont, size: bodySize}
	if e.FontPath != "" {
		// One TTF serves every style; fpdf cannot synthesize bold.
		for _, style := range []string{"", "B", "I", "BI"} {
			pdf.AddUTF8Font(reportFont, style, e.FontPath)
		}
		if pdf.Err() {
			log.Warn().Err(pdf.Error()).Str("font", e.FontPath).Msg("⚠️  Report font could not be loaded, falling back to core font")
			pdf.ClearError()
		} else {
			r.font = reportFont
			r.unicode = true
		}
	}
	if !r.unicode {
		r.translate = pdf.UnicodeTranslatorFromDescriptor("")
	}

	pdf.AddPage()
	r.updateFont()

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	source := []byte(markdown)
	r.source = source
	doc := md.Parser().Parse(text.NewReader(source))

	if err := ast.Walk(doc, r.walk); err != nil {
		return nil, fmt.Errorf("failed to lay out report: %w", err)
	}
	if pdf.Err() {
		return nil, fmt.Errorf("failed to generate PDF: %w", pdf.Error())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfRenderer struct {
	pdf       *fpdf.Fpdf
	source    []byte
	font      string
	unicode   bool
	translate func(string) string
	size      float64
	bold      bool
	italic    bool
	listLevel int
}

func (r *pdfRenderer) updateFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(r.font, style, r.size)
}

func (r *pdfRenderer) write(s string) {
	if !r.unicode {
		s = r.translate(latin1(s))
	}
	r.pdf.Write(lineHeight, s)
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(4)
			r.size = headingSize(node.Level)
			r.bold = true
		} else {
			r.pdf.Ln(lineHeight + 2)
			r.size = bodySize
			r.bold = false
		}
		r.updateFont()

	case *ast.Paragraph:
		if !entering {
			r.pdf.Ln(lineHeight + 2)
		}

	case *ast.TextBlock:
		if !entering {
			r.pdf.Ln(lineHeight)
		}

	case *ast.Text:
		if entering {
			r.write(string(node.Segment.Value(r.source)))
			if node.SoftLineBreak() || node.HardLineBreak() {
				r.write(" ")
			}
		}

	case *ast.String:
		if entering {
			r.write(string(node.Value))
		}

	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.updateFont()

	case *ast.Blockquote:
		r.italic = entering
		r.updateFont()

	case *ast.List:
		if entering {
			r.listLevel++
		} else {
			r.listLevel--
			if r.listLevel == 0 {
				r.pdf.Ln(2)
			}
		}

	case *ast.ListItem:
		if entering {
			r.pdf.SetX(15 + float64(r.listLevel-1)*6)
			r.write("- ")
		}

	case *ast.ThematicBreak:
		if entering {
			r.pdf.Ln(2)
			y := r.pdf.GetY()
			r.pdf.Line(15, y, 195, y)
			r.pdf.Ln(4)
		}

	case *extast.Table:
		if entering {
			r.table(node)
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

// table draws a simple two-column grid. Cells are measured in source text,
// not rendered inline markup.
func (r *pdfRenderer) table(t *extast.Table) {
	const colW, rowH = 45.0, 6.0
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		_, header := row.(*extast.TableHeader)
		r.bold = header
		r.updateFont()

		col := 0
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			w := colW
			if col > 0 {
				w = 180 - colW
			}
			s := nodeText(cell, r.source)
			if !r.unicode {
				s = r.translate(latin1(s))
			}
			r.pdf.CellFormat(w, rowH, s, "1", 0, "L", false, 0, "")
			col++
		}
		r.pdf.Ln(rowH)
	}
	r.bold = false
	r.updateFont()
	r.pdf.Ln(4)
}

func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func headingSize(level int) float64 {
	switch level {
	case 1:
		return 16
	case 2:
		return 13
	case 3:
		return 11.5
	default:
		return 10.5
	}
}

// latin1 replaces characters the core fonts cannot draw.
func latin1(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFF && !strings.ContainsRune("€‚ƒ„…†‡ˆ‰Š‹ŒŽ‘’“”•–—˜™š›œžŸ", r) {
			return '?'
		}
		return r
	}, s)
}
