package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/render"
)

// Markdown writes the rendered sections as a Markdown document with a
// metadata table up front.
func Markdown(run *models.AnalysisRun, sections []render.DisplaySections) string {
	var sb strings.Builder

	sb.WriteString("# Ad Analysis Report\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	fmt.Fprintf(&sb, "| File | %s |\n", escapeCell(run.Filename))
	fmt.Fprintf(&sb, "| Pages | %d |\n", run.PageCount)
	fmt.Fprintf(&sb, "| Words | %d |\n", run.WordCount)
	fmt.Fprintf(&sb, "| Images | %d |\n", len(run.Images))
	if len(run.Settings.TargetMarkets) > 0 {
		fmt.Fprintf(&sb, "| Target markets | %s |\n", escapeCell(strings.Join(run.Settings.TargetMarkets, ", ")))
	}
	if run.Settings.Industry != "" {
		fmt.Fprintf(&sb, "| Industry | %s |\n", escapeCell(run.Settings.Industry))
	}
	if !run.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "| Analyzed | %s |\n", run.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	sb.WriteString("\n")

	if run.TextTruncated {
		sb.WriteString("> The document text was truncated before analysis.\n\n")
	}
	for _, w := range run.Warnings {
		fmt.Fprintf(&sb, "> Warning: %s\n\n", w)
	}

	for _, ds := range sections {
		sb.WriteString("---\n\n")
		fmt.Fprintf(&sb, "## %s\n\n", ds.Title)
		for _, s := range ds.Sections {
			writeSection(&sb, s)
		}
	}
	return sb.String()
}

func writeSection(sb *strings.Builder, s render.Section) {
	if s.Title != "" {
		fmt.Fprintf(sb, "### %s\n\n", s.Title)
	}

	switch s.Type {
	case render.SectionMetrics:
		for _, m := range s.Metrics {
			fmt.Fprintf(sb, "- **%s**: %s\n", m.Label, m.Text)
		}
	case render.SectionScoreBars:
		for _, b := range s.Bars {
			fmt.Fprintf(sb, "- **%s**: %s", b.Label, b.Text)
			if b.Description != "" {
				fmt.Fprintf(sb, " (%s)", b.Description)
			}
			sb.WriteString("\n")
		}
	case render.SectionCallouts, render.SectionList:
		for _, it := range s.Items {
			fmt.Fprintf(sb, "- %s\n", it)
		}
	case render.SectionColumns:
		for _, c := range s.Columns {
			fmt.Fprintf(sb, "- **%s**:", c.Title)
			if c.Text != "" {
				fmt.Fprintf(sb, " %s", c.Text)
			}
			if len(c.Items) > 0 {
				fmt.Fprintf(sb, " %s", strings.Join(c.Items, ", "))
			}
			sb.WriteString("\n")
		}
	case render.SectionSwatches:
		for _, sw := range s.Swatches {
			fmt.Fprintf(sb, "- **%s**", sw.Color)
			if sw.Percentage != "" {
				fmt.Fprintf(sb, " %s", sw.Percentage)
			}
			if sw.Effect != "" {
				fmt.Fprintf(sb, ": %s", sw.Effect)
			}
			sb.WriteString("\n")
		}
	case render.SectionChart:
		if s.Chart != nil {
			for _, b := range s.Chart.Bars {
				fmt.Fprintf(sb, "- **%s**: %s/100\n", b.Label, strconv.FormatFloat(b.Value, 'f', -1, 64))
			}
		}
	case render.SectionExpanders:
		for _, e := range s.Expanders {
			writeDetail(sb, e.Title, e.Fields, e.ItemsTitle, e.Items)
		}
	case render.SectionTabs:
		for _, t := range s.Tabs {
			writeDetail(sb, t.Title, t.Fields, t.ItemsTitle, t.Items)
		}
	case render.SectionText, render.SectionPlaceholder:
		sb.WriteString(s.Text)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func writeDetail(sb *strings.Builder, title string, fields []render.Field, itemsTitle string, items []string) {
	fmt.Fprintf(sb, "#### %s\n\n", title)
	for _, f := range fields {
		fmt.Fprintf(sb, "- **%s**: %s\n", f.Label, f.Value)
	}
	if len(items) > 0 {
		if itemsTitle != "" {
			fmt.Fprintf(sb, "- **%s**:\n", itemsTitle)
		}
		for _, it := range items {
			fmt.Fprintf(sb, "  - %s\n", it)
		}
	}
	sb.WriteString("\n")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// markdownHTML is shared; goldmark instances are safe for concurrent use.
var markdownHTML = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// HTML converts Markdown to HTML for in-page previews and the help panel.
// Raw HTML in the source is not passed through.
func HTML(markdown string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdownHTML.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
