// Package render maps analysis results onto display sections: metrics,
// score bars, callouts, lists, columns, charts and image galleries.
//
// Rendering is a pure function of its inputs. It never fails: a nil result
// becomes an "analysis unavailable" placeholder, missing fields are simply
// left out, and scores are clamped to 0-100 before display. The HTML
// dashboard, the JSON API and the report exporter all consume the same
// DisplaySections.
package render

import (
	"fmt"
	"strconv"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
)

// SectionType tags the payload carried by a Section.
type SectionType string

const (
	SectionMetrics     SectionType = "metrics"
	SectionScoreBars   SectionType = "scorebars"
	SectionCallouts    SectionType = "callouts"
	SectionList        SectionType = "list"
	SectionColumns     SectionType = "columns"
	SectionSwatches    SectionType = "swatches"
	SectionChart       SectionType = "chart"
	SectionExpanders   SectionType = "expanders"
	SectionTabs        SectionType = "tabs"
	SectionText        SectionType = "text"
	SectionPlaceholder SectionType = "placeholder"
)

// Callout tones.
const (
	ToneSuccess = "success"
	ToneWarning = "warning"
	ToneInfo    = "info"
	ToneError   = "error"
)

// DisplaySections is everything shown for one analysis kind.
type DisplaySections struct {
	Kind      models.AnalysisKind `json:"kind"`
	Title     string              `json:"title"`
	Available bool                `json:"available"`
	Images    *ImagePanel         `json:"images,omitempty"`
	Sections  []Section           `json:"sections"`
}

// Section is a tagged union; only the fields matching Type are set.
type Section struct {
	Type      SectionType `json:"type"`
	Title     string      `json:"title,omitempty"`
	Text      string      `json:"text,omitempty"`
	Tone      string      `json:"tone,omitempty"`
	Items     []string    `json:"items,omitempty"`
	Metrics   []Metric    `json:"metrics,omitempty"`
	Bars      []ScoreBar  `json:"bars,omitempty"`
	Columns   []Column    `json:"columns,omitempty"`
	Swatches  []Swatch    `json:"swatches,omitempty"`
	Chart     *Chart      `json:"chart,omitempty"`
	Expanders []Expander  `json:"expanders,omitempty"`
	Tabs      []Tab       `json:"tabs,omitempty"`
}

// Metric is a single headline number.
type Metric struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Text  string  `json:"text"`
}

// ScoreBar is a labelled horizontal bar, 0-100.
type ScoreBar struct {
	Label       string  `json:"label"`
	Value       float64 `json:"value"`
	Text        string  `json:"text"`
	Description string  `json:"description,omitempty"`
}

// Column is one of several side-by-side blocks.
type Column struct {
	Title string   `json:"title"`
	Text  string   `json:"text,omitempty"`
	Items []string `json:"items,omitempty"`
}

// Swatch is a dominant colour entry.
type Swatch struct {
	Color      string `json:"color"`
	CSS        string `json:"css,omitempty"`
	Percentage string `json:"percentage,omitempty"`
	Effect     string `json:"effect,omitempty"`
}

// Chart is a vertical bar chart with values clamped to 0-100.
type Chart struct {
	Title string     `json:"title"`
	Bars  []ChartBar `json:"bars"`
}

// ChartBar is one bar.
type ChartBar struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Field is a label/value pair inside an expander or tab.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Expander is a collapsible detail block.
type Expander struct {
	Title      string   `json:"title"`
	Fields     []Field  `json:"fields,omitempty"`
	ItemsTitle string   `json:"items_title,omitempty"`
	Items      []string `json:"items,omitempty"`
}

// Tab is one pane of a tab strip.
type Tab struct {
	Title      string   `json:"title"`
	Fields     []Field  `json:"fields,omitempty"`
	ItemsTitle string   `json:"items_title,omitempty"`
	Items      []string `json:"items,omitempty"`
}

// Options controls rendering.
type Options struct {
	Images ImageOptions
	// FailureReason is shown in the placeholder when the result is nil.
	FailureReason string
}

// Render maps one kind's result onto display sections. result is what
// models.DecodeResult returns for kind: a typed pointer or nil.
func Render(kind models.AnalysisKind, result any, images []models.ExtractedImage, opts Options) DisplaySections {
	ds := DisplaySections{
		Kind:   kind,
		Title:  kind.Title(),
		Images: RenderImages(images, opts.Images),
	}

	var sections []Section
	switch r := result.(type) {
	case *models.VisualAnalysis:
		if r != nil {
			sections = renderVisual(r)
			ds.Available = true
		}
	case *models.ColorAnalysis:
		if r != nil {
			sections = renderColor(r)
			ds.Available = true
		}
	case *models.OverallImpression:
		if r != nil {
			sections = renderOverall(r)
			ds.Available = true
		}
	case *models.MarketingAnalysis:
		if r != nil {
			sections = renderMarketing(r)
			ds.Available = true
		}
	}

	if !ds.Available {
		text := "Analysis unavailable."
		if opts.FailureReason != "" {
			text = fmt.Sprintf("Analysis unavailable: %s", opts.FailureReason)
		}
		ds.Sections = []Section{{Type: SectionPlaceholder, Tone: ToneError, Text: text}}
		return ds
	}

	if len(sections) == 0 {
		sections = []Section{{Type: SectionText, Tone: ToneInfo, Text: "The analysis returned no displayable fields."}}
	}
	ds.Sections = sections
	return ds
}

// RenderRun renders all four kinds of a run in execution order.
func RenderRun(run *models.AnalysisRun, opts Options) []DisplaySections {
	out := make([]DisplaySections, 0, len(models.AnalysisKinds))
	for _, kind := range models.AnalysisKinds {
		kindOpts := opts
		kindOpts.FailureReason = run.KindErrors[kind]

		result, err := run.Bundle.Typed(kind)
		if err != nil {
			result = nil
			if kindOpts.FailureReason == "" {
				kindOpts.FailureReason = err.Error()
			}
		}
		out = append(out, Render(kind, result, run.Images, kindOpts))
	}
	return out
}

// --- small builders shared by the kind renderers ---

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func metric(label string, s models.Score) (Metric, bool) {
	if !s.Set {
		return Metric{}, false
	}
	v := s.Clamped()
	return Metric{Label: label, Value: v, Text: formatScore(v) + "/100"}, true
}

func scoreBar(label, description string, s models.Score) (ScoreBar, bool) {
	if !s.Set {
		return ScoreBar{}, false
	}
	v := s.Clamped()
	return ScoreBar{Label: label, Value: v, Text: formatScore(v), Description: description}, true
}

func metricsSection(title string, ms ...Metric) []Section {
	if len(ms) == 0 {
		return nil
	}
	return []Section{{Type: SectionMetrics, Title: title, Metrics: ms}}
}

func listSection(title string, items []string) []Section {
	items = nonEmpty(items)
	if len(items) == 0 {
		return nil
	}
	return []Section{{Type: SectionList, Title: title, Items: items}}
}

func calloutSection(title, tone string, items []string) []Section {
	items = nonEmpty(items)
	if len(items) == 0 {
		return nil
	}
	return []Section{{Type: SectionCallouts, Title: title, Tone: tone, Items: items}}
}

func textSection(title, text string) []Section {
	if text == "" {
		return nil
	}
	return []Section{{Type: SectionText, Title: title, Text: text}}
}

func columnsSection(title string, cols ...Column) []Section {
	var kept []Column
	for _, c := range cols {
		c.Items = nonEmpty(c.Items)
		if c.Text != "" || len(c.Items) > 0 {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return []Section{{Type: SectionColumns, Title: title, Columns: kept}}
}

func fields(pairs ...string) []Field {
	var out []Field
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			out = append(out, Field{Label: pairs[i], Value: pairs[i+1]})
		}
	}
	return out
}

func nonEmpty(items []string) []string {
	var out []string
	for _, it := range items {
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}
