package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
)

func renderVisual(v *models.VisualAnalysis) []Section {
	var out []Section

	var ms []Metric
	if m, ok := metric("Effectiveness", v.EffectivenessScore); ok {
		ms = append(ms, m)
	}
	if es := v.ElementScores; es != nil {
		for _, e := range []struct {
			label string
			score models.Score
		}{{"Layout", es.Layout}, {"Hierarchy", es.Hierarchy}, {"Visibility", es.Visibility}} {
			if m, ok := metric(e.label, e.score); ok {
				ms = append(ms, m)
			}
		}
	}
	out = append(out, metricsSection("Scores", ms...)...)

	if f := v.AttentionFlow; f != nil {
		out = append(out, columnsSection("Attention flow",
			Column{Title: "First", Text: f.FirstView},
			Column{Title: "Second", Text: f.SecondView},
			Column{Title: "Final", Text: f.FinalView},
		)...)
	}

	out = append(out, calloutSection("Key points", ToneSuccess, v.KeyPoints)...)
	out = append(out, listSection("Attention areas", v.AttentionAreas)...)
	out = append(out, calloutSection("Recommendations", ToneWarning, v.Recommendations)...)
	return out
}

func renderColor(c *models.ColorAnalysis) []Section {
	var out []Section

	if cs := c.ColorScheme; cs != nil {
		if cs.Type != "" {
			out = append(out, Section{Type: SectionCallouts, Title: "Color scheme", Tone: ToneInfo, Items: []string{cs.Type}})
		}
		if bar, ok := scoreBar("Scheme effectiveness", "", cs.Effectiveness); ok {
			out = append(out, Section{Type: SectionScoreBars, Bars: []ScoreBar{bar}})
		}
		out = append(out, textSection("Harmony", cs.HarmonyDescription)...)
	}

	var swatches []Swatch
	for _, dc := range c.DominantColors {
		if dc.Color == "" && dc.PsychologicalEffect == "" {
			continue
		}
		sw := Swatch{Color: dc.Color, CSS: cssColor(dc.Color), Effect: dc.PsychologicalEffect}
		if dc.Percentage.Set {
			sw.Percentage = formatScore(dc.Percentage.Clamped()) + "%"
		}
		swatches = append(swatches, sw)
	}
	if len(swatches) > 0 {
		out = append(out, Section{Type: SectionSwatches, Title: "Dominant colors", Swatches: swatches})
	}

	if ti := c.TargetAudienceImpact; ti != nil {
		out = append(out, columnsSection("Target audience impact",
			Column{Title: "Age groups", Items: ti.AgeGroups},
			Column{Title: "Gender appeal", Items: ti.GenderAppeal},
			Column{Title: "Cultural factors", Items: ti.CulturalFactors},
		)...)
	}

	out = append(out, listSection("Psychological effects", c.PsychologicalEffects)...)
	if m, ok := metric("Color harmony", c.ColorHarmonyScore); ok {
		out = append(out, metricsSection("", m)...)
	}
	out = append(out, calloutSection("Suggestions", ToneInfo, c.Suggestions)...)
	return out
}

func renderOverall(o *models.OverallImpression) []Section {
	var out []Section

	if m, ok := metric("Overall score", o.OverallScore); ok {
		out = append(out, metricsSection("", m)...)
	}

	var bars []ScoreBar
	for _, imp := range o.Impressions {
		label := imp.Aspect
		if label == "" {
			label = "Impression"
		}
		if bar, ok := scoreBar(label, imp.Description, imp.Score); ok {
			bars = append(bars, bar)
		} else if imp.Description != "" {
			bars = append(bars, ScoreBar{Label: label, Text: "n/a", Description: imp.Description})
		}
	}
	if len(bars) > 0 {
		out = append(out, Section{Type: SectionScoreBars, Title: "Impressions", Bars: bars})
	}

	if ta := o.TargetAudience; ta != nil {
		out = append(out, columnsSection("Target audience",
			Column{Title: "Primary", Items: ta.Primary},
			Column{Title: "Secondary", Items: ta.Secondary},
		)...)
		if m, ok := metric("Engagement level", ta.EngagementLevel); ok {
			out = append(out, metricsSection("", m)...)
		}
	}

	out = append(out, columnsSection("Strengths and weaknesses",
		Column{Title: "Strengths", Items: o.Strengths},
		Column{Title: "Weaknesses", Items: o.Weaknesses},
	)...)

	if mf := o.MarketFit; mf != nil {
		if bar, ok := scoreBar("Market fit", "", mf.Score); ok {
			out = append(out, Section{Type: SectionScoreBars, Title: "Market fit", Bars: []ScoreBar{bar}})
		}
		out = append(out, listSection("Market fit reasons", mf.Reasons)...)
	}

	out = append(out, listSection("Future potential", o.FuturePotential)...)
	return out
}

func renderMarketing(m *models.MarketingAnalysis) []Section {
	var out []Section

	if p := m.Marketing4P; p != nil {
		var tabs []Tab
		for _, entry := range []struct {
			title string
			mix   *models.MarketingMix
		}{{"Product", p.Product}, {"Price", p.Price}, {"Place", p.Place}, {"Promotion", p.Promotion}} {
			if entry.mix == nil {
				continue
			}
			tab := Tab{
				Title:      entry.title,
				Fields:     fields("Current status", entry.mix.CurrentStatus, "Position", entry.mix.Position()),
				ItemsTitle: "Suggestions",
				Items:      nonEmpty(entry.mix.Suggestions),
			}
			if len(tab.Fields) > 0 || len(tab.Items) > 0 {
				tabs = append(tabs, tab)
			}
		}
		if len(tabs) > 0 {
			out = append(out, Section{Type: SectionTabs, Title: "Marketing 4P", Tabs: tabs})
		}
	}

	if cj := m.ConsumerJourney; cj != nil {
		out = append(out, renderJourney(cj)...)
	}

	if ca := m.CompetitiveAnalysis; ca != nil {
		out = append(out, textSection("Market position", ca.MarketPosition)...)
		out = append(out, listSection("Unique selling points", ca.UniqueSellingPoints)...)
		if mt, ok := metric("Threat level", ca.ThreatLevel); ok {
			out = append(out, metricsSection("", mt)...)
		}
		out = append(out, listSection("Opportunities", ca.Opportunities)...)
	}

	if exps := insightExpanders(m.ActionableInsights); len(exps) > 0 {
		out = append(out, Section{Type: SectionExpanders, Title: "Actionable insights", Expanders: exps})
	}

	var steps []Expander
	for _, s := range m.NextSteps {
		if s.Action == "" && s.Timeline == "" && s.ExpectedOutcome == "" {
			continue
		}
		steps = append(steps, Expander{
			Title:  fmt.Sprintf("Step %d: %s", len(steps)+1, s.Action),
			Fields: fields("Timeline", s.Timeline, "Expected outcome", s.ExpectedOutcome),
		})
	}
	if len(steps) > 0 {
		out = append(out, Section{Type: SectionExpanders, Title: "Next steps", Expanders: steps})
	}

	return out
}

// renderJourney emits the stage bar chart and a detail expander per stage.
// Absent stages are left out rather than drawn as zero.
func renderJourney(cj *models.ConsumerJourney) []Section {
	var out []Section
	chart := &Chart{Title: "Consumer journey"}
	var details []Expander

	for _, st := range []struct {
		label      string
		stage      *models.JourneyStage
		itemsTitle string
		items      func(*models.JourneyStage) []string
	}{
		{"Awareness", cj.Awareness, "Touchpoints", func(s *models.JourneyStage) []string { return s.Touchpoints }},
		{"Consideration", cj.Consideration, "Decision factors", func(s *models.JourneyStage) []string { return s.DecisionFactors }},
		{"Purchase", cj.Purchase, "Triggers", func(s *models.JourneyStage) []string { return s.Triggers }},
	} {
		if st.stage == nil {
			continue
		}
		if st.stage.Score.Set {
			chart.Bars = append(chart.Bars, ChartBar{Label: st.label, Value: st.stage.Score.Clamped()})
		}

		exp := Expander{Title: st.label, ItemsTitle: st.itemsTitle, Items: nonEmpty(st.items(st.stage))}
		if insights := nonEmpty(st.stage.Insights); len(insights) > 0 {
			exp.Fields = append(exp.Fields, Field{Label: "Insights", Value: strings.Join(insights, " / ")})
		}
		if len(exp.Items) > 0 || len(exp.Fields) > 0 {
			details = append(details, exp)
		}
	}

	if len(chart.Bars) > 0 {
		out = append(out, Section{Type: SectionChart, Title: chart.Title, Chart: chart})
	}
	if len(details) > 0 {
		out = append(out, Section{Type: SectionExpanders, Title: "Journey details", Expanders: details})
	}
	return out
}

// insightExpanders sorts insights by priority, highest first. Insights
// without a priority sort last and keep their relative order.
func insightExpanders(insights []models.ActionableInsight) []Expander {
	sorted := make([]models.ActionableInsight, 0, len(insights))
	for _, in := range insights {
		if in.Insight != "" || in.ExpectedImpact != "" {
			sorted = append(sorted, in)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Priority, sorted[j].Priority
		if a.Set != b.Set {
			return a.Set
		}
		return a.Value > b.Value
	})

	out := make([]Expander, 0, len(sorted))
	for _, in := range sorted {
		title := in.Insight
		if in.Priority.Set {
			title = fmt.Sprintf("%s (priority %s)", in.Insight, formatScore(in.Priority.Clamped()))
		}
		out = append(out, Expander{Title: title, Fields: fields("Expected impact", in.ExpectedImpact)})
	}
	return out
}

var hexColor = regexp.MustCompile(`#(?:[0-9a-fA-F]{3}){1,2}\b`)

// Colour names the model commonly answers with, in English and Japanese.
var namedColors = []struct {
	match, css string
}{
	{"オレンジ", "orange"}, {"ピンク", "pink"}, {"グレー", "gray"}, {"ゴールド", "gold"},
	{"ネイビー", "navy"}, {"ベージュ", "beige"},
	{"赤", "red"}, {"青", "blue"}, {"黄", "yellow"}, {"緑", "green"}, {"白", "white"},
	{"黒", "black"}, {"紫", "purple"}, {"茶", "brown"}, {"灰", "gray"}, {"金", "gold"}, {"銀", "silver"},
	{"orange", "orange"}, {"pink", "pink"}, {"purple", "purple"}, {"brown", "brown"},
	{"navy", "navy"}, {"beige", "beige"}, {"gold", "gold"}, {"silver", "silver"},
	{"gray", "gray"}, {"grey", "gray"}, {"white", "white"}, {"black", "black"},
	{"yellow", "yellow"}, {"green", "green"}, {"blue", "blue"}, {"red", "red"},
}

// cssColor guesses a CSS colour for a swatch. Unknown names get no swatch
// colour rather than a wrong one.
func cssColor(name string) string {
	if hex := hexColor.FindString(name); hex != "" {
		return hex
	}
	lower := strings.ToLower(name)
	for _, nc := range namedColors {
		if strings.Contains(lower, nc.match) {
			return nc.css
		}
	}
	return ""
}
