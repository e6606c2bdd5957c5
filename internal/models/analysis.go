package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AnalysisKind names one of the four fixed analyses. The string value is
// also the key used in the downloadable report.
type AnalysisKind string

const (
	KindVisual    AnalysisKind = "visual_analysis"
	KindColor     AnalysisKind = "color_analysis"
	KindOverall   AnalysisKind = "overall_impression"
	KindMarketing AnalysisKind = "marketing_analysis"
)

// AnalysisKinds is the execution order of a run.
var AnalysisKinds = []AnalysisKind{KindVisual, KindColor, KindOverall, KindMarketing}

// Valid reports whether k is one of the four kinds.
func (k AnalysisKind) Valid() bool {
	for _, known := range AnalysisKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Title is the human-readable tab label.
func (k AnalysisKind) Title() string {
	switch k {
	case KindVisual:
		return "Visual Analysis"
	case KindColor:
		return "Color Analysis"
	case KindOverall:
		return "Overall Impression"
	case KindMarketing:
		return "Marketing Strategy"
	}
	return string(k)
}

// Score is a 0-100 rating returned by the model. LLMs are not consistent
// about emitting numbers, so "85", "85%" and 85.0 all decode. Anything else
// leaves the score unset rather than failing the surrounding object.
type Score struct {
	Value float64
	Set   bool
}

// NewScore returns a set score.
func NewScore(v float64) Score { return Score{Value: v, Set: true} }

// UnmarshalJSON implements json.Unmarshaler.
func (s *Score) UnmarshalJSON(b []byte) error {
	*s = Score{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*s = NewScore(f)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		str = strings.TrimSuffix(strings.TrimSpace(str), "%")
		// ParseFloat accepts "NaN" and "Inf"; neither is a rating.
		if f, err := strconv.ParseFloat(str, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			*s = NewScore(f)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Set {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

// Clamped returns the score limited to [0, 100].
func (s Score) Clamped() float64 {
	switch {
	case math.IsNaN(s.Value):
		return 0
	case s.Value < 0:
		return 0
	case s.Value > 100:
		return 100
	}
	return s.Value
}

// StringList accepts either a JSON array of strings or a single string.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(b []byte) error {
	*l = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}

	var many []json.RawMessage
	if err := json.Unmarshal(b, &many); err == nil {
		for _, raw := range many {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				*l = append(*l, s)
				continue
			}
			// Numbers and other scalars are kept in their literal form.
			if len(raw) > 0 && raw[0] != '{' && raw[0] != '[' {
				*l = append(*l, string(raw))
			}
		}
		return nil
	}

	var one string
	if err := json.Unmarshal(b, &one); err == nil && one != "" {
		*l = StringList{one}
	}
	return nil
}

// --- Visual analysis ---

type VisualAnalysis struct {
	KeyPoints          StringList     `json:"key_points"`
	AttentionAreas     StringList     `json:"attention_areas"`
	AttentionFlow      *AttentionFlow `json:"attention_flow"`
	EffectivenessScore Score          `json:"effectiveness_score"`
	ElementScores      *ElementScores `json:"element_scores"`
	Recommendations    StringList     `json:"recommendations"`
}

type AttentionFlow struct {
	FirstView  string `json:"first_view"`
	SecondView string `json:"second_view"`
	FinalView  string `json:"final_view"`
}

type ElementScores struct {
	Layout     Score `json:"layout"`
	Hierarchy  Score `json:"hierarchy"`
	Visibility Score `json:"visibility"`
}

// --- Color analysis ---

type ColorAnalysis struct {
	DominantColors       []DominantColor       `json:"dominant_colors"`
	ColorScheme          *ColorScheme          `json:"color_scheme"`
	PsychologicalEffects StringList            `json:"psychological_effects"`
	TargetAudienceImpact *TargetAudienceImpact `json:"target_audience_impact"`
	ColorHarmonyScore    Score                 `json:"color_harmony_score"`
	Suggestions          StringList            `json:"suggestions"`
}

type DominantColor struct {
	Color               string `json:"color"`
	Percentage          Score  `json:"percentage"`
	PsychologicalEffect string `json:"psychological_effect"`
}

type ColorScheme struct {
	Type               string `json:"type"`
	Effectiveness      Score  `json:"effectiveness"`
	HarmonyDescription string `json:"harmony_description"`
}

type TargetAudienceImpact struct {
	AgeGroups       StringList `json:"age_groups"`
	GenderAppeal    StringList `json:"gender_appeal"`
	CulturalFactors StringList `json:"cultural_factors"`
}

// --- Overall impression ---

type OverallImpression struct {
	Impressions     []Impression    `json:"impressions"`
	TargetAudience  *TargetAudience `json:"target_audience"`
	Strengths       StringList      `json:"strengths"`
	Weaknesses      StringList      `json:"weaknesses"`
	MarketFit       *MarketFit      `json:"market_fit"`
	OverallScore    Score           `json:"overall_score"`
	FuturePotential StringList      `json:"future_potential"`
}

type Impression struct {
	Aspect      string `json:"aspect"`
	Score       Score  `json:"score"`
	Description string `json:"description"`
}

type TargetAudience struct {
	Primary         StringList `json:"primary"`
	Secondary       StringList `json:"secondary"`
	EngagementLevel Score      `json:"engagement_level"`
}

type MarketFit struct {
	Score   Score      `json:"score"`
	Reasons StringList `json:"reasons"`
}

// --- Marketing strategy ---

type MarketingAnalysis struct {
	Marketing4P         *Marketing4P         `json:"marketing_4p"`
	ConsumerJourney     *ConsumerJourney     `json:"consumer_journey"`
	CompetitiveAnalysis *CompetitiveAnalysis `json:"competitive_analysis"`
	ActionableInsights  []ActionableInsight  `json:"actionable_insights"`
	NextSteps           []NextStep           `json:"next_steps"`
}

type Marketing4P struct {
	Product   *MarketingMix `json:"product"`
	Price     *MarketingMix `json:"price"`
	Place     *MarketingMix `json:"place"`
	Promotion *MarketingMix `json:"promotion"`
}

// MarketingMix covers all four P entries; each P fills a different
// positioning field.
type MarketingMix struct {
	CurrentStatus              string     `json:"current_status"`
	CompetitivePosition        string     `json:"competitive_position,omitempty"`
	MarketPositioning          string     `json:"market_positioning,omitempty"`
	ChannelEffectiveness       string     `json:"channel_effectiveness,omitempty"`
	CommunicationEffectiveness string     `json:"communication_effectiveness,omitempty"`
	Suggestions                StringList `json:"suggestions"`
}

// Position returns whichever positioning field the model filled in,
// preferring competitive_position.
func (m *MarketingMix) Position() string {
	if m == nil {
		return ""
	}
	for _, v := range []string{m.CompetitivePosition, m.MarketPositioning, m.ChannelEffectiveness, m.CommunicationEffectiveness} {
		if v != "" {
			return v
		}
	}
	return ""
}

type ConsumerJourney struct {
	Awareness     *JourneyStage `json:"awareness"`
	Consideration *JourneyStage `json:"consideration"`
	Purchase      *JourneyStage `json:"purchase"`
}

type JourneyStage struct {
	Score           Score      `json:"score"`
	Touchpoints     StringList `json:"touchpoints,omitempty"`
	DecisionFactors StringList `json:"decision_factors,omitempty"`
	Triggers        StringList `json:"triggers,omitempty"`
	Insights        StringList `json:"insights"`
}

type CompetitiveAnalysis struct {
	MarketPosition      string     `json:"market_position"`
	UniqueSellingPoints StringList `json:"unique_selling_points"`
	ThreatLevel         Score      `json:"threat_level"`
	Opportunities       StringList `json:"opportunities"`
}

type ActionableInsight struct {
	Insight        string `json:"insight"`
	Priority       Score  `json:"priority"`
	ExpectedImpact string `json:"expected_impact"`
}

type NextStep struct {
	Action          string `json:"action"`
	Timeline        string `json:"timeline"`
	ExpectedOutcome string `json:"expected_outcome"`
}

// DecodeResult maps a raw JSON result onto the typed struct for kind.
// A nil or null raw value yields (nil, nil). Field-level type mismatches
// are tolerated: encoding/json fills every field it can and the
// mismatched ones stay at their zero value.
func DecodeResult(kind AnalysisKind, raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, nil
	}

	var target any
	switch kind {
	case KindVisual:
		target = &VisualAnalysis{}
	case KindColor:
		target = &ColorAnalysis{}
	case KindOverall:
		target = &OverallImpression{}
	case KindMarketing:
		target = &MarketingAnalysis{}
	default:
		return nil, fmt.Errorf("unknown analysis kind %q", kind)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, err
		}
	}
	return target, nil
}

// AnalysisBundle holds the raw JSON object returned for each kind. Keeping
// the raw bytes means the downloaded report is exactly what the model
// returned, not a re-encoding of our typed view of it.
type AnalysisBundle struct {
	Results map[AnalysisKind]json.RawMessage
}

// Set stores a kind's result. A nil raw value records an absent result.
func (b *AnalysisBundle) Set(kind AnalysisKind, raw json.RawMessage) {
	if b.Results == nil {
		b.Results = make(map[AnalysisKind]json.RawMessage, len(AnalysisKinds))
	}
	b.Results[kind] = raw
}

// Get returns a kind's raw result, or nil.
func (b AnalysisBundle) Get(kind AnalysisKind) json.RawMessage {
	return b.Results[kind]
}

// Typed decodes a kind's result. See DecodeResult.
func (b AnalysisBundle) Typed(kind AnalysisKind) (any, error) {
	return DecodeResult(kind, b.Get(kind))
}

// MarshalJSON always emits the four kinds, in execution order, with null
// for missing results.
func (b AnalysisBundle) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kind := range AnalysisKinds {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(string(kind))
		buf.Write(key)
		buf.WriteByte(':')

		raw := b.Results[kind]
		if len(bytes.TrimSpace(raw)) == 0 {
			buf.WriteString("null")
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return nil, fmt.Errorf("result for %s is not valid JSON: %w", kind, err)
		}
		buf.Write(compact.Bytes())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the four known keys and ignores anything else.
func (b *AnalysisBundle) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	b.Results = make(map[AnalysisKind]json.RawMessage, len(AnalysisKinds))
	for _, kind := range AnalysisKinds {
		raw, ok := m[string(kind)]
		if !ok || string(bytes.TrimSpace(raw)) == "null" {
			b.Results[kind] = nil
			continue
		}
		b.Results[kind] = raw
	}
	return nil
}
