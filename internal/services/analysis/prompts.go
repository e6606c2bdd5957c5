package analysis

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
)

//go:embed prompts.toml
var defaultPrompts []byte

// Catalog is the parsed prompt file.
type Catalog struct {
	System           string                `toml:"system"`
	TextLabel        string                `toml:"text_label"`
	ImageLabel       string                `toml:"image_label"`
	TruncationMarker string                `toml:"truncation_marker"`
	Kinds            map[string]KindPrompt `toml:"kinds"`
}

// KindPrompt is one analysis kind's fixed instruction and JSON shape.
type KindPrompt struct {
	Instruction string `toml:"instruction"`
	Schema      string `toml:"schema"`
}

// LoadCatalog parses the embedded prompt file and checks that every kind
// has an instruction.
func LoadCatalog() (*Catalog, error) {
	return parseCatalog(defaultPrompts)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}

	for _, kind := range models.AnalysisKinds {
		p, ok := c.Kinds[string(kind)]
		if !ok || strings.TrimSpace(p.Instruction) == "" {
			return nil, fmt.Errorf("prompts: missing instruction for %s", kind)
		}
	}
	if c.TruncationMarker == "" {
		c.TruncationMarker = "[Text truncated due to length...]"
	}
	return &c, nil
}

// Instruction renders a kind's full instruction: task, then the JSON
// shape to answer with.
func (c *Catalog) Instruction(kind models.AnalysisKind, language string) string {
	p := c.Kinds[string(kind)]

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(p.Instruction))
	if schema := strings.TrimSpace(p.Schema); schema != "" {
		sb.WriteString("\n\nRespond in JSON with exactly this shape:\n")
		sb.WriteString(schema)
	}
	return withLanguage(sb.String(), language)
}

// SystemPrompt renders the shared system instruction.
func (c *Catalog) SystemPrompt(language string) string {
	return withLanguage(strings.TrimSpace(c.System), language)
}

func withLanguage(s, language string) string {
	if language == "" {
		language = "English"
	}
	return strings.ReplaceAll(s, "{{language}}", language)
}
