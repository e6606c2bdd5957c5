// Package analysis turns an extracted advertisement into four structured
// LLM analyses.
//
// The flow for one run is: Builder.Build → Client.Run for each kind, in the
// fixed order of models.AnalysisKinds. Service ties the two together and
// reports progress. A failed kind never stops the others.
package analysis

import (
	"fmt"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/config"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/llm"
)

// Input is the extracted content of one document.
type Input struct {
	Text   string
	Images []models.ExtractedImage
}

// BuiltRequest is a ready-to-send request plus what the builder had to do
// to produce it.
type BuiltRequest struct {
	Kind      models.AnalysisKind
	Request   *llm.Request
	Mode      string // config.InputText or config.InputImage
	Truncated bool
	Warning   string
}

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	Language          string
	Mode              string
	PrimaryImageIndex int
	MaxPromptChars    int
}

// Builder combines a kind's fixed instruction with the document content.
type Builder struct {
	catalog *Catalog
	opts    BuilderOptions
}

// NewBuilder creates a Builder over the embedded prompt catalog.
func NewBuilder(opts BuilderOptions) (*Builder, error) {
	catalog, err := LoadCatalog()
	if err != nil {
		return nil, err
	}
	if opts.Mode == "" {
		opts.Mode = config.InputText
	}
	if opts.MaxPromptChars <= 0 {
		opts.MaxPromptChars = 15000
	}
	return &Builder{catalog: catalog, opts: opts}, nil
}

// Build produces the request for one kind.
//
// Text mode appends the (possibly truncated) extracted text after the
// instruction, even when that text is empty. Image mode attaches the
// primary image; without one it falls back to text mode and says so in
// Warning.
func (b *Builder) Build(kind models.AnalysisKind, in Input) (*BuiltRequest, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown analysis kind %q", kind)
	}

	instruction := b.catalog.Instruction(kind, b.opts.Language)
	out := &BuiltRequest{
		Kind: kind,
		Mode: b.opts.Mode,
		Request: &llm.Request{
			System: b.catalog.SystemPrompt(b.opts.Language),
		},
	}

	if b.opts.Mode == config.InputImage {
		idx := b.opts.PrimaryImageIndex
		if idx >= 0 && idx < len(in.Images) {
			img := in.Images[idx]
			out.Request.Prompt = instruction + "\n\n" + b.catalog.ImageLabel
			out.Request.Image = &llm.Image{Data: img.Data, MIMEType: img.MIMEType}
			return out, nil
		}
		out.Mode = config.InputText
		out.Warning = fmt.Sprintf("%s: no image at index %d, analysed the text instead", kind, idx)
	}

	text, truncated := Truncate(in.Text, b.opts.MaxPromptChars, b.catalog.TruncationMarker)
	out.Truncated = truncated
	out.Request.Prompt = instruction + "\n\n" + b.catalog.TextLabel + "\n" + text
	return out, nil
}

// Truncate cuts text to at most max runes and appends marker on its own
// line when anything was removed. The result depends only on the inputs.
func Truncate(text string, max int, marker string) (string, bool) {
	if max <= 0 {
		return text, false
	}

	count := 0
	for i := range text {
		if count == max {
			return text[:i] + "\n\n" + marker, true
		}
		count++
	}
	return text, false
}
