package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/config"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/llm"
)

// Progress is reported before and after each kind.
type Progress struct {
	Kind      models.AnalysisKind
	Completed int // kinds finished so far
	Total     int
	Percent   int
	Stage     string
}

// ProgressFunc receives progress updates. It is called from the goroutine
// running Analyze.
type ProgressFunc func(Progress)

// Outcome is the result of a full run.
type Outcome struct {
	Bundle        models.AnalysisBundle
	Errors        map[models.AnalysisKind]string
	Warnings      []string
	TextTruncated bool
}

// Service runs the four analyses for one document.
type Service struct {
	builder *Builder
	client  *Client
}

// NewService creates the orchestrator.
func NewService(b *Builder, c *Client) *Service {
	return &Service{builder: b, client: c}
}

// NewFromConfig wires a Builder and Client for provider from cfg.
func NewFromConfig(cfg *config.Config, provider llm.Provider) (*Service, error) {
	builder, err := NewBuilder(BuilderOptions{
		Language:          cfg.ResponseLanguage,
		Mode:              cfg.AnalysisInput,
		PrimaryImageIndex: cfg.PrimaryImageIndex,
		MaxPromptChars:    cfg.MaxPromptChars,
	})
	if err != nil {
		return nil, err
	}
	return NewService(builder, NewClient(provider)), nil
}

// Analyze runs every kind sequentially in the fixed order. Each kind gets
// exactly one attempt; a failure leaves that kind's result null and is
// recorded in Outcome.Errors while the remaining kinds still run. The
// bundle always carries all four kinds.
func (s *Service) Analyze(ctx context.Context, in Input, progress ProgressFunc) *Outcome {
	total := len(models.AnalysisKinds)
	out := &Outcome{Errors: make(map[models.AnalysisKind]string)}

	report := func(p Progress) {
		if progress != nil {
			progress(p)
		}
	}

	for i, kind := range models.AnalysisKinds {
		report(Progress{
			Kind:      kind,
			Completed: i,
			Total:     total,
			Percent:   percent(i, total),
			Stage:     fmt.Sprintf("Running %s", kind.Title()),
		})

		raw, err := s.runOne(ctx, kind, in, out)
		if err != nil {
			log.Error().Err(err).Str("kind", string(kind)).Msg("❌ Analysis failed")
			out.Errors[kind] = err.Error()
		}
		out.Bundle.Set(kind, raw)

		report(Progress{
			Kind:      kind,
			Completed: i + 1,
			Total:     total,
			Percent:   percent(i+1, total),
			Stage:     fmt.Sprintf("Finished %s", kind.Title()),
		})
	}

	return out
}

func (s *Service) runOne(ctx context.Context, kind models.AnalysisKind, in Input, out *Outcome) (json.RawMessage, error) {
	built, err := s.builder.Build(kind, in)
	if err != nil {
		return nil, models.NewAnalysisError(kind, "could not build request", err)
	}
	if built.Truncated {
		out.TextTruncated = true
	}
	if built.Warning != "" && !slices.Contains(out.Warnings, built.Warning) {
		out.Warnings = append(out.Warnings, built.Warning)
	}

	return s.client.Run(ctx, built)
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return done * 100 / total
}
