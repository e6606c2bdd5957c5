// Package llm talks to the language model that performs the analyses.
//
// Every provider is asked for structured JSON output in whatever way its API
// supports. Calls are single-attempt: a failure is returned to the caller,
// which records it against one analysis kind and moves on.
package llm

import (
	"context"
	"fmt"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/config"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
)

// Image is a single attachment sent alongside the prompt.
type Image struct {
	Data     []byte
	MIMEType string
}

// Request is a provider-neutral completion request.
type Request struct {
	System string // Instruction that frames every request
	Prompt string
	Image  *Image // Optional; set in image input mode
}

// Provider sends one request and returns the model's raw text reply.
//
// Go Pattern: Small interfaces. Handlers, the worker and tests only need
// these three methods, so a fake provider is a few lines of test code.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req *Request) (string, error)
}

// New builds the provider selected by LLM_PROVIDER. It is called once at
// startup and the result is injected everywhere else.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.LLMTimeout)
	case config.ProviderOpenRouter:
		return NewOpenRouter(cfg.OpenRouterAPIKey, cfg.OpenRouterModel, cfg.LLMTimeout), nil
	case config.ProviderClaude:
		return NewClaude(cfg.AnthropicAPIKey, cfg.ClaudeModel, cfg.LLMTimeout), nil
	case config.ProviderOllama:
		return NewOllama(cfg.OllamaURL, cfg.OllamaModel, cfg.LLMTimeout)
	}
	return nil, models.NewConfigurationError(fmt.Sprintf("unknown LLM provider %q", cfg.LLMProvider), nil)
}
