package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Ollama runs the analyses against a local model through langchaingo.
// Multimodal models such as llava accept the image as a binary part.
type Ollama struct {
	llm   *ollama.LLM
	model string
}

// NewOllama creates an Ollama provider.
func NewOllama(serverURL, model string, timeout time.Duration) (*Ollama, error) {
	l, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(serverURL),
		ollama.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init ollama: %w", err)
	}
	return &Ollama{llm: l, model: model}, nil
}

func (o *Ollama) Name() string  { return "ollama" }
func (o *Ollama) Model() string { return o.model }

// Generate implements Provider.
func (o *Ollama) Generate(ctx context.Context, req *Request) (string, error) {
	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}

	parts := []llms.ContentPart{llms.TextPart(req.Prompt)}
	if req.Image != nil {
		parts = append(parts, llms.BinaryPart(req.Image.MIMEType, req.Image.Data))
	}
	messages = append(messages, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})

	completion, err := o.llm.GenerateContent(ctx, messages, llms.WithJSONMode())
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}
	return completion.Choices[0].Content, nil
}
