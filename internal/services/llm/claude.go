package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// claudeJSONInstruction is appended to the system prompt: the Messages API
// has no JSON response mode, so we ask for it explicitly.
const claudeJSONInstruction = "Respond with a single JSON object and nothing else. Do not wrap it in markdown."

// Claude calls Anthropic's Messages API.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaude creates a Claude provider. The SDK's own retries are disabled.
func NewClaude(apiKey, model string, timeout time.Duration) *Claude {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	)
	return &Claude{client: client, model: model, maxTokens: 8192}
}

func (c *Claude) Name() string  { return "claude" }
func (c *Claude) Model() string { return c.model }

// Generate implements Provider.
func (c *Claude) Generate(ctx context.Context, req *Request) (string, error) {
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt)}
	if req.Image != nil {
		blocks = append(blocks, anthropic.NewImageBlockBase64(
			req.Image.MIMEType,
			base64.StdEncoding.EncodeToString(req.Image.Data),
		))
	}

	system := claudeJSONInstruction
	if req.System != "" {
		system = req.System + "\n\n" + claudeJSONInstruction
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		System:    []anthropic.TextBlockParam{{Text: system}},
	})
	if err != nil {
		return "", fmt.Errorf("Claude request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from Claude API")
	}
	return text.String(), nil
}
