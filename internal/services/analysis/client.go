package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/llm"
)

// Client sends built requests to the configured provider and parses the
// replies. There is exactly one attempt per request.
type Client struct {
	provider llm.Provider
}

// NewClient wraps a provider.
func NewClient(p llm.Provider) *Client {
	return &Client{provider: p}
}

// Run sends one request. Any failure, whether transport, provider or
// parsing, comes back as an AnalysisError for that kind.
func (c *Client) Run(ctx context.Context, built *BuiltRequest) (json.RawMessage, error) {
	start := time.Now()
	log.Info().
		Str("kind", string(built.Kind)).
		Str("provider", c.provider.Name()).
		Str("model", c.provider.Model()).
		Str("mode", built.Mode).
		Msg("🤖 Requesting analysis")

	content, err := c.provider.Generate(ctx, built.Request)
	if err != nil {
		return nil, models.NewAnalysisError(built.Kind, "LLM request failed", err)
	}

	raw, err := ParseJSONObject(content)
	if err != nil {
		return nil, models.NewAnalysisError(built.Kind, "response was not a JSON object", err)
	}

	log.Info().
		Str("kind", string(built.Kind)).
		Dur("took", time.Since(start)).
		Int("bytes", len(raw)).
		Msg("✅ Analysis received")
	return raw, nil
}

// ParseJSONObject extracts a JSON object from a model reply.
//
// JSON mode normally gives us a bare object, but models sometimes wrap it
// in markdown fences or add a sentence first, so the outermost {...} is
// tried as a fallback. Arrays and scalars are rejected.
func ParseJSONObject(content string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace([]byte(content))
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty response")
	}

	if isJSONObject(trimmed) {
		return json.RawMessage(trimmed), nil
	}

	// Look for the first balanced { ... }, skipping braces inside strings.
	start, end, depth := -1, -1, 0
	inString, escaped := false, false
	for i, c := range trimmed {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					end = i + 1
				}
			}
		}
		if end > 0 {
			break
		}
	}

	if start >= 0 && end > start {
		candidate := trimmed[start:end]
		if isJSONObject(candidate) {
			return json.RawMessage(candidate), nil
		}
	}

	return nil, fmt.Errorf("no JSON object found in response (%d bytes)", len(trimmed))
}

func isJSONObject(b []byte) bool {
	if len(b) == 0 || b[0] != '{' {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal(b, &obj) == nil
}
