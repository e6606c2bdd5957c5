// Package config handles application configuration.
//
// Go Pattern: Configuration via environment variables with sensible defaults.
// A .env file (if present) is loaded by main before Load runs, so local
// development can keep API keys out of the shell profile.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
)

// LLM providers the dashboard can talk to.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderClaude     = "claude"
	ProviderOllama     = "ollama"
)

// Analysis input modes. "text" sends the extracted text layer with each
// prompt, "image" attaches the primary extracted image instead.
const (
	InputText  = "text"
	InputImage = "image"
)

const defaultSessionSecret = "dev-session-secret-change-in-production"

// DefaultImageSlots is the fixed pair of images shown beside each analysis
// tab: the 2nd image on page 3 (overall index 1) and the 1st image on page 1
// (overall index 0). The mapping assumes the demo advertisement layout and is
// overridable with IMAGE_SLOTS. Overall indexes count images in page order,
// then in the order each page's content paints them.
const DefaultImageSlots = "3:2:1,1:1:0"

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port      string
	GinMode   string // "debug", "release", or "test"
	LogLevel  string
	LogFormat string // "console" or "json"

	// LLM provider selection and credentials
	LLMProvider      string
	GeminiAPIKey     string
	GeminiModel      string
	OpenRouterAPIKey string
	OpenRouterModel  string
	AnthropicAPIKey  string
	ClaudeModel      string
	OllamaURL        string
	OllamaModel      string
	LLMTimeout       time.Duration

	// Analysis behaviour
	ResponseLanguage  string
	AnalysisInput     string
	PrimaryImageIndex int
	MaxPromptChars    int
	ImageSlots        []models.ImageSlot

	// Upload and display
	MaxUploadBytes      int64
	SoftUploadBytes     int64
	DefaultDisplayWidth int

	// Worker settings
	WorkerCount  int // One worker keeps runs strictly sequential
	JobQueueSize int

	// Sessions
	SessionSecret string
	SessionTTL    time.Duration

	// Optional bcrypt hash gating the dashboard behind a password
	DashboardPasswordHash string

	// Optional TTF font with CJK coverage for PDF reports
	ReportFontPath string

	// CORS
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
//
// A missing credential for the selected LLM provider is a
// ConfigurationError: the dashboard cannot do anything useful without it,
// so main refuses to start.
func Load() (*Config, error) {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		GinMode:   getEnv("GIN_MODE", "debug"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		LLMProvider:      strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterModel:  getEnv("OPENROUTER_MODEL", "google/gemini-2.5-flash"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		ClaudeModel:      getEnv("CLAUDE_MODEL", "claude-sonnet-4-5"),
		OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:      getEnv("OLLAMA_MODEL", "llava"),
		LLMTimeout:       getEnvDuration("LLM_TIMEOUT", 120*time.Second),

		ResponseLanguage:  getEnv("RESPONSE_LANGUAGE", "English"),
		AnalysisInput:     strings.ToLower(getEnv("ANALYSIS_INPUT", InputText)),
		PrimaryImageIndex: getEnvInt("PRIMARY_IMAGE_INDEX", 0),
		MaxPromptChars:    getEnvInt("MAX_PROMPT_CHARS", 15000),

		MaxUploadBytes:      int64(getEnvInt("MAX_UPLOAD_BYTES", 50<<20)),
		SoftUploadBytes:     int64(getEnvInt("SOFT_UPLOAD_BYTES", 20<<20)),
		DefaultDisplayWidth: getEnvInt("DEFAULT_DISPLAY_WIDTH", models.DefaultDisplayWidth),

		WorkerCount:  getEnvInt("WORKER_COUNT", 1),
		JobQueueSize: getEnvInt("JOB_QUEUE_SIZE", 16),

		SessionSecret: getEnv("SESSION_SECRET", defaultSessionSecret),
		SessionTTL:    getEnvDuration("SESSION_TTL", 2*time.Hour),

		DashboardPasswordHash: getEnv("DASHBOARD_PASSWORD_HASH", ""),
		ReportFontPath:        getEnv("REPORT_FONT_PATH", ""),

		AllowedOrigins: getEnvList("CORS_ORIGIN", []string{"http://localhost:5173"}),
	}

	slots, err := ParseImageSlots(getEnv("IMAGE_SLOTS", DefaultImageSlots))
	if err != nil {
		return nil, models.NewConfigurationError("IMAGE_SLOTS is invalid", err)
	}
	cfg.ImageSlots = slots

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := c.checkCredential(); err != nil {
		return err
	}

	if c.AnalysisInput != InputText && c.AnalysisInput != InputImage {
		return models.NewConfigurationError(
			fmt.Sprintf("ANALYSIS_INPUT must be %q or %q, got %q", InputText, InputImage, c.AnalysisInput), nil)
	}
	if c.MaxPromptChars <= 0 {
		return models.NewConfigurationError("MAX_PROMPT_CHARS must be positive", nil)
	}
	if c.PrimaryImageIndex < 0 {
		return models.NewConfigurationError("PRIMARY_IMAGE_INDEX must not be negative", nil)
	}
	if c.WorkerCount < 1 {
		c.WorkerCount = 1
	}
	if c.JobQueueSize < 1 {
		c.JobQueueSize = 1
	}
	c.DefaultDisplayWidth = models.ClampDisplayWidth(c.DefaultDisplayWidth)

	// In release mode, we refuse to start with the default secret.
	if c.GinMode == "release" && c.SessionSecret == defaultSessionSecret {
		return models.NewConfigurationError("SESSION_SECRET must be set in production; refusing to start with default secret", nil)
	}
	return nil
}

// checkCredential makes sure the selected provider can authenticate.
func (c *Config) checkCredential() error {
	missing := func(name string) error {
		return models.NewConfigurationError(
			fmt.Sprintf("%s is not set; add it to your environment or .env file to use LLM_PROVIDER=%s", name, c.LLMProvider), nil)
	}

	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return missing("GEMINI_API_KEY")
		}
	case ProviderOpenRouter:
		if c.OpenRouterAPIKey == "" {
			return missing("OPENROUTER_API_KEY")
		}
	case ProviderClaude:
		if c.AnthropicAPIKey == "" {
			return missing("ANTHROPIC_API_KEY")
		}
	case ProviderOllama:
		if c.OllamaURL == "" {
			return missing("OLLAMA_URL")
		}
	default:
		return models.NewConfigurationError(
			fmt.Sprintf("unknown LLM_PROVIDER %q (expected gemini, openrouter, claude or ollama)", c.LLMProvider), nil)
	}
	return nil
}

// ParseImageSlots parses "page:number:index" triples separated by commas.
func ParseImageSlots(raw string) ([]models.ImageSlot, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var slots []models.ImageSlot
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("slot %q: want page:number:index", entry)
		}

		nums := make([]int, 3)
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("slot %q: %w", entry, err)
			}
			nums[i] = n
		}
		if nums[0] < 1 || nums[1] < 1 || nums[2] < 0 {
			return nil, fmt.Errorf("slot %q: page and number start at 1, index at 0", entry)
		}

		slots = append(slots, models.ImageSlot{Page: nums[0], Number: nums[1], Index: nums[2]})
	}
	return slots, nil
}

// getEnv reads an environment variable with a fallback default.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvInt reads an integer environment variable with a fallback.
func getEnvInt(key string, fallback int) int {
	str := getEnv(key, "")
	if str == "" {
		return fallback
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return fallback
	}
	return val
}

// getEnvDuration accepts Go duration strings like "90s" or "2h".
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	str := getEnv(key, "")
	if str == "" {
		return fallback
	}
	d, err := time.ParseDuration(str)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	str := getEnv(key, "")
	if str == "" {
		return fallback
	}
	var out []string
	for _, v := range strings.Split(str, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
