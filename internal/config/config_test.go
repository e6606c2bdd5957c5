package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
)

func TestLoadMissingCredential(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantVar  string
	}{
		{"gemini", ProviderGemini, "GEMINI_API_KEY"},
		{"openrouter", ProviderOpenRouter, "OPENROUTER_API_KEY"},
		{"claude", ProviderClaude, "ANTHROPIC_API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LLM_PROVIDER", tt.provider)
			t.Setenv("GEMINI_API_KEY", "")
			t.Setenv("OPENROUTER_API_KEY", "")
			t.Setenv("ANTHROPIC_API_KEY", "")

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, models.IsKind(err, models.ErrConfiguration))
			assert.Contains(t, err.Error(), tt.wantVar)
		})
	}
}

func TestLoadUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "watson")
	_, err := Load()
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrConfiguration))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", ProviderGemini)
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, InputText, cfg.AnalysisInput)
	assert.Equal(t, 15000, cfg.MaxPromptChars)
	assert.Equal(t, 1, cfg.WorkerCount)
	assert.Equal(t, 120*time.Second, cfg.LLMTimeout)
	assert.Equal(t, models.DefaultDisplayWidth, cfg.DefaultDisplayWidth)
	assert.Equal(t, []models.ImageSlot{
		{Page: 3, Number: 2, Index: 1},
		{Page: 1, Number: 1, Index: 0},
	}, cfg.ImageSlots)
}

func TestLoadReleaseRequiresSessionSecret(t *testing.T) {
	t.Setenv("LLM_PROVIDER", ProviderGemini)
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GIN_MODE", "release")
	t.Setenv("SESSION_SECRET", defaultSessionSecret)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SECRET")
}

func TestLoadRejectsBadInputMode(t *testing.T) {
	t.Setenv("LLM_PROVIDER", ProviderOllama)
	t.Setenv("ANALYSIS_INPUT", "audio")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANALYSIS_INPUT")
}

func TestParseImageSlots(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []models.ImageSlot
		wantErr bool
	}{
		{"default", DefaultImageSlots, []models.ImageSlot{{Page: 3, Number: 2, Index: 1}, {Page: 1, Number: 1, Index: 0}}, false},
		{"single with spaces", " 2 : 1 : 4 ", []models.ImageSlot{{Page: 2, Number: 1, Index: 4}}, false},
		{"empty disables slots", "", nil, false},
		{"missing field", "1:2", nil, true},
		{"not a number", "1:a:0", nil, true},
		{"zero page", "0:1:0", nil, true},
		{"negative index", "1:1:-1", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseImageSlots(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "notanint")
	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))

	t.Setenv("TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DUR", time.Second))

	t.Setenv("TEST_LIST", "a, ,b")
	assert.Equal(t, []string{"a", "b"}, getEnvList("TEST_LIST", nil))
}
