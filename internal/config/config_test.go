package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
app:
  listen_addr: ":9000"
  temp_dir: "/tmp/sheets"
  log_level: "debug"

embed_llm:
  provider: "openai"
  base_url: "https://openrouter.ai/api/v1"
  model: "text-embedding-3-small"
  key: "Bearer abc"

inference_llm:
  provider: "ollama"
  base_url: "http://ollama:11434"
  model: "llama3"
  temperature: 0.2

rag:
  chunk_size: 512
  chunk_overlap: 50
  top_k: 5
  score_threshold: 0.7
  sheet_reader: "xlsx"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configData), 0644))
	t.Setenv("OLLAMA_BASE_URL", "")
	t.Setenv("OPENROUTER_KEY", "")
	t.Setenv("SHEET_RAG_LISTEN_ADDR", "")
	t.Setenv("SHEET_RAG_LOG_LEVEL", "")

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.App.ListenAddr)
	assert.Equal(t, "/tmp/sheets", cfg.App.TempDir)
	assert.Equal(t, ProviderOpenAI, cfg.EmbedLLM.Provider)
	assert.Equal(t, "Bearer abc", cfg.EmbedLLM.Key)
	assert.Equal(t, "llama3", cfg.InferenceLLM.Model)
	assert.Equal(t, 0.2, cfg.InferenceLLM.Temperature)
	assert.Equal(t, 512, cfg.RAG.ChunkSize)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.InDelta(t, 0.7, cfg.RAG.ScoreThreshold, 1e-6)
	assert.Equal(t, ReaderXLSX, cfg.RAG.SheetReader)
	// unset values fall back to defaults
	assert.Equal(t, "sheet_collection", cfg.RAG.CollectionName)
	assert.Equal(t, 60, cfg.App.SessionIdleMinutes)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")
	t.Setenv("OPENROUTER_KEY", "")
	t.Setenv("SHEET_RAG_LISTEN_ADDR", "")
	t.Setenv("SHEET_RAG_LOG_LEVEL", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.RAG.ChunkSize)
	assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.InDelta(t, 0.5, cfg.RAG.ScoreThreshold, 1e-6)
	assert.Equal(t, ReaderExcelize, cfg.RAG.SheetReader)
	assert.Equal(t, "mistral", cfg.InferenceLLM.Model)
	assert.Equal(t, "nomic-embed-text", cfg.EmbedLLM.Model)
	assert.Equal(t, "http://localhost:11434", cfg.EmbedLLM.BaseURL)
}

func TestLoadConfigKeepsExplicitZeros(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configData := `
app:
  session_idle_minutes: 0
rag:
  chunk_overlap: 0
  score_threshold: 0
`
	require.NoError(t, os.WriteFile(configPath, []byte(configData), 0644))
	t.Setenv("OLLAMA_BASE_URL", "")
	t.Setenv("OPENROUTER_KEY", "")
	t.Setenv("SHEET_RAG_LISTEN_ADDR", "")
	t.Setenv("SHEET_RAG_LOG_LEVEL", "")

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Zero(t, cfg.App.SessionIdleMinutes)
	assert.Zero(t, cfg.RAG.ChunkOverlap)
	assert.Zero(t, cfg.RAG.ScoreThreshold)
	// omitted values still get their defaults
	assert.Equal(t, 1024, cfg.RAG.ChunkSize)
	assert.Equal(t, 3, cfg.RAG.TopK)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://gpu-box:11434")
	t.Setenv("OPENROUTER_KEY", "secret")
	t.Setenv("SHEET_RAG_LISTEN_ADDR", ":7000")
	t.Setenv("SHEET_RAG_LOG_LEVEL", "DEBUG")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:11434", cfg.EmbedLLM.BaseURL)
	assert.Equal(t, "http://gpu-box:11434", cfg.InferenceLLM.BaseURL)
	assert.Equal(t, "secret", cfg.InferenceLLM.Key)
	assert.Equal(t, ":7000", cfg.App.ListenAddr)
	assert.Equal(t, "debug", cfg.App.LogLevel)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("rag: [unclosed"), 0644))

	_, err := LoadConfig(configPath)
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "overlap not smaller than size", mutate: func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.RAG.ScoreThreshold = 1.5 }, wantErr: true},
		{name: "unknown sheet reader", mutate: func(c *Config) { c.RAG.SheetReader = "csv" }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.InferenceLLM.Provider = "bedrock" }, wantErr: true},
		{name: "negative top k", mutate: func(c *Config) { c.RAG.TopK = -1 }, wantErr: true},
		{name: "zero overlap and threshold", mutate: func(c *Config) {
			c.RAG.ChunkOverlap = 0
			c.RAG.ScoreThreshold = 0
		}},
		{name: "negative idle minutes", mutate: func(c *Config) { c.App.SessionIdleMinutes = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
