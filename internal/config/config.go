package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	ReaderExcelize = "excelize"
	ReaderXLSX     = "xlsx"

	defaultSessionIdleMinutes = 60
	defaultChunkOverlap       = 100
	defaultScoreThreshold     = 0.5
)

type Config struct {
	App          AppConfig `yaml:"app"`
	EmbedLLM     LLMConfig `yaml:"embed_llm"`
	InferenceLLM LLMConfig `yaml:"inference_llm"`
	RAG          RAGConfig `yaml:"rag"`
}

type AppConfig struct {
	ListenAddr         string `yaml:"listen_addr"`
	TempDir            string `yaml:"temp_dir"`
	LogLevel           string `yaml:"log_level"`
	SessionIdleMinutes int    `yaml:"session_idle_minutes"`
	MaxUploadMB        int64  `yaml:"max_upload_mb"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Key         string  `yaml:"key"`
	Temperature float64 `yaml:"temperature"`
}

type RAGConfig struct {
	ChunkSize      int     `yaml:"chunk_size"`
	ChunkOverlap   int     `yaml:"chunk_overlap"`
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float32 `yaml:"score_threshold"`
	SheetReader    string  `yaml:"sheet_reader"`
	CollectionName string  `yaml:"collection_name"`
}

// LoadConfig reads the YAML file at path. A missing file is not an error: defaults and
// environment overrides are applied either way.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := newConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	case os.IsNotExist(err) || path == "":
	default:
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	mergeWithEnv(&cfg)
	ApplyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every value defaulted.
func Default() *Config {
	cfg := newConfig()
	ApplyDefaults(&cfg)
	return &cfg
}

// newConfig presets the fields where 0 is a valid setting, so an explicit 0 in the
// YAML file overwrites the default instead of being mistaken for unset.
func newConfig() Config {
	return Config{
		App: AppConfig{SessionIdleMinutes: defaultSessionIdleMinutes},
		RAG: RAGConfig{ChunkOverlap: defaultChunkOverlap, ScoreThreshold: defaultScoreThreshold},
	}
}

// ApplyDefaults fills fields left at their zero value. Fields that accept 0 are preset
// by newConfig instead.
func ApplyDefaults(cfg *Config) {
	if cfg.App.ListenAddr == "" {
		cfg.App.ListenAddr = ":8501"
	}
	if cfg.App.TempDir == "" {
		cfg.App.TempDir = "./temp"
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.MaxUploadMB == 0 {
		cfg.App.MaxUploadMB = 32
	}

	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = ProviderOllama
	}
	if cfg.EmbedLLM.BaseURL == "" && cfg.EmbedLLM.Provider == ProviderOllama {
		cfg.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "nomic-embed-text"
	}

	if cfg.InferenceLLM.Provider == "" {
		cfg.InferenceLLM.Provider = ProviderOllama
	}
	if cfg.InferenceLLM.BaseURL == "" && cfg.InferenceLLM.Provider == ProviderOllama {
		cfg.InferenceLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.InferenceLLM.Model == "" {
		cfg.InferenceLLM.Model = "mistral"
	}

	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 1024
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 3
	}
	if cfg.RAG.SheetReader == "" {
		cfg.RAG.SheetReader = ReaderExcelize
	}
	if cfg.RAG.CollectionName == "" {
		cfg.RAG.CollectionName = "sheet_collection"
	}
}

func (c *Config) Validate() error {
	if c.App.SessionIdleMinutes < 0 {
		return fmt.Errorf("app.session_idle_minutes must not be negative, got %d", c.App.SessionIdleMinutes)
	}
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size), got %d", c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.RAG.ScoreThreshold < 0 || c.RAG.ScoreThreshold > 1 {
		return fmt.Errorf("rag.score_threshold must be 0-1, got %f", c.RAG.ScoreThreshold)
	}
	if c.RAG.SheetReader != ReaderExcelize && c.RAG.SheetReader != ReaderXLSX {
		return fmt.Errorf("rag.sheet_reader must be %q or %q, got %q", ReaderExcelize, ReaderXLSX, c.RAG.SheetReader)
	}
	for name, llm := range map[string]LLMConfig{"embed_llm": c.EmbedLLM, "inference_llm": c.InferenceLLM} {
		if llm.Provider != ProviderOllama && llm.Provider != ProviderOpenAI {
			return fmt.Errorf("%s.provider must be %q or %q, got %q", name, ProviderOllama, ProviderOpenAI, llm.Provider)
		}
	}
	return nil
}

func mergeWithEnv(cfg *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if cfg.EmbedLLM.Provider == "" || cfg.EmbedLLM.Provider == ProviderOllama {
			cfg.EmbedLLM.BaseURL = baseURL
		}
		if cfg.InferenceLLM.Provider == "" || cfg.InferenceLLM.Provider == ProviderOllama {
			cfg.InferenceLLM.BaseURL = baseURL
		}
	}
	if key := os.Getenv("OPENROUTER_KEY"); key != "" {
		cfg.EmbedLLM.Key = key
		cfg.InferenceLLM.Key = key
	}
	if addr := os.Getenv("SHEET_RAG_LISTEN_ADDR"); addr != "" {
		cfg.App.ListenAddr = addr
	}
	if level := os.Getenv("SHEET_RAG_LOG_LEVEL"); level != "" {
		cfg.App.LogLevel = strings.ToLower(level)
	}
}
