package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"sheet-rag/internal/config"
	"sheet-rag/internal/models"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// NewEmbedder creates the embedder configured by LLMconfig.Provider.
func NewEmbedder(LLMconfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	switch LLMconfig.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIEmbedder(LLMconfig)
	default:
		return NewOllamaEmbedder(LLMconfig)
	}
}

// NewOpenAIEmbedder talks to any OpenAI compatible endpoint, OpenRouter included.
func NewOpenAIEmbedder(LLMconfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        LLMconfig.BaseURL,
		"embedding_model": LLMconfig.Model,
	}).Msg("Creating openai embedder")

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(LLMconfig.Key, "Bearer ")),
		openai.WithEmbeddingModel(LLMconfig.Model),
	}
	if LLMconfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(LLMconfig.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize client: %v", models.ErrEmbedding, err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create embedder: %v", models.ErrEmbedding, err)
	}
	return embedder, nil
}

// new ollama embedder
func NewOllamaEmbedder(LLMconfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        LLMconfig.BaseURL,
		"embedding_model": LLMconfig.Model,
	}).Msg("Creating ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(LLMconfig.BaseURL),
		ollama.WithModel(LLMconfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize client: %v", models.ErrEmbedding, err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create embedder: %v", models.ErrEmbedding, err)
	}
	return embedder, nil
}

// GenerateEmbedding embeds every chunk in one batch; the result is index-aligned with chunks.
func GenerateEmbedding(ctx context.Context, embedder embeddings.Embedder, chunks []schema.Document) ([][]float32, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks generated from content")
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.PageContent
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbedding, len(vectors), len(chunks))
	}

	log.Debug().Int("chunks", len(chunks)).Int("dimensions", len(vectors[0])).Msg("Generated embeddings")
	return vectors, nil
}

// EmbedQuery embeds a single question.
func EmbedQuery(ctx context.Context, embedder embeddings.Embedder, query string) ([]float32, error) {
	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", models.ErrEmbedding)
	}
	return vector, nil
}
