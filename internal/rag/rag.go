package rag

import (
	"context"
	"fmt"
	"strings"

	"sheet-rag/internal/chromemdb"
	"sheet-rag/internal/config"
	"sheet-rag/internal/embedding"
	"sheet-rag/internal/llmservice"
	"sheet-rag/internal/models"
	"sheet-rag/internal/parser"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

var answerPrompt = prompts.NewPromptTemplate(models.AnswerPromptTemplate, []string{"context", "question"})

// RAG answers questions from one built index. It is immutable once created.
type RAG struct {
	db       *chromemdb.VectorDBManager
	embedder embeddings.Embedder
	llm      llms.Model
	cfg      *config.Config
}

func NewRAG(db *chromemdb.VectorDBManager, embedder embeddings.Embedder, llm llms.Model, cfg *config.Config) *RAG {
	return &RAG{db: db, embedder: embedder, llm: llm, cfg: cfg}
}

// Retrieve returns up to rag.top_k chunks scoring at least rag.score_threshold.
func (r *RAG) Retrieve(ctx context.Context, query string) ([]models.SearchResult, error) {
	queryEmbedding, err := embedding.EmbedQuery(ctx, r.embedder, query)
	if err != nil {
		return nil, err
	}
	return r.db.Search(ctx, queryEmbedding, r.cfg.RAG.TopK, r.cfg.RAG.ScoreThreshold)
}

func (r *RAG) Query(ctx context.Context, query string) (*models.PromptResponse, error) {
	docs, err := r.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	contents := make([]string, 0, len(docs))
	sources := make([]string, 0, len(docs))
	for _, doc := range docs {
		contents = append(contents, doc.Content)
		sources = append(sources, fmt.Sprintf("%s (score %.2f)", parser.RowLabel(doc.Metadata), doc.Score))
	}

	prompt, err := BuildPrompt(query, strings.Join(contents, models.ContextSeparator))
	if err != nil {
		return nil, err
	}

	log.Debug().Int("context_chunks", len(docs)).Msg("Generating answer")
	answer, err := llmservice.GenerateText(ctx, r.llm, &r.cfg.InferenceLLM, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGeneration, err)
	}

	return &models.PromptResponse{
		Query:   query,
		Source:  strings.Join(sources, models.SourceSeparator),
		Content: strings.TrimSpace(answer),
	}, nil
}

// BuildPrompt renders the answer instructions around question and sheetContext.
func BuildPrompt(question, sheetContext string) (string, error) {
	prompt, err := answerPrompt.Format(map[string]any{
		"context":  sheetContext,
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return prompt, nil
}
