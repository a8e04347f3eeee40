package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/schema"

	"sheet-rag/internal/helper"
	"sheet-rag/internal/models"
)

// VectorDBManager wraps a single in-memory chromem-go collection. Nothing is written to disk.
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewVectorDBManager initializes an in-memory database holding one collection.
// embeddingFunc is only used by chromem for documents stored without an embedding.
func NewVectorDBManager(collectionName string, embeddingFunc chromem.EmbeddingFunc) (*VectorDBManager, error) {
	db := chromem.NewDB()
	c, err := db.CreateCollection(collectionName, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create collection: %v", models.ErrIndexBuild, err)
	}
	return &VectorDBManager{db: db, collection: c}, nil
}

// Build creates a fresh index holding all chunks at once.
func Build(ctx context.Context, collectionName string, chunks []schema.Document, vectors [][]float32, embeddingFunc chromem.EmbeddingFunc) (*VectorDBManager, error) {
	docs, err := BuildDocuments(chunks, vectors)
	if err != nil {
		return nil, err
	}
	m, err := NewVectorDBManager(collectionName, embeddingFunc)
	if err != nil {
		return nil, err
	}

	log.Info().Msgf("Adding %d documents to vector database", len(docs))
	if err := m.CreateDocs(ctx, docs); err != nil {
		return nil, err
	}
	return m, nil
}

// BuildDocuments pairs chunks with their vectors and assigns ids.
func BuildDocuments(chunks []schema.Document, vectors [][]float32) ([]chromem.Document, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no content to index", models.ErrIndexBuild)
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks but %d vectors", models.ErrIndexBuild, len(chunks), len(vectors))
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for i, chunk := range chunks {
		if chunk.PageContent == "" {
			return nil, fmt.Errorf("%w: chunk %d has no content", models.ErrIndexBuild, i)
		}
		if len(vectors[i]) == 0 {
			return nil, fmt.Errorf("%w: chunk %d has no embedding", models.ErrIndexBuild, i)
		}
		id, err := helper.GenerateUUID()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrIndexBuild, err)
		}
		docs = append(docs, chromem.Document{
			ID:        id,
			Content:   chunk.PageContent,
			Metadata:  SanitizeMetadata(chunk.Metadata),
			Embedding: vectors[i],
		})
	}
	return docs, nil
}

// SanitizeMetadata keeps scalar values only, rendered as strings. Lists, maps and other
// complex values are dropped.
func SanitizeMetadata(metadata map[string]any) map[string]string {
	out := make(map[string]string, len(metadata))
	for key, value := range metadata {
		switch v := value.(type) {
		case string:
			out[key] = v
		case bool:
			out[key] = strconv.FormatBool(v)
		case int:
			out[key] = strconv.Itoa(v)
		case int32:
			out[key] = strconv.FormatInt(int64(v), 10)
		case int64:
			out[key] = strconv.FormatInt(v, 10)
		case float32:
			out[key] = strconv.FormatFloat(float64(v), 'f', -1, 32)
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			log.Debug().Str("key", key).Msgf("Dropping complex metadata value of type %T", value)
		}
	}
	return out
}

// add multiple documents
func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []chromem.Document) error {
	err := m.collection.AddDocuments(ctx, documents, runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("%w: failed to add documents: %v", models.ErrIndexBuild, err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// Search returns at most k chunks whose cosine similarity to queryEmbedding is at least
// threshold, most similar first. No qualifying chunk is not an error.
func (m *VectorDBManager) Search(ctx context.Context, queryEmbedding []float32, k int, threshold float32) ([]models.SearchResult, error) {
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	nResults := min(k, m.collection.Count())
	if nResults <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryEmbedding,
		NResults:       nResults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	var out []models.SearchResult
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		out = append(out, models.SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: r.Metadata,
			Score:    r.Similarity,
		})
	}

	log.Debug().Int("candidates", len(results)).Int("kept", len(out)).Float32("threshold", threshold).Msg("Similarity search")
	return out, nil
}

// delete collection
func (m *VectorDBManager) DeleteCollection() error {
	err := m.db.DeleteCollection(m.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to drop collection: %v", err)
	}
	return nil
}
