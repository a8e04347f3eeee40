package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"sheet-rag/internal/chromemdb"
	"sheet-rag/internal/config"
	"sheet-rag/internal/embedding"
	"sheet-rag/internal/helper"
	"sheet-rag/internal/models"
	"sheet-rag/internal/parser"
	"sheet-rag/internal/rag"
)

type State int

const (
	StateEmpty State = iota
	StateIngesting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIngesting:
		return "ingesting"
	case StateReady:
		return "ready"
	default:
		return "empty"
	}
}

// Dependencies are the external models a session drives. They are shared across
// sessions and must be safe for concurrent use.
type Dependencies struct {
	Config   *config.Config
	Embedder embeddings.Embedder
	LLM      llms.Model
}

// pipeline is everything a successful ingest produces. It is installed or discarded as a whole.
type pipeline struct {
	index  *chromemdb.VectorDBManager
	rag    *rag.RAG
	source string
	chunks int
}

// Session owns at most one ingested spreadsheet. Ingest, Ask and Clear are serialized.
type Session struct {
	ID string

	deps    Dependencies
	tempDir string

	op sync.Mutex

	// closed is guarded by op.
	closed bool

	mu       sync.RWMutex
	state    State
	pipeline *pipeline
	lastUsed time.Time
}

func New(id string, deps Dependencies) *Session {
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	return &Session{
		ID:       id,
		deps:     deps,
		tempDir:  filepath.Join(deps.Config.App.TempDir, id),
		lastUsed: time.Now(),
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Source is the file name of the ingested spreadsheet, empty unless Ready.
func (s *Session) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pipeline == nil {
		return ""
	}
	return s.pipeline.source
}

// Chunks is the number of indexed chunks, zero unless Ready.
func (s *Session) Chunks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pipeline == nil {
		return 0
	}
	return s.pipeline.chunks
}

func (s *Session) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// Upload stores data in the session's temp directory and ingests it.
func (s *Session) Upload(ctx context.Context, data []byte, filename string) error {
	s.op.Lock()
	defer s.op.Unlock()
	if s.closed {
		return models.ErrSessionClosed
	}

	path, err := helper.SaveUpload(s.tempDir, filename, data)
	if err != nil {
		s.install(nil)
		return fmt.Errorf("%w: %v", models.ErrLoad, err)
	}
	return s.ingest(ctx, path)
}

// Ingest builds a new pipeline from the spreadsheet at filePath. On success it replaces
// any previous one; on failure the session is left Empty.
func (s *Session) Ingest(ctx context.Context, filePath string) error {
	s.op.Lock()
	defer s.op.Unlock()
	if s.closed {
		return models.ErrSessionClosed
	}
	return s.ingest(ctx, filePath)
}

// ingest runs with s.op held.
func (s *Session) ingest(ctx context.Context, filePath string) error {
	s.touch()

	s.mu.Lock()
	s.state = StateIngesting
	s.mu.Unlock()

	p, err := s.build(ctx, filePath)
	if err != nil {
		log.Error().Err(err).Str("session", s.ID).Str("file", filePath).Msg("Error during ingestion")
		s.install(nil)
		return err
	}

	s.install(p)
	log.Info().Str("session", s.ID).Str("file", p.source).Int("chunks", p.chunks).Msg("Ingested spreadsheet")
	return nil
}

func (s *Session) build(ctx context.Context, filePath string) (*pipeline, error) {
	cfg := s.deps.Config

	rows, err := parser.LoadRows(filePath, cfg.RAG.SheetReader)
	if err != nil {
		return nil, err
	}

	source := filepath.Base(filePath)
	splitter := parser.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	chunks, err := parser.SplitRows(splitter, rows, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexBuild, err)
	}

	vectors, err := embedding.GenerateEmbedding(ctx, s.deps.Embedder, chunks)
	if err != nil {
		return nil, err
	}

	index, err := chromemdb.Build(ctx, cfg.RAG.CollectionName, chunks, vectors, s.embeddingFunc())
	if err != nil {
		return nil, err
	}

	return &pipeline{
		index:  index,
		rag:    rag.NewRAG(index, s.deps.Embedder, s.deps.LLM, cfg),
		source: source,
		chunks: len(chunks),
	}, nil
}

func (s *Session) embeddingFunc() chromem.EmbeddingFunc {
	embedder := s.deps.Embedder
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedding.EmbedQuery(ctx, embedder, text)
	}
}

// install swaps in p, or resets to Empty when p is nil. Caller holds s.op.
func (s *Session) install(p *pipeline) {
	s.mu.Lock()
	old := s.pipeline
	s.pipeline = p
	if p == nil {
		s.state = StateEmpty
	} else {
		s.state = StateReady
	}
	s.mu.Unlock()

	if old != nil && old != p {
		if err := old.index.DeleteCollection(); err != nil {
			log.Warn().Err(err).Str("session", s.ID).Msg("Error dropping previous collection")
		}
	}
}

// Query answers query from the ingested spreadsheet. It returns models.ErrEmptySession
// without touching any model when nothing is ingested.
func (s *Session) Query(ctx context.Context, query string) (*models.PromptResponse, error) {
	s.op.Lock()
	defer s.op.Unlock()
	s.touch()

	s.mu.RLock()
	p := s.pipeline
	s.mu.RUnlock()
	if p == nil {
		return nil, models.ErrEmptySession
	}

	return p.rag.Query(ctx, query)
}

// Ask is Query rendered for the user: errors become messages and never change state.
func (s *Session) Ask(ctx context.Context, query string) string {
	res, err := s.Query(ctx, query)
	switch {
	case errors.Is(err, models.ErrEmptySession):
		return models.NoDocumentMessage
	case err != nil:
		log.Error().Err(err).Str("session", s.ID).Msg("Error during querying")
		return fmt.Sprintf("%s: %v", models.QueryErrorPrefix, err)
	}
	return res.Content
}

// Clear drops the ingested spreadsheet. It is a no-op on an Empty session.
func (s *Session) Clear() {
	s.op.Lock()
	defer s.op.Unlock()
	s.touch()
	s.install(nil)
}

// Close clears the session and removes its uploaded files. Later uploads and ingests
// fail with models.ErrSessionClosed, so nothing is written back into the removed directory.
func (s *Session) Close() error {
	s.op.Lock()
	defer s.op.Unlock()
	s.closed = true
	s.install(nil)
	if err := os.RemoveAll(s.tempDir); err != nil {
		return fmt.Errorf("failed to remove session files: %w", err)
	}
	return nil
}

// IngestMessage renders an ingest error for display.
func IngestMessage(err error) string {
	return fmt.Sprintf("%s: %v", models.IngestErrorPrefix, err)
}
