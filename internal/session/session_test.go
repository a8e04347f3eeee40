package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheet-rag/internal/config"
	"sheet-rag/internal/models"
	"sheet-rag/internal/testutil"
)

type fixture struct {
	embedder *testutil.FakeEmbedder
	llm      *testutil.FakeLLM
	deps     Dependencies
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.App.TempDir = t.TempDir()
	f := &fixture{embedder: &testutil.FakeEmbedder{}, llm: &testutil.FakeLLM{}}
	f.deps = Dependencies{Config: cfg, Embedder: f.embedder, LLM: f.llm}
	return f
}

func revenueBook(t *testing.T) string {
	return testutil.WriteWorkbook(t, "revenue.xlsx", [][]any{{"Revenue", 1000}})
}

func TestAskBeforeIngest(t *testing.T) {
	f := newFixture(t)
	s := New("s1", f.deps)

	assert.Equal(t, StateEmpty, s.State())
	assert.Equal(t, "Please, add an Excel document first.", s.Ask(context.Background(), "What is the revenue?"))
	assert.Zero(t, f.embedder.CallCount())
	assert.Zero(t, f.llm.CallCount())

	_, err := s.Query(context.Background(), "What is the revenue?")
	assert.ErrorIs(t, err, models.ErrEmptySession)
}

func TestIngestThenAsk(t *testing.T) {
	f := newFixture(t)
	s := New("s1", f.deps)

	require.NoError(t, s.Ingest(context.Background(), revenueBook(t)))
	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, "revenue.xlsx", s.Source())
	assert.Equal(t, 1, s.Chunks())

	answer := s.Ask(context.Background(), "What is the revenue?")
	assert.Contains(t, answer, "1000")
	require.Len(t, f.llm.Prompts, 1)
	assert.Contains(t, f.llm.Prompts[0], "Revenue 1000")

	// asking again is allowed
	assert.Contains(t, s.Ask(context.Background(), "revenue?"), "1000")
	assert.Equal(t, StateReady, s.State())
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	s := New("s1", f.deps)

	s.Clear()
	assert.Equal(t, StateEmpty, s.State())

	require.NoError(t, s.Ingest(context.Background(), revenueBook(t)))
	s.Clear()
	assert.Equal(t, StateEmpty, s.State())
	assert.Empty(t, s.Source())

	calls := f.embedder.CallCount()
	assert.Equal(t, models.NoDocumentMessage, s.Ask(context.Background(), "What is the revenue?"))
	assert.Equal(t, calls, f.embedder.CallCount())
}

func TestIngestInvalidFile(t *testing.T) {
	f := newFixture(t)
	s := New("s1", f.deps)

	path := filepath.Join(t.TempDir(), "notes.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("plain text, not a workbook"), 0644))

	err := s.Ingest(context.Background(), path)
	assert.ErrorIs(t, err, models.ErrLoad)
	assert.Equal(t, StateEmpty, s.State())
	assert.Contains(t, IngestMessage(err), "Error during ingestion")
	assert.Equal(t, models.NoDocumentMessage, s.Ask(context.Background(), "anything"))
}

func TestFailedReingestDiscardsPreviousIndex(t *testing.T) {
	f := newFixture(t)
	s := New("s1", f.deps)
	require.NoError(t, s.Ingest(context.Background(), revenueBook(t)))

	err := s.Ingest(context.Background(), filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.ErrorIs(t, err, models.ErrLoad)
	assert.Equal(t, StateEmpty, s.State())
	assert.Equal(t, models.NoDocumentMessage, s.Ask(context.Background(), "What is the revenue?"))
}

func TestReingestReplacesIndex(t *testing.T) {
	f := newFixture(t)
	s := New("s1", f.deps)
	require.NoError(t, s.Ingest(context.Background(), revenueBook(t)))

	costs := testutil.WriteWorkbook(t, "costs.xlsx", [][]any{{"Cost", 250}, {"Headcount", 12}})
	require.NoError(t, s.Ingest(context.Background(), costs))
	assert.Equal(t, "costs.xlsx", s.Source())
	assert.Equal(t, 2, s.Chunks())

	// the old revenue row is gone
	assert.Equal(t, "I don't know.", s.Ask(context.Background(), "What is the revenue?"))
	assert.Contains(t, s.Ask(context.Background(), "What is the cost?"), "250")
}

func TestIngestEmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	f.embedder.Err = errors.New("model unavailable")
	s := New("s1", f.deps)

	err := s.Ingest(context.Background(), revenueBook(t))
	assert.ErrorIs(t, err, models.ErrEmbedding)
	assert.Equal(t, StateEmpty, s.State())
}

func TestIngestEmptyWorkbook(t *testing.T) {
	f := newFixture(t)
	s := New("s1", f.deps)

	err := s.Ingest(context.Background(), testutil.WriteWorkbook(t, "empty.xlsx", nil))
	assert.ErrorIs(t, err, models.ErrIndexBuild)
	assert.Equal(t, StateEmpty, s.State())
}

func TestAskGenerationFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	s := New("s1", f.deps)
	require.NoError(t, s.Ingest(context.Background(), revenueBook(t)))

	f.llm.Err = errors.New("timeout")
	answer := s.Ask(context.Background(), "What is the revenue?")
	assert.Contains(t, answer, "Error during querying")
	assert.Contains(t, answer, "timeout")
	assert.Equal(t, StateReady, s.State())

	f.llm.Err = nil
	assert.Contains(t, s.Ask(context.Background(), "What is the revenue?"), "1000")
}

func TestUploadAndClose(t *testing.T) {
	f := newFixture(t)
	s := New("s1", f.deps)

	data, err := os.ReadFile(revenueBook(t))
	require.NoError(t, err)

	require.NoError(t, s.Upload(context.Background(), data, "report.xlsx"))
	assert.Equal(t, StateReady, s.State())
	assert.FileExists(t, filepath.Join(f.deps.Config.App.TempDir, "s1", "report.xlsx"))

	require.NoError(t, s.Close())
	assert.Equal(t, StateEmpty, s.State())
	assert.NoDirExists(t, filepath.Join(f.deps.Config.App.TempDir, "s1"))
}

func TestUploadAfterCloseWritesNothing(t *testing.T) {
	f := newFixture(t)
	m := NewManager(f.deps, time.Millisecond)

	held, err := m.Create()
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	// a handler still holds the session while a new client evicts it
	_, err = m.Create()
	require.NoError(t, err)
	require.Nil(t, m.Get(held.ID))

	data, err := os.ReadFile(revenueBook(t))
	require.NoError(t, err)

	err = held.Upload(context.Background(), data, "report.xlsx")
	assert.ErrorIs(t, err, models.ErrSessionClosed)
	assert.ErrorIs(t, held.Ingest(context.Background(), revenueBook(t)), models.ErrSessionClosed)
	assert.Equal(t, StateEmpty, held.State())
	assert.NoDirExists(t, filepath.Join(f.deps.Config.App.TempDir, held.ID))
}

func TestUploadInvalidName(t *testing.T) {
	f := newFixture(t)
	s := New("s1", f.deps)

	err := s.Upload(context.Background(), []byte("x"), "")
	assert.ErrorIs(t, err, models.ErrLoad)
	assert.Equal(t, StateEmpty, s.State())
}

func TestConcurrentOperationsSettle(t *testing.T) {
	f := newFixture(t)
	s := New("s1", f.deps)
	path := revenueBook(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); _ = s.Ingest(context.Background(), path) }()
		go func() { defer wg.Done(); _ = s.Ask(context.Background(), "What is the revenue?") }()
		go func() { defer wg.Done(); s.Clear() }()
	}
	wg.Wait()

	state := s.State()
	assert.True(t, state == StateEmpty || state == StateReady, "unexpected state %s", state)
}

func TestManager(t *testing.T) {
	f := newFixture(t)
	m := NewManager(f.deps, 0)

	s, err := m.Create()
	require.NoError(t, err)
	assert.Same(t, s, m.Get(s.ID))

	same, err := m.GetOrCreate(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, same)

	other, err := m.GetOrCreate("unknown")
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, other.ID)
	assert.Equal(t, 2, m.Len())

	m.Remove(s.ID)
	assert.Nil(t, m.Get(s.ID))

	m.Close()
	assert.Zero(t, m.Len())
}

func TestManagerEvictsIdleSessions(t *testing.T) {
	f := newFixture(t)
	m := NewManager(f.deps, time.Millisecond)

	old, err := m.Create()
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = m.Create()
	require.NoError(t, err)
	assert.Nil(t, m.Get(old.ID))
	assert.Equal(t, 1, m.Len())
}
