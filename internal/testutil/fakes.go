// Package testutil holds deterministic stand-ins for the embedding and chat models.
package testutil

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/tmc/langchaingo/llms"
	"github.com/xuri/excelize/v2"
)

// Keywords are the embedding dimensions of FakeEmbedder; the last dimension catches
// text that mentions none of them.
var Keywords = []string{"revenue", "cost", "headcount"}

// FakeEmbedder maps text onto keyword counts so related texts score 1.0 and unrelated 0.
type FakeEmbedder struct {
	Err error

	mu      sync.Mutex
	Calls   int
	Queries []string
}

func (f *FakeEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(Keywords)+1)
	hit := false
	for i, kw := range Keywords {
		if n := strings.Count(lower, kw); n > 0 {
			v[i] = float32(n)
			hit = true
		}
	}
	if !hit {
		v[len(Keywords)] = 1
	}
	return v
}

func (f *FakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vector(text)
	}
	return out, nil
}

func (f *FakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	f.Queries = append(f.Queries, text)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.vector(text), nil
}

func (f *FakeEmbedder) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}

// FakeLLM answers with the first line of the prompt's context, or "I don't know."
// when the context is empty.
type FakeLLM struct {
	Err error

	mu      sync.Mutex
	Prompts []string
}

func (f *FakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	var prompt strings.Builder
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
			}
		}
	}

	f.mu.Lock()
	f.Prompts = append(f.Prompts, prompt.String())
	err := f.Err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: answer(prompt.String())}},
	}, nil
}

func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func (f *FakeLLM) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Prompts)
}

func answer(prompt string) string {
	_, after, ok := strings.Cut(prompt, "Context:")
	if !ok {
		return "I don't know."
	}
	sheetText, _, _ := strings.Cut(after, "Answer:")
	sheetText = strings.TrimSpace(sheetText)
	if sheetText == "" {
		return "I don't know."
	}
	first, _, _ := strings.Cut(sheetText, "\n")
	return "According to the sheet: " + first + "."
}

// WriteWorkbook saves rows (one slice of cell values per row) to Sheet1 of a new
// workbook in a temp dir and returns its path.
func WriteWorkbook(t testing.TB, name string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), name)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}
