package models

// PromptResponse is the answer to one question along with where its context came from.
type PromptResponse struct {
	Query   string
	Source  string
	Content string
}

// SearchResult is a chunk returned by the vector index with its similarity score.
type SearchResult struct {
	ID       string
	Content  string
	Metadata map[string]string
	Score    float32
}
