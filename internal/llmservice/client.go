package llmservice

import (
	"context"
	"fmt"
	"strings"

	"sheet-rag/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewLLM creates the chat model configured by llmConfig.Provider.
func NewLLM(llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Str("base_url", llmConfig.BaseURL).Msg("Creating LLM client")

	switch llmConfig.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai client: %w", err)
		}
		return llm, nil
	default:
		llm, err := ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
		}
		return llm, nil
	}
}

// call llm
func GenerateContent(ctx context.Context, llm llms.Model, llmConfig *config.LLMConfig, tools []llms.Tool, messages []llms.MessageContent) (*llms.ContentResponse, error) {
	var opts []llms.CallOption
	if llmConfig != nil && llmConfig.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(llmConfig.Temperature))
	}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}
	return llm.GenerateContent(ctx, messages, opts...)
}

// GenerateText sends a single human prompt and returns the first choice.
func GenerateText(ctx context.Context, llm llms.Model, llmConfig *config.LLMConfig, prompt string) (string, error) {
	res, err := GenerateContent(ctx, llm, llmConfig, nil, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return "", err
	}
	if res == nil || len(res.Choices) == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	return res.Choices[0].Content, nil
}
