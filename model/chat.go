package model

import (
	"context"
	"fmt"

	"redisrag/config"
	"redisrag/types"
)

// ChatClient generates a completion for an ordered list of chat messages.
type ChatClient interface {
	Generate(ctx context.Context, messages []types.ChatMessage) (string, error)
	ModelName() string
}

// SamplingParams are forwarded to the backing model on every request.
type SamplingParams struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

func NewChatClient(cfg config.LLMConfig) (ChatClient, error) {
	params := SamplingParams{
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		MaxTokens:   cfg.MaxTokens,
	}
	switch cfg.Provider {
	case "ollama":
		return NewOllamaChat(cfg.APIURL, cfg.Model, params), nil
	case "openai":
		return NewOpenAIChat(cfg.APIURL, cfg.APIKey, cfg.Model, params)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
