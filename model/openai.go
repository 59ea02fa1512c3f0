package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"redisrag/types"
)

const openaiTimeout = 60 * time.Second

// Known dimensions for the common OpenAI embedding models. The configured
// vector size wins when it differs.
var openaiModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder creates embeddings through an OpenAI-compatible
// /embeddings endpoint.
type OpenAIEmbedder struct {
	client *http.Client
	apiURL string
	apiKey string
	model  string
	dim    int
}

type openaiEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func NewOpenAIEmbedder(apiURL, apiKey, model string, dim int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embedder requires an API key")
	}
	if dim == 0 {
		dim = openaiModelDimensions[model]
	}
	if dim == 0 {
		return nil, fmt.Errorf("unknown dimensions for model %q", model)
	}
	return &OpenAIEmbedder{
		client: &http.Client{Timeout: openaiTimeout},
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		dim:    dim,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("openai returned no embedding")
	}
	return embeddings[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openaiEmbedRequest{Model: e.model, Input: texts}
	// Only the v3 models accept a dimensions override.
	if e.model == "text-embedding-3-small" || e.model == "text-embedding-3-large" {
		req.Dimensions = e.dim
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var embedResp openaiEmbedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if embedResp.Error != nil {
		return nil, fmt.Errorf("openai API error: %s", embedResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	out := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		if data.Index < 0 || data.Index >= len(out) {
			return nil, fmt.Errorf("openai returned embedding for unknown index %d", data.Index)
		}
		out[data.Index] = toFloat32(data.Embedding)
	}
	return out, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dim }

func (e *OpenAIEmbedder) ModelName() string { return e.model }

// Ping checks reachability and the API key against /models.
func (e *OpenAIEmbedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.apiURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("openai API error: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}

// OpenAIChat generates completions through an OpenAI-compatible
// /chat/completions endpoint.
type OpenAIChat struct {
	client *http.Client
	apiURL string
	apiKey string
	model  string
	params SamplingParams
}

type openaiChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openaiChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	TopP        float64             `json:"top_p"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message openaiChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenAIChat(apiURL, apiKey, model string, params SamplingParams) (*OpenAIChat, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai chat requires an API key")
	}
	return &OpenAIChat{
		client: &http.Client{Timeout: openaiTimeout},
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		params: params,
	}, nil
}

func (c *OpenAIChat) Generate(ctx context.Context, messages []types.ChatMessage) (string, error) {
	req := openaiChatRequest{
		Model:       c.model,
		Temperature: c.params.Temperature,
		TopP:        c.params.TopP,
		MaxTokens:   c.params.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openaiChatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var chatResp openaiChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("openai API error: %s", chatResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return chatResp.Choices[0].Message.Content, nil
}

func (c *OpenAIChat) ModelName() string { return c.model }
