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

const ollamaTimeout = 120 * time.Second

// OllamaEmbedder creates embeddings through the Ollama /api/embed endpoint.
type OllamaEmbedder struct {
	client *http.Client
	apiURL string
	model  string
	dim    int
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func NewOllamaEmbedder(apiURL, model string, dim int) *OllamaEmbedder {
	return &OllamaEmbedder{
		client: &http.Client{Timeout: ollamaTimeout},
		apiURL: apiURL,
		model:  model,
		dim:    dim,
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embedding")
	}
	return embeddings[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL+"/api/embed", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var embedResp ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(embedResp.Embeddings), len(texts))
	}

	out := make([][]float32, len(embedResp.Embeddings))
	for i, vec := range embedResp.Embeddings {
		out[i] = toFloat32(normalize64(vec))
	}
	return out, nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.dim }

func (e *OllamaEmbedder) ModelName() string { return e.model }

// OllamaChat generates completions through the Ollama /api/chat endpoint.
type OllamaChat struct {
	client *http.Client
	apiURL string
	model  string
	params SamplingParams
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  ollamaChatOptions   `json:"options"`
}

type ollamaChatOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}

func NewOllamaChat(apiURL, model string, params SamplingParams) *OllamaChat {
	return &OllamaChat{
		client: &http.Client{Timeout: ollamaTimeout},
		apiURL: apiURL,
		model:  model,
		params: params,
	}
}

func (c *OllamaChat) Generate(ctx context.Context, messages []types.ChatMessage) (string, error) {
	req := ollamaChatRequest{
		Model:  c.model,
		Stream: false,
		Options: ollamaChatOptions{
			Temperature: c.params.Temperature,
			TopP:        c.params.TopP,
			NumPredict:  c.params.MaxTokens,
		},
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, ollamaChatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/api/chat", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err == nil && chatResp.Message.Content != "" {
		return chatResp.Message.Content, nil
	}

	// Streamed responses arrive as concatenated JSON objects even when
	// stream was requested off on older servers. Collect them.
	var output string
	decoder := json.NewDecoder(bytes.NewReader(respBody))
	for decoder.More() {
		var chunk ollamaChatResponse
		if err := decoder.Decode(&chunk); err != nil {
			break
		}
		output += chunk.Message.Content
	}
	if output == "" {
		return "", fmt.Errorf("ollama returned empty completion")
	}
	return output, nil
}

func (c *OllamaChat) ModelName() string { return c.model }
