package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redisrag/config"
	"redisrag/types"
)

func TestOpenAIEmbedBatchOrdering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		// Return data out of order, the client must restore it by index.
		w.Write([]byte(`{"data":[
			{"embedding":[0.5,0.5],"index":1},
			{"embedding":[1.0,0.0],"index":0}
		]}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(srv.URL, "sk-test", "text-embedding-3-small", 2)
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 1.0, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.5, vecs[1][0], 1e-6)
}

func TestOpenAIEmbedderRequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder("http://localhost", "", "text-embedding-3-small", 0)
	require.Error(t, err)
}

func TestOpenAIEmbedderModelDimensions(t *testing.T) {
	e, err := NewOpenAIEmbedder("http://localhost", "sk-test", "text-embedding-3-large", 0)
	require.NoError(t, err)
	assert.Equal(t, 3072, e.Dimensions())

	_, err = NewOpenAIEmbedder("http://localhost", "sk-test", "some-custom-model", 0)
	require.Error(t, err)

	e, err = NewOpenAIEmbedder("http://localhost", "sk-test", "some-custom-model", 1024)
	require.NoError(t, err)
	assert.Equal(t, 1024, e.Dimensions())
}

func TestOpenAIEmbedAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key","type":"auth"}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(srv.URL, "sk-bad", "text-embedding-3-small", 2)
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestOpenAIChatGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openaiChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 512, req.MaxTokens)
		require.Len(t, req.Messages, 2)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "42"}},
			},
		})
	}))
	defer srv.Close()

	c, err := NewOpenAIChat(srv.URL, "sk-test", "gpt-4o-mini", SamplingParams{Temperature: 0.1, TopP: 1, MaxTokens: 512})
	require.NoError(t, err)

	answer, err := c.Generate(context.Background(), []types.ChatMessage{
		{Role: types.RoleSystem, Content: "Be terse."},
		{Role: types.RoleUser, Content: "Meaning of life?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", answer)
}

func TestNewEmbedderUnknownProvider(t *testing.T) {
	_, err := NewEmbedder(config.EmbedConfig{Provider: "bedrock"}, 768)
	require.Error(t, err)
}

func TestNewChatClientUnknownProvider(t *testing.T) {
	_, err := NewChatClient(config.LLMConfig{Provider: "bedrock"})
	require.Error(t, err)
}
