package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"one", "two"}, req.Input)
		assert.Equal(t, "embed-test", req.Model)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}],"model":"embed-test"}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(EmbeddingConfig{BaseURL: srv.URL, APIKey: "k", Model: "embed-test", Dimension: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, e.Dimension())
	assert.Equal(t, "embed-test", e.ModelName())

	vectors, err := e.EmbedBatch(context.Background(), []string{" one ", "two"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)

	_, err = e.EmbedBatch(context.Background(), []string{"ok", "  "})
	assert.Error(t, err)
}

func TestChatClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"forty-two"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := NewChatClient(ChatConfig{BaseURL: srv.URL, APIKey: "k", Model: "chat-test"})
	require.NoError(t, err)
	answer, err := c.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "?"}})
	require.NoError(t, err)
	assert.Equal(t, "forty-two", answer)
}
