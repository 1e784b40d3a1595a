package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text:latest"
)

// EmbeddingConfig holds API settings for text embedding.
type EmbeddingConfig struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

func NewOpenAIEmbedder(cfg EmbeddingConfig) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("embedding model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIEmbedder{
		client:    newOpenAIClient(cfg.BaseURL, cfg.APIKey, timeout),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (e *OpenAIEmbedder) ModelName() string { return e.model }
func (e *OpenAIEmbedder) Dimension() int    { return e.dimension }

// Embed returns the embedding vector for the given text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input text, in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs, err := trimInputs(texts)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: inputs,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(inputs))
	}
	out := make([][]float32, len(inputs))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}

// OllamaEmbedder runs embeddings against a local Ollama server.
type OllamaEmbedder struct {
	llm       *ollama.LLM
	model     string
	dimension int
}

func NewOllamaEmbedder(cfg EmbeddingConfig) (*OllamaEmbedder, error) {
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("init ollama embedder failed: %w", err)
	}
	return &OllamaEmbedder{llm: llm, model: model, dimension: cfg.Dimension}, nil
}

func (e *OllamaEmbedder) ModelName() string { return e.model }
func (e *OllamaEmbedder) Dimension() int    { return e.dimension }

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return vectors[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs, err := trimInputs(texts)
	if err != nil {
		return nil, err
	}
	vectors, err := e.llm.CreateEmbedding(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding failed: %w", err)
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("ollama returned %d vectors for %d inputs", len(vectors), len(inputs))
	}
	return vectors, nil
}

// trimInputs rejects empty texts instead of dropping them, so output
// positions always line up with the caller's chunks.
func trimInputs(texts []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, errors.New("embedding input is empty")
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, fmt.Errorf("embedding input %d is empty", i)
		}
		out[i] = s
	}
	return out, nil
}
