package embedding

import (
	"context"
	"fmt"
	"strings"

	"pdf-chat/internal/config"
	"pdf-chat/internal/helper"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewEmbedder creates the embedder configured by cfg. Every call it makes is
// bounded by cfg.Timeout and retried cfg.MaxRetries times.
func NewEmbedder(cfg *config.LLMConfig) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating embedder")

	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		client, err = newOpenAIClient(cfg)
	case config.ProviderOllama:
		client, err = newOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return NewRetryEmbedder(embedder, helper.CallOptions{Timeout: cfg.Timeout, MaxRetries: cfg.MaxRetries}), nil
}

func newOpenAIClient(cfg *config.LLMConfig) (*openai.LLM, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

func newOllamaClient(cfg *config.LLMConfig) (*ollama.LLM, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	return ollama.New(opts...)
}

// RetryEmbedder bounds every call of the wrapped embedder with a timeout and
// retries transient failures.
type RetryEmbedder struct {
	embedder embeddings.Embedder
	opts     helper.CallOptions
}

var _ embeddings.Embedder = (*RetryEmbedder)(nil)

func NewRetryEmbedder(embedder embeddings.Embedder, opts helper.CallOptions) *RetryEmbedder {
	return &RetryEmbedder{embedder: embedder, opts: opts}
}

func (e *RetryEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := helper.Call(ctx, "embed_documents", e.opts, func(ctx context.Context) ([][]float32, error) {
		return e.embedder.EmbedDocuments(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

func (e *RetryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return helper.Call(ctx, "embed_query", e.opts, func(ctx context.Context) ([]float32, error) {
		return e.embedder.EmbedQuery(ctx, text)
	})
}
