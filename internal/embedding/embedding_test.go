package embedding

import (
	"context"
	"errors"
	"testing"

	"pdf-chat/internal/config"
	"pdf-chat/internal/helper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
)

type flakyClient struct {
	failures int
	calls    int
}

func (c *flakyClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, errors.New("service unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func newTestEmbedder(t *testing.T, client embeddings.EmbedderClient, retries int) *RetryEmbedder {
	t.Helper()
	impl, err := embeddings.NewEmbedder(client)
	require.NoError(t, err)
	return NewRetryEmbedder(impl, helper.CallOptions{MaxRetries: retries})
}

func TestRetryEmbedder(t *testing.T) {
	client := &flakyClient{failures: 1}
	e := newTestEmbedder(t, client, 2)

	vectors, err := e.EmbedDocuments(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {3, 1}}, vectors)
	assert.Equal(t, 2, client.calls)

	q, err := e.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1}, q)
}

func TestRetryEmbedderGivesUp(t *testing.T) {
	client := &flakyClient{failures: 10}
	e := newTestEmbedder(t, client, 0)

	_, err := e.EmbedQuery(context.Background(), "hello")
	assert.Error(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestRetryEmbedderShortResponse(t *testing.T) {
	client := embeddings.EmbedderClientFunc(func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	})
	e := newTestEmbedder(t, client, 0)

	_, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestNewEmbedder(t *testing.T) {
	e, err := NewEmbedder(&config.LLMConfig{Provider: config.ProviderOllama, Model: "nomic-embed-text", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.NotNil(t, e)

	e, err = NewEmbedder(&config.LLMConfig{Provider: config.ProviderOpenAI, Model: "text-embedding-3-small", Key: "sk-test"})
	require.NoError(t, err)
	assert.NotNil(t, e)

	_, err = NewEmbedder(&config.LLMConfig{Provider: "cohere"})
	assert.Error(t, err)
}
