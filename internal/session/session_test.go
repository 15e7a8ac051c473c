package session

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"pdf-chat/internal/chromemdb"
	"pdf-chat/internal/helper"
	"pdf-chat/internal/llmservice"
	"pdf-chat/internal/models"
	"pdf-chat/internal/parser"
	"pdf-chat/internal/rag"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/fake"
)

func hashEmbedder(t *testing.T) embeddings.Embedder {
	t.Helper()
	e, err := embeddings.NewEmbedder(embeddings.EmbedderClientFunc(func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			v := make([]float32, 32)
			v[0] = 0.1
			for _, w := range strings.Fields(strings.ToLower(text)) {
				h := fnv.New32a()
				h.Write([]byte(strings.Trim(w, ".,?!")))
				v[1+h.Sum32()%31]++
			}
			out[i] = v
		}
		return out, nil
	}))
	require.NoError(t, err)
	return e
}

type closeTracker struct {
	rag.VectorStore
	closed bool
}

func (c *closeTracker) Close(ctx context.Context) error {
	c.closed = true
	return c.VectorStore.Close(ctx)
}

// trackingBuilder remembers every store it built
type trackingBuilder struct {
	inner  IndexBuilder
	mu     sync.Mutex
	stores []*closeTracker
}

func (b *trackingBuilder) Build(ctx context.Context, chunks []models.Chunk) (rag.VectorStore, error) {
	s, err := b.inner.Build(ctx, chunks)
	if err != nil {
		return nil, err
	}
	tracked := &closeTracker{VectorStore: s}
	b.mu.Lock()
	b.stores = append(b.stores, tracked)
	b.mu.Unlock()
	return tracked, nil
}

func newSession(t *testing.T, answers ...string) (*Session, *trackingBuilder) {
	t.Helper()
	ingestor, err := parser.NewIngestor(1000, 200)
	require.NoError(t, err)

	builder := &trackingBuilder{inner: chromemdb.NewBuilder(hashEmbedder(t))}
	generator := llmservice.NewClientWithModel(fake.NewFakeLLM(answers), 0.1, helper.CallOptions{})
	return New(ingestor, builder, generator, rag.WithTopK(4), rag.WithHistoryWindow(6)), builder
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestAskBeforeProcess(t *testing.T) {
	s, _ := newSession(t, "unused")

	_, err := s.Ask(context.Background(), "anything?")
	assert.ErrorIs(t, err, ErrNotProcessed)
	assert.Nil(t, s.Store())
	assert.Empty(t, s.Document())
}

func TestProcessAndAsk(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, "Paris is the capital of France (Page 1).")

	n, err := s.Process(ctx, writeDoc(t, "france.txt", "Paris is the capital of France."))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "france.txt", s.Document())

	res, err := s.Ask(ctx, "What is the capital of France?")
	require.NoError(t, err)
	assert.Contains(t, res.Answer, "Paris")
	assert.Equal(t, []models.Source{{Page: 1, Text: "Paris is the capital of France."}}, res.Sources)

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, Message{Role: models.RoleHuman, Content: "What is the capital of France?"}, transcript[0])
	assert.Equal(t, res.Sources, transcript[1].Sources)
}

func TestProcessFailureKeepsPreviousDocument(t *testing.T) {
	ctx := context.Background()
	s, builder := newSession(t, "answer")

	_, err := s.Process(ctx, writeDoc(t, "first.txt", "Paris is the capital of France."))
	require.NoError(t, err)
	first := s.Store()

	_, err = s.Process(ctx, writeDoc(t, "blank.txt", "   \n"))
	assert.ErrorIs(t, err, models.ErrEmptyCorpus)

	_, err = s.Process(ctx, writeDoc(t, "broken.pdf", "not a pdf"))
	assert.ErrorIs(t, err, models.ErrIngestion)

	assert.Same(t, first, s.Store())
	assert.Equal(t, "first.txt", s.Document())
	assert.False(t, builder.stores[0].closed)

	_, err = s.Ask(ctx, "still there?")
	assert.NoError(t, err)
}

func TestProcessReplacesDocument(t *testing.T) {
	ctx := context.Background()
	s, builder := newSession(t, "answer")

	_, err := s.Process(ctx, writeDoc(t, "one.txt", "Document one."))
	require.NoError(t, err)
	_, err = s.Ask(ctx, "q")
	require.NoError(t, err)

	_, err = s.Process(ctx, writeDoc(t, "two.txt", "Document two.\fSecond page."))
	require.NoError(t, err)

	require.Len(t, builder.stores, 2)
	assert.True(t, builder.stores[0].closed)
	assert.False(t, builder.stores[1].closed)
	assert.Empty(t, s.Transcript(), "new document starts a new conversation")
	assert.Equal(t, "two.txt", s.Document())
}

func TestProcessReleasesIndexWhenEngineFails(t *testing.T) {
	ingestor, err := parser.NewIngestor(1000, 200)
	require.NoError(t, err)
	builder := &trackingBuilder{inner: chromemdb.NewBuilder(hashEmbedder(t))}
	s := New(ingestor, builder, nil)

	_, err = s.Process(context.Background(), writeDoc(t, "doc.txt", "Some text."))
	require.Error(t, err)

	require.Len(t, builder.stores, 1)
	assert.True(t, builder.stores[0].closed)
	assert.Nil(t, s.Store())
	assert.Empty(t, s.Document())
}

func TestConcurrentProcess(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, "answer")
	paths := []string{
		writeDoc(t, "one.txt", "Document one."),
		writeDoc(t, "two.txt", "Document two."),
	}

	var wg sync.WaitGroup
	for _, p := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_, err := s.Process(ctx, p)
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	assert.Contains(t, []string{"one.txt", "two.txt"}, s.Document())
	_, err := s.Ask(ctx, "which?")
	assert.NoError(t, err)
}

func TestClearAndClose(t *testing.T) {
	ctx := context.Background()
	s, builder := newSession(t, "answer")

	_, err := s.Process(ctx, writeDoc(t, "doc.txt", "Some text."))
	require.NoError(t, err)
	_, err = s.Ask(ctx, "q")
	require.NoError(t, err)

	s.Clear()
	assert.Empty(t, s.Transcript())
	assert.Equal(t, "doc.txt", s.Document())

	require.NoError(t, s.Close(ctx))
	assert.True(t, builder.stores[0].closed)
	assert.NoError(t, s.Close(ctx))

	_, err = s.Ask(ctx, "q")
	assert.True(t, errors.Is(err, ErrNotProcessed))
}
