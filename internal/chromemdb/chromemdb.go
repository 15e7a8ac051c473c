package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"pdf-chat/internal/helper"
	"pdf-chat/internal/models"
	"pdf-chat/internal/rag"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

const (
	metaPage   = "page"
	metaSource = "source"
)

// Builder creates a fresh in-memory index for every document.
type Builder struct {
	embedder embeddings.Embedder
}

func NewBuilder(embedder embeddings.Embedder) *Builder {
	return &Builder{embedder: embedder}
}

// Build embeds every chunk and returns a populated index. Either all chunks
// are indexed or an error wrapping models.ErrIndexBuild is returned.
func (b *Builder) Build(ctx context.Context, chunks []models.Chunk) (rag.VectorStore, error) {
	m, err := b.build(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIndexBuild, err)
	}
	return m, nil
}

func (b *Builder) build(ctx context.Context, chunks []models.Chunk) (*VectorDBManager, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks to index")
	}

	start := time.Now()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := b.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(chunks))
	}

	name, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	m, err := NewVectorDBManager(name, b.embedder)
	if err != nil {
		return nil, err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:      strconv.Itoa(i),
			Content: c.Text,
			Metadata: map[string]string{
				metaPage:   strconv.Itoa(c.Metadata.Page),
				metaSource: c.Metadata.Source,
			},
			Embedding: vectors[i],
		}
	}
	if err := m.CreateDocs(ctx, docs); err != nil {
		return nil, err
	}

	log.Info().Int("chunks", len(chunks)).Str("collection", name).Dur("elapsed", time.Since(start)).Msg("Built vector index")
	return m, nil
}

// VectorDBManager encapsulates one chromem-go collection
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embeddings.Embedder
	compress   bool
}

var _ rag.VectorStore = (*VectorDBManager)(nil)

// NewVectorDBManager initializes an in-memory database holding one empty
// collection.
func NewVectorDBManager(collectionName string, embedder embeddings.Embedder) (*VectorDBManager, error) {
	db := chromem.NewDB()
	c, err := db.CreateCollection(collectionName, nil, func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return &VectorDBManager{
		db:         db,
		collection: c,
		embedder:   embedder,
		compress:   true,
	}, nil
}

// add multiple documents
func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []chromem.Document) error {
	if err := m.collection.AddDocuments(ctx, documents, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// SimilaritySearch embeds query and returns the k most similar chunks. k is
// capped at the collection size.
func (m *VectorDBManager) SimilaritySearch(ctx context.Context, query string, k int) ([]models.Chunk, error) {
	k = min(k, m.collection.Count())
	if k <= 0 {
		return nil, nil
	}

	embedding, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := m.collection.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	chunks := make([]models.Chunk, 0, len(results))
	for _, r := range results {
		page, err := strconv.Atoi(r.Metadata[metaPage])
		if err != nil {
			return nil, fmt.Errorf("document %s has invalid page %q", r.ID, r.Metadata[metaPage])
		}
		chunks = append(chunks, models.Chunk{
			Text:     r.Content,
			Metadata: models.ChunkMetadata{Page: page, Source: r.Metadata[metaSource]},
		})
	}
	return chunks, nil
}

// Export writes the collection to filePath as a gzip compressed gob,
// AES encrypted when encryptionKey is set.
func (m *VectorDBManager) Export(filePath, encryptionKey string) error {
	log.Debug().Str("collection", m.collection.Name).Str("file", filePath).Bool("encrypted", encryptionKey != "").Msg("Exporting collection")

	if err := m.db.ExportToFile(filePath, m.compress, encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Close drops the collection
func (m *VectorDBManager) Close(_ context.Context) error {
	if err := m.db.DeleteCollection(m.collection.Name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}
