package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pdf-chat/internal/config"
	"pdf-chat/internal/helper"
	"pdf-chat/internal/models"
	"pdf-chat/internal/rag"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

const tablePrefix = "chunks_"

// ChunkRow is one indexed chunk. Every build gets its own table.
type ChunkRow struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`

	ID        int64           `bun:"id,pk,autoincrement"`
	Content   string          `bun:"content,notnull"`
	Page      int             `bun:"page,notnull"`
	Source    string          `bun:"source,notnull"`
	Embedding pgvector.Vector `bun:"embedding,notnull,type:vector"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the configured postgres driver. Connections are made lazily.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPg, "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.URL))), nil
	case config.DriverPq:
		return sql.Open("postgres", cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

// InitDB enables the pgvector extension
func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewRaw("CREATE EXTENSION IF NOT EXISTS vector").Exec(ctx); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	return nil
}

// Builder indexes chunks into a fresh postgres table per document.
type Builder struct {
	db       *bun.DB
	embedder embeddings.Embedder
}

func NewBuilder(db *bun.DB, embedder embeddings.Embedder) *Builder {
	return &Builder{db: db, embedder: embedder}
}

// Build embeds the chunks and stores them in a new table inside one
// transaction, so a failed build leaves nothing behind.
func (b *Builder) Build(ctx context.Context, chunks []models.Chunk) (rag.VectorStore, error) {
	s, err := b.build(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIndexBuild, err)
	}
	return s, nil
}

func (b *Builder) build(ctx context.Context, chunks []models.Chunk) (*Store, error) {
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

	table, err := newTableName()
	if err != nil {
		return nil, err
	}

	rows := make([]ChunkRow, len(chunks))
	for i, c := range chunks {
		rows[i] = ChunkRow{
			Content:   c.Text,
			Page:      c.Metadata.Page,
			Source:    c.Metadata.Source,
			Embedding: pgvector.NewVector(vectors[i]),
		}
	}

	err = b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewCreateTable().
			Model((*ChunkRow)(nil)).
			ModelTableExpr("?", bun.Ident(table)).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
		if _, err := tx.NewInsert().
			Model(&rows).
			ModelTableExpr("?", bun.Ident(table)).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to store chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int("chunks", len(chunks)).Str("table", table).Dur("elapsed", time.Since(start)).Msg("Built pgvector index")
	return &Store{db: b.db, embedder: b.embedder, table: table}, nil
}

func newTableName() (string, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return "", err
	}
	return tablePrefix + strings.ReplaceAll(id, "-", ""), nil
}

// Store queries one build's table by cosine distance.
type Store struct {
	db       *bun.DB
	embedder embeddings.Embedder
	table    string
}

var _ rag.VectorStore = (*Store)(nil)

func (s *Store) SimilaritySearch(ctx context.Context, query string, k int) ([]models.Chunk, error) {
	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var rows []ChunkRow
	err = s.db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS c", bun.Ident(s.table)).
		Column("id", "content", "page", "source").
		OrderExpr("embedding <=> ?", pgvector.NewVector(embedding)).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	chunks := make([]models.Chunk, 0, len(rows))
	for _, r := range rows {
		chunks = append(chunks, models.Chunk{
			Text:     r.Content,
			Metadata: models.ChunkMetadata{Page: r.Page, Source: r.Source},
		})
	}
	return chunks, nil
}

// Close drops the table
func (s *Store) Close(ctx context.Context) error {
	_, err := s.db.NewDropTable().TableExpr("?", bun.Ident(s.table)).IfExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop table %s: %w", s.table, err)
	}
	return nil
}
