package parser

import (
	"fmt"
	"io"

	"pdf-chat/internal/models"

	"github.com/rs/zerolog/log"
)

// Ingestor turns a document into page-tagged chunks.
type Ingestor struct {
	chunker *Chunker
}

func NewIngestor(chunkSize, chunkOverlap int) (*Ingestor, error) {
	chunker, err := NewChunker(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	return &Ingestor{chunker: chunker}, nil
}

// Ingest extracts and chunks the file at filePath. A document with no
// extractable text yields models.ErrEmptyCorpus.
func (i *Ingestor) Ingest(filePath string) ([]models.Chunk, error) {
	pages, err := ExtractFile(filePath)
	if err != nil {
		return nil, err
	}
	return i.chunk(pages)
}

// IngestPDF is Ingest for an in-memory PDF
func (i *Ingestor) IngestPDF(r io.ReaderAt, size int64) ([]models.Chunk, error) {
	pages, err := ExtractPDF(r, size)
	if err != nil {
		return nil, err
	}
	return i.chunk(pages)
}

func (i *Ingestor) chunk(pages []models.PageText) ([]models.Chunk, error) {
	if len(pages) == 0 {
		return nil, models.ErrEmptyCorpus
	}

	chunks, err := i.chunker.Chunk(pages)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIngestion, err)
	}
	if len(chunks) == 0 {
		return nil, models.ErrEmptyCorpus
	}

	log.Info().Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Ingested document")
	return chunks, nil
}
