package parser

import (
	"fmt"
	"unicode/utf8"

	"pdf-chat/internal/models"

	"github.com/tmc/langchaingo/textsplitter"
)

const defaultChunkSize = 1000 // characters

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits page text into overlapping chunks without crossing page
// boundaries.
type Chunker struct {
	chunkSize int
	splitter  textsplitter.RecursiveCharacter
	// resplit has no overlap and never yields a chunk above chunkSize
	resplit textsplitter.RecursiveCharacter
}

// NewChunker returns a chunker for the given budget. A non-positive size falls
// back to the default and an overlap that does not fit inside the chunk is
// rejected.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", chunkOverlap, chunkSize)
	}

	return &Chunker{
		chunkSize: chunkSize,
		splitter:  newSplitter(chunkSize, chunkOverlap),
		resplit:   newSplitter(chunkSize, 0),
	}, nil
}

func newSplitter(chunkSize, chunkOverlap int) textsplitter.RecursiveCharacter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(defaultSeparators),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
}

// Chunk splits every page on its own and tags each chunk with its page.
func (c *Chunker) Chunk(pages []models.PageText) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, page := range pages {
		texts, err := c.split(page.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to split page %d: %w", page.Page, err)
		}
		for _, t := range texts {
			chunks = append(chunks, models.Chunk{
				Text: t,
				Metadata: models.ChunkMetadata{
					Page:   page.Page,
					Source: models.SourceLabel(page.Page),
				},
			})
		}
	}
	return chunks, nil
}

func (c *Chunker) split(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(text) <= c.chunkSize {
		return []string{text}, nil
	}

	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) <= c.chunkSize {
			texts = append(texts, p)
			continue
		}

		// The overlap merge can keep one trailing split without counting the
		// separator, so oversized parts are split again without overlap.
		sub, err := c.resplit.SplitText(p)
		if err != nil {
			return nil, err
		}
		for i, q := range sub {
			if q == "" || (i == 0 && len(texts) > 0 && texts[len(texts)-1] == q) {
				continue
			}
			texts = append(texts, q)
		}
	}
	return texts, nil
}
