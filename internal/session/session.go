package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"pdf-chat/internal/models"
	"pdf-chat/internal/rag"

	"github.com/rs/zerolog/log"
)

var ErrNotProcessed = errors.New("no document has been processed yet")

// Ingestor turns a document file into chunks
type Ingestor interface {
	Ingest(filePath string) ([]models.Chunk, error)
}

// IndexBuilder creates a new index from chunks
type IndexBuilder interface {
	Build(ctx context.Context, chunks []models.Chunk) (rag.VectorStore, error)
}

// Message is one entry of the displayed conversation
type Message struct {
	Role    models.Role     `json:"role"`
	Content string          `json:"content"`
	Sources []models.Source `json:"sources,omitempty"`
}

// Session owns the index of the processed document, the engine answering
// against it and the displayed transcript.
type Session struct {
	ingestor  Ingestor
	builder   IndexBuilder
	generator rag.Generator
	opts      []rag.Option

	mu         sync.Mutex
	document   string
	store      rag.VectorStore
	engine     *rag.Engine
	transcript []Message
}

func New(ingestor Ingestor, builder IndexBuilder, generator rag.Generator, opts ...rag.Option) *Session {
	return &Session{
		ingestor:  ingestor,
		builder:   builder,
		generator: generator,
		opts:      opts,
	}
}

// Process ingests and indexes the document at filePath. On success it replaces
// the current document and starts a fresh conversation; on failure the
// previous document stays active.
func (s *Session) Process(ctx context.Context, filePath string) (int, error) {
	start := time.Now()
	chunks, err := s.ingestor.Ingest(filePath)
	if err != nil {
		return 0, err
	}

	store, err := s.builder.Build(ctx, chunks)
	if err != nil {
		return 0, err
	}

	engine, err := rag.NewEngine(store, s.generator, s.opts...)
	if err != nil {
		if cerr := store.Close(ctx); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to release unused index")
		}
		return 0, err
	}

	document := filepath.Base(filePath)
	s.mu.Lock()
	previous := s.store
	s.document = document
	s.store = store
	s.engine = engine
	s.transcript = nil
	s.mu.Unlock()

	if previous != nil {
		if err := previous.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to release previous index")
		}
	}

	log.Info().Str("document", document).Int("chunks", len(chunks)).Dur("elapsed", time.Since(start)).Msg("Processed document")
	return len(chunks), nil
}

// Ask answers question against the processed document.
func (s *Session) Ask(ctx context.Context, question string) (*models.AnswerResult, error) {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if engine == nil {
		return nil, ErrNotProcessed
	}

	res, err := engine.Answer(ctx, question)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.engine == engine {
		s.transcript = append(s.transcript,
			Message{Role: models.RoleHuman, Content: question},
			Message{Role: models.RoleAssistant, Content: res.Answer, Sources: res.Sources},
		)
	}
	s.mu.Unlock()
	return res, nil
}

// Clear forgets the conversation but keeps the processed document
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != nil {
		s.engine.Clear()
	}
	s.transcript = nil
}

func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.transcript...)
}

// Document is the name of the processed document, empty before Process
func (s *Session) Document() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.document
}

// Store is the current index, nil before Process
func (s *Session) Store() rag.VectorStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// Close releases the current index
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	store := s.store
	s.store, s.engine = nil, nil
	s.mu.Unlock()

	if store == nil {
		return nil
	}
	if err := store.Close(ctx); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	return nil
}
