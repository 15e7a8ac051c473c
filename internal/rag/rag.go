package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"pdf-chat/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	DefaultTopK          = 4
	DefaultHistoryWindow = 6
)

// VectorStore is a similarity index built from one document's chunks.
type VectorStore interface {
	// SimilaritySearch returns up to k chunks ordered by decreasing similarity.
	SimilaritySearch(ctx context.Context, query string, k int) ([]models.Chunk, error)
	Close(ctx context.Context) error
}

// Generator produces the answer for a filled prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Engine answers questions against one VectorStore and keeps the
// conversation history of those questions.
type Engine struct {
	store         VectorStore
	generator     Generator
	topK          int
	historyWindow int

	mu      sync.Mutex
	history []models.ConversationTurn
}

type Option func(*Engine)

func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithHistoryWindow sets how many trailing turns are folded into the prompt.
func WithHistoryWindow(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.historyWindow = n
		}
	}
}

func NewEngine(store VectorStore, generator Generator, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if generator == nil {
		return nil, errors.New("generator is required")
	}

	e := &Engine{
		store:         store,
		generator:     generator,
		topK:          DefaultTopK,
		historyWindow: DefaultHistoryWindow,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Answer retrieves the chunks most similar to question, asks the generator
// with them and the recent history, and records the exchange. Nothing is
// recorded when retrieval or generation fails.
func (e *Engine) Answer(ctx context.Context, question string) (*models.AnswerResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	chunks, err := e.store.SimilaritySearch(ctx, question, e.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrRetrieval, err)
	}
	log.Debug().Int("top_k", e.topK).Int("retrieved", len(chunks)).Dur("elapsed", time.Since(start)).Msg("Retrieved context")

	prompt := BuildPrompt(FormatContext(chunks), FormatHistory(e.window()), question)

	start = time.Now()
	answer, err := e.generator.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrGeneration, err)
	}
	log.Debug().Int("prompt_len", len(prompt)).Dur("elapsed", time.Since(start)).Msg("Generated answer")

	e.history = append(e.history,
		models.ConversationTurn{Role: models.RoleHuman, Content: question},
		models.ConversationTurn{Role: models.RoleAssistant, Content: answer},
	)

	sources := make([]models.Source, 0, len(chunks))
	for _, c := range chunks {
		sources = append(sources, models.Source{
			Page: c.Metadata.Page,
			Text: Preview(c.Text, models.PreviewLength),
		})
	}

	return &models.AnswerResult{Answer: answer, Sources: sources}, nil
}

// Clear forgets the conversation. The index is left untouched.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}

// History returns a copy of every recorded turn, oldest first.
func (e *Engine) History() []models.ConversationTurn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.ConversationTurn(nil), e.history...)
}

// FormattedHistory is the history block the next Answer would send
func (e *Engine) FormattedHistory() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return FormatHistory(e.window())
}

// window returns the trailing historyWindow turns; the full log is kept.
func (e *Engine) window() []models.ConversationTurn {
	if e.historyWindow == 0 {
		return nil
	}
	from := max(len(e.history)-e.historyWindow, 0)
	return e.history[from:]
}

func FormatContext(chunks []models.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("Page %d: %s", c.Metadata.Page, c.Text))
	}
	return strings.Join(parts, "\n\n")
}

func FormatHistory(turns []models.ConversationTurn) string {
	if len(turns) == 0 {
		return models.NoHistoryPlaceholder
	}

	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.Role == models.RoleHuman {
			lines = append(lines, "User: "+t.Content)
		} else {
			lines = append(lines, "Assistant: "+t.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt fills the template in a single pass so placeholder text inside
// the values is left alone.
func BuildPrompt(docContext, history, question string) string {
	return strings.NewReplacer(
		"{context}", docContext,
		"{history}", history,
		"{question}", question,
	).Replace(models.PromptTemplate)
}

// Preview returns the first n characters of text
func Preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n])
}
