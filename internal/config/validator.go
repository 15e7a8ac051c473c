package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, validateLLM("llm", &c.LLM)...)
	errors = append(errors, validateLLM("embed_llm", &c.EmbedLLM)...)

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// RAG
	if c.RAG.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "rag.chunk_size",
			Message: "chunk_size must be positive",
		})
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "rag.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}
	if c.RAG.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "rag.top_k",
			Message: "top_k must be positive",
		})
	}
	if c.RAG.HistoryWindow < 0 {
		errors = append(errors, ValidationError{
			Field:   "rag.history_window",
			Message: "history_window must not be negative",
		})
	}
	if n := len(c.RAG.EncryptionKey); n != 0 && n != 32 {
		errors = append(errors, ValidationError{
			Field:   "rag.encryption_key",
			Message: "encryption_key must be exactly 32 bytes",
		})
	}

	switch c.RAG.IndexBackend {
	case BackendChromem:
	case BackendPgvector:
		if c.Database.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "database url is required for the pgvector backend",
			})
		} else if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
		if c.Database.Driver != DriverPg && c.Database.Driver != DriverPq {
			errors = append(errors, ValidationError{
				Field:   "database.driver",
				Message: fmt.Sprintf("unknown driver: %s", c.Database.Driver),
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "rag.index_backend",
			Message: fmt.Sprintf("unknown index backend: %s", c.RAG.IndexBackend),
		})
	}

	return errors
}

func validateLLM(section string, c *LLMConfig) []ValidationError {
	var errors []ValidationError
	switch c.Provider {
	case ProviderOpenAI:
		if c.Key == "" {
			errors = append(errors, ValidationError{
				Field:   section + ".key",
				Message: "API key is required (set OPENAI_API_KEY)",
			})
		}
	case ProviderOllama:
		if _, err := url.Parse(c.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   section + ".base_url",
				Message: "invalid Ollama base URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   section + ".provider",
			Message: fmt.Sprintf("unknown provider: %s", c.Provider),
		})
	}
	if c.Model == "" {
		errors = append(errors, ValidationError{
			Field:   section + ".model",
			Message: "model is required",
		})
	}
	if c.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   section + ".timeout",
			Message: "timeout must not be negative",
		})
	}
	if c.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   section + ".max_retries",
			Message: "max_retries must not be negative",
		})
	}
	return errors
}
