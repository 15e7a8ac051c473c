package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"pdf-chat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func TestRunQueryRequiresFile(t *testing.T) {
	err := run(context.Background(), options{query: "what?"})
	assert.ErrorContains(t, err, "-file")
}

func TestRunInvalidConfig(t *testing.T) {
	path := writeConfig(t, "rag:\n  index_backend: bogus\n")

	err := run(context.Background(), options{configPath: path})
	assert.ErrorContains(t, err, "invalid config")
}

func TestRunReturnsAnswerErrors(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")
	t.Setenv("DATABASE_URL", "")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embeddings":
			fmt.Fprint(w, `{"embedding":[0.1,0.2,0.3]}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintln(w, `{"error":"model not loaded"}`)
		}
	}))
	defer srv.Close()

	path := writeConfig(t, fmt.Sprintf(`
llm:
  provider: ollama
  base_url: %[1]s
  model: llama3
  max_retries: 0
embed_llm:
  provider: ollama
  base_url: %[1]s
  model: nomic-embed-text
  max_retries: 0
`, srv.URL))

	doc := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(doc, []byte("Paris is the capital of France."), 0644))

	err := run(context.Background(), options{configPath: path, filePath: doc, query: "Capital?"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrGeneration)
}

func TestRunProcessingErrorWithQuery(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")
	path := writeConfig(t, `
llm:
  provider: ollama
  model: llama3
embed_llm:
  provider: ollama
  model: nomic-embed-text
`)

	err := run(context.Background(), options{configPath: path, filePath: filepath.Join(t.TempDir(), "missing.pdf"), query: "q"})
	assert.ErrorIs(t, err, models.ErrIngestion)
}
