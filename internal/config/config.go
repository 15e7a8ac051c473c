package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"

	DriverPg = "pgdriver"
	DriverPq = "pq"
)

type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	Key         string        `yaml:"key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

type RAGConfig struct {
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	TopK          int    `yaml:"top_k"`
	HistoryWindow int    `yaml:"history_window"`
	IndexBackend  string `yaml:"index_backend"`
	EncryptionKey string `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	URL    string `yaml:"url"`
	Driver string `yaml:"driver"`
	Debug  bool   `yaml:"debug"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-3.5-turbo",
			Temperature: 0.1,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
		},
		EmbedLLM: LLMConfig{
			Provider:   ProviderOpenAI,
			Model:      "text-embedding-3-small",
			Timeout:    30 * time.Second,
			MaxRetries: 2,
		},
		RAG: RAGConfig{
			ChunkSize:     1000,
			ChunkOverlap:  200,
			TopK:          4,
			HistoryWindow: 6,
			IndexBackend:  BackendChromem,
		},
		Database: DatabaseConfig{
			Driver: DriverPg,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads the yaml file at path on top of the defaults, then applies
// .env and environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	mergeWithEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func mergeWithEnv(cfg *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		for _, c := range []*LLMConfig{&cfg.LLM, &cfg.EmbedLLM} {
			if c.Provider == ProviderOpenAI && c.Key == "" {
				c.Key = key
			}
		}
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		for _, c := range []*LLMConfig{&cfg.LLM, &cfg.EmbedLLM} {
			if c.Provider == ProviderOllama {
				c.BaseURL = baseURL
			}
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
}

// applyDefaults fills values that depend on other settings
func applyDefaults(cfg *Config) {
	for _, c := range []*LLMConfig{&cfg.LLM, &cfg.EmbedLLM} {
		if c.Provider == "" {
			c.Provider = ProviderOpenAI
		}
		if c.Provider == ProviderOllama && c.BaseURL == "" {
			c.BaseURL = "http://localhost:11434"
		}
	}
	if cfg.RAG.IndexBackend == "" {
		cfg.RAG.IndexBackend = BackendChromem
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPg
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
