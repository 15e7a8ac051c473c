package llmservice

import (
	"context"
	"fmt"
	"strings"

	"pdf-chat/internal/config"
	"pdf-chat/internal/helper"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Client sends single prompts to a chat model.
type Client struct {
	llm         llms.Model
	temperature float64
	opts        helper.CallOptions
}

// NewClient builds the chat model configured by llmConfig
func NewClient(llmConfig *config.LLMConfig) (*Client, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Msg("Creating llm client")

	var (
		llm llms.Model
		err error
	)
	switch llmConfig.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err = openai.New(opts...)
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		llm, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", llmConfig.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm: %w", err)
	}

	return NewClientWithModel(llm, llmConfig.Temperature, helper.CallOptions{
		Timeout:    llmConfig.Timeout,
		MaxRetries: llmConfig.MaxRetries,
	}), nil
}

func NewClientWithModel(llm llms.Model, temperature float64, opts helper.CallOptions) *Client {
	return &Client{llm: llm, temperature: temperature, opts: opts}
}

// Complete sends prompt as the only human message and returns the reply text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return helper.Call(ctx, "generate", c.opts, func(ctx context.Context) (string, error) {
		return llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, llms.WithTemperature(c.temperature))
	})
}
