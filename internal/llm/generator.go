// Package llm provides the answer generators: thin single-call clients
// for Gemini, Ollama and OpenAI-compatible endpoints. Every client makes
// exactly one attempt per call; retry and fallback policy belongs to the
// caller.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/n1dhiparate/admit-assist/internal/config"
)

// LevelTrace is below Debug, used for prompt and response payload logging.
const LevelTrace = slog.Level(-8)

// ErrEmptyResponse is returned when a provider answers with no usable text.
var ErrEmptyResponse = errors.New("empty response from model")

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Pinger is implemented by generators that can check reachability
// without generating text.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GeneratorFunc adapts a function to [Generator].
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// New builds the generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.GenerationConfig, logger *slog.Logger) (Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Provider {
	case config.ProviderGemini, "":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderOllama:
		return NewOllamaClient(cfg.BaseURL, cfg.Model, logger), nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL, logger), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

// nonEmpty trims text and reports ErrEmptyResponse when nothing remains.
func nonEmpty(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
