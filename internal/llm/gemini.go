package llm

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/n1dhiparate/admit-assist/internal/httpkit"
)

// GeminiClient generates answers with the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiClient creates a Gemini client. baseURL overrides the API
// endpoint and is normally empty.
func NewGeminiClient(ctx context.Context, apiKey, model, baseURL string, logger *slog.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		// Deadlines come from ctx; the composer sets them.
		HTTPClient: httpkit.NewClient(httpkit.WithTimeout(0)),
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  model,
		logger: logger.With("provider", "gemini"),
	}, nil
}

// Generate sends a single-turn prompt and returns the response text.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	c.logger.Log(ctx, LevelTrace, "gemini request", "model", c.model, "prompt", prompt)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	c.logger.Log(ctx, LevelTrace, "gemini response", "model", c.model, "text", text)
	return nonEmpty(text)
}
