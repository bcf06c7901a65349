// Package generation wraps the text-generation backend behind a
// prompt-in/text-out contract.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"google.golang.org/genai"
)

// Sentinel errors for generation.
var (
	// ErrInvalidConfig indicates unusable generator configuration.
	ErrInvalidConfig = errors.New("invalid generation config")

	// ErrEmptyResponse indicates the backend returned no text.
	ErrEmptyResponse = errors.New("empty generation response")
)

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiConfig configures the Gemini generator.
type GeminiConfig struct {
	APIKey string
	// Model defaults to gemini-2.0-flash.
	Model string
	// MaxRetries bounds attempts per call. Defaults to 3.
	MaxRetries int
}

// GeminiGenerator implements Generator on the Gemini API with
// exponential-backoff retries for transient failures.
type GeminiGenerator struct {
	client     *genai.Client
	model      string
	maxRetries int
}

// NewGeminiGenerator creates a Gemini-backed generator.
func NewGeminiGenerator(cfg GeminiConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating GenAI client: %w", err)
	}

	return &GeminiGenerator{
		client:     client,
		model:      model,
		maxRetries: maxRetries,
	}, nil
}

// Generate runs one prompt. Transient backend failures are retried
// with exponential backoff up to the configured attempt budget.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	operation := func() (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
		if err != nil {
			return "", err
		}
		text := resp.Text()
		if text == "" {
			return "", backoff.Permanent(ErrEmptyResponse)
		}
		return text, nil
	}

	text, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(g.maxRetries)),
	)
	if err != nil {
		return "", fmt.Errorf("generating text: %w", err)
	}
	return text, nil
}
