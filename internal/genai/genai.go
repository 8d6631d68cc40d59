// Package genai wraps the text generation backends.
package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrModelUnavailable marks a failure caused by the requested model being
// retired or unknown to the backend, as opposed to a transient error.
var ErrModelUnavailable = errors.New("model unavailable")

// Generator produces a single text completion for prompt using model.
// An empty string with a nil error means the backend returned no text.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Provider  string
	APIKey    string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// New builds the Generator for cfg.Provider.
func New(cfg Config) (Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("genai: API key not configured")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}

	switch cfg.Provider {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	}
	return nil, fmt.Errorf("genai: unknown provider %q", cfg.Provider)
}

// IsModelUnavailable reports whether err means the model itself is gone.
func IsModelUnavailable(err error) bool {
	return errors.Is(err, ErrModelUnavailable)
}

// classify wraps err with ErrModelUnavailable when status or message point at
// a missing model.
func classify(status int, err error) error {
	if err == nil {
		return nil
	}
	if status == http.StatusNotFound || mentionsMissingModel(err.Error()) {
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return err
}

func mentionsMissingModel(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "model not found") ||
		strings.Contains(msg, "is not found for api version") ||
		strings.Contains(msg, "model_not_found")
}
