// Package gateway wraps the chat-completion call: it prepends the
// system prompt, applies the fixed model parameters and shields the
// caller from every provider failure.
package gateway

import (
	"context"
	"log/slog"
	"strings"

	"github.com/inikonoff/Podogrev-bot/llm"
)

const (
	DefaultModel       = "llama-3.3-70b-versatile"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096

	// FallbackText is what the user sees when the completion API is
	// unreachable or returns an error.
	FallbackText = "⚠️ Произошла ошибка при обращении к модели. Попробуй ещё раз."
)

type Config struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

type Gateway struct {
	client llm.Client
	cfg    Config
	logger *slog.Logger
}

func New(client llm.Client, cfg Config, logger *slog.Logger) *Gateway {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{client: client, cfg: cfg, logger: logger}
}

// Complete sends [system] + turns to the completion API and returns the
// reply text. Errors never escape: any failure is logged and replaced
// with FallbackText so the user always gets a response.
func (g *Gateway) Complete(ctx context.Context, turns []llm.Message) string {
	messages := make([]llm.Message, 0, len(turns)+1)
	messages = append(messages, llm.Message{Role: "system", Content: g.cfg.SystemPrompt})
	messages = append(messages, turns...)

	res, err := g.client.Chat(ctx, llm.Request{
		Model:       g.cfg.Model,
		Messages:    messages,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		g.logger.Error("completion_error", "model", g.cfg.Model, "error", err.Error())
		return FallbackText
	}
	return res.Text
}
