// Package relay orchestrates one inbound message end to end: history
// append, completion call, history append, chunked delivery.
package relay

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/inikonoff/Podogrev-bot/internal/history"
	"github.com/inikonoff/Podogrev-bot/llm"
)

const (
	// Telegram rejects messages longer than 4096 characters.
	MaxMessageLen = 4096

	DefaultChunkPause = 500 * time.Millisecond

	DefaultWelcomeText = "👋 Привет! Я — «Архитектор Прогрева».\n\n" +
		"Я создам для тебя структуру прогрева, которая реально приводит к продажам.\n\n" +
		"Расскажи, что хочешь продавать — и я задам несколько вопросов, " +
		"чтобы собрать архитектуру прогрева под тебя 🔥"
	DefaultResetText = "🔄 История очищена. Начинаем с чистого листа!"
)

// Completer produces a reply for the given turns. It never fails; the
// gateway substitutes a fallback string on provider errors.
type Completer interface {
	Complete(ctx context.Context, turns []llm.Message) string
}

// Sender delivers outbound messages and chat actions to the platform.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

type Options struct {
	ChunkLen    int
	ChunkPause  time.Duration
	WelcomeText string
	ResetText   string
}

type Relay struct {
	store    *history.Store
	complete Completer
	sender   Sender
	opts     Options
	logger   *slog.Logger
}

func New(store *history.Store, complete Completer, sender Sender, opts Options, logger *slog.Logger) *Relay {
	if opts.ChunkLen <= 0 {
		opts.ChunkLen = MaxMessageLen
	}
	if opts.ChunkPause <= 0 {
		opts.ChunkPause = DefaultChunkPause
	}
	if strings.TrimSpace(opts.WelcomeText) == "" {
		opts.WelcomeText = DefaultWelcomeText
	}
	if strings.TrimSpace(opts.ResetText) == "" {
		opts.ResetText = DefaultResetText
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{store: store, complete: complete, sender: sender, opts: opts, logger: logger}
}

// Handle processes one user message. Empty or whitespace-only input is
// ignored without touching history. The returned error covers outbound
// delivery only; completion failures surface to the user as the
// gateway's fallback text.
func (r *Relay) Handle(ctx context.Context, chatID int64, userText string) error {
	if strings.TrimSpace(userText) == "" {
		return nil
	}

	if err := r.sender.SendChatAction(ctx, chatID, "typing"); err != nil {
		r.logger.Debug("chat_action_error", "chat_id", chatID, "error", err.Error())
	}

	r.store.Append(chatID, "user", userText)
	reply := r.complete.Complete(ctx, r.store.Get(chatID))
	r.store.Append(chatID, "assistant", reply)

	for i, chunk := range SplitChunks(reply, r.opts.ChunkLen) {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.opts.ChunkPause):
			}
		}
		if err := r.sender.SendMessage(ctx, chatID, chunk); err != nil {
			r.logger.Warn("send_error", "chat_id", chatID, "chunk", i, "error", err.Error())
			return err
		}
	}
	return nil
}

// HandleReset clears the chat's history and acknowledges.
func (r *Relay) HandleReset(ctx context.Context, chatID int64) error {
	r.store.Clear(chatID)
	return r.sender.SendMessage(ctx, chatID, r.opts.ResetText)
}

// HandleStart clears the chat's history and sends the welcome text.
func (r *Relay) HandleStart(ctx context.Context, chatID int64) error {
	r.store.Clear(chatID)
	return r.sender.SendMessage(ctx, chatID, r.opts.WelcomeText)
}

// SplitChunks splits text into consecutive chunks of at most n runes.
// Concatenating the chunks in order reproduces the input exactly; an
// empty input yields no chunks, so nothing is sent for an empty reply.
func SplitChunks(text string, n int) []string {
	if text == "" {
		return nil
	}
	if n <= 0 {
		n = MaxMessageLen
	}
	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		end := n
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[:end]))
		runes = runes[end:]
	}
	return chunks
}
