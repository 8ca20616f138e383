package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inikonoff/Podogrev-bot/internal/gateway"
	"github.com/inikonoff/Podogrev-bot/internal/history"
	"github.com/inikonoff/Podogrev-bot/internal/httpapi"
	"github.com/inikonoff/Podogrev-bot/internal/logutil"
	"github.com/inikonoff/Podogrev-bot/internal/relay"
	"github.com/inikonoff/Podogrev-bot/internal/telegram"
	"github.com/inikonoff/Podogrev-bot/internal/transport"
	"github.com/inikonoff/Podogrev-bot/providers/groq"
)

const serviceName = "podogrev-bot"

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"))
			if token == "" {
				return fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or PODOGREV_BOT_TELEGRAM_BOT_TOKEN)")
			}
			apiKey := strings.TrimSpace(flagOrViperString(cmd, "groq-api-key", "groq.api_key"))
			if apiKey == "" {
				return fmt.Errorf("missing groq.api_key (set via --groq-api-key or PODOGREV_BOT_GROQ_API_KEY)")
			}

			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			bind := strings.TrimSpace(flagOrViperString(cmd, "server-bind", "server.bind"))
			if bind == "" {
				bind = "0.0.0.0"
			}
			port := flagOrViperInt(cmd, "server-port", "server.port")
			if port <= 0 {
				port = 8080
			}
			webhookURL := strings.TrimSpace(flagOrViperString(cmd, "webhook-base-url", "server.webhook_base_url"))

			historyMax := flagOrViperInt(cmd, "history-max-messages", "history.max_messages")
			if historyMax <= 0 {
				historyMax = history.DefaultCap
			}
			chunkPause := flagOrViperDuration(cmd, "chunk-pause", "relay.chunk_pause")

			systemPrompt := flagOrViperString(cmd, "system-prompt", "bot.system_prompt")
			if strings.TrimSpace(systemPrompt) == "" {
				systemPrompt = defaultSystemPrompt
			}

			client := groq.New(viper.GetString("groq.base_url"), apiKey)
			gw := gateway.New(client, gateway.Config{
				Model:        flagOrViperString(cmd, "model", "groq.model"),
				SystemPrompt: systemPrompt,
			}, logger)

			store := history.NewStore(historyMax)
			api := telegram.New(&http.Client{Timeout: 60 * time.Second}, viper.GetString("telegram.base_url"), token)
			r := relay.New(store, gw, api, relay.Options{
				ChunkPause:  chunkPause,
				WelcomeText: viper.GetString("bot.welcome_text"),
				ResetText:   viper.GetString("bot.reset_text"),
			}, logger)

			adapter := transport.New(api, r, transport.Options{
				WebhookURL:     webhookURL,
				PollTimeout:    flagOrViperDuration(cmd, "poll-timeout", "telegram.poll_timeout"),
				PollBackoff:    flagOrViperDuration(cmd, "poll-backoff", "telegram.poll_backoff"),
				MaxConcurrency: flagOrViperInt(cmd, "max-concurrency", "telegram.max_concurrency"),
			}, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			me, err := api.GetMe(ctx)
			if err != nil {
				return fmt.Errorf("telegram auth check: %w", err)
			}
			mode := "pull"
			if adapter.PushMode() {
				mode = "push"
			}
			logger.Info("bot_start",
				"service", serviceName,
				"bot_username", me.Username,
				"mode", mode,
				"history_max_messages", historyMax,
			)

			if err := adapter.Start(ctx); err != nil {
				return err
			}

			srv := httpapi.New(httpapi.Options{
				ServiceName: serviceName,
				Addr:        bind + ":" + strconv.Itoa(port),
			}, adapter, store, logger)

			srvErr := make(chan error, 1)
			go func() { srvErr <- srv.ListenAndServe() }()

			select {
			case err := <-srvErr:
				adapter.Shutdown(context.Background())
				return err
			case <-ctx.Done():
			}

			logger.Info("shutdown_begin")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			adapter.Shutdown(shutdownCtx)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http_shutdown_error", "error", err.Error())
			}
			logger.Info("shutdown_complete")
			return nil
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token (required).")
	cmd.Flags().String("groq-api-key", "", "Groq API key (required).")
	cmd.Flags().String("model", "", "Completion model identifier.")
	cmd.Flags().String("system-prompt", "", "System prompt override.")
	cmd.Flags().String("webhook-base-url", "", "Externally reachable base URL; presence selects push mode.")
	cmd.Flags().String("server-bind", "0.0.0.0", "HTTP bind address.")
	cmd.Flags().Int("server-port", 8080, "HTTP port.")
	cmd.Flags().Int("history-max-messages", history.DefaultCap, "Max turns kept per chat.")
	cmd.Flags().Duration("chunk-pause", relay.DefaultChunkPause, "Pause between consecutive reply chunks.")
	cmd.Flags().Duration("poll-timeout", transport.DefaultPollTimeout, "Long polling timeout for getUpdates.")
	cmd.Flags().Duration("poll-backoff", transport.DefaultPollBackoff, "Backoff before restarting a failed poll loop.")
	cmd.Flags().Int("max-concurrency", 3, "Max chats processed concurrently.")

	return cmd
}
