package retryutil

import (
	"context"
	"log/slog"
	"time"
)

const defaultBackoff = 5 * time.Second

// Loop supervises a long-running task: fn is restarted after a fixed
// backoff whenever it fails, until it returns nil or the context is
// canceled. Cancellation always wins over a restart.
func Loop(ctx context.Context, logger *slog.Logger, name string, backoff time.Duration, fn func(ctx context.Context) error) error {
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	for {
		err := fn(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}
		logger.Warn(name+"_restart", "backoff", backoff.String(), "error", err.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}
