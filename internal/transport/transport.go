// Package transport feeds platform updates into the relay. Exactly one
// delivery mode is active: push (webhook) or pull (long polling).
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/inikonoff/Podogrev-bot/internal/relay"
	"github.com/inikonoff/Podogrev-bot/internal/retryutil"
	"github.com/inikonoff/Podogrev-bot/internal/telegram"
	"github.com/inikonoff/Podogrev-bot/internal/worker"
)

type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

const (
	DefaultPollTimeout = 30 * time.Second
	DefaultPollBackoff = 5 * time.Second
)

type Options struct {
	// WebhookURL, when set, selects push mode; empty selects pull mode.
	WebhookURL     string
	PollTimeout    time.Duration
	PollBackoff    time.Duration
	MaxConcurrency int
}

type job struct {
	ChatID        int64
	Text          string
	CorrelationID string
}

// Adapter owns the transport lifecycle and hands each inbound message
// to a per-chat worker so one chat's updates never interleave.
type Adapter struct {
	api    *telegram.API
	relay  *relay.Relay
	opts   Options
	logger *slog.Logger

	state         atomic.Int32
	stopRequested atomic.Bool
	stopOnce      sync.Once
	cancel        context.CancelFunc
	jobsCancel    context.CancelFunc
	pool          *worker.Pool[job]
	loopDone      chan struct{}

	// offset survives supervised poll-loop restarts so a transient
	// getUpdates failure never replays already-dispatched updates.
	offset int64
}

func New(api *telegram.API, r *relay.Relay, opts Options, logger *slog.Logger) *Adapter {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.PollBackoff <= 0 {
		opts.PollBackoff = DefaultPollBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		api:      api,
		relay:    r,
		opts:     opts,
		logger:   logger,
		loopDone: make(chan struct{}),
	}
}

func (a *Adapter) State() State {
	return State(a.state.Load())
}

// PushMode reports whether updates arrive via the webhook endpoint.
func (a *Adapter) PushMode() bool {
	return strings.TrimSpace(a.opts.WebhookURL) != ""
}

// ShuttingDown latches true from the first Shutdown call onward; the
// health surface reports 503 based on it.
func (a *Adapter) ShuttingDown() bool {
	return a.stopRequested.Load()
}

// Start selects the delivery mode and brings it up. In pull mode the
// poll loop runs until Shutdown; in push mode the webhook is registered
// and updates are expected through HandleWebhook.
func (a *Adapter) Start(ctx context.Context) error {
	if !a.state.CompareAndSwap(int32(Stopped), int32(Starting)) {
		return fmt.Errorf("transport already started (state %s)", a.State())
	}
	a.loopDone = make(chan struct{})

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	// Jobs get their own context so Shutdown can stop intake without
	// aborting a reply that is mid-delivery; it is cut only when the
	// drain deadline expires.
	jobsCtx, jobsCancel := context.WithCancel(context.Background())
	a.jobsCancel = jobsCancel
	a.pool = worker.NewPool(runCtx, worker.Options[job]{
		MaxConcurrency: a.opts.MaxConcurrency,
		Handle: func(_ context.Context, j job) {
			a.handleJob(jobsCtx, j)
		},
	})

	if a.PushMode() {
		url := strings.TrimRight(strings.TrimSpace(a.opts.WebhookURL), "/") + "/webhook"
		if err := a.api.SetWebhook(ctx, url, true); err != nil {
			a.state.Store(int32(Stopped))
			cancel()
			jobsCancel()
			close(a.loopDone)
			return fmt.Errorf("register webhook: %w", err)
		}
		a.logger.Info("webhook_registered", "url", url)
		close(a.loopDone)
	} else {
		// Entering pull mode tears down any webhook left from a previous
		// push-mode run; Telegram refuses getUpdates otherwise.
		if err := a.api.DeleteWebhook(ctx, true); err != nil {
			a.state.Store(int32(Stopped))
			cancel()
			jobsCancel()
			close(a.loopDone)
			return fmt.Errorf("clear webhook: %w", err)
		}
		a.logger.Info("polling_start", "timeout", a.opts.PollTimeout.String())
		go func() {
			defer close(a.loopDone)
			err := retryutil.Loop(runCtx, a.logger, "poll", a.opts.PollBackoff, a.pollOnce)
			if err != nil && runCtx.Err() == nil {
				a.logger.Error("poll_loop_exit", "error", err.Error())
			}
		}()
	}

	a.state.Store(int32(Running))
	return nil
}

// pollOnce runs one long-poll session until the context is canceled or
// the transport fails; retryutil.Loop restarts it after a fixed backoff.
func (a *Adapter) pollOnce(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		updates, next, err := a.api.GetUpdates(ctx, a.offset, a.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("get updates: %w", err)
		}
		a.offset = next
		for _, u := range updates {
			a.dispatch(ctx, &u)
		}
	}
}

// HandleWebhook accepts one push-mode payload and hands it to the
// chat's worker.
func (a *Adapter) HandleWebhook(ctx context.Context, raw []byte) error {
	if a.State() != Running {
		return fmt.Errorf("transport is %s", a.State())
	}
	u, err := telegram.ParseUpdate(raw)
	if err != nil {
		return err
	}
	a.dispatch(ctx, u)
	return nil
}

func (a *Adapter) dispatch(ctx context.Context, u *telegram.Update) {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	cid := correlationID()
	j := job{ChatID: msg.Chat.ID, Text: msg.Text, CorrelationID: cid}
	if err := a.pool.Dispatch(ctx, j.ChatID, j); err != nil {
		a.logger.Warn("dispatch_dropped", "chat_id", j.ChatID, "correlation_id", cid, "error", err.Error())
		return
	}
	a.logger.Debug("update_enqueued", "chat_id", j.ChatID, "correlation_id", cid, "text_len", len(msg.Text))
}

func (a *Adapter) handleJob(ctx context.Context, j job) {
	var err error
	switch normalizeCommand(j.Text) {
	case "/start":
		err = a.relay.HandleStart(ctx, j.ChatID)
	case "/reset":
		err = a.relay.HandleReset(ctx, j.ChatID)
	default:
		err = a.relay.Handle(ctx, j.ChatID, j.Text)
	}
	if err != nil && ctx.Err() == nil {
		a.logger.Warn("handle_error", "chat_id", j.ChatID, "correlation_id", j.CorrelationID, "error", err.Error())
	}
}

// Shutdown stops intake, waits for the poll loop, lets in-flight relay
// calls drain and deregisters the webhook. Safe to call more than once;
// only the first call does the work.
func (a *Adapter) Shutdown(ctx context.Context) {
	a.stopRequested.Store(true)
	a.stopOnce.Do(func() {
		if a.cancel == nil {
			// Start never ran; nothing to drain.
			a.state.Store(int32(Stopped))
			return
		}
		a.state.Store(int32(Stopping))
		a.logger.Info("transport_stopping")
		a.cancel()
		select {
		case <-a.loopDone:
		case <-ctx.Done():
		}
		// In-flight replies keep their own context so a cancelled poll
		// loop never truncates a chunked send; cut them only when the
		// drain deadline expires.
		drained := make(chan struct{})
		go func() {
			a.pool.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			a.jobsCancel()
			<-drained
		}
		a.jobsCancel()
		if a.PushMode() {
			if err := a.api.DeleteWebhook(ctx, true); err != nil {
				a.logger.Warn("webhook_delete_error", "error", err.Error())
			}
		}
		a.state.Store(int32(Stopped))
		a.logger.Info("transport_stopped")
	})
}

// normalizeCommand lowercases a leading slash command and strips the
// "@BotName" suffix clients add in groups.
func normalizeCommand(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := text
	if i := strings.IndexAny(cmd, " \n\t"); i >= 0 {
		cmd = cmd[:i]
	}
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}

func correlationID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
