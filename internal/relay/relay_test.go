package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/inikonoff/Podogrev-bot/internal/history"
	"github.com/inikonoff/Podogrev-bot/llm"
)

type fixedCompleter struct {
	reply string
	turns []llm.Message
	calls int
}

func (f *fixedCompleter) Complete(ctx context.Context, turns []llm.Message) string {
	f.calls++
	f.turns = append([]llm.Message(nil), turns...)
	return f.reply
}

type recordingSender struct {
	messages []string
	actions  []string
	sendErr  error
}

func (s *recordingSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.messages = append(s.messages, text)
	return nil
}

func (s *recordingSender) SendChatAction(ctx context.Context, chatID int64, action string) error {
	s.actions = append(s.actions, action)
	return nil
}

func newTestRelay(reply string) (*Relay, *history.Store, *fixedCompleter, *recordingSender) {
	store := history.NewStore(20)
	comp := &fixedCompleter{reply: reply}
	sender := &recordingSender{}
	r := New(store, comp, sender, Options{ChunkPause: time.Millisecond}, slog.New(slog.DiscardHandler))
	return r, store, comp, sender
}

func TestHandleAppendsBothTurns(t *testing.T) {
	t.Parallel()

	r, store, comp, sender := newTestRelay("ответ")
	if err := r.Handle(context.Background(), 1, "Привет"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// The completion call sees history after the user append only.
	if len(comp.turns) != 1 || comp.turns[0].Role != "user" || comp.turns[0].Content != "Привет" {
		t.Fatalf("completer saw %+v", comp.turns)
	}

	got := store.Get(1)
	if len(got) != 2 {
		t.Fatalf("history has %d turns, want 2", len(got))
	}
	if got[0].Role != "user" || got[0].Content != "Привет" {
		t.Fatalf("first turn %+v", got[0])
	}
	if got[1].Role != "assistant" || got[1].Content != "ответ" {
		t.Fatalf("second turn %+v", got[1])
	}
	if len(sender.messages) != 1 || sender.messages[0] != "ответ" {
		t.Fatalf("sent %v", sender.messages)
	}
	if len(sender.actions) != 1 || sender.actions[0] != "typing" {
		t.Fatalf("actions %v", sender.actions)
	}
}

func TestHandleIgnoresEmptyInput(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "\n\t "} {
		r, store, comp, sender := newTestRelay("x")
		if err := r.Handle(context.Background(), 5, in); err != nil {
			t.Fatalf("Handle(%q): %v", in, err)
		}
		if comp.calls != 0 {
			t.Fatalf("Handle(%q) invoked the completer", in)
		}
		if len(sender.messages) != 0 {
			t.Fatalf("Handle(%q) sent %v", in, sender.messages)
		}
		if got := store.Get(5); len(got) != 0 {
			t.Fatalf("Handle(%q) mutated history: %v", in, got)
		}
	}
}

func TestHandleEmptyReplySendsNothing(t *testing.T) {
	t.Parallel()

	r, store, comp, sender := newTestRelay("")
	if err := r.Handle(context.Background(), 2, "вопрос"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if comp.calls != 1 {
		t.Fatalf("completer called %d times, want 1", comp.calls)
	}
	// An empty reply produces no outbound messages rather than a
	// placeholder; the turn is still recorded.
	if len(sender.messages) != 0 {
		t.Fatalf("sent %v, want none", sender.messages)
	}
	if got := store.Get(2); len(got) != 2 || got[1].Content != "" {
		t.Fatalf("history %+v", got)
	}
}

func TestHandleChunksLongReply(t *testing.T) {
	t.Parallel()

	reply := strings.Repeat("ж", MaxMessageLen*2+100)
	r, _, _, sender := newTestRelay(reply)
	if err := r.Handle(context.Background(), 1, "go"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(sender.messages) != 3 {
		t.Fatalf("got %d chunks, want 3", len(sender.messages))
	}
	if got := strings.Join(sender.messages, ""); got != reply {
		t.Fatal("concatenated chunks do not reproduce the reply")
	}
}

func TestHandleReturnsSendError(t *testing.T) {
	t.Parallel()

	r, store, _, sender := newTestRelay("ok")
	sender.sendErr = errors.New("telegram http 502")
	if err := r.Handle(context.Background(), 1, "hi"); err == nil {
		t.Fatal("expected send error")
	}
	// History is already updated; only delivery failed.
	if got := store.Get(1); len(got) != 2 {
		t.Fatalf("history has %d turns, want 2", len(got))
	}
}

func TestHandleReset(t *testing.T) {
	t.Parallel()

	r, store, _, sender := newTestRelay("x")
	store.Append(3, "user", "old")
	store.Append(3, "assistant", "older")

	if err := r.HandleReset(context.Background(), 3); err != nil {
		t.Fatalf("HandleReset: %v", err)
	}
	if got := store.Get(3); len(got) != 0 {
		t.Fatalf("history has %d turns after reset, want 0", len(got))
	}
	if len(sender.messages) != 1 || sender.messages[0] != DefaultResetText {
		t.Fatalf("sent %v", sender.messages)
	}
}

func TestHandleStart(t *testing.T) {
	t.Parallel()

	r, store, _, sender := newTestRelay("x")
	store.Append(4, "user", "old")

	if err := r.HandleStart(context.Background(), 4); err != nil {
		t.Fatalf("HandleStart: %v", err)
	}
	if got := store.Get(4); len(got) != 0 {
		t.Fatalf("history has %d turns after start, want 0", len(got))
	}
	if len(sender.messages) != 1 || sender.messages[0] != DefaultWelcomeText {
		t.Fatalf("sent %v", sender.messages)
	}
}

func TestSplitChunks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		n    int
		want int
	}{
		{name: "empty", in: "", n: 10, want: 0},
		{name: "short", in: "abc", n: 10, want: 1},
		{name: "exact", in: strings.Repeat("a", 10), n: 10, want: 1},
		{name: "one_over", in: strings.Repeat("a", 11), n: 10, want: 2},
		{name: "multibyte", in: strings.Repeat("щ", 25), n: 10, want: 3},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			chunks := SplitChunks(tt.in, tt.n)
			if len(chunks) != tt.want {
				t.Fatalf("got %d chunks, want %d", len(chunks), tt.want)
			}
			if got := strings.Join(chunks, ""); got != tt.in {
				t.Fatalf("concatenation mismatch: %q", got)
			}
			for i, c := range chunks {
				if n := len([]rune(c)); n > tt.n {
					t.Fatalf("chunk %d has %d runes, max %d", i, n, tt.n)
				}
			}
		})
	}
}
