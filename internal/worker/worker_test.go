package worker

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDispatchPreservesPerChatOrder(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	got := make(map[int64][]int)
	done := make(chan struct{}, 30)

	p := NewPool(ctx, Options[int]{
		MaxConcurrency: 2,
		Handle: func(ctx context.Context, job int) {
			mu.Lock()
			chat := int64(job % 3)
			got[chat] = append(got[chat], job)
			mu.Unlock()
			done <- struct{}{}
		},
	})

	for i := 0; i < 30; i++ {
		if err := p.Dispatch(ctx, int64(i%3), i); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	for i := 0; i < 30; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for chat, jobs := range got {
		for i := 1; i < len(jobs); i++ {
			if jobs[i] < jobs[i-1] {
				t.Fatalf("chat %d executed out of order: %v", chat, jobs)
			}
		}
	}
}

func TestDispatchAfterShutdown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool(ctx, Options[int]{Handle: func(context.Context, int) {}})
	cancel()
	p.Wait()

	if err := p.Dispatch(context.Background(), 1, 1); err == nil {
		// A buffered enqueue may still succeed right after cancel; force
		// the channel full to observe the context error.
		for i := 0; i < 64; i++ {
			if err := p.Dispatch(context.Background(), 1, i); err != nil {
				return
			}
		}
		t.Fatal("expected context error after shutdown")
	}
}
