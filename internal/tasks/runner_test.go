package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestSubmit_RunsAll verifies accepted tasks run to completion before Wait
// returns.
func TestSubmit_RunsAll(t *testing.T) {
	r := NewRunner(context.Background(), 4, nil)

	var ran atomic.Int32
	for i := 0; i < 6; i++ {
		if !r.Submit("s1", "count", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}) {
			t.Fatal("submit rejected below saturation")
		}
	}
	r.Wait()
	if ran.Load() != 6 {
		t.Fatalf("ran %d tasks, want 6", ran.Load())
	}
}

// TestSubmit_SaturationRejects verifies Submit never blocks: past the
// concurrency limit it reports rejection instead.
func TestSubmit_SaturationRejects(t *testing.T) {
	r := NewRunner(context.Background(), 1, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	r.Submit("s1", "blocker", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	if r.Submit("s1", "overflow", func(ctx context.Context) error { return nil }) {
		t.Fatal("submit should reject while saturated")
	}
	close(release)
	r.Wait()

	if !r.Submit("s1", "after", func(ctx context.Context) error { return nil }) {
		t.Fatal("submit should accept again after drain")
	}
	r.Wait()
}

// TestCancelSession verifies cancellation reaches only that session's tasks.
func TestCancelSession(t *testing.T) {
	r := NewRunner(context.Background(), 4, nil)

	var mu sync.Mutex
	outcome := map[string]bool{}
	note := func(session string, cancelled bool) {
		mu.Lock()
		outcome[session] = cancelled
		mu.Unlock()
	}

	running := make(chan struct{}, 2)
	for _, session := range []string{"doomed", "spared"} {
		session := session
		r.Submit(session, "wait", func(ctx context.Context) error {
			running <- struct{}{}
			select {
			case <-ctx.Done():
				note(session, true)
			case <-time.After(2 * time.Second):
				note(session, false)
			}
			return nil
		})
	}
	<-running
	<-running

	r.CancelSession("doomed")

	// The spared task must still be waiting; nudge it to finish quickly by
	// cancelling its session too, after checking the first took the hit.
	deadline := time.After(time.Second)
	for {
		mu.Lock()
		cancelled, ok := outcome["doomed"]
		mu.Unlock()
		if ok {
			if !cancelled {
				t.Fatal("doomed task timed out instead of observing cancel")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("doomed task never finished")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	_, sparedDone := outcome["spared"]
	mu.Unlock()
	if sparedDone {
		t.Fatal("cancel leaked into another session")
	}

	r.CancelSession("spared")
	r.Wait()
}

// TestBaseContextCancel verifies shutdown cancellation propagates into every
// session scope.
func TestBaseContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(ctx, 4, nil)

	observed := make(chan struct{})
	r.Submit("s1", "wait", func(taskCtx context.Context) error {
		<-taskCtx.Done()
		close(observed)
		return nil
	})

	cancel()
	select {
	case <-observed:
	case <-time.After(time.Second):
		t.Fatal("task did not observe base context cancel")
	}
	r.Wait()
}
