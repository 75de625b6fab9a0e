package execqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFIFOOrderNoInterleaving(t *testing.T) {
	q := New()
	defer q.Close()

	var mu sync.Mutex
	var order []int
	var running int

	for i := 0; i < 20; i++ {
		i := i
		if _, err := q.Enqueue("task", func(context.Context) error {
			mu.Lock()
			running++
			if running > 1 {
				mu.Unlock()
				t.Errorf("tasks interleaved")
				return nil
			}
			order = append(order, i)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	q.Wait()

	if len(order) != 20 {
		t.Fatalf("expected 20 tasks, ran %d", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("order violated at %d: %v", i, order)
		}
	}
}

func TestFailingTaskDoesNotHaltDrain(t *testing.T) {
	q := New()
	defer q.Close()

	boom := errors.New("boom")
	failed, err := q.Enqueue("fail", func(context.Context) error { return boom })
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ran := false
	next, err := q.Enqueue("next", func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-failed.Done()
	<-next.Done()

	if !errors.Is(failed.Err(), boom) {
		t.Fatalf("expected boom, got %v", failed.Err())
	}
	if next.Err() != nil || !ran {
		t.Fatalf("subsequent task did not run cleanly: %v", next.Err())
	}
}

func TestDepthObservable(t *testing.T) {
	q := New()
	defer q.Close()

	release := make(chan struct{})
	if _, err := q.Enqueue("hold", func(context.Context) error {
		<-release
		return nil
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue("queued", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for q.Depth() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected depth 2, got %d", q.Depth())
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	q.Wait()
	if got := q.Depth(); got != 0 {
		t.Fatalf("expected drained queue, depth=%d", got)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	q := New()
	q.Close()
	if _, err := q.Enqueue("late", func(context.Context) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestPanicIsContained(t *testing.T) {
	q := New()
	defer q.Close()

	bad, err := q.Enqueue("panic", func(context.Context) error { panic("oops") })
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ok, err := q.Enqueue("after", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-bad.Done()
	<-ok.Done()
	if bad.Err() == nil {
		t.Fatalf("expected error from panicked task")
	}
	if ok.Err() != nil {
		t.Fatalf("queue did not survive panic: %v", ok.Err())
	}
}

func TestCloseDrainsPendingWithLiveContext(t *testing.T) {
	q := New()

	started := make(chan struct{})
	release := make(chan struct{})
	if _, err := q.Enqueue("hold", func(context.Context) error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	var pendingCtxErr error
	pending, err := q.Enqueue("pending", func(ctx context.Context) error {
		pendingCtxErr = ctx.Err()
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	<-started
	go func() {
		time.Sleep(5 * time.Millisecond)
		close(release)
	}()
	q.Close()

	<-pending.Done()
	if pending.Err() != nil {
		t.Fatalf("pending task failed: %v", pending.Err())
	}
	if pendingCtxErr != nil {
		t.Fatalf("task enqueued before Close saw a dead context: %v", pendingCtxErr)
	}
}
