// Package execqueue serializes every mutating workspace operation. The
// execution environment and the virtual file store are not safe under
// concurrent writers, so all action batches and file operations flow
// through one strictly-ordered queue.
package execqueue

import (
	"context"
	"errors"
	"log"
	"sync"
)

var ErrClosed = errors.New("execqueue: queue is closed")

// Task is the handle returned by Enqueue. Done is closed when the task
// finishes; Err reports its outcome independently of other tasks.
type Task struct {
	Name string
	run  func(context.Context) error
	done chan struct{}
	err  error
}

// Done is closed once the task has run (successfully or not).
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the task's result. Only valid after Done is closed.
func (t *Task) Err() error {
	return t.err
}

// Queue runs tasks one at a time in FIFO submission order. A failing task
// does not halt the drain: its error is recorded on the task handle and the
// queue moves on.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Task
	active  bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	drained chan struct{}
}

func New() *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		ctx:     ctx,
		cancel:  cancel,
		drained: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.drain()
	return q
}

// Enqueue appends a task. Tasks run strictly one at a time, in submission
// order.
func (q *Queue) Enqueue(name string, run func(context.Context) error) (*Task, error) {
	if q == nil {
		return nil, errors.New("execqueue: queue is nil")
	}
	if run == nil {
		return nil, errors.New("execqueue: task is required")
	}
	t := &Task{
		Name: name,
		run:  run,
		done: make(chan struct{}),
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	q.pending = append(q.pending, t)
	q.cond.Signal()
	q.mu.Unlock()
	return t, nil
}

// Depth reports the number of tasks not yet finished (queued plus running).
func (q *Queue) Depth() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if q.active {
		n++
	}
	return n
}

// Wait blocks until every task submitted so far has finished.
func (q *Queue) Wait() {
	if q == nil {
		return
	}
	q.mu.Lock()
	for len(q.pending) > 0 || q.active {
		q.cond.Wait()
	}
	q.mu.Unlock()
}

// Close stops intake and waits for every already-queued task to finish.
// The shared task context stays live until the drain completes, so tasks
// enqueued before Close run to completion.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.drained
		return
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.drained
	q.cancel()
}

func (q *Queue) drain() {
	defer close(q.drained)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		t := q.pending[0]
		q.pending = q.pending[1:]
		q.active = true
		q.mu.Unlock()

		t.err = q.runOne(t)
		close(t.done)

		q.mu.Lock()
		q.active = false
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

func (q *Queue) runOne(t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("execqueue: task panicked")
			log.Printf("execqueue: task %q panicked: %v", t.Name, r)
		}
	}()
	err = t.run(q.ctx)
	if err != nil {
		log.Printf("execqueue: task %q failed: %v", t.Name, err)
	}
	return err
}
