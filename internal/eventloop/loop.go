package eventloop

import (
	"context"
	"errors"
)

// ErrStopped is returned when a task is posted to a loop that has exited.
var ErrStopped = errors.New("event loop stopped")

// Task is a unit of work run on the loop goroutine.
type Task struct {
	Name string
	Fn   func()
}

// Loop runs posted tasks one at a time on a single goroutine, in the order
// they were accepted. Tasks must not block on the loop themselves.
type Loop struct {
	ch   chan Task
	done chan struct{}
}

// New creates a loop with a bounded mailbox. Call Run to start it.
func New(size int) *Loop {
	if size <= 0 {
		size = 64
	}
	return &Loop{ch: make(chan Task, size), done: make(chan struct{})}
}

// Run consumes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case t := <-l.ch:
			t.Fn()
		case <-ctx.Done():
			return
		}
	}
}

// Start runs the loop in a new goroutine.
func (l *Loop) Start(ctx context.Context) *Loop {
	go l.Run(ctx)
	return l
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Post enqueues a task without waiting for it to run.
func (l *Loop) Post(ctx context.Context, t Task) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.ch <- t:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do posts fn and waits for it to finish. If ctx ends while waiting the task
// still runs later; only the wait is abandoned.
func (l *Loop) Do(ctx context.Context, name string, fn func()) error {
	finished := make(chan struct{})
	err := l.Post(ctx, Task{Name: name, Fn: func() {
		defer close(finished)
		fn()
	}})
	if err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
