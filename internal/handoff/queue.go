// Package handoff carries results from worker goroutines back to the
// goroutine that owns a source and its cursor model.
//
// Workers never touch owner state. They Post a function; the owner runs it
// from Drain or Run, so every effect happens on the owner's goroutine.
package handoff

import "context"

// DefaultSize is the queue capacity used by New when size is not positive.
const DefaultSize = 16

type Queue struct {
	funcs chan func()
}

func New(size int) *Queue {
	if size <= 0 {
		size = DefaultSize
	}
	return &Queue{funcs: make(chan func(), size)}
}

// Post queues fn for the owner. It blocks while the queue is full and
// gives up when ctx is done.
func (q *Queue) Post(ctx context.Context, fn func()) error {
	select {
	case q.funcs <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain runs every queued function without waiting for more and returns
// how many ran.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case fn := <-q.funcs:
			fn()
			n++
		default:
			return n
		}
	}
}

// Run executes queued functions as they arrive until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case fn := <-q.funcs:
			fn()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending is the number of queued functions.
func (q *Queue) Pending() int {
	return len(q.funcs)
}
