// Package queue runs submitted tasks one at a time, in submission order,
// on a single worker goroutine.
package queue

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("queue: closed")

const defaultBacklog = 64

type task struct {
	ctx context.Context
	run func(context.Context)
}

type Queue struct {
	tasks chan task
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func New() *Queue {
	q := &Queue{
		tasks: make(chan task, defaultBacklog),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go q.work()
	return q
}

func (q *Queue) work() {
	defer close(q.done)
	for {
		select {
		case <-q.quit:
			return
		case t := <-q.tasks:
			// Tasks whose submitter gave up before they started are skipped.
			if t.ctx.Err() != nil {
				continue
			}
			t.run(context.WithoutCancel(t.ctx))
		}
	}
}

// Close stops the worker after the running task. Pending tasks are dropped
// and their submitters receive ErrClosed.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.quit)
	})
	<-q.done
}

// Do runs fn on the worker of q and waits for its result.
// Once fn has started it runs to completion, even when ctx is canceled;
// the caller then stops waiting and gets ctx.Err().
func Do[T any](ctx context.Context, q *Queue, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	var zero T
	results := make(chan result, 1)
	t := task{
		ctx: ctx,
		run: func(ctx context.Context) {
			v, err := fn(ctx)
			results <- result{v, err}
		},
	}
	select {
	case q.tasks <- t:
	case <-q.quit:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case r := <-results:
		return r.value, r.err
	case <-q.done:
		select {
		case r := <-results:
			return r.value, r.err
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
