// Package executor runs work on a single owner goroutine.
package executor

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("executor is closed")

type job struct {
	fn   func() error
	done chan error
}

// Serial runs submitted functions one at a time on one goroutine, in
// submission order. Audio tap activation, invalidation and property reads
// are routed through it.
type Serial struct {
	jobs chan job
	quit chan struct{}

	closeOnce sync.Once
	stopped   chan struct{}
}

func NewSerial() *Serial {
	s := &Serial{
		jobs:    make(chan job),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Serial) run() {
	defer close(s.stopped)
	for {
		select {
		case j := <-s.jobs:
			j.done <- j.fn()
		case <-s.quit:
			return
		}
	}
}

// Do runs fn on the owner goroutine and waits for it to finish. A cancelled
// context only abandons the wait for a slot; once fn starts it runs to completion.
func (s *Serial) Do(ctx context.Context, fn func() error) error {
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case s.jobs <- j:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-j.done
}

// Close stops the owner goroutine after any running job returns.
func (s *Serial) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
	})
	<-s.stopped
}
