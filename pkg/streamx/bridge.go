package streamx

import "context"

// Pull advances a blocking iterator. It returns the next item, whether an
// item was produced, and the fault that ended iteration, if any. A
// (zero, false, nil) return means the source is exhausted.
type Pull[T any] func() (T, bool, error)

// Stream is the consuming side of a Bridge. Items arrive in pull order on
// Items; once that channel is closed, Err reports how the worker stopped.
type Stream[T any] struct {
	items chan T
	done  chan struct{}
	err   error
}

// Items returns the channel the bridge worker hands items off on. The
// channel is closed when the source is exhausted, faults, or the bridge
// context is cancelled.
func (s *Stream[T]) Items() <-chan T { return s.items }

// Err blocks until the worker has stopped and returns the fault that ended
// iteration, or nil for a clean end of stream. After cancellation it returns
// the context error.
func (s *Stream[T]) Err() error {
	<-s.done
	return s.err
}

// Bridge runs a blocking iterator on a dedicated goroutine and delivers each
// produced item through a bounded channel of the given size, preserving
// arrival order. The worker stops on source exhaustion, on a pull fault, or
// when ctx is cancelled while an item is waiting to be handed off. A pull
// that blocks internally must honor ctx itself (an HTTP response body tied
// to the request context does).
func Bridge[T any](ctx context.Context, size int, pull Pull[T]) *Stream[T] {
	s := &Stream[T]{
		items: make(chan T, size),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(s.items)
		defer close(s.done)
		for {
			item, ok, err := pull()
			if err != nil {
				s.err = err
				return
			}
			if !ok {
				return
			}
			select {
			case s.items <- item:
			case <-ctx.Done():
				s.err = ctx.Err()
				return
			}
		}
	}()
	return s
}
