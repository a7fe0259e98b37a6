// Package live models standing queries as cancellable streams. Each value a
// stream delivers is the complete current result, never a delta.
package live

import (
	"context"
	"sync"
)

// Source runs a standing query, calling emit with every new result until ctx
// is cancelled or the query fails. emit reports false once the stream has
// been closed; the source must return promptly after that.
type Source[T any] func(ctx context.Context, emit func(T) bool) error

type Stream[T any] struct {
	updates chan T
	done    chan struct{}
	cancel  context.CancelFunc

	mu  sync.Mutex
	err error
}

// Start runs src on its own goroutine. The stream ends when src returns, when
// parent is cancelled, or when Close is called.
func Start[T any](parent context.Context, src Source[T]) *Stream[T] {
	ctx, cancel := context.WithCancel(parent)
	s := &Stream[T]{
		updates: make(chan T),
		done:    make(chan struct{}),
		cancel:  cancel,
	}

	go func() {
		defer close(s.done)
		defer close(s.updates)

		err := src(ctx, func(v T) bool {
			select {
			case s.updates <- v:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil && ctx.Err() == nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return s
}

// Updates is closed when the stream ends.
func (s *Stream[T]) Updates() <-chan T {
	return s.updates
}

func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns the failure that ended the stream, if any. Cancellation is not
// a failure.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the underlying listener and waits for the source to exit.
// It is safe to call more than once.
func (s *Stream[T]) Close() {
	s.cancel()
	<-s.done
}

// Map derives a stream by applying fn to every value of in. fn receives the
// derived stream's context. Closing the derived stream closes in.
func Map[T, U any](parent context.Context, in *Stream[T], fn func(context.Context, T) U) *Stream[U] {
	return Start(parent, func(ctx context.Context, emit func(U) bool) error {
		defer in.Close()
		for {
			select {
			case <-ctx.Done():
				return nil
			case v, ok := <-in.Updates():
				if !ok {
					return in.Err()
				}
				if !emit(fn(ctx, v)) {
					return nil
				}
			}
		}
	})
}

// Failed returns a stream that ends immediately with err.
func Failed[T any](err error) *Stream[T] {
	return Start(context.Background(), func(context.Context, func(T) bool) error {
		return err
	})
}
