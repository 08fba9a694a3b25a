// Package stream turns change notifications into lazy snapshot streams.
//
// A Stream loads nothing until the first call to Next. It then subscribes to
// its topic before loading the first snapshot, so a change that lands between
// the load and the subscription is never missed. Every later Next blocks
// until at least one notification arrives, coalesces any burst into a
// single reload and returns the fresh snapshot. Streams cannot be restarted:
// after Unsubscribe every call returns ErrClosed.
package stream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
)

// ErrClosed is returned by Next once the stream was unsubscribed or its
// source went away.
var ErrClosed = errors.New("stream closed")

// Subscription delivers one signal per change notification on a topic.
type Subscription interface {
	Events() <-chan struct{}
	Close() error
}

// Source opens subscriptions. Subscribe must return only once the
// subscription is live.
type Source interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Notifier announces that the data behind a topic changed.
type Notifier interface {
	Notify(ctx context.Context, topic string) error
}

// Loader produces a full snapshot of the watched query.
type Loader[T any] func(ctx context.Context) (T, error)

// Stream is a single-consumer sequence of snapshots.
type Stream[T any] struct {
	src   Source
	topic string
	load  Loader[T]

	mu      sync.Mutex
	sub     Subscription
	started bool
	closed  bool
	done    chan struct{}
}

// New returns a stream that is not yet subscribed.
func New[T any](src Source, topic string, load Loader[T]) *Stream[T] {
	return &Stream[T]{
		src:   src,
		topic: topic,
		load:  load,
		done:  make(chan struct{}),
	}
}

// Topic returns the notification topic the stream listens on.
func (s *Stream[T]) Topic() string {
	return s.topic
}

// Next returns the next snapshot. The first call subscribes and loads
// immediately; later calls wait for a change.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T

	sub, first, err := s.ensureSubscribed(ctx)
	if err != nil {
		return zero, err
	}

	if !first {
		if err := s.wait(ctx, sub); err != nil {
			return zero, err
		}
	}

	snapshot, err := s.load(ctx)
	if err != nil {
		return zero, err
	}
	return snapshot, nil
}

func (s *Stream[T]) ensureSubscribed(ctx context.Context) (Subscription, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrClosed
	}
	if s.started {
		return s.sub, false, nil
	}

	sub, err := s.src.Subscribe(ctx, s.topic)
	if err != nil {
		return nil, false, fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	s.sub = sub
	s.started = true
	return sub, true, nil
}

func (s *Stream[T]) wait(ctx context.Context, sub Subscription) error {
	events := sub.Events()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	case _, ok := <-events:
		if !ok {
			return ErrClosed
		}
	}

	// coalesce whatever queued up while we were waiting
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

// Unsubscribe stops delivery and releases the subscription. It is safe to
// call more than once and from another goroutine than the consumer.
func (s *Stream[T]) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	if s.sub == nil {
		return nil
	}
	return s.sub.Close()
}

// All ranges over snapshots until the stream closes or ctx ends. A load
// failure is yielded once and ends the iteration.
func (s *Stream[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			snapshot, err := s.Next(ctx)
			if errors.Is(err, ErrClosed) {
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					yield(snapshot, err)
				}
				return
			}
			if !yield(snapshot, nil) {
				return
			}
		}
	}
}
